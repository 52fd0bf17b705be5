// Package scanner runs the registered pattern detectors against freshly
// updated ticker state and forwards the resulting signals.
//
// Each scan works on a read-only snapshot taken after the store update, so
// detector evaluation never overlaps a concurrent write for that ticker.
// A detector that panics is isolated: it cannot prevent other detectors or
// other tickers from being evaluated.
package scanner

import (
	"log/slog"
	"sync"
	"time"

	"scanner-systemv1/internal/model"
	"scanner-systemv1/internal/pattern"
	"scanner-systemv1/internal/state"
)

// Scanner evaluates active detectors on every bar update.
type Scanner struct {
	store    *state.Store
	registry *pattern.Registry
	signalCh chan model.Signal

	// OnScan, if set, observes per-bar scan latency.
	OnScan func(time.Duration)

	mu       sync.Mutex
	seenDate string
	seen     map[string]struct{} // ticker|pattern, reset per session date
}

// New creates a scanner that reads snapshots from store and runs the
// registry's active detectors. bufSize bounds the signal channel.
func New(store *state.Store, registry *pattern.Registry, bufSize int) *Scanner {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Scanner{
		store:    store,
		registry: registry,
		signalCh: make(chan model.Signal, bufSize),
		seen:     make(map[string]struct{}),
	}
}

// Signals returns the channel of emitted signals.
func (s *Scanner) Signals() <-chan model.Signal {
	return s.signalCh
}

// OnBar scans the ticker the bar belongs to. Wire it as the stream client's
// bar hook; it is safe to call concurrently for different tickers.
func (s *Scanner) OnBar(bar model.Bar) {
	start := time.Now()
	defer func() {
		if s.OnScan != nil {
			s.OnScan(time.Since(start))
		}
	}()

	snap, ok := s.store.Get(bar.Ticker)
	if !ok {
		return
	}

	for _, det := range s.registry.Active() {
		if len(snap.Bars) < det.MinBars() {
			continue
		}
		if !det.ShouldScan(&snap) {
			continue
		}
		sig := s.safeScan(det, &snap)
		if sig == nil {
			continue
		}
		if !s.firstThisSession(sig.Ticker, sig.Pattern, bar.Date) {
			continue
		}
		select {
		case s.signalCh <- *sig:
		default:
			slog.Warn("[scanner] signal channel full, dropping",
				"ticker", sig.Ticker, "pattern", sig.Pattern)
		}
	}
}

// safeScan runs one detector with panic isolation.
func (s *Scanner) safeScan(det pattern.Detector, snap *state.TickerState) (sig *model.Signal) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[scanner] detector panicked",
				"pattern", det.Name(), "ticker", snap.Ticker, "panic", r)
			sig = nil
		}
	}()
	return det.Scan(snap)
}

// firstThisSession dedupes to one signal per ticker+pattern per session date.
// The seen set resets when the session date rolls over.
func (s *Scanner) firstThisSession(ticker, pat, date string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if date != s.seenDate {
		s.seenDate = date
		s.seen = make(map[string]struct{})
	}
	key := ticker + "|" + pat
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}
