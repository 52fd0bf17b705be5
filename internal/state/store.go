// Package state owns the in-memory per-ticker market state: a bounded bar
// history plus indicator and session-metadata snapshots recomputed on every
// update. Updates for different tickers proceed concurrently; updates for the
// same ticker are serialized by a per-ticker lock.
package state

import (
	"sync"

	"scanner-systemv1/internal/model"
)

// DefaultMaxBars comfortably spans one full trading day at 5-minute
// granularity and exceeds the longest indicator lookback (50).
const DefaultMaxBars = 300

// Indicators is the derived indicator snapshot for one ticker. Fields are nil
// until enough history exists.
type Indicators struct {
	AvgVolume *float64 `json:"avg_volume,omitempty"` // mean volume, last 20 bars
	SMA20     *float64 `json:"sma20,omitempty"`
	SMA50     *float64 `json:"sma50,omitempty"`
	VWAP      *float64 `json:"vwap,omitempty"` // current date, RTH bars only
	RSI       *float64 `json:"rsi,omitempty"`  // 14-period Wilder, last 15 closes
}

// SessionMetadata is derived from regular-trading-hours bars only.
type SessionMetadata struct {
	PrevDayClose *float64 `json:"prev_day_close,omitempty"`
	TodayOpen    *float64 `json:"today_open,omitempty"`
	TodayHigh    *float64 `json:"today_high,omitempty"`
	TodayLow     *float64 `json:"today_low,omitempty"`
}

// TickerState is the per-ticker aggregate. Snapshots handed out by Get are
// copies; consumers must treat them as read-only.
type TickerState struct {
	Ticker     string          `json:"ticker"`
	Bars       []model.Bar     `json:"bars"`
	Indicators Indicators      `json:"indicators"`
	Metadata   SessionMetadata `json:"metadata"`
}

// MemoryStats bounds-checks store growth; not a functional surface.
type MemoryStats struct {
	Tickers          int     `json:"tickers"`
	TotalBars        int     `json:"total_bars"`
	AvgBarsPerTicker float64 `json:"avg_bars_per_ticker"`
}

// slot pairs one ticker's state with its write lock.
type slot struct {
	mu    sync.Mutex
	state TickerState
}

// Store holds all tracked tickers. The outer RWMutex guards the map only;
// per-ticker mutation happens under the slot lock.
type Store struct {
	maxBars int

	mu    sync.RWMutex
	slots map[string]*slot
}

// NewStore creates a store bounding each ticker's history at maxBars.
// maxBars <= 0 selects DefaultMaxBars.
func NewStore(maxBars int) *Store {
	if maxBars <= 0 {
		maxBars = DefaultMaxBars
	}
	return &Store{
		maxBars: maxBars,
		slots:   make(map[string]*slot, 64),
	}
}

// Update appends bar to ticker's history, or replaces the most recent bar in
// place when the timestamps match (upstream revision of an in-progress bar).
// The oldest bar is evicted once the history exceeds the bound, then the
// indicator and metadata snapshots are recomputed over the retained window.
func (s *Store) Update(ticker string, bar model.Bar) {
	sl := s.slot(ticker)

	sl.mu.Lock()
	defer sl.mu.Unlock()

	bars := sl.state.Bars
	if n := len(bars); n > 0 && bars[n-1].Timestamp == bar.Timestamp {
		bars[n-1] = bar
	} else {
		bars = append(bars, bar)
		if len(bars) > s.maxBars {
			// Shift down instead of reslicing so the backing array
			// does not pin evicted bars forever.
			copy(bars, bars[1:])
			bars = bars[:s.maxBars]
		}
		sl.state.Bars = bars
	}

	sl.state.Indicators = computeIndicators(sl.state.Bars)
	sl.state.Metadata = computeMetadata(sl.state.Bars)
}

// Get returns a consistent read-only snapshot of one ticker's state.
// The bars slice is copied so concurrent updates cannot shear a reader.
func (s *Store) Get(ticker string) (TickerState, bool) {
	s.mu.RLock()
	sl, ok := s.slots[ticker]
	s.mu.RUnlock()
	if !ok {
		return TickerState{}, false
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	snap := sl.state
	snap.Bars = make([]model.Bar, len(sl.state.Bars))
	copy(snap.Bars, sl.state.Bars)
	return snap, true
}

// AllTickers returns the set of tracked ticker identifiers, unordered.
func (s *Store) AllTickers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.slots))
	for t := range s.slots {
		out = append(out, t)
	}
	return out
}

// Remove drops all state for ticker.
func (s *Store) Remove(ticker string) {
	s.mu.Lock()
	delete(s.slots, ticker)
	s.mu.Unlock()
}

// MemoryStats reports tracked-ticker and retained-bar counts.
func (s *Store) MemoryStats() MemoryStats {
	s.mu.RLock()
	slots := make([]*slot, 0, len(s.slots))
	for _, sl := range s.slots {
		slots = append(slots, sl)
	}
	s.mu.RUnlock()

	stats := MemoryStats{Tickers: len(slots)}
	for _, sl := range slots {
		sl.mu.Lock()
		stats.TotalBars += len(sl.state.Bars)
		sl.mu.Unlock()
	}
	if stats.Tickers > 0 {
		stats.AvgBarsPerTicker = float64(stats.TotalBars) / float64(stats.Tickers)
	}
	return stats
}

// slot returns the ticker's slot, creating it on first sight.
func (s *Store) slot(ticker string) *slot {
	s.mu.RLock()
	sl, ok := s.slots[ticker]
	s.mu.RUnlock()
	if ok {
		return sl
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok = s.slots[ticker]; ok {
		return sl
	}
	sl = &slot{state: TickerState{Ticker: ticker}}
	s.slots[ticker] = sl
	return sl
}
