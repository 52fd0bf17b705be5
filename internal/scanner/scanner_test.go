package scanner

import (
	"testing"

	"scanner-systemv1/internal/model"
	"scanner-systemv1/internal/pattern"
	"scanner-systemv1/internal/state"
)

// stubDetector fires on every scan unless told otherwise.
type stubDetector struct {
	name    string
	minBars int
	fire    bool
	panics  bool
	scans   int
}

func (d *stubDetector) Name() string { return d.name }

func (d *stubDetector) MinBars() int { return d.minBars }

func (d *stubDetector) ShouldScan(*state.TickerState) bool { return true }

func (d *stubDetector) Scan(st *state.TickerState) *model.Signal {
	d.scans++
	if d.panics {
		panic("detector bug")
	}
	if !d.fire {
		return nil
	}
	return &model.Signal{
		Ticker:  st.Ticker,
		Pattern: d.name,
		Entry:   st.Bars[len(st.Bars)-1].Close,
	}
}

func seededStore(ticker, date string, n int) *state.Store {
	s := state.NewStore(300)
	for i := 0; i < n; i++ {
		s.Update(ticker, model.Bar{
			Ticker:    ticker,
			Timestamp: int64(i) * 60000,
			Date:      date,
			Time:      "09:30:00",
			Open:      100, High: 101, Low: 99, Close: 100,
			Volume: 1000,
			IsRTH:  true,
		})
	}
	return s
}

func lastBar(t *testing.T, s *state.Store, ticker string) model.Bar {
	t.Helper()
	st, ok := s.Get(ticker)
	if !ok || len(st.Bars) == 0 {
		t.Fatal("store has no bars")
	}
	return st.Bars[len(st.Bars)-1]
}

func TestOnBar_EmitsSignal(t *testing.T) {
	store := seededStore("SPY", "2025-01-15", 3)
	reg := pattern.NewRegistry()
	reg.Register(&stubDetector{name: "always", minBars: 1, fire: true})

	sc := New(store, reg, 8)
	sc.OnBar(lastBar(t, store, "SPY"))

	select {
	case sig := <-sc.Signals():
		if sig.Ticker != "SPY" || sig.Pattern != "always" {
			t.Errorf("signal = %+v", sig)
		}
	default:
		t.Fatal("no signal emitted")
	}
}

func TestOnBar_MinBarsGate(t *testing.T) {
	store := seededStore("SPY", "2025-01-15", 3)
	reg := pattern.NewRegistry()
	det := &stubDetector{name: "needs_ten", minBars: 10, fire: true}
	reg.Register(det)

	sc := New(store, reg, 8)
	sc.OnBar(lastBar(t, store, "SPY"))

	if det.scans != 0 {
		t.Errorf("detector scanned %d times below its bar minimum", det.scans)
	}
	if len(sc.Signals()) != 0 {
		t.Error("signal emitted below the bar minimum")
	}
}

func TestOnBar_PanicIsolation(t *testing.T) {
	store := seededStore("SPY", "2025-01-15", 3)
	reg := pattern.NewRegistry()
	bad := &stubDetector{name: "broken", minBars: 1, panics: true}
	good := &stubDetector{name: "healthy", minBars: 1, fire: true}
	reg.Register(bad)
	reg.Register(good)

	sc := New(store, reg, 8)
	sc.OnBar(lastBar(t, store, "SPY"))

	if bad.scans != 1 {
		t.Errorf("panicking detector scanned %d times, want 1", bad.scans)
	}
	select {
	case sig := <-sc.Signals():
		if sig.Pattern != "healthy" {
			t.Errorf("signal = %+v, want the healthy detector's", sig)
		}
	default:
		t.Fatal("panic in one detector suppressed the other")
	}
}

func TestOnBar_SessionDedupe(t *testing.T) {
	store := seededStore("SPY", "2025-01-15", 3)
	reg := pattern.NewRegistry()
	reg.Register(&stubDetector{name: "always", minBars: 1, fire: true})
	sc := New(store, reg, 8)

	bar := lastBar(t, store, "SPY")
	sc.OnBar(bar)
	sc.OnBar(bar)
	if got := len(sc.Signals()); got != 1 {
		t.Fatalf("same session emitted %d signals, want 1", got)
	}
	<-sc.Signals()

	// A different ticker is its own dedupe key.
	store2 := seededStore("QQQ", "2025-01-15", 3)
	sc2 := New(store2, reg, 8)
	sc2.OnBar(lastBar(t, store2, "QQQ"))
	if got := len(sc2.Signals()); got != 1 {
		t.Fatalf("fresh ticker emitted %d signals, want 1", got)
	}

	// The seen set resets when the session date rolls over.
	next := bar
	next.Timestamp += 86400000
	next.Date = "2025-01-16"
	store.Update("SPY", next)
	sc.OnBar(next)
	if got := len(sc.Signals()); got != 1 {
		t.Fatalf("new session emitted %d signals, want 1", got)
	}
}

func TestOnBar_UnknownTickerIgnored(t *testing.T) {
	store := state.NewStore(300)
	reg := pattern.NewRegistry()
	det := &stubDetector{name: "always", minBars: 1, fire: true}
	reg.Register(det)

	sc := New(store, reg, 8)
	sc.OnBar(model.Bar{Ticker: "GHOST", Date: "2025-01-15"})

	if det.scans != 0 {
		t.Error("detector ran for a ticker the store has never seen")
	}
}

func TestOnBar_DisabledDetectorSkipped(t *testing.T) {
	store := seededStore("SPY", "2025-01-15", 3)
	reg := pattern.NewRegistry()
	det := &stubDetector{name: "muted", minBars: 1, fire: true}
	reg.Register(det)
	reg.Disable("muted")

	sc := New(store, reg, 8)
	sc.OnBar(lastBar(t, store, "SPY"))

	if det.scans != 0 || len(sc.Signals()) != 0 {
		t.Error("disabled detector still ran")
	}
}
