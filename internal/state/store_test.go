package state

import (
	"fmt"
	"math"
	"testing"

	"scanner-systemv1/internal/model"
)

// bar builds a test bar. Timestamps are arbitrary ms; date/time/RTH are set
// directly because derivation happens at ingest, not in the store.
func bar(ts int64, date, clock string, o, h, l, c, v float64, rth bool) model.Bar {
	return model.Bar{
		Ticker:    "TEST",
		Timestamp: ts,
		Date:      date,
		Time:      clock,
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    v,
		IsRTH:     rth,
	}
}

// flatBar is a minimal all-identical-price RTH bar for window mechanics tests.
func flatBar(ts int64, price, vol float64) model.Bar {
	return bar(ts, "2025-01-15", "10:00:00", price, price, price, price, vol, true)
}

func TestUpdate_BoundedHistory(t *testing.T) {
	s := NewStore(10)
	for i := 0; i < 25; i++ {
		s.Update("XYZ", flatBar(int64(i)*60000, 100, 1000))
	}

	st, ok := s.Get("XYZ")
	if !ok {
		t.Fatal("ticker not found after updates")
	}
	if len(st.Bars) != 10 {
		t.Fatalf("expected 10 retained bars, got %d", len(st.Bars))
	}
	// Retained bars are the most recent ones by timestamp.
	for i, b := range st.Bars {
		want := int64(15+i) * 60000
		if b.Timestamp != want {
			t.Errorf("bar %d: timestamp %d, want %d", i, b.Timestamp, want)
		}
	}
}

func TestUpdate_ReplaceVsAppend(t *testing.T) {
	s := NewStore(100)
	s.Update("XYZ", flatBar(1000, 100, 500))
	s.Update("XYZ", flatBar(2000, 101, 600))

	// Same timestamp as the most recent bar: replace in place.
	revised := flatBar(2000, 102, 900)
	s.Update("XYZ", revised)

	st, _ := s.Get("XYZ")
	if len(st.Bars) != 2 {
		t.Fatalf("replace changed history length: got %d, want 2", len(st.Bars))
	}
	if st.Bars[1].Close != 102 || st.Bars[1].Volume != 900 {
		t.Errorf("most recent bar not replaced: %+v", st.Bars[1])
	}

	// Different timestamp: append.
	s.Update("XYZ", flatBar(3000, 103, 700))
	st, _ = s.Get("XYZ")
	if len(st.Bars) != 3 {
		t.Fatalf("append did not grow history: got %d, want 3", len(st.Bars))
	}
}

func TestIndicators_VWAPIsolation(t *testing.T) {
	mk := func(withExtended bool) *Store {
		s := NewStore(100)
		s.Update("XYZ", bar(1000, "2025-01-15", "09:30:00", 100, 102, 99, 101, 1000, true))
		if withExtended {
			// Extended-hours bar inside the same date must not touch VWAP.
			s.Update("XYZ", bar(2000, "2025-01-15", "16:05:00", 50, 55, 45, 50, 9999, false))
		}
		s.Update("XYZ", bar(3000, "2025-01-15", "09:40:00", 101, 103, 100, 102, 2000, true))
		return s
	}

	st1, _ := mk(false).Get("XYZ")
	st2, _ := mk(true).Get("XYZ")

	if st1.Indicators.VWAP == nil || st2.Indicators.VWAP == nil {
		t.Fatal("expected VWAP present in both runs")
	}
	if math.Abs(*st1.Indicators.VWAP-*st2.Indicators.VWAP) > 1e-9 {
		t.Errorf("extended-hours bar changed VWAP: %.6f vs %.6f",
			*st1.Indicators.VWAP, *st2.Indicators.VWAP)
	}

	// Sanity: VWAP is the volume-weighted mean of typical prices.
	tp1 := (102.0 + 99.0 + 101.0) / 3
	tp2 := (103.0 + 100.0 + 102.0) / 3
	want := (tp1*1000 + tp2*2000) / 3000
	if math.Abs(*st1.Indicators.VWAP-want) > 1e-9 {
		t.Errorf("VWAP = %.6f, want %.6f", *st1.Indicators.VWAP, want)
	}
}

func TestIndicators_RSIBoundary(t *testing.T) {
	s := NewStore(100)

	// 14 bars: not enough for a 14-period RSI (needs 15 closes).
	for i := 0; i < 14; i++ {
		s.Update("XYZ", flatBar(int64(i)*60000, 100+float64(i), 1000))
	}
	st, _ := s.Get("XYZ")
	if st.Indicators.RSI != nil {
		t.Fatalf("RSI should be absent with 14 bars, got %.2f", *st.Indicators.RSI)
	}

	// 15th strictly rising close: zero losses over the window → RSI 100.
	s.Update("XYZ", flatBar(14*60000, 114, 1000))
	st, _ = s.Get("XYZ")
	if st.Indicators.RSI == nil {
		t.Fatal("RSI should be present with 15 bars")
	}
	if *st.Indicators.RSI != 100.0 {
		t.Errorf("RSI = %.4f, want 100 on zero losses", *st.Indicators.RSI)
	}
}

func TestIndicators_RSIBalanced(t *testing.T) {
	s := NewStore(100)
	// Alternating ±1 closes: gains == losses over the window → RSI 50.
	for i := 0; i < 15; i++ {
		price := 100.0
		if i%2 == 1 {
			price = 101.0
		}
		s.Update("XYZ", flatBar(int64(i)*60000, price, 1000))
	}
	st, _ := s.Get("XYZ")
	if st.Indicators.RSI == nil {
		t.Fatal("RSI should be present with 15 bars")
	}
	if math.Abs(*st.Indicators.RSI-50.0) > 1e-9 {
		t.Errorf("RSI = %.4f, want 50 on balanced gains/losses", *st.Indicators.RSI)
	}
}

func TestIndicators_MovingAverages(t *testing.T) {
	s := NewStore(100)
	for i := 0; i < 19; i++ {
		s.Update("XYZ", flatBar(int64(i)*60000, 100, 1000))
	}
	st, _ := s.Get("XYZ")
	if st.Indicators.SMA20 != nil || st.Indicators.AvgVolume != nil {
		t.Error("SMA20/AvgVolume should be absent with 19 bars")
	}

	s.Update("XYZ", flatBar(19*60000, 120, 3000))
	st, _ = s.Get("XYZ")
	if st.Indicators.SMA20 == nil || st.Indicators.AvgVolume == nil {
		t.Fatal("SMA20/AvgVolume should be present with 20 bars")
	}
	wantSMA := (100.0*19 + 120.0) / 20
	if math.Abs(*st.Indicators.SMA20-wantSMA) > 1e-9 {
		t.Errorf("SMA20 = %.4f, want %.4f", *st.Indicators.SMA20, wantSMA)
	}
	wantVol := (1000.0*19 + 3000.0) / 20
	if math.Abs(*st.Indicators.AvgVolume-wantVol) > 1e-9 {
		t.Errorf("AvgVolume = %.2f, want %.2f", *st.Indicators.AvgVolume, wantVol)
	}
	if st.Indicators.SMA50 != nil {
		t.Error("SMA50 should be absent with 20 bars")
	}

	for i := 20; i < 50; i++ {
		s.Update("XYZ", flatBar(int64(i)*60000, 100, 1000))
	}
	st, _ = s.Get("XYZ")
	if st.Indicators.SMA50 == nil {
		t.Error("SMA50 should be present with 50 bars")
	}
}

func TestMetadata_SessionFields(t *testing.T) {
	s := NewStore(100)

	// Prior date: two RTH bars, one after-hours tail bar.
	s.Update("XYZ", bar(1000, "2025-01-14", "15:50:00", 98, 99, 97, 98.5, 1000, true))
	s.Update("XYZ", bar(2000, "2025-01-14", "15:55:00", 98.5, 99.5, 98, 99.0, 1000, true))
	s.Update("XYZ", bar(3000, "2025-01-14", "17:00:00", 99, 100, 98, 99.9, 500, false))

	// Current date: premarket bar then three RTH bars.
	s.Update("XYZ", bar(4000, "2025-01-15", "08:00:00", 97, 97.5, 96, 97, 300, false))
	s.Update("XYZ", bar(5000, "2025-01-15", "09:30:00", 101, 103, 100, 102, 1000, true))
	s.Update("XYZ", bar(6000, "2025-01-15", "09:35:00", 102, 105, 101, 104, 1200, true))
	s.Update("XYZ", bar(7000, "2025-01-15", "09:40:00", 104, 104.5, 99.5, 100, 900, true))

	st, _ := s.Get("XYZ")
	md := st.Metadata

	// prevDayClose is the last RTH close of the prior date, not the
	// after-hours tail.
	if md.PrevDayClose == nil || *md.PrevDayClose != 99.0 {
		t.Errorf("PrevDayClose = %v, want 99.0", fmtPtr(md.PrevDayClose))
	}
	// todayOpen is the first RTH bar's open, skipping premarket.
	if md.TodayOpen == nil || *md.TodayOpen != 101 {
		t.Errorf("TodayOpen = %v, want 101", fmtPtr(md.TodayOpen))
	}
	if md.TodayHigh == nil || *md.TodayHigh != 105 {
		t.Errorf("TodayHigh = %v, want 105", fmtPtr(md.TodayHigh))
	}
	if md.TodayLow == nil || *md.TodayLow != 99.5 {
		t.Errorf("TodayLow = %v, want 99.5", fmtPtr(md.TodayLow))
	}
}

func TestStore_RemoveAndStats(t *testing.T) {
	s := NewStore(100)
	s.Update("AAA", flatBar(1000, 100, 1000))
	s.Update("AAA", flatBar(2000, 100, 1000))
	s.Update("BBB", flatBar(1000, 50, 500))

	if got := len(s.AllTickers()); got != 2 {
		t.Fatalf("AllTickers = %d entries, want 2", got)
	}

	stats := s.MemoryStats()
	if stats.Tickers != 2 || stats.TotalBars != 3 {
		t.Errorf("stats = %+v, want 2 tickers / 3 bars", stats)
	}
	if math.Abs(stats.AvgBarsPerTicker-1.5) > 1e-9 {
		t.Errorf("AvgBarsPerTicker = %.2f, want 1.5", stats.AvgBarsPerTicker)
	}

	s.Remove("AAA")
	if _, ok := s.Get("AAA"); ok {
		t.Error("AAA still present after Remove")
	}
	if _, ok := s.Get("BBB"); !ok {
		t.Error("BBB should survive removal of AAA")
	}
}

func TestGet_SnapshotIsolation(t *testing.T) {
	s := NewStore(100)
	s.Update("XYZ", flatBar(1000, 100, 1000))

	snap, _ := s.Get("XYZ")
	snap.Bars[0].Close = 42 // mutating the snapshot must not leak back

	again, _ := s.Get("XYZ")
	if again.Bars[0].Close != 100 {
		t.Error("snapshot mutation leaked into the store")
	}
}

func fmtPtr(p *float64) string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%.4f", *p)
}
