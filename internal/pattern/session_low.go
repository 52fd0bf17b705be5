package pattern

import (
	"scanner-systemv1/internal/model"
	"scanner-systemv1/internal/state"
)

// SessionLow signals an intraday breakdown: the current RTH bar prints a low
// strictly below the lowest low of all prior RTH bars of the same session.
//
// Confidence is the clamped sum of three independently capped sub-scores:
// break magnitude (≤30), relative volume vs the 20-bar average (≤30), and
// decline from the session open (≤40).
type SessionLow struct {
	minRTHBars     int
	stopBufferPct  float64 // stop sits this % above the broken level
	targetVWAPFrac float64 // fraction of the gap to VWAP used as target
}

// NewSessionLow creates the detector with reference parameters.
func NewSessionLow() *SessionLow {
	return &SessionLow{
		minRTHBars:     5,
		stopBufferPct:  0.2,
		targetVWAPFrac: 0.5,
	}
}

func (d *SessionLow) Name() string { return "new_session_low" }

func (d *SessionLow) MinBars() int { return d.minRTHBars }

// ShouldScan requires a computed session low and enough RTH bars for the
// current date, with the just-arrived bar inside regular hours.
func (d *SessionLow) ShouldScan(st *state.TickerState) bool {
	n := len(st.Bars)
	if n == 0 || st.Metadata.TodayLow == nil {
		return false
	}
	last := &st.Bars[n-1]
	if !last.IsRTH {
		return false
	}
	return countSessionRTH(st.Bars, last.Date) >= d.minRTHBars
}

func (d *SessionLow) Scan(st *state.TickerState) *model.Signal {
	n := len(st.Bars)
	if n == 0 {
		return nil
	}
	last := &st.Bars[n-1]
	if !last.IsRTH {
		return nil
	}

	// Lowest low of prior RTH bars this session, excluding the trigger bar.
	priorLow := 0.0
	found := false
	for i := 0; i < n-1; i++ {
		b := &st.Bars[i]
		if !b.IsRTH || b.Date != last.Date {
			continue
		}
		if !found || b.Low < priorLow {
			priorLow = b.Low
			found = true
		}
	}
	if !found || last.Low >= priorLow {
		return nil
	}

	breakPct := pctChange(priorLow, last.Low) * -1 // positive % below the level
	breakScore := clamp(breakPct/0.5*30, 0, 30)

	volScore := 0.0
	relVol := 0.0
	if av := st.Indicators.AvgVolume; av != nil && *av > 0 {
		relVol = last.Volume / *av
		volScore = clamp((relVol-1)*15, 0, 30)
	}

	declineScore := 0.0
	declinePct := 0.0
	if op := st.Metadata.TodayOpen; op != nil && *op > 0 {
		declinePct = pctChange(*op, last.Close) * -1
		declineScore = clamp(declinePct/2*40, 0, 40)
	}

	confidence := int(clamp(breakScore+volScore+declineScore, 0, 100))

	entry := last.Close
	stop := priorLow * (1 + d.stopBufferPct/100)
	target := entry
	if vw := st.Indicators.VWAP; vw != nil {
		target = entry + (*vw-entry)*d.targetVWAPFrac
	}

	return &model.Signal{
		Ticker:     st.Ticker,
		Pattern:    d.Name(),
		Timestamp:  last.Timestamp,
		Time:       last.Time,
		Entry:      entry,
		Stop:       stop,
		Target:     target,
		Confidence: confidence,
		Metadata: map[string]any{
			"newSessionLow":      last.Low,
			"priorLow":           priorLow,
			"breakPct":           breakPct,
			"relVolume":          relVol,
			"declineFromOpenPct": declinePct,
		},
	}
}

// countSessionRTH counts RTH bars belonging to the given local date.
func countSessionRTH(bars []model.Bar, date string) int {
	n := 0
	for i := range bars {
		if bars[i].IsRTH && bars[i].Date == date {
			n++
		}
	}
	return n
}
