package state

import "scanner-systemv1/internal/model"

// Indicator lookbacks. Windowed recomputation is intentionally O(window) per
// update: no accumulator drift, and eviction needs no special casing.
const (
	volumeWindow = 20
	smaShort     = 20
	smaLong      = 50
	rsiPeriod    = 14
)

// computeIndicators recomputes the full indicator snapshot over the retained
// window. Fields stay nil until enough history exists.
func computeIndicators(bars []model.Bar) Indicators {
	var ind Indicators
	n := len(bars)
	if n == 0 {
		return ind
	}

	if n >= volumeWindow {
		sum := 0.0
		for _, b := range bars[n-volumeWindow:] {
			sum += b.Volume
		}
		ind.AvgVolume = ptr(sum / volumeWindow)
	}
	if n >= smaShort {
		ind.SMA20 = ptr(meanClose(bars[n-smaShort:]))
	}
	if n >= smaLong {
		ind.SMA50 = ptr(meanClose(bars[n-smaLong:]))
	}
	if n >= rsiPeriod+1 {
		ind.RSI = ptr(wilderRSI(bars[n-(rsiPeriod+1):]))
	}
	ind.VWAP = sessionVWAP(bars)
	return ind
}

// computeMetadata derives session metadata from RTH bars only. "Today" is the
// exchange-local date of the most recent bar, never the process clock.
func computeMetadata(bars []model.Bar) SessionMetadata {
	var md SessionMetadata
	n := len(bars)
	if n == 0 {
		return md
	}
	today := bars[n-1].Date

	for i := range bars {
		b := &bars[i]
		if !b.IsRTH || b.Date != today {
			continue
		}
		if md.TodayOpen == nil {
			md.TodayOpen = ptr(b.Open)
		}
		if md.TodayHigh == nil || b.High > *md.TodayHigh {
			md.TodayHigh = ptr(b.High)
		}
		if md.TodayLow == nil || b.Low < *md.TodayLow {
			md.TodayLow = ptr(b.Low)
		}
	}

	// Last RTH close of the nearest earlier date that has any RTH bars.
	for i := n - 1; i >= 0; i-- {
		b := &bars[i]
		if b.IsRTH && b.Date != today {
			md.PrevDayClose = ptr(b.Close)
			break
		}
	}
	return md
}

// sessionVWAP computes the volume-weighted average typical price over the
// current date's RTH bars. Extended-hours bars never contribute.
func sessionVWAP(bars []model.Bar) *float64 {
	today := bars[len(bars)-1].Date
	pv, vol := 0.0, 0.0
	for i := range bars {
		b := &bars[i]
		if !b.IsRTH || b.Date != today {
			continue
		}
		pv += b.TypicalPrice() * b.Volume
		vol += b.Volume
	}
	if vol == 0 {
		return nil
	}
	return ptr(pv / vol)
}

// wilderRSI computes a 14-period RSI from exactly period+1 closes, averaging
// gains and losses over the window. Zero summed losses define RSI as 100.
func wilderRSI(window []model.Bar) float64 {
	gains, losses := 0.0, 0.0
	for i := 1; i < len(window); i++ {
		delta := window[i].Close - window[i-1].Close
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if losses == 0 {
		return 100.0
	}
	avgGain := gains / rsiPeriod
	avgLoss := losses / rsiPeriod
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

func meanClose(bars []model.Bar) float64 {
	sum := 0.0
	for _, b := range bars {
		sum += b.Close
	}
	return sum / float64(len(bars))
}

func ptr(v float64) *float64 { return &v }
