package model

import "encoding/json"

// Bar is one OHLCV aggregate for a single ticker. Timestamp is the wire-native
// bar start time in epoch milliseconds and is the ordering key; Date, Time and
// IsRTH are derived in exchange-local time at ingest.
type Bar struct {
	Ticker    string  `json:"ticker"`
	Timestamp int64   `json:"timestamp"` // epoch ms, bar start
	Date      string  `json:"date"`      // exchange-local YYYY-MM-DD
	Time      string  `json:"time"`      // exchange-local HH:MM:SS
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	IsRTH     bool    `json:"is_rth"`
}

// TypicalPrice returns (high+low+close)/3, the per-bar price used for VWAP.
func (b *Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}
