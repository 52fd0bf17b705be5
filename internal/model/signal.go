package model

import "encoding/json"

// Signal is a detector's trade-idea output. It is immutable once produced;
// ownership passes to whatever invoked the scan.
type Signal struct {
	Ticker     string         `json:"ticker"`
	Pattern    string         `json:"pattern"`
	Timestamp  int64          `json:"timestamp"` // epoch ms of the triggering bar
	Time       string         `json:"time"`      // exchange-local HH:MM:SS of the triggering bar
	Entry      float64        `json:"entry"`
	Stop       float64        `json:"stop"`
	Target     float64        `json:"target"`
	Confidence int            `json:"confidence"` // 0–100
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// JSON returns the JSON-encoded signal (ignoring errors for hot-path usage).
func (s *Signal) JSON() []byte {
	out, _ := json.Marshal(s)
	return out
}
