package stream

import (
	"encoding/json"
	"fmt"

	"scanner-systemv1/internal/model"
	"scanner-systemv1/internal/session"
)

// Upstream status values carried in ev:"status" frames.
const (
	statusConnected   = "connected"
	statusAuthSuccess = "auth_success"
	statusAuthFailed  = "auth_failed"
)

// actionFrame is a client → upstream control frame.
type actionFrame struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// event is one upstream → client event. Numeric fields are pointers so a
// missing field is distinguishable from a zero value when validating
// aggregate events.
type event struct {
	Ev      string `json:"ev"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`

	Sym string   `json:"sym,omitempty"`
	S   *int64   `json:"s,omitempty"` // bar start, epoch ms
	O   *float64 `json:"o,omitempty"`
	H   *float64 `json:"h,omitempty"`
	L   *float64 `json:"l,omitempty"`
	C   *float64 `json:"c,omitempty"`
	V   *float64 `json:"v,omitempty"`
}

// parseFrame decodes one inbound message into its events. The upstream sends
// JSON arrays; a bare object is tolerated and treated as a one-event batch.
func parseFrame(data []byte) ([]event, error) {
	var events []event
	if err := json.Unmarshal(data, &events); err == nil {
		return events, nil
	}
	var single event
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("stream: malformed frame: %w", err)
	}
	return []event{single}, nil
}

// normalizeAggregate converts a bar-aggregate event into the canonical Bar,
// deriving date/time/RTH in exchange-local terms. Returns false if any
// required field is absent; the caller drops that one event.
func normalizeAggregate(ev event) (model.Bar, bool) {
	if ev.Sym == "" || ev.S == nil || ev.O == nil || ev.H == nil || ev.L == nil || ev.C == nil || ev.V == nil {
		return model.Bar{}, false
	}
	ts := *ev.S
	return model.Bar{
		Ticker:    ev.Sym,
		Timestamp: ts,
		Date:      session.DateOf(ts),
		Time:      session.ClockOf(ts),
		Open:      *ev.O,
		High:      *ev.H,
		Low:       *ev.L,
		Close:     *ev.C,
		Volume:    *ev.V,
		IsRTH:     session.IsRTH(ts),
	}, true
}
