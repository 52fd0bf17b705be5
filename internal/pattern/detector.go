// Package pattern provides the detector contract, the registry of known
// detectors, and the concrete pattern implementations.
//
// A Detector inspects one ticker's state snapshot and may emit at most one
// signal. Scan must be a pure function of the supplied snapshot so detectors
// can run concurrently across tickers.
package pattern

import (
	"scanner-systemv1/internal/model"
	"scanner-systemv1/internal/state"
)

// Detector is the interface all concrete patterns implement.
type Detector interface {
	// Name returns the unique pattern name.
	Name() string

	// MinBars is the minimum history length worth scanning at all.
	MinBars() int

	// ShouldScan is a cheap pre-filter run before Scan.
	ShouldScan(st *state.TickerState) bool

	// Scan evaluates the snapshot and returns a signal, or nil to skip.
	Scan(st *state.TickerState) *model.Signal
}
