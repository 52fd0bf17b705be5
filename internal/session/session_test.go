package session

import (
	"testing"
	"time"
)

// utcMillis builds an epoch-ms timestamp from UTC wall-clock components.
func utcMillis(y int, mo time.Month, d, h, mi int) int64 {
	return time.Date(y, mo, d, h, mi, 0, 0, time.UTC).UnixMilli()
}

func TestDateOf_LocalRollover(t *testing.T) {
	// 01:00 UTC on Jan 16 is still 20:00 on Jan 15 in New York.
	ms := utcMillis(2025, time.January, 16, 1, 0)
	if got := DateOf(ms); got != "2025-01-15" {
		t.Errorf("DateOf = %s, want 2025-01-15", got)
	}
	if got := ClockOf(ms); got != "20:00:00" {
		t.Errorf("ClockOf = %s, want 20:00:00", got)
	}
}

func TestIsRTH_WinterSession(t *testing.T) {
	// EST: 09:30 local == 14:30 UTC. Wednesday 2025-01-15.
	cases := []struct {
		name string
		ms   int64
		want bool
	}{
		{"premarket 09:25", utcMillis(2025, time.January, 15, 14, 25), false},
		{"open 09:30", utcMillis(2025, time.January, 15, 14, 30), true},
		{"midday 12:00", utcMillis(2025, time.January, 15, 17, 0), true},
		{"last minute 15:59", utcMillis(2025, time.January, 15, 20, 59), true},
		{"close 16:00", utcMillis(2025, time.January, 15, 21, 0), false},
		{"afterhours 18:00", utcMillis(2025, time.January, 15, 23, 0), false},
	}
	for _, tc := range cases {
		if got := IsRTH(tc.ms); got != tc.want {
			t.Errorf("%s: IsRTH = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsRTH_SummerDSTOffset(t *testing.T) {
	// EDT: 09:30 local == 13:30 UTC. Tuesday 2025-07-15.
	if !IsRTH(utcMillis(2025, time.July, 15, 13, 30)) {
		t.Error("09:30 EDT should be RTH")
	}
	// 14:30 UTC in July is 10:30 local, still RTH.
	if !IsRTH(utcMillis(2025, time.July, 15, 14, 30)) {
		t.Error("10:30 EDT should be RTH")
	}
	// The winter open offset (14:30 UTC) must not be treated as pre-open
	// in summer; conversely 13:25 UTC (09:25 EDT) is not RTH.
	if IsRTH(utcMillis(2025, time.July, 15, 13, 25)) {
		t.Error("09:25 EDT should not be RTH")
	}
}

func TestIsRTH_Weekend(t *testing.T) {
	// Saturday 2025-01-18, midday local.
	if IsRTH(utcMillis(2025, time.January, 18, 17, 0)) {
		t.Error("Saturday should never be RTH")
	}
}

func TestIsRTH_Holiday(t *testing.T) {
	if nyse == nil {
		t.Skip("exchange calendar unavailable")
	}
	// Independence Day 2025 falls on a Friday; the exchange is closed.
	if IsRTH(utcMillis(2025, time.July, 4, 15, 0)) {
		t.Error("2025-07-04 should not be RTH")
	}
}

func TestIsTradingDay(t *testing.T) {
	wed := time.Date(2025, time.January, 15, 12, 0, 0, 0, NY)
	if !IsTradingDay(wed) {
		t.Error("a regular Wednesday should be a trading day")
	}
	sun := time.Date(2025, time.January, 19, 12, 0, 0, 0, NY)
	if IsTradingDay(sun) {
		t.Error("Sunday should not be a trading day")
	}
}
