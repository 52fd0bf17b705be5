// Package session maps wire timestamps (epoch milliseconds, UTC) to
// exchange-local calendar dates, clock times and a regular-trading-hours
// classification for US equities. DST transitions are handled by the IANA
// tz database; weekends and NYSE holidays by the exchange calendar.
package session

import (
	"log/slog"
	"time"

	"github.com/scmhub/calendar"
)

// Market hours in exchange-local time (NYSE regular session).
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0
)

// NY is the exchange-local location. Falls back to a fixed EST offset if the
// tz database is unavailable, which loses DST correctness but keeps running.
var NY *time.Location

// nyse is the NYSE trading calendar (nil if the MIC lookup fails; weekday
// fallback applies then, same as the plain Mon–Fri check).
var nyse *calendar.Calendar

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		slog.Warn("[session] tz database unavailable, using fixed EST offset", "err", err)
		loc = time.FixedZone("EST", -5*3600)
	}
	NY = loc

	nyse = calendar.GetCalendar("xnys")
	if nyse == nil {
		slog.Warn("[session] NYSE calendar unavailable, holidays will not be recognized")
	}
}

// LocalTime converts an epoch-millisecond timestamp to exchange-local time.
func LocalTime(ms int64) time.Time {
	return time.Unix(0, ms*int64(time.Millisecond)).In(NY)
}

// DateOf returns the exchange-local calendar date (YYYY-MM-DD) for ms.
func DateOf(ms int64) string {
	return LocalTime(ms).Format("2006-01-02")
}

// ClockOf returns the exchange-local clock time (HH:MM:SS) for ms.
func ClockOf(ms int64) string {
	return LocalTime(ms).Format("15:04:05")
}

// IsTradingDay reports whether t falls on an exchange business day.
func IsTradingDay(t time.Time) bool {
	local := t.In(NY)
	if nyse != nil {
		return nyse.IsBusinessDay(local)
	}
	wd := local.Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsRTH reports whether ms falls within the exchange's regular trading
// session (09:30–16:00 local) on a trading day. Extended-hours moments and
// weekends/holidays classify as false.
func IsRTH(ms int64) bool {
	local := LocalTime(ms)
	if !IsTradingDay(local) {
		return false
	}
	hm := local.Hour()*60 + local.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}
