package utils

import (
	"fmt"
	"strings"
	"time"
)

// MSK is the Moscow time location (UTC+3), the exchange's calendar.
var MSK *time.Location

func init() {
	var err error
	MSK, err = time.LoadLocation("Europe/Moscow")
	if err != nil {
		// Fallback: create fixed zone if tz database is not available
		MSK = time.FixedZone("MSK", 3*60*60)
	}
}

// NowMSK returns the current time in Moscow.
func NowMSK() time.Time {
	return time.Now().In(MSK)
}

// Day truncates t to its calendar date, expressed as a UTC midnight.
// All series dates in the system use this representation.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current Moscow calendar date as a UTC midnight.
func Today() time.Time {
	return Day(NowMSK())
}

// AddDays shifts a day by n calendar days.
func AddDays(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, n)
}

// ParseDate parses a "2006-01-02" string into a UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats a day as "2006-01-02".
func FormatDate(d time.Time) string {
	return d.Format(time.DateOnly)
}

// QuarterOf returns the calendar year and quarter (1-4) of d.
func QuarterOf(d time.Time) (year, quarter int) {
	return d.Year(), (int(d.Month())-1)/3 + 1
}

// MarketOpenTime returns the MOEX main session opening time (10:00 MSK) for a given date.
func MarketOpenTime(date time.Time) time.Time {
	d := date.In(MSK)
	return time.Date(d.Year(), d.Month(), d.Day(), 10, 0, 0, 0, MSK)
}

// MarketCloseTime returns the MOEX main session closing time (18:40 MSK) for a given date.
func MarketCloseTime(date time.Time) time.Time {
	d := date.In(MSK)
	return time.Date(d.Year(), d.Month(), d.Day(), 18, 40, 0, 0, MSK)
}

// IsWeekend reports whether t falls on a Saturday or Sunday in Moscow.
func IsWeekend(t time.Time) bool {
	wd := t.In(MSK).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsMarketOpenAt checks if the main session would be open at the given time.
// Exchange holidays are not modelled; a holiday simply has no candles.
func IsMarketOpenAt(t time.Time) bool {
	if IsWeekend(t) {
		return false
	}
	return !t.Before(MarketOpenTime(t)) && !t.After(MarketCloseTime(t))
}

// MarketStatus returns the current market status string.
func MarketStatus() string {
	now := NowMSK()
	switch {
	case IsWeekend(now):
		return "CLOSED (Weekend)"
	case now.Before(MarketOpenTime(now)):
		return "PRE-MARKET"
	case IsMarketOpenAt(now):
		return "OPEN"
	default:
		return "CLOSED"
	}
}

// FormatDateTimeMSK formats a time.Time to "2006-01-02 15:04:05 MSK".
func FormatDateTimeMSK(t time.Time) string {
	return t.In(MSK).Format("2006-01-02 15:04:05 MSK")
}
