package routing

import (
	"strconv"

	"github.com/gilby125/flight-radius/flights"
)

const (
	minutesPerDay = 24 * 60
	// DefaultFlightMinutes stands in for a duration or connection that cannot
	// be computed because a time is missing or malformed.
	DefaultFlightMinutes = 120
)

// ParseClock parses a zero-padded "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, false
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(s[3:])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// wrapDay returns to-from in minutes, adding a day when the result is negative.
func wrapDay(from, to int) int {
	d := to - from
	if d < 0 {
		d += minutesPerDay
	}
	return d
}

// FlightDuration is arrival minus departure, crossing at most one midnight.
func FlightDuration(f flights.Flight) int {
	dep, ok1 := ParseClock(f.DepTime)
	arr, ok2 := ParseClock(f.ArrTime)
	if !ok1 || !ok2 {
		return DefaultFlightMinutes
	}
	return wrapDay(dep, arr)
}

// ConnectionMinutes is the wait between landing on first and departing on
// second, modulo one day.
func ConnectionMinutes(first, second flights.Flight) int {
	arr, ok1 := ParseClock(first.ArrTime)
	dep, ok2 := ParseClock(second.DepTime)
	if !ok1 || !ok2 {
		return DefaultFlightMinutes
	}
	return wrapDay(arr, dep)
}
