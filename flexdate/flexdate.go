// Package flexdate scans a single airport pair across many dates: a window
// around a date, a fixed range, a month calendar and cheaper-day deals.
package flexdate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/pkg/logger"
	"github.com/gilby125/flight-radius/routing"
	"golang.org/x/sync/errgroup"
)

// MaxRangeDays caps the number of dates one scan may query.
const MaxRangeDays = 62

// Calendar day statuses.
const (
	StatusPast      = "past"
	StatusAvailable = "available"
	StatusNoFlight  = "no_flight"
)

// ErrInvalidRange covers malformed dates, inverted ranges and ranges over MaxRangeDays.
var ErrInvalidRange = errors.New("invalid date range")

// DaySummary is the price picture of one date. Prices are nil when the date
// has no matching flights.
type DaySummary struct {
	Date           string          `json:"date"`
	Weekday        string          `json:"weekday"`
	MinPrice       *int            `json:"minPrice"`
	AvgPrice       *int            `json:"avgPrice"`
	MaxPrice       *int            `json:"maxPrice"`
	FlightCount    int             `json:"flightCount"`
	CheapestFlight *flights.Flight `json:"cheapestFlight,omitempty"`
	Mock           bool            `json:"mock"`
	Cached         bool            `json:"cached"`
	Error          string          `json:"error,omitempty"`
}

// ScanResult lists days cheapest first; unpriced days follow in date order.
type ScanResult struct {
	From    string       `json:"from"`
	To      string       `json:"to"`
	Days    []DaySummary `json:"days"`
	BestDay *DaySummary  `json:"bestDay"`
}

// CalendarDay is one cell of a month calendar.
type CalendarDay struct {
	Date        string `json:"date"`
	Day         int    `json:"day"`
	Weekday     string `json:"weekday"`
	Status      string `json:"status"`
	MinPrice    *int   `json:"minPrice"`
	FlightCount int    `json:"flightCount"`
	Mock        bool   `json:"mock,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Calendar is a month of CalendarDays in date order.
type Calendar struct {
	From        string        `json:"from"`
	To          string        `json:"to"`
	Year        int           `json:"year"`
	Month       int           `json:"month"`
	Days        []CalendarDay `json:"days"`
	LowestPrice *int          `json:"lowestPrice"`
	LowestDate  string        `json:"lowestDate,omitempty"`
}

// SpecialPrice is a date cheaper than the reference date.
type SpecialPrice struct {
	Date           string         `json:"date"`
	Weekday        string         `json:"weekday"`
	MinPrice       int            `json:"minPrice"`
	Savings        int            `json:"savings"`
	CheapestFlight flights.Flight `json:"cheapestFlight"`
}

// SpecialResult holds the deals around Date. ReferencePrice is nil when the
// reference date itself has no flights, and Deals is then empty.
type SpecialResult struct {
	From           string         `json:"from"`
	To             string         `json:"to"`
	Date           string         `json:"date"`
	ReferencePrice *int           `json:"referencePrice"`
	MinSavings     int            `json:"minSavings"`
	Deals          []SpecialPrice `json:"deals"`
}

// Scanner fans a flight provider out over dates.
type Scanner struct {
	provider    flights.Provider
	concurrency int
	now         func() time.Time
	log         *logger.Logger
}

// NewScanner creates a Scanner querying at most concurrency dates at once.
func NewScanner(p flights.Provider, concurrency int, log *logger.Logger) *Scanner {
	if concurrency <= 0 {
		concurrency = 4
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Scanner{provider: p, concurrency: concurrency, now: time.Now, log: log.WithField("component", "flexdate")}
}

// WithClock replaces the clock that decides which calendar days are past.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

func parseDate(v string) (time.Time, error) {
	t, err := time.Parse(flights.DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidRange, v)
	}
	return t, nil
}

func dateSpan(start, end time.Time) ([]time.Time, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange,
			end.Format(flights.DateLayout), start.Format(flights.DateLayout))
	}
	n := int(end.Sub(start).Hours()/24) + 1
	if n > MaxRangeDays {
		return nil, fmt.Errorf("%w: %d days exceeds the %d day limit", ErrInvalidRange, n, MaxRangeDays)
	}
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out, nil
}

// ScanDates scans [center-daysBefore, center+daysAfter].
func (s *Scanner) ScanDates(ctx context.Context, from, to, center string, daysBefore, daysAfter int, prefs routing.Preferences) (*ScanResult, error) {
	if daysBefore < 0 || daysAfter < 0 {
		return nil, fmt.Errorf("%w: day offsets must not be negative", ErrInvalidRange)
	}
	c, err := parseDate(center)
	if err != nil {
		return nil, err
	}
	return s.scanSpan(ctx, from, to, c.AddDate(0, 0, -daysBefore), c.AddDate(0, 0, daysAfter), prefs)
}

// ScanRange scans every date from start to end inclusive.
func (s *Scanner) ScanRange(ctx context.Context, from, to, start, end string, prefs routing.Preferences) (*ScanResult, error) {
	st, err := parseDate(start)
	if err != nil {
		return nil, err
	}
	en, err := parseDate(end)
	if err != nil {
		return nil, err
	}
	return s.scanSpan(ctx, from, to, st, en, prefs)
}

func (s *Scanner) scanSpan(ctx context.Context, from, to string, start, end time.Time, prefs routing.Preferences) (*ScanResult, error) {
	from, to, err := flights.ValidateQuery(from, to, start.Format(flights.DateLayout))
	if err != nil {
		return nil, err
	}
	if err := prefs.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", flights.ErrInvalidQuery, err)
	}
	dates, err := dateSpan(start, end)
	if err != nil {
		return nil, err
	}

	days := s.summarize(ctx, from, to, dates, prefs)
	SortDays(days)

	res := &ScanResult{From: from, To: to, Days: days}
	if len(days) > 0 && days[0].MinPrice != nil {
		best := days[0]
		res.BestDay = &best
	}
	return res, nil
}

// summarize queries every date and returns the summaries in date order.
func (s *Scanner) summarize(ctx context.Context, from, to string, dates []time.Time, prefs routing.Preferences) []DaySummary {
	days := make([]DaySummary, len(dates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, d := range dates {
		g.Go(func() error {
			days[i] = s.day(gctx, from, to, d, prefs)
			return nil
		})
	}
	_ = g.Wait()
	return days
}

func (s *Scanner) day(ctx context.Context, from, to string, d time.Time, prefs routing.Preferences) DaySummary {
	date := d.Format(flights.DateLayout)
	sum := DaySummary{Date: date, Weekday: d.Weekday().String()}

	res, err := s.provider.Search(ctx, from, to, date)
	if err != nil {
		s.log.WithContext(ctx).Warn("Date scan query failed", "from", from, "to", to, "date", date, "error", err)
		sum.Error = err.Error()
		return sum
	}
	sum.Mock = res.Mock
	sum.Cached = res.Cached

	fs := routing.FilterFlights(res.Flights, prefs)
	sum.FlightCount = len(fs)
	if len(fs) == 0 {
		return sum
	}

	cheapest := fs[0]
	lo, hi, total := fs[0].Price, fs[0].Price, 0
	for _, f := range fs {
		total += f.Price
		if f.Price < lo {
			lo, cheapest = f.Price, f
		}
		if f.Price > hi {
			hi = f.Price
		}
	}
	avg := int(math.Round(float64(total) / float64(len(fs))))
	sum.MinPrice, sum.AvgPrice, sum.MaxPrice = &lo, &avg, &hi
	sum.CheapestFlight = &cheapest
	return sum
}

// SortDays orders days by minimum price ascending, days without a price
// last, ties by date.
func SortDays(days []DaySummary) {
	sort.SliceStable(days, func(i, j int) bool {
		a, b := days[i].MinPrice, days[j].MinPrice
		switch {
		case a == nil && b == nil:
			return days[i].Date < days[j].Date
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a < *b
		default:
			return days[i].Date < days[j].Date
		}
	})
}

// Calendar scans a whole month. Days before today are marked past and not queried.
func (s *Scanner) Calendar(ctx context.Context, from, to string, year, month int) (*Calendar, error) {
	if month < 1 || month > 12 || year < 1 {
		return nil, fmt.Errorf("%w: month %d-%02d", ErrInvalidRange, year, month)
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	from, to, err := flights.ValidateQuery(from, to, first.Format(flights.DateLayout))
	if err != nil {
		return nil, err
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	var queried []time.Time
	cal := &Calendar{From: from, To: to, Year: year, Month: month}
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		cal.Days = append(cal.Days, CalendarDay{
			Date:    d.Format(flights.DateLayout),
			Day:     d.Day(),
			Weekday: d.Weekday().String(),
			Status:  StatusPast,
		})
		if !d.Before(today) {
			queried = append(queried, d)
		}
	}

	offset := len(cal.Days) - len(queried)
	for i, sum := range s.summarize(ctx, from, to, queried, routing.Preferences{}) {
		day := &cal.Days[offset+i]
		day.MinPrice = sum.MinPrice
		day.FlightCount = sum.FlightCount
		day.Mock = sum.Mock
		day.Error = sum.Error
		day.Status = StatusNoFlight
		if sum.MinPrice != nil {
			day.Status = StatusAvailable
			if cal.LowestPrice == nil || *sum.MinPrice < *cal.LowestPrice {
				cal.LowestPrice = sum.MinPrice
				cal.LowestDate = sum.Date
			}
		}
	}
	return cal, nil
}

// SpecialPrices finds the dates around date whose cheapest flight beats the
// cheapest flight on date by more than zero and at least minSavings.
// Deals are ordered by savings descending, then price, then date.
func (s *Scanner) SpecialPrices(ctx context.Context, from, to, date string, daysBefore, daysAfter, minSavings int) (*SpecialResult, error) {
	if minSavings < 0 {
		return nil, fmt.Errorf("%w: minimum savings must not be negative", ErrInvalidRange)
	}
	scan, err := s.ScanDates(ctx, from, to, date, daysBefore, daysAfter, routing.Preferences{})
	if err != nil {
		return nil, err
	}

	res := &SpecialResult{From: scan.From, To: scan.To, Date: date, MinSavings: minSavings, Deals: []SpecialPrice{}}
	for _, d := range scan.Days {
		if d.Date == date {
			res.ReferencePrice = d.MinPrice
		}
	}
	if res.ReferencePrice == nil {
		return res, nil
	}

	ref := *res.ReferencePrice
	for _, d := range scan.Days {
		if d.Date == date || d.MinPrice == nil {
			continue
		}
		saving := ref - *d.MinPrice
		if saving <= 0 || saving < minSavings {
			continue
		}
		res.Deals = append(res.Deals, SpecialPrice{
			Date:           d.Date,
			Weekday:        d.Weekday,
			MinPrice:       *d.MinPrice,
			Savings:        saving,
			CheapestFlight: *d.CheapestFlight,
		})
	}
	sort.SliceStable(res.Deals, func(i, j int) bool {
		a, b := res.Deals[i], res.Deals[j]
		if a.Savings != b.Savings {
			return a.Savings > b.Savings
		}
		if a.MinPrice != b.MinPrice {
			return a.MinPrice < b.MinPrice
		}
		return a.Date < b.Date
	})
	return res, nil
}
