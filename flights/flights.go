// Package flights defines the flight data source contract and its
// implementations: a JSON HTTP provider, a synthetic provider, a fallback
// chain and an expiring cache.
package flights

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DateLayout is the wire format of flight dates.
const DateLayout = "2006-01-02"

var (
	// ErrNotConfigured means a provider is missing its credentials.
	ErrNotConfigured = errors.New("provider not configured")
	// ErrUpstream means the data source answered with a failure.
	ErrUpstream = errors.New("upstream error")
	// ErrInvalidQuery means the airport codes or date are malformed.
	ErrInvalidQuery = errors.New("invalid flight query")
)

// Flight is one scheduled flight between two airports. Times are local "HH:MM".
type Flight struct {
	FlightNo string `json:"flightNo"`
	Airline  string `json:"airline"`
	From     string `json:"from"`
	To       string `json:"to"`
	DepTime  string `json:"depTime"`
	ArrTime  string `json:"arrTime"`
	Price    int    `json:"price"`
	IsDirect bool   `json:"isDirect"`
	Aircraft string `json:"aircraft,omitempty"`
}

// SearchResult is a provider's answer for one airport pair and date.
type SearchResult struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Date      string    `json:"date"`
	Flights   []Flight  `json:"flights"`
	Source    string    `json:"source"`
	Cached    bool      `json:"cached"`
	Mock      bool      `json:"mock"`
	FetchedAt time.Time `json:"fetchedAt"`
	// Error is set when the flights are a substitute for a failed lookup.
	Error string `json:"error,omitempty"`
}

// Provider returns the flights between two airports on a date.
// Implementations must honour ctx and be safe for concurrent use.
type Provider interface {
	Name() string
	Search(ctx context.Context, from, to, date string) (*SearchResult, error)
}

// CacheEntry is the stored form of a SearchResult.
type CacheEntry struct {
	Flights   []Flight  `json:"flights"`
	FetchedAt time.Time `json:"fetchedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Mock      bool      `json:"mock"`
	Source    string    `json:"source"`
}

// PairResult is one element of a SearchMany answer. Exactly one of Result and Err is set.
type PairResult struct {
	From   string
	To     string
	Result *SearchResult
	Err    error
}

// SearchMany queries every (from, to) pair, at most concurrency at a time.
// Results follow the enumeration order of froms then tos; a failing pair
// does not affect the others.
func SearchMany(ctx context.Context, p Provider, froms, tos []string, date string, concurrency int) []PairResult {
	results := make([]PairResult, len(froms)*len(tos))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	i := 0
	for _, from := range froms {
		for _, to := range tos {
			slot := &results[i]
			slot.From, slot.To = from, to
			i++
			g.Go(func() error {
				slot.Result, slot.Err = p.Search(gctx, slot.From, slot.To, date)
				if slot.Err != nil {
					slot.Result = nil
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	return results
}

// ValidateQuery normalises and checks a search query.
func ValidateQuery(from, to, date string) (string, string, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if !IsAirportCode(from) || !IsAirportCode(to) {
		return "", "", fmt.Errorf("%w: airport codes %q, %q", ErrInvalidQuery, from, to)
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return "", "", fmt.Errorf("%w: date %q", ErrInvalidQuery, date)
	}
	return from, to, nil
}

// IsAirportCode reports whether code is three upper-case letters or digits.
func IsAirportCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
