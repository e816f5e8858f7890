package routing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gilby125/flight-radius/flights"
)

// SortKey selects the ranking metric.
type SortKey string

const (
	SortTotalCost   SortKey = "totalCost"
	SortTotalTime   SortKey = "totalTime"
	SortTicketPrice SortKey = "ticketPrice"
	// SortSavings orders by savings against the baseline, largest first.
	SortSavings SortKey = "savings"
)

// ParseSortKey maps a name to a SortKey. Unknown or empty names mean totalCost.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(strings.TrimSpace(s)); k {
	case SortTotalTime, SortTicketPrice, SortSavings:
		return k
	case "price":
		return SortTicketPrice
	default:
		return SortTotalCost
	}
}

// Preferences are optional traveller constraints. Zero values are inactive.
// Clock bounds are inclusive "HH:MM" strings compared lexically.
type Preferences struct {
	DepTimeStart        string  `json:"depTimeStart,omitempty"`
	DepTimeEnd          string  `json:"depTimeEnd,omitempty"`
	ArrTimeStart        string  `json:"arrTimeStart,omitempty"`
	ArrTimeEnd          string  `json:"arrTimeEnd,omitempty"`
	DirectOnly          bool    `json:"directOnly,omitempty"`
	MinPrice            int     `json:"minPrice,omitempty"`
	MaxPrice            int     `json:"maxPrice,omitempty"`
	MaxTransferMinutes  int     `json:"maxTransferTime,omitempty"`
	MaxTransportMinutes int     `json:"maxTransportTime,omitempty"`
	SortBy              SortKey `json:"sortBy,omitempty"`
}

// Validate checks clock formats and that numeric bounds are non-negative and ordered.
func (p Preferences) Validate() error {
	var problems []string
	for name, v := range map[string]string{
		"depTimeStart": p.DepTimeStart,
		"depTimeEnd":   p.DepTimeEnd,
		"arrTimeStart": p.ArrTimeStart,
		"arrTimeEnd":   p.ArrTimeEnd,
	} {
		if v == "" {
			continue
		}
		if _, ok := ParseClock(v); !ok {
			problems = append(problems, fmt.Sprintf("%s must be HH:MM", name))
		}
	}
	if p.MinPrice < 0 || p.MaxPrice < 0 {
		problems = append(problems, "price bounds must not be negative")
	}
	if p.MinPrice > 0 && p.MaxPrice > 0 && p.MinPrice > p.MaxPrice {
		problems = append(problems, "minPrice must not exceed maxPrice")
	}
	if p.MaxTransferMinutes < 0 || p.MaxTransportMinutes < 0 {
		problems = append(problems, "time limits must not be negative")
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return errors.New(strings.Join(problems, "; "))
}

// MatchFlight applies the flight-level predicates.
func (p Preferences) MatchFlight(f flights.Flight) bool {
	return p.matchDeparture(f.DepTime) &&
		p.matchArrival(f.ArrTime) &&
		(!p.DirectOnly || f.IsDirect) &&
		p.matchPrice(f.Price)
}

func (p Preferences) matchDeparture(t string) bool {
	if p.DepTimeStart != "" && t < p.DepTimeStart {
		return false
	}
	return p.DepTimeEnd == "" || t <= p.DepTimeEnd
}

func (p Preferences) matchArrival(t string) bool {
	if p.ArrTimeStart != "" && t < p.ArrTimeStart {
		return false
	}
	return p.ArrTimeEnd == "" || t <= p.ArrTimeEnd
}

func (p Preferences) matchPrice(price int) bool {
	if p.MinPrice > 0 && price < p.MinPrice {
		return false
	}
	return p.MaxPrice == 0 || price <= p.MaxPrice
}

// MatchItinerary applies the predicates to a whole itinerary: departure
// window on the first flight, arrival window on the last, price bounds on the
// ticket total, plus the connection and ground-leg limits.
func (p Preferences) MatchItinerary(it Itinerary) bool {
	if len(it.Segments) == 0 {
		return false
	}
	first := it.Segments[0].Flight
	last := it.Segments[len(it.Segments)-1].Flight

	if !p.matchDeparture(first.DepTime) || !p.matchArrival(last.ArrTime) {
		return false
	}
	if p.DirectOnly && (it.Type != TypeDirect || !first.IsDirect) {
		return false
	}
	if !p.matchPrice(it.TotalCost.Ticket) {
		return false
	}
	if p.MaxTransferMinutes > 0 && it.TransferMinutes > p.MaxTransferMinutes {
		return false
	}
	return p.MaxTransportMinutes == 0 || it.GroundTransport.Time <= p.MaxTransportMinutes
}

// FilterFlights keeps the flights matching every active predicate.
func FilterFlights(fs []flights.Flight, p Preferences) []flights.Flight {
	out := make([]flights.Flight, 0, len(fs))
	for _, f := range fs {
		if p.MatchFlight(f) {
			out = append(out, f)
		}
	}
	return out
}

// FilterItineraries keeps the itineraries matching every active predicate.
func FilterItineraries(its []Itinerary, p Preferences) []Itinerary {
	out := make([]Itinerary, 0, len(its))
	for _, it := range its {
		if p.MatchItinerary(it) {
			out = append(out, it)
		}
	}
	return out
}
