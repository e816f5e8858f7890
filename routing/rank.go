package routing

import (
	"sort"

	"github.com/gilby125/flight-radius/catalog"
)

// Rank returns a copy of its sorted ascending by the chosen metric. The sort
// is stable, so equal itineraries keep their collection order.
func Rank(its []Itinerary, by SortKey) []Itinerary {
	out := append([]Itinerary(nil), its...)
	var metric func(Itinerary) int
	switch ParseSortKey(string(by)) {
	case SortTotalTime:
		metric = func(it Itinerary) int { return it.TotalTime }
	case SortTicketPrice:
		metric = func(it Itinerary) int { return it.TotalCost.Ticket }
	default:
		// Savings share one baseline total, so largest savings is lowest total.
		metric = func(it Itinerary) int { return it.TotalCost.Total }
	}
	sort.SliceStable(out, func(i, j int) bool { return metric(out[i]) < metric(out[j]) })
	return out
}

// Dedupe drops later copies of an itinerary, keeping the best-ranked one.
func Dedupe(sorted []Itinerary) []Itinerary {
	seen := make(map[string]bool, len(sorted))
	out := make([]Itinerary, 0, len(sorted))
	for _, it := range sorted {
		key := it.DedupeKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

// ComputeBaseline picks the reference itinerary: the first direct itinerary
// departing from an airport in originCity, else the first itinerary, else nil.
func ComputeBaseline(sorted []Itinerary, originCity string) *Itinerary {
	if len(sorted) == 0 {
		return nil
	}
	if city := catalog.NormalizeName(originCity); city != "" {
		for i := range sorted {
			it := sorted[i]
			if it.Type == TypeDirect && catalog.NormalizeName(it.DepartureAirport.City) == city {
				return &it
			}
		}
	}
	first := sorted[0]
	return &first
}

// AnnotateSavings sets Savings = baseline total - itinerary total on every
// itinerary. With more than one origin city, or no baseline, nothing is set.
func AnnotateSavings(sorted []Itinerary, baseline *Itinerary, originCityCount int) {
	if baseline == nil || originCityCount > 1 {
		return
	}
	for i := range sorted {
		s := baseline.TotalCost.Total - sorted[i].TotalCost.Total
		sorted[i].Savings = &s
	}
}

// BaselineSummary describes the baseline in a result.
type BaselineSummary struct {
	ItineraryID string        `json:"itineraryId"`
	Type        ItineraryType `json:"type"`
	Airport     string        `json:"airport"`
	City        string        `json:"city"`
	Price       int           `json:"price"`
	Total       int           `json:"total"`
}

// Summarize returns nil for a nil baseline.
func Summarize(baseline *Itinerary) *BaselineSummary {
	if baseline == nil {
		return nil
	}
	return &BaselineSummary{
		ItineraryID: baseline.ID,
		Type:        baseline.Type,
		Airport:     baseline.DepartureAirport.Code,
		City:        baseline.DepartureAirport.City,
		Price:       baseline.TotalCost.Ticket,
		Total:       baseline.TotalCost.Total,
	}
}

// Comparison highlights notable itineraries of a ranked list.
type Comparison struct {
	Best       *Itinerary `json:"best"`
	Cheapest   *Itinerary `json:"cheapest"`
	Fastest    *Itinerary `json:"fastest"`
	BestDirect *Itinerary `json:"directOnly"`
}

// Compare picks the first-ranked itinerary, the lowest ticket total, the
// shortest total time and the lowest-total direct itinerary. Ties go to the
// earlier itinerary in sorted.
func Compare(sorted []Itinerary) Comparison {
	var c Comparison
	for i := range sorted {
		it := sorted[i]
		if c.Best == nil {
			c.Best = &it
		}
		if c.Cheapest == nil || it.TotalCost.Ticket < c.Cheapest.TotalCost.Ticket {
			c.Cheapest = &it
		}
		if c.Fastest == nil || it.TotalTime < c.Fastest.TotalTime {
			c.Fastest = &it
		}
		if it.Type == TypeDirect && (c.BestDirect == nil || it.TotalCost.Total < c.BestDirect.TotalCost.Total) {
			c.BestDirect = &it
		}
	}
	return c
}
