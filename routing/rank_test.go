package routing

import (
	"testing"

	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itin(id string, typ ItineraryType, depCode, depCity string, total, ticket, minutes int) Itinerary {
	return Itinerary{
		ID:               id,
		Type:             typ,
		Segments:         []Segment{{Flight: fl(id, depCode, "ZZZ", "08:00", "10:00", ticket)}},
		DepartureAirport: AirportRef{Code: depCode, City: depCity},
		ArrivalAirport:   AirportRef{Code: "ZZZ"},
		TotalCost:        CostBreakdown{Ticket: ticket, Total: total},
		TotalTime:        minutes,
	}
}

func ids(its []Itinerary) []string {
	out := make([]string, len(its))
	for i, it := range its {
		out[i] = it.ID
	}
	return out
}

func sample() []Itinerary {
	return []Itinerary{
		itin("a", TypeDirect, "AAB", "Alphaville", 900, 700, 200),
		itin("b", TypeOneStop, "AAA", "Alpha", 700, 600, 400),
		itin("c", TypeDirect, "AAA", "Alpha", 800, 750, 120),
		itin("d", TypeDirect, "AAB", "Alphaville", 700, 550, 300),
	}
}

func TestRank_Keys(t *testing.T) {
	its := sample()
	assert.Equal(t, []string{"b", "d", "c", "a"}, ids(Rank(its, SortTotalCost)))
	assert.Equal(t, []string{"c", "a", "d", "b"}, ids(Rank(its, SortTotalTime)))
	assert.Equal(t, []string{"d", "b", "a", "c"}, ids(Rank(its, SortTicketPrice)))
	assert.Equal(t, []string{"b", "d", "c", "a"}, ids(Rank(its, "cheapestEver")), "unknown keys fall back to totalCost")
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(its), "input is not reordered")
}

func TestRank_Monotonic(t *testing.T) {
	ranked := Rank(sample(), SortTotalCost)
	for i := 0; i+1 < len(ranked); i++ {
		assert.LessOrEqual(t, ranked[i].TotalCost.Total, ranked[i+1].TotalCost.Total)
	}
}

func TestParseSortKey(t *testing.T) {
	assert.Equal(t, SortTicketPrice, ParseSortKey("price"))
	assert.Equal(t, SortTotalTime, ParseSortKey(" totalTime "))
	assert.Equal(t, SortTotalCost, ParseSortKey(""))
	assert.Equal(t, SortSavings, ParseSortKey("savings"))
}

func TestRank_SavingsDescending(t *testing.T) {
	ranked := Rank(sample(), SortSavings)
	baseline := ComputeBaseline(ranked, "Alpha")
	require.NotNil(t, baseline)
	AnnotateSavings(ranked, baseline, 1)
	for i := 0; i+1 < len(ranked); i++ {
		require.NotNil(t, ranked[i].Savings)
		assert.GreaterOrEqual(t, *ranked[i].Savings, *ranked[i+1].Savings)
	}
}

func TestDedupe_KeepsFirst(t *testing.T) {
	a := itin("x", TypeDirect, "AAA", "Alpha", 500, 400, 100)
	b := a
	b.TotalCost.Total = 900
	other := itin("y", TypeDirect, "AAB", "Alpha", 600, 400, 100)

	out := Dedupe([]Itinerary{a, other, b})
	require.Len(t, out, 2)
	assert.Equal(t, 500, out[0].TotalCost.Total)
}

func TestComputeBaseline(t *testing.T) {
	ranked := Rank(sample(), SortTotalCost)

	base := ComputeBaseline(ranked, "Alpha")
	require.NotNil(t, base)
	assert.Equal(t, "c", base.ID, "first direct itinerary from the origin city")

	base = ComputeBaseline(ranked, "alpha")
	require.NotNil(t, base)
	assert.Equal(t, "c", base.ID, "city names compare normalised")

	base = ComputeBaseline(ranked, "Elsewhere")
	require.NotNil(t, base)
	assert.Equal(t, "b", base.ID)

	assert.Nil(t, ComputeBaseline(nil, "Alpha"))
}

func TestAnnotateSavings_SignedDifference(t *testing.T) {
	ranked := Rank(sample(), SortTotalCost)
	base := ComputeBaseline(ranked, "Alpha")
	AnnotateSavings(ranked, base, 1)

	for _, it := range ranked {
		require.NotNil(t, it.Savings)
		assert.Equal(t, base.TotalCost.Total-it.TotalCost.Total, *it.Savings)
		if it.ID == base.ID {
			assert.Equal(t, 0, *it.Savings)
		}
	}
	assert.Equal(t, -100, *ranked[3].Savings, "worse itineraries have negative savings")
}

func TestAnnotateSavings_SkippedForSeveralCities(t *testing.T) {
	ranked := Rank(sample(), SortTotalCost)
	AnnotateSavings(ranked, ComputeBaseline(ranked, "Alpha"), 2)
	for _, it := range ranked {
		assert.Nil(t, it.Savings)
	}

	AnnotateSavings(ranked, nil, 1)
	for _, it := range ranked {
		assert.Nil(t, it.Savings)
	}
}

func TestSummarize(t *testing.T) {
	assert.Nil(t, Summarize(nil))
	base := itin("c", TypeDirect, "AAA", "Alpha", 800, 750, 120)
	assert.Equal(t, &BaselineSummary{ItineraryID: "c", Type: TypeDirect, Airport: "AAA", City: "Alpha", Price: 750, Total: 800}, Summarize(&base))
}

func TestCompare(t *testing.T) {
	ranked := Rank(sample(), SortTotalCost)
	c := Compare(ranked)
	assert.Equal(t, "b", c.Best.ID)
	assert.Equal(t, "d", c.Cheapest.ID)
	assert.Equal(t, "c", c.Fastest.ID)
	assert.Equal(t, "d", c.BestDirect.ID)

	empty := Compare(nil)
	assert.Nil(t, empty.Best)
	assert.Nil(t, empty.BestDirect)
}

func TestFilterItineraries(t *testing.T) {
	direct := itin("d", TypeDirect, "AAA", "Alpha", 600, 500, 120)
	direct.GroundTransport = transport.GroundTransport{Type: transport.ModeCar, Time: 90}
	oneStop := Itinerary{
		ID:   "o",
		Type: TypeOneStop,
		Segments: []Segment{
			{Flight: fl("F1", "AAA", "SSS", "06:00", "08:00", 200)},
			{Flight: fl("F2", "SSS", "ZZZ", "09:30", "11:00", 150), TransferMinutes: 90},
		},
		TotalCost:       CostBreakdown{Ticket: 350},
		TransferMinutes: 90,
	}
	its := []Itinerary{direct, oneStop}

	tests := []struct {
		name  string
		prefs Preferences
		want  []string
	}{
		{"no preferences", Preferences{}, []string{"d", "o"}},
		{"direct only", Preferences{DirectOnly: true}, []string{"d"}},
		{"departure window on first flight", Preferences{DepTimeStart: "07:00"}, []string{"d"}},
		{"arrival window on last flight", Preferences{ArrTimeStart: "10:30"}, []string{"o"}},
		{"inclusive bounds", Preferences{DepTimeStart: "06:00", DepTimeEnd: "08:00"}, []string{"d", "o"}},
		{"max price on ticket total", Preferences{MaxPrice: 400}, []string{"o"}},
		{"min price", Preferences{MinPrice: 400}, []string{"d"}},
		{"max transfer", Preferences{MaxTransferMinutes: 60}, []string{"d"}},
		{"max ground leg", Preferences{MaxTransportMinutes: 60}, []string{"o"}},
		{"all predicates", Preferences{MaxPrice: 400, DirectOnly: true}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(FilterItineraries(its, tt.prefs)))
		})
	}
}

func TestFilterFlights(t *testing.T) {
	connecting := fl("C1", "AAA", "ZZZ", "07:00", "12:00", 300)
	connecting.IsDirect = false
	fs := []flights.Flight{fl("D1", "AAA", "ZZZ", "06:00", "08:00", 500), connecting}

	direct := FilterFlights(fs, Preferences{DirectOnly: true})
	require.Len(t, direct, 1)
	assert.Equal(t, "D1", direct[0].FlightNo)

	cheap := FilterFlights(fs, Preferences{MaxPrice: 300, ArrTimeEnd: "12:00"})
	require.Len(t, cheap, 1)
	assert.Equal(t, "C1", cheap[0].FlightNo)
}

func TestPreferences_Validate(t *testing.T) {
	assert.NoError(t, Preferences{}.Validate())
	assert.NoError(t, Preferences{DepTimeStart: "06:00", MaxPrice: 900}.Validate())

	err := Preferences{DepTimeStart: "6am", MinPrice: 900, MaxPrice: 100}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depTimeStart must be HH:MM")
	assert.Contains(t, err.Error(), "minPrice must not exceed maxPrice")
}
