package routing

import (
	"context"
	"sync"
	"testing"

	"github.com/gilby125/flight-radius/catalog"
	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/pkg/geo"
	"github.com/gilby125/flight-radius/transport"
	"github.com/stretchr/testify/require"
)

// fakeProvider answers from fixed tables keyed "FROM-TO".
type fakeProvider struct {
	mu      sync.Mutex
	flights map[string][]flights.Flight
	errs    map[string]error
	block   map[string]bool
	mock    map[string]bool
	calls   []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		flights: make(map[string][]flights.Flight),
		errs:    make(map[string]error),
		block:   make(map[string]bool),
		mock:    make(map[string]bool),
	}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) add(fs ...flights.Flight) {
	for _, f := range fs {
		key := f.From + "-" + f.To
		p.flights[key] = append(p.flights[key], f)
	}
}

func (p *fakeProvider) Search(ctx context.Context, from, to, date string) (*flights.SearchResult, error) {
	key := from + "-" + to
	p.mu.Lock()
	p.calls = append(p.calls, key)
	err, blocked, fs, mock := p.errs[key], p.block[key], p.flights[key], p.mock[key]
	p.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &flights.SearchResult{
		From:    from,
		To:      to,
		Date:    date,
		Flights: append([]flights.Flight(nil), fs...),
		Source:  "fake",
		Mock:    mock,
	}, nil
}

func (p *fakeProvider) called(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.calls {
		if c == key {
			return true
		}
	}
	return false
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func fl(no, from, to, dep, arr string, price int) flights.Flight {
	return flights.Flight{
		FlightNo: no,
		Airline:  "Test Air",
		From:     from,
		To:       to,
		DepTime:  dep,
		ArrTime:  arr,
		Price:    price,
		IsDirect: true,
	}
}

const testDate = "2025-03-01"

// testCatalog: Alpha has a co-located airport AAA and a suburban AAB about
// 33 km north; Bravo (BBB) is about 145 km away; ZZZ serves Zulu; SSS, TTT
// and UUU are stop candidates.
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	airports := []catalog.Airport{
		{Code: "AAA", Name: "Alpha Intl", City: "Alpha", Location: geo.Coordinates{Lat: 30, Lng: 120}, Enabled: true},
		{Code: "AAB", Name: "Alpha North", City: "Alphaville", Location: geo.Coordinates{Lat: 30.3, Lng: 120}, Enabled: true},
		{Code: "BBB", Name: "Bravo", City: "Bravo", Location: geo.Coordinates{Lat: 31, Lng: 121}, Enabled: true},
		{Code: "SSS", Name: "Sierra", City: "Sierra", Location: geo.Coordinates{Lat: 35, Lng: 118}, Enabled: true},
		{Code: "TTT", Name: "Tango", City: "Tango", Location: geo.Coordinates{Lat: 25, Lng: 110}, Enabled: true},
		{Code: "UUU", Name: "Uniform", City: "Uniform", Location: geo.Coordinates{Lat: 36, Lng: 119}, Enabled: true},
		{Code: "XXX", Name: "Closed", City: "Xray", Location: geo.Coordinates{Lat: 33, Lng: 117}, Enabled: false},
		{Code: "ZZZ", Name: "Zulu Intl", City: "Zulu", Location: geo.Coordinates{Lat: 40, Lng: 116}, Enabled: true},
	}
	cities := []catalog.City{
		{Name: "Alpha", Location: geo.Coordinates{Lat: 30, Lng: 120}},
		{Name: "Bravo", Location: geo.Coordinates{Lat: 31, Lng: 121}},
		{Name: "Zulu", Location: geo.Coordinates{Lat: 40, Lng: 116}},
		{Name: "Nowhere", Location: geo.Coordinates{Lat: -40, Lng: -100}},
	}
	cat, err := catalog.New(airports, cities)
	require.NoError(t, err)
	return cat
}

func testLocator(t *testing.T) *catalog.Locator {
	t.Helper()
	return catalog.NewLocator(testCatalog(t), transport.NewEstimator(transport.DefaultModel(), nil, nil), nil, nil)
}

// alphaOrigins returns AAA then AAB.
func alphaOrigins(t *testing.T, loc *catalog.Locator) []catalog.NearbyAirport {
	t.Helper()
	res, err := loc.Nearby(context.Background(), "Alpha", 50)
	require.NoError(t, err)
	require.Len(t, res.Airports, 2)
	return res.Airports
}

func stopsByCode(t *testing.T, cat *catalog.Catalog, codes ...string) []catalog.Airport {
	t.Helper()
	out := make([]catalog.Airport, len(codes))
	for i, c := range codes {
		a, err := cat.ByCode(c)
		require.NoError(t, err)
		out[i] = a
	}
	return out
}
