package flights

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
)

// MockSource names synthetic results.
const MockSource = "mock"

type airline struct {
	name   string
	prefix string
}

var mockAirlines = []airline{
	{"中国国航", "CA"},
	{"东方航空", "MU"},
	{"南方航空", "CZ"},
	{"海南航空", "HU"},
	{"山东航空", "SC"},
	{"厦门航空", "MF"},
	{"深圳航空", "ZH"},
	{"四川航空", "3U"},
}

var mockAircraft = []string{"Boeing 737", "Airbus A320", "Airbus A321", "Boeing 787"}

// MockProvider generates plausible synthetic flights. The same query always
// yields the same flights, so cached and fresh answers agree.
type MockProvider struct {
	now func() time.Time
}

// NewMockProvider creates a synthetic provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{now: time.Now}
}

func (m *MockProvider) Name() string { return MockSource }

func (m *MockProvider) Search(ctx context.Context, from, to, date string) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	from, to, err := ValidateQuery(from, to, date)
	if err != nil {
		return nil, err
	}
	return &SearchResult{
		From:      from,
		To:        to,
		Date:      date,
		Flights:   GenerateFlights(from, to, date),
		Source:    MockSource,
		Mock:      true,
		FetchedAt: m.now(),
	}, nil
}

// GenerateFlights returns 3 to 7 synthetic flights departing between 06:00 and
// 17:59, lasting 60 to 179 minutes, sorted by departure time.
func GenerateFlights(from, to, date string) []Flight {
	h := xxhash.Sum64String(from + "-" + to + "-" + date)
	rng := rand.New(rand.NewPCG(h, h>>1|1))

	n := rng.IntN(5) + 3
	basePrice := rng.IntN(500) + 400
	flights := make([]Flight, 0, n)
	seen := make(map[string]bool, n)

	for len(flights) < n {
		al := mockAirlines[rng.IntN(len(mockAirlines))]
		flightNo := fmt.Sprintf("%s%d", al.prefix, rng.IntN(9000)+1000)
		dep := (rng.IntN(12)+6)*60 + rng.IntN(60)
		duration := rng.IntN(120) + 60
		price := basePrice + rng.IntN(300)
		direct := rng.Float64() > 0.2
		aircraft := mockAircraft[rng.IntN(len(mockAircraft))]
		if seen[flightNo] {
			continue
		}
		seen[flightNo] = true

		flights = append(flights, Flight{
			FlightNo: flightNo,
			Airline:  al.name,
			From:     from,
			To:       to,
			DepTime:  formatClock(dep),
			ArrTime:  formatClock(dep + duration),
			Price:    price,
			IsDirect: direct,
			Aircraft: aircraft,
		})
	}

	sort.SliceStable(flights, func(i, j int) bool { return flights[i].DepTime < flights[j].DepTime })
	return flights
}

func formatClock(minutes int) string {
	minutes %= 24 * 60
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
