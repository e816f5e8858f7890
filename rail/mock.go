package rail

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gilby125/flight-radius/pkg/geo"
)

// MockSource names synthetic timetables.
const MockSource = "mock"

const (
	mockTrainsPerPair = 8
	minFare           = 50
)

// MockProvider generates a plausible timetable from station distances and
// the catalog's train types. The same query always yields the same trains.
type MockProvider struct {
	catalog *Catalog
}

// NewMockProvider creates a synthetic provider over cat.
func NewMockProvider(cat *Catalog) *MockProvider {
	return &MockProvider{catalog: cat}
}

func (m *MockProvider) Name() string { return MockSource }

func (m *MockProvider) Search(ctx context.Context, from, to, date string) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date %q", ErrInvalidQuery, date)
	}
	fromSt, err := m.catalog.ByCode(from)
	if err != nil {
		return nil, err
	}
	toSt, err := m.catalog.ByCode(to)
	if err != nil {
		return nil, err
	}
	if fromSt.Code == toSt.Code {
		return nil, fmt.Errorf("%w: %s to itself", ErrInvalidQuery, fromSt.Code)
	}
	return &SearchResult{
		From:   fromSt.Code,
		To:     toSt.Code,
		Date:   date,
		Trains: GenerateTrains(fromSt, toSt, date, m.catalog.Types()),
		Source: MockSource,
		Mock:   true,
	}, nil
}

// GenerateTrains returns eight trains leaving every two hours from 06:00,
// priced and timed by the great-circle distance, sorted by departure.
func GenerateTrains(from, to Station, date string, types []TrainType) []Train {
	if len(types) == 0 {
		return []Train{}
	}
	h := xxhash.Sum64String(from.Code + "-" + to.Code + "-" + date)
	rng := rand.New(rand.NewPCG(h, h>>1|1))
	distance := geo.DistanceKm(from.Location, to.Location)

	trains := make([]Train, 0, mockTrainsPerPair)
	seen := make(map[string]bool, mockTrainsPerPair)
	for len(trains) < mockTrainsPerPair {
		tt := types[rng.IntN(len(types))]
		no := fmt.Sprintf("%s%d", tt.Code, rng.IntN(9000)+1000)
		dep := (6+len(trains)*2)*60 + rng.IntN(60)
		if seen[no] {
			continue
		}
		seen[no] = true

		duration := int(math.Ceil(distance / tt.SpeedKmh * 60))
		fare := int(math.Round(distance * tt.CostPerKm))
		trains = append(trains, Train{
			TrainNo:    no,
			Type:       tt.Code,
			TypeName:   tt.Name,
			From:       from.Code,
			FromName:   from.Name,
			FromCity:   from.City,
			To:         to.Code,
			ToName:     to.Name,
			ToCity:     to.City,
			DepTime:    formatClock(dep),
			ArrTime:    formatClock(dep + duration),
			Duration:   duration,
			DistanceKm: int(math.Round(distance)),
			Price:      max(fare, minFare),
			Seats: Seats{
				SecondClass:   fare,
				FirstClass:    int(math.Round(float64(fare) * 1.6)),
				BusinessClass: fare * 3,
			},
		})
	}

	sort.SliceStable(trains, func(i, j int) bool { return trains[i].DepTime < trains[j].DepTime })
	return trains
}

func formatClock(minutes int) string {
	minutes %= 24 * 60
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// CitySearch is the merged timetable between two cities.
type CitySearch struct {
	FromCity string   `json:"fromCity"`
	ToCity   string   `json:"toCity"`
	Date     string   `json:"date"`
	Trains   []Train  `json:"trains"`
	Mock     bool     `json:"mock"`
	Failures []string `json:"failures,omitempty"`
}

// SearchStations queries every pair of distinct stations and merges the
// trains in SortTrains order. A failing pair is reported in the returned
// failures; the error is set only when every pair failed or ctx ended.
func SearchStations(ctx context.Context, p Provider, froms, tos []Station, date string) ([]Train, bool, []string, error) {
	var (
		trains   []Train
		failures []string
		mock     bool
		pairs    int
		lastErr  error
	)
	for _, f := range froms {
		for _, t := range tos {
			if f.Code == t.Code {
				continue
			}
			pairs++
			res, err := p.Search(ctx, f.Code, t.Code, date)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, false, nil, ctxErr
				}
				lastErr = err
				failures = append(failures, fmt.Sprintf("%s-%s: %v", f.Code, t.Code, err))
				continue
			}
			mock = mock || res.Mock
			trains = append(trains, res.Trains...)
		}
	}
	if pairs > 0 && len(failures) == pairs {
		return nil, false, failures, lastErr
	}
	SortTrains(trains)
	if trains == nil {
		trains = []Train{}
	}
	return trains, mock, failures, nil
}

// SearchCities returns up to limit trains between the stations of two
// cities. Either city without stations is ErrNoStations.
func SearchCities(ctx context.Context, p Provider, cat *Catalog, fromCity, toCity, date string, limit int) (*CitySearch, error) {
	fromCity, toCity = strings.TrimSpace(fromCity), strings.TrimSpace(toCity)
	froms := cat.InCity(fromCity)
	if len(froms) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoStations, fromCity)
	}
	tos := cat.InCity(toCity)
	if len(tos) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoStations, toCity)
	}

	trains, mock, failures, err := SearchStations(ctx, p, froms, tos, date)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(trains) > limit {
		trains = trains[:limit]
	}
	return &CitySearch{
		FromCity: fromCity,
		ToCity:   toCity,
		Date:     date,
		Trains:   trains,
		Mock:     mock,
		Failures: failures,
	}, nil
}
