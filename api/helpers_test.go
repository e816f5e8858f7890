package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gilby125/flight-radius/catalog"
	"github.com/gilby125/flight-radius/flexdate"
	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/history"
	"github.com/gilby125/flight-radius/pkg/geo"
	"github.com/gilby125/flight-radius/rail"
	"github.com/gilby125/flight-radius/routing"
	"github.com/gilby125/flight-radius/test/mocks"
	"github.com/gilby125/flight-radius/transport"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testDate = "2025-03-01"

var testNow = time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	airports := []catalog.Airport{
		{Code: "AAA", Name: "Alpha Intl", City: "Alpha", Location: geo.Coordinates{Lat: 30, Lng: 120}, Enabled: true},
		{Code: "AAB", Name: "Alpha North", City: "Alphaville", Location: geo.Coordinates{Lat: 30.3, Lng: 120}, Enabled: true},
		{Code: "BBB", Name: "Bravo", City: "Bravo", Location: geo.Coordinates{Lat: 31, Lng: 121}, Enabled: true},
		{Code: "SSS", Name: "Sierra", City: "Sierra", Location: geo.Coordinates{Lat: 35, Lng: 118}, Enabled: true},
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

// testStations puts a station at Alpha, Bravo and Zulu.
func testStations(t *testing.T) *rail.Catalog {
	t.Helper()
	cat, err := rail.New([]rail.Station{
		{Code: "ALS", Name: "Alpha Rail", City: "Alpha", Location: geo.Coordinates{Lat: 30, Lng: 120}},
		{Code: "BRS", Name: "Bravo Rail", City: "Bravo", Location: geo.Coordinates{Lat: 31, Lng: 121}},
		{Code: "ZUS", Name: "Zulu Rail", City: "Zulu", Location: geo.Coordinates{Lat: 40, Lng: 116}},
	}, []rail.TrainType{{Code: "G", Name: "高铁", SpeedKmh: 300, CostPerKm: 0.46}})
	require.NoError(t, err)
	return cat
}

type testEnv struct {
	router   *gin.Engine
	provider *mocks.MockProvider
	history  *history.MemoryStore
	engine   *routing.Engine
}

// newTestEnv wires the handlers around a mock provider. Pairs without an
// explicit expectation answer with no flights.
func newTestEnv(t *testing.T, setup func(p *mocks.MockProvider)) *testEnv {
	t.Helper()
	p := new(mocks.MockProvider)
	if setup != nil {
		setup(p)
	}
	p.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&flights.SearchResult{Flights: []flights.Flight{}}, nil).Maybe()

	loc := catalog.NewLocator(testCatalog(t), transport.NewEstimator(transport.DefaultModel(), nil, nil), nil, nil)
	hist := history.NewMemoryStore(history.DefaultSize, time.Hour).WithClock(func() time.Time { return testNow })

	engine := routing.NewEngine(loc, p, routing.DefaultEngineConfig(), nil)
	stations := testStations(t)
	deps := Deps{
		Engine:    engine,
		Interline: routing.NewInterliner(engine, stations, rail.NewMockProvider(stations), routing.InterlineConfig{}, nil),
		Scanner:   flexdate.NewScanner(p, 2, nil).WithClock(func() time.Time { return testNow }),
		Provider:  p,
		History:   hist,
		Now:       func() time.Time { return testNow },
	}

	router := gin.New()
	RegisterRoutes(router, deps)
	return &testEnv{router: router, provider: p, history: hist, engine: engine}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// envelope decodes {"success", "data", "error"} responses.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func fl(no, from, to, dep, arr string, price int) flights.Flight {
	return flights.Flight{FlightNo: no, Airline: "Test Air", From: from, To: to, DepTime: dep, ArrTime: arr, Price: price, IsDirect: true}
}

func result(from, to string, fs ...flights.Flight) *flights.SearchResult {
	return &flights.SearchResult{From: from, To: to, Date: testDate, Flights: fs, Source: "test"}
}

func codes(airports []catalog.NearbyAirport) []string {
	out := make([]string, len(airports))
	for i, a := range airports {
		out[i] = a.Code
	}
	return out
}
