package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gilby125/flight-radius/catalog"
	"github.com/gilby125/flight-radius/flexdate"
	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/history"
	"github.com/gilby125/flight-radius/pkg/registry"
	"github.com/gilby125/flight-radius/routing"
	"github.com/gilby125/flight-radius/test/mocks"
	"github.com/gilby125/flight-radius/transport"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNearbyAirports_SingleCity(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/airports/nearby?city=Alpha&radius=50", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res catalog.NearbyResult
	body := decodeEnvelope(t, rec, &res)
	assert.True(t, body.Success)
	assert.Equal(t, "Alpha", res.City)
	assert.Equal(t, []string{"AAA", "AAB"}, codes(res.Airports))
	assert.Equal(t, transport.ModeLocal, res.Airports[0].Transport.Type)
}

func TestNearbyAirports_MultiCity(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/airports/nearby?cities=Alpha,Atlantis,Bravo&radius=50", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res catalog.MultiNearbyResult
	decodeEnvelope(t, rec, &res)
	assert.ElementsMatch(t, []string{"AAA", "AAB", "BBB"}, codes(res.Airports))
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "Atlantis", res.Failures[0].City)
}

func TestNearbyAirports_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"missing city", "/api/v1/airports/nearby", http.StatusBadRequest},
		{"radius too large", "/api/v1/airports/nearby?city=Alpha&radius=900", http.StatusBadRequest},
		{"radius not a number", "/api/v1/airports/nearby?city=Alpha&radius=far", http.StatusBadRequest},
		{"unknown city", "/api/v1/airports/nearby?city=Atlantis", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, rec.Code)
			res := decodeEnvelope(t, rec, nil)
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Error)
		})
	}
}

func TestNearbyAirports_KnownCityWithNothingInRange(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/airports/nearby?city=Nowhere", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res catalog.NearbyResult
	decodeEnvelope(t, rec, &res)
	assert.Empty(t, res.Airports)
}

func TestAirportLookups(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/airports/aaa", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var a catalog.Airport
	decodeEnvelope(t, rec, &a)
	assert.Equal(t, "Alpha Intl", a.Name)

	rec = env.do(t, http.MethodGet, "/api/v1/airports/QQQ", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/airports/search?keyword=alpha", nil)
	var found []catalog.Airport
	decodeEnvelope(t, rec, &found)
	assert.Len(t, found, 2)

	rec = env.do(t, http.MethodGet, "/api/v1/airports/search?keyword=nothing-matches", nil)
	assert.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/airports/cities/all", nil)
	var cities []catalog.City
	decodeEnvelope(t, rec, &cities)
	assert.Len(t, cities, 4)

	rec = env.do(t, http.MethodGet, "/api/v1/airports/cities/search?keyword=br", nil)
	decodeEnvelope(t, rec, &cities)
	require.Len(t, cities, 1)
	assert.Equal(t, "Bravo", cities[0].Name)
}

func TestSearchFlights_SingleAirportWithPreferences(t *testing.T) {
	env := newTestEnv(t, func(p *mocks.MockProvider) {
		r := result("AAA", "ZZZ", fl("TA1", "AAA", "ZZZ", "07:00", "09:00", 500), fl("TA2", "AAA", "ZZZ", "12:00", "14:00", 400))
		r.Cached = true
		p.On("Search", mock.Anything, "AAA", "ZZZ", testDate).Return(r, nil)
	})

	rec := env.do(t, http.MethodGet, "/api/v1/flights/search?from=aaa&to=ZZZ&date="+testDate+"&depTimeStart=10:00", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res FlightSearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Data, 1)
	assert.Equal(t, "TA2", res.Data[0].FlightNo)
	assert.True(t, res.Cached)
	assert.False(t, res.Mock)
	assert.Nil(t, res.Details)
	assert.Equal(t, "2025-03-15T09:00:00Z", res.CacheTime)
}

func TestSearchFlights_MultiAirport(t *testing.T) {
	env := newTestEnv(t, func(p *mocks.MockProvider) {
		p.On("Search", mock.Anything, "AAA", "ZZZ", testDate).Return(result("AAA", "ZZZ", fl("TA1", "AAA", "ZZZ", "07:00", "09:00", 500)), nil)
		mocked := result("AAB", "ZZZ", fl("MK1", "AAB", "ZZZ", "08:00", "10:00", 300))
		mocked.Mock = true
		p.On("Search", mock.Anything, "AAB", "ZZZ", testDate).Return(mocked, nil)
		p.On("Search", mock.Anything, "BBB", "ZZZ", testDate).Return(nil, fmt.Errorf("%w: status 500", flights.ErrUpstream))
	})

	rec := env.do(t, http.MethodGet, "/api/v1/flights/search?from=AAA,AAB,BBB&to=ZZZ&date="+testDate, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res FlightSearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Data, 2)
	assert.Equal(t, "MK1", res.Data[0].FlightNo, "merged flights are ordered by price")
	assert.True(t, res.Mock)
	assert.False(t, res.Cached)
	require.Len(t, res.Details, 3)
	assert.Equal(t, AirportDetail{From: "AAA", Count: 1}, res.Details[0])
	assert.True(t, res.Details[1].Mock)
	assert.NotEmpty(t, res.Details[2].Error)
}

func TestSearchFlights_Errors(t *testing.T) {
	env := newTestEnv(t, func(p *mocks.MockProvider) {
		p.On("Search", mock.Anything, "AAA", "ZZZ", testDate).Return(nil, fmt.Errorf("%w: timeout", flights.ErrUpstream))
	})

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/flights/search?from=AAA&to=ZZZ", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/flights/search?from=AAAA&to=ZZZ&date="+testDate, nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/flights/search?from=AAA&to=ZZZ&date="+testDate+"&depTimeStart=late", nil).Code)
	assert.Equal(t, http.StatusBadGateway, env.do(t, http.MethodGet, "/api/v1/flights/search?from=AAA&to=ZZZ&date="+testDate, nil).Code)
}

func TestMockFlights(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/flights/mock?from=pvg&to=pek&date="+testDate, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fs []flights.Flight
	decodeEnvelope(t, rec, &fs)
	assert.Equal(t, flights.GenerateFlights("PVG", "PEK", testDate), fs)
	env.provider.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func directOnlyAlpha(p *mocks.MockProvider) {
	p.On("Search", mock.Anything, "AAA", "ZZZ", testDate).Return(result("AAA", "ZZZ",
		fl("TA1", "AAA", "ZZZ", "08:00", "10:00", 900),
		fl("TA2", "AAA", "ZZZ", "13:00", "15:00", 700)), nil)
	p.On("Search", mock.Anything, "AAB", "ZZZ", testDate).Return(result("AAB", "ZZZ",
		fl("TB1", "AAB", "ZZZ", "09:00", "11:00", 500)), nil)
}

func TestOptimizeRoute(t *testing.T) {
	env := newTestEnv(t, directOnlyAlpha)
	zero := 0

	rec := env.do(t, http.MethodPost, "/api/v1/route/optimize", RouteRequest{
		OriginCity:  "Alpha",
		Destination: "ZZZ",
		Date:        testDate,
		Radius:      50,
		MaxStops:    &zero,
		SortBy:      "ticketPrice",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res routing.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, routing.SortTicketPrice, res.SortBy)
	require.Len(t, res.Itineraries, 3)
	assert.Equal(t, "TB1", res.Itineraries[0].Segments[0].Flight.FlightNo)
	require.NotNil(t, res.Baseline)
	assert.Equal(t, 2, res.Stats.Queries)

	entries, err := env.history.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Alpha-ZZZ-"+testDate, entries[0].Key())
}

func TestOptimizeRoute_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"missing date", RouteRequest{OriginCity: "Alpha", Destination: "ZZZ"}, http.StatusBadRequest},
		{"negative timeout", RouteRequest{OriginCity: "Alpha", Destination: "ZZZ", Date: testDate, TimeoutMs: -1}, http.StatusBadRequest},
		{"unknown origin", RouteRequest{OriginCity: "Atlantis", Destination: "ZZZ", Date: testDate}, http.StatusNotFound},
		{"unknown destination", RouteRequest{OriginCity: "Alpha", Destination: "Atlantis", Date: testDate}, http.StatusNotFound},
		{"not json", "nope", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/route/optimize", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	entries, err := env.history.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries, "failed searches are not recorded")
}

func TestCompareRoutes(t *testing.T) {
	env := newTestEnv(t, directOnlyAlpha)
	zero := 0

	rec := env.do(t, http.MethodPost, "/api/v1/route/compare", RouteRequest{
		OriginCities: []string{"Alpha"}, DestinationCity: "Zulu", Date: testDate, Radius: 50, MaxStops: &zero,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		routing.Result
		Comparison routing.Comparison `json:"comparison"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.Itineraries, 3)
	assert.Equal(t, []string{"ZZZ"}, res.DestinationCodes)
}

func TestPreviewRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/route/preview?originCity=Alpha&destinationCity=Zulu&radius=50", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res routing.PreviewResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []string{"AAA", "AAB"}, codes(res.OriginAirports))
	assert.Equal(t, []string{"ZZZ"}, res.DestinationCodes)
	assert.Equal(t, 2, res.StopCandidates)
	env.provider.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	rec = env.do(t, http.MethodGet, "/api/v1/route/preview?originCity=Alpha&destinationCity=Zulu&maxStops=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecommendAndHistory(t *testing.T) {
	env := newTestEnv(t, directOnlyAlpha)

	rec := env.do(t, http.MethodPost, "/api/v1/calculate/recommend", RouteRequest{
		OriginCities: []string{"Alpha"}, Destination: "ZZZ", Date: testDate, Radius: 50,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res routing.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Itineraries, 2, "one recommendation per airport")
	for _, it := range res.Itineraries {
		assert.Equal(t, routing.TypeDirect, it.Type)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/calculate/history", nil)
	var entries []history.Entry
	decodeEnvelope(t, rec, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "Alpha", entries[0].From)
	assert.Equal(t, testNow.UnixMilli(), entries[0].Timestamp)

	rec = env.do(t, http.MethodDelete, "/api/v1/calculate/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/calculate/history", nil)
	assert.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String())
}

func TestHistory_StoreFailure(t *testing.T) {
	store := new(mocks.MockHistoryStore)
	store.On("List", mock.Anything).Return(nil, fmt.Errorf("redis down"))
	store.On("Clear", mock.Anything).Return(nil)

	router := gin.New()
	router.GET("/history", getHistory(Deps{History: store}))
	router.DELETE("/history", clearHistory(Deps{History: store}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/history", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	store.AssertExpectations(t)
}

func TestCalculateCost(t *testing.T) {
	env := newTestEnv(t, nil)

	f := fl("TA1", "AAA", "ZZZ", "08:00", "10:00", 500)
	gt := transport.GroundTransport{Type: transport.ModeCar, Time: 60, Cost: 30, DistanceKm: 60}
	rec := env.do(t, http.MethodPost, "/api/v1/calculate/cost", CostRequest{Flight: &f, Transport: &gt})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res CostResponse
	decodeEnvelope(t, rec, &res)
	assert.Equal(t, routing.CostBreakdown{Ticket: 500, Transport: 30, TimeValue: 90, Total: 620}, res.Cost)
	assert.Equal(t, 180, res.TotalTime)

	rec = env.do(t, http.MethodPost, "/api/v1/calculate/cost", map[string]interface{}{"flight": f})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFlexdateCalendar(t *testing.T) {
	env := newTestEnv(t, func(p *mocks.MockProvider) {
		p.On("Search", mock.Anything, "AAA", "ZZZ", "2025-03-20").Return(result("AAA", "ZZZ", fl("TA1", "AAA", "ZZZ", "08:00", "10:00", 450)), nil)
	})

	rec := env.do(t, http.MethodGet, "/api/v1/flexdate/calendar?from=AAA&to=ZZZ", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cal flexdate.Calendar
	decodeEnvelope(t, rec, &cal)
	assert.Equal(t, 2025, cal.Year)
	assert.Equal(t, 3, cal.Month)
	require.Len(t, cal.Days, 31)
	assert.Equal(t, flexdate.StatusPast, cal.Days[13].Status)
	assert.Equal(t, flexdate.StatusNoFlight, cal.Days[14].Status)
	assert.Equal(t, flexdate.StatusAvailable, cal.Days[19].Status)
	assert.Equal(t, "2025-03-20", cal.LowestDate)
	env.provider.AssertNotCalled(t, "Search", mock.Anything, "AAA", "ZZZ", "2025-03-01")
}

func TestFlexdateScans(t *testing.T) {
	env := newTestEnv(t, func(p *mocks.MockProvider) {
		p.On("Search", mock.Anything, "AAA", "ZZZ", "2025-03-02").Return(result("AAA", "ZZZ", fl("TA1", "AAA", "ZZZ", "08:00", "10:00", 450)), nil)
		p.On("Search", mock.Anything, "AAA", "ZZZ", testDate).Return(result("AAA", "ZZZ", fl("TA2", "AAA", "ZZZ", "08:00", "10:00", 600)), nil)
	})

	rec := env.do(t, http.MethodGet, "/api/v1/flexdate/dates?from=AAA&to=ZZZ&date="+testDate+"&daysBefore=1&daysAfter=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var scan flexdate.ScanResult
	decodeEnvelope(t, rec, &scan)
	assert.Len(t, scan.Days, 3)
	require.NotNil(t, scan.BestDay)
	assert.Equal(t, "2025-03-02", scan.BestDay.Date)

	rec = env.do(t, http.MethodGet, "/api/v1/flexdate/special?from=AAA&to=ZZZ&date="+testDate+"&daysBefore=0&daysAfter=2&minSavings=100", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var special flexdate.SpecialResult
	decodeEnvelope(t, rec, &special)
	require.Len(t, special.Deals, 1)
	assert.Equal(t, 150, special.Deals[0].Savings)

	rec = env.do(t, http.MethodGet, "/api/v1/flexdate/range?from=AAA&to=ZZZ&start=2025-03-05&end=2025-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/flexdate/range?from=AAA&start=2025-03-01&end=2025-03-05", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigAndHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg PublicConfig
	decodeEnvelope(t, rec, &cfg)
	assert.Equal(t, 200.0, cfg.DefaultRadiusKm)
	assert.Equal(t, 500.0, cfg.MaxRadiusKm)
	assert.Equal(t, routing.SortTotalCost, cfg.DefaultSortBy)
	assert.Equal(t, routing.DefaultTransferWindow(), cfg.TransferWindow)

	rec = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestListInstances(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/v1/instances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var none []registry.Heartbeat
	decodeEnvelope(t, rec, &none)
	assert.Empty(t, none)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	reg := registry.New(rdb, "test")
	require.NoError(t, reg.Publish(context.Background(), registry.Heartbeat{ID: "api-1", Leader: true}, 0))

	router := gin.New()
	RegisterRoutes(router, Deps{Engine: env.engine, Instances: reg})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/instances", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var active []registry.Heartbeat
	decodeEnvelope(t, rec, &active)
	require.Len(t, active, 1)
	assert.Equal(t, "api-1", active[0].ID)
	assert.True(t, active[0].Leader)
}
