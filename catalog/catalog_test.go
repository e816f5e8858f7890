package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gilby125/flight-radius/pkg/cache"
	"github.com/gilby125/flight-radius/pkg/geo"
	"github.com/gilby125/flight-radius/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocator(t *testing.T, geocoder Geocoder) *Locator {
	t.Helper()
	cat, err := Default()
	require.NoError(t, err)
	return NewLocator(cat, transport.NewEstimator(transport.DefaultModel(), nil, nil), geocoder, nil)
}

func codes(airports []NearbyAirport) []string {
	out := make([]string, len(airports))
	for i, a := range airports {
		out[i] = a.Code
	}
	return out
}

func TestDefault_Loads(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)
	assert.NotEmpty(t, cat.Airports())
	assert.Less(t, len(cat.Enabled()), len(cat.Airports()), "the embedded data has a disabled airport")
	assert.NotEmpty(t, cat.Cities())
}

func TestNew_RejectsBadData(t *testing.T) {
	_, err := New([]Airport{{Code: "PVG"}, {Code: "pvg"}}, nil)
	assert.Error(t, err)

	_, err = New([]Airport{{Code: "XXX", Location: geo.Coordinates{Lat: 95}}}, nil)
	assert.Error(t, err)

	_, err = New(nil, []City{{Name: "上海"}, {Name: "上海"}})
	assert.Error(t, err)

	_, err = Load(strings.NewReader("{"))
	assert.Error(t, err)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "shanghai", NormalizeName("上海"))
	assert.Equal(t, "shanghai", NormalizeName("  SHANGHAI "))
	assert.Equal(t, "xian", NormalizeName("Xi'an"))
	assert.Equal(t, "hongkong", NormalizeName("Hong Kong"))
	assert.Equal(t, "", NormalizeName("  "))
}

func TestCatalog_ByCode(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	pvg, err := cat.ByCode("pvg")
	require.NoError(t, err)
	assert.Equal(t, "上海", pvg.City)

	_, err = cat.ByCode("HUZ")
	assert.ErrorIs(t, err, ErrAirportNotFound, "disabled airports are not returned")

	_, err = cat.ByCode("ZZZ")
	assert.ErrorIs(t, err, ErrAirportNotFound)
}

func TestCatalog_CityLookup(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	for _, name := range []string{"上海", "Shanghai", "shanghai"} {
		city, err := cat.City(name)
		require.NoError(t, err, name)
		assert.Equal(t, "上海", city.Name)
	}

	city, err := cat.City("Canton")
	require.NoError(t, err)
	assert.Equal(t, "广州", city.Name)

	_, err = cat.City("Atlantis")
	assert.ErrorIs(t, err, ErrCityNotFound)
}

func TestCatalog_Search(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	var got []string
	for _, a := range cat.SearchAirports("上海") {
		got = append(got, a.Code)
	}
	assert.ElementsMatch(t, []string{"PVG", "SHA"}, got)

	pv := cat.SearchAirports("pv")
	require.Len(t, pv, 1)
	assert.Equal(t, "PVG", pv[0].Code)

	assert.Len(t, cat.SearchAirports(""), len(cat.Enabled()))
	assert.Empty(t, cat.SearchAirports("惠州"), "disabled airports are hidden")

	assert.Len(t, cat.SearchCities("", 20), 20)
	suzhou := cat.SearchCities("苏", 20)
	require.Len(t, suzhou, 1)
	assert.Equal(t, "苏州", suzhou[0].Name)
	assert.NotEmpty(t, cat.SearchCities("shang", 20))
}

func TestCatalog_AirportsInCity(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	var got []string
	for _, a := range cat.AirportsInCity("Beijing") {
		got = append(got, a.Code)
	}
	assert.Equal(t, []string{"PEK", "PKX"}, got)
	assert.Empty(t, cat.AirportsInCity("苏州"))
}

func TestCatalog_StopCandidates(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	stops := cat.StopCandidates(map[string]bool{"PVG": true, "SHA": true})
	for _, a := range stops {
		assert.True(t, a.Enabled)
		assert.NotContains(t, []string{"PVG", "SHA", "HUZ"}, a.Code)
	}
	assert.Len(t, stops, len(cat.Enabled())-2)
}

func TestLocator_Nearby(t *testing.T) {
	l := newTestLocator(t, nil)

	res, err := l.Nearby(context.Background(), "上海", 50)
	require.NoError(t, err)
	assert.Equal(t, "上海", res.City)
	assert.Equal(t, SourceBuiltin, res.Source)
	assert.Equal(t, []string{"SHA", "PVG"}, codes(res.Airports))

	for i, a := range res.Airports {
		assert.Equal(t, "上海", a.OriginCity)
		assert.Greater(t, a.DistanceKm, 0.0)
		assert.Equal(t, transport.SourceEstimate, a.Transport.Source)
		if i > 0 {
			assert.LessOrEqual(t, res.Airports[i-1].DistanceKm, a.DistanceKm)
		}
	}
}

func TestLocator_NearbyDistinguishesNotFoundFromEmpty(t *testing.T) {
	l := newTestLocator(t, nil)

	_, err := l.Nearby(context.Background(), "Atlantis", 200)
	assert.ErrorIs(t, err, ErrCityNotFound)

	res, err := l.Nearby(context.Background(), "乌鲁木齐", 10)
	require.NoError(t, err)
	assert.Empty(t, res.Airports)
}

func TestLocator_NearbyCoordinateAtAirportIsLocal(t *testing.T) {
	l := newTestLocator(t, nil)
	pvg, err := l.Catalog().ByCode("PVG")
	require.NoError(t, err)

	res := l.NearbyCoordinate(context.Background(), pvg.Location, 1)
	require.Len(t, res.Airports, 1)
	assert.Equal(t, transport.ModeLocal, res.Airports[0].Transport.Type)
	assert.Equal(t, 0.0, res.Airports[0].DistanceKm)
}

func TestLocator_NearbyMany(t *testing.T) {
	l := newTestLocator(t, nil)

	res := l.NearbyMany(context.Background(), []string{"上海", "苏州"}, 50)
	assert.Equal(t, []string{"SHA", "WUX", "PVG"}, codes(res.Airports))
	assert.Equal(t, "苏州", res.Airports[1].OriginCity)
	assert.Empty(t, res.Failures)

	res = l.NearbyMany(context.Background(), []string{"上海", "Shanghai", "Atlantis"}, 50)
	assert.Equal(t, []string{"SHA", "PVG"}, codes(res.Airports), "airports are listed once")
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "Atlantis", res.Failures[0].City)
}

type stubGeocoder struct {
	coords geo.Coordinates
	err    error
	calls  int
}

func (s *stubGeocoder) Geocode(_ context.Context, _ string) (geo.Coordinates, error) {
	s.calls++
	return s.coords, s.err
}

func TestLocator_Geocoder(t *testing.T) {
	kunshan := &stubGeocoder{coords: geo.Coordinates{Lat: 31.3846, Lng: 120.9808}}
	l := newTestLocator(t, kunshan)

	origin, err := l.Locate(context.Background(), "昆山")
	require.NoError(t, err)
	assert.Equal(t, SourceGeocoder, origin.Source)
	assert.Equal(t, "昆山", origin.City)

	_, err = l.Locate(context.Background(), "上海")
	require.NoError(t, err)
	assert.Equal(t, 1, kunshan.calls, "catalog cities never reach the geocoder")

	failing := newTestLocator(t, &stubGeocoder{err: errors.New("quota")})
	_, err = failing.Locate(context.Background(), "昆山")
	assert.ErrorIs(t, err, ErrCityNotFound)
}

func TestCachedGeocoder(t *testing.T) {
	stub := &stubGeocoder{coords: geo.Coordinates{Lat: 31.3846, Lng: 120.9808}}
	g := NewCachedGeocoder(stub, cache.NewCacheManager(cache.NewMemoryCache()), time.Hour)

	for i := 0; i < 3; i++ {
		coords, err := g.Geocode(context.Background(), "昆山")
		require.NoError(t, err)
		assert.Equal(t, stub.coords, coords)
	}
	assert.Equal(t, 1, stub.calls)

	stub.err = errors.New("down")
	_, err := g.Geocode(context.Background(), "太仓")
	assert.Error(t, err)
}
