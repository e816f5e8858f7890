package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gilby125/flight-radius/pkg/geo"
	"github.com/gilby125/flight-radius/pkg/logger"
	"github.com/gilby125/flight-radius/transport"
)

// Coordinate sources.
const (
	SourceBuiltin     = "builtin"
	SourceGeocoder    = "geocoder"
	SourceCoordinates = "coordinates"
)

// Geocoder resolves place names the catalog does not know.
type Geocoder interface {
	Geocode(ctx context.Context, name string) (geo.Coordinates, error)
}

// TransportResolver computes the ground leg to an airport. *transport.Estimator implements it.
type TransportResolver interface {
	Resolve(ctx context.Context, from, to geo.Coordinates) transport.GroundTransport
}

// NearbyAirport is an airport within the search radius of an origin, with the
// ground leg from that origin attached.
type NearbyAirport struct {
	Airport
	DistanceKm float64                   `json:"distance"`
	Transport  transport.GroundTransport `json:"transport"`
	OriginCity string                    `json:"originCity,omitempty"`
}

// Origin is a resolved starting point.
type Origin struct {
	City     string          `json:"city"`
	Location geo.Coordinates `json:"coordinate"`
	Source   string          `json:"source"`
}

// NearbyResult lists the airports around one origin, nearest first.
type NearbyResult struct {
	Origin
	RadiusKm float64         `json:"radius"`
	Airports []NearbyAirport `json:"airports"`
}

// CityFailure records a city whose lookup failed in a multi-city query.
type CityFailure struct {
	City  string `json:"city"`
	Error string `json:"error"`
}

// MultiNearbyResult merges the airports around several cities. Each airport
// appears once, attributed to the first city that reached it.
type MultiNearbyResult struct {
	Cities   []string        `json:"cities"`
	RadiusKm float64         `json:"radius"`
	Airports []NearbyAirport `json:"airports"`
	Failures []CityFailure   `json:"failures,omitempty"`
}

// Locator finds airports near a city.
type Locator struct {
	catalog   *Catalog
	transport TransportResolver
	geocoder  Geocoder
	log       *logger.Logger
}

// NewLocator creates a Locator. geocoder may be nil.
func NewLocator(cat *Catalog, tr TransportResolver, geocoder Geocoder, log *logger.Logger) *Locator {
	if log == nil {
		log = logger.Nop()
	}
	return &Locator{catalog: cat, transport: tr, geocoder: geocoder, log: log.WithField("component", "locator")}
}

// Catalog returns the locator's catalog.
func (l *Locator) Catalog() *Catalog {
	return l.catalog
}

// Transport resolves the ground leg between two points.
func (l *Locator) Transport(ctx context.Context, from, to geo.Coordinates) transport.GroundTransport {
	return l.transport.Resolve(ctx, from, to)
}

// Locate resolves a city name. Catalog cities win and keep their canonical
// name; unknown names go to the geocoder when one is configured.
func (l *Locator) Locate(ctx context.Context, name string) (Origin, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Origin{}, fmt.Errorf("%w: empty name", ErrCityNotFound)
	}
	if city, err := l.catalog.City(name); err == nil {
		return Origin{City: city.Name, Location: city.Location, Source: SourceBuiltin}, nil
	}
	if l.geocoder != nil {
		coords, err := l.geocoder.Geocode(ctx, name)
		if err == nil && coords.IsValid() && !coords.IsZero() {
			return Origin{City: name, Location: coords, Source: SourceGeocoder}, nil
		}
		if err != nil {
			l.log.WithContext(ctx).Warn("Geocoding failed", "city", name, "error", err)
		}
	}
	return Origin{}, fmt.Errorf("%w: %s", ErrCityNotFound, name)
}

// Nearby returns the enabled airports within radiusKm of a city. An unknown
// city is ErrCityNotFound; a known city with nothing in range is an empty list.
func (l *Locator) Nearby(ctx context.Context, city string, radiusKm float64) (*NearbyResult, error) {
	origin, err := l.Locate(ctx, city)
	if err != nil {
		return nil, err
	}
	return l.NearbyOrigin(ctx, origin, radiusKm), nil
}

// NearbyCoordinate is Nearby for a raw coordinate.
func (l *Locator) NearbyCoordinate(ctx context.Context, at geo.Coordinates, radiusKm float64) *NearbyResult {
	return l.NearbyOrigin(ctx, Origin{Location: at, Source: SourceCoordinates}, radiusKm)
}

// NearbyOrigin lists airports around an already resolved origin.
func (l *Locator) NearbyOrigin(ctx context.Context, origin Origin, radiusKm float64) *NearbyResult {
	result := &NearbyResult{Origin: origin, RadiusKm: radiusKm, Airports: []NearbyAirport{}}

	for _, a := range l.catalog.airports {
		if !a.Enabled {
			continue
		}
		d := geo.DistanceKm(origin.Location, a.Location)
		if !(d <= radiusKm) {
			continue
		}
		gt := l.transport.Resolve(ctx, origin.Location, a.Location)
		shown := gt.DistanceKm
		if shown == 0 {
			shown = geo.RoundKm(d)
		}
		result.Airports = append(result.Airports, NearbyAirport{
			Airport:    a,
			DistanceKm: shown,
			Transport:  gt,
			OriginCity: origin.City,
		})
	}

	sortByDistance(result.Airports)
	return result
}

// NearbyMany runs Nearby for each city. One city's failure does not stop the
// others; it is reported in Failures.
func (l *Locator) NearbyMany(ctx context.Context, cities []string, radiusKm float64) *MultiNearbyResult {
	result := &MultiNearbyResult{Cities: cities, RadiusKm: radiusKm, Airports: []NearbyAirport{}}
	seen := make(map[string]bool)

	for _, city := range cities {
		nearby, err := l.Nearby(ctx, city, radiusKm)
		if err != nil {
			result.Failures = append(result.Failures, CityFailure{City: city, Error: err.Error()})
			continue
		}
		for _, a := range nearby.Airports {
			if seen[a.Code] {
				continue
			}
			seen[a.Code] = true
			result.Airports = append(result.Airports, a)
		}
	}

	sortByDistance(result.Airports)
	return result
}

func sortByDistance(airports []NearbyAirport) {
	sort.SliceStable(airports, func(i, j int) bool {
		return airports[i].DistanceKm < airports[j].DistanceKm
	})
}
