// Package catalog holds the immutable airport and city reference data and
// answers nearby-airport queries against it.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/anyascii/go"
	"github.com/gilby125/flight-radius/pkg/geo"
)

//go:embed data/airports.json
var embeddedData []byte

var (
	ErrAirportNotFound = errors.New("airport not found")
	ErrCityNotFound    = errors.New("city not found")
)

// Airport is one airport record.
type Airport struct {
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	City     string          `json:"city"`
	Province string          `json:"province"`
	Country  string          `json:"country"`
	Location geo.Coordinates `json:"location"`
	Enabled  bool            `json:"enabled"`
}

// City is a named place travellers start from. Aliases are alternate spellings.
type City struct {
	Name     string          `json:"name"`
	Country  string          `json:"country"`
	Location geo.Coordinates `json:"location"`
	Aliases  []string        `json:"aliases,omitempty"`
}

type airportRecord struct {
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	City     string  `json:"city"`
	Province string  `json:"province"`
	Country  string  `json:"country"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Enabled  bool    `json:"enabled"`
}

type cityRecord struct {
	Name    string   `json:"name"`
	Country string   `json:"country"`
	Lat     float64  `json:"lat"`
	Lng     float64  `json:"lng"`
	Aliases []string `json:"aliases"`
}

type document struct {
	Airports []airportRecord `json:"airports"`
	Cities   []cityRecord    `json:"cities"`
}

// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	airports  []Airport
	byCode    map[string]int
	cities    []City
	cityIndex map[string]int // normalised name or alias -> index
}

// Default loads the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(embeddedData))
}

// Load reads a catalog document.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	airports := make([]Airport, 0, len(doc.Airports))
	for _, a := range doc.Airports {
		airports = append(airports, Airport{
			Code:     a.Code,
			Name:     a.Name,
			City:     a.City,
			Province: a.Province,
			Country:  a.Country,
			Location: geo.Coordinates{Lat: a.Lat, Lng: a.Lng},
			Enabled:  a.Enabled,
		})
	}
	cities := make([]City, 0, len(doc.Cities))
	for _, c := range doc.Cities {
		cities = append(cities, City{
			Name:     c.Name,
			Country:  c.Country,
			Location: geo.Coordinates{Lat: c.Lat, Lng: c.Lng},
			Aliases:  c.Aliases,
		})
	}
	return New(airports, cities)
}

// New builds a catalog, rejecting duplicate airport codes, duplicate city
// names and out-of-range coordinates.
func New(airports []Airport, cities []City) (*Catalog, error) {
	c := &Catalog{
		airports:  make([]Airport, len(airports)),
		byCode:    make(map[string]int, len(airports)),
		cities:    make([]City, len(cities)),
		cityIndex: make(map[string]int, len(cities)*2),
	}

	for i, a := range airports {
		a.Code = strings.ToUpper(strings.TrimSpace(a.Code))
		if a.Code == "" {
			return nil, fmt.Errorf("airport %d: empty code", i)
		}
		if _, dup := c.byCode[a.Code]; dup {
			return nil, fmt.Errorf("airport %s: duplicate code", a.Code)
		}
		if !a.Location.IsValid() {
			return nil, fmt.Errorf("airport %s: invalid coordinates", a.Code)
		}
		c.airports[i] = a
		c.byCode[a.Code] = i
	}

	for i, city := range cities {
		if !city.Location.IsValid() {
			return nil, fmt.Errorf("city %s: invalid coordinates", city.Name)
		}
		key := NormalizeName(city.Name)
		if key == "" {
			return nil, fmt.Errorf("city %d: empty name", i)
		}
		if _, dup := c.cityIndex[key]; dup {
			return nil, fmt.Errorf("city %s: duplicate name", city.Name)
		}
		city.Aliases = append([]string(nil), city.Aliases...)
		c.cities[i] = city
		c.cityIndex[key] = i
	}
	// Aliases never shadow a primary name.
	for i, city := range c.cities {
		for _, alias := range city.Aliases {
			key := NormalizeName(alias)
			if _, taken := c.cityIndex[key]; !taken && key != "" {
				c.cityIndex[key] = i
			}
		}
	}
	return c, nil
}

// NormalizeName folds a place name to lowercase ASCII letters and digits, so
// "西安", "Xi'an" and "XIAN" compare equal.
func NormalizeName(name string) string {
	ascii := anyascii.Transliterate(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(ascii))
	for _, r := range ascii {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// ByCode returns an enabled airport by IATA code.
func (c *Catalog) ByCode(code string) (Airport, error) {
	i, ok := c.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok || !c.airports[i].Enabled {
		return Airport{}, fmt.Errorf("%w: %s", ErrAirportNotFound, code)
	}
	return c.airports[i], nil
}

// Airports returns every airport, enabled or not.
func (c *Catalog) Airports() []Airport {
	return append([]Airport(nil), c.airports...)
}

// Enabled returns the enabled airports in catalog order.
func (c *Catalog) Enabled() []Airport {
	out := make([]Airport, 0, len(c.airports))
	for _, a := range c.airports {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}

// City looks a city up by name or alias.
func (c *Catalog) City(name string) (City, error) {
	i, ok := c.cityIndex[NormalizeName(name)]
	if !ok {
		return City{}, fmt.Errorf("%w: %s", ErrCityNotFound, name)
	}
	return c.cities[i], nil
}

// Cities returns all cities in catalog order.
func (c *Catalog) Cities() []City {
	return append([]City(nil), c.cities...)
}

// AirportsInCity returns the enabled airports whose city is name (or one of its aliases).
func (c *Catalog) AirportsInCity(name string) []Airport {
	key := NormalizeName(name)
	if i, ok := c.cityIndex[key]; ok {
		key = NormalizeName(c.cities[i].Name)
	}
	var out []Airport
	for _, a := range c.airports {
		if a.Enabled && NormalizeName(a.City) == key {
			out = append(out, a)
		}
	}
	return out
}

// SearchAirports returns enabled airports whose code, name or city contains keyword.
// An empty keyword returns every enabled airport.
func (c *Catalog) SearchAirports(keyword string) []Airport {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return c.Enabled()
	}
	lower := strings.ToLower(keyword)
	folded := NormalizeName(keyword)

	var out []Airport
	for _, a := range c.airports {
		if !a.Enabled {
			continue
		}
		if strings.Contains(strings.ToLower(a.Code), lower) ||
			strings.Contains(a.Name, keyword) ||
			strings.Contains(a.City, keyword) ||
			(folded != "" && strings.Contains(NormalizeName(a.City), folded)) {
			out = append(out, a)
		}
	}
	return out
}

// SearchCities returns up to limit cities whose name contains keyword or whose
// name or alias starts with it, ignoring case and script.
func (c *Catalog) SearchCities(keyword string, limit int) []City {
	keyword = strings.TrimSpace(keyword)
	folded := NormalizeName(keyword)

	var out []City
	for _, city := range c.cities {
		if keyword == "" || strings.Contains(city.Name, keyword) || cityHasPrefix(city, folded) {
			out = append(out, city)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func cityHasPrefix(city City, folded string) bool {
	if folded == "" {
		return false
	}
	if strings.HasPrefix(NormalizeName(city.Name), folded) {
		return true
	}
	for _, a := range city.Aliases {
		if strings.HasPrefix(NormalizeName(a), folded) {
			return true
		}
	}
	return false
}

// StopCandidates returns the enabled airports not in exclude, in catalog order.
func (c *Catalog) StopCandidates(exclude map[string]bool) []Airport {
	out := make([]Airport, 0, len(c.airports))
	for _, a := range c.airports {
		if a.Enabled && !exclude[a.Code] {
			out = append(out, a)
		}
	}
	return out
}
