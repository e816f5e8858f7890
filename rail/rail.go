// Package rail holds the railway station reference data and the train
// timetable contract used to combine trains with flights.
package rail

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gilby125/flight-radius/catalog"
	"github.com/gilby125/flight-radius/pkg/geo"
)

//go:embed data/stations.json
var embeddedData []byte

// DateLayout is the wire format of travel dates.
const DateLayout = "2006-01-02"

var (
	ErrStationNotFound = errors.New("station not found")
	// ErrNoStations means a city has no railway station in the catalog.
	ErrNoStations = errors.New("no railway stations")
	// ErrInvalidQuery means the station codes or date are malformed.
	ErrInvalidQuery = errors.New("invalid train query")
)

// typeOrder ranks the train classes, fastest first.
var typeOrder = []string{"G", "D", "C"}

// TrainType is a class of service with its average speed and fare.
type TrainType struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	SpeedKmh  float64 `json:"speedKmh"`
	CostPerKm float64 `json:"costPerKm"`
}

// Station is one railway station.
type Station struct {
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	City     string          `json:"city"`
	Location geo.Coordinates `json:"location"`
}

// NearbyStation is a station with its distance from a search centre.
type NearbyStation struct {
	Station
	DistanceKm float64 `json:"distance"`
}

type stationRecord struct {
	Code string  `json:"code"`
	Name string  `json:"name"`
	City string  `json:"city"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

type typeRecord struct {
	Name      string  `json:"name"`
	SpeedKmh  float64 `json:"speedKmh"`
	CostPerKm float64 `json:"costPerKm"`
}

type document struct {
	TrainTypes map[string]typeRecord `json:"trainTypes"`
	Stations   []stationRecord       `json:"stations"`
}

// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	stations []Station
	byCode   map[string]int
	types    []TrainType
}

// Default loads the station catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(embeddedData))
}

// Load decodes a station document.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode station data: %w", err)
	}
	stations := make([]Station, len(doc.Stations))
	for i, s := range doc.Stations {
		stations[i] = Station{Code: s.Code, Name: s.Name, City: s.City, Location: geo.Coordinates{Lat: s.Lat, Lng: s.Lng}}
	}
	types := make([]TrainType, 0, len(doc.TrainTypes))
	for code, t := range doc.TrainTypes {
		types = append(types, TrainType{Code: code, Name: t.Name, SpeedKmh: t.SpeedKmh, CostPerKm: t.CostPerKm})
	}
	return New(stations, types)
}

func typeRank(code string) int {
	for i, c := range typeOrder {
		if c == code {
			return i
		}
	}
	return len(typeOrder)
}

// New builds a catalog, rejecting duplicate station codes, bad coordinates
// and train types that cannot move.
func New(stations []Station, types []TrainType) (*Catalog, error) {
	if len(types) == 0 {
		return nil, errors.New("at least one train type is required")
	}
	c := &Catalog{
		stations: make([]Station, len(stations)),
		byCode:   make(map[string]int, len(stations)),
		types:    append([]TrainType(nil), types...),
	}
	for i, s := range stations {
		s.Code = strings.ToUpper(strings.TrimSpace(s.Code))
		if s.Code == "" {
			return nil, fmt.Errorf("station %d: empty code", i)
		}
		if _, dup := c.byCode[s.Code]; dup {
			return nil, fmt.Errorf("station %s: duplicate code", s.Code)
		}
		if !s.Location.IsValid() {
			return nil, fmt.Errorf("station %s: invalid coordinates", s.Code)
		}
		c.stations[i] = s
		c.byCode[s.Code] = i
	}
	for _, t := range c.types {
		if !(t.SpeedKmh > 0) || t.CostPerKm < 0 {
			return nil, fmt.Errorf("train type %s: speed must be positive and fare non-negative", t.Code)
		}
	}
	sort.SliceStable(c.types, func(i, j int) bool {
		ri, rj := typeRank(c.types[i].Code), typeRank(c.types[j].Code)
		if ri != rj {
			return ri < rj
		}
		return c.types[i].Code < c.types[j].Code
	})
	return c, nil
}

// ByCode returns a station by its code.
func (c *Catalog) ByCode(code string) (Station, error) {
	i, ok := c.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Station{}, fmt.Errorf("%w: %s", ErrStationNotFound, code)
	}
	return c.stations[i], nil
}

// Stations returns every station in catalog order.
func (c *Catalog) Stations() []Station {
	return append([]Station(nil), c.stations...)
}

// Types returns the train types, fastest class first.
func (c *Catalog) Types() []TrainType {
	return append([]TrainType(nil), c.types...)
}

// MaxSpeedKmh is the speed of the fastest train type.
func (c *Catalog) MaxSpeedKmh() float64 {
	top := 0.0
	for _, t := range c.types {
		top = max(top, t.SpeedKmh)
	}
	return top
}

// InCity returns the stations of a city, compared by normalised name.
func (c *Catalog) InCity(city string) []Station {
	key := catalog.NormalizeName(city)
	if key == "" {
		return nil
	}
	var out []Station
	for _, s := range c.stations {
		if catalog.NormalizeName(s.City) == key {
			out = append(out, s)
		}
	}
	return out
}

// Nearby returns the stations within radiusKm of at, nearest first.
func (c *Catalog) Nearby(at geo.Coordinates, radiusKm float64) []NearbyStation {
	out := []NearbyStation{}
	for _, s := range c.stations {
		d := geo.DistanceKm(at, s.Location)
		if !(d <= radiusKm) {
			continue
		}
		out = append(out, NearbyStation{Station: s, DistanceKm: geo.RoundKm(d)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

// Seats are the fares of the seat classes.
type Seats struct {
	SecondClass   int `json:"secondClass"`
	FirstClass    int `json:"firstClass"`
	BusinessClass int `json:"businessClass"`
}

// Train is one scheduled train between two stations. Times are local "HH:MM".
type Train struct {
	TrainNo    string `json:"trainNo"`
	Type       string `json:"type"`
	TypeName   string `json:"typeName"`
	From       string `json:"from"`
	FromName   string `json:"fromName"`
	FromCity   string `json:"fromCity"`
	To         string `json:"to"`
	ToName     string `json:"toName"`
	ToCity     string `json:"toCity"`
	DepTime    string `json:"depTime"`
	ArrTime    string `json:"arrTime"`
	Duration   int    `json:"duration"`
	DistanceKm int    `json:"distance"`
	Price      int    `json:"price"`
	Seats      Seats  `json:"seats"`
}

// SearchResult is a provider's answer for one station pair and date.
type SearchResult struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Date   string  `json:"date"`
	Trains []Train `json:"trains"`
	Source string  `json:"source"`
	Mock   bool    `json:"mock"`
}

// Provider returns the trains between two stations on a date.
// Implementations must honour ctx and be safe for concurrent use.
type Provider interface {
	Name() string
	Search(ctx context.Context, from, to, date string) (*SearchResult, error)
}

// SortTrains orders trains by class, fastest first, then by departure.
func SortTrains(ts []Train) {
	sort.SliceStable(ts, func(i, j int) bool {
		ri, rj := typeRank(ts[i].Type), typeRank(ts[j].Type)
		if ri != rj {
			return ri < rj
		}
		return ts[i].DepTime < ts[j].DepTime
	})
}
