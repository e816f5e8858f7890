package routing

import (
	"strings"

	"github.com/gilby125/flight-radius/catalog"
	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/transport"
	"github.com/google/uuid"
)

// ItineraryType distinguishes direct from connecting itineraries.
type ItineraryType string

const (
	TypeDirect  ItineraryType = "direct"
	TypeOneStop ItineraryType = "oneStop"
)

// itineraryNamespace scopes the name-based itinerary IDs.
var itineraryNamespace = uuid.MustParse("8f0c1a52-3d0e-4b8e-9a51-6a2f3f1c9e07")

// AirportRef is the slice of an airport record an itinerary carries.
type AirportRef struct {
	Code       string  `json:"code"`
	Name       string  `json:"name,omitempty"`
	City       string  `json:"city,omitempty"`
	DistanceKm float64 `json:"distance,omitempty"`
}

func refOf(a catalog.Airport) AirportRef {
	return AirportRef{Code: a.Code, Name: a.Name, City: a.City}
}

func refOfNearby(a catalog.NearbyAirport) AirportRef {
	return AirportRef{Code: a.Code, Name: a.Name, City: a.City, DistanceKm: a.DistanceKm}
}

// Segment is one flight of an itinerary. TransferMinutes is the wait before
// it departs, zero for the first segment.
type Segment struct {
	Flight          flights.Flight `json:"flight"`
	Departure       AirportRef     `json:"departureAirport"`
	Arrival         AirportRef     `json:"arrivalAirport"`
	TransferMinutes int            `json:"transferTime,omitempty"`
}

// Itinerary is a complete plan: a ground leg and one or two flights.
// For one-stop itineraries Segments[0].Arrival, Segments[1].Departure and
// StopAirport name the same airport.
type Itinerary struct {
	ID               string                    `json:"id"`
	Type             ItineraryType             `json:"type"`
	Segments         []Segment                 `json:"segments"`
	DepartureAirport AirportRef                `json:"departureAirport"`
	ArrivalAirport   AirportRef                `json:"arrivalAirport"`
	StopAirport      *AirportRef               `json:"stopAirport,omitempty"`
	OriginCity       string                    `json:"originCity,omitempty"`
	GroundTransport  transport.GroundTransport `json:"groundTransport"`
	TotalCost        CostBreakdown             `json:"totalCost"`
	TotalTime        int                       `json:"totalTime"`
	TransferMinutes  int                       `json:"transferTime"`
	// Savings is baseline total minus this total; nil when not computed.
	Savings *int `json:"savings"`
	Mock    bool `json:"mock"`
	Cached  bool `json:"cached"`
}

// Flights returns the itinerary's flights in order.
func (it Itinerary) Flights() []flights.Flight {
	out := make([]flights.Flight, len(it.Segments))
	for i, s := range it.Segments {
		out[i] = s.Flight
	}
	return out
}

// DedupeKey identifies an itinerary by type, departure airport and the
// flights flown.
func (it Itinerary) DedupeKey() string {
	var b strings.Builder
	b.WriteString(string(it.Type))
	b.WriteByte('|')
	b.WriteString(it.DepartureAirport.Code)
	for _, s := range it.Segments {
		b.WriteByte('|')
		b.WriteString(s.Flight.FlightNo)
		b.WriteByte('@')
		b.WriteString(s.Flight.DepTime)
		b.WriteByte('>')
		b.WriteString(s.Arrival.Code)
	}
	return b.String()
}

// NewDirect builds and scores a direct itinerary.
func NewDirect(origin catalog.NearbyAirport, dest AirportRef, f flights.Flight, rates Rates) Itinerary {
	cost, total := ScoreItinerary([]flights.Flight{f}, origin.Transport, 0, rates)
	dep := refOfNearby(origin)
	it := Itinerary{
		Type:             TypeDirect,
		Segments:         []Segment{{Flight: f, Departure: dep, Arrival: dest}},
		DepartureAirport: dep,
		ArrivalAirport:   dest,
		OriginCity:       origin.OriginCity,
		GroundTransport:  origin.Transport,
		TotalCost:        cost,
		TotalTime:        total,
	}
	it.ID = uuid.NewSHA1(itineraryNamespace, []byte(it.DedupeKey())).String()
	return it
}

// NewOneStop builds and scores a connecting itinerary through stop.
func NewOneStop(origin catalog.NearbyAirport, stop, dest AirportRef, first, second flights.Flight, transfer int, rates Rates) Itinerary {
	cost, total := ScoreItinerary([]flights.Flight{first, second}, origin.Transport, transfer, rates)
	dep := refOfNearby(origin)
	stopRef := stop
	it := Itinerary{
		Type: TypeOneStop,
		Segments: []Segment{
			{Flight: first, Departure: dep, Arrival: stop},
			{Flight: second, Departure: stop, Arrival: dest, TransferMinutes: transfer},
		},
		DepartureAirport: dep,
		ArrivalAirport:   dest,
		StopAirport:      &stopRef,
		OriginCity:       origin.OriginCity,
		GroundTransport:  origin.Transport,
		TotalCost:        cost,
		TotalTime:        total,
		TransferMinutes:  transfer,
	}
	it.ID = uuid.NewSHA1(itineraryNamespace, []byte(it.DedupeKey())).String()
	return it
}
