package routing

import (
	"errors"
	"fmt"
	"math"

	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/transport"
)

// Rates convert minutes into currency.
type Rates struct {
	TimeValuePerMinute float64 `json:"timeValuePerMinute"`
	TransferPerMinute  float64 `json:"transferPerMinute"`
}

// DefaultRates values travel time at 0.5 and connection waits at a further 0.3 per minute.
func DefaultRates() Rates {
	return Rates{TimeValuePerMinute: 0.5, TransferPerMinute: 0.3}
}

// Validate rejects negative or non-finite rates.
func (r Rates) Validate() error {
	if !(r.TimeValuePerMinute >= 0) || math.IsInf(r.TimeValuePerMinute, 0) {
		return errors.New("time value rate must be a non-negative number")
	}
	if !(r.TransferPerMinute >= 0) || math.IsInf(r.TransferPerMinute, 0) {
		return errors.New("transfer rate must be a non-negative number")
	}
	return nil
}

// TransferWindow bounds the connection time, in minutes, of a one-stop itinerary.
type TransferWindow struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// DefaultTransferWindow is 30 to 180 minutes.
func DefaultTransferWindow() TransferWindow {
	return TransferWindow{Min: 30, Max: 180}
}

// Contains reports whether minutes lies inside the window, bounds included.
func (w TransferWindow) Contains(minutes int) bool {
	return minutes >= w.Min && minutes <= w.Max
}

func (w TransferWindow) Validate() error {
	if w.Min < 0 || w.Max < w.Min || w.Max >= minutesPerDay {
		return fmt.Errorf("transfer window [%d, %d] is invalid", w.Min, w.Max)
	}
	return nil
}

// CostBreakdown is the generalised cost of an itinerary.
// Total is always the exact sum of the other fields.
type CostBreakdown struct {
	Ticket       int `json:"ticket"`
	Transport    int `json:"transport"`
	TimeValue    int `json:"timeValue"`
	TransferCost int `json:"transferCost"`
	Total        int `json:"total"`
}

// ScoreItinerary prices a chain of flights plus the ground leg and the
// connection wait. It returns the cost and the total door-to-gate-to-gate
// time in minutes.
func ScoreItinerary(segments []flights.Flight, gt transport.GroundTransport, transferMinutes int, rates Rates) (CostBreakdown, int) {
	ticket, travel := 0, 0
	for _, f := range segments {
		ticket += f.Price
		travel += FlightDuration(f)
	}
	return ScoreJourney(ticket, travel, gt, transferMinutes, rates)
}

// ScoreJourney prices any chain of vehicles from its summed fares and
// in-vehicle minutes.
func ScoreJourney(ticket, travelMinutes int, gt transport.GroundTransport, transferMinutes int, rates Rates) (CostBreakdown, int) {
	totalTime := gt.Time + travelMinutes + transferMinutes
	c := CostBreakdown{
		Ticket:       ticket,
		Transport:    gt.Cost,
		TimeValue:    roundInt(float64(totalTime) * rates.TimeValuePerMinute),
		TransferCost: roundInt(float64(transferMinutes) * rates.TransferPerMinute),
	}
	c.Total = c.Ticket + c.Transport + c.TimeValue + c.TransferCost
	return c, totalTime
}

func roundInt(f float64) int {
	return int(math.Round(f))
}
