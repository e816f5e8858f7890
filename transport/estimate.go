// Package transport estimates the ground leg between a traveller's city and an airport.
package transport

import (
	"errors"
	"fmt"
	"math"

	"github.com/gilby125/flight-radius/pkg/geo"
)

// Mode is a ground transport mode.
type Mode string

const (
	ModeLocal Mode = "local"
	ModeCar   Mode = "car"
	ModeTrain Mode = "train"
	ModeBus   Mode = "bus"
)

// Sources of a GroundTransport value.
const (
	SourceEstimate = "estimate"
	SourceAmap     = "amap"
)

// GroundTransport is the ground leg from an origin city to a departure airport.
// Type is ModeLocal, with zero time and cost, iff the distance is zero.
type GroundTransport struct {
	Type       Mode    `json:"type"`
	Time       int     `json:"time"` // minutes
	Cost       int     `json:"cost"`
	DistanceKm float64 `json:"distanceKm"`
	Source     string  `json:"source"`
}

// Profile is the speed and per-km cost of one mode.
type Profile struct {
	Mode      Mode    `json:"mode"`
	SpeedKmh  float64 `json:"speedKmh"`
	CostPerKm float64 `json:"costPerKm"`
}

// Model is the set of modes the estimator may choose from. The car profile
// is the reference every other mode must dominate; the order of the other
// profiles breaks exact ties.
type Model struct {
	Profiles []Profile `json:"profiles"`
}

// DefaultModel returns car 0.5/km at 60 km/h, train 0.4/km at 200 km/h and bus 0.3/km at 80 km/h.
func DefaultModel() Model {
	return Model{Profiles: []Profile{
		{Mode: ModeCar, SpeedKmh: 60, CostPerKm: 0.5},
		{Mode: ModeTrain, SpeedKmh: 200, CostPerKm: 0.4},
		{Mode: ModeBus, SpeedKmh: 80, CostPerKm: 0.3},
	}}
}

// ErrInvalidModel is returned by Validate.
var ErrInvalidModel = errors.New("invalid transport model")

// Validate checks that the model has a car profile, positive speeds and non-negative costs.
// Estimate divides by speed, so models must be validated at load time.
func (m Model) Validate() error {
	if len(m.Profiles) == 0 {
		return fmt.Errorf("%w: no profiles", ErrInvalidModel)
	}
	hasCar := false
	seen := make(map[Mode]bool, len(m.Profiles))
	for _, p := range m.Profiles {
		switch p.Mode {
		case ModeCar, ModeTrain, ModeBus:
		default:
			return fmt.Errorf("%w: unknown mode %q", ErrInvalidModel, p.Mode)
		}
		if seen[p.Mode] {
			return fmt.Errorf("%w: duplicate mode %q", ErrInvalidModel, p.Mode)
		}
		seen[p.Mode] = true
		if !(p.SpeedKmh > 0) {
			return fmt.Errorf("%w: %s speed must be positive", ErrInvalidModel, p.Mode)
		}
		if !(p.CostPerKm >= 0) {
			return fmt.Errorf("%w: %s cost must not be negative", ErrInvalidModel, p.Mode)
		}
		if p.Mode == ModeCar {
			hasCar = true
		}
	}
	if !hasCar {
		return fmt.Errorf("%w: car profile is required", ErrInvalidModel)
	}
	return nil
}

type option struct {
	mode Mode
	time int
	cost int
}

func (p Profile) evaluate(distanceKm float64) option {
	return option{
		mode: p.Mode,
		time: int(math.Round(distanceKm / p.SpeedKmh * 60)),
		cost: int(math.Round(distanceKm * p.CostPerKm)),
	}
}

// Estimate picks a ground mode for a straight-line distance.
//
// Car is the reference. Another mode is a candidate only when it is no slower
// and no more expensive than car. Among car and the candidates the fastest
// wins, then the cheapest, then the earliest candidate in model order; car
// loses every exact tie. With only car and train this chooses train iff it
// dominates car.
func Estimate(distanceKm float64, m Model) GroundTransport {
	if distanceKm == 0 {
		return GroundTransport{Type: ModeLocal, Source: SourceEstimate}
	}

	var ref option
	refFound := false
	for _, p := range m.Profiles {
		if p.Mode == ModeCar {
			ref = p.evaluate(distanceKm)
			refFound = true
			break
		}
	}
	if !refFound && len(m.Profiles) > 0 {
		ref = m.Profiles[0].evaluate(distanceKm)
	}

	best := ref
	bestIsRef := true
	for _, p := range m.Profiles {
		if p.Mode == ref.mode {
			continue
		}
		o := p.evaluate(distanceKm)
		if o.time > ref.time || o.cost > ref.cost {
			continue
		}
		if bestIsRef || o.time < best.time || (o.time == best.time && o.cost < best.cost) {
			best = o
			bestIsRef = false
		}
	}

	return GroundTransport{
		Type:       best.mode,
		Time:       best.time,
		Cost:       best.cost,
		DistanceKm: geo.RoundKm(distanceKm),
		Source:     SourceEstimate,
	}
}
