package transport

import (
	"context"

	"github.com/gilby125/flight-radius/pkg/geo"
	"github.com/gilby125/flight-radius/pkg/logger"
)

// Route is a driving route returned by an external routing service.
type Route struct {
	DistanceKm      float64
	DurationMinutes int
	Tolls           int
}

// Router resolves real driving routes. pkg/amap.Client implements it.
type Router interface {
	Drive(ctx context.Context, from, to geo.Coordinates) (Route, error)
}

// Estimator resolves ground transport, preferring a Router when one is configured.
type Estimator struct {
	model  Model
	router Router
	log    *logger.Logger
}

// NewEstimator creates an Estimator. router may be nil.
func NewEstimator(model Model, router Router, log *logger.Logger) *Estimator {
	if log == nil {
		log = logger.Nop()
	}
	return &Estimator{model: model, router: router, log: log.WithField("component", "transport")}
}

// Model returns the estimator's transport model.
func (e *Estimator) Model() Model {
	return e.model
}

// Resolve returns the ground leg between two points. Co-located points are
// always local. A router answer wins over the estimate; a router failure is
// logged and the estimate is used.
func (e *Estimator) Resolve(ctx context.Context, from, to geo.Coordinates) GroundTransport {
	distance := geo.DistanceKm(from, to)
	if distance == 0 {
		return Estimate(0, e.model)
	}

	if e.router != nil {
		route, err := e.router.Drive(ctx, from, to)
		if err == nil {
			return GroundTransport{
				Type:       ModeCar,
				Time:       route.DurationMinutes,
				Cost:       route.Tolls,
				DistanceKm: route.DistanceKm,
				Source:     SourceAmap,
			}
		}
		e.log.WithContext(ctx).Warn("Route lookup failed, using estimate", "error", err)
	}

	return Estimate(distance, e.model)
}
