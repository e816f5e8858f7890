package api

import (
	"context"
	"time"

	"github.com/gilby125/flight-radius/config"
	"github.com/gilby125/flight-radius/flexdate"
	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/history"
	"github.com/gilby125/flight-radius/pkg/cache"
	"github.com/gilby125/flight-radius/pkg/health"
	"github.com/gilby125/flight-radius/pkg/middleware"
	"github.com/gilby125/flight-radius/pkg/registry"
	"github.com/gilby125/flight-radius/routing"
	"github.com/gin-gonic/gin"
)

// airportCacheTTL is how long airport and city listings stay in the response cache.
const airportCacheTTL = time.Hour

// Deps are the services the handlers use.
type Deps struct {
	Config *config.Config
	Engine *routing.Engine
	// Interline serves the train endpoints; nil leaves them unregistered.
	Interline *routing.Interliner
	Scanner   *flexdate.Scanner
	Provider  flights.Provider
	History   history.Store
	Health    *health.HealthChecker
	// Cache, when set, caches the static airport listings.
	Cache *cache.CacheManager
	// Instances lists the running service instances; nil means a single instance.
	Instances InstanceLister
	Now       func() time.Time
}

// InstanceLister is the read side of *registry.Registry.
type InstanceLister interface {
	ListActive(ctx context.Context, within time.Duration, limit int64) ([]registry.Heartbeat, error)
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// RegisterRoutes registers all API routes
func RegisterRoutes(router *gin.Engine, deps Deps) {
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Recovery())

	router.GET("/health", getHealth(deps))
	router.GET("/health/ready", getReadiness(deps))
	router.GET("/health/live", getLiveness(deps))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/config", getConfig(deps))
		v1.GET("/instances", listInstances(deps))

		airports := v1.Group("/airports")
		if deps.Cache != nil {
			airports.Use(middleware.ResponseCache(deps.Cache, middleware.CacheConfig{
				TTL:       airportCacheTTL,
				KeyPrefix: "api",
				SkipPaths: []string{"/api/v1/airports/nearby"},
			}))
		}
		{
			airports.GET("/nearby", getNearbyAirports(deps))
			airports.GET("/search", searchAirports(deps))
			airports.GET("/cities/all", listCities(deps))
			airports.GET("/cities/search", searchCities(deps))
			airports.GET("/:code", getAirport(deps))
		}

		fl := v1.Group("/flights")
		{
			fl.GET("/search", searchFlights(deps))
			fl.GET("/mock", mockFlights(deps))
		}

		route := v1.Group("/route")
		{
			route.POST("/optimize", optimizeRoute(deps))
			route.POST("/compare", compareRoutes(deps))
			route.GET("/preview", previewRoute(deps))
		}

		if deps.Interline != nil {
			trains := v1.Group("/trains")
			{
				trains.GET("/search", searchTrains(deps))
				trains.GET("/stations", listStations(deps))
				trains.GET("/nearby", nearbyStations(deps))
				trains.POST("/interline", interlineRoute(deps))
			}
		}

		calc := v1.Group("/calculate")
		{
			calc.POST("/recommend", recommend(deps))
			calc.POST("/cost", calculateCost(deps))
			calc.GET("/history", getHistory(deps))
			calc.DELETE("/history", clearHistory(deps))
		}

		flex := v1.Group("/flexdate")
		{
			flex.GET("/dates", scanDates(deps))
			flex.GET("/range", scanRange(deps))
			flex.GET("/calendar", priceCalendar(deps))
			flex.GET("/special", specialPrices(deps))
		}
	}
}
