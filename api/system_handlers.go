package api

import (
	"net/http"

	"github.com/gilby125/flight-radius/config"
	"github.com/gilby125/flight-radius/pkg/buildinfo"
	"github.com/gilby125/flight-radius/pkg/health"
	"github.com/gilby125/flight-radius/pkg/registry"
	"github.com/gilby125/flight-radius/routing"
	"github.com/gin-gonic/gin"
)

func healthStatus(report health.HealthReport) int {
	if report.Status == health.StatusUp {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

func getHealth(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "build": buildinfo.Info()})
			return
		}
		report := deps.Health.CheckHealth(c.Request.Context())
		c.JSON(healthStatus(report), report)
	}
}

func getReadiness(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		report := deps.Health.CheckReadiness(c.Request.Context())
		c.JSON(healthStatus(report), report)
	}
}

func getLiveness(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		c.JSON(http.StatusOK, deps.Health.CheckLiveness(c.Request.Context()))
	}
}

// PublicConfig is the search configuration clients may see.
type PublicConfig struct {
	DefaultRadiusKm    float64                `json:"defaultRadius"`
	MaxRadiusKm        float64                `json:"maxRadius"`
	DefaultSortBy      routing.SortKey        `json:"defaultSortBy"`
	CacheExpireMinutes int                    `json:"cacheExpireMinutes"`
	Rates              routing.Rates          `json:"rates"`
	TransferWindow     routing.TransferWindow `json:"transferWindow"`
	Currency           string                 `json:"currency"`
	AmapEnabled        bool                   `json:"amapEnabled"`
	ProviderEnabled    bool                   `json:"variflightEnabled"`
	Transport          config.TransportConfig `json:"transport"`
	Build              map[string]string      `json:"build"`
}

// getConfig handles GET /api/v1/config.
func getConfig(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ec := deps.Engine.Config()
		out := PublicConfig{
			DefaultRadiusKm: ec.DefaultRadiusKm,
			MaxRadiusKm:     ec.MaxRadiusKm,
			DefaultSortBy:   ec.DefaultSortBy,
			Rates:           ec.Search.Rates,
			TransferWindow:  ec.Search.Window,
			Build:           buildinfo.Info(),
		}
		if cfg := deps.Config; cfg != nil {
			out.CacheExpireMinutes = int(cfg.CacheConfig.FlightTTL.Minutes())
			out.Currency = cfg.CostConfig.Currency.String()
			out.AmapEnabled = cfg.AmapConfig.Enabled()
			out.ProviderEnabled = cfg.ProviderConfig.VariflightKey != ""
			out.Transport = cfg.TransportConfig
		}
		respondData(c, out)
	}
}

// listInstances handles GET /api/v1/instances.
func listInstances(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Instances == nil {
			respondData(c, []registry.Heartbeat{})
			return
		}
		active, err := deps.Instances.ListActive(c.Request.Context(), registry.DefaultTTL, 0)
		if err != nil {
			respondError(c, err)
			return
		}
		respondData(c, active)
	}
}
