package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/history"
	"github.com/gilby125/flight-radius/pkg/logger"
	"github.com/gilby125/flight-radius/routing"
	"github.com/gilby125/flight-radius/transport"
	"github.com/gin-gonic/gin"
)

// RouteRequest is the body of the route and recommendation endpoints. The
// single-city and plural forms are both accepted; plural fields win.
type RouteRequest struct {
	OriginCity       string              `json:"originCity"`
	OriginCities     []string            `json:"originCities"`
	DestinationCity  string              `json:"destinationCity"`
	Destination      string              `json:"destination"`
	DestinationCodes []string            `json:"destinationCodes"`
	Date             string              `json:"date"`
	Radius           float64             `json:"radius"`
	MaxStops         *int                `json:"maxStops"`
	SortBy           string              `json:"sortBy"`
	Preferences      routing.Preferences `json:"preferences"`
	TimeoutMs        int                 `json:"timeoutMs" binding:"min=0"`
}

func (r RouteRequest) toEngine() routing.Request {
	req := routing.Request{
		OriginCities:     r.OriginCities,
		Destination:      r.Destination,
		DestinationCodes: r.DestinationCodes,
		Date:             strings.TrimSpace(r.Date),
		RadiusKm:         r.Radius,
		MaxStops:         r.MaxStops,
		Preferences:      r.Preferences,
		Timeout:          time.Duration(r.TimeoutMs) * time.Millisecond,
	}
	if len(req.OriginCities) == 0 && strings.TrimSpace(r.OriginCity) != "" {
		req.OriginCities = []string{r.OriginCity}
	}
	if strings.TrimSpace(req.Destination) == "" {
		req.Destination = r.DestinationCity
	}
	if r.SortBy != "" {
		req.Preferences.SortBy = routing.SortKey(r.SortBy)
	}
	return req
}

func bindRoute(c *gin.Context) (routing.Request, bool) {
	var body RouteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadParam, err))
		return routing.Request{}, false
	}
	return body.toEngine(), true
}

// recordSearch adds a finished search to the history. Failures only log.
func recordSearch(ctx context.Context, deps Deps, res *routing.Result) {
	if deps.History == nil {
		return
	}
	to := res.Destination
	if to == "" {
		to = strings.Join(res.DestinationCodes, ",")
	}
	entry := history.NewEntry(res.OriginCities, to, res.Date, deps.now())
	if err := deps.History.Add(ctx, entry); err != nil {
		logger.WithContext(ctx).Warn("Failed to record search history", "error", err, "key", entry.Key())
	}
}

// optimizeRoute handles POST /route/optimize.
func optimizeRoute(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindRoute(c)
		if !ok {
			return
		}
		res, err := deps.Engine.Optimize(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		recordSearch(c.Request.Context(), deps, res)
		c.JSON(http.StatusOK, res)
	}
}

// compareRoutes handles POST /route/compare.
func compareRoutes(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindRoute(c)
		if !ok {
			return
		}
		res, err := deps.Engine.Compare(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		recordSearch(c.Request.Context(), deps, res.Result)
		c.JSON(http.StatusOK, res)
	}
}

// previewRoute handles GET /route/preview?originCity=&destinationCity=&radius=.
// The date only feeds validation, so today is used when it is absent.
func previewRoute(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := routing.Request{
			OriginCities: citiesQuery(c, "originCities", "originCity"),
			Destination:  c.Query("destinationCity"),
			Date:         c.DefaultQuery("date", deps.now().Format(flights.DateLayout)),
		}
		if req.Destination == "" {
			req.Destination = c.Query("destination")
		}
		var err error
		if req.RadiusKm, err = floatQuery(c, "radius"); err != nil {
			respondError(c, err)
			return
		}
		if raw := c.Query("maxStops"); raw != "" {
			n, err := intQuery(c, "maxStops", 1)
			if err != nil {
				respondError(c, err)
				return
			}
			req.MaxStops = &n
		}

		res, err := deps.Engine.Preview(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// recommend handles POST /calculate/recommend: the best direct flight per airport.
func recommend(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindRoute(c)
		if !ok {
			return
		}
		res, err := deps.Engine.Recommend(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		recordSearch(c.Request.Context(), deps, res)
		c.JSON(http.StatusOK, res)
	}
}

// CostRequest prices one flight plus its ground leg.
type CostRequest struct {
	Flight          *flights.Flight            `json:"flight" binding:"required"`
	Transport       *transport.GroundTransport `json:"transport" binding:"required"`
	TransferMinutes int                        `json:"transferMinutes" binding:"min=0"`
}

// CostResponse is the answer of POST /calculate/cost.
type CostResponse struct {
	Cost      routing.CostBreakdown `json:"cost"`
	TotalTime int                   `json:"totalTime"`
	Formatted string                `json:"formatted"`
}

// calculateCost handles POST /calculate/cost with the same model route search uses.
func calculateCost(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body CostRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, fmt.Errorf("%w: %v", errBadParam, err))
			return
		}
		if body.Transport.Time < 0 || body.Transport.Cost < 0 || body.Flight.Price < 0 {
			respondError(c, fmt.Errorf("%w: price, time and cost must not be negative", errBadParam))
			return
		}

		rates := deps.Engine.Config().Search.Rates
		cost, total := routing.ScoreItinerary([]flights.Flight{*body.Flight}, *body.Transport, body.TransferMinutes, rates)
		resp := CostResponse{Cost: cost, TotalTime: total}
		if deps.Config != nil {
			resp.Formatted = deps.Config.CostConfig.FormatAmount(cost.Total)
		}
		respondData(c, resp)
	}
}

func getHistory(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := deps.History.List(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		if entries == nil {
			entries = []history.Entry{}
		}
		respondData(c, entries)
	}
}

func clearHistory(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := deps.History.Clear(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "history cleared"})
	}
}
