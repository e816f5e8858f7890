package api

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/routing"
	"github.com/gin-gonic/gin"
)

// FlightSearchResponse is the answer of GET /flights/search.
type FlightSearchResponse struct {
	Success bool             `json:"success"`
	Data    []flights.Flight `json:"data"`
	Cached  bool             `json:"cached"`
	Mock    bool             `json:"mock"`
	// Details is set when several departure airports were queried.
	Details   []AirportDetail `json:"details,omitempty"`
	CacheTime string          `json:"cacheTime"`
}

// AirportDetail reports one departure airport of a multi-airport flight search.
// Count is the number of flights before preference filtering.
type AirportDetail struct {
	From   string `json:"from"`
	Count  int    `json:"count"`
	Cached bool   `json:"cached"`
	Mock   bool   `json:"mock"`
	Error  string `json:"error,omitempty"`
}

// searchFlights handles GET /flights/search?from=PVG,SHA&to=PEK&date=.
// Flights from several airports are merged and ordered by price.
func searchFlights(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		froms := parseCodes(c.Query("from"))
		to := normalizeAirportToken(c.Query("to"))
		date := strings.TrimSpace(c.Query("date"))
		if len(froms) == 0 || to == "" || date == "" {
			respondError(c, fmt.Errorf("%w: from, to and date are required", errBadParam))
			return
		}
		for _, from := range froms {
			if _, _, err := flights.ValidateQuery(from, to, date); err != nil {
				respondError(c, err)
				return
			}
		}
		prefs, err := preferencesQuery(c)
		if err != nil {
			respondError(c, err)
			return
		}

		resp := FlightSearchResponse{Success: true, Data: []flights.Flight{}}
		concurrency := deps.Engine.Config().Search.Concurrency
		pairs := flights.SearchMany(c.Request.Context(), deps.Provider, froms, []string{to}, date, concurrency)

		var firstErr error
		allCached := true
		for _, pr := range pairs {
			detail := AirportDetail{From: pr.From}
			if pr.Err != nil {
				detail.Error = pr.Err.Error()
				if firstErr == nil {
					firstErr = pr.Err
				}
				allCached = false
				resp.Details = append(resp.Details, detail)
				continue
			}
			detail.Count = len(pr.Result.Flights)
			detail.Cached = pr.Result.Cached
			detail.Mock = pr.Result.Mock
			resp.Details = append(resp.Details, detail)

			resp.Data = append(resp.Data, routing.FilterFlights(pr.Result.Flights, prefs)...)
			resp.Mock = resp.Mock || pr.Result.Mock
			allCached = allCached && pr.Result.Cached
		}
		if firstErr != nil && allFailed(pairs) {
			respondError(c, firstErr)
			return
		}
		resp.Cached = allCached

		if len(froms) > 1 {
			sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Price < resp.Data[j].Price })
		} else {
			resp.Details = nil
		}
		resp.CacheTime = deps.now().UTC().Format(time.RFC3339)
		c.JSON(http.StatusOK, resp)
	}
}

func allFailed(pairs []flights.PairResult) bool {
	for _, pr := range pairs {
		if pr.Err == nil {
			return false
		}
	}
	return true
}

// mockFlights handles GET /flights/mock: synthetic flights for UI development.
func mockFlights(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		from := normalizeAirportToken(c.DefaultQuery("from", "YNT"))
		to := normalizeAirportToken(c.DefaultQuery("to", "SHA"))
		date := c.DefaultQuery("date", deps.now().Format(flights.DateLayout))
		if _, _, err := flights.ValidateQuery(from, to, date); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": flights.GenerateFlights(from, to, date), "mock": true})
	}
}
