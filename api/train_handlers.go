package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/rail"
	"github.com/gilby125/flight-radius/routing"
	"github.com/gin-gonic/gin"
)

const defaultTrainLimit = 20

// InterlineRequest is the body of POST /trains/interline.
type InterlineRequest struct {
	OriginCity    string  `json:"originCity"`
	Destination   string  `json:"destination"`
	Date          string  `json:"date"`
	Radius        float64 `json:"radius"`
	MaxTrainHours float64 `json:"maxTrainHours"`
	SortBy        string  `json:"sortBy"`
	TimeoutMs     int     `json:"timeoutMs" binding:"min=0"`
}

// searchTrains handles GET /trains/search?from=&to=&date=&limit=. from and
// to are station codes or city names; cities search every station pair.
func searchTrains(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		from := strings.TrimSpace(c.Query("from"))
		to := strings.TrimSpace(c.Query("to"))
		date := strings.TrimSpace(c.DefaultQuery("date", deps.now().Format(rail.DateLayout)))
		if from == "" || to == "" {
			respondError(c, fmt.Errorf("%w: from and to are required", errBadParam))
			return
		}
		limit, err := intQuery(c, "limit", defaultTrainLimit)
		if err != nil {
			respondError(c, err)
			return
		}
		if _, err := time.Parse(rail.DateLayout, date); err != nil {
			respondError(c, fmt.Errorf("%w: date must be YYYY-MM-DD", errBadParam))
			return
		}

		stations, trains := deps.Interline.Stations(), deps.Interline.Trains()
		_, errFrom := stations.ByCode(from)
		_, errTo := stations.ByCode(to)
		if errFrom == nil && errTo == nil {
			res, err := trains.Search(c.Request.Context(), from, to, date)
			if err != nil {
				respondError(c, err)
				return
			}
			rail.SortTrains(res.Trains)
			if limit > 0 && len(res.Trains) > limit {
				res.Trains = res.Trains[:limit]
			}
			respondData(c, res)
			return
		}

		res, err := rail.SearchCities(c.Request.Context(), trains, stations, from, to, date, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		respondData(c, res)
	}
}

// listStations handles GET /trains/stations?city=. Without a city every
// station is listed.
func listStations(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		stations := deps.Interline.Stations()
		city := strings.TrimSpace(c.Query("city"))
		if city == "" {
			respondData(c, stations.Stations())
			return
		}
		in := stations.InCity(city)
		if len(in) == 0 {
			respondError(c, fmt.Errorf("%w: %s", rail.ErrNoStations, city))
			return
		}
		respondData(c, in)
	}
}

// nearbyStations handles GET /trains/nearby?city=&radius=.
func nearbyStations(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		city := strings.TrimSpace(c.Query("city"))
		if city == "" {
			respondError(c, fmt.Errorf("%w: city is required", errBadParam))
			return
		}
		radius, err := radiusQuery(c, deps.Engine.Config())
		if err != nil {
			respondError(c, err)
			return
		}
		origin, err := deps.Engine.Locator().Locate(c.Request.Context(), city)
		if err != nil {
			respondError(c, err)
			return
		}
		respondData(c, gin.H{
			"city":     origin.City,
			"radius":   radius,
			"stations": deps.Interline.Stations().Nearby(origin.Location, radius),
		})
	}
}

// interlineRoute handles POST /trains/interline.
func interlineRoute(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body InterlineRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, fmt.Errorf("%w: %v", errBadParam, err))
			return
		}
		date := strings.TrimSpace(body.Date)
		if date == "" {
			date = deps.now().Format(flights.DateLayout)
		}
		res, err := deps.Interline.Search(c.Request.Context(), routing.InterlineRequest{
			OriginCity:    body.OriginCity,
			Destination:   body.Destination,
			Date:          date,
			RadiusKm:      body.Radius,
			MaxTrainHours: body.MaxTrainHours,
			SortBy:        routing.SortKey(body.SortBy),
			Timeout:       time.Duration(body.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		respondData(c, res)
	}
}
