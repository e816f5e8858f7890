package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gilby125/flight-radius/catalog"
	"github.com/gilby125/flight-radius/flexdate"
	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/pkg/logger"
	"github.com/gilby125/flight-radius/rail"
	"github.com/gilby125/flight-radius/routing"
	"github.com/gin-gonic/gin"
)

// errBadParam marks a malformed query parameter or body.
var errBadParam = errors.New("bad parameter")

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadParam),
		errors.Is(err, routing.ErrInvalidRequest),
		errors.Is(err, flights.ErrInvalidQuery),
		errors.Is(err, flexdate.ErrInvalidRange),
		errors.Is(err, rail.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, routing.ErrNoOriginAirports),
		errors.Is(err, routing.ErrNoDestinationAirports),
		errors.Is(err, catalog.ErrCityNotFound),
		errors.Is(err, catalog.ErrAirportNotFound),
		errors.Is(err, rail.ErrStationNotFound),
		errors.Is(err, rail.ErrNoStations):
		return http.StatusNotFound
	case errors.Is(err, flights.ErrUpstream),
		errors.Is(err, flights.ErrNotConfigured):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error envelope with the status the error maps to.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.WithContext(c.Request.Context()).Error(err, "Request failed", "path", c.FullPath())
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func respondData(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}
