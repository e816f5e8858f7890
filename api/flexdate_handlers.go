package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

// Default window around the requested date for flexible scans.
const (
	defaultDaysBefore = 3
	defaultDaysAfter  = 3
)

func pairQuery(c *gin.Context) (string, string, error) {
	from := normalizeAirportToken(c.Query("from"))
	to := normalizeAirportToken(c.Query("to"))
	if from == "" || to == "" {
		return "", "", fmt.Errorf("%w: from and to are required", errBadParam)
	}
	return from, to, nil
}

func windowQuery(c *gin.Context) (int, int, error) {
	before, err := intQuery(c, "daysBefore", defaultDaysBefore)
	if err != nil {
		return 0, 0, err
	}
	after, err := intQuery(c, "daysAfter", defaultDaysAfter)
	if err != nil {
		return 0, 0, err
	}
	return before, after, nil
}

// scanDates handles GET /flexdate/dates?from=&to=&date=&daysBefore=&daysAfter=.
func scanDates(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, to, err := pairQuery(c)
		if err != nil {
			respondError(c, err)
			return
		}
		before, after, err := windowQuery(c)
		if err != nil {
			respondError(c, err)
			return
		}
		prefs, err := preferencesQuery(c)
		if err != nil {
			respondError(c, err)
			return
		}

		res, err := deps.Scanner.ScanDates(c.Request.Context(), from, to, strings.TrimSpace(c.Query("date")), before, after, prefs)
		if err != nil {
			respondError(c, err)
			return
		}
		respondData(c, res)
	}
}

// scanRange handles GET /flexdate/range?from=&to=&start=&end=.
func scanRange(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, to, err := pairQuery(c)
		if err != nil {
			respondError(c, err)
			return
		}
		prefs, err := preferencesQuery(c)
		if err != nil {
			respondError(c, err)
			return
		}

		res, err := deps.Scanner.ScanRange(c.Request.Context(), from, to, c.Query("start"), c.Query("end"), prefs)
		if err != nil {
			respondError(c, err)
			return
		}
		respondData(c, res)
	}
}

// priceCalendar handles GET /flexdate/calendar?from=&to=&year=&month=.
// Year and month default to the current month.
func priceCalendar(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, to, err := pairQuery(c)
		if err != nil {
			respondError(c, err)
			return
		}
		now := deps.now()
		year, err := intQuery(c, "year", now.Year())
		if err != nil {
			respondError(c, err)
			return
		}
		month, err := intQuery(c, "month", int(now.Month()))
		if err != nil {
			respondError(c, err)
			return
		}

		cal, err := deps.Scanner.Calendar(c.Request.Context(), from, to, year, month)
		if err != nil {
			respondError(c, err)
			return
		}
		respondData(c, cal)
	}
}

// specialPrices handles GET /flexdate/special?from=&to=&date=&minSavings=.
func specialPrices(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, to, err := pairQuery(c)
		if err != nil {
			respondError(c, err)
			return
		}
		before, after, err := windowQuery(c)
		if err != nil {
			respondError(c, err)
			return
		}
		minSavings, err := intQuery(c, "minSavings", 0)
		if err != nil {
			respondError(c, err)
			return
		}

		res, err := deps.Scanner.SpecialPrices(c.Request.Context(), from, to, strings.TrimSpace(c.Query("date")), before, after, minSavings)
		if err != nil {
			respondError(c, err)
			return
		}
		respondData(c, res)
	}
}
