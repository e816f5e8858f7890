package api

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gilby125/flight-radius/routing"
	"github.com/gin-gonic/gin"
)

// splitList splits a comma separated value, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeAirportToken(token string) string {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ""
	}

	// Common UI format: "PVG - Shanghai Pudong International Airport"
	if strings.Contains(trimmed, " - ") {
		trimmed = strings.SplitN(trimmed, " - ", 2)[0]
	}

	trimmed = strings.ToUpper(strings.TrimSpace(trimmed))
	return strings.Trim(trimmed, ",;")
}

// parseCodes normalises a comma separated airport list, keeping first occurrences.
func parseCodes(value string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range splitList(value) {
		code := normalizeAirportToken(part)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadParam, key)
	}
	return v, nil
}

func floatQuery(c *gin.Context, key string) (float64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s must be a number", errBadParam, key)
	}
	return v, nil
}

// radiusQuery reads the radius parameter. Absent or zero means the default.
func radiusQuery(c *gin.Context, cfg routing.EngineConfig) (float64, error) {
	r, err := floatQuery(c, "radius")
	if err != nil {
		return 0, err
	}
	if r == 0 {
		return cfg.DefaultRadiusKm, nil
	}
	if r < 0 || r > cfg.MaxRadiusKm {
		return 0, fmt.Errorf("%w: radius must be between 0 and %g km", errBadParam, cfg.MaxRadiusKm)
	}
	return r, nil
}

// citiesQuery reads "cities" (comma separated) or falls back to "city".
func citiesQuery(c *gin.Context, listKey, singleKey string) []string {
	if cities := splitList(c.Query(listKey)); len(cities) > 0 {
		return cities
	}
	if city := strings.TrimSpace(c.Query(singleKey)); city != "" {
		return []string{city}
	}
	return nil
}

// preferencesQuery reads the flight preference parameters shared by the GET endpoints.
func preferencesQuery(c *gin.Context) (routing.Preferences, error) {
	p := routing.Preferences{
		DepTimeStart: c.Query("depTimeStart"),
		DepTimeEnd:   c.Query("depTimeEnd"),
		ArrTimeStart: c.Query("arrTimeStart"),
		ArrTimeEnd:   c.Query("arrTimeEnd"),
		DirectOnly:   c.Query("directOnly") == "true",
		SortBy:       routing.SortKey(c.Query("sortBy")),
	}

	var err error
	if p.MinPrice, err = intQuery(c, "minPrice", 0); err != nil {
		return p, err
	}
	if p.MaxPrice, err = intQuery(c, "maxPrice", 0); err != nil {
		return p, err
	}
	if p.MaxTransferMinutes, err = intQuery(c, "maxTransferTime", 0); err != nil {
		return p, err
	}
	if p.MaxTransportMinutes, err = intQuery(c, "maxTransportTime", 0); err != nil {
		return p, err
	}

	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("%w: %v", errBadParam, err)
	}
	return p, nil
}
