package api

import (
	"fmt"
	"strings"

	"github.com/gilby125/flight-radius/catalog"
	"github.com/gin-gonic/gin"
)

// citySearchLimit caps the city search endpoint.
const citySearchLimit = 20

// getNearbyAirports handles GET /airports/nearby?city=|cities=&radius=.
// One city answers with its origin and airports; several cities answer with
// the merged, de-duplicated list and the cities that could not be resolved.
func getNearbyAirports(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		cities := citiesQuery(c, "cities", "city")
		if len(cities) == 0 {
			respondError(c, fmt.Errorf("%w: city or cities is required", errBadParam))
			return
		}
		radius, err := radiusQuery(c, deps.Engine.Config())
		if err != nil {
			respondError(c, err)
			return
		}

		locator := deps.Engine.Locator()
		if len(cities) == 1 {
			res, err := locator.Nearby(c.Request.Context(), cities[0], radius)
			if err != nil {
				respondError(c, err)
				return
			}
			respondData(c, res)
			return
		}

		respondData(c, locator.NearbyMany(c.Request.Context(), cities, radius))
	}
}

// searchAirports handles GET /airports/search?keyword=.
func searchAirports(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		airports := deps.Engine.Locator().Catalog().SearchAirports(c.Query("keyword"))
		if airports == nil {
			airports = []catalog.Airport{}
		}
		respondData(c, airports)
	}
}

func getAirport(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := deps.Engine.Locator().Catalog().ByCode(strings.ToUpper(c.Param("code")))
		if err != nil {
			respondError(c, err)
			return
		}
		respondData(c, a)
	}
}

func listCities(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		respondData(c, deps.Engine.Locator().Catalog().Cities())
	}
}

func searchCities(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		cities := deps.Engine.Locator().Catalog().SearchCities(c.Query("keyword"), citySearchLimit)
		if cities == nil {
			cities = []catalog.City{}
		}
		respondData(c, cities)
	}
}
