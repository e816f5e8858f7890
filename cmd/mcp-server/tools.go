package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gilby125/flight-radius/app"
	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/history"
	"github.com/gilby125/flight-radius/routing"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func registerTools(s *server.MCPServer, a *app.App) {
	s.AddTool(mcp.NewTool("nearby_airports",
		mcp.WithDescription("List the airports within a radius of one or more cities, nearest first, with the ground transport to each"),
		mcp.WithString("cities", mcp.Required(),
			mcp.Description("Comma separated city names (e.g. 上海,苏州)"),
		),
		mcp.WithNumber("radius", mcp.Description("Search radius in km. Default from server configuration.")),
	), nearbyAirports(a))

	s.AddTool(mcp.NewTool("search_flights",
		mcp.WithDescription("List the flights between airports on one date, cheapest first"),
		mcp.WithString("from", mcp.Required(), mcp.Description("Comma separated origin airport codes (e.g. PVG,SHA)")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Comma separated destination airport codes (e.g. PEK)")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Departure date (YYYY-MM-DD)")),
	), searchFlights(a))

	routeTool := func(name, desc string) mcp.Tool {
		return mcp.NewTool(name,
			mcp.WithDescription(desc),
			mcp.WithString("origin_cities", mcp.Required(), mcp.Description("Comma separated origin city names")),
			mcp.WithString("destination", mcp.Required(), mcp.Description("Destination city name or airport code")),
			mcp.WithString("date", mcp.Required(), mcp.Description("Departure date (YYYY-MM-DD)")),
			mcp.WithNumber("radius", mcp.Description("Origin search radius in km")),
			mcp.WithNumber("max_stops", mcp.Description("0 for direct flights only, 1 to allow one connection. Default 1.")),
			mcp.WithString("sort_by", mcp.Description("totalCost, totalTime, ticketPrice or savings. Default totalCost.")),
			mcp.WithNumber("max_price", mcp.Description("Highest acceptable ticket price")),
		)
	}
	s.AddTool(routeTool("optimize_route",
		"Find the cheapest door-to-door itineraries from nearby airports, counting ground transport and the value of time"), routeSearch(a, a.Engine.Optimize))
	s.AddTool(routeTool("recommend_airport",
		"Recommend the best departure airport near the origin cities, one itinerary per airport"), routeSearch(a, a.Engine.Recommend))

	s.AddTool(mcp.NewTool("interline_route",
		mcp.WithDescription("Combine high-speed trains with flights: ride to a nearby hub city and fly on, or fly to a hub and finish by train"),
		mcp.WithString("origin_city", mcp.Required(), mcp.Description("Origin city name")),
		mcp.WithString("destination", mcp.Required(), mcp.Description("Destination city name or airport code")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Travel date (YYYY-MM-DD)")),
		mcp.WithNumber("radius", mcp.Description("Origin search radius in km")),
		mcp.WithNumber("max_train_hours", mcp.Description("Longest acceptable train ride in hours. Default from server configuration.")),
		mcp.WithString("sort_by", mcp.Description("totalCost, totalTime or ticketPrice. Default totalCost.")),
	), interlineRoute(a))

	s.AddTool(mcp.NewTool("flexible_dates",
		mcp.WithDescription("Compare the cheapest fare around a date"),
		mcp.WithString("from", mcp.Required(), mcp.Description("Origin airport code")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Destination airport code")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Centre date (YYYY-MM-DD)")),
		mcp.WithNumber("days_before", mcp.Description("Days before the centre date. Default 3.")),
		mcp.WithNumber("days_after", mcp.Description("Days after the centre date. Default 3.")),
	), flexibleDates(a))

	s.AddTool(mcp.NewTool("price_calendar",
		mcp.WithDescription("Lowest fare for every day of a month"),
		mcp.WithString("from", mcp.Required(), mcp.Description("Origin airport code")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Destination airport code")),
		mcp.WithNumber("year", mcp.Required(), mcp.Description("Year, e.g. 2025")),
		mcp.WithNumber("month", mcp.Required(), mcp.Description("Month 1-12")),
	), priceCalendar(a))
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error marshaling response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func radiusArg(a *app.App, request mcp.CallToolRequest) float64 {
	return request.GetFloat("radius", a.Engine.Config().DefaultRadiusKm)
}

func nearbyAirports(a *app.App) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cities := splitList(request.GetString("cities", ""))
		if len(cities) == 0 {
			return mcp.NewToolResultError("cities is required"), nil
		}
		radius := radiusArg(a, request)
		if !(radius > 0) || radius > a.Engine.Config().MaxRadiusKm {
			return mcp.NewToolResultError(fmt.Sprintf("radius must be in (0, %g]", a.Engine.Config().MaxRadiusKm)), nil
		}
		return jsonResult(a.Engine.Locator().NearbyMany(ctx, cities, radius))
	}
}

func searchFlights(a *app.App) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		froms := splitList(strings.ToUpper(request.GetString("from", "")))
		tos := splitList(strings.ToUpper(request.GetString("to", "")))
		date := request.GetString("date", "")
		if len(froms) == 0 || len(tos) == 0 {
			return mcp.NewToolResultError("from and to are required"), nil
		}
		for _, from := range froms {
			for _, to := range tos {
				if _, _, err := flights.ValidateQuery(from, to, date); err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
			}
		}

		var (
			found  []flights.Flight
			failed []string
		)
		for _, pr := range flights.SearchMany(ctx, a.Flights, froms, tos, date, a.Config.SearchConfig.Concurrency) {
			if pr.Err != nil {
				failed = append(failed, fmt.Sprintf("%s-%s: %v", pr.From, pr.To, pr.Err))
				continue
			}
			found = append(found, pr.Result.Flights...)
		}
		if len(found) == 0 && len(failed) > 0 {
			return mcp.NewToolResultError("Error searching flights: " + strings.Join(failed, "; ")), nil
		}
		sort.SliceStable(found, func(i, j int) bool { return found[i].Price < found[j].Price })
		if found == nil {
			found = []flights.Flight{}
		}
		return jsonResult(map[string]interface{}{
			"flights":  found,
			"failures": failed,
		})
	}
}

func routeSearch(a *app.App, run func(context.Context, routing.Request) (*routing.Result, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req := routing.Request{
			OriginCities: splitList(request.GetString("origin_cities", "")),
			Destination:  strings.TrimSpace(request.GetString("destination", "")),
			Date:         request.GetString("date", ""),
			RadiusKm:     request.GetFloat("radius", 0),
			Preferences: routing.Preferences{
				SortBy:   routing.SortKey(request.GetString("sort_by", "")),
				MaxPrice: request.GetInt("max_price", 0),
			},
		}
		if args := request.GetArguments(); args != nil {
			if _, ok := args["max_stops"]; ok {
				stops := request.GetInt("max_stops", 1)
				req.MaxStops = &stops
			}
		}

		res, err := run(ctx, req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return mcp.NewToolResultError("search timed out"), nil
			}
			return mcp.NewToolResultError(err.Error()), nil
		}
		entry := history.NewEntry(req.OriginCities, req.Destination, req.Date, time.Now())
		if err := a.History.Add(ctx, entry); err != nil {
			a.Log.Warn("Failed to record search history", "error", err)
		}
		return jsonResult(res)
	}
}

func interlineRoute(a *app.App) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := a.Interline.Search(ctx, routing.InterlineRequest{
			OriginCity:    strings.TrimSpace(request.GetString("origin_city", "")),
			Destination:   strings.TrimSpace(request.GetString("destination", "")),
			Date:          request.GetString("date", ""),
			RadiusKm:      request.GetFloat("radius", 0),
			MaxTrainHours: request.GetFloat("max_train_hours", 0),
			SortBy:        routing.SortKey(request.GetString("sort_by", "")),
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return mcp.NewToolResultError("search timed out"), nil
			}
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res)
	}
}

func flexibleDates(a *app.App) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := a.Scanner.ScanDates(ctx,
			strings.ToUpper(request.GetString("from", "")),
			strings.ToUpper(request.GetString("to", "")),
			request.GetString("date", ""),
			request.GetInt("days_before", 3),
			request.GetInt("days_after", 3),
			routing.Preferences{})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res)
	}
}

func priceCalendar(a *app.App) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := a.Scanner.Calendar(ctx,
			strings.ToUpper(request.GetString("from", "")),
			strings.ToUpper(request.GetString("to", "")),
			request.GetInt("year", 0),
			request.GetInt("month", 0))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res)
	}
}
