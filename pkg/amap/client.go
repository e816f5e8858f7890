// Package amap is a small client for the AMap geocoding and driving-direction REST APIs.
package amap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gilby125/flight-radius/pkg/geo"
	"github.com/gilby125/flight-radius/pkg/retryhttp"
	"github.com/gilby125/flight-radius/transport"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultGeocodeURL   = "https://restapi.amap.com/v3/geocode/geo"
	DefaultDirectionURL = "https://restapi.amap.com/v3/direction/driving"
)

var (
	// ErrNoResult means the API answered but found nothing.
	ErrNoResult = errors.New("amap: no result")
	// ErrAPI means the API reported a failure status.
	ErrAPI = errors.New("amap: api error")
)

// Config holds the client settings.
type Config struct {
	Key          string
	GeocodeURL   string
	DirectionURL string
	Timeout      time.Duration
	RetryMax     int
}

// Client calls the AMap REST APIs. It implements transport.Router and catalog.Geocoder.
type Client struct {
	cfg    Config
	client *retryablehttp.Client
}

// New creates a client. Empty URLs take the public endpoints.
func New(cfg Config) *Client {
	if cfg.GeocodeURL == "" {
		cfg.GeocodeURL = DefaultGeocodeURL
	}
	if cfg.DirectionURL == "" {
		cfg.DirectionURL = DefaultDirectionURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: retryhttp.NewClient(retryhttp.Options{Timeout: cfg.Timeout, RetryMax: cfg.RetryMax}),
	}
}

type geocodeResponse struct {
	Status   string `json:"status"`
	Info     string `json:"info"`
	Geocodes []struct {
		Location string `json:"location"`
	} `json:"geocodes"`
}

type directionResponse struct {
	Status string `json:"status"`
	Info   string `json:"info"`
	Route  struct {
		Paths []struct {
			Distance string `json:"distance"` // meters
			Duration string `json:"duration"` // seconds
			Tolls    string `json:"tolls"`
		} `json:"paths"`
	} `json:"route"`
}

// Geocode returns the coordinates of an address or city name.
func (c *Client) Geocode(ctx context.Context, address string) (geo.Coordinates, error) {
	params := url.Values{}
	params.Set("key", c.cfg.Key)
	params.Set("address", address)

	var resp geocodeResponse
	if err := c.get(ctx, c.cfg.GeocodeURL, params, &resp); err != nil {
		return geo.Coordinates{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	if resp.Status != "1" {
		return geo.Coordinates{}, fmt.Errorf("geocode %q: %w: %s", address, ErrAPI, resp.Info)
	}
	if len(resp.Geocodes) == 0 {
		return geo.Coordinates{}, fmt.Errorf("geocode %q: %w", address, ErrNoResult)
	}

	coords, err := parseLocation(resp.Geocodes[0].Location)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	return coords, nil
}

// Drive returns the first driving route between two points.
func (c *Client) Drive(ctx context.Context, from, to geo.Coordinates) (transport.Route, error) {
	params := url.Values{}
	params.Set("key", c.cfg.Key)
	params.Set("origin", formatLocation(from))
	params.Set("destination", formatLocation(to))
	params.Set("strategy", "0")

	var resp directionResponse
	if err := c.get(ctx, c.cfg.DirectionURL, params, &resp); err != nil {
		return transport.Route{}, fmt.Errorf("driving route: %w", err)
	}
	if resp.Status != "1" {
		return transport.Route{}, fmt.Errorf("driving route: %w: %s", ErrAPI, resp.Info)
	}
	if len(resp.Route.Paths) == 0 {
		return transport.Route{}, fmt.Errorf("driving route: %w", ErrNoResult)
	}

	path := resp.Route.Paths[0]
	meters, err := strconv.Atoi(path.Distance)
	if err != nil {
		return transport.Route{}, fmt.Errorf("driving route: bad distance %q: %w", path.Distance, err)
	}
	seconds, err := strconv.Atoi(path.Duration)
	if err != nil {
		return transport.Route{}, fmt.Errorf("driving route: bad duration %q: %w", path.Duration, err)
	}
	tolls, _ := strconv.Atoi(path.Tolls) // missing tolls mean none

	return transport.Route{
		DistanceKm:      math.Round(float64(meters)/100) / 10,
		DurationMinutes: int(math.Round(float64(seconds) / 60)),
		Tolls:           tolls,
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, dest interface{}) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// AMap locations are "lng,lat".
func parseLocation(s string) (geo.Coordinates, error) {
	lng, lat, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Coordinates{}, fmt.Errorf("bad location %q", s)
	}
	lngF, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("bad longitude %q: %w", lng, err)
	}
	latF, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("bad latitude %q: %w", lat, err)
	}
	return geo.Coordinates{Lat: latF, Lng: lngF}, nil
}

func formatLocation(c geo.Coordinates) string {
	return strconv.FormatFloat(c.Lng, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lat, 'f', 6, 64)
}
