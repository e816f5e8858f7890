package flights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gilby125/flight-radius/pkg/logger"
	"github.com/gilby125/flight-radius/pkg/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// HTTPSource names results from the VariFlight-style JSON API.
const HTTPSource = "variflight"

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://api.variflight.com"

// HTTPConfig configures HTTPProvider.
type HTTPConfig struct {
	Key           string
	BaseURL       string
	Timeout       time.Duration
	RetryMax      int
	RatePerSecond float64
	Burst         int
}

// HTTPProvider queries a JSON flight API. Requests are rate limited across
// all callers and retried on non-200 answers.
type HTTPProvider struct {
	cfg     HTTPConfig
	client  *retryablehttp.Client
	limiter *rate.Limiter
	now     func() time.Time
	log     *logger.Logger
}

// NewHTTPProvider creates the provider. A zero rate disables limiting.
func NewHTTPProvider(cfg HTTPConfig, log *logger.Logger) *HTTPProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPProvider{
		cfg:     cfg,
		client:  retryhttp.NewClient(retryhttp.Options{Timeout: cfg.Timeout, RetryMax: cfg.RetryMax}),
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
		log:     log.WithField("component", "variflight"),
	}
}

func (p *HTTPProvider) Name() string { return HTTPSource }

type apiResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    []apiFlight `json:"data"`
}

// The API has used both camelCase and snake_case names over time.
type apiFlight struct {
	FlightNo    string   `json:"flightNo"`
	FlightNo2   string   `json:"flight_no"`
	Airline     string   `json:"airline"`
	AirlineName string   `json:"airlineName"`
	DepTime     string   `json:"depTime"`
	DepTime2    string   `json:"dep_time"`
	ArrTime     string   `json:"arrTime"`
	ArrTime2    string   `json:"arr_time"`
	Price       flexNum  `json:"price"`
	LowestPrice flexNum  `json:"lowestPrice"`
	Aircraft    string   `json:"aircraft"`
	PlaneType   string   `json:"planeType"`
	Stops       *flexNum `json:"stops"`
}

// flexNum accepts a JSON number or a numeric string.
type flexNum float64

func (n *flexNum) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*n = flexNum(f)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func (p *HTTPProvider) Search(ctx context.Context, from, to, date string) (*SearchResult, error) {
	if p.cfg.Key == "" {
		return nil, ErrNotConfigured
	}
	from, to, err := ValidateQuery(from, to, date)
	if err != nil {
		return nil, err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("key", p.cfg.Key)
	params.Set("from", from)
	params.Set("to", to)
	params.Set("date", date)
	params.Set("type", "1")

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/api/flight?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s-%s %s: %v", ErrUpstream, from, to, date, err)
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if body.Code != http.StatusOK {
		return nil, fmt.Errorf("%w: api code %d: %s", ErrUpstream, body.Code, body.Message)
	}

	flights := make([]Flight, 0, len(body.Data))
	for _, item := range body.Data {
		price := int(item.Price)
		if price <= 0 {
			price = int(item.LowestPrice)
		}
		if price <= 0 {
			continue
		}
		flights = append(flights, Flight{
			FlightNo: firstNonEmpty(item.FlightNo, item.FlightNo2),
			Airline:  firstNonEmpty(item.Airline, item.AirlineName),
			From:     from,
			To:       to,
			DepTime:  firstNonEmpty(item.DepTime, item.DepTime2),
			ArrTime:  firstNonEmpty(item.ArrTime, item.ArrTime2),
			Price:    price,
			IsDirect: item.Stops == nil || *item.Stops == 0,
			Aircraft: firstNonEmpty(item.Aircraft, item.PlaneType),
		})
	}

	p.log.WithContext(ctx).Debug("Flight search completed",
		"from", from, "to", to, "date", date, "flights", len(flights), "duration", time.Since(start))

	return &SearchResult{
		From:      from,
		To:        to,
		Date:      date,
		Flights:   flights,
		Source:    HTTPSource,
		FetchedAt: p.now(),
	}, nil
}
