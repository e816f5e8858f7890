package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gilby125/flight-radius/catalog"
	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/pkg/logger"
	"github.com/google/uuid"
)

var (
	// ErrInvalidRequest wraps every request validation failure.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoOriginAirports means no origin city produced an airport in range.
	ErrNoOriginAirports = errors.New("no airports near origin")
	// ErrNoDestinationAirports means the destination resolved to no airport.
	ErrNoDestinationAirports = errors.New("no destination airports")
)

// Request is one route search.
type Request struct {
	OriginCities []string `json:"originCities"`
	// Destination is a city name or an airport code. DestinationCodes, when
	// set, takes precedence.
	Destination      string        `json:"destination,omitempty"`
	DestinationCodes []string      `json:"destinationCodes,omitempty"`
	Date             string        `json:"date"`
	RadiusKm         float64       `json:"radius,omitempty"`
	MaxStops         *int          `json:"maxStops,omitempty"`
	Preferences      Preferences   `json:"preferences"`
	Timeout          time.Duration `json:"-"`
}

// EngineConfig holds the engine defaults and limits.
type EngineConfig struct {
	DefaultRadiusKm float64
	MaxRadiusKm     float64
	DefaultSortBy   SortKey
	// SearchTimeout bounds a search; zero means no bound.
	SearchTimeout time.Duration
	Search        SearchOptions
}

// DefaultEngineConfig returns the stock configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultRadiusKm: 200,
		MaxRadiusKm:     500,
		DefaultSortBy:   SortTotalCost,
		Search:          DefaultSearchOptions(),
	}
}

// Stats describes the work a search did.
type Stats struct {
	OriginAirports      int   `json:"originAirports"`
	DestinationAirports int   `json:"destinationAirports"`
	StopCandidates      int   `json:"stopCandidates"`
	StopsProbed         int   `json:"stopsProbed"`
	Queries             int   `json:"queries"`
	MockPairs           int   `json:"mockPairs"`
	CachedPairs         int   `json:"cachedPairs"`
	Candidates          int   `json:"candidates"`
	RejectedByWindow    int   `json:"rejectedByWindow"`
	Filtered            int   `json:"filtered"`
	Returned            int   `json:"returned"`
	DurationMs          int64 `json:"durationMs"`
}

// Result is the outcome of Optimize and Recommend.
type Result struct {
	Success          bool                    `json:"success"`
	SearchID         string                  `json:"searchId"`
	OriginCities     []string                `json:"originCities"`
	Destination      string                  `json:"destination,omitempty"`
	DestinationCodes []string                `json:"destinationCodes"`
	Date             string                  `json:"date"`
	RadiusKm         float64                 `json:"radius"`
	SortBy           SortKey                 `json:"sortBy"`
	OriginAirports   []catalog.NearbyAirport `json:"originAirports"`
	Itineraries      []Itinerary             `json:"itineraries"`
	Baseline         *BaselineSummary        `json:"baseline"`
	Stats            Stats                   `json:"stats"`
	Failures         []BranchFailure         `json:"failures,omitempty"`
	// Partial is set when the search deadline passed before every branch finished.
	Partial bool `json:"partial"`
	Mock    bool `json:"mock"`
	Cached  bool `json:"cached"`
}

// CompareResult is a Result with its comparison summary.
type CompareResult struct {
	*Result
	Comparison Comparison `json:"comparison"`
}

// PreviewResult sizes a search without querying flights.
type PreviewResult struct {
	Success          bool                    `json:"success"`
	OriginCities     []string                `json:"originCities"`
	RadiusKm         float64                 `json:"radius"`
	OriginAirports   []catalog.NearbyAirport `json:"originAirports"`
	DestinationCodes []string                `json:"destinationCodes"`
	StopCandidates   int                     `json:"potentialStopCount"`
	StopsProbed      int                     `json:"stopsProbed"`
	EstimatedQueries int                     `json:"estimatedQueries"`
	EstimatedSeconds int                     `json:"estimatedSearchTime"`
	Failures         []BranchFailure         `json:"failures,omitempty"`
}

// Engine answers route searches.
type Engine struct {
	locator  *catalog.Locator
	searcher *Searcher
	cfg      EngineConfig
	log      *logger.Logger
}

// NewEngine wires an engine. Zero config fields take DefaultEngineConfig
// values, except Search.Rates: zero rates price time at nothing.
func NewEngine(locator *catalog.Locator, provider flights.Provider, cfg EngineConfig, log *logger.Logger) *Engine {
	def := DefaultEngineConfig()
	if cfg.DefaultRadiusKm <= 0 {
		cfg.DefaultRadiusKm = def.DefaultRadiusKm
	}
	if cfg.MaxRadiusKm <= 0 {
		cfg.MaxRadiusKm = def.MaxRadiusKm
	}
	if cfg.DefaultSortBy == "" {
		cfg.DefaultSortBy = def.DefaultSortBy
	}
	if cfg.Search.Window == (TransferWindow{}) {
		cfg.Search.Window = def.Search.Window
	}
	if log == nil {
		log = logger.Nop()
	}
	searcher := NewSearcher(provider, locator.Catalog(), cfg.Search, log)
	cfg.Search = searcher.Options()
	return &Engine{locator: locator, searcher: searcher, cfg: cfg, log: log.WithField("component", "engine")}
}

// Config returns the effective configuration.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// Locator returns the engine's airport locator.
func (e *Engine) Locator() *catalog.Locator {
	return e.locator
}

type plan struct {
	cities    []string
	canonical string
	radius    float64
	maxStops  int
	prefs     Preferences
	origins   []catalog.NearbyAirport
	destCodes []string
	failures  []BranchFailure
}

// normalize validates req and fills defaults. It makes no external calls.
func (e *Engine) normalize(req Request) (plan, error) {
	var problems []string
	p := plan{prefs: req.Preferences}

	seen := make(map[string]bool, len(req.OriginCities))
	for _, c := range req.OriginCities {
		c = strings.TrimSpace(c)
		key := catalog.NormalizeName(c)
		if key == "" {
			key = c
		}
		if c == "" || seen[key] {
			continue
		}
		seen[key] = true
		p.cities = append(p.cities, c)
	}
	if len(p.cities) == 0 {
		problems = append(problems, "origin city is required")
	}

	if len(req.DestinationCodes) == 0 && strings.TrimSpace(req.Destination) == "" {
		problems = append(problems, "destination is required")
	}
	for _, code := range req.DestinationCodes {
		if !flights.IsAirportCode(strings.ToUpper(strings.TrimSpace(code))) {
			problems = append(problems, fmt.Sprintf("destination code %q is malformed", code))
		}
	}

	if req.Date == "" {
		problems = append(problems, "date is required")
	} else if _, err := time.Parse(flights.DateLayout, req.Date); err != nil {
		problems = append(problems, "date must be YYYY-MM-DD")
	}

	switch r := req.RadiusKm; {
	case r == 0:
		p.radius = e.cfg.DefaultRadiusKm
	case math.IsNaN(r) || r < 0 || r > e.cfg.MaxRadiusKm:
		problems = append(problems, fmt.Sprintf("radius must be between 0 and %g km", e.cfg.MaxRadiusKm))
	default:
		p.radius = r
	}

	p.maxStops = 1
	if req.MaxStops != nil {
		p.maxStops = *req.MaxStops
		if p.maxStops < 0 || p.maxStops > 1 {
			problems = append(problems, "maxStops must be 0 or 1")
		}
	}

	if err := req.Preferences.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if p.prefs.SortBy == "" {
		p.prefs.SortBy = e.cfg.DefaultSortBy
	}
	p.prefs.SortBy = ParseSortKey(string(p.prefs.SortBy))

	if len(problems) > 0 {
		return plan{}, fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return p, nil
}

// resolve looks up origin and destination airports.
func (e *Engine) resolve(ctx context.Context, req Request, p *plan) error {
	nearby := e.locator.NearbyMany(ctx, p.cities, p.radius)
	for _, f := range nearby.Failures {
		p.failures = append(p.failures, BranchFailure{Stage: StageLookup, From: f.City, Error: f.Error})
	}
	p.canonical = p.cities[0]
	if city, err := e.locator.Catalog().City(p.cities[0]); err == nil {
		p.canonical = city.Name
	}
	p.origins = nearby.Airports
	if len(p.origins) == 0 {
		msg := strings.Join(p.cities, ",")
		if len(nearby.Failures) > 0 {
			msg = nearby.Failures[0].Error
		}
		return fmt.Errorf("%w: %s", ErrNoOriginAirports, msg)
	}

	codes, err := e.destinationCodes(ctx, req, p.radius)
	if err != nil {
		return err
	}
	p.destCodes = codes
	return nil
}

func (e *Engine) destinationCodes(ctx context.Context, req Request, radius float64) ([]string, error) {
	cat := e.locator.Catalog()
	if len(req.DestinationCodes) > 0 {
		var codes []string
		seen := make(map[string]bool)
		for _, c := range req.DestinationCodes {
			c = strings.ToUpper(strings.TrimSpace(c))
			if seen[c] {
				continue
			}
			seen[c] = true
			codes = append(codes, c)
		}
		return codes, nil
	}

	dest := strings.TrimSpace(req.Destination)
	if a, err := cat.ByCode(dest); err == nil {
		return []string{a.Code}, nil
	}
	if in := cat.AirportsInCity(dest); len(in) > 0 {
		codes := make([]string, 0, len(in))
		for _, a := range in {
			if a.Enabled {
				codes = append(codes, a.Code)
			}
		}
		if len(codes) > 0 {
			return codes, nil
		}
	}
	nearby, err := e.locator.Nearby(ctx, dest, radius)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDestinationAirports, err)
	}
	if len(nearby.Airports) == 0 {
		return nil, fmt.Errorf("%w: nothing within %g km of %s", ErrNoDestinationAirports, radius, dest)
	}
	codes := make([]string, 0, len(nearby.Airports))
	for _, a := range nearby.Airports {
		codes = append(codes, a.Code)
	}
	return codes, nil
}

func (e *Engine) searchContext(ctx context.Context, req Request) (context.Context, context.CancelFunc) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.SearchTimeout
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (e *Engine) newResult(req Request, p plan) *Result {
	return &Result{
		Success:          true,
		SearchID:         uuid.NewString(),
		OriginCities:     p.cities,
		Destination:      strings.TrimSpace(req.Destination),
		DestinationCodes: p.destCodes,
		Date:             req.Date,
		RadiusKm:         p.radius,
		SortBy:           p.prefs.SortBy,
		OriginAirports:   p.origins,
		Itineraries:      []Itinerary{},
	}
}

// finish filters, ranks, dedupes and annotates the collected batch.
func (e *Engine) finish(res *Result, p plan, batch Batch, candidates []Itinerary) {
	filtered := FilterItineraries(candidates, p.prefs)
	ranked := Dedupe(Rank(filtered, p.prefs.SortBy))

	// Several origin cities have no single home city; the baseline is then
	// simply the best-ranked itinerary.
	home := p.canonical
	if len(p.cities) > 1 {
		home = ""
	}
	baseline := ComputeBaseline(ranked, home)
	AnnotateSavings(ranked, baseline, len(p.cities))

	res.Itineraries = ranked
	res.Baseline = Summarize(baseline)
	res.Failures = append(append([]BranchFailure(nil), p.failures...), batch.Failures...)
	res.Stats.OriginAirports = len(p.origins)
	res.Stats.DestinationAirports = len(p.destCodes)
	res.Stats.StopsProbed = batch.StopsProbed
	res.Stats.Queries = batch.Queries
	res.Stats.MockPairs = batch.MockPairs
	res.Stats.CachedPairs = batch.CachedPairs
	res.Stats.Candidates = len(candidates)
	res.Stats.RejectedByWindow = batch.Rejected
	res.Stats.Filtered = len(candidates) - len(filtered)
	res.Stats.Returned = len(ranked)
	res.Mock = batch.MockPairs > 0
	res.Cached = batch.Queries > 0 && batch.CachedPairs == batch.Queries
}

// deadlinePassed reports whether the search context expired on its own
// rather than through the caller.
func deadlinePassed(parent, search context.Context) bool {
	return parent.Err() == nil && errors.Is(search.Err(), context.DeadlineExceeded)
}

// Optimize runs the full direct and one-stop search. When the search
// deadline passes, whatever was collected is ranked and returned with
// Partial set.
func (e *Engine) Optimize(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	p, err := e.normalize(req)
	if err != nil {
		return nil, err
	}
	if err := e.resolve(ctx, req, &p); err != nil {
		return nil, err
	}

	sctx, cancel := e.searchContext(ctx, req)
	defer cancel()

	res := e.newResult(req, p)
	batch := e.searcher.FindDirect(sctx, p.origins, p.destCodes, req.Date)

	if p.maxStops >= 1 && sctx.Err() == nil {
		stops := e.searcher.CandidateStops(p.origins, p.destCodes)
		res.Stats.StopCandidates = len(stops)
		batch.merge(e.searcher.FindOneStop(sctx, p.origins, p.destCodes, req.Date, stops, e.cfg.Search.Window))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Partial = deadlinePassed(ctx, sctx)

	e.finish(res, p, batch, batch.Itineraries)
	res.Stats.DurationMs = time.Since(start).Milliseconds()

	e.log.WithContext(ctx).Info("Route search finished",
		"search_id", res.SearchID,
		"origins", strings.Join(p.cities, ","),
		"destinations", strings.Join(p.destCodes, ","),
		"date", req.Date,
		"queries", res.Stats.Queries,
		"returned", res.Stats.Returned,
		"failures", len(res.Failures),
		"partial", res.Partial,
		"duration_ms", res.Stats.DurationMs)
	return res, nil
}

// Compare is Optimize plus a summary of the notable itineraries.
func (e *Engine) Compare(ctx context.Context, req Request) (*CompareResult, error) {
	res, err := e.Optimize(ctx, req)
	if err != nil {
		return nil, err
	}
	return &CompareResult{Result: res, Comparison: Compare(res.Itineraries)}, nil
}

// Recommend returns the best direct itinerary per departure airport: the
// cheapest ticket among the flights that pass the preferences. The
// recommendations are ranked and annotated like Optimize results.
func (e *Engine) Recommend(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	zero := 0
	req.MaxStops = &zero
	p, err := e.normalize(req)
	if err != nil {
		return nil, err
	}
	if err := e.resolve(ctx, req, &p); err != nil {
		return nil, err
	}

	sctx, cancel := e.searchContext(ctx, req)
	defer cancel()

	res := e.newResult(req, p)
	batch := e.searcher.FindDirect(sctx, p.origins, p.destCodes, req.Date)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Partial = deadlinePassed(ctx, sctx)

	e.finish(res, p, batch, bestPerAirport(FilterItineraries(batch.Itineraries, p.prefs)))
	res.Stats.Candidates = len(batch.Itineraries)
	res.Stats.Filtered = len(batch.Itineraries) - res.Stats.Returned
	res.Stats.DurationMs = time.Since(start).Milliseconds()
	return res, nil
}

// bestPerAirport keeps the cheapest-ticket itinerary of each departure
// airport, in first-seen airport order.
func bestPerAirport(its []Itinerary) []Itinerary {
	index := make(map[string]int)
	var out []Itinerary
	for _, it := range its {
		code := it.DepartureAirport.Code
		i, ok := index[code]
		if !ok {
			index[code] = len(out)
			out = append(out, it)
			continue
		}
		if it.TotalCost.Ticket < out[i].TotalCost.Ticket {
			out[i] = it
		}
	}
	return out
}

// Preview resolves the airports a search would use and estimates its
// query volume without contacting the flight provider.
func (e *Engine) Preview(ctx context.Context, req Request) (*PreviewResult, error) {
	p, err := e.normalize(req)
	if err != nil {
		return nil, err
	}
	if err := e.resolve(ctx, req, &p); err != nil {
		return nil, err
	}

	o, d := len(p.origins), len(p.destCodes)
	res := &PreviewResult{
		Success:          true,
		OriginCities:     p.cities,
		RadiusKm:         p.radius,
		OriginAirports:   p.origins,
		DestinationCodes: p.destCodes,
		Failures:         p.failures,
	}
	res.EstimatedQueries = o * d
	if p.maxStops >= 1 {
		stops := e.searcher.CandidateStops(p.origins, p.destCodes)
		res.StopCandidates = len(stops)
		res.StopsProbed = min(len(stops), e.cfg.Search.StopProbeLimit)
		// Upper bound: every probed stop has a first leg.
		res.EstimatedQueries += o * res.StopsProbed * (1 + d)
	}
	res.EstimatedSeconds = (o*d*2 + o*res.StopsProbed*2) * 3
	return res, nil
}
