package routing

import (
	"context"
	"sort"

	"github.com/gilby125/flight-radius/catalog"
	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Failure stages.
const (
	StageLookup    = "lookup"
	StageDirect    = "direct"
	StageFirstLeg  = "firstLeg"
	StageSecondLeg = "secondLeg"
)

// BranchFailure records a branch of the search that produced nothing because
// a lookup or a flight query failed.
type BranchFailure struct {
	Stage string `json:"stage"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Error string `json:"error"`
}

// Batch is the raw, unranked output of one search stage.
type Batch struct {
	Itineraries []Itinerary
	Failures    []BranchFailure
	Queries     int
	MockPairs   int
	CachedPairs int
	// StopsProbed counts (origin, stop) pairs whose first leg was queried.
	StopsProbed int
	// Rejected counts flight pairs whose connection fell outside the window.
	Rejected int
}

func (b *Batch) merge(o Batch) {
	b.Itineraries = append(b.Itineraries, o.Itineraries...)
	b.Failures = append(b.Failures, o.Failures...)
	b.Queries += o.Queries
	b.MockPairs += o.MockPairs
	b.CachedPairs += o.CachedPairs
	b.StopsProbed += o.StopsProbed
	b.Rejected += o.Rejected
}

// SearchOptions bound the search.
type SearchOptions struct {
	// StopProbeLimit caps the stop airports probed per origin airport. Stops
	// beyond the cap are never queried, trading completeness for query volume.
	StopProbeLimit int
	// LegCandidates is how many of the cheapest flights per leg are combined.
	// Pairing only the cheapest can miss an optimum that needs a pricier leg.
	LegCandidates int
	Concurrency   int
	Rates         Rates
	Window        TransferWindow
}

// DefaultSearchOptions probes 20 stops, combines 3 flights per leg and runs 4 queries at once.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		StopProbeLimit: 20,
		LegCandidates:  3,
		Concurrency:    4,
		Rates:          DefaultRates(),
		Window:         DefaultTransferWindow(),
	}
}

// Searcher enumerates and scores direct and one-stop itineraries.
type Searcher struct {
	provider flights.Provider
	catalog  *catalog.Catalog
	opts     SearchOptions
	log      *logger.Logger
}

// NewSearcher creates a Searcher. Non-positive limits take their defaults.
func NewSearcher(p flights.Provider, cat *catalog.Catalog, opts SearchOptions, log *logger.Logger) *Searcher {
	def := DefaultSearchOptions()
	if opts.StopProbeLimit <= 0 {
		opts.StopProbeLimit = def.StopProbeLimit
	}
	if opts.LegCandidates <= 0 {
		opts.LegCandidates = def.LegCandidates
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Searcher{provider: p, catalog: cat, opts: opts, log: log.WithField("component", "searcher")}
}

// Options returns the effective options.
func (s *Searcher) Options() SearchOptions {
	return s.opts
}

// runOrdered calls fn(i) for i in [0, n) at most limit at a time and waits.
// Each call writes only its own slot, so no lock is held across provider calls.
func runOrdered(ctx context.Context, n, limit int, fn func(ctx context.Context, i int)) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

type query struct {
	from string
	to   string
}

type queryOutcome struct {
	res *flights.SearchResult
	err error
}

func (s *Searcher) search(ctx context.Context, q query, date string) queryOutcome {
	if err := ctx.Err(); err != nil {
		return queryOutcome{err: err}
	}
	res, err := s.provider.Search(ctx, q.from, q.to, date)
	return queryOutcome{res: res, err: err}
}

func (b *Batch) account(stage string, q query, o queryOutcome) bool {
	b.Queries++
	if o.err != nil {
		b.Failures = append(b.Failures, BranchFailure{Stage: stage, From: q.from, To: q.to, Error: o.err.Error()})
		return false
	}
	if o.res.Mock {
		b.MockPairs++
	}
	if o.res.Cached {
		b.CachedPairs++
	}
	return true
}

func (s *Searcher) destRef(code string) AirportRef {
	if a, err := s.catalog.ByCode(code); err == nil {
		return refOf(a)
	}
	return AirportRef{Code: code}
}

func markSource(it *Itinerary, results ...*flights.SearchResult) {
	for _, r := range results {
		it.Mock = it.Mock || r.Mock
	}
	it.Cached = true
	for _, r := range results {
		it.Cached = it.Cached && r.Cached
	}
}

// FindDirect queries every (origin, destination) pair and turns every
// returned flight into a scored direct itinerary. Nothing is filtered here.
func (s *Searcher) FindDirect(ctx context.Context, origins []catalog.NearbyAirport, destCodes []string, date string) Batch {
	type task struct {
		origin catalog.NearbyAirport
		q      query
	}
	var tasks []task
	for _, o := range origins {
		for _, d := range destCodes {
			if o.Code == d {
				continue
			}
			tasks = append(tasks, task{origin: o, q: query{from: o.Code, to: d}})
		}
	}

	outcomes := make([]queryOutcome, len(tasks))
	runOrdered(ctx, len(tasks), s.opts.Concurrency, func(ctx context.Context, i int) {
		outcomes[i] = s.search(ctx, tasks[i].q, date)
	})

	var batch Batch
	for i, t := range tasks {
		o := outcomes[i]
		if !batch.account(StageDirect, t.q, o) {
			continue
		}
		dest := s.destRef(t.q.to)
		for _, f := range o.res.Flights {
			it := NewDirect(t.origin, dest, f, s.opts.Rates)
			markSource(&it, o.res)
			batch.Itineraries = append(batch.Itineraries, it)
		}
	}
	return batch
}

// CandidateStops returns the enabled airports that are neither origins nor
// in a destination's area, in catalog order. The area of a destination code
// is every airport of its catalog city.
func (s *Searcher) CandidateStops(origins []catalog.NearbyAirport, destCodes []string) []catalog.Airport {
	exclude := make(map[string]bool, len(origins)+len(destCodes))
	for _, o := range origins {
		exclude[o.Code] = true
	}
	for _, code := range s.DestinationArea(destCodes) {
		exclude[code] = true
	}
	return s.catalog.StopCandidates(exclude)
}

// DestinationArea returns destCodes followed by the other enabled airports
// sharing a catalog city with any of them.
func (s *Searcher) DestinationArea(destCodes []string) []string {
	seen := make(map[string]bool, len(destCodes))
	out := make([]string, 0, len(destCodes))
	add := func(code string) {
		if !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	for _, d := range destCodes {
		add(d)
	}
	for _, d := range destCodes {
		a, err := s.catalog.ByCode(d)
		if err != nil {
			continue
		}
		for _, sibling := range s.catalog.AirportsInCity(a.City) {
			add(sibling.Code)
		}
	}
	return out
}

// cheapest returns up to n flights with the lowest prices, stable on ties.
func cheapest(fs []flights.Flight, n int) []flights.Flight {
	out := append([]flights.Flight(nil), fs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// FindOneStop probes each origin against the first StopProbeLimit stops.
// A stop with no first-leg flights is pruned; otherwise its second legs to
// every destination are fetched and the cheapest LegCandidates flights of
// each leg are paired. Pairs whose connection lies outside window are
// rejected. Failures only remove their own branch.
func (s *Searcher) FindOneStop(ctx context.Context, origins []catalog.NearbyAirport, destCodes []string, date string, stops []catalog.Airport, window TransferWindow) Batch {
	if len(stops) > s.opts.StopProbeLimit {
		stops = stops[:s.opts.StopProbeLimit]
	}

	type task struct {
		origin catalog.NearbyAirport
		stop   catalog.Airport
	}
	tasks := make([]task, 0, len(origins)*len(stops))
	for _, o := range origins {
		for _, st := range stops {
			tasks = append(tasks, task{origin: o, stop: st})
		}
	}

	batches := make([]Batch, len(tasks))
	runOrdered(ctx, len(tasks), s.opts.Concurrency, func(ctx context.Context, i int) {
		batches[i] = s.probeStop(ctx, tasks[i].origin, tasks[i].stop, destCodes, date, window)
	})

	var out Batch
	for _, b := range batches {
		out.merge(b)
	}
	return out
}

func (s *Searcher) probeStop(ctx context.Context, origin catalog.NearbyAirport, stop catalog.Airport, destCodes []string, date string, window TransferWindow) Batch {
	var b Batch
	b.StopsProbed = 1

	q1 := query{from: origin.Code, to: stop.Code}
	first := s.search(ctx, q1, date)
	if !b.account(StageFirstLeg, q1, first) || len(first.res.Flights) == 0 {
		return b
	}
	firstLegs := cheapest(first.res.Flights, s.opts.LegCandidates)
	stopRef := refOf(stop)

	for _, d := range destCodes {
		if d == stop.Code {
			continue
		}
		q2 := query{from: stop.Code, to: d}
		second := s.search(ctx, q2, date)
		if !b.account(StageSecondLeg, q2, second) || len(second.res.Flights) == 0 {
			continue
		}
		dest := s.destRef(d)

		for _, f1 := range firstLegs {
			for _, f2 := range cheapest(second.res.Flights, s.opts.LegCandidates) {
				transfer := ConnectionMinutes(f1, f2)
				if !window.Contains(transfer) {
					b.Rejected++
					continue
				}
				it := NewOneStop(origin, stopRef, dest, f1, f2, transfer, s.opts.Rates)
				markSource(&it, first.res, second.res)
				b.Itineraries = append(b.Itineraries, it)
			}
		}
	}
	return b
}
