package routing

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/gilby125/flight-radius/catalog"
	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/pkg/geo"
	"github.com/gilby125/flight-radius/pkg/logger"
	"github.com/gilby125/flight-radius/rail"
	"github.com/gilby125/flight-radius/transport"
	"github.com/google/uuid"
)

const (
	TypeTrainThenFlight ItineraryType = "trainThenFlight"
	TypeFlightThenTrain ItineraryType = "flightThenTrain"
)

// Interline failure stages.
const (
	StageTrain      = "train"
	StageHubFlight  = "hubFlight"
	StageStationMap = "stations"
)

// InterlineConfig bounds the train and flight combination search.
type InterlineConfig struct {
	// Window is the change time allowed between a train and a flight.
	Window TransferWindow
	// MaxTrainMinutes caps the duration of the train leg.
	MaxTrainMinutes int
	// StationLimit caps the origin stations a train may leave from.
	StationLimit int
	// HubLimit caps the transfer cities tried per direction.
	HubLimit int
	// AirportLimit caps the airports used at each end of a hub flight.
	AirportLimit int
	// ResultLimit caps each returned list.
	ResultLimit int
}

// DefaultInterlineConfig allows 60 to 240 minutes between modes and trains
// of up to three hours.
func DefaultInterlineConfig() InterlineConfig {
	return InterlineConfig{
		Window:          TransferWindow{Min: 60, Max: 240},
		MaxTrainMinutes: 180,
		StationLimit:    3,
		HubLimit:        5,
		AirportLimit:    2,
		ResultLimit:     10,
	}
}

// Validate rejects windows and limits the search cannot use.
func (c InterlineConfig) Validate() error {
	if err := c.Window.Validate(); err != nil {
		return err
	}
	if c.MaxTrainMinutes <= 0 {
		return fmt.Errorf("max train minutes must be positive, got %d", c.MaxTrainMinutes)
	}
	return nil
}

// InterlineRequest is one combined train and flight search from a city.
type InterlineRequest struct {
	OriginCity  string  `json:"originCity"`
	Destination string  `json:"destination"`
	Date        string  `json:"date"`
	RadiusKm    float64 `json:"radius,omitempty"`
	// MaxTrainHours overrides the configured train duration cap when positive.
	MaxTrainHours float64       `json:"maxTrainHours,omitempty"`
	SortBy        SortKey       `json:"sortBy,omitempty"`
	Timeout       time.Duration `json:"-"`
}

// InterlineOption pairs one train with one flight. For trainThenFlight the
// train runs to the hub and the flight leaves from it; flightThenTrain is
// the reverse.
type InterlineOption struct {
	ID              string                    `json:"id"`
	Type            ItineraryType             `json:"type"`
	HubCity         string                    `json:"hubCity"`
	Train           rail.Train                `json:"train"`
	Flight          flights.Flight            `json:"flight"`
	FlightFrom      AirportRef                `json:"flightFrom"`
	FlightTo        AirportRef                `json:"flightTo"`
	GroundTransport transport.GroundTransport `json:"groundTransport"`
	TotalCost       CostBreakdown             `json:"totalCost"`
	TotalTime       int                       `json:"totalTime"`
	TransferMinutes int                       `json:"transferTime"`
	Mock            bool                      `json:"mock"`
}

// InterlineBest names the cheapest option across every list.
type InterlineBest struct {
	Type      ItineraryType `json:"type"`
	ID        string        `json:"id"`
	TotalCost int           `json:"totalCost"`
	TotalTime int           `json:"totalTime"`
}

// InterlineStats describes the work an interline search did.
type InterlineStats struct {
	OriginStations      int   `json:"originStations"`
	DestinationStations int   `json:"destinationStations"`
	Hubs                int   `json:"hubs"`
	TrainQueries        int   `json:"trainQueries"`
	FlightQueries       int   `json:"flightQueries"`
	RejectedByWindow    int   `json:"rejectedByWindow"`
	DurationMs          int64 `json:"durationMs"`
}

// InterlineResult holds the direct flights and both combination directions,
// each ranked and capped.
type InterlineResult struct {
	Success          bool              `json:"success"`
	SearchID         string            `json:"searchId"`
	OriginCity       string            `json:"originCity"`
	Destination      string            `json:"destination"`
	DestinationCodes []string          `json:"destinationCodes"`
	Date             string            `json:"date"`
	RadiusKm         float64           `json:"radius"`
	SortBy           SortKey           `json:"sortBy"`
	Window           TransferWindow    `json:"transferWindow"`
	MaxTrainMinutes  int               `json:"maxTrainMinutes"`
	Direct           []Itinerary       `json:"direct"`
	TrainThenFlight  []InterlineOption `json:"trainThenFlight"`
	FlightThenTrain  []InterlineOption `json:"flightThenTrain"`
	Best             *InterlineBest    `json:"best"`
	Stats            InterlineStats    `json:"stats"`
	Failures         []BranchFailure   `json:"failures,omitempty"`
	Partial          bool              `json:"partial"`
	Mock             bool              `json:"mock"`
}

// Interliner combines trains with flights around an engine's airports.
type Interliner struct {
	engine   *Engine
	stations *rail.Catalog
	trains   rail.Provider
	cfg      InterlineConfig
	log      *logger.Logger
}

// NewInterliner wires an interline search. Zero config fields take
// DefaultInterlineConfig values.
func NewInterliner(engine *Engine, stations *rail.Catalog, trains rail.Provider, cfg InterlineConfig, log *logger.Logger) *Interliner {
	def := DefaultInterlineConfig()
	if cfg.Window == (TransferWindow{}) {
		cfg.Window = def.Window
	}
	if cfg.MaxTrainMinutes <= 0 {
		cfg.MaxTrainMinutes = def.MaxTrainMinutes
	}
	if cfg.StationLimit <= 0 {
		cfg.StationLimit = def.StationLimit
	}
	if cfg.HubLimit <= 0 {
		cfg.HubLimit = def.HubLimit
	}
	if cfg.AirportLimit <= 0 {
		cfg.AirportLimit = def.AirportLimit
	}
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = def.ResultLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Interliner{engine: engine, stations: stations, trains: trains, cfg: cfg, log: log.WithField("component", "interline")}
}

// Config returns the effective configuration.
func (in *Interliner) Config() InterlineConfig {
	return in.cfg
}

// Stations returns the station catalog.
func (in *Interliner) Stations() *rail.Catalog {
	return in.stations
}

// Trains returns the train provider.
func (in *Interliner) Trains() rail.Provider {
	return in.trains
}

// hub is a city with both stations and airports where the modes meet.
type hub struct {
	city       string
	stations   []rail.Station
	airports   []catalog.Airport
	distanceKm float64
}

type interlinePlan struct {
	origin    catalog.Origin
	airports  []catalog.NearbyAirport
	destCodes []string
	area      map[string]bool
	destCity  string
	radius    float64
	maxTrain  int
	sortBy    SortKey
}

func (in *Interliner) normalize(req InterlineRequest) (interlinePlan, error) {
	var problems []string
	p := interlinePlan{maxTrain: in.cfg.MaxTrainMinutes}
	if strings.TrimSpace(req.OriginCity) == "" {
		problems = append(problems, "origin city is required")
	}
	if strings.TrimSpace(req.Destination) == "" {
		problems = append(problems, "destination is required")
	}
	if req.Date == "" {
		problems = append(problems, "date is required")
	} else if _, err := time.Parse(flights.DateLayout, req.Date); err != nil {
		problems = append(problems, "date must be YYYY-MM-DD")
	}

	maxRadius := in.engine.cfg.MaxRadiusKm
	switch r := req.RadiusKm; {
	case r == 0:
		p.radius = in.engine.cfg.DefaultRadiusKm
	case math.IsNaN(r) || r < 0 || r > maxRadius:
		problems = append(problems, fmt.Sprintf("radius must be between 0 and %g km", maxRadius))
	default:
		p.radius = r
	}

	switch h := req.MaxTrainHours; {
	case h == 0:
	case math.IsNaN(h) || h < 0 || h > 24:
		problems = append(problems, "maxTrainHours must be between 0 and 24")
	default:
		p.maxTrain = int(math.Round(h * 60))
	}

	p.sortBy = ParseSortKey(string(req.SortBy))
	if len(problems) > 0 {
		return interlinePlan{}, fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return p, nil
}

func (in *Interliner) resolve(ctx context.Context, req InterlineRequest, p *interlinePlan) error {
	loc := in.engine.locator
	origin, err := loc.Locate(ctx, req.OriginCity)
	if err != nil {
		return err
	}
	p.origin = origin
	p.airports = loc.NearbyOrigin(ctx, origin, p.radius).Airports

	codes, err := in.engine.destinationCodes(ctx, Request{Destination: req.Destination}, p.radius)
	if err != nil {
		return err
	}
	p.destCodes = codes
	p.area = make(map[string]bool)
	for _, code := range in.engine.searcher.DestinationArea(codes) {
		p.area[code] = true
	}

	p.destCity = strings.TrimSpace(req.Destination)
	if a, err := loc.Catalog().ByCode(codes[0]); err == nil {
		p.destCity = a.City
	}
	return nil
}

// hubs returns up to HubLimit cities with stations and enabled airports
// that a train from at can reach within maxTrain minutes, nearest first.
// Cities named in skip and cities with an airport in the destination area
// are never hubs.
func (in *Interliner) hubs(at geo.Coordinates, maxTrain int, skip []string, area map[string]bool) []hub {
	skipped := make(map[string]bool, len(skip))
	for _, c := range skip {
		skipped[catalog.NormalizeName(c)] = true
	}
	reach := in.stations.MaxSpeedKmh() * float64(maxTrain) / 60

	var out []hub
	seen := make(map[string]bool)
	for _, st := range in.stations.Stations() {
		key := catalog.NormalizeName(st.City)
		if seen[key] || skipped[key] {
			continue
		}
		seen[key] = true

		airports := in.engine.locator.Catalog().AirportsInCity(st.City)
		if len(airports) == 0 || anyInArea(airports, area) {
			continue
		}
		stations := in.stations.InCity(st.City)
		d := math.Inf(1)
		for _, s := range stations {
			d = min(d, geo.DistanceKm(at, s.Location))
		}
		if d > reach {
			continue
		}
		out = append(out, hub{city: st.City, stations: stations, airports: airports, distanceKm: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].distanceKm < out[j].distanceKm })
	if len(out) > in.cfg.HubLimit {
		out = out[:in.cfg.HubLimit]
	}
	return out
}

func anyInArea(airports []catalog.Airport, area map[string]bool) bool {
	for _, a := range airports {
		if area[a.Code] {
			return true
		}
	}
	return false
}

func stationsOf(nearby []rail.NearbyStation) []rail.Station {
	out := make([]rail.Station, len(nearby))
	for i, n := range nearby {
		out[i] = n.Station
	}
	return out
}

// interlineBatch is the raw output of one hub.
type interlineBatch struct {
	options  []InterlineOption
	failures []BranchFailure
	trainQ   int
	flightQ  int
	rejected int
}

func (b *interlineBatch) merge(o interlineBatch) {
	b.options = append(b.options, o.options...)
	b.failures = append(b.failures, o.failures...)
	b.trainQ += o.trainQ
	b.flightQ += o.flightQ
	b.rejected += o.rejected
}

// trainsWithin fetches the trains between two station sets that run no
// longer than maxTrain minutes.
func (in *Interliner) trainsWithin(ctx context.Context, b *interlineBatch, froms, tos []rail.Station, date string, maxTrain int) ([]rail.Train, bool) {
	b.trainQ += len(froms) * len(tos)
	trains, mock, failures, err := rail.SearchStations(ctx, in.trains, froms, tos, date)
	for _, f := range failures {
		b.failures = append(b.failures, BranchFailure{Stage: StageTrain, Error: f})
	}
	if err != nil {
		return nil, false
	}
	out := trains[:0]
	for _, t := range trains {
		if t.Duration <= maxTrain {
			out = append(out, t)
		}
	}
	return out, mock
}

// pairFlights is one answered airport pair of a hub flight.
type pairFlights struct {
	from, to AirportRef
	gt       transport.GroundTransport
	res      *flights.SearchResult
}

// hubFlights queries every (from, to) airport pair and returns the pairs
// that have flights.
func (in *Interliner) hubFlights(ctx context.Context, b *interlineBatch, froms []catalog.NearbyAirport, tos []AirportRef, date string) []pairFlights {
	s := in.engine.searcher
	var out []pairFlights
	for _, f := range froms {
		for _, t := range tos {
			if f.Code == t.Code {
				continue
			}
			q := query{from: f.Code, to: t.Code}
			o := s.search(ctx, q, date)
			b.flightQ++
			if o.err != nil {
				b.failures = append(b.failures, BranchFailure{Stage: StageHubFlight, From: q.from, To: q.to, Error: o.err.Error()})
				continue
			}
			if len(o.res.Flights) == 0 {
				continue
			}
			out = append(out, pairFlights{from: refOfNearby(f), to: t, gt: f.Transport, res: o.res})
		}
	}
	return out
}

func (in *Interliner) newOption(typ ItineraryType, h hub, train rail.Train, pf pairFlights, f flights.Flight, gt transport.GroundTransport, transfer int, trainMock bool) InterlineOption {
	rates := in.engine.cfg.Search.Rates
	cost, total := ScoreJourney(train.Price+f.Price, train.Duration+FlightDuration(f), gt, transfer, rates)
	opt := InterlineOption{
		Type:            typ,
		HubCity:         h.city,
		Train:           train,
		Flight:          f,
		FlightFrom:      pf.from,
		FlightTo:        pf.to,
		GroundTransport: gt,
		TotalCost:       cost,
		TotalTime:       total,
		TransferMinutes: transfer,
		Mock:            trainMock || pf.res.Mock,
	}
	key := strings.Join([]string{string(typ), train.TrainNo, train.From, train.DepTime, f.FlightNo, pf.from.Code, f.DepTime, pf.to.Code}, "|")
	opt.ID = uuid.NewSHA1(itineraryNamespace, []byte(key)).String()
	return opt
}

// trainThenFlight takes a train from the origin's stations to h and flies
// from h's airports to the destination.
func (in *Interliner) trainThenFlight(ctx context.Context, p interlinePlan, originStations []rail.Station, h hub, date string) interlineBatch {
	var b interlineBatch
	trains, trainMock := in.trainsWithin(ctx, &b, originStations, h.stations, date, p.maxTrain)
	if len(trains) == 0 {
		return b
	}

	froms := make([]catalog.NearbyAirport, 0, in.cfg.AirportLimit)
	for _, a := range h.airports[:min(len(h.airports), in.cfg.AirportLimit)] {
		froms = append(froms, catalog.NearbyAirport{Airport: a})
	}
	tos := make([]AirportRef, len(p.destCodes))
	for i, d := range p.destCodes {
		tos[i] = in.engine.searcher.destRef(d)
	}
	legs := in.engine.searcher.opts.LegCandidates

	for _, pf := range in.hubFlights(ctx, &b, froms, tos, date) {
		for _, f := range cheapest(pf.res.Flights, legs) {
			dep, ok := ParseClock(f.DepTime)
			if !ok {
				continue
			}
			for _, t := range trains {
				arr, ok := ParseClock(t.ArrTime)
				if !ok {
					continue
				}
				transfer := wrapDay(arr, dep)
				if !in.cfg.Window.Contains(transfer) {
					b.rejected++
					continue
				}
				station, _ := in.stations.ByCode(t.From)
				gt := in.engine.locator.Transport(ctx, p.origin.Location, station.Location)
				b.options = append(b.options, in.newOption(TypeTrainThenFlight, h, t, pf, f, gt, transfer, trainMock))
			}
		}
	}
	return b
}

// flightThenTrain flies from the origin's airports to h and takes a train
// from h's stations to the destination's stations.
func (in *Interliner) flightThenTrain(ctx context.Context, p interlinePlan, destStations []rail.Station, h hub, date string) interlineBatch {
	var b interlineBatch
	trains, trainMock := in.trainsWithin(ctx, &b, h.stations, destStations, date, p.maxTrain)
	if len(trains) == 0 {
		return b
	}

	froms := p.airports[:min(len(p.airports), in.cfg.AirportLimit)]
	tos := make([]AirportRef, 0, in.cfg.AirportLimit)
	for _, a := range h.airports[:min(len(h.airports), in.cfg.AirportLimit)] {
		tos = append(tos, refOf(a))
	}
	legs := in.engine.searcher.opts.LegCandidates

	for _, pf := range in.hubFlights(ctx, &b, froms, tos, date) {
		for _, f := range cheapest(pf.res.Flights, legs) {
			arr, ok := ParseClock(f.ArrTime)
			if !ok {
				continue
			}
			for _, t := range trains {
				dep, ok := ParseClock(t.DepTime)
				if !ok {
					continue
				}
				transfer := wrapDay(arr, dep)
				if !in.cfg.Window.Contains(transfer) {
					b.rejected++
					continue
				}
				b.options = append(b.options, in.newOption(TypeFlightThenTrain, h, t, pf, f, pf.gt, transfer, trainMock))
			}
		}
	}
	return b
}

// rankOptions sorts options ascending by the metric, drops repeated IDs and
// keeps the first limit.
func rankOptions(opts []InterlineOption, by SortKey, limit int) []InterlineOption {
	var metric func(InterlineOption) int
	switch ParseSortKey(string(by)) {
	case SortTotalTime:
		metric = func(o InterlineOption) int { return o.TotalTime }
	case SortTicketPrice:
		metric = func(o InterlineOption) int { return o.TotalCost.Ticket }
	default:
		metric = func(o InterlineOption) int { return o.TotalCost.Total }
	}
	sort.SliceStable(opts, func(i, j int) bool { return metric(opts[i]) < metric(opts[j]) })

	seen := make(map[string]bool, len(opts))
	out := make([]InterlineOption, 0, min(len(opts), limit))
	for _, o := range opts {
		if seen[o.ID] {
			continue
		}
		seen[o.ID] = true
		out = append(out, o)
		if len(out) == limit {
			break
		}
	}
	return out
}

func bestOf(res *InterlineResult) *InterlineBest {
	var best *InterlineBest
	consider := func(typ ItineraryType, id string, total, minutes int) {
		if best == nil || total < best.TotalCost {
			best = &InterlineBest{Type: typ, ID: id, TotalCost: total, TotalTime: minutes}
		}
	}
	for _, it := range res.Direct {
		consider(it.Type, it.ID, it.TotalCost.Total, it.TotalTime)
	}
	for _, o := range res.TrainThenFlight {
		consider(o.Type, o.ID, o.TotalCost.Total, o.TotalTime)
	}
	for _, o := range res.FlightThenTrain {
		consider(o.Type, o.ID, o.TotalCost.Total, o.TotalTime)
	}
	return best
}

// Search finds direct flights, train-then-flight and flight-then-train
// combinations from one origin city to a destination. A combination is kept
// only when the change between train and flight falls inside the window.
// Hubs never lie in the origin city or the destination's area.
func (in *Interliner) Search(ctx context.Context, req InterlineRequest) (*InterlineResult, error) {
	start := time.Now()
	p, err := in.normalize(req)
	if err != nil {
		return nil, err
	}
	if err := in.resolve(ctx, req, &p); err != nil {
		return nil, err
	}

	sctx, cancel := in.engine.searchContext(ctx, Request{Timeout: req.Timeout})
	defer cancel()

	res := &InterlineResult{
		Success:          true,
		SearchID:         uuid.NewString(),
		OriginCity:       p.origin.City,
		Destination:      strings.TrimSpace(req.Destination),
		DestinationCodes: p.destCodes,
		Date:             req.Date,
		RadiusKm:         p.radius,
		SortBy:           p.sortBy,
		Window:           in.cfg.Window,
		MaxTrainMinutes:  p.maxTrain,
	}

	direct := in.engine.searcher.FindDirect(sctx, p.airports, p.destCodes, req.Date)
	res.Failures = append(res.Failures, direct.Failures...)
	res.Stats.FlightQueries = direct.Queries
	res.Mock = direct.MockPairs > 0

	originStations := in.stations.Nearby(p.origin.Location, p.radius)
	if len(originStations) > in.cfg.StationLimit {
		originStations = originStations[:in.cfg.StationLimit]
	}
	destStations := in.stations.InCity(p.destCity)
	res.Stats.OriginStations = len(originStations)
	res.Stats.DestinationStations = len(destStations)
	if len(destStations) == 0 {
		res.Failures = append(res.Failures, BranchFailure{Stage: StageStationMap, To: p.destCity, Error: rail.ErrNoStations.Error()})
	}

	type job struct {
		typ ItineraryType
		h   hub
	}
	var jobs []job
	if len(originStations) > 0 {
		for _, h := range in.hubs(p.origin.Location, p.maxTrain, []string{p.origin.City, p.destCity}, p.area) {
			jobs = append(jobs, job{typ: TypeTrainThenFlight, h: h})
		}
	}
	if len(destStations) > 0 && len(p.airports) > 0 {
		for _, h := range in.hubs(destStations[0].Location, p.maxTrain, []string{p.origin.City, p.destCity}, p.area) {
			jobs = append(jobs, job{typ: TypeFlightThenTrain, h: h})
		}
	}
	res.Stats.Hubs = len(jobs)

	batches := make([]interlineBatch, len(jobs))
	runOrdered(sctx, len(jobs), in.engine.searcher.opts.Concurrency, func(ctx context.Context, i int) {
		if ctx.Err() != nil {
			return
		}
		j := jobs[i]
		if j.typ == TypeTrainThenFlight {
			batches[i] = in.trainThenFlight(ctx, p, stationsOf(originStations), j.h, req.Date)
			return
		}
		batches[i] = in.flightThenTrain(ctx, p, destStations, j.h, req.Date)
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Partial = deadlinePassed(ctx, sctx)

	var all interlineBatch
	for _, b := range batches {
		all.merge(b)
	}
	var ttf, ftt []InterlineOption
	for _, o := range all.options {
		res.Mock = res.Mock || o.Mock
		if o.Type == TypeTrainThenFlight {
			ttf = append(ttf, o)
		} else {
			ftt = append(ftt, o)
		}
	}

	res.Direct = Dedupe(Rank(direct.Itineraries, p.sortBy))
	if len(res.Direct) > in.cfg.ResultLimit {
		res.Direct = res.Direct[:in.cfg.ResultLimit]
	}
	res.TrainThenFlight = rankOptions(ttf, p.sortBy, in.cfg.ResultLimit)
	res.FlightThenTrain = rankOptions(ftt, p.sortBy, in.cfg.ResultLimit)
	res.Best = bestOf(res)
	res.Failures = append(res.Failures, all.failures...)
	res.Stats.TrainQueries = all.trainQ
	res.Stats.FlightQueries += all.flightQ
	res.Stats.RejectedByWindow = all.rejected
	res.Stats.DurationMs = time.Since(start).Milliseconds()

	in.log.WithContext(ctx).Info("Interline search finished",
		"search_id", res.SearchID,
		"origin", p.origin.City,
		"destinations", strings.Join(p.destCodes, ","),
		"date", req.Date,
		"hubs", res.Stats.Hubs,
		"train_then_flight", len(res.TrainThenFlight),
		"flight_then_train", len(res.FlightThenTrain),
		"partial", res.Partial,
		"duration_ms", res.Stats.DurationMs)
	return res, nil
}
