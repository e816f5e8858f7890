// Package app builds the service graph from a Config and runs its
// background jobs. The HTTP server and the MCP server share it.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gilby125/flight-radius/api"
	"github.com/gilby125/flight-radius/catalog"
	"github.com/gilby125/flight-radius/config"
	"github.com/gilby125/flight-radius/flexdate"
	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/history"
	"github.com/gilby125/flight-radius/pkg/amap"
	"github.com/gilby125/flight-radius/pkg/buildinfo"
	"github.com/gilby125/flight-radius/pkg/cache"
	"github.com/gilby125/flight-radius/pkg/health"
	"github.com/gilby125/flight-radius/pkg/logger"
	"github.com/gilby125/flight-radius/pkg/registry"
	"github.com/gilby125/flight-radius/rail"
	"github.com/gilby125/flight-radius/routing"
	"github.com/gilby125/flight-radius/transport"
	"github.com/gilby125/flight-radius/worker"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sweepInterval     = time.Minute
	heartbeatInterval = 15 * time.Second
)

// App holds the wired services.
type App struct {
	Config *config.Config
	Log    *logger.Logger

	// Redis is nil when Redis is disabled.
	Redis    redis.UniversalClient
	Cache    cache.Cache
	Catalog  *catalog.Catalog
	Flights  *flights.CachedProvider
	Engine   *routing.Engine
	Stations *rail.Catalog
	Trains   rail.Provider
	// Interline combines Trains with the Engine's flights.
	Interline *routing.Interliner
	Scanner   *flexdate.Scanner
	History   history.Store
	Health    *health.HealthChecker
	Registry  *registry.Registry

	instanceID string
	startedAt  time.Time
	elector    *worker.LeaderElector
	warmer     *worker.Warmer
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

// Option adjusts New.
type Option func(*options)

type options struct {
	redis   redis.UniversalClient
	catalog *catalog.Catalog
}

// WithRedis uses an existing client instead of dialling RedisConfig.
func WithRedis(client redis.UniversalClient) Option {
	return func(o *options) { o.redis = client }
}

// WithCatalog replaces the embedded airport catalog.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(o *options) { o.catalog = cat }
}

// New validates cfg and wires every service. It dials Redis when enabled
// and fails if the server does not answer a ping.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Log: log, startedAt: time.Now().UTC()}

	if cfg.RedisConfig.Enabled || o.redis != nil {
		client := o.redis
		if client == nil {
			client = redis.NewClient(&redis.Options{
				Addr:     cfg.RedisConfig.Addr(),
				Password: cfg.RedisConfig.Password,
				DB:       cfg.RedisConfig.DB,
			})
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisConfig.Addr(), err)
		}
		a.Redis = client
		a.Cache = cache.NewRedisCache(client, cfg.CacheConfig.Prefix)
		a.Registry = registry.New(client, cfg.CacheConfig.Prefix)
		log.Info("Using Redis cache", "addr", cfg.RedisConfig.Addr(), "prefix", cfg.CacheConfig.Prefix)
	} else {
		a.Cache = cache.NewMemoryCache()
		log.Info("Redis disabled, using in-process cache")
	}

	a.Catalog = o.catalog
	if a.Catalog == nil {
		cat, err := catalog.Default()
		if err != nil {
			return nil, fmt.Errorf("load airport catalog: %w", err)
		}
		a.Catalog = cat
	}

	model := TransportModel(cfg.TransportConfig)
	if err := model.Validate(); err != nil {
		return nil, err
	}

	var (
		geocoder catalog.Geocoder
		router   transport.Router
	)
	if cfg.AmapConfig.Enabled() {
		client := amap.New(amap.Config{
			Key:          cfg.AmapConfig.Key,
			GeocodeURL:   cfg.AmapConfig.GeocodeURL,
			DirectionURL: cfg.AmapConfig.DirectionURL,
			Timeout:      cfg.AmapConfig.Timeout,
			RetryMax:     cfg.AmapConfig.RetryMax,
		})
		geocoder = catalog.NewCachedGeocoder(client, cache.NewCacheManager(a.Cache), cfg.CacheConfig.GeocodeTTL)
		router = client
	}
	estimator := transport.NewEstimator(model, router, log)
	locator := catalog.NewLocator(a.Catalog, estimator, geocoder, log)

	a.Flights = flights.NewCachedProvider(FlightProvider(cfg.ProviderConfig, log), a.Cache, cfg.CacheConfig.FlightTTL, log)
	a.Engine = routing.NewEngine(locator, a.Flights, EngineConfig(cfg), log)

	stations, err := rail.Default()
	if err != nil {
		return nil, fmt.Errorf("load station catalog: %w", err)
	}
	a.Stations = stations
	a.Trains = rail.NewMockProvider(stations)
	a.Interline = routing.NewInterliner(a.Engine, a.Stations, a.Trains, InterlineConfig(cfg), log)

	a.Scanner = flexdate.NewScanner(a.Flights, cfg.SearchConfig.FlexConcurrency, log)

	if a.Redis != nil {
		a.History = history.NewRedisStore(a.Redis, cfg.CacheConfig.Prefix, cfg.HistoryConfig.Size, cfg.HistoryConfig.TTL)
	} else {
		a.History = history.NewMemoryStore(cfg.HistoryConfig.Size, cfg.HistoryConfig.TTL)
	}

	a.Health = health.NewHealthChecker(buildinfo.Version)
	if a.Redis != nil {
		a.Health.AddChecker(&health.RedisChecker{Client: a.Redis, Name: "redis"})
	}
	a.Health.AddChecker(&health.CatalogChecker{Count: func() int { return len(a.Catalog.Enabled()) }, Name: "catalog"})
	a.Health.AddChecker(&health.CatalogChecker{Count: func() int { return len(a.Stations.Stations()) }, Name: "stations"})
	a.Health.AddChecker(&health.ProviderChecker{
		Provider:     a.Flights.Name(),
		Live:         cfg.ProviderConfig.VariflightKey != "",
		MockFallback: cfg.ProviderConfig.MockFallback,
		Name:         "flight_provider",
	})

	log.Info("Services wired",
		"provider", a.Flights.Name(),
		"amap", cfg.AmapConfig.Enabled(),
		"airports", len(a.Catalog.Enabled()),
		"stations", len(a.Stations.Stations()),
		"redis", a.Redis != nil)
	return a, nil
}

// TransportModel maps the configured ground transport profiles.
func TransportModel(tc config.TransportConfig) transport.Model {
	return transport.Model{Profiles: []transport.Profile{
		{Mode: transport.ModeCar, SpeedKmh: tc.Car.SpeedKmh, CostPerKm: tc.Car.CostPerKm},
		{Mode: transport.ModeTrain, SpeedKmh: tc.Train.SpeedKmh, CostPerKm: tc.Train.CostPerKm},
		{Mode: transport.ModeBus, SpeedKmh: tc.Bus.SpeedKmh, CostPerKm: tc.Bus.CostPerKm},
	}}
}

// EngineConfig maps the search and cost sections.
func EngineConfig(cfg *config.Config) routing.EngineConfig {
	s := cfg.SearchConfig
	return routing.EngineConfig{
		DefaultRadiusKm: s.DefaultRadiusKm,
		MaxRadiusKm:     s.MaxRadiusKm,
		DefaultSortBy:   routing.ParseSortKey(s.DefaultSortBy),
		SearchTimeout:   s.Timeout,
		Search: routing.SearchOptions{
			StopProbeLimit: s.StopProbeLimit,
			LegCandidates:  s.LegCandidates,
			Concurrency:    s.Concurrency,
			Rates: routing.Rates{
				TimeValuePerMinute: cfg.CostConfig.TimeValueRate,
				TransferPerMinute:  cfg.CostConfig.TransferRate,
			},
			Window: routing.TransferWindow{Min: s.TransferMin, Max: s.TransferMax},
		},
	}
}

// InterlineConfig maps the interline section. Train timetables are always
// synthetic.
func InterlineConfig(cfg *config.Config) routing.InterlineConfig {
	il := cfg.InterlineConfig
	def := routing.DefaultInterlineConfig()
	def.Window = routing.TransferWindow{Min: il.TransferMin, Max: il.TransferMax}
	def.MaxTrainMinutes = il.MaxTrainMinutes
	return def
}

// FlightProvider picks the flight source. With a key the HTTP API is used,
// falling back to synthetic flights when MockFallback is set. Without a key
// MockFallback serves synthetic flights and otherwise every query fails
// with flights.ErrNotConfigured.
func FlightProvider(pc config.ProviderConfig, log *logger.Logger) flights.Provider {
	if pc.VariflightKey == "" && pc.MockFallback {
		return flights.NewMockProvider()
	}
	live := flights.NewHTTPProvider(flights.HTTPConfig{
		Key:           pc.VariflightKey,
		BaseURL:       pc.BaseURL,
		Timeout:       pc.Timeout,
		RetryMax:      pc.RetryMax,
		RatePerSecond: pc.RatePerSecond,
		Burst:         pc.Burst,
	}, log)
	if pc.MockFallback {
		return flights.NewFallbackProvider(live, flights.NewMockProvider(), log)
	}
	return live
}

// Deps returns the handler dependencies.
func (a *App) Deps() api.Deps {
	deps := api.Deps{
		Config:    a.Config,
		Engine:    a.Engine,
		Interline: a.Interline,
		Scanner:   a.Scanner,
		Provider:  a.Flights,
		History:   a.History,
		Health:    a.Health,
		Cache:     cache.NewCacheManager(a.Cache),
	}
	if a.Registry != nil {
		deps.Instances = a.Registry
	}
	return deps
}

// InstanceID identifies this process in leader election and the registry.
func (a *App) InstanceID() string {
	if a.elector != nil {
		return a.elector.InstanceID()
	}
	if a.instanceID == "" {
		host, _ := os.Hostname()
		a.instanceID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}
	return a.instanceID
}

// Start launches the background jobs: the memory cache sweeper, the cache
// warmer with its leader election, and the registry heartbeat.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if mem, ok := a.Cache.(*cache.MemoryCache); ok {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			ticker := time.NewTicker(sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := mem.Sweep(); n > 0 {
						a.Log.Debug("Swept expired cache entries", "count", n)
					}
				}
			}
		}()
	}

	wc := a.Config.WarmerConfig
	if wc.Enabled {
		var leader worker.Leader
		if a.Redis != nil {
			a.elector = worker.NewLeaderElector(a.Redis, a.Config.CacheConfig.Prefix+":"+wc.LockKey, wc.LockTTL, wc.LockRenew,
				func() { a.Log.Info("Became cache warmer leader") },
				func() { a.Log.Warn("Lost cache warmer leadership") },
				a.Log)
			a.elector.Start()
			leader = a.elector
		}
		a.warmer = worker.NewWarmer(worker.WarmerOptions{
			Schedule:    wc.Schedule,
			Routes:      wc.Routes,
			DaysAhead:   wc.DaysAhead,
			Concurrency: a.Config.SearchConfig.Concurrency,
		}, a.Flights, leader, a.Log)
		if err := a.warmer.Start(); err != nil {
			a.Stop()
			return err
		}
	}

	if a.Registry != nil {
		host, _ := os.Hostname()
		id := a.InstanceID()
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.Registry.Run(ctx, heartbeatInterval, func() registry.Heartbeat {
				hb := registry.Heartbeat{
					ID:        id,
					Hostname:  host,
					Version:   buildinfo.Version,
					StartedAt: a.startedAt,
				}
				if a.elector != nil {
					hb.Leader = a.elector.IsLeader()
				}
				if a.warmer != nil {
					last := a.warmer.Last()
					hb.WarmedQueries = last.Refreshed
					hb.LastWarmAt = last.StartedAt
				}
				return hb
			}, a.Log)
		}()
	}
	return nil
}

// Stop ends the background jobs and waits for them. Later calls do nothing.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		if a.warmer != nil {
			a.warmer.Stop()
		}
		if a.elector != nil {
			a.elector.Stop()
		}
		if a.cancel != nil {
			a.cancel()
		}
		a.wg.Wait()
	})
}

// Close stops the background jobs and releases the Redis connection.
func (a *App) Close() error {
	a.Stop()
	if a.Redis != nil {
		return a.Redis.Close()
	}
	return nil
}
