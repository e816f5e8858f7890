package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/currency"
)

// Config holds all application configuration
type Config struct {
	Port            string
	HTTPBindAddr    string
	APIEnabled      bool
	Environment     string
	LoggingConfig   LoggingConfig
	RedisConfig     RedisConfig
	CacheConfig     CacheConfig
	SearchConfig    SearchConfig
	InterlineConfig InterlineConfig
	CostConfig      CostConfig
	TransportConfig TransportConfig
	ProviderConfig  ProviderConfig
	AmapConfig      AmapConfig
	WarmerConfig    WarmerConfig
	HistoryConfig   HistoryConfig
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// RedisConfig holds Redis connection configuration. With Enabled false
// the caches and the history live in process memory.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// CacheConfig holds cache lifetimes
type CacheConfig struct {
	Prefix     string
	FlightTTL  time.Duration
	GeocodeTTL time.Duration
}

// SearchConfig holds route search limits and defaults
type SearchConfig struct {
	DefaultRadiusKm float64
	MaxRadiusKm     float64
	DefaultSortBy   string
	StopProbeLimit  int
	LegCandidates   int
	TransferMin     int
	TransferMax     int
	Timeout         time.Duration // zero disables the search deadline
	Concurrency     int
	FlexConcurrency int
}

// InterlineConfig holds the train and flight combination limits
type InterlineConfig struct {
	TransferMin     int
	TransferMax     int
	MaxTrainMinutes int
}

// CostConfig holds the rates that turn minutes into money
type CostConfig struct {
	TimeValueRate float64
	TransferRate  float64
	Currency      currency.Unit
}

// FormatAmount renders amount in the configured currency.
func (c CostConfig) FormatAmount(amount int) string {
	return fmt.Sprint(currency.Symbol(c.Currency.Amount(amount)))
}

// ModeConfig is the speed and price of one ground transport mode
type ModeConfig struct {
	SpeedKmh  float64 `json:"speed"`
	CostPerKm float64 `json:"costPerKm"`
}

// TransportConfig holds the ground transport model
type TransportConfig struct {
	Car   ModeConfig `json:"car"`
	Train ModeConfig `json:"train"`
	Bus   ModeConfig `json:"bus"`
}

// ProviderConfig holds flight data source configuration
type ProviderConfig struct {
	VariflightKey string `json:"-"`
	BaseURL       string
	Timeout       time.Duration
	RetryMax      int
	RatePerSecond float64
	Burst         int
	MockFallback  bool
}

// AmapConfig holds geocoding and driving route API configuration
type AmapConfig struct {
	Key          string `json:"-"`
	GeocodeURL   string
	DirectionURL string
	Timeout      time.Duration
	RetryMax     int
}

// Enabled reports whether a key is configured.
func (a AmapConfig) Enabled() bool {
	return a.Key != ""
}

// Route is an airport pair the cache warmer keeps fresh
type Route struct {
	From string
	To   string
}

// WarmerConfig holds the cache warmer schedule
type WarmerConfig struct {
	Enabled   bool
	Schedule  string
	Routes    []Route
	DaysAhead int
	LockKey   string
	LockTTL   time.Duration
	LockRenew time.Duration
}

// HistoryConfig holds recent search history limits
type HistoryConfig struct {
	Size int
	TTL  time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	unit, err := currency.ParseISO(strings.ToUpper(getEnv("CURRENCY", "CNY")))
	if err != nil {
		return nil, fmt.Errorf("CURRENCY: %w", err)
	}
	routes, err := ParseRoutes(getEnv("WARMER_ROUTES", ""))
	if err != nil {
		return nil, fmt.Errorf("WARMER_ROUTES: %w", err)
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		HTTPBindAddr: getEnv("HTTP_BIND_ADDR", ""),
		APIEnabled:   getEnvBool("API_ENABLED", true),
		Environment:  getEnv("ENVIRONMENT", "development"),
		LoggingConfig: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		RedisConfig: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "redis"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		CacheConfig: CacheConfig{
			Prefix:     getEnv("CACHE_PREFIX", "flightradius"),
			FlightTTL:  getEnvDuration("FLIGHT_CACHE_TTL", 60*time.Minute),
			GeocodeTTL: getEnvDuration("GEOCODE_CACHE_TTL", 24*time.Hour),
		},
		SearchConfig: SearchConfig{
			DefaultRadiusKm: getEnvFloat("DEFAULT_RADIUS_KM", 200),
			MaxRadiusKm:     getEnvFloat("MAX_RADIUS_KM", 500),
			DefaultSortBy:   getEnv("DEFAULT_SORT_BY", "totalCost"),
			StopProbeLimit:  getEnvInt("STOP_PROBE_LIMIT", 20),
			LegCandidates:   getEnvInt("LEG_CANDIDATES", 3),
			TransferMin:     getEnvInt("TRANSFER_MIN", 30),
			TransferMax:     getEnvInt("TRANSFER_MAX", 180),
			Timeout:         getEnvDuration("SEARCH_TIMEOUT", 0),
			Concurrency:     getEnvInt("SEARCH_CONCURRENCY", 4),
			FlexConcurrency: getEnvInt("FLEX_CONCURRENCY", 4),
		},
		InterlineConfig: InterlineConfig{
			TransferMin:     getEnvInt("INTERLINE_TRANSFER_MIN", 60),
			TransferMax:     getEnvInt("INTERLINE_TRANSFER_MAX", 240),
			MaxTrainMinutes: int(math.Round(getEnvFloat("INTERLINE_MAX_TRAIN_HOURS", 3) * 60)),
		},
		CostConfig: CostConfig{
			TimeValueRate: getEnvFloat("TIME_VALUE_RATE", 0.5),
			TransferRate:  getEnvFloat("TRANSFER_RATE", 0.3),
			Currency:      unit,
		},
		TransportConfig: TransportConfig{
			Car:   ModeConfig{SpeedKmh: getEnvFloat("CAR_SPEED_KMH", 60), CostPerKm: getEnvFloat("CAR_COST_PER_KM", 0.5)},
			Train: ModeConfig{SpeedKmh: getEnvFloat("TRAIN_SPEED_KMH", 200), CostPerKm: getEnvFloat("TRAIN_COST_PER_KM", 0.4)},
			Bus:   ModeConfig{SpeedKmh: getEnvFloat("BUS_SPEED_KMH", 80), CostPerKm: getEnvFloat("BUS_COST_PER_KM", 0.3)},
		},
		ProviderConfig: ProviderConfig{
			VariflightKey: getEnv("VARIFLIGHT_KEY", ""),
			BaseURL:       getEnv("VARIFLIGHT_BASE_URL", "https://api.variflight.com"),
			Timeout:       getEnvDuration("VARIFLIGHT_TIMEOUT", 10*time.Second),
			RetryMax:      getEnvInt("VARIFLIGHT_RETRY_MAX", 2),
			RatePerSecond: getEnvFloat("VARIFLIGHT_RATE_PER_SECOND", 5),
			Burst:         getEnvInt("VARIFLIGHT_BURST", 5),
			MockFallback:  getEnvBool("MOCK_FALLBACK", true),
		},
		AmapConfig: AmapConfig{
			Key:          getEnv("AMAP_KEY", ""),
			GeocodeURL:   getEnv("AMAP_GEOCODE_URL", "https://restapi.amap.com/v3/geocode/geo"),
			DirectionURL: getEnv("AMAP_DIRECTION_URL", "https://restapi.amap.com/v3/direction/driving"),
			Timeout:      getEnvDuration("AMAP_TIMEOUT", 5*time.Second),
			RetryMax:     getEnvInt("AMAP_RETRY_MAX", 1),
		},
		WarmerConfig: WarmerConfig{
			Enabled:   getEnvBool("WARMER_ENABLED", false),
			Schedule:  getEnv("WARMER_SCHEDULE", "0 */6 * * *"),
			Routes:    routes,
			DaysAhead: getEnvInt("WARMER_DAYS_AHEAD", 7),
			LockKey:   getEnv("WARMER_LOCK_KEY", "warmer:leader"),
			LockTTL:   getEnvDuration("WARMER_LOCK_TTL", 30*time.Second),
			LockRenew: getEnvDuration("WARMER_LOCK_RENEW", 10*time.Second),
		},
		HistoryConfig: HistoryConfig{
			Size: getEnvInt("HISTORY_SIZE", 10),
			TTL:  getEnvDuration("HISTORY_TTL", 7*24*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail deep inside a search.
func (c *Config) Validate() error {
	var errs []error

	for name, m := range map[string]ModeConfig{
		"car":   c.TransportConfig.Car,
		"train": c.TransportConfig.Train,
		"bus":   c.TransportConfig.Bus,
	} {
		if !(m.SpeedKmh > 0) || math.IsInf(m.SpeedKmh, 0) {
			errs = append(errs, fmt.Errorf("%s speed must be positive", name))
		}
		if !(m.CostPerKm >= 0) {
			errs = append(errs, fmt.Errorf("%s cost per km must not be negative", name))
		}
	}

	s := c.SearchConfig
	if !(s.DefaultRadiusKm > 0) || !(s.MaxRadiusKm >= s.DefaultRadiusKm) {
		errs = append(errs, errors.New("radius: need 0 < DEFAULT_RADIUS_KM <= MAX_RADIUS_KM"))
	}
	if s.TransferMin < 0 || s.TransferMax < s.TransferMin || s.TransferMax >= 24*60 {
		errs = append(errs, fmt.Errorf("transfer window [%d, %d] is invalid", s.TransferMin, s.TransferMax))
	}
	if s.StopProbeLimit <= 0 || s.LegCandidates <= 0 || s.Concurrency <= 0 || s.FlexConcurrency <= 0 {
		errs = append(errs, errors.New("search limits and concurrency must be positive"))
	}
	if s.Timeout < 0 {
		errs = append(errs, errors.New("SEARCH_TIMEOUT must not be negative"))
	}

	il := c.InterlineConfig
	if il.TransferMin < 0 || il.TransferMax < il.TransferMin || il.TransferMax >= 24*60 {
		errs = append(errs, fmt.Errorf("interline transfer window [%d, %d] is invalid", il.TransferMin, il.TransferMax))
	}
	if il.MaxTrainMinutes <= 0 {
		errs = append(errs, errors.New("INTERLINE_MAX_TRAIN_HOURS must be positive"))
	}

	if !(c.CostConfig.TimeValueRate >= 0) || !(c.CostConfig.TransferRate >= 0) {
		errs = append(errs, errors.New("cost rates must not be negative"))
	}
	if c.CacheConfig.FlightTTL <= 0 {
		errs = append(errs, errors.New("FLIGHT_CACHE_TTL must be positive"))
	}
	if c.HistoryConfig.Size <= 0 {
		errs = append(errs, errors.New("HISTORY_SIZE must be positive"))
	}

	if c.WarmerConfig.Enabled {
		if _, err := cron.ParseStandard(c.WarmerConfig.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("WARMER_SCHEDULE: %w", err))
		}
		if c.WarmerConfig.LockRenew >= c.WarmerConfig.LockTTL {
			errs = append(errs, errors.New("WARMER_LOCK_RENEW must be shorter than WARMER_LOCK_TTL"))
		}
	}

	return errors.Join(errs...)
}

// ParseRoutes parses "PVG-PEK,SHA-CAN" into routes.
func ParseRoutes(s string) ([]Route, error) {
	var routes []Route
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, ok := strings.Cut(part, "-")
		from = strings.ToUpper(strings.TrimSpace(from))
		to = strings.ToUpper(strings.TrimSpace(to))
		if !ok || len(from) != 3 || len(to) != 3 {
			return nil, fmt.Errorf("route %q must look like PVG-PEK", part)
		}
		routes = append(routes, Route{From: from, To: to})
	}
	return routes, nil
}

// LoadTestConfig returns defaults suitable for tests: Redis off, no keys.
func LoadTestConfig() *Config {
	return &Config{
		Port:          "8080",
		Environment:   "test",
		APIEnabled:    true,
		LoggingConfig: LoggingConfig{Level: "error", Format: "text"},
		RedisConfig: RedisConfig{
			Host: getEnv("REDIS_HOST", "localhost"),
			Port: getEnv("REDIS_PORT", "6379"),
		},
		CacheConfig: CacheConfig{Prefix: "test", FlightTTL: time.Hour, GeocodeTTL: time.Hour},
		SearchConfig: SearchConfig{
			DefaultRadiusKm: 200,
			MaxRadiusKm:     500,
			DefaultSortBy:   "totalCost",
			StopProbeLimit:  20,
			LegCandidates:   3,
			TransferMin:     30,
			TransferMax:     180,
			Concurrency:     4,
			FlexConcurrency: 4,
		},
		InterlineConfig: InterlineConfig{TransferMin: 60, TransferMax: 240, MaxTrainMinutes: 180},
		CostConfig:      CostConfig{TimeValueRate: 0.5, TransferRate: 0.3, Currency: currency.CNY},
		TransportConfig: TransportConfig{
			Car:   ModeConfig{SpeedKmh: 60, CostPerKm: 0.5},
			Train: ModeConfig{SpeedKmh: 200, CostPerKm: 0.4},
			Bus:   ModeConfig{SpeedKmh: 80, CostPerKm: 0.3},
		},
		ProviderConfig: ProviderConfig{MockFallback: true},
		WarmerConfig:   WarmerConfig{Schedule: "0 */6 * * *", DaysAhead: 7, LockKey: "warmer:leader", LockTTL: 30 * time.Second, LockRenew: 10 * time.Second},
		HistoryConfig:  HistoryConfig{Size: 10, TTL: time.Hour},
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if len(strings.TrimSpace(value)) == 0 {
		return defaultValue
	}
	return strings.TrimSpace(value) // Trim whitespace before returning
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}
