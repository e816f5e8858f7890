package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gilby125/flight-radius/api"
	"github.com/gilby125/flight-radius/config"
	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/history"
	"github.com/gilby125/flight-radius/pkg/cache"
	"github.com/gilby125/flight-radius/rail"
	"github.com/gilby125/flight-radius/routing"
	"github.com/gilby125/flight-radius/transport"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNew_InMemory(t *testing.T) {
	a, err := New(context.Background(), config.LoadTestConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Nil(t, a.Redis)
	assert.IsType(t, &cache.MemoryCache{}, a.Cache)
	assert.IsType(t, &history.MemoryStore{}, a.History)
	assert.Nil(t, a.Registry)
	assert.Equal(t, flights.MockSource, a.Flights.Name())
	require.NotNil(t, a.Interline)
	assert.NotEmpty(t, a.Stations.Stations())
	assert.Equal(t, rail.MockSource, a.Trains.Name())

	router := gin.New()
	api.RegisterRoutes(router, a.Deps())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NoError(t, a.Start(context.Background()))
	a.Stop()
	a.Stop()
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.LoadTestConfig()
	cfg.TransportConfig.Train.SpeedKmh = 0
	_, err := New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "train speed")
}

func TestNew_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	mr.Close()

	_, err := New(context.Background(), config.LoadTestConfig(), nil, WithRedis(client))
	assert.ErrorContains(t, err, "connect to redis")
}

func TestApp_RedisBackgroundJobs(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := config.LoadTestConfig()
	cfg.WarmerConfig.Enabled = true
	cfg.WarmerConfig.Routes = []config.Route{{From: "PVG", To: "PEK"}}

	a, err := New(context.Background(), cfg, nil, WithRedis(client))
	require.NoError(t, err)

	assert.IsType(t, &cache.RedisCache{}, a.Cache)
	assert.IsType(t, &history.RedisStore{}, a.History)
	require.NotNil(t, a.Registry)

	require.NoError(t, a.Start(context.Background()))
	assert.Eventually(t, func() bool {
		active, err := a.Registry.ListActive(context.Background(), time.Minute, 0)
		return err == nil && len(active) == 1 && active[0].ID == a.InstanceID()
	}, 2*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool { return mr.Exists("test:warmer:leader") }, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, a.Close())
	assert.False(t, mr.Exists("test:warmer:leader"), "leadership is released on close")
}

func TestFlightProvider(t *testing.T) {
	tests := []struct {
		name string
		pc   config.ProviderConfig
		want interface{}
	}{
		{"mock only", config.ProviderConfig{MockFallback: true}, &flights.MockProvider{}},
		{"live with fallback", config.ProviderConfig{VariflightKey: "k", MockFallback: true}, &flights.FallbackProvider{}},
		{"live only", config.ProviderConfig{VariflightKey: "k"}, &flights.HTTPProvider{}},
		{"nothing", config.ProviderConfig{}, &flights.HTTPProvider{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.IsType(t, tt.want, FlightProvider(tt.pc, nil))
		})
	}

	_, err := FlightProvider(config.ProviderConfig{}, nil).Search(context.Background(), "PVG", "PEK", "2025-03-01")
	assert.True(t, errors.Is(err, flights.ErrNotConfigured))
}

func TestEngineConfigMapping(t *testing.T) {
	cfg := config.LoadTestConfig()
	cfg.SearchConfig.DefaultSortBy = "price"
	cfg.SearchConfig.TransferMin = 45
	cfg.CostConfig.TimeValueRate = 0.8

	ec := EngineConfig(cfg)
	assert.Equal(t, routing.SortTicketPrice, ec.DefaultSortBy)
	assert.Equal(t, routing.TransferWindow{Min: 45, Max: 180}, ec.Search.Window)
	assert.Equal(t, 0.8, ec.Search.Rates.TimeValuePerMinute)

	model := TransportModel(cfg.TransportConfig)
	require.NoError(t, model.Validate())
	assert.Equal(t, transport.DefaultModel(), model)
}

func TestInterlineConfigMapping(t *testing.T) {
	cfg := config.LoadTestConfig()
	cfg.InterlineConfig.TransferMin = 75
	cfg.InterlineConfig.MaxTrainMinutes = 120

	ic := InterlineConfig(cfg)
	assert.Equal(t, routing.TransferWindow{Min: 75, Max: 240}, ic.Window)
	assert.Equal(t, 120, ic.MaxTrainMinutes)
	assert.Equal(t, routing.DefaultInterlineConfig().HubLimit, ic.HubLimit)
	require.NoError(t, ic.Validate())
}
