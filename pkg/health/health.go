package health

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds each check; checks run concurrently.
const checkTimeout = 2 * time.Second

// Status represents the health status of a component
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Check represents a single health check
type Check struct {
	Name      string            `json:"name"`
	Status    Status            `json:"status"`
	Message   string            `json:"message,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Duration  time.Duration     `json:"duration"`
	Timestamp time.Time         `json:"timestamp"`
}

// HealthReport represents the overall health of the application
type HealthReport struct {
	Status    Status           `json:"status"`
	Version   string           `json:"version"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	Uptime    time.Duration    `json:"uptime"`
}

// Checker defines the interface for health checks
type Checker interface {
	Check(ctx context.Context) Check
}

// RedisChecker checks Redis connectivity
type RedisChecker struct {
	Client redis.UniversalClient
	Name   string
}

func (c *RedisChecker) Check(ctx context.Context) Check {
	start := time.Now()
	check := Check{
		Name:      c.Name,
		Timestamp: start,
		Details:   make(map[string]string),
	}

	// Test Redis connectivity with ping
	pong, err := c.Client.Ping(ctx).Result()
	duration := time.Since(start)
	check.Duration = duration

	if err != nil {
		check.Status = StatusDown
		check.Message = fmt.Sprintf("Redis connection failed: %v", err)
		check.Details["error"] = err.Error()
	} else {
		check.Status = StatusUp
		check.Message = "Redis connection successful"
		check.Details["response_time"] = duration.String()
		check.Details["ping_response"] = pong
	}

	return check
}

// CatalogChecker reports down when no enabled airport is loaded, since no
// search can succeed without one.
type CatalogChecker struct {
	// Count returns the number of enabled airports.
	Count func() int
	Name  string
}

func (c *CatalogChecker) Check(ctx context.Context) Check {
	start := time.Now()
	check := Check{
		Name:      c.Name,
		Timestamp: start,
		Details:   make(map[string]string),
	}

	n := 0
	if c.Count != nil {
		n = c.Count()
	}
	check.Duration = time.Since(start)
	check.Details["enabled_airports"] = fmt.Sprintf("%d", n)

	if n == 0 {
		check.Status = StatusDown
		check.Message = "Airport catalog is empty"
	} else {
		check.Status = StatusUp
		check.Message = "Airport catalog loaded"
	}

	return check
}

// ProviderChecker reports which flight data source is configured. A
// deployment without live credentials is still up, serving mock data.
type ProviderChecker struct {
	Provider     string
	Live         bool
	MockFallback bool
	Name         string
}

func (c *ProviderChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name,
		Status:    StatusUp,
		Timestamp: time.Now(),
		Details: map[string]string{
			"provider":      c.Provider,
			"live":          fmt.Sprintf("%t", c.Live),
			"mock_fallback": fmt.Sprintf("%t", c.MockFallback),
		},
	}

	switch {
	case c.Live:
		check.Message = "Live flight provider configured"
	case c.MockFallback:
		check.Message = "No flight provider key, serving mock flights"
	default:
		check.Status = StatusDown
		check.Message = "No flight provider key and mock fallback disabled"
	}

	return check
}

// HealthChecker orchestrates multiple health checks
type HealthChecker struct {
	checkers  []Checker
	version   string
	startTime time.Time
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		checkers:  make([]Checker, 0),
		version:   version,
		startTime: time.Now(),
	}
}

// AddChecker adds a health checker
func (h *HealthChecker) AddChecker(checker Checker) {
	h.checkers = append(h.checkers, checker)
}

// CheckHealth performs all health checks
func (h *HealthChecker) CheckHealth(ctx context.Context) HealthReport {
	return h.run(ctx, h.checkers)
}

// CheckReadiness runs only the checks a request depends on: Redis and the catalog.
func (h *HealthChecker) CheckReadiness(ctx context.Context) HealthReport {
	readinessCheckers := make([]Checker, 0)
	for _, checker := range h.checkers {
		switch checker.(type) {
		case *RedisChecker, *CatalogChecker:
			readinessCheckers = append(readinessCheckers, checker)
		}
	}
	return h.run(ctx, readinessCheckers)
}

func (h *HealthChecker) run(ctx context.Context, checkers []Checker) HealthReport {
	results := make([]Check, len(checkers))
	var g errgroup.Group
	for i, checker := range checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			results[i] = checker.Check(cctx)
			return nil
		})
	}
	_ = g.Wait()

	report := HealthReport{
		Status:    StatusUp,
		Version:   h.version,
		Timestamp: time.Now(),
		Checks:    make(map[string]Check, len(results)),
		Uptime:    time.Since(h.startTime),
	}
	for _, check := range results {
		report.Checks[check.Name] = check
		if check.Status == StatusDown {
			report.Status = StatusDown
		}
	}
	return report
}

// CheckLiveness performs liveness checks (basic application health)
func (h *HealthChecker) CheckLiveness(ctx context.Context) HealthReport {
	return HealthReport{
		Status:    StatusUp,
		Version:   h.version,
		Timestamp: time.Now(),
		Checks: map[string]Check{
			"application": {
				Name:      "application",
				Status:    StatusUp,
				Message:   "Application is running",
				Timestamp: time.Now(),
			},
		},
		Uptime: time.Since(h.startTime),
	}
}
