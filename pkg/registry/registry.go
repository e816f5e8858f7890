// Package registry tracks the running service instances through Redis heartbeats.
package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gilby125/flight-radius/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a heartbeat keeps an instance listed.
const DefaultTTL = 45 * time.Second

// Heartbeat is the state one instance publishes.
type Heartbeat struct {
	ID            string    `json:"id"`
	Hostname      string    `json:"hostname"`
	Version       string    `json:"version"`
	Leader        bool      `json:"leader"`
	WarmedQueries int       `json:"warmedQueries"`
	LastWarmAt    time.Time `json:"lastWarmAt"`
	StartedAt     time.Time `json:"startedAt"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
}

// Registry stores heartbeats in a sorted set scored by time plus one hash per instance.
type Registry struct {
	client    redis.UniversalClient
	namespace string
	now       func() time.Time
}

// New creates a registry under "registry:{namespace}".
func New(client redis.UniversalClient, namespace string) *Registry {
	return &Registry{client: client, namespace: namespace, now: time.Now}
}

// WithClock replaces the clock used for heartbeat times and the active window.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

func (r *Registry) heartbeatsKey() string {
	return fmt.Sprintf("registry:%s:heartbeats", r.namespace)
}

func (r *Registry) metaKey(id string) string {
	return fmt.Sprintf("registry:%s:instance:%s", r.namespace, id)
}

func unixString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.Unix(), 10)
}

func parseUnix(s string) time.Time {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}

// Publish records hb. Entries older than ten ttls are pruned.
func (r *Registry) Publish(ctx context.Context, hb Heartbeat, ttl time.Duration) error {
	if hb.ID == "" {
		return errors.New("instance id is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := r.now().UTC()
	if hb.StartedAt.IsZero() {
		hb.StartedAt = now
	}
	if hb.LastHeartbeat.IsZero() {
		hb.LastHeartbeat = now
	}

	pipe := r.client.Pipeline()
	pipe.ZAdd(ctx, r.heartbeatsKey(), redis.Z{
		Score:  float64(hb.LastHeartbeat.Unix()),
		Member: hb.ID,
	})
	pipe.HSet(ctx, r.metaKey(hb.ID),
		"hostname", hb.Hostname,
		"version", hb.Version,
		"leader", strconv.FormatBool(hb.Leader),
		"warmed_queries", strconv.Itoa(hb.WarmedQueries),
		"last_warm_at", unixString(hb.LastWarmAt),
		"started_at", unixString(hb.StartedAt),
		"last_heartbeat", unixString(hb.LastHeartbeat),
	)
	pipe.Expire(ctx, r.metaKey(hb.ID), ttl*3)
	pipe.ZRemRangeByScore(ctx, r.heartbeatsKey(), "0", strconv.FormatInt(now.Add(-ttl*10).Unix(), 10))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("publish heartbeat: %w", err)
	}
	return nil
}

// Remove drops an instance, typically on shutdown.
func (r *Registry) Remove(ctx context.Context, id string) error {
	pipe := r.client.Pipeline()
	pipe.ZRem(ctx, r.heartbeatsKey(), id)
	pipe.Del(ctx, r.metaKey(id))
	_, err := pipe.Exec(ctx)
	return err
}

// ListActive returns the instances heard from within the window, newest first.
func (r *Registry) ListActive(ctx context.Context, within time.Duration, limit int64) ([]Heartbeat, error) {
	if within <= 0 {
		within = DefaultTTL
	}
	if limit <= 0 {
		limit = 100
	}

	now := r.now().UTC()
	zs, err := r.client.ZRevRangeByScoreWithScores(ctx, r.heartbeatsKey(), &redis.ZRangeBy{
		Max:   strconv.FormatInt(now.Unix(), 10),
		Min:   strconv.FormatInt(now.Add(-within).Unix(), 10),
		Count: limit,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if len(zs) == 0 {
		return []Heartbeat{}, nil
	}

	type metaCmd struct {
		id  string
		cmd *redis.MapStringStringCmd
		lh  time.Time
	}

	pipe := r.client.Pipeline()
	cmds := make([]metaCmd, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok || id == "" {
			continue
		}
		var lh time.Time
		if !math.IsNaN(z.Score) && !math.IsInf(z.Score, 0) {
			lh = time.Unix(int64(z.Score), 0).UTC()
		}
		cmds = append(cmds, metaCmd{id: id, cmd: pipe.HGetAll(ctx, r.metaKey(id)), lh: lh})
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([]Heartbeat, 0, len(cmds))
	for _, mc := range cmds {
		m := mc.cmd.Val()
		hb := Heartbeat{
			ID:            mc.id,
			Hostname:      m["hostname"],
			Version:       m["version"],
			Leader:        m["leader"] == "true",
			LastWarmAt:    parseUnix(m["last_warm_at"]),
			StartedAt:     parseUnix(m["started_at"]),
			LastHeartbeat: parseUnix(m["last_heartbeat"]),
		}
		if v, err := strconv.Atoi(m["warmed_queries"]); err == nil {
			hb.WarmedQueries = v
		}
		// the hash may have expired before the set entry
		if hb.LastHeartbeat.IsZero() {
			hb.LastHeartbeat = mc.lh
		}
		out = append(out, hb)
	}
	return out, nil
}

// Run publishes snapshot() every interval until ctx is done, then removes the instance.
func (r *Registry) Run(ctx context.Context, interval time.Duration, snapshot func() Heartbeat, log *logger.Logger) {
	if interval <= 0 {
		interval = DefaultTTL / 3
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithField("component", "registry")

	publish := func() string {
		hb := snapshot()
		if err := r.Publish(ctx, hb, interval*3); err != nil && ctx.Err() == nil {
			log.Warn("Heartbeat publish failed", "instance_id", hb.ID, "error", err)
		}
		return hb.ID
	}

	id := publish()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cleanup, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := r.Remove(cleanup, id); err != nil {
				log.Warn("Heartbeat removal failed", "instance_id", id, "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			id = publish()
		}
	}
}
