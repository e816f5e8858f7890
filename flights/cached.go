package flights

import (
	"context"
	"errors"
	"time"

	"github.com/gilby125/flight-radius/pkg/cache"
	"github.com/gilby125/flight-radius/pkg/logger"
)

// CachedProvider serves repeated queries from a cache.Cache for ttl.
// The cache is advisory: read and write failures fall through to the
// wrapped provider, and concurrent refreshes of a key simply overwrite it.
type CachedProvider struct {
	next  Provider
	cache *cache.CacheManager
	ttl   time.Duration
	now   func() time.Time
	log   *logger.Logger
}

// NewCachedProvider wraps next. A non-positive ttl means cache.FlightTTL.
func NewCachedProvider(next Provider, c cache.Cache, ttl time.Duration, log *logger.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = cache.FlightTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CachedProvider{
		next:  next,
		cache: cache.NewCacheManager(c),
		ttl:   ttl,
		now:   time.Now,
		log:   log.WithField("component", "flight_cache"),
	}
}

// WithClock replaces the clock used for entry expiry.
func (p *CachedProvider) WithClock(now func() time.Time) *CachedProvider {
	p.now = now
	return p
}

func (p *CachedProvider) Name() string { return p.next.Name() }

func (p *CachedProvider) Search(ctx context.Context, from, to, date string) (*SearchResult, error) {
	from, to, err := ValidateQuery(from, to, date)
	if err != nil {
		return nil, err
	}
	key := cache.FlightKey(p.next.Name(), from, to, date)
	log := p.log.WithContext(ctx)

	var entry CacheEntry
	err = p.cache.GetJSON(ctx, key, &entry)
	switch {
	case err == nil && p.now().Before(entry.ExpiresAt):
		return &SearchResult{
			From:      from,
			To:        to,
			Date:      date,
			Flights:   entry.Flights,
			Source:    entry.Source,
			Cached:    true,
			Mock:      entry.Mock,
			FetchedAt: entry.FetchedAt,
		}, nil
	case err != nil && !errors.Is(err, cache.ErrCacheMiss):
		log.Warn("Flight cache read failed", "key", key, "error", err)
	}

	res, err := p.next.Search(ctx, from, to, date)
	if err != nil {
		return nil, err
	}

	fetched := p.now()
	entry = CacheEntry{
		Flights:   res.Flights,
		FetchedAt: fetched,
		ExpiresAt: fetched.Add(p.ttl),
		Mock:      res.Mock,
		Source:    res.Source,
	}
	if err := p.cache.SetJSON(ctx, key, entry, p.ttl); err != nil {
		log.Warn("Flight cache write failed", "key", key, "error", err)
	}
	return res, nil
}

// Invalidate drops the cached answer for one query.
func (p *CachedProvider) Invalidate(ctx context.Context, from, to, date string) error {
	from, to, err := ValidateQuery(from, to, date)
	if err != nil {
		return err
	}
	return p.cache.Delete(ctx, cache.FlightKey(p.next.Name(), from, to, date))
}
