package catalog

import (
	"context"
	"time"

	"github.com/gilby125/flight-radius/pkg/cache"
	"github.com/gilby125/flight-radius/pkg/geo"
)

// CachedGeocoder memoises a Geocoder's answers. Failures are not cached.
type CachedGeocoder struct {
	next  Geocoder
	cache *cache.CacheManager
	ttl   time.Duration
}

// NewCachedGeocoder wraps next with a cache.
func NewCachedGeocoder(next Geocoder, cm *cache.CacheManager, ttl time.Duration) *CachedGeocoder {
	if ttl <= 0 {
		ttl = cache.LongTTL
	}
	return &CachedGeocoder{next: next, cache: cm, ttl: ttl}
}

func (g *CachedGeocoder) Geocode(ctx context.Context, name string) (geo.Coordinates, error) {
	var coords geo.Coordinates
	_, err := g.cache.GetOrSet(ctx, cache.GeocodeKey(name), g.ttl, &coords, func() (interface{}, error) {
		return g.next.Geocode(ctx, name)
	})
	return coords, err
}
