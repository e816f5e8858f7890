package middleware

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gilby125/flight-radius/pkg/cache"
	"github.com/gilby125/flight-radius/pkg/logger"
	"github.com/gin-gonic/gin"
)

// CacheConfig holds cache middleware configuration
type CacheConfig struct {
	TTL       time.Duration
	KeyPrefix string
	// SkipPaths are path prefixes that are never cached.
	SkipPaths []string
	// Methods defaults to GET.
	Methods []string
}

// CachedResponse is the stored form of a response.
type CachedResponse struct {
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers"`
	Body        []byte            `json:"body"`
	ContentType string            `json:"content_type"`
	CachedAt    time.Time         `json:"cached_at"`
}

var cachedHeaders = []string{"Content-Encoding", "Cache-Control", "Etag", "Last-Modified"}

// bodyRecorder keeps a copy of everything written to the client.
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

// ResponseCache replays successful JSON responses for TTL. Hits carry
// "X-Cache: HIT" and an Age header; stored misses carry "X-Cache: MISS".
func ResponseCache(cm *cache.CacheManager, cfg CacheConfig) gin.HandlerFunc {
	if len(cfg.Methods) == 0 {
		cfg.Methods = []string{http.MethodGet}
	}

	return func(c *gin.Context) {
		if !slices.Contains(cfg.Methods, c.Request.Method) || skipped(cfg.SkipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := generateCacheKey(cfg.KeyPrefix, c.Request)
		log := logger.WithContext(ctx).WithField("cache_key", key)

		var hit CachedResponse
		err := cm.GetJSON(ctx, key, &hit)
		switch {
		case err == nil:
			for k, v := range hit.Headers {
				c.Header(k, v)
			}
			c.Header("X-Cache", "HIT")
			c.Header("Age", strconv.Itoa(int(time.Since(hit.CachedAt).Seconds())))
			c.Data(hit.StatusCode, hit.ContentType, hit.Body)
			c.Abort()
			return
		case !errors.Is(err, cache.ErrCacheMiss):
			log.Warn("Response cache read failed", "error", err)
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Header("X-Cache", "MISS")

		c.Next()

		status := c.Writer.Status()
		contentType := c.Writer.Header().Get("Content-Type")
		if status < 200 || status >= 300 || !strings.Contains(contentType, "application/json") {
			return
		}

		stored := CachedResponse{
			StatusCode:  status,
			Headers:     make(map[string]string),
			Body:        rec.body.Bytes(),
			ContentType: contentType,
			CachedAt:    time.Now(),
		}
		for _, h := range cachedHeaders {
			if v := c.Writer.Header().Get(h); v != "" {
				stored.Headers[h] = v
			}
		}
		if err := cm.SetJSON(ctx, key, stored, cfg.TTL); err != nil {
			log.Warn("Response cache write failed", "error", err)
		}
	}
}

func skipped(prefixes []string, path string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// generateCacheKey hashes the method, path, query and Accept-Language.
// Query parameters are sorted so their order does not split the cache.
func generateCacheKey(prefix string, req *http.Request) string {
	query := req.URL.RawQuery
	if values, err := url.ParseQuery(query); err == nil {
		query = values.Encode()
	}
	data := fmt.Sprintf("%s:%s:%s:%s", req.Method, req.URL.Path, query, req.Header.Get("Accept-Language"))
	hash := fmt.Sprintf("%016x", xxhash.Sum64String(data))

	if prefix != "" {
		return prefix + ":response:" + hash
	}
	return "response:" + hash
}
