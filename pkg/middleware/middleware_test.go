package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gilby125/flight-radius/pkg/cache"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", w.Body.String())
}

func TestRecovery_ReturnsJSON500(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"internal server error"}`, w.Body.String())
}

func newCachedRouter(calls *int) *gin.Engine {
	r := gin.New()
	cm := cache.NewCacheManager(cache.NewMemoryCache())
	r.Use(ResponseCache(cm, CacheConfig{TTL: time.Minute, KeyPrefix: "api", SkipPaths: []string{"/api/v1/history"}}))
	r.GET("/api/v1/airports/search", func(c *gin.Context) {
		*calls++
		c.JSON(http.StatusOK, gin.H{"q": c.Query("q"), "calls": *calls})
	})
	r.GET("/api/v1/history", func(c *gin.Context) {
		*calls++
		c.JSON(http.StatusOK, gin.H{})
	})
	r.GET("/fail", func(c *gin.Context) {
		*calls++
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad"})
	})
	return r
}

func TestResponseCache_HitAndMiss(t *testing.T) {
	calls := 0
	r := newCachedRouter(&calls)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/airports/search?q=pvg", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	first := w.Body.String()

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/airports/search?q=pvg", nil))
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.NotEmpty(t, w.Header().Get("Age"))
	assert.Equal(t, first, w.Body.String())
	assert.Equal(t, 1, calls)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/airports/search?q=pek", nil))
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestResponseCache_SkipsPathsAndErrors(t *testing.T) {
	calls := 0
	r := newCachedRouter(&calls)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))
		assert.Empty(t, w.Header().Get("X-Cache"))
	}
	assert.Equal(t, 2, calls)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	}
	assert.Equal(t, 4, calls)
}

func TestGenerateCacheKey(t *testing.T) {
	a := httptest.NewRequest(http.MethodGet, "/x?a=1", nil)
	b := httptest.NewRequest(http.MethodGet, "/x?a=2", nil)

	ka := generateCacheKey("api", a)
	assert.Contains(t, ka, "api:response:")
	assert.Equal(t, ka, generateCacheKey("api", a))
	assert.NotEqual(t, ka, generateCacheKey("api", b))
	assert.NotContains(t, generateCacheKey("", a), "api")

	sorted := httptest.NewRequest(http.MethodGet, "/x?a=1&b=2", nil)
	shuffled := httptest.NewRequest(http.MethodGet, "/x?b=2&a=1", nil)
	assert.Equal(t, generateCacheKey("api", sorted), generateCacheKey("api", shuffled))

	zh := httptest.NewRequest(http.MethodGet, "/x?a=1", nil)
	zh.Header.Set("Accept-Language", "zh-CN")
	assert.NotEqual(t, ka, generateCacheKey("api", zh))
}
