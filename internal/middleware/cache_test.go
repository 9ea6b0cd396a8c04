package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-enrollment-api/internal/service"
	"github.com/noah-isme/batch-enrollment-api/pkg/cache"
)

func newCachedRouter(t *testing.T, svc *service.CacheService, calls *int32) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	public := router.Group("/api/v1", ResponseCache(svc, CacheTTL{Default: time.Minute, Sections: time.Minute}, nil))
	public.GET("/sections/:name", func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "call": n})
	})
	public.GET("/missing", func(c *gin.Context) {
		atomic.AddInt32(calls, 1)
		c.JSON(http.StatusNotFound, gin.H{"error": "nope"})
	})
	public.POST("/sections/:name", func(c *gin.Context) {
		atomic.AddInt32(calls, 1)
		c.Status(http.StatusNoContent)
	})
	return router
}

func serve(router *gin.Engine, method, target string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(method, target, nil))
	return recorder
}

func TestResponseCacheServesSecondReadFromCache(t *testing.T) {
	svc := service.NewCacheService(cache.NewMemoryStore(), nil, time.Minute, nil, true)
	var calls int32
	router := newCachedRouter(t, svc, &calls)

	first := serve(router, http.MethodGet, "/api/v1/sections/aboutUs?b=2&a=1")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get(cacheHeader))

	second := serve(router, http.MethodGet, "/api/v1/sections/aboutUs?a=1&b=2")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get(cacheHeader))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Contains(t, second.Header().Get("Content-Type"), "application/json")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestResponseCacheDropsEntryOnSectionInvalidation(t *testing.T) {
	svc := service.NewCacheService(cache.NewMemoryStore(), nil, time.Minute, nil, true)
	var calls int32
	router := newCachedRouter(t, svc, &calls)

	serve(router, http.MethodGet, "/api/v1/sections/aboutUs")
	require.NoError(t, svc.InvalidateSection(context.Background(), "aboutUs"))

	again := serve(router, http.MethodGet, "/api/v1/sections/aboutUs")
	assert.Equal(t, "MISS", again.Header().Get(cacheHeader))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestResponseCacheSkipsErrorsAndWrites(t *testing.T) {
	svc := service.NewCacheService(cache.NewMemoryStore(), nil, time.Minute, nil, true)
	var calls int32
	router := newCachedRouter(t, svc, &calls)

	serve(router, http.MethodGet, "/api/v1/missing")
	second := serve(router, http.MethodGet, "/api/v1/missing")
	assert.Equal(t, http.StatusNotFound, second.Code)
	assert.Equal(t, "MISS", second.Header().Get(cacheHeader))

	post := serve(router, http.MethodPost, "/api/v1/sections/aboutUs")
	assert.Equal(t, http.StatusNoContent, post.Code)
	assert.Empty(t, post.Header().Get(cacheHeader))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestResponseCacheDisabledPassesThrough(t *testing.T) {
	svc := service.NewCacheService(cache.NewMemoryStore(), nil, time.Minute, nil, false)
	var calls int32
	router := newCachedRouter(t, svc, &calls)

	serve(router, http.MethodGet, "/api/v1/sections/aboutUs")
	second := serve(router, http.MethodGet, "/api/v1/sections/aboutUs")
	assert.Empty(t, second.Header().Get(cacheHeader))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestCacheTTLForPath(t *testing.T) {
	ttl := CacheTTL{Default: time.Minute, Sections: time.Hour}
	assert.Equal(t, time.Hour, ttl.forPath("/api/v1/sections/aboutUs"))
	assert.Equal(t, time.Minute, ttl.forPath("/api/v1/batches"))
	assert.Equal(t, time.Minute, CacheTTL{Default: time.Minute}.forPath("/api/v1/sections"))
}

func TestMetricsMiddlewareLabelsUnmatchedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/batches", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(router, http.MethodGet, "/batches")
	serve(router, http.MethodGet, "/random-probe")

	snapshot := metrics.Snapshot()
	assert.EqualValues(t, 2, snapshot.RequestsTotal)
}
