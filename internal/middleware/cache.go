package middleware

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/service"
)

const cacheHeader = "X-Cache"

type responseStore interface {
	Enabled() bool
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CacheTTL picks the lifetime of a cached response by path.
type CacheTTL struct {
	Default  time.Duration
	Sections time.Duration
}

func (t CacheTTL) forPath(path string) time.Duration {
	if t.Sections > 0 && strings.Contains(path, "/sections") {
		return t.Sections
	}
	return t.Default
}

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type bodyRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// ResponseCache serves GET and HEAD requests from the response cache and
// stores successful responses on a miss. Other methods pass straight through.
func ResponseCache(store responseStore, ttl CacheTTL, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		method := c.Request.Method
		if store == nil || !store.Enabled() || (method != http.MethodGet && method != http.MethodHead) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := service.ResponseCacheKey(method, c.Request.URL.Path, c.Request.URL.Query())

		var cached cachedResponse
		hit, err := store.Get(ctx, key, &cached)
		if err != nil {
			logger.Warn("response cache read failed", zap.String("key", key), zap.Error(err))
		}
		if hit {
			c.Header(cacheHeader, "HIT")
			c.Data(cached.Status, cached.ContentType, cached.Body)
			c.Abort()
			return
		}

		c.Header(cacheHeader, "MISS")
		recorder := &bodyRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = recorder
		c.Next()

		if c.Writer.Status() != http.StatusOK || recorder.body.Len() == 0 {
			return
		}
		entry := cachedResponse{
			Status:      http.StatusOK,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        recorder.body.Bytes(),
		}
		if err := store.Set(ctx, key, entry, ttl.forPath(c.Request.URL.Path)); err != nil {
			logger.Warn("response cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
}
