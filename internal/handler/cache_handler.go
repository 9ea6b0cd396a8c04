package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-enrollment-api/pkg/response"
)

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// CacheHandler exposes manual response cache invalidation.
type CacheHandler struct {
	cache cacheInvalidator
}

// NewCacheHandler constructs CacheHandler.
func NewCacheHandler(cache cacheInvalidator) *CacheHandler {
	return &CacheHandler{cache: cache}
}

// Invalidate godoc
// @Summary Invalidate cached responses
// @Description Drops every cached response whose key contains pattern. An empty pattern clears the cache.
// @Tags Cache
// @Produce json
// @Param pattern query string false "Key substring"
// @Success 200 {object} response.Envelope
// @Router /admin/cache [delete]
func (h *CacheHandler) Invalidate(c *gin.Context) {
	pattern := c.Query("pattern")
	if err := h.cache.Invalidate(c.Request.Context(), pattern); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"pattern": pattern, "invalidated": true}, nil)
}
