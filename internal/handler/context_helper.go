package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
)

// pageParams reads page and limit query parameters, keeping defaults for
// missing or malformed values.
func pageParams(c *gin.Context) (int, int) {
	page, size := defaultPage, defaultPageSize
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		size = v
	}
	return page, size
}
