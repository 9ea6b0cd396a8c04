package service

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads. Both the
// in-process store and the Redis repository satisfy it.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteMatching(ctx context.Context, substr string) error
}

const cacheKeyPrefix = repository.ResponseKeyPrefix

// sectionListingPath is the aggregate section listing; any section change invalidates it.
const sectionListingPath = "/sections?"

// defaultSectionPaths lists, per section, the extra public read paths whose
// responses embed that section's data.
var defaultSectionPaths = map[string][]string{
	models.SectionOngoingBatches: {"/batches?"},
}

// ResponseCacheKey fingerprints a read request as resp:<METHOD>:<path>?<sorted query>.
func ResponseCacheKey(method, path string, query url.Values) string {
	var b strings.Builder
	b.WriteString(cacheKeyPrefix)
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(':')
	b.WriteString(path)
	b.WriteByte('?')

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	first := true
	for _, k := range keys {
		values := append([]string(nil), query[k]...)
		sort.Strings(values)
		for _, v := range values {
			if !first {
				b.WriteByte('&')
			}
			first = false
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// CacheService orchestrates cache operations and related metrics.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool

	mu           sync.RWMutex
	sectionPaths map[string][]string
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	paths := make(map[string][]string, len(defaultSectionPaths))
	for name, extra := range defaultSectionPaths {
		paths[name] = append([]string(nil), extra...)
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled, sectionPaths: paths}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache. A non-positive ttl falls back to the default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate removes every cached value whose key contains pattern. An empty
// pattern clears the whole cache.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	s.metrics.RecordCacheInvalidation("pattern")
	if err := s.repo.DeleteMatching(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

// RegisterSectionPaths adds public read paths that must be dropped whenever
// the named section changes.
func (s *CacheService) RegisterSectionPaths(name string, paths ...string) {
	if s == nil || name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sectionPaths[name] = append(s.sectionPaths[name], paths...)
}

// SectionPatterns returns the invalidation patterns for a section: its own read
// path, the aggregate listing, and any registered extra paths.
func (s *CacheService) SectionPatterns(name string) []string {
	patterns := []string{"/sections/" + name, sectionListingPath}
	if s == nil {
		return patterns
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(patterns, s.sectionPaths[name]...)
}

// InvalidateSection drops every cached response derived from the named section.
// All patterns are attempted; the first failure is returned.
func (s *CacheService) InvalidateSection(ctx context.Context, name string) error {
	if !s.Enabled() {
		return nil
	}
	s.metrics.RecordCacheInvalidation(name)
	var firstErr error
	for _, pattern := range s.SectionPatterns(name) {
		if err := s.repo.DeleteMatching(ctx, pattern); err != nil {
			s.logger.Warn("cache section invalidate failed",
				zap.String("section", name),
				zap.String("pattern", pattern),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
