package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

// SectionService serves section documents to public readers and lets admins
// replace free-form content sections.
type SectionService struct {
	store  sectionStore
	cache  sectionInvalidator
	logger *zap.Logger
}

// NewSectionService constructs SectionService.
func NewSectionService(store sectionStore, cache sectionInvalidator, logger *zap.Logger) *SectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{store: store, cache: cache, logger: logger}
}

// List returns every section document.
func (s *SectionService) List(ctx context.Context) ([]models.SectionDocument, error) {
	docs, err := s.store.List(ctx)
	if err != nil {
		return nil, appErrors.Transient(err, "failed to list sections")
	}
	if docs == nil {
		docs = []models.SectionDocument{}
	}
	return docs, nil
}

// Get returns one section document.
func (s *SectionService) Get(ctx context.Context, name string) (*models.SectionDocument, error) {
	doc, err := s.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Transient(err, "failed to load section")
	}
	return doc, nil
}

// Put replaces the payload of a content section. Reconciled sections are
// rebuilt from their sources and cannot be overwritten.
func (s *SectionService) Put(ctx context.Context, name string, payload json.RawMessage) (*models.SectionDocument, error) {
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "section name is required")
	}
	if models.IsOwnedSection(name) {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("section %q is generated; edit its records instead", name))
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "section payload must be valid JSON")
	}
	doc := &models.SectionDocument{Name: name, Payload: payload}
	if err := s.store.Upsert(ctx, doc); err != nil {
		return nil, appErrors.Transient(err, "failed to store section")
	}
	if s.cache != nil {
		if err := s.cache.InvalidateSection(ctx, name); err != nil {
			s.logger.Warn("section cache invalidation failed", zap.String("section", name), zap.Error(err))
		}
	}
	return doc, nil
}
