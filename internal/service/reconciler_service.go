package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

type sectionStore interface {
	List(ctx context.Context) ([]models.SectionDocument, error)
	Get(ctx context.Context, name string) (*models.SectionDocument, error)
	Upsert(ctx context.Context, doc *models.SectionDocument) error
}

type activeBatchSource interface {
	ListActive(ctx context.Context) ([]models.Batch, error)
}

type displayItemSource interface {
	ListActive(ctx context.Context) ([]models.DisplayItem, error)
	Count(ctx context.Context) (int, error)
	BulkCreate(ctx context.Context, items []models.DisplayItem) error
}

type sectionInvalidator interface {
	InvalidateSection(ctx context.Context, name string) error
}

// ReconcilerService regenerates the owned section documents from their source
// entities while carrying admin overrides forward.
type ReconcilerService struct {
	sections  sectionStore
	batches   activeBatchSource
	items     displayItemSource
	cache     sectionInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewReconcilerService constructs ReconcilerService.
func NewReconcilerService(sections sectionStore, batches activeBatchSource, items displayItemSource, cache sectionInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ReconcilerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcilerService{
		sections:  sections,
		batches:   batches,
		items:     items,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *ReconcilerService) lock(name string) func() {
	s.locksMu.Lock()
	m, ok := s.locks[name]
	if !ok {
		m = &sync.Mutex{}
		s.locks[name] = m
	}
	s.locksMu.Unlock()
	m.Lock()
	return m.Unlock
}

// Reconcile regenerates the named owned section and returns the stored records.
// Names the reconciler does not own are rejected with a validation error.
func (s *ReconcilerService) Reconcile(ctx context.Context, name string) ([]models.ViewRecord, error) {
	var build func(context.Context) ([]models.ViewRecord, error)
	switch name {
	case models.SectionOngoingBatches:
		build = s.batchRecords
	case models.SectionDisplayCarousel:
		build = s.carouselRecords
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("section %q is not reconciled", name))
	}

	start := time.Now()
	records, err := s.reconcile(ctx, name, build)
	s.metrics.ObserveReconcile(name, time.Since(start), err)
	return records, err
}

// ReconcileAll regenerates every owned section, continuing past failures.
func (s *ReconcilerService) ReconcileAll(ctx context.Context) error {
	var firstErr error
	for _, name := range models.OwnedSections {
		if _, err := s.Reconcile(ctx, name); err != nil {
			s.logger.Warn("section reconcile failed", zap.String("section", name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *ReconcilerService) reconcile(ctx context.Context, name string, build func(context.Context) ([]models.ViewRecord, error)) ([]models.ViewRecord, error) {
	unlock := s.lock(name)
	defer unlock()

	fresh, err := build(ctx)
	if err != nil {
		return nil, err
	}
	prior, err := s.loadRecords(ctx, name)
	if err != nil {
		return nil, err
	}

	merged := mergeViewRecords(prior, fresh)
	payload, err := encodeRecords(merged)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode section")
	}
	if err := s.sections.Upsert(ctx, &models.SectionDocument{Name: name, Payload: payload}); err != nil {
		return nil, appErrors.Transient(err, "failed to store section")
	}

	s.invalidate(ctx, name)
	s.logger.Debug("section reconciled", zap.String("section", name), zap.Int("records", len(merged)))
	return merged, nil
}

func (s *ReconcilerService) invalidate(ctx context.Context, name string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSection(ctx, name); err != nil {
		s.logger.Warn("section cache invalidation failed", zap.String("section", name), zap.Error(err))
	}
}

// loadRecords returns the records of the stored document, or none when the
// section has never been written.
func (s *ReconcilerService) loadRecords(ctx context.Context, name string) ([]models.ViewRecord, error) {
	doc, err := s.sections.Get(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Transient(err, "failed to load section")
	}
	records, err := models.DecodeViewRecords(doc.Payload)
	if err != nil {
		// An unreadable document is replaced wholesale.
		s.logger.Warn("discarding undecodable section payload", zap.String("section", name), zap.Error(err))
		return nil, nil
	}
	return records, nil
}

func (s *ReconcilerService) batchRecords(ctx context.Context) ([]models.ViewRecord, error) {
	batches, err := s.batches.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Transient(err, "failed to load active batches")
	}
	records := make([]models.ViewRecord, 0, len(batches))
	for _, b := range batches {
		subject := b.Subject
		capacity, enrolled, available := b.Capacity, b.Enrolled, b.AvailableSeats()
		records = append(records, models.ViewRecord{
			ID:             b.DisplayID(),
			SourceID:       b.ID,
			Title:          b.Name,
			Subtitle:       &subject,
			IsActive:       b.IsActive,
			Capacity:       &capacity,
			Enrolled:       &enrolled,
			AvailableSeats: &available,
		})
	}
	return records, nil
}

func (s *ReconcilerService) carouselRecords(ctx context.Context) ([]models.ViewRecord, error) {
	items, err := s.items.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Transient(err, "failed to load display items")
	}
	records := make([]models.ViewRecord, 0, len(items))
	for _, item := range items {
		records = append(records, models.ViewRecord{
			ID:          item.DisplayID(),
			SourceID:    item.ID,
			Title:       item.Title,
			Subtitle:    item.Subtitle,
			Description: item.Description,
			IsActive:    item.IsActive,
			ImageURL:    item.ImageURL,
			LinkURL:     item.LinkURL,
		})
	}
	return records, nil
}

// mergeViewRecords joins freshly derived records with the prior document.
// Records match on ID, falling back to SourceID so an edited external id keeps
// its overrides. Hidden prior records are skipped in the fresh pass and
// appended unchanged in their stored order. Visible prior records contribute
// their admin-editable fields; everything else comes from the source. Fresh
// records without a prior match get a palette color by output position.
func mergeViewRecords(prior, fresh []models.ViewRecord) []models.ViewRecord {
	hiddenIDs := make(map[string]struct{})
	hiddenSources := make(map[string]struct{})
	var hidden []models.ViewRecord
	visible := make(map[string]models.ViewRecord, len(prior))
	visibleSources := make(map[string]models.ViewRecord, len(prior))
	for _, record := range prior {
		if record.Hidden {
			if _, dup := hiddenIDs[record.ID]; dup {
				continue
			}
			hiddenIDs[record.ID] = struct{}{}
			if record.SourceID != "" {
				hiddenSources[record.SourceID] = struct{}{}
			}
			hidden = append(hidden, record)
			continue
		}
		if _, dup := visible[record.ID]; !dup {
			visible[record.ID] = record
		}
		if _, dup := visibleSources[record.SourceID]; record.SourceID != "" && !dup {
			visibleSources[record.SourceID] = record
		}
	}

	out := make([]models.ViewRecord, 0, len(fresh)+len(hidden))
	seen := make(map[string]struct{}, len(fresh))
	for _, record := range fresh {
		if _, ok := hiddenIDs[record.ID]; ok {
			continue
		}
		if _, ok := hiddenSources[record.SourceID]; ok && record.SourceID != "" {
			continue
		}
		if _, dup := seen[record.ID]; dup {
			continue
		}
		seen[record.ID] = struct{}{}

		record.Hidden = false
		record.Color = models.PaletteColor(len(out))
		prev, ok := visible[record.ID]
		if !ok && record.SourceID != "" {
			prev, ok = visibleSources[record.SourceID]
		}
		if ok {
			record.Title = prev.Title
			record.Description = prev.Description
			if prev.Color != "" {
				record.Color = prev.Color
			}
			record.IsActive = prev.IsActive
		}
		out = append(out, record)
	}
	return append(out, hidden...)
}

func encodeRecords(records []models.ViewRecord) (json.RawMessage, error) {
	if records == nil {
		records = []models.ViewRecord{}
	}
	return json.Marshal(records)
}

// SeedCarousel backfills display items from the carousel document when the
// item table is still empty, then regenerates the document from the items. It
// returns the number of items created and is a no-op once items exist.
func (s *ReconcilerService) SeedCarousel(ctx context.Context) (int, error) {
	count, err := s.items.Count(ctx)
	if err != nil {
		return 0, appErrors.Transient(err, "failed to count display items")
	}
	if count > 0 {
		return 0, nil
	}

	records, err := s.loadRecords(ctx, models.SectionDisplayCarousel)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	items := make([]models.DisplayItem, 0, len(records))
	for i, record := range records {
		legacyID := record.ID
		items = append(items, models.DisplayItem{
			LegacyID:    &legacyID,
			Title:       record.Title,
			Subtitle:    record.Subtitle,
			Description: record.Description,
			ImageURL:    record.ImageURL,
			LinkURL:     record.LinkURL,
			Position:    i,
			IsActive:    record.IsActive,
		})
	}
	if err := s.items.BulkCreate(ctx, items); err != nil {
		return 0, appErrors.Transient(err, "failed to seed display items")
	}
	s.logger.Info("display items seeded from carousel section", zap.Int("items", len(items)))

	if _, err := s.Reconcile(ctx, models.SectionDisplayCarousel); err != nil {
		return len(items), err
	}
	return len(items), nil
}

// UpdateRecord applies an admin override to one record of an owned section.
// Overrides persist through later reconciliation passes.
func (s *ReconcilerService) UpdateRecord(ctx context.Context, name, recordID string, patch models.ViewRecordPatch) (*models.ViewRecord, error) {
	if !models.IsOwnedSection(name) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("section %q has no records", name))
	}
	if err := s.validator.Struct(patch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid record patch")
	}
	if patch.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "record patch is empty")
	}

	unlock := s.lock(name)
	defer unlock()

	doc, err := s.sections.Get(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Transient(err, "failed to load section")
	}
	records, err := models.DecodeViewRecords(doc.Payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode section")
	}

	idx := -1
	for i := range records {
		if records[i].ID == recordID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "section record not found")
	}

	record := &records[idx]
	if patch.Hidden != nil {
		record.Hidden = *patch.Hidden
	}
	if patch.Title != nil {
		record.Title = *patch.Title
	}
	if patch.Description != nil {
		description := *patch.Description
		record.Description = &description
	}
	if patch.Color != nil {
		record.Color = *patch.Color
	}
	if patch.IsActive != nil {
		record.IsActive = *patch.IsActive
	}
	updated := *record

	payload, err := encodeRecords(records)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode section")
	}
	if err := s.sections.Upsert(ctx, &models.SectionDocument{Name: name, Payload: payload}); err != nil {
		return nil, appErrors.Transient(err, "failed to store section")
	}
	s.invalidate(ctx, name)
	return &updated, nil
}
