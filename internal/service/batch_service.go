package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/dto"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

type batchRepository interface {
	List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error)
	ListActive(ctx context.Context) ([]models.Batch, error)
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, batch *models.Batch) error
	Update(ctx context.Context, batch *models.Batch) error
	Delete(ctx context.Context, id string) error
}

type batchRenamer interface {
	RenameBatch(ctx context.Context, oldName, newName string) (int64, error)
}

// BatchService manages batch definitions. It never writes enrolled counts;
// those belong to the enrollment state machine.
type BatchService struct {
	repo        batchRepository
	enrollments batchRenamer
	dispatcher  ReconcileDispatcher
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewBatchService constructs BatchService.
func NewBatchService(repo batchRepository, enrollments batchRenamer, dispatcher ReconcileDispatcher, validate *validator.Validate, logger *zap.Logger) *BatchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{repo: repo, enrollments: enrollments, dispatcher: dispatcher, validator: validate, logger: logger}
}

// List returns batches with pagination metadata.
func (s *BatchService) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, *models.Pagination, error) {
	batches, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Transient(err, "failed to list batches")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return batches, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListPublic returns the active batches with their remaining seats.
func (s *BatchService) ListPublic(ctx context.Context) ([]dto.PublicBatch, error) {
	batches, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Transient(err, "failed to list batches")
	}
	out := make([]dto.PublicBatch, 0, len(batches))
	for _, b := range batches {
		out = append(out, dto.PublicBatch{
			ID:             b.DisplayID(),
			Name:           b.Name,
			Subject:        b.Subject,
			Capacity:       b.Capacity,
			Enrolled:       b.Enrolled,
			AvailableSeats: b.AvailableSeats(),
		})
	}
	return out, nil
}

// Get returns a batch by ID.
func (s *BatchService) Get(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Transient(err, "failed to load batch")
	}
	return batch, nil
}

// Create validates and persists a new batch with no seats taken.
func (s *BatchService) Create(ctx context.Context, req dto.CreateBatchRequest) (*models.Batch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureNameFree(ctx, name, ""); err != nil {
		return nil, err
	}
	batch := &models.Batch{
		ExternalID: req.ExternalID,
		Name:       name,
		Subject:    strings.TrimSpace(req.Subject),
		Capacity:   req.Capacity,
		IsActive:   true,
	}
	if req.IsActive != nil {
		batch.IsActive = *req.IsActive
	}
	if err := s.repo.Create(ctx, batch); err != nil {
		if errors.Is(err, repository.ErrDuplicateName) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "batch name already exists")
		}
		return nil, appErrors.Transient(err, "failed to create batch")
	}
	s.dispatch(ctx)
	return batch, nil
}

// Update edits a batch. Capacity may not drop below the live enrollment.
func (s *BatchService) Update(ctx context.Context, id string, req dto.UpdateBatchRequest) (*models.Batch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	batch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previousName := batch.Name

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if !strings.EqualFold(name, batch.Name) {
			if err := s.ensureNameFree(ctx, name, batch.ID); err != nil {
				return nil, err
			}
		}
		batch.Name = name
	}
	if req.Subject != nil {
		batch.Subject = strings.TrimSpace(*req.Subject)
	}
	if req.ExternalID != nil {
		batch.ExternalID = req.ExternalID
	}
	if req.IsActive != nil {
		batch.IsActive = *req.IsActive
	}
	if req.Capacity != nil {
		if *req.Capacity < batch.Enrolled {
			return nil, capacityBelowEnrolledError(batch, *req.Capacity)
		}
		batch.Capacity = *req.Capacity
	}

	if err := s.repo.Update(ctx, batch); err != nil {
		switch {
		case errors.Is(err, repository.ErrCapacityBelowEnrolled):
			// Seats were taken between the read and the write.
			fresh, loadErr := s.repo.FindByID(ctx, id)
			if loadErr != nil {
				fresh = batch
			}
			return nil, capacityBelowEnrolledError(fresh, batch.Capacity)
		case errors.Is(err, repository.ErrDuplicateName):
			return nil, appErrors.Clone(appErrors.ErrConflict, "batch name already exists")
		}
		return nil, appErrors.Transient(err, "failed to update batch")
	}

	if batch.Name != previousName && s.enrollments != nil {
		moved, err := s.enrollments.RenameBatch(ctx, previousName, batch.Name)
		if err != nil {
			return nil, appErrors.Transient(err, "failed to carry enrollment requests over to renamed batch")
		}
		s.logger.Info("batch renamed", zap.String("batch_id", batch.ID), zap.String("from", previousName), zap.String("to", batch.Name), zap.Int64("requests", moved))
	}

	s.dispatch(ctx)
	return s.Get(ctx, id)
}

// Delete removes a batch that holds no approved seats.
func (s *BatchService) Delete(ctx context.Context, id string) error {
	batch, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if batch.Enrolled > 0 {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "batch still has approved enrollments"), map[string]interface{}{
			"batch":    batch.Name,
			"enrolled": batch.Enrolled,
		})
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return appErrors.Transient(err, "failed to delete batch")
	}
	s.dispatch(ctx)
	return nil
}

func (s *BatchService) ensureNameFree(ctx context.Context, name, excludeID string) error {
	exists, err := s.repo.ExistsByName(ctx, name, excludeID)
	if err != nil {
		return appErrors.Transient(err, "failed to check batch name")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "batch name already exists")
	}
	return nil
}

func (s *BatchService) dispatch(ctx context.Context) {
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, models.SectionOngoingBatches)
	}
}

func capacityBelowEnrolledError(batch *models.Batch, capacity int) error {
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvariantViolation, "capacity cannot be lower than enrolled"), map[string]interface{}{
		"batch":    batch.Name,
		"enrolled": batch.Enrolled,
		"capacity": capacity,
	})
}
