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
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

type displayItemRepository interface {
	List(ctx context.Context) ([]models.DisplayItem, error)
	FindByID(ctx context.Context, id string) (*models.DisplayItem, error)
	Create(ctx context.Context, item *models.DisplayItem) error
	Update(ctx context.Context, item *models.DisplayItem) error
	Delete(ctx context.Context, id string) error
}

// DisplayItemService manages the cards behind the display carousel and
// regenerates the carousel section after every change.
type DisplayItemService struct {
	repo       displayItemRepository
	reconciler sectionReconciler
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewDisplayItemService constructs DisplayItemService.
func NewDisplayItemService(repo displayItemRepository, reconciler sectionReconciler, validate *validator.Validate, logger *zap.Logger) *DisplayItemService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DisplayItemService{repo: repo, reconciler: reconciler, validator: validate, logger: logger}
}

// List returns every display item in carousel order.
func (s *DisplayItemService) List(ctx context.Context) ([]models.DisplayItem, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Transient(err, "failed to list display items")
	}
	return items, nil
}

// Create adds a card. Without an explicit position it goes to the end.
func (s *DisplayItemService) Create(ctx context.Context, req dto.CreateDisplayItemRequest) (*models.DisplayItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid display item payload")
	}
	item := &models.DisplayItem{
		Title:       strings.TrimSpace(req.Title),
		Subtitle:    req.Subtitle,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		LinkURL:     req.LinkURL,
		IsActive:    true,
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}
	if req.Position != nil {
		item.Position = *req.Position
	} else {
		existing, err := s.repo.List(ctx)
		if err != nil {
			return nil, appErrors.Transient(err, "failed to list display items")
		}
		for _, other := range existing {
			if other.Position >= item.Position {
				item.Position = other.Position + 1
			}
		}
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, appErrors.Transient(err, "failed to create display item")
	}
	s.refresh(ctx)
	return item, nil
}

// Update edits a card.
func (s *DisplayItemService) Update(ctx context.Context, id string, req dto.UpdateDisplayItemRequest) (*models.DisplayItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid display item payload")
	}
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "display item not found")
		}
		return nil, appErrors.Transient(err, "failed to load display item")
	}
	if req.Title != nil {
		item.Title = strings.TrimSpace(*req.Title)
	}
	if req.Subtitle != nil {
		item.Subtitle = req.Subtitle
	}
	if req.Description != nil {
		item.Description = req.Description
	}
	if req.ImageURL != nil {
		item.ImageURL = req.ImageURL
	}
	if req.LinkURL != nil {
		item.LinkURL = req.LinkURL
	}
	if req.Position != nil {
		item.Position = *req.Position
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}
	if err := s.repo.Update(ctx, item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "display item not found")
		}
		return nil, appErrors.Transient(err, "failed to update display item")
	}
	s.refresh(ctx)
	return item, nil
}

// Delete removes a card.
func (s *DisplayItemService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "display item not found")
		}
		return appErrors.Transient(err, "failed to delete display item")
	}
	s.refresh(ctx)
	return nil
}

// refresh regenerates the carousel inline. The item write already succeeded,
// so a failed rebuild is only logged.
func (s *DisplayItemService) refresh(ctx context.Context) {
	if s.reconciler == nil {
		return
	}
	if _, err := s.reconciler.Reconcile(ctx, models.SectionDisplayCarousel); err != nil {
		s.logger.Warn("carousel reconcile failed", zap.Error(err))
	}
}
