package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/dto"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentRequest, int, error)
	FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error)
	ExistsByFingerprint(ctx context.Context, fingerprint, excludeID string) (bool, error)
	Create(ctx context.Context, request *models.EnrollmentRequest) error
	Update(ctx context.Context, request *models.EnrollmentRequest, expected repository.RequestGuard, seat repository.SeatChange) error
	UpdateStatus(ctx context.Context, id string, expected repository.RequestGuard, status models.EnrollmentStatus, notes *string, seat repository.SeatChange) error
	Delete(ctx context.Context, id string, expected repository.RequestGuard, seat repository.SeatChange) error
}

type batchLookup interface {
	FindByName(ctx context.Context, name string) (*models.Batch, error)
}

// EnrollmentService runs the enrollment request state machine. Every write
// commits the batch seat change and the request change in one transaction that
// first checks the request still has the status and batch it was read with.
type EnrollmentService struct {
	repo       enrollmentRepository
	batches    batchLookup
	dispatcher ReconcileDispatcher
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, batches batchLookup, dispatcher ReconcileDispatcher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, batches: batches, dispatcher: dispatcher, metrics: metrics, validator: validate, logger: logger}
}

// List returns enrollment requests with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentRequest, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Transient(err, "failed to list enrollment requests")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return requests, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single enrollment request.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	return s.load(ctx, id)
}

// Create registers a pending request for a seat in the named batch.
func (s *EnrollmentService) Create(ctx context.Context, req dto.CreateEnrollmentRequest) (*models.EnrollmentRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment request payload")
	}
	fingerprint := models.ContactFingerprint(req.Contact)
	if fingerprint == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "contact is required")
	}
	if err := s.ensureContactFree(ctx, fingerprint, ""); err != nil {
		return nil, err
	}

	batch, err := s.findBatch(ctx, req.BatchName)
	if err != nil {
		return nil, err
	}
	if batch.Full() {
		return nil, batchFullError(batch)
	}

	// Re-check right before the insert; the unique index settles any race left.
	if err := s.ensureContactFree(ctx, fingerprint, ""); err != nil {
		return nil, err
	}

	request := &models.EnrollmentRequest{
		FullName:           strings.TrimSpace(req.FullName),
		Contact:            strings.TrimSpace(req.Contact),
		ContactFingerprint: fingerprint,
		Email:              req.Email,
		BatchName:          batch.Name,
		Status:             models.EnrollmentStatusPending,
		Notes:              req.Notes,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		if errors.Is(err, repository.ErrDuplicateContact) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateContact, "")
		}
		return nil, appErrors.Transient(err, "failed to create enrollment request")
	}
	s.logger.Info("enrollment request created", zap.String("request_id", request.ID), zap.String("batch", batch.Name))
	return request, nil
}

// SetStatus moves a request to the given status. Approving an approved request
// is a no-op; moving a decided request back to pending is refused.
func (s *EnrollmentService) SetStatus(ctx context.Context, id string, req dto.SetEnrollmentStatusRequest) (*models.EnrollmentRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	var result *models.EnrollmentRequest
	switch req.Status {
	case models.EnrollmentStatusApproved:
		result, err = s.approve(ctx, request, req.Notes)
	case models.EnrollmentStatusRejected:
		result, err = s.reject(ctx, request, req.Notes)
	default:
		result, err = s.markPending(ctx, request, req.Notes)
	}
	s.recordTransition(req.Status, err)
	return result, err
}

func (s *EnrollmentService) approve(ctx context.Context, request *models.EnrollmentRequest, notes *string) (*models.EnrollmentRequest, error) {
	if request.Status == models.EnrollmentStatusApproved {
		return request, nil
	}

	batch, err := s.findBatch(ctx, request.BatchName)
	if err != nil {
		return nil, err
	}
	if !batch.IsActive {
		return nil, batchInactiveError(batch)
	}
	if err := checkCapacityInvariant(batch); err != nil {
		return nil, err
	}
	if batch.Full() {
		return nil, batchFullError(batch)
	}

	seat := repository.SeatChange{Reserve: batch.ID}
	err = s.repo.UpdateStatus(ctx, request.ID, repository.GuardOf(request), models.EnrollmentStatusApproved, mergeNotes(request.Notes, notes), seat)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNoSeatAvailable):
		return nil, s.seatRefusal(ctx, batch)
	case errors.Is(err, repository.ErrRequestChanged):
		return s.resolveRace(ctx, request, models.EnrollmentStatusApproved)
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment request not found")
	default:
		return nil, appErrors.Transient(err, "failed to approve enrollment request")
	}

	s.dispatch(ctx)
	return s.load(ctx, request.ID)
}

func (s *EnrollmentService) reject(ctx context.Context, request *models.EnrollmentRequest, notes *string) (*models.EnrollmentRequest, error) {
	if request.Status == models.EnrollmentStatusRejected && notes == nil {
		return request, nil
	}
	seat, err := s.releaseFor(ctx, request)
	if err != nil {
		return nil, err
	}

	err = s.repo.UpdateStatus(ctx, request.ID, repository.GuardOf(request), models.EnrollmentStatusRejected, mergeNotes(request.Notes, notes), seat)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrRequestChanged):
		return s.resolveRace(ctx, request, models.EnrollmentStatusRejected)
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment request not found")
	default:
		return nil, appErrors.Transient(err, "failed to reject enrollment request")
	}

	if seat.Release != "" {
		s.dispatch(ctx)
	}
	return s.load(ctx, request.ID)
}

func (s *EnrollmentService) markPending(ctx context.Context, request *models.EnrollmentRequest, notes *string) (*models.EnrollmentRequest, error) {
	if request.Status != models.EnrollmentStatusPending {
		return nil, invalidTransitionError(request.Status, models.EnrollmentStatusPending)
	}
	if notes == nil {
		return request, nil
	}
	err := s.repo.UpdateStatus(ctx, request.ID, repository.GuardOf(request), models.EnrollmentStatusPending, notes, repository.SeatChange{})
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrRequestChanged):
		return s.resolveRace(ctx, request, models.EnrollmentStatusPending)
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment request not found")
	default:
		return nil, appErrors.Transient(err, "failed to update enrollment request")
	}
	return s.load(ctx, request.ID)
}

// resolveRace handles a guarded write that lost to a concurrent change of the
// same request. Reaching the wanted status through the other writer counts as
// success; anything else is reported as a conflicting transition.
func (s *EnrollmentService) resolveRace(ctx context.Context, stale *models.EnrollmentRequest, want models.EnrollmentStatus) (*models.EnrollmentRequest, error) {
	fresh, err := s.load(ctx, stale.ID)
	if err != nil {
		return nil, err
	}
	if fresh.Status == want && strings.EqualFold(fresh.BatchName, stale.BatchName) {
		return fresh, nil
	}
	s.logger.Warn("enrollment request changed during transition",
		zap.String("request_id", stale.ID),
		zap.String("read_status", string(stale.Status)),
		zap.String("current_status", string(fresh.Status)),
		zap.String("wanted_status", string(want)))
	return nil, invalidTransitionError(fresh.Status, want)
}

func invalidTransitionError(from, to models.EnrollmentStatus) error {
	return appErrors.WithDetails(
		appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move %s request to %s", from, to)),
		map[string]interface{}{"from": from, "to": to},
	)
}

// Update edits applicant fields. A new batch name reassigns the request; for an
// approved request the seat moves atomically or nothing changes.
func (s *EnrollmentService) Update(ctx context.Context, id string, req dto.UpdateEnrollmentRequest) (*models.EnrollmentRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment request payload")
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	prior := repository.GuardOf(request)

	if req.FullName != nil {
		request.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Email != nil {
		request.Email = req.Email
	}
	if req.Notes != nil {
		request.Notes = req.Notes
	}
	if req.Contact != nil {
		fingerprint := models.ContactFingerprint(*req.Contact)
		if fingerprint == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "contact is required")
		}
		if fingerprint != request.ContactFingerprint {
			if err := s.ensureContactFree(ctx, fingerprint, request.ID); err != nil {
				return nil, err
			}
		}
		request.Contact = strings.TrimSpace(*req.Contact)
		request.ContactFingerprint = fingerprint
	}

	var (
		seat   repository.SeatChange
		target *models.Batch
	)
	if req.BatchName != nil && !strings.EqualFold(strings.TrimSpace(*req.BatchName), request.BatchName) {
		target, err = s.findBatch(ctx, *req.BatchName)
		if err != nil {
			return nil, err
		}
		if request.Status == models.EnrollmentStatusApproved {
			seat, err = s.seatMoveFor(ctx, prior, target)
			if err != nil {
				return nil, err
			}
		}
		request.BatchName = target.Name
	}

	err = s.repo.Update(ctx, request, prior, seat)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNoSeatAvailable):
		return nil, s.seatRefusal(ctx, target)
	case errors.Is(err, repository.ErrDuplicateContact):
		return nil, appErrors.Clone(appErrors.ErrDuplicateContact, "")
	case errors.Is(err, repository.ErrRequestChanged):
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment request changed concurrently, reload and retry")
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment request not found")
	default:
		return nil, appErrors.Transient(err, "failed to update enrollment request")
	}
	if seat.Reserve != "" {
		s.dispatch(ctx)
	}
	return s.load(ctx, request.ID)
}

// seatMoveFor checks the reassignment target and returns the seat change that
// moves an approved request there. A missing source batch has no seat to give back.
func (s *EnrollmentService) seatMoveFor(ctx context.Context, prior repository.RequestGuard, target *models.Batch) (repository.SeatChange, error) {
	if !target.IsActive {
		return repository.SeatChange{}, batchInactiveError(target)
	}
	if err := checkCapacityInvariant(target); err != nil {
		return repository.SeatChange{}, err
	}
	if target.Full() {
		return repository.SeatChange{}, batchFullError(target)
	}

	seat := repository.SeatChange{Reserve: target.ID}
	current, err := s.batches.FindByName(ctx, prior.BatchName)
	switch {
	case err == nil:
		seat.Release = current.ID
	case !errors.Is(err, sql.ErrNoRows):
		return repository.SeatChange{}, appErrors.Transient(err, "failed to load current batch")
	}
	return seat, nil
}

// Delete removes a request, giving its seat back in the same transaction when it held one.
func (s *EnrollmentService) Delete(ctx context.Context, id string) error {
	request, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	seat, err := s.releaseFor(ctx, request)
	if err != nil {
		return err
	}
	err = s.repo.Delete(ctx, id, repository.GuardOf(request), seat)
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "enrollment request not found")
	case errors.Is(err, repository.ErrRequestChanged):
		return appErrors.Clone(appErrors.ErrConflict, "enrollment request changed concurrently, reload and retry")
	default:
		return appErrors.Transient(err, "failed to delete enrollment request")
	}
	if seat.Release != "" {
		s.dispatch(ctx)
	}
	return nil
}

// releaseFor returns the seat change giving back the seat an approved request holds.
func (s *EnrollmentService) releaseFor(ctx context.Context, request *models.EnrollmentRequest) (repository.SeatChange, error) {
	if !request.Status.HoldsSeat() {
		return repository.SeatChange{}, nil
	}
	batch, err := s.batches.FindByName(ctx, request.BatchName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("approved request references a missing batch",
				zap.String("request_id", request.ID),
				zap.String("batch", request.BatchName))
			return repository.SeatChange{}, nil
		}
		return repository.SeatChange{}, appErrors.Transient(err, "failed to load batch")
	}
	return repository.SeatChange{Release: batch.ID}, nil
}

// seatRefusal reports why a guarded increment matched no row, using fresh counts.
func (s *EnrollmentService) seatRefusal(ctx context.Context, batch *models.Batch) error {
	if fresh, err := s.batches.FindByName(ctx, batch.Name); err == nil {
		batch = fresh
	}
	if !batch.IsActive {
		return batchInactiveError(batch)
	}
	return batchFullError(batch)
}

func (s *EnrollmentService) ensureContactFree(ctx context.Context, fingerprint, excludeID string) error {
	exists, err := s.repo.ExistsByFingerprint(ctx, fingerprint, excludeID)
	if err != nil {
		return appErrors.Transient(err, "failed to check contact")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrDuplicateContact, "")
	}
	return nil
}

func (s *EnrollmentService) findBatch(ctx context.Context, name string) (*models.Batch, error) {
	batch, err := s.batches.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrNotFound, "batch not found"), map[string]interface{}{"batch": name})
		}
		return nil, appErrors.Transient(err, "failed to load batch")
	}
	return batch, nil
}

func (s *EnrollmentService) load(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment request not found")
		}
		return nil, appErrors.Transient(err, "failed to load enrollment request")
	}
	return request, nil
}

func (s *EnrollmentService) dispatch(ctx context.Context) {
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, models.SectionOngoingBatches)
	}
}

func (s *EnrollmentService) recordTransition(status models.EnrollmentStatus, err error) {
	result := "ok"
	if err != nil {
		result = appErrors.FromError(err).Code
	}
	s.metrics.RecordTransition(status, result)
}

func checkCapacityInvariant(batch *models.Batch) error {
	if batch.Enrolled < 0 || batch.Enrolled > batch.Capacity {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvariantViolation, ""), map[string]interface{}{
			"batch":    batch.Name,
			"enrolled": batch.Enrolled,
			"capacity": batch.Capacity,
		})
	}
	return nil
}

func batchFullError(batch *models.Batch) *appErrors.Error {
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrBatchFull, fmt.Sprintf("batch %s is full", batch.Name)), map[string]interface{}{
		"batch":    batch.Name,
		"enrolled": batch.Enrolled,
		"capacity": batch.Capacity,
	})
}

func batchInactiveError(batch *models.Batch) *appErrors.Error {
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrBatchInactive, fmt.Sprintf("batch %s is not active", batch.Name)), map[string]interface{}{
		"batch": batch.Name,
	})
}

func mergeNotes(current, incoming *string) *string {
	if incoming != nil {
		return incoming
	}
	return current
}
