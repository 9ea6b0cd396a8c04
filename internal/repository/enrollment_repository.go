package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
)

const enrollmentColumns = `id, full_name, contact, contact_fingerprint, email, batch_name, status, notes, created_at, updated_at`

// EnrollmentRepository handles persistence of enrollment requests.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollment requests filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentRequest, int, error) {
	base := "FROM enrollment_requests"
	var conditions []string
	var args []interface{}

	if filter.BatchName != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(batch_name) = LOWER($%d)", len(args)+1))
		args = append(args, filter.BatchName)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR contact_fingerprint LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at": "created_at",
		"full_name":  "full_name",
		"batch_name": "batch_name",
		"status":     "status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY %s %s, id ASC LIMIT %d OFFSET %d`, enrollmentColumns, base+clause, orderBy, order, size, offset)
	var requests []models.EnrollmentRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollment requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollment requests: %w", err)
	}
	return requests, total, nil
}

// FindByID returns an enrollment request by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollment_requests WHERE id = $1`
	var request models.EnrollmentRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// ExistsByFingerprint checks whether a request already exists for the contact fingerprint.
func (r *EnrollmentRepository) ExistsByFingerprint(ctx context.Context, fingerprint, excludeID string) (bool, error) {
	query := "SELECT 1 FROM enrollment_requests WHERE contact_fingerprint = $1"
	args := []interface{}{fingerprint}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check contact fingerprint: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment request. The unique index on the contact
// fingerprint is the last line of defence against concurrent duplicates.
func (r *EnrollmentRepository) Create(ctx context.Context, request *models.EnrollmentRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now
	if request.Status == "" {
		request.Status = models.EnrollmentStatusPending
	}
	const query = `INSERT INTO enrollment_requests (id, full_name, contact, contact_fingerprint, email, batch_name, status, notes, created_at, updated_at)
VALUES (:id, :full_name, :contact, :contact_fingerprint, :email, :batch_name, :status, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		if isUniqueViolation(err, "enrollment_requests_contact_fingerprint_key") {
			return ErrDuplicateContact
		}
		return fmt.Errorf("create enrollment request: %w", err)
	}
	return nil
}

// RequestGuard pins the status and batch an enrollment request had when it was
// read. Writes that carry a guard fail with ErrRequestChanged once either moved.
type RequestGuard struct {
	Status    models.EnrollmentStatus `db:"status"`
	BatchName string                  `db:"batch_name"`
}

// GuardOf returns the guard for request as currently loaded.
func GuardOf(request *models.EnrollmentRequest) RequestGuard {
	return RequestGuard{Status: request.Status, BatchName: request.BatchName}
}

func (g RequestGuard) matches(other RequestGuard) bool {
	return g.Status == other.Status && strings.EqualFold(g.BatchName, other.BatchName)
}

// withLockedRequest runs fn in a transaction that holds the request row lock,
// after checking the row still matches expected and applying seat.
func (r *EnrollmentRepository) withLockedRequest(ctx context.Context, id string, expected RequestGuard, seat SeatChange, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current RequestGuard
	if err = tx.GetContext(ctx, &current, `SELECT status, batch_name FROM enrollment_requests WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("lock enrollment request: %w", err)
	}
	if !current.matches(expected) {
		err = ErrRequestChanged
		return err
	}
	if err = applySeatChange(ctx, tx, seat); err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment transaction: %w", err)
	}
	return nil
}

// Update writes applicant fields and the batch reference together with seat.
func (r *EnrollmentRepository) Update(ctx context.Context, request *models.EnrollmentRequest, expected RequestGuard, seat SeatChange) error {
	request.UpdatedAt = time.Now().UTC()
	return r.withLockedRequest(ctx, request.ID, expected, seat, func(tx *sqlx.Tx) error {
		const query = `UPDATE enrollment_requests SET full_name = :full_name, contact = :contact, contact_fingerprint = :contact_fingerprint,
email = :email, batch_name = :batch_name, notes = :notes, updated_at = :updated_at WHERE id = :id`
		if _, err := tx.NamedExecContext(ctx, query, request); err != nil {
			if isUniqueViolation(err, "enrollment_requests_contact_fingerprint_key") {
				return ErrDuplicateContact
			}
			return fmt.Errorf("update enrollment request: %w", err)
		}
		return nil
	})
}

// UpdateStatus sets the status and notes of a request together with seat.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, expected RequestGuard, status models.EnrollmentStatus, notes *string, seat SeatChange) error {
	return r.withLockedRequest(ctx, id, expected, seat, func(tx *sqlx.Tx) error {
		const query = `UPDATE enrollment_requests SET status = $2, notes = $3, updated_at = $4 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, query, id, status, notes, time.Now().UTC()); err != nil {
			return fmt.Errorf("update enrollment request status: %w", err)
		}
		return nil
	})
}

// Delete removes an enrollment request together with seat.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string, expected RequestGuard, seat SeatChange) error {
	return r.withLockedRequest(ctx, id, expected, seat, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM enrollment_requests WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete enrollment request: %w", err)
		}
		return nil
	})
}

// ListApprovedByBatch returns approved requests for a batch ordered by name, for rosters.
func (r *EnrollmentRepository) ListApprovedByBatch(ctx context.Context, batchName string) ([]models.EnrollmentRequest, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollment_requests
WHERE LOWER(batch_name) = LOWER($1) AND status = $2 ORDER BY full_name ASC, id ASC`
	var requests []models.EnrollmentRequest
	if err := r.db.SelectContext(ctx, &requests, query, batchName, models.EnrollmentStatusApproved); err != nil {
		return nil, fmt.Errorf("list approved enrollment requests: %w", err)
	}
	return requests, nil
}

// RenameBatch points every request of oldName at newName and returns how many moved.
func (r *EnrollmentRepository) RenameBatch(ctx context.Context, oldName, newName string) (int64, error) {
	const query = `UPDATE enrollment_requests SET batch_name = $2, updated_at = $3 WHERE LOWER(batch_name) = LOWER($1)`
	result, err := r.db.ExecContext(ctx, query, oldName, newName, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("rename batch on enrollment requests: %w", err)
	}
	return result.RowsAffected()
}
