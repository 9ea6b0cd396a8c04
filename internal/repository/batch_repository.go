package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
)

const batchColumns = `id, external_id, name, subject, capacity, enrolled, is_active, created_at, updated_at`

// BatchRepository manages persistence for batches. Enrolled counts are only
// changed by applySeatChange, inside enrollment request transactions.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs a new batch repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// List returns batches matching filter criteria.
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error) {
	base := "FROM batches WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ActiveOnly {
		conditions = append(conditions, "is_active = TRUE")
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(subject) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]bool{
		"name":       true,
		"subject":    true,
		"capacity":   true,
		"enrolled":   true,
		"created_at": true,
	}
	sortBy := filter.SortBy
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s, id ASC LIMIT %d OFFSET %d", batchColumns, base, sortBy, order, size, offset)
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}
	return batches, total, nil
}

// ListActive returns every active batch, most recently created first.
func (r *BatchRepository) ListActive(ctx context.Context) ([]models.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE is_active = TRUE ORDER BY created_at DESC, id ASC`
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, fmt.Errorf("list active batches: %w", err)
	}
	return batches, nil
}

// FindByID returns a batch by ID.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// FindByName resolves a batch by its case-insensitive name.
func (r *BatchRepository) FindByName(ctx context.Context, name string) (*models.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE LOWER(name) = LOWER($1)`
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, query, strings.TrimSpace(name)); err != nil {
		return nil, err
	}
	return &batch, nil
}

// ExistsByName checks if another batch already uses the name.
func (r *BatchRepository) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	query := "SELECT 1 FROM batches WHERE LOWER(name) = LOWER($1)"
	args := []interface{}{strings.TrimSpace(name)}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check batch name: %w", err)
	}
	return true, nil
}

// Create persists a batch. New batches always start with no seats taken.
func (r *BatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = now
	}
	batch.UpdatedAt = now
	batch.Enrolled = 0

	const query = `INSERT INTO batches (id, external_id, name, subject, capacity, enrolled, is_active, created_at, updated_at)
VALUES (:id, :external_id, :name, :subject, :capacity, 0, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		if isUniqueViolation(err, "batches_name_key") {
			return ErrDuplicateName
		}
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// Update modifies descriptive fields and capacity. The capacity change is
// refused in the same statement when it would fall below the live enrollment.
func (r *BatchRepository) Update(ctx context.Context, batch *models.Batch) error {
	batch.UpdatedAt = time.Now().UTC()
	const query = `UPDATE batches SET external_id = :external_id, name = :name, subject = :subject, capacity = :capacity,
is_active = :is_active, updated_at = :updated_at
WHERE id = :id AND enrolled <= :capacity`
	result, err := r.db.NamedExecContext(ctx, query, batch)
	if err != nil {
		if isUniqueViolation(err, "batches_name_key") {
			return ErrDuplicateName
		}
		return fmt.Errorf("update batch: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated batch rows: %w", err)
	}
	if affected == 0 {
		return ErrCapacityBelowEnrolled
	}
	return nil
}

// Delete removes a batch record.
func (r *BatchRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM batches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted batch rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SeatChange is the batch seat adjustment written in the same transaction as
// an enrollment request change. Release is applied before Reserve.
type SeatChange struct {
	Release string
	Reserve string
}

const (
	releaseSeatQuery = `UPDATE batches SET enrolled = GREATEST(enrolled - 1, 0), updated_at = $2 WHERE id = $1`
	reserveSeatQuery = `UPDATE batches SET enrolled = enrolled + 1, updated_at = $2
WHERE id = $1 AND is_active = TRUE AND enrolled < capacity`
)

// applySeatChange gives a seat back on change.Release and takes one on
// change.Reserve if, and only if, that batch is active and a seat is free when
// the row is written. A refused reservation returns ErrNoSeatAvailable and the
// caller must roll back.
func applySeatChange(ctx context.Context, exec sqlx.ExecerContext, change SeatChange) error {
	now := time.Now().UTC()
	if change.Release != "" {
		if _, err := exec.ExecContext(ctx, releaseSeatQuery, change.Release, now); err != nil {
			return fmt.Errorf("release batch seat: %w", err)
		}
	}
	if change.Reserve == "" {
		return nil
	}
	result, err := exec.ExecContext(ctx, reserveSeatQuery, change.Reserve, now)
	if err != nil {
		return fmt.Errorf("reserve batch seat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check reserved batch rows: %w", err)
	}
	if affected == 0 {
		return ErrNoSeatAvailable
	}
	return nil
}
