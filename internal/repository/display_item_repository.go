package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
)

const displayItemColumns = `id, legacy_id, title, subtitle, description, image_url, link_url, position, is_active, created_at, updated_at`

// DisplayItemRepository persists the normalized carousel items.
type DisplayItemRepository struct {
	db *sqlx.DB
}

// NewDisplayItemRepository constructs the repository.
func NewDisplayItemRepository(db *sqlx.DB) *DisplayItemRepository {
	return &DisplayItemRepository{db: db}
}

// List returns every display item in carousel order.
func (r *DisplayItemRepository) List(ctx context.Context) ([]models.DisplayItem, error) {
	query := `SELECT ` + displayItemColumns + ` FROM display_items ORDER BY position ASC, created_at ASC, id ASC`
	var items []models.DisplayItem
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list display items: %w", err)
	}
	return items, nil
}

// ListActive returns active display items in carousel order.
func (r *DisplayItemRepository) ListActive(ctx context.Context) ([]models.DisplayItem, error) {
	query := `SELECT ` + displayItemColumns + ` FROM display_items WHERE is_active = TRUE ORDER BY position ASC, created_at ASC, id ASC`
	var items []models.DisplayItem
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list active display items: %w", err)
	}
	return items, nil
}

// Count returns the number of stored display items.
func (r *DisplayItemRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM display_items`); err != nil {
		return 0, fmt.Errorf("count display items: %w", err)
	}
	return total, nil
}

// FindByID returns a display item by ID.
func (r *DisplayItemRepository) FindByID(ctx context.Context, id string) (*models.DisplayItem, error) {
	query := `SELECT ` + displayItemColumns + ` FROM display_items WHERE id = $1`
	var item models.DisplayItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

const insertDisplayItemQuery = `INSERT INTO display_items (id, legacy_id, title, subtitle, description, image_url, link_url, position, is_active, created_at, updated_at)
VALUES (:id, :legacy_id, :title, :subtitle, :description, :image_url, :link_url, :position, :is_active, :created_at, :updated_at)`

func prepareDisplayItem(item *models.DisplayItem, now time.Time) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
}

// Create persists a display item.
func (r *DisplayItemRepository) Create(ctx context.Context, item *models.DisplayItem) error {
	prepareDisplayItem(item, time.Now().UTC())
	if _, err := r.db.NamedExecContext(ctx, insertDisplayItemQuery, item); err != nil {
		return fmt.Errorf("create display item: %w", err)
	}
	return nil
}

// BulkCreate inserts items within a single transaction.
func (r *DisplayItemRepository) BulkCreate(ctx context.Context, items []models.DisplayItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin display item bulk tx: %w", err)
	}
	now := time.Now().UTC()
	for i := range items {
		prepareDisplayItem(&items[i], now)
		if _, err := tx.NamedExecContext(ctx, insertDisplayItemQuery, items[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("bulk create display item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit display item bulk tx: %w", err)
	}
	return nil
}

// Update modifies a display item.
func (r *DisplayItemRepository) Update(ctx context.Context, item *models.DisplayItem) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE display_items SET title = :title, subtitle = :subtitle, description = :description,
image_url = :image_url, link_url = :link_url, position = :position, is_active = :is_active, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("update display item: %w", err)
	}
	return nil
}

// Delete removes a display item.
func (r *DisplayItemRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM display_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete display item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted display item rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
