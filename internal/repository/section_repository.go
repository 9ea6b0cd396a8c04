package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
)

// SectionRepository persists section documents, one row per section name.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// List returns every stored section ordered by name.
func (r *SectionRepository) List(ctx context.Context) ([]models.SectionDocument, error) {
	const query = `SELECT name, payload, updated_at FROM sections ORDER BY name ASC`
	var docs []models.SectionDocument
	if err := r.db.SelectContext(ctx, &docs, query); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return docs, nil
}

// Get fetches a single section by name. It returns sql.ErrNoRows when absent.
func (r *SectionRepository) Get(ctx context.Context, name string) (*models.SectionDocument, error) {
	const query = `SELECT name, payload, updated_at FROM sections WHERE name = $1`
	var doc models.SectionDocument
	if err := r.db.GetContext(ctx, &doc, query, name); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Upsert replaces the whole document in a single statement.
func (r *SectionRepository) Upsert(ctx context.Context, doc *models.SectionDocument) error {
	const query = `INSERT INTO sections (name, payload, updated_at)
VALUES (:name, :payload, :updated_at)
ON CONFLICT (name)
DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	doc.UpdatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("upsert section %s: %w", doc.Name, err)
	}
	return nil
}
