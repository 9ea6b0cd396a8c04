package repository

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
)

func TestSectionRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	payload := json.RawMessage(`[{"id":"b1"}]`)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sections (name, payload, updated_at)")).
		WithArgs(models.SectionOngoingBatches, []byte(payload), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	doc := &models.SectionDocument{Name: models.SectionOngoingBatches, Payload: payload}
	require.NoError(t, repo.Upsert(context.Background(), doc))
	assert.False(t, doc.UpdatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, payload, updated_at FROM sections WHERE name = $1")).
		WithArgs(models.SectionDisplayCarousel).
		WillReturnRows(sqlmock.NewRows([]string{"name", "payload", "updated_at"}).
			AddRow(models.SectionDisplayCarousel, []byte(`[{"id":"card-1","hidden":true}]`), time.Now()))

	doc, err := repo.Get(context.Background(), models.SectionDisplayCarousel)
	require.NoError(t, err)
	records, err := models.DecodeViewRecords(doc.Payload)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Hidden)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDisplayItemRepositoryBulkCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDisplayItemRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO display_items")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO display_items")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	items := []models.DisplayItem{{Title: "Ms. Ayu", Position: 0, IsActive: true}, {Title: "Mr. Budi", Position: 1, IsActive: true}}
	require.NoError(t, repo.BulkCreate(context.Background(), items))
	assert.NotEmpty(t, items[0].ID)
	assert.NotEmpty(t, items[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
