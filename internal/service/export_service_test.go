package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

func newExportFixture() *ExportService {
	approved := pendingRequest("req1", "1111111111", "Morning")
	approved.Status = models.EnrollmentStatusApproved
	approved.FullName = "Rani"
	approved.Email = strPtr("rani@example.com")
	pending := pendingRequest("req2", "2222222222", "Morning")

	store := newFakeBatchStore(models.Batch{ID: "b1", Name: "Morning", Subject: "Math", Capacity: 10, Enrolled: 1, IsActive: true})
	svc := NewExportService(store, newFakeEnrollmentRepo(approved, pending), zap.NewNop(), nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC) }
	return svc
}

func TestExportServiceRosterCSV(t *testing.T) {
	svc := newExportFixture()

	file, err := svc.Roster(context.Background(), "b1", "")
	require.NoError(t, err)
	assert.Equal(t, "roster_Morning_20240501_083000.csv", file.Filename)
	assert.True(t, strings.HasPrefix(file.ContentType, "text/csv"))

	lines := strings.Split(strings.TrimSpace(string(file.Data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "No,Full Name,Contact,Email,Approved At", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,Rani,1111111111,rani@example.com,"))
}

func TestExportServiceRosterPDF(t *testing.T) {
	svc := newExportFixture()

	file, err := svc.Roster(context.Background(), "b1", "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Data, []byte("%PDF-")))
}

func TestExportServiceRosterErrors(t *testing.T) {
	svc := newExportFixture()

	_, err := svc.Roster(context.Background(), "b1", "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Roster(context.Background(), "missing", "csv")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
