package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
)

func TestEnrollmentRepositoryCreateMapsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollment_requests")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "enrollment_requests_contact_fingerprint_key"})

	err := repo.Create(context.Background(), &models.EnrollmentRequest{
		FullName:           "Rani",
		Contact:            "9999999999",
		ContactFingerprint: "9999999999",
		BatchName:          "Morning",
	})
	assert.ErrorIs(t, err, ErrDuplicateContact)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateDefaultsPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollment_requests")).
		WithArgs(sqlmock.AnyArg(), "Rani", "9999999999", "9999999999", nil, "Morning", models.EnrollmentStatusPending, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	request := &models.EnrollmentRequest{FullName: "Rani", Contact: "9999999999", ContactFingerprint: "9999999999", BatchName: "Morning"}
	require.NoError(t, repo.Create(context.Background(), request))
	assert.NotEmpty(t, request.ID)
	assert.Equal(t, models.EnrollmentStatusPending, request.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsByFingerprint(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollment_requests WHERE contact_fingerprint = $1 AND id <> $2 LIMIT 1")).
		WithArgs("9999999999", "req-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollment_requests WHERE contact_fingerprint = $1 LIMIT 1")).
		WithArgs("9999999999").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByFingerprint(context.Background(), "9999999999", "req-1")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ExistsByFingerprint(context.Background(), "9999999999", "")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

var lockRequestQuery = regexp.QuoteMeta("SELECT status, batch_name FROM enrollment_requests WHERE id = $1 FOR UPDATE")

func lockedRow(status models.EnrollmentStatus, batch string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"status", "batch_name"}).AddRow(string(status), batch)
}

func TestEnrollmentRepositoryApproveReservesSeatInOneTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockRequestQuery).WithArgs("req-1").
		WillReturnRows(lockedRow(models.EnrollmentStatusPending, "Morning"))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND is_active = TRUE AND enrolled < capacity")).
		WithArgs("batch-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_requests SET status = $2")).
		WithArgs("req-1", models.EnrollmentStatusApproved, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	expected := RequestGuard{Status: models.EnrollmentStatusPending, BatchName: "morning"}
	err := repo.UpdateStatus(context.Background(), "req-1", expected, models.EnrollmentStatusApproved, nil, SeatChange{Reserve: "batch-1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFullBatchRollsBackStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockRequestQuery).WithArgs("req-1").
		WillReturnRows(lockedRow(models.EnrollmentStatusPending, "Morning"))
	mock.ExpectExec(regexp.QuoteMeta("SET enrolled = enrolled + 1")).
		WithArgs("batch-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	expected := RequestGuard{Status: models.EnrollmentStatusPending, BatchName: "Morning"}
	err := repo.UpdateStatus(context.Background(), "req-1", expected, models.EnrollmentStatusApproved, nil, SeatChange{Reserve: "batch-1"})
	assert.ErrorIs(t, err, ErrNoSeatAvailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryStaleStatusWritesNothing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	// A second reject of the same request finds it already rejected.
	mock.ExpectBegin()
	mock.ExpectQuery(lockRequestQuery).WithArgs("req-1").
		WillReturnRows(lockedRow(models.EnrollmentStatusRejected, "Morning"))
	mock.ExpectRollback()

	expected := RequestGuard{Status: models.EnrollmentStatusApproved, BatchName: "Morning"}
	err := repo.UpdateStatus(context.Background(), "req-1", expected, models.EnrollmentStatusRejected, nil, SeatChange{Release: "batch-1"})
	assert.ErrorIs(t, err, ErrRequestChanged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryStatusWriteFailureRestoresSeat(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockRequestQuery).WithArgs("req-1").
		WillReturnRows(lockedRow(models.EnrollmentStatusApproved, "Morning"))
	mock.ExpectExec(regexp.QuoteMeta("SET enrolled = GREATEST(enrolled - 1, 0)")).
		WithArgs("batch-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_requests SET status = $2")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	expected := RequestGuard{Status: models.EnrollmentStatusApproved, BatchName: "Morning"}
	err := repo.UpdateStatus(context.Background(), "req-1", expected, models.EnrollmentStatusRejected, nil, SeatChange{Release: "batch-1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRequestChanged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateMovesSeat(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockRequestQuery).WithArgs("req-1").
		WillReturnRows(lockedRow(models.EnrollmentStatusApproved, "Alpha"))
	mock.ExpectExec(regexp.QuoteMeta("SET enrolled = GREATEST(enrolled - 1, 0)")).
		WithArgs("batch-a", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET enrolled = enrolled + 1")).
		WithArgs("batch-b", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_requests SET full_name = ")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	request := &models.EnrollmentRequest{ID: "req-1", FullName: "Rani", Contact: "9999999999", ContactFingerprint: "9999999999", BatchName: "Beta", Status: models.EnrollmentStatusApproved}
	expected := RequestGuard{Status: models.EnrollmentStatusApproved, BatchName: "Alpha"}
	require.NoError(t, repo.Update(context.Background(), request, expected, SeatChange{Release: "batch-a", Reserve: "batch-b"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateTargetFullRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockRequestQuery).WithArgs("req-1").
		WillReturnRows(lockedRow(models.EnrollmentStatusApproved, "Alpha"))
	mock.ExpectExec(regexp.QuoteMeta("SET enrolled = GREATEST(enrolled - 1, 0)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET enrolled = enrolled + 1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	request := &models.EnrollmentRequest{ID: "req-1", BatchName: "Beta", Status: models.EnrollmentStatusApproved}
	expected := RequestGuard{Status: models.EnrollmentStatusApproved, BatchName: "Alpha"}
	err := repo.Update(context.Background(), request, expected, SeatChange{Release: "batch-a", Reserve: "batch-b"})
	assert.ErrorIs(t, err, ErrNoSeatAvailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDeleteReleasesSeat(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockRequestQuery).WithArgs("req-1").
		WillReturnRows(lockedRow(models.EnrollmentStatusApproved, "Morning"))
	mock.ExpectExec(regexp.QuoteMeta("SET enrolled = GREATEST(enrolled - 1, 0)")).
		WithArgs("batch-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollment_requests WHERE id = $1")).
		WithArgs("req-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	expected := RequestGuard{Status: models.EnrollmentStatusApproved, BatchName: "Morning"}
	require.NoError(t, repo.Delete(context.Background(), "req-1", expected, SeatChange{Release: "batch-1"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockRequestQuery).WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"status", "batch_name"}))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "missing", RequestGuard{Status: models.EnrollmentStatusPending}, SeatChange{})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListApprovedByBatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "full_name", "contact", "contact_fingerprint", "email", "batch_name", "status", "notes", "created_at", "updated_at"}).
		AddRow("req-1", "Rani", "9999999999", "9999999999", nil, "Morning", "approved", nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE LOWER(batch_name) = LOWER($1) AND status = $2")).
		WithArgs("Morning", models.EnrollmentStatusApproved).
		WillReturnRows(rows)

	requests, err := repo.ListApprovedByBatch(context.Background(), "Morning")
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, models.EnrollmentStatusApproved, requests[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
