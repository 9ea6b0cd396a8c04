package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/batch-enrollment-api/internal/dto"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

func newBatchFixture(batches []models.Batch, requests ...models.EnrollmentRequest) (*BatchService, *fakeBatchStore, *fakeEnrollmentRepo, *recordingDispatcher) {
	store := newFakeBatchStore(batches...)
	requestsRepo := newFakeEnrollmentRepo(requests...)
	dispatcher := &recordingDispatcher{}
	return NewBatchService(store, requestsRepo, dispatcher, nil, zap.NewNop()), store, requestsRepo, dispatcher
}

func TestBatchServiceCreate(t *testing.T) {
	svc, store, _, dispatcher := newBatchFixture([]models.Batch{{ID: "b1", Name: "Morning", Capacity: 5, IsActive: true}})
	ctx := context.Background()

	created, err := svc.Create(ctx, dto.CreateBatchRequest{Name: " Evening ", Subject: "Physics", Capacity: 12})
	require.NoError(t, err)
	assert.Equal(t, "Evening", created.Name)
	assert.True(t, created.IsActive)
	assert.Zero(t, store.get(created.ID).Enrolled)
	assert.Equal(t, []string{models.SectionOngoingBatches}, dispatcher.sections)

	_, err = svc.Create(ctx, dto.CreateBatchRequest{Name: "morning", Subject: "Math", Capacity: 3})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.Create(ctx, dto.CreateBatchRequest{Name: "Night", Subject: "Math", Capacity: 0})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestBatchServiceUpdateRefusesCapacityBelowEnrolled(t *testing.T) {
	svc, store, _, dispatcher := newBatchFixture([]models.Batch{{ID: "b1", Name: "Morning", Capacity: 5, Enrolled: 4, IsActive: true}})

	_, err := svc.Update(context.Background(), "b1", dto.UpdateBatchRequest{Capacity: intPtr(3)})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInvariantViolation)
	appErr := appErrors.FromError(err)
	assert.Equal(t, 4, appErr.Details["enrolled"])
	assert.Equal(t, 5, store.get("b1").Capacity)
	assert.Zero(t, dispatcher.count())

	updated, err := svc.Update(context.Background(), "b1", dto.UpdateBatchRequest{Capacity: intPtr(4)})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Capacity)
	assert.Equal(t, 4, updated.Enrolled)
}

func TestBatchServiceRenameCarriesRequests(t *testing.T) {
	svc, _, requests, _ := newBatchFixture(
		[]models.Batch{{ID: "b1", Name: "Morning", Capacity: 5, IsActive: true}},
		pendingRequest("req1", "1111111111", "Morning"),
		pendingRequest("req2", "2222222222", "Evening"),
	)

	updated, err := svc.Update(context.Background(), "b1", dto.UpdateBatchRequest{Name: strPtr("Sunrise")})
	require.NoError(t, err)
	assert.Equal(t, "Sunrise", updated.Name)
	assert.Equal(t, "Sunrise", requests.get("req1").BatchName)
	assert.Equal(t, "Evening", requests.get("req2").BatchName)
}

func TestBatchServiceDelete(t *testing.T) {
	svc, _, _, dispatcher := newBatchFixture([]models.Batch{
		{ID: "b1", Name: "Morning", Capacity: 5, Enrolled: 1, IsActive: true},
		{ID: "b2", Name: "Evening", Capacity: 5, IsActive: true},
	})
	ctx := context.Background()

	assert.ErrorIs(t, svc.Delete(ctx, "b1"), appErrors.ErrConflict)
	require.NoError(t, svc.Delete(ctx, "b2"))
	assert.ErrorIs(t, svc.Delete(ctx, "b2"), appErrors.ErrNotFound)
	assert.Equal(t, 1, dispatcher.count())
}

func TestBatchServiceListPublic(t *testing.T) {
	svc, _, _, _ := newBatchFixture([]models.Batch{
		{ID: "b1", Name: "Morning", Subject: "Math", Capacity: 5, Enrolled: 5, IsActive: true},
		{ID: "b2", Name: "Evening", Subject: "Physics", Capacity: 5, Enrolled: 2, IsActive: true, ExternalID: strPtr("ext-2")},
		{ID: "b3", Name: "Closed", Subject: "Art", Capacity: 5, IsActive: false},
	})

	batches, err := svc.ListPublic(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "ext-2", batches[0].ID)
	assert.Equal(t, 3, batches[0].AvailableSeats)
	assert.Equal(t, 0, batches[1].AvailableSeats)
}
