package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

type sectionServiceMock struct {
	putPayload json.RawMessage
	err        error
}

func (m *sectionServiceMock) List(ctx context.Context) ([]models.SectionDocument, error) {
	return []models.SectionDocument{{Name: "aboutUs", Payload: json.RawMessage(`{}`)}}, m.err
}

func (m *sectionServiceMock) Get(ctx context.Context, name string) (*models.SectionDocument, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.SectionDocument{Name: name, Payload: json.RawMessage(`[]`)}, nil
}

func (m *sectionServiceMock) Put(ctx context.Context, name string, payload json.RawMessage) (*models.SectionDocument, error) {
	m.putPayload = payload
	if m.err != nil {
		return nil, m.err
	}
	return &models.SectionDocument{Name: name, Payload: payload}, nil
}

type sectionReconcilerMock struct {
	records   []models.ViewRecord
	lastPatch models.ViewRecordPatch
	err       error
}

func (m *sectionReconcilerMock) Reconcile(ctx context.Context, name string) ([]models.ViewRecord, error) {
	return m.records, m.err
}

func (m *sectionReconcilerMock) UpdateRecord(ctx context.Context, name, recordID string, patch models.ViewRecordPatch) (*models.ViewRecord, error) {
	m.lastPatch = patch
	if m.err != nil {
		return nil, m.err
	}
	return &models.ViewRecord{ID: recordID, Hidden: patch.Hidden != nil && *patch.Hidden}, nil
}

func TestSectionHandlerGet(t *testing.T) {
	handler := NewSectionHandler(&sectionServiceMock{}, &sectionReconcilerMock{})

	c, w := newJSONContext(http.MethodGet, "/sections/ongoingBatches", "")
	c.Params = gin.Params{{Key: "name", Value: "ongoingBatches"}}
	handler.Get(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"ongoingBatches"`)
}

func TestSectionHandlerReconcileEmptyRecords(t *testing.T) {
	handler := NewSectionHandler(&sectionServiceMock{}, &sectionReconcilerMock{})

	c, w := newJSONContext(http.MethodPost, "/admin/sections/displayCarousel/reconcile", "")
	c.Params = gin.Params{{Key: "name", Value: "displayCarousel"}}
	handler.Reconcile(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"section":"displayCarousel","records":[]}}`, w.Body.String())
}

func TestSectionHandlerReconcileUnknownSection(t *testing.T) {
	handler := NewSectionHandler(&sectionServiceMock{}, &sectionReconcilerMock{err: appErrors.Clone(appErrors.ErrValidation, "unknown section")})

	c, w := newJSONContext(http.MethodPost, "/admin/sections/aboutUs/reconcile", "")
	c.Params = gin.Params{{Key: "name", Value: "aboutUs"}}
	handler.Reconcile(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSectionHandlerUpdateRecordHides(t *testing.T) {
	reconciler := &sectionReconcilerMock{}
	handler := NewSectionHandler(&sectionServiceMock{}, reconciler)

	c, w := newJSONContext(http.MethodPatch, "/admin/sections/ongoingBatches/records/b1", `{"hidden":true}`)
	c.Params = gin.Params{{Key: "name", Value: "ongoingBatches"}, {Key: "recordId", Value: "b1"}}
	handler.UpdateRecord(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, reconciler.lastPatch.Hidden)
	assert.True(t, *reconciler.lastPatch.Hidden)
	assert.Contains(t, w.Body.String(), `"hidden":true`)
}

func TestSectionHandlerPut(t *testing.T) {
	sections := &sectionServiceMock{}
	handler := NewSectionHandler(sections, &sectionReconcilerMock{})

	c, w := newJSONContext(http.MethodPut, "/admin/sections/aboutUs", `{"payload":{"headline":"hi"}}`)
	c.Params = gin.Params{{Key: "name", Value: "aboutUs"}}
	handler.Put(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"headline":"hi"}`, string(sections.putPayload))
}
