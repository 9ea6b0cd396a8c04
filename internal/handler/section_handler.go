package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-enrollment-api/internal/dto"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
	"github.com/noah-isme/batch-enrollment-api/pkg/response"
)

type sectionService interface {
	List(ctx context.Context) ([]models.SectionDocument, error)
	Get(ctx context.Context, name string) (*models.SectionDocument, error)
	Put(ctx context.Context, name string, payload json.RawMessage) (*models.SectionDocument, error)
}

type sectionReconciler interface {
	Reconcile(ctx context.Context, name string) ([]models.ViewRecord, error)
	UpdateRecord(ctx context.Context, name, recordID string, patch models.ViewRecordPatch) (*models.ViewRecord, error)
}

// SectionHandler serves section documents and their admin operations.
type SectionHandler struct {
	sections   sectionService
	reconciler sectionReconciler
}

// NewSectionHandler constructs SectionHandler.
func NewSectionHandler(sections sectionService, reconciler sectionReconciler) *SectionHandler {
	return &SectionHandler{sections: sections, reconciler: reconciler}
}

// List godoc
// @Summary List section documents
// @Tags Sections
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sections [get]
func (h *SectionHandler) List(c *gin.Context) {
	docs, err := h.sections.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// Get godoc
// @Summary Get section document
// @Tags Sections
// @Produce json
// @Param name path string true "Section name"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sections/{name} [get]
func (h *SectionHandler) Get(c *gin.Context) {
	doc, err := h.sections.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Reconcile godoc
// @Summary Regenerate a section from its sources
// @Tags Sections
// @Produce json
// @Param name path string true "Section name (ongoingBatches or displayCarousel)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/sections/{name}/reconcile [post]
func (h *SectionHandler) Reconcile(c *gin.Context) {
	name := c.Param("name")
	records, err := h.reconciler.Reconcile(c.Request.Context(), name)
	if err != nil {
		response.Error(c, err)
		return
	}
	if records == nil {
		records = []models.ViewRecord{}
	}
	response.JSON(c, http.StatusOK, dto.ReconcileSectionResponse{Section: name, Records: records}, nil)
}

// UpdateRecord godoc
// @Summary Override fields of one section record
// @Description Hidden records are kept verbatim across regenerations.
// @Tags Sections
// @Accept json
// @Produce json
// @Param name path string true "Section name"
// @Param recordId path string true "Record ID"
// @Param payload body models.ViewRecordPatch true "Overrides"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/sections/{name}/records/{recordId} [patch]
func (h *SectionHandler) UpdateRecord(c *gin.Context) {
	var patch models.ViewRecordPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.reconciler.UpdateRecord(c.Request.Context(), c.Param("name"), c.Param("recordId"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Put godoc
// @Summary Replace a content section
// @Tags Sections
// @Accept json
// @Produce json
// @Param name path string true "Section name"
// @Param payload body dto.PutSectionRequest true "Section payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/sections/{name} [put]
func (h *SectionHandler) Put(c *gin.Context) {
	var req dto.PutSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	doc, err := h.sections.Put(c.Request.Context(), c.Param("name"), req.Payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}
