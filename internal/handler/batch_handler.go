package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-enrollment-api/internal/dto"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
	"github.com/noah-isme/batch-enrollment-api/pkg/response"
)

type batchService interface {
	List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, *models.Pagination, error)
	ListPublic(ctx context.Context) ([]dto.PublicBatch, error)
	Get(ctx context.Context, id string) (*models.Batch, error)
	Create(ctx context.Context, req dto.CreateBatchRequest) (*models.Batch, error)
	Update(ctx context.Context, id string, req dto.UpdateBatchRequest) (*models.Batch, error)
	Delete(ctx context.Context, id string) error
}

type rosterExporter interface {
	Roster(ctx context.Context, batchID, format string) (*service.RosterFile, error)
}

// BatchHandler exposes batch endpoints.
type BatchHandler struct {
	batches batchService
	rosters rosterExporter
}

// NewBatchHandler constructs BatchHandler.
func NewBatchHandler(batches batchService, rosters rosterExporter) *BatchHandler {
	return &BatchHandler{batches: batches, rosters: rosters}
}

// ListPublic godoc
// @Summary List open batches
// @Tags Batches
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /batches [get]
func (h *BatchHandler) ListPublic(c *gin.Context) {
	batches, err := h.batches.ListPublic(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batches, nil)
}

// List godoc
// @Summary List batches
// @Tags Batches
// @Produce json
// @Param search query string false "Search name or subject"
// @Param active query bool false "Only active batches"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort column"
// @Param order query string false "Sort order"
// @Success 200 {object} response.Envelope
// @Router /admin/batches [get]
func (h *BatchHandler) List(c *gin.Context) {
	filter := models.BatchFilter{
		Search:    c.Query("search"),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if active, err := strconv.ParseBool(c.Query("active")); err == nil {
		filter.ActiveOnly = active
	}
	filter.Page, filter.PageSize = pageParams(c)

	batches, pagination, err := h.batches.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batches, pagination)
}

// Get godoc
// @Summary Get batch
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/batches/{id} [get]
func (h *BatchHandler) Get(c *gin.Context) {
	batch, err := h.batches.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// Create godoc
// @Summary Create batch
// @Tags Batches
// @Accept json
// @Produce json
// @Param payload body dto.CreateBatchRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/batches [post]
func (h *BatchHandler) Create(c *gin.Context) {
	var req dto.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	batch, err := h.batches.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, batch)
}

// Update godoc
// @Summary Update batch
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body dto.UpdateBatchRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /admin/batches/{id} [put]
func (h *BatchHandler) Update(c *gin.Context) {
	var req dto.UpdateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	batch, err := h.batches.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// Delete godoc
// @Summary Delete batch
// @Tags Batches
// @Param id path string true "Batch ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /admin/batches/{id} [delete]
func (h *BatchHandler) Delete(c *gin.Context) {
	if err := h.batches.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Roster godoc
// @Summary Download batch roster
// @Tags Batches
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Batch ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /admin/batches/{id}/roster [get]
func (h *BatchHandler) Roster(c *gin.Context) {
	if h.rosters == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "roster export not configured"))
		return
	}
	file, err := h.rosters.Roster(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
