package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-enrollment-api/internal/dto"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
	"github.com/noah-isme/batch-enrollment-api/pkg/response"
)

type enrollmentService interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentRequest, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.EnrollmentRequest, error)
	Create(ctx context.Context, req dto.CreateEnrollmentRequest) (*models.EnrollmentRequest, error)
	SetStatus(ctx context.Context, id string, req dto.SetEnrollmentStatusRequest) (*models.EnrollmentRequest, error)
	Update(ctx context.Context, id string, req dto.UpdateEnrollmentRequest) (*models.EnrollmentRequest, error)
	Delete(ctx context.Context, id string) error
}

// EnrollmentHandler exposes enrollment request endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// List godoc
// @Summary List enrollment requests
// @Tags Enrollment Requests
// @Produce json
// @Param batch query string false "Filter by batch name"
// @Param status query string false "Filter by status (pending, approved, rejected)"
// @Param search query string false "Search name or contact"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort column"
// @Param order query string false "Sort order"
// @Success 200 {object} response.Envelope
// @Router /admin/enrollment-requests [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	filter := models.EnrollmentFilter{
		BatchName: c.Query("batch"),
		Status:    models.EnrollmentStatus(strings.ToLower(c.Query("status"))),
		Search:    c.Query("search"),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	filter.Page, filter.PageSize = pageParams(c)

	requests, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Get godoc
// @Summary Get enrollment request
// @Tags Enrollment Requests
// @Produce json
// @Param id path string true "Enrollment request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/enrollment-requests/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	request, err := h.enrollments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Create godoc
// @Summary Submit an enrollment request
// @Tags Enrollment Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateEnrollmentRequest true "Enrollment request payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollment-requests [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req dto.CreateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.enrollments.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// SetStatus godoc
// @Summary Approve or reject an enrollment request
// @Tags Enrollment Requests
// @Accept json
// @Produce json
// @Param id path string true "Enrollment request ID"
// @Param payload body dto.SetEnrollmentStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /admin/enrollment-requests/{id}/status [patch]
func (h *EnrollmentHandler) SetStatus(c *gin.Context) {
	var req dto.SetEnrollmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.Status = models.EnrollmentStatus(strings.ToLower(string(req.Status)))
	request, err := h.enrollments.SetStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Update godoc
// @Summary Edit an enrollment request
// @Description Changing batch_name reassigns the request; approved requests move their seat.
// @Tags Enrollment Requests
// @Accept json
// @Produce json
// @Param id path string true "Enrollment request ID"
// @Param payload body dto.UpdateEnrollmentRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/enrollment-requests/{id} [put]
func (h *EnrollmentHandler) Update(c *gin.Context) {
	var req dto.UpdateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.enrollments.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Delete godoc
// @Summary Delete an enrollment request
// @Tags Enrollment Requests
// @Param id path string true "Enrollment request ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /admin/enrollment-requests/{id} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	if err := h.enrollments.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
