package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-enrollment-api/internal/dto"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
	"github.com/noah-isme/batch-enrollment-api/pkg/response"
)

type displayItemService interface {
	List(ctx context.Context) ([]models.DisplayItem, error)
	Create(ctx context.Context, req dto.CreateDisplayItemRequest) (*models.DisplayItem, error)
	Update(ctx context.Context, id string, req dto.UpdateDisplayItemRequest) (*models.DisplayItem, error)
	Delete(ctx context.Context, id string) error
}

// DisplayItemHandler manages carousel cards.
type DisplayItemHandler struct {
	items displayItemService
}

// NewDisplayItemHandler constructs DisplayItemHandler.
func NewDisplayItemHandler(items displayItemService) *DisplayItemHandler {
	return &DisplayItemHandler{items: items}
}

// List godoc
// @Summary List display items
// @Tags Display Items
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/display-items [get]
func (h *DisplayItemHandler) List(c *gin.Context) {
	items, err := h.items.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Create godoc
// @Summary Create display item
// @Tags Display Items
// @Accept json
// @Produce json
// @Param payload body dto.CreateDisplayItemRequest true "Display item payload"
// @Success 201 {object} response.Envelope
// @Router /admin/display-items [post]
func (h *DisplayItemHandler) Create(c *gin.Context) {
	var req dto.CreateDisplayItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	item, err := h.items.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update display item
// @Tags Display Items
// @Accept json
// @Produce json
// @Param id path string true "Display item ID"
// @Param payload body dto.UpdateDisplayItemRequest true "Display item payload"
// @Success 200 {object} response.Envelope
// @Router /admin/display-items/{id} [put]
func (h *DisplayItemHandler) Update(c *gin.Context) {
	var req dto.UpdateDisplayItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	item, err := h.items.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete display item
// @Tags Display Items
// @Param id path string true "Display item ID"
// @Success 204
// @Router /admin/display-items/{id} [delete]
func (h *DisplayItemHandler) Delete(c *gin.Context) {
	if err := h.items.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
