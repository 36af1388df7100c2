package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cpo-backoffice-api/internal/dto"
	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	"github.com/noah-isme/cpo-backoffice-api/pkg/response"
)

type driverService interface {
	List(ctx context.Context, filter models.DriverFilter) ([]models.Driver, *models.Pagination, error)
	Get(ctx context.Context, id string, includeDeleted bool) (*models.Driver, error)
	Create(ctx context.Context, req dto.CreateDriverRequest, actor string) (*models.Driver, error)
	Update(ctx context.Context, id string, req dto.UpdateDriverRequest, actor string) (*models.Driver, error)
	ChangePassword(ctx context.Context, id string, req dto.ChangePasswordRequest, actor string) error
	Delete(ctx context.Context, id, actor string) error
	History(ctx context.Context, id string) ([]models.AuditRecord, error)
}

// DriverHandler serves /conductores.
type DriverHandler struct {
	service driverService
}

// NewDriverHandler creates a new driver handler.
func NewDriverHandler(svc driverService) *DriverHandler {
	return &DriverHandler{service: svc}
}

// List godoc
// @Summary List drivers
// @Tags Drivers
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param search query string false "Name or email fragment"
// @Param incluir_eliminados query bool false "Include soft-deleted drivers"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /conductores [get]
func (h *DriverHandler) List(c *gin.Context) {
	filter := models.DriverFilter{
		Search:         c.Query("search"),
		IncludeDeleted: includeDeleted(c),
		PageRequest:    pageFromQuery(c),
	}

	drivers, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, drivers, pagination)
}

// Get godoc
// @Summary Get driver
// @Description Admins may include soft-deleted drivers; drivers may read themselves
// @Tags Drivers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Driver ID"
// @Param incluir_eliminados query bool false "Include soft-deleted driver (admin only)"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /conductores/{id} [get]
func (h *DriverHandler) Get(c *gin.Context) {
	withDeleted := includeDeleted(c) && claimsFromContext(c).IsAdmin()

	driver, err := h.service.Get(c.Request.Context(), c.Param("id"), withDeleted)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, driver)
}

// Create godoc
// @Summary Create driver
// @Tags Drivers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateDriverRequest true "Driver payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /conductores [post]
func (h *DriverHandler) Create(c *gin.Context) {
	var req dto.CreateDriverRequest
	if !bindJSON(c, &req, "invalid driver payload") {
		return
	}

	driver, err := h.service.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, driver)
}

// Update godoc
// @Summary Update driver profile
// @Tags Drivers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Driver ID"
// @Param payload body dto.UpdateDriverRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /conductores/{id} [put]
func (h *DriverHandler) Update(c *gin.Context) {
	var req dto.UpdateDriverRequest
	if !bindJSON(c, &req, "invalid driver payload") {
		return
	}

	driver, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, driver)
}

// ChangePassword godoc
// @Summary Change password
// @Tags Drivers
// @Accept json
// @Security BearerAuth
// @Param id path string true "Driver ID"
// @Param payload body dto.ChangePasswordRequest true "Current and new password"
// @Success 204
// @Failure 401 {object} response.Envelope
// @Router /conductores/{id}/password [put]
func (h *DriverHandler) ChangePassword(c *gin.Context) {
	var req dto.ChangePasswordRequest
	if !bindJSON(c, &req, "invalid password payload") {
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), c.Param("id"), req, actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Delete godoc
// @Summary Soft delete driver
// @Tags Drivers
// @Security BearerAuth
// @Param id path string true "Driver ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /conductores/{id} [delete]
func (h *DriverHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// History godoc
// @Summary Driver audit history
// @Tags Drivers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Driver ID"
// @Success 200 {object} response.Envelope
// @Router /conductores/{id}/auditoria [get]
func (h *DriverHandler) History(c *gin.Context) {
	records, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, records)
}
