package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cpo-backoffice-api/internal/dto"
	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	"github.com/noah-isme/cpo-backoffice-api/pkg/response"
)

type tariffService interface {
	List(ctx context.Context, filter models.TariffFilter) ([]models.TariffView, *models.Pagination, error)
	Get(ctx context.Context, id string, includeDeleted bool) (*models.TariffView, error)
	Create(ctx context.Context, req dto.CreateTariffRequest, actor string) (*models.TariffView, error)
	Update(ctx context.Context, id string, req dto.UpdateTariffRequest, actor string) (*models.TariffView, error)
	Delete(ctx context.Context, id, actor string) error
	History(ctx context.Context, id string) ([]models.AuditRecord, error)
}

// TariffHandler serves /tarifas.
type TariffHandler struct {
	service tariffService
}

// NewTariffHandler creates a tariff handler.
func NewTariffHandler(svc tariffService) *TariffHandler {
	return &TariffHandler{service: svc}
}

// List godoc
// @Summary List tariffs
// @Description Prices include the converted amount at 1 USD = 120 CUP
// @Tags Tariffs
// @Produce json
// @Security BearerAuth
// @Param connector_type query string false "Connector type"
// @Param currency query string false "CUP or USD"
// @Param incluir_eliminados query bool false "Include soft-deleted tariffs (admin only)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /tarifas [get]
func (h *TariffHandler) List(c *gin.Context) {
	filter := models.TariffFilter{
		ConnectorType:  c.Query("connector_type"),
		Currency:       models.Currency(strings.ToUpper(c.Query("currency"))),
		IncludeDeleted: includeDeleted(c) && claimsFromContext(c).IsAdmin(),
		PageRequest:    pageFromQuery(c),
	}

	tariffs, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, tariffs, pagination)
}

// Get godoc
// @Summary Get tariff
// @Tags Tariffs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Tariff ID"
// @Param incluir_eliminados query bool false "Include soft-deleted tariff (admin only)"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /tarifas/{id} [get]
func (h *TariffHandler) Get(c *gin.Context) {
	withDeleted := includeDeleted(c) && claimsFromContext(c).IsAdmin()

	tariff, err := h.service.Get(c.Request.Context(), c.Param("id"), withDeleted)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, tariff)
}

// Create godoc
// @Summary Create tariff
// @Tags Tariffs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateTariffRequest true "Tariff payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /tarifas [post]
func (h *TariffHandler) Create(c *gin.Context) {
	var req dto.CreateTariffRequest
	if !bindJSON(c, &req, "invalid tariff payload") {
		return
	}

	tariff, err := h.service.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, tariff)
}

// Update godoc
// @Summary Update tariff
// @Tags Tariffs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Tariff ID"
// @Param payload body dto.UpdateTariffRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /tarifas/{id} [put]
func (h *TariffHandler) Update(c *gin.Context) {
	var req dto.UpdateTariffRequest
	if !bindJSON(c, &req, "invalid tariff payload") {
		return
	}

	tariff, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, tariff)
}

// Delete godoc
// @Summary Soft delete tariff
// @Tags Tariffs
// @Security BearerAuth
// @Param id path string true "Tariff ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /tarifas/{id} [delete]
func (h *TariffHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// History godoc
// @Summary Tariff audit history
// @Tags Tariffs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Tariff ID"
// @Success 200 {object} response.Envelope
// @Router /tarifas/{id}/auditoria [get]
func (h *TariffHandler) History(c *gin.Context) {
	records, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, records)
}
