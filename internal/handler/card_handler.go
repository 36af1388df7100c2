package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cpo-backoffice-api/internal/dto"
	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	"github.com/noah-isme/cpo-backoffice-api/pkg/response"
)

type cardService interface {
	Create(ctx context.Context, req dto.CreateCardRequest, actor string) (*models.RFIDCard, error)
	Update(ctx context.Context, id string, req dto.UpdateCardRequest, actor string) (*models.RFIDCard, error)
	Deactivate(ctx context.Context, id string, req dto.DeactivateCardRequest, actor string) (*models.RFIDCard, error)
	Delete(ctx context.Context, id, actor string) error
	Get(ctx context.Context, id string, includeDeleted bool, claims *models.JWTClaims) (*models.RFIDCard, error)
	List(ctx context.Context, filter models.CardFilter, claims *models.JWTClaims) ([]models.RFIDCard, *models.Pagination, error)
	History(ctx context.Context, id string) ([]models.AuditRecord, error)
}

// CardHandler serves /tarjetas.
type CardHandler struct {
	service cardService
}

// NewCardHandler creates an RFID card handler.
func NewCardHandler(svc cardService) *CardHandler {
	return &CardHandler{service: svc}
}

// Create godoc
// @Summary Issue RFID card
// @Description Cards without a driver are temporary; the code is generated when omitted
// @Tags Cards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateCardRequest true "Card payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tarjetas [post]
func (h *CardHandler) Create(c *gin.Context) {
	var req dto.CreateCardRequest
	if !bindJSON(c, &req, "invalid card payload") {
		return
	}

	card, err := h.service.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, card)
}

// List godoc
// @Summary List RFID cards
// @Tags Cards
// @Produce json
// @Security BearerAuth
// @Param driver_id query string false "Driver filter (admin)"
// @Param status query string false "active, inactive or expired"
// @Param incluir_eliminados query bool false "Include soft-deleted cards (admin only)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /tarjetas [get]
func (h *CardHandler) List(c *gin.Context) {
	filter := models.CardFilter{
		DriverID:       c.Query("driver_id"),
		Status:         models.CardStatus(c.Query("status")),
		IncludeDeleted: includeDeleted(c) && claimsFromContext(c).IsAdmin(),
		PageRequest:    pageFromQuery(c),
	}

	cards, pagination, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, cards, pagination)
}

// Get godoc
// @Summary Get RFID card
// @Tags Cards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Param incluir_eliminados query bool false "Include soft-deleted card (admin only)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /tarjetas/{id} [get]
func (h *CardHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	withDeleted := includeDeleted(c) && claims.IsAdmin()

	card, err := h.service.Get(c.Request.Context(), c.Param("id"), withDeleted, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, card)
}

// Update godoc
// @Summary Update RFID card
// @Tags Cards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Param payload body dto.UpdateCardRequest true "Assignment and expiry"
// @Success 200 {object} response.Envelope
// @Router /tarjetas/{id} [put]
func (h *CardHandler) Update(c *gin.Context) {
	var req dto.UpdateCardRequest
	if !bindJSON(c, &req, "invalid card payload") {
		return
	}

	card, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, card)
}

// Deactivate godoc
// @Summary Deactivate RFID card
// @Tags Cards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Param payload body dto.DeactivateCardRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tarjetas/{id}/desactivar [patch]
func (h *CardHandler) Deactivate(c *gin.Context) {
	var req dto.DeactivateCardRequest
	if !bindJSON(c, &req, "invalid deactivation payload") {
		return
	}

	card, err := h.service.Deactivate(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, card)
}

// Delete godoc
// @Summary Soft delete RFID card
// @Tags Cards
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Success 204
// @Router /tarjetas/{id} [delete]
func (h *CardHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// History godoc
// @Summary RFID card audit history
// @Tags Cards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card ID"
// @Success 200 {object} response.Envelope
// @Router /tarjetas/{id}/auditoria [get]
func (h *CardHandler) History(c *gin.Context) {
	records, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, records)
}
