package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cpo-backoffice-api/internal/dto"
	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	"github.com/noah-isme/cpo-backoffice-api/pkg/response"
)

type paymentService interface {
	Create(ctx context.Context, req dto.CreatePaymentRequest, claims *models.JWTClaims) (*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter, claims *models.JWTClaims) ([]models.Payment, *models.Pagination, error)
	Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Payment, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdatePaymentStatusRequest, actor string) (*models.Payment, error)
	GenerateQR(ctx context.Context, id string, claims *models.JWTClaims) (*models.PaymentQR, error)
	ResolveLink(ctx context.Context, token string) (*models.Payment, error)
}

// PaymentHandler serves /pagos.
type PaymentHandler struct {
	service paymentService
}

// NewPaymentHandler creates a payment handler.
func NewPaymentHandler(svc paymentService) *PaymentHandler {
	return &PaymentHandler{service: svc}
}

// Create godoc
// @Summary Register payment
// @Description Drivers register their own payments; admins must name the driver
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreatePaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /pagos [post]
func (h *PaymentHandler) Create(c *gin.Context) {
	var req dto.CreatePaymentRequest
	if !bindJSON(c, &req, "invalid payment payload") {
		return
	}

	payment, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, payment)
}

// List godoc
// @Summary List payments
// @Description Drivers only see their own payments
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param driver_id query string false "Driver filter (admin)"
// @Param status query string false "pending, confirmed or failed"
// @Param method query string false "card or cash"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /pagos [get]
func (h *PaymentHandler) List(c *gin.Context) {
	filter := models.PaymentFilter{
		DriverID:    c.Query("driver_id"),
		Status:      models.PaymentStatus(c.Query("status")),
		Method:      models.PaymentMethod(c.Query("method")),
		PageRequest: pageFromQuery(c),
	}

	payments, pagination, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, payments, pagination)
}

// Get godoc
// @Summary Get payment
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /pagos/{id} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	payment, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, payment)
}

// UpdateStatus godoc
// @Summary Update payment status
// @Description confirmed and failed are final
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Param payload body dto.UpdatePaymentStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /pagos/{id}/estado [patch]
func (h *PaymentHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdatePaymentStatusRequest
	if !bindJSON(c, &req, "invalid payment status") {
		return
	}

	payment, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, payment)
}

// GenerateQR godoc
// @Summary Generate payment QR
// @Description Returns the QR payload and a base64 PNG valid for 15 minutes
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /pagos/{id}/qr [post]
func (h *PaymentHandler) GenerateQR(c *gin.Context) {
	qr, err := h.service.GenerateQR(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, qr)
}

// ResolveLink godoc
// @Summary Resolve payment link
// @Tags Payments
// @Produce json
// @Param token path string true "Signed link token"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /pagos/enlace/{token} [get]
func (h *PaymentHandler) ResolveLink(c *gin.Context) {
	payment, err := h.service.ResolveLink(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, payment)
}
