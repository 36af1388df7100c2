package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cpo-backoffice-api/internal/dto"
	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	"github.com/noah-isme/cpo-backoffice-api/pkg/response"
)

type invoiceService interface {
	Create(ctx context.Context, req dto.CreateInvoiceRequest, actor string) (*models.Invoice, error)
	Update(ctx context.Context, id string, req dto.UpdateInvoiceRequest, actor string) (*models.Invoice, error)
	Annul(ctx context.Context, id, actor string) (*models.Invoice, error)
	Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Invoice, error)
	List(ctx context.Context, filter models.InvoiceFilter, claims *models.JWTClaims) ([]models.Invoice, *models.Pagination, error)
	History(ctx context.Context, id string, claims *models.JWTClaims) (models.InvoiceHistory, error)
	PDF(ctx context.Context, id string, claims *models.JWTClaims) ([]byte, error)
}

// InvoiceHandler serves /facturas.
type InvoiceHandler struct {
	service invoiceService
}

// NewInvoiceHandler creates an invoice handler.
func NewInvoiceHandler(svc invoiceService) *InvoiceHandler {
	return &InvoiceHandler{service: svc}
}

// Create godoc
// @Summary Issue invoice
// @Tags Invoices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateInvoiceRequest true "Payment and IVA rate"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /facturas [post]
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if !bindJSON(c, &req, "invalid invoice payload") {
		return
	}

	invoice, err := h.service.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, invoice)
}

// List godoc
// @Summary List invoices
// @Tags Invoices
// @Produce json
// @Security BearerAuth
// @Param driver_id query string false "Driver filter (admin)"
// @Param status query string false "active or annulled"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /facturas [get]
func (h *InvoiceHandler) List(c *gin.Context) {
	filter := models.InvoiceFilter{
		DriverID:    c.Query("driver_id"),
		Status:      models.InvoiceStatus(c.Query("status")),
		PageRequest: pageFromQuery(c),
	}

	invoices, pagination, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, invoices, pagination)
}

// Get godoc
// @Summary Get invoice
// @Tags Invoices
// @Produce json
// @Security BearerAuth
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /facturas/{id} [get]
func (h *InvoiceHandler) Get(c *gin.Context) {
	invoice, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, invoice)
}

// Update godoc
// @Summary Change invoice IVA
// @Tags Invoices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Invoice ID"
// @Param payload body dto.UpdateInvoiceRequest true "New IVA rate"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /facturas/{id} [put]
func (h *InvoiceHandler) Update(c *gin.Context) {
	var req dto.UpdateInvoiceRequest
	if !bindJSON(c, &req, "invalid invoice payload") {
		return
	}

	invoice, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, invoice)
}

// Annul godoc
// @Summary Annul invoice
// @Tags Invoices
// @Produce json
// @Security BearerAuth
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /facturas/{id} [delete]
func (h *InvoiceHandler) Annul(c *gin.Context) {
	invoice, err := h.service.Annul(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, invoice)
}

// History godoc
// @Summary Invoice history
// @Tags Invoices
// @Produce json
// @Security BearerAuth
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Router /facturas/{id}/historial [get]
func (h *InvoiceHandler) History(c *gin.Context) {
	history, err := h.service.History(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, history)
}

// PDF godoc
// @Summary Download invoice PDF
// @Tags Invoices
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Invoice ID"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /facturas/{id}/pdf [get]
func (h *InvoiceHandler) PDF(c *gin.Context) {
	id := c.Param("id")
	pdf, err := h.service.PDF(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, "factura-"+id+".pdf", "application/pdf", pdf)
}
