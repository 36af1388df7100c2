package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/cpo-backoffice-api/internal/dto"
	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/cpo-backoffice-api/pkg/errors"
	"github.com/noah-isme/cpo-backoffice-api/pkg/response"
)

type auditService interface {
	List(ctx context.Context, page models.PageRequest) ([]models.AuditRecord, *models.Pagination, error)
	ListByTable(ctx context.Context, table string, page models.PageRequest) ([]models.AuditRecord, *models.Pagination, error)
	Search(ctx context.Context, criteria models.AuditCriteria) ([]models.AuditRecord, *models.Pagination, error)
	ListByTableAndID(ctx context.Context, table, entityID string) ([]models.AuditRecord, error)
	PurgeOlderThanOneYear(ctx context.Context) (int64, error)
	ExportCSV(ctx context.Context, criteria models.AuditCriteria) ([]byte, error)
}

// AuditHandler serves /auditoria.
type AuditHandler struct {
	service   auditService
	validator *validator.Validate
	now       func() time.Time
}

// NewAuditHandler creates an audit handler.
func NewAuditHandler(svc auditService, validate *validator.Validate) *AuditHandler {
	if validate == nil {
		validate = dto.NewValidator()
	}
	return &AuditHandler{service: svc, validator: validate, now: time.Now}
}

// List godoc
// @Summary List audit records
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /auditoria [get]
func (h *AuditHandler) List(c *gin.Context) {
	records, pagination, err := h.service.List(c.Request.Context(), pageFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// ByTable godoc
// @Summary Audit records of one table
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param tabla path string true "Table name"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /auditoria/tabla/{tabla} [get]
func (h *AuditHandler) ByTable(c *gin.Context) {
	records, pagination, err := h.service.ListByTable(c.Request.Context(), c.Param("tabla"), pageFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// ByEntity godoc
// @Summary Latest audit records of one entity
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param tabla path string true "Table name"
// @Param id path string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Router /auditoria/tabla/{tabla}/{id} [get]
func (h *AuditHandler) ByEntity(c *gin.Context) {
	records, err := h.service.ListByTableAndID(c.Request.Context(), c.Param("tabla"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, records)
}

// Search godoc
// @Summary Filter audit records
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param tabla query string false "Table name"
// @Param operacion query string false "Operation"
// @Param usuario query string false "Actor substring"
// @Param desde query string false "RFC3339 lower bound"
// @Param hasta query string false "RFC3339 upper bound"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auditoria/filtros [get]
func (h *AuditHandler) Search(c *gin.Context) {
	criteria, ok := h.criteria(c)
	if !ok {
		return
	}
	records, pagination, err := h.service.Search(c.Request.Context(), criteria)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Export godoc
// @Summary Export audit records as CSV
// @Tags Audit
// @Produce text/csv
// @Security BearerAuth
// @Param tabla query string false "Table name"
// @Param operacion query string false "Operation"
// @Param usuario query string false "Actor substring"
// @Param desde query string false "RFC3339 lower bound"
// @Param hasta query string false "RFC3339 upper bound"
// @Success 200 {file} binary
// @Router /auditoria/exportar [get]
func (h *AuditHandler) Export(c *gin.Context) {
	criteria, ok := h.criteria(c)
	if !ok {
		return
	}
	out, err := h.service.ExportCSV(c.Request.Context(), criteria)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, "auditoria-"+h.now().UTC().Format("20060102-150405")+".csv", "text/csv", out)
}

// Purge godoc
// @Summary Purge audit records older than one year
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /auditoria/limpiar-registros [delete]
func (h *AuditHandler) Purge(c *gin.Context) {
	deleted, err := h.service.PurgeOlderThanOneYear(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.PurgeResult{Deleted: deleted})
}

func (h *AuditHandler) criteria(c *gin.Context) (models.AuditCriteria, bool) {
	var query dto.AuditSearchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid audit filters"))
		return models.AuditCriteria{}, false
	}
	if err := h.validator.Struct(query); err != nil {
		response.Error(c, appErrors.FromValidation(err, "invalid audit filters"))
		return models.AuditCriteria{}, false
	}
	return models.AuditCriteria{
		Table:       query.Table,
		Operation:   models.AuditOperation(query.Operation),
		User:        query.User,
		From:        query.From,
		To:          query.To,
		PageRequest: models.PageRequest{Page: query.Page, PageSize: query.PageSize}.Normalize(),
	}, true
}
