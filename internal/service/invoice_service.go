package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/noah-isme/cpo-backoffice-api/internal/dto"
	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/cpo-backoffice-api/pkg/errors"
	"github.com/noah-isme/cpo-backoffice-api/pkg/export"
)

type invoiceRepository interface {
	FindByID(ctx context.Context, id string) (*models.Invoice, error)
	List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error)
	HasActiveForPayment(ctx context.Context, paymentID string) (bool, error)
	Create(ctx context.Context, invoice *models.Invoice) error
	Update(ctx context.Context, invoice *models.Invoice) error
}

type paymentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Payment, error)
}

// Fields that change on every write and are not reported in history.
var invoiceHistoryIgnored = map[string]bool{"history": true, "updated_at": true}

// InvoiceService bills payments and keeps the invoice's embedded history.
type InvoiceService struct {
	repo      invoiceRepository
	payments  paymentLookup
	audit     auditTrail
	tx        TxRunner
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewInvoiceService constructs an InvoiceService.
func NewInvoiceService(repo invoiceRepository, payments paymentLookup, audit auditTrail, tx TxRunner, validate *validator.Validate, logger *zap.Logger) *InvoiceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &InvoiceService{repo: repo, payments: payments, audit: audit, tx: txOrNoop(tx), validator: validate, logger: logger, now: time.Now}
}

// Create bills a payment. Consumption is amount over the tariff price and tax
// is amount times IVA percent.
func (s *InvoiceService) Create(ctx context.Context, req dto.CreateInvoiceRequest, actor string) (*models.Invoice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid invoice payload")
	}
	var invoice *models.Invoice
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		payment, err := s.payments.FindByID(ctx, req.PaymentID)
		if err != nil {
			return notFoundOr(err, "payment not found", "failed to load payment")
		}
		if payment.Status == models.PaymentStatusFailed {
			return appErrors.Clone(appErrors.ErrConflict, "failed payments cannot be invoiced")
		}
		if payment.Tariff == nil || payment.Tariff.PricePerKWh <= 0 {
			return appErrors.Clone(appErrors.ErrConflict, "payment tariff has no usable price")
		}
		active, err := s.repo.HasActiveForPayment(ctx, payment.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to check existing invoices")
		}
		if active {
			return appErrors.Clone(appErrors.ErrConflict, "payment already has an active invoice")
		}

		now := s.now().UTC()
		invoice = &models.Invoice{
			Amount:         payment.Amount,
			Currency:       payment.Tariff.Currency,
			ConsumptionKWh: round(payment.Amount/payment.Tariff.PricePerKWh, 4),
			IVARate:        req.IVA,
			TaxAmount:      taxFor(payment.Amount, req.IVA),
			Status:         models.InvoiceStatusActive,
			PaymentID:      payment.ID,
			DriverID:       payment.DriverID,
			TariffID:       payment.TariffID,
			CreatedAt:      now,
		}
		invoice.AppendHistory(models.InvoiceActionCreated, actor, now, nil)
		if err := s.repo.Create(ctx, invoice); err != nil {
			return err
		}
		return s.audit.Record(ctx, models.TableInvoices, models.AuditCreate, nil, invoice, actor)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "payment already has an active invoice")
		}
		return nil, notFoundOr(err, "invoice not found", "failed to create invoice")
	}
	return invoice, nil
}

// Update changes the IVA rate of an active invoice and records the changed fields.
func (s *InvoiceService) Update(ctx context.Context, id string, req dto.UpdateInvoiceRequest, actor string) (*models.Invoice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid invoice payload")
	}
	var updated models.Invoice
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == models.InvoiceStatusAnnulled {
			return appErrors.Clone(appErrors.ErrConflict, "annulled invoices cannot be modified")
		}

		now := s.now().UTC()
		updated = *current
		updated.History = append(models.InvoiceHistory(nil), current.History...)
		updated.IVARate = req.IVA
		updated.TaxAmount = taxFor(current.Amount, req.IVA)
		updated.UpdatedAt = now

		changed, err := changedFields(current, &updated)
		if err != nil {
			return appErrors.Internal(err, "failed to diff invoice")
		}
		if len(changed) == 0 {
			updated = *current
			return nil
		}
		updated.AppendHistory(models.InvoiceActionUpdated, actor, now, changed)
		if err := s.repo.Update(ctx, &updated); err != nil {
			return err
		}
		return s.audit.Record(ctx, models.TableInvoices, models.AuditUpdate, current, &updated, actor)
	})
	if err != nil {
		return nil, notFoundOr(err, "invoice not found", "failed to update invoice")
	}
	return &updated, nil
}

// Annul flips an active invoice to annulled.
func (s *InvoiceService) Annul(ctx context.Context, id, actor string) (*models.Invoice, error) {
	var updated models.Invoice
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == models.InvoiceStatusAnnulled {
			return appErrors.Clone(appErrors.ErrConflict, "invoice already annulled")
		}
		now := s.now().UTC()
		updated = *current
		updated.History = append(models.InvoiceHistory(nil), current.History...)
		updated.Status = models.InvoiceStatusAnnulled
		updated.UpdatedAt = now
		updated.AppendHistory(models.InvoiceActionAnnulled, actor, now, []string{"status"})
		if err := s.repo.Update(ctx, &updated); err != nil {
			return err
		}
		return s.audit.Record(ctx, models.TableInvoices, models.AuditAnnulled, current, &updated, actor)
	})
	if err != nil {
		return nil, notFoundOr(err, "invoice not found", "failed to annul invoice")
	}
	return &updated, nil
}

// Get returns an invoice visible to the caller.
func (s *InvoiceService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "invoice not found", "failed to load invoice")
	}
	if !canAccess(claims, invoice.DriverID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invoice belongs to another driver")
	}
	return invoice, nil
}

// List returns invoices. Conductors only see their own.
func (s *InvoiceService) List(ctx context.Context, filter models.InvoiceFilter, claims *models.JWTClaims) ([]models.Invoice, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if !claims.IsAdmin() {
		filter.DriverID = claims.UserID
	}
	invoices, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list invoices")
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	return invoices, filter.PageRequest.Pagination(total), nil
}

// History returns the embedded history of an invoice.
func (s *InvoiceService) History(ctx context.Context, id string, claims *models.JWTClaims) (models.InvoiceHistory, error) {
	invoice, err := s.Get(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	if invoice.History == nil {
		return models.InvoiceHistory{}, nil
	}
	return invoice.History, nil
}

// PDF renders the invoice as a printable document.
func (s *InvoiceService) PDF(ctx context.Context, id string, claims *models.JWTClaims) ([]byte, error) {
	invoice, err := s.Get(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	history := export.Dataset{Headers: []string{"Action", "Timestamp", "User", "Changed fields"}}
	for _, h := range invoice.History {
		changed := ""
		for i, f := range h.ChangedFields {
			if i > 0 {
				changed += ", "
			}
			changed += f
		}
		history.AddRow(h.Action, h.Timestamp.UTC().Format(time.RFC3339), h.User, changed)
	}
	doc := export.Document{
		Title:    "Invoice " + invoice.ID,
		Subtitle: fmt.Sprintf("Status: %s", invoice.Status),
		Fields: []export.Field{
			{Label: "Payment", Value: invoice.PaymentID},
			{Label: "Driver", Value: invoice.DriverID},
			{Label: "Tariff", Value: invoice.TariffID},
			{Label: "Amount", Value: fmt.Sprintf("%.2f %s", invoice.Amount, invoice.Currency)},
			{Label: "Consumption", Value: fmt.Sprintf("%.4f kWh", invoice.ConsumptionKWh)},
			{Label: "IVA", Value: fmt.Sprintf("%.2f%%", invoice.IVARate)},
			{Label: "Tax", Value: fmt.Sprintf("%.2f %s", invoice.TaxAmount, invoice.Currency)},
			{Label: "Total", Value: fmt.Sprintf("%.2f %s", invoice.Amount+invoice.TaxAmount, invoice.Currency)},
			{Label: "Issued", Value: invoice.CreatedAt.UTC().Format("2006-01-02 15:04 MST")},
		},
		Table:  &history,
		Footer: "Generated " + s.now().UTC().Format(time.RFC3339),
	}
	out, err := export.RenderPDF(doc)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render invoice pdf")
	}
	return out, nil
}

// changedFields lists top-level JSON fields whose encoded value differs.
func changedFields(before, after *models.Invoice) ([]string, error) {
	oldRaw, err := json.Marshal(before)
	if err != nil {
		return nil, err
	}
	newRaw, err := json.Marshal(after)
	if err != nil {
		return nil, err
	}
	var changed []string
	gjson.ParseBytes(newRaw).ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if invoiceHistoryIgnored[name] {
			return true
		}
		if gjson.GetBytes(oldRaw, name).Raw != value.Raw {
			changed = append(changed, name)
		}
		return true
	})
	return changed, nil
}

func taxFor(amount, iva float64) float64 {
	return round(amount*iva/100, 2)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
