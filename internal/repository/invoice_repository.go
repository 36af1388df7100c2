package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	"github.com/noah-isme/cpo-backoffice-api/pkg/database"
)

const invoiceColumns = `id, amount, currency, consumption_kwh, iva_rate, tax_amount, status, history, payment_id, driver_id, tariff_id, created_at, updated_at`

// InvoiceRepository provides database access for invoices.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository creates a new InvoiceRepository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// FindByID returns an invoice by identifier.
func (r *InvoiceRepository) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	var invoice models.Invoice
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &invoice, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find invoice by id: %w", err)
	}
	return &invoice, nil
}

// List returns invoices based on filters with total count.
func (r *InvoiceRepository) List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error) {
	baseQuery := `FROM invoices WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.DriverID != "" {
		conditions = append(conditions, fmt.Sprintf("driver_id = $%d", len(args)+1))
		args = append(args, filter.DriverID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.PageRequest.Normalize()
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at ASC, id ASC LIMIT %d OFFSET %d", invoiceColumns, baseQuery, page.PageSize, page.Offset())

	exec := database.Executor(ctx, r.db)
	var invoices []models.Invoice
	if err := sqlx.SelectContext(ctx, exec, &invoices, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	var total int
	if err := sqlx.GetContext(ctx, exec, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}
	return invoices, total, nil
}

// HasActiveForPayment reports whether the payment already has an active invoice.
func (r *InvoiceRepository) HasActiveForPayment(ctx context.Context, paymentID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS(SELECT 1 FROM invoices WHERE payment_id = $1 AND status = 'active')`
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &exists, query, paymentID); err != nil {
		return false, fmt.Errorf("check active invoice: %w", err)
	}
	return exists, nil
}

// Create inserts an invoice.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = invoice.CreatedAt

	const query = `INSERT INTO invoices (id, amount, currency, consumption_kwh, iva_rate, tax_amount, status, history, payment_id, driver_id, tariff_id, created_at, updated_at)
VALUES (:id, :amount, :currency, :consumption_kwh, :iva_rate, :tax_amount, :status, :history, :payment_id, :driver_id, :tariff_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, invoice); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

// Update persists rate, tax, status and history.
func (r *InvoiceRepository) Update(ctx context.Context, invoice *models.Invoice) error {
	const query = `UPDATE invoices SET iva_rate = :iva_rate, tax_amount = :tax_amount, status = :status, history = :history, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, invoice)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	return expectAffected(res)
}
