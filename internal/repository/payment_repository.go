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

// The tariff relation is always loaded, aliased into the nested struct.
const paymentSelect = `SELECT p.id, p.amount, p.method, p.status, p.paid_at, p.payment_link, p.qr_payload, p.qr_expires_at,
	p.card_metadata, p.external_reference, p.driver_id, p.tariff_id, p.created_at, p.updated_at,
	t.id AS "tariff.id", t.connector_type AS "tariff.connector_type", t.price_per_kwh AS "tariff.price_per_kwh",
	t.start_time AS "tariff.start_time", t.end_time AS "tariff.end_time", t.currency AS "tariff.currency",
	t.created_at AS "tariff.created_at", t.updated_at AS "tariff.updated_at", t.deleted_at AS "tariff.deleted_at"
FROM payments p JOIN tariffs t ON t.id = p.tariff_id`

// PaymentRepository provides database access for payments.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// FindByID returns a payment with its tariff.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &payment, paymentSelect+` WHERE p.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find payment by id: %w", err)
	}
	return &payment, nil
}

// List returns payments based on filters with total count.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	where := ` WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.DriverID != "" {
		conditions = append(conditions, fmt.Sprintf("p.driver_id = $%d", len(args)+1))
		args = append(args, filter.DriverID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Method != "" {
		conditions = append(conditions, fmt.Sprintf("p.method = $%d", len(args)+1))
		args = append(args, filter.Method)
	}
	if len(conditions) > 0 {
		where += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.PageRequest.Normalize()
	listQuery := fmt.Sprintf("%s%s ORDER BY p.created_at ASC, p.id ASC LIMIT %d OFFSET %d", paymentSelect, where, page.PageSize, page.Offset())

	exec := database.Executor(ctx, r.db)
	var payments []models.Payment
	if err := sqlx.SelectContext(ctx, exec, &payments, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	var total int
	if err := sqlx.GetContext(ctx, exec, &total, "SELECT COUNT(*) FROM payments p"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// Create inserts a payment. The caller may preassign the id.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	if payment.PaidAt.IsZero() {
		payment.PaidAt = now
	}

	const query = `INSERT INTO payments (id, amount, method, status, paid_at, payment_link, qr_payload, qr_expires_at, card_metadata, external_reference, driver_id, tariff_id, created_at, updated_at)
VALUES (:id, :amount, :method, :status, :paid_at, :payment_link, :qr_payload, :qr_expires_at, :card_metadata, :external_reference, :driver_id, :tariff_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// UpdateStatus sets the payment status.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, updatedAt time.Time) error {
	const query = `UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, id, status, updatedAt)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return expectAffected(res)
}

// UpdateQR stores the latest QR payload and its advisory expiry.
func (r *PaymentRepository) UpdateQR(ctx context.Context, id, payload string, expiresAt, updatedAt time.Time) error {
	const query = `UPDATE payments SET qr_payload = $2, qr_expires_at = $3, updated_at = $4 WHERE id = $1`
	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, id, payload, expiresAt, updatedAt)
	if err != nil {
		return fmt.Errorf("update payment qr: %w", err)
	}
	return expectAffected(res)
}

// ReferenceExists reports whether an external reference is already used.
func (r *PaymentRepository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &exists, `SELECT EXISTS(SELECT 1 FROM payments WHERE external_reference = $1)`, reference); err != nil {
		return false, fmt.Errorf("check payment reference: %w", err)
	}
	return exists, nil
}
