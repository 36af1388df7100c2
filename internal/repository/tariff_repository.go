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

const tariffColumns = `id, connector_type, price_per_kwh, start_time, end_time, currency, created_at, updated_at, deleted_at`

// TariffRepository provides database access for tariffs.
type TariffRepository struct {
	db *sqlx.DB
}

// NewTariffRepository creates a new TariffRepository.
func NewTariffRepository(db *sqlx.DB) *TariffRepository {
	return &TariffRepository{db: db}
}

// FindByID returns a tariff by identifier.
func (r *TariffRepository) FindByID(ctx context.Context, id string, includeDeleted bool) (*models.Tariff, error) {
	query := `SELECT ` + tariffColumns + ` FROM tariffs WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	var tariff models.Tariff
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &tariff, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find tariff by id: %w", err)
	}
	return &tariff, nil
}

// List returns tariffs based on filters with total count.
func (r *TariffRepository) List(ctx context.Context, filter models.TariffFilter) ([]models.Tariff, int, error) {
	baseQuery := `FROM tariffs WHERE 1=1`
	var conditions []string
	var args []interface{}

	if !filter.IncludeDeleted {
		conditions = append(conditions, "deleted_at IS NULL")
	}
	if filter.ConnectorType != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(connector_type) = LOWER($%d)", len(args)+1))
		args = append(args, filter.ConnectorType)
	}
	if filter.Currency != "" {
		conditions = append(conditions, fmt.Sprintf("currency = $%d", len(args)+1))
		args = append(args, filter.Currency)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.PageRequest.Normalize()
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at ASC, id ASC LIMIT %d OFFSET %d", tariffColumns, baseQuery, page.PageSize, page.Offset())

	exec := database.Executor(ctx, r.db)
	var tariffs []models.Tariff
	if err := sqlx.SelectContext(ctx, exec, &tariffs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list tariffs: %w", err)
	}
	var total int
	if err := sqlx.GetContext(ctx, exec, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count tariffs: %w", err)
	}
	return tariffs, total, nil
}

// Create inserts a tariff.
func (r *TariffRepository) Create(ctx context.Context, tariff *models.Tariff) error {
	if tariff.ID == "" {
		tariff.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	tariff.CreatedAt = now
	tariff.UpdatedAt = now

	const query = `INSERT INTO tariffs (id, connector_type, price_per_kwh, start_time, end_time, currency, created_at, updated_at) VALUES (:id, :connector_type, :price_per_kwh, :start_time, :end_time, :currency, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, tariff); err != nil {
		return fmt.Errorf("create tariff: %w", err)
	}
	return nil
}

// Update persists all mutable tariff fields.
func (r *TariffRepository) Update(ctx context.Context, tariff *models.Tariff) error {
	tariff.UpdatedAt = time.Now().UTC()
	const query = `UPDATE tariffs SET connector_type = :connector_type, price_per_kwh = :price_per_kwh, start_time = :start_time, end_time = :end_time, currency = :currency, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	res, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, tariff)
	if err != nil {
		return fmt.Errorf("update tariff: %w", err)
	}
	return expectAffected(res)
}

// SoftDelete stamps deleted_at once.
func (r *TariffRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	const query = `UPDATE tariffs SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, id, deletedAt)
	if err != nil {
		return fmt.Errorf("soft delete tariff: %w", err)
	}
	return expectAffected(res)
}
