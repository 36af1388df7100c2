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

const driverColumns = `id, first_name, last_name, email, password_hash, role, created_at, updated_at, deleted_at`

// DriverRepository provides database access for drivers.
type DriverRepository struct {
	db *sqlx.DB
}

// NewDriverRepository creates a new instance of DriverRepository.
func NewDriverRepository(db *sqlx.DB) *DriverRepository {
	return &DriverRepository{db: db}
}

// FindByEmail returns a non-deleted driver by email address.
func (r *DriverRepository) FindByEmail(ctx context.Context, email string) (*models.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL LIMIT 1`
	var driver models.Driver
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &driver, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find driver by email: %w", err)
	}
	return &driver, nil
}

// FindByID returns a driver by identifier, optionally including soft-deleted rows.
func (r *DriverRepository) FindByID(ctx context.Context, id string, includeDeleted bool) (*models.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` LIMIT 1`
	var driver models.Driver
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &driver, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find driver by id: %w", err)
	}
	return &driver, nil
}

// EmailExists reports whether any driver row, deleted or not, other than
// excludeID uses the email.
func (r *DriverRepository) EmailExists(ctx context.Context, email, excludeID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM drivers WHERE LOWER(email) = LOWER($1)`
	args := []interface{}{email}
	if excludeID != "" {
		query += ` AND id <> $2`
		args = append(args, excludeID)
	}
	query += `)`
	var exists bool
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &exists, query, args...); err != nil {
		return false, fmt.Errorf("check driver email: %w", err)
	}
	return exists, nil
}

// List returns drivers based on filters with total count.
func (r *DriverRepository) List(ctx context.Context, filter models.DriverFilter) ([]models.Driver, int, error) {
	baseQuery := `FROM drivers WHERE 1=1`
	var conditions []string
	var args []interface{}

	if !filter.IncludeDeleted {
		conditions = append(conditions, "deleted_at IS NULL")
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(first_name || ' ' || last_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.PageRequest.Normalize()
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at ASC, id ASC LIMIT %d OFFSET %d", driverColumns, baseQuery, page.PageSize, page.Offset())

	exec := database.Executor(ctx, r.db)
	var drivers []models.Driver
	if err := sqlx.SelectContext(ctx, exec, &drivers, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list drivers: %w", err)
	}

	var total int
	if err := sqlx.GetContext(ctx, exec, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count drivers: %w", err)
	}
	return drivers, total, nil
}

// Create inserts a new driver.
func (r *DriverRepository) Create(ctx context.Context, driver *models.Driver) error {
	if driver.ID == "" {
		driver.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if driver.CreatedAt.IsZero() {
		driver.CreatedAt = now
	}
	driver.UpdatedAt = now

	const query = `INSERT INTO drivers (id, first_name, last_name, email, password_hash, role, created_at, updated_at) VALUES (:id, :first_name, :last_name, :email, :password_hash, :role, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, driver); err != nil {
		return fmt.Errorf("create driver: %w", err)
	}
	return nil
}

// Update persists profile fields of a non-deleted driver.
func (r *DriverRepository) Update(ctx context.Context, driver *models.Driver) error {
	driver.UpdatedAt = time.Now().UTC()
	const query = `UPDATE drivers SET first_name = :first_name, last_name = :last_name, email = :email, role = :role, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	res, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, driver)
	if err != nil {
		return fmt.Errorf("update driver: %w", err)
	}
	return expectAffected(res)
}

// UpdatePassword updates the stored password hash.
func (r *DriverRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE drivers SET password_hash = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`
	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, id, passwordHash, updatedAt)
	if err != nil {
		return fmt.Errorf("update driver password: %w", err)
	}
	return expectAffected(res)
}

// SoftDelete stamps deleted_at once. Missing or already deleted rows yield sql.ErrNoRows.
func (r *DriverRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	const query = `UPDATE drivers SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, id, deletedAt)
	if err != nil {
		return fmt.Errorf("soft delete driver: %w", err)
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
