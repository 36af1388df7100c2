package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	"github.com/noah-isme/cpo-backoffice-api/pkg/database"
)

const auditColumns = `id, table_name, operation, old_data, new_data, user_id, created_at`

// likeEscaper makes user input match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// AuditRepository persists the append-only audit log.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an audit record, joining the caller's transaction when present.
func (r *AuditRepository) Create(ctx context.Context, record *models.AuditRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_records (id, table_name, operation, old_data, new_data, user_id, created_at) VALUES (:id, :table_name, :operation, :old_data, :new_data, :user_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, record); err != nil {
		return fmt.Errorf("create audit record: %w", err)
	}
	return nil
}

// Search returns records matching the criteria in insertion order.
func (r *AuditRepository) Search(ctx context.Context, criteria models.AuditCriteria) ([]models.AuditRecord, int, error) {
	baseQuery, args := auditWhere(criteria)
	page := criteria.PageRequest.Normalize()
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at ASC, id ASC LIMIT %d OFFSET %d", auditColumns, baseQuery, page.PageSize, page.Offset())

	exec := database.Executor(ctx, r.db)
	var records []models.AuditRecord
	if err := sqlx.SelectContext(ctx, exec, &records, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit records: %w", err)
	}
	var total int
	if err := sqlx.GetContext(ctx, exec, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}
	return records, total, nil
}

// ListAll returns every record matching the criteria without paging.
func (r *AuditRepository) ListAll(ctx context.Context, criteria models.AuditCriteria) ([]models.AuditRecord, error) {
	baseQuery, args := auditWhere(criteria)
	var records []models.AuditRecord
	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at ASC, id ASC", auditColumns, baseQuery)
	if err := sqlx.SelectContext(ctx, database.Executor(ctx, r.db), &records, query, args...); err != nil {
		return nil, fmt.Errorf("export audit records: %w", err)
	}
	return records, nil
}

// ListByTableAndID returns the newest records whose snapshots carry entityID.
func (r *AuditRepository) ListByTableAndID(ctx context.Context, table, entityID string, limit int) ([]models.AuditRecord, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_records
WHERE table_name = $1 AND (new_data->>'id' = $2 OR old_data->>'id' = $2)
ORDER BY created_at DESC, id DESC LIMIT $3`
	var records []models.AuditRecord
	if err := sqlx.SelectContext(ctx, database.Executor(ctx, r.db), &records, query, table, entityID, limit); err != nil {
		return nil, fmt.Errorf("list audit records by entity: %w", err)
	}
	return records, nil
}

// DeleteOlderThan purges records created strictly before cutoff.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := database.Executor(ctx, r.db).ExecContext(ctx, `DELETE FROM audit_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit records: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge audit records: %w", err)
	}
	return deleted, nil
}

func auditWhere(criteria models.AuditCriteria) (string, []interface{}) {
	baseQuery := `FROM audit_records WHERE 1=1`
	var conditions []string
	var args []interface{}

	if criteria.Table != "" {
		conditions = append(conditions, fmt.Sprintf("table_name = $%d", len(args)+1))
		args = append(args, criteria.Table)
	}
	if criteria.Operation != "" {
		conditions = append(conditions, fmt.Sprintf("operation = $%d", len(args)+1))
		args = append(args, criteria.Operation)
	}
	if criteria.User != "" {
		conditions = append(conditions, fmt.Sprintf(`LOWER(user_id) LIKE $%d ESCAPE '\'`, len(args)+1))
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(criteria.User))+"%")
	}
	if criteria.HasDateRange() {
		conditions = append(conditions, fmt.Sprintf("created_at BETWEEN $%d AND $%d", len(args)+1, len(args)+2))
		args = append(args, *criteria.From, *criteria.To)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}
	return baseQuery, args
}
