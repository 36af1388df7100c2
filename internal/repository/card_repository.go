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

const cardColumns = `id, code, status, issued_at, expires_at, temporary, deactivation_reason, driver_id, created_at, updated_at, deleted_at`

// CardRepository provides database access for RFID cards.
type CardRepository struct {
	db *sqlx.DB
}

// NewCardRepository creates a new CardRepository.
func NewCardRepository(db *sqlx.DB) *CardRepository {
	return &CardRepository{db: db}
}

// FindByID returns a card by identifier.
func (r *CardRepository) FindByID(ctx context.Context, id string, includeDeleted bool) (*models.RFIDCard, error) {
	query := `SELECT ` + cardColumns + ` FROM rfid_cards WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	var card models.RFIDCard
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &card, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find card by id: %w", err)
	}
	return &card, nil
}

// CodeExists reports whether a card code is taken, including deleted cards.
func (r *CardRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &exists, `SELECT EXISTS(SELECT 1 FROM rfid_cards WHERE code = $1)`, code); err != nil {
		return false, fmt.Errorf("check card code: %w", err)
	}
	return exists, nil
}

// List returns cards based on filters with total count.
func (r *CardRepository) List(ctx context.Context, filter models.CardFilter) ([]models.RFIDCard, int, error) {
	baseQuery := `FROM rfid_cards WHERE 1=1`
	var conditions []string
	var args []interface{}

	if !filter.IncludeDeleted {
		conditions = append(conditions, "deleted_at IS NULL")
	}
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
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at ASC, id ASC LIMIT %d OFFSET %d", cardColumns, baseQuery, page.PageSize, page.Offset())

	exec := database.Executor(ctx, r.db)
	var cards []models.RFIDCard
	if err := sqlx.SelectContext(ctx, exec, &cards, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list cards: %w", err)
	}
	var total int
	if err := sqlx.GetContext(ctx, exec, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count cards: %w", err)
	}
	return cards, total, nil
}

// ListOverdue returns active cards whose expiry is before now.
func (r *CardRepository) ListOverdue(ctx context.Context, now time.Time) ([]models.RFIDCard, error) {
	query := `SELECT ` + cardColumns + ` FROM rfid_cards WHERE status = 'active' AND deleted_at IS NULL AND expires_at < $1 ORDER BY expires_at ASC`
	var cards []models.RFIDCard
	if err := sqlx.SelectContext(ctx, database.Executor(ctx, r.db), &cards, query, now); err != nil {
		return nil, fmt.Errorf("list overdue cards: %w", err)
	}
	return cards, nil
}

// Create inserts a card.
func (r *CardRepository) Create(ctx context.Context, card *models.RFIDCard) error {
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	card.CreatedAt = now
	card.UpdatedAt = now
	if card.IssuedAt.IsZero() {
		card.IssuedAt = now
	}

	const query = `INSERT INTO rfid_cards (id, code, status, issued_at, expires_at, temporary, deactivation_reason, driver_id, created_at, updated_at)
VALUES (:id, :code, :status, :issued_at, :expires_at, :temporary, :deactivation_reason, :driver_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, card); err != nil {
		return fmt.Errorf("create card: %w", err)
	}
	return nil
}

// Update persists the mutable card fields.
func (r *CardRepository) Update(ctx context.Context, card *models.RFIDCard) error {
	card.UpdatedAt = time.Now().UTC()
	const query = `UPDATE rfid_cards SET code = :code, status = :status, expires_at = :expires_at, temporary = :temporary, deactivation_reason = :deactivation_reason, driver_id = :driver_id, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	res, err := sqlx.NamedExecContext(ctx, database.Executor(ctx, r.db), query, card)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	return expectAffected(res)
}

// SoftDelete stamps deleted_at once.
func (r *CardRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	const query = `UPDATE rfid_cards SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, id, deletedAt)
	if err != nil {
		return fmt.Errorf("soft delete card: %w", err)
	}
	return expectAffected(res)
}
