package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	"github.com/noah-isme/cpo-backoffice-api/pkg/database"
)

// StatsRepository reads table counts for operational dashboards.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Counts returns live row counts. Run inside a read-only transaction for a
// consistent snapshot.
func (r *StatsRepository) Counts(ctx context.Context) (*models.DBStats, error) {
	const query = `SELECT
	(SELECT COUNT(*) FROM drivers WHERE deleted_at IS NULL) AS drivers,
	(SELECT COUNT(*) FROM tariffs WHERE deleted_at IS NULL) AS tariffs,
	(SELECT COUNT(*) FROM payments) AS payments,
	(SELECT COUNT(*) FROM invoices) AS invoices,
	(SELECT COUNT(*) FROM rfid_cards WHERE deleted_at IS NULL) AS rfid_cards,
	(SELECT COUNT(*) FROM audit_records) AS audit_records`
	var stats models.DBStats
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &stats, query); err != nil {
		return nil, fmt.Errorf("db stats: %w", err)
	}
	return &stats, nil
}

// Ping issues a trivial read used by the health probe.
func (r *StatsRepository) Ping(ctx context.Context) error {
	var one int
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &one, `SELECT 1`); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}
