package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cpo-backoffice-api/pkg/database"
)

func TestStatsCountsInReadOnlyTx(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStatsRepository(db)
	tx := database.NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"drivers", "tariffs", "payments", "invoices", "rfid_cards", "audit_records"}).AddRow(3, 2, 5, 1, 4, 20))
	mock.ExpectCommit()

	err := tx.WithinReadOnlyTx(context.Background(), func(ctx context.Context) error {
		stats, err := repo.Counts(ctx)
		if err != nil {
			return err
		}
		assert.Equal(t, 3, stats.Drivers)
		assert.Equal(t, 20, stats.AuditRecords)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
