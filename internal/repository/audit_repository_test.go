package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cpo-backoffice-api/internal/models"
)

var auditRowColumns = []string{"id", "table_name", "operation", "old_data", "new_data", "user_id", "created_at"}

func TestAuditCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec("INSERT INTO audit_records").WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.AuditRecord{TableName: models.TableDrivers, Operation: models.AuditCreate, OldData: models.JSONB(`{}`), NewData: models.JSONB(`{"id":"d1"}`), UserID: "system"}
	require.NoError(t, repo.Create(context.Background(), record))
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditSearchDateRangeNeedsBothBounds(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	from := time.Now().Add(-time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_records WHERE 1=1 AND table_name = $1 AND LOWER(user_id) LIKE $2 ESCAPE '\\' ORDER BY created_at ASC, id ASC LIMIT 20 OFFSET 0")).
		WithArgs("tariffs", "%adm%").
		WillReturnRows(sqlmock.NewRows(auditRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_records WHERE 1=1 AND table_name = $1 AND LOWER(user_id) LIKE $2 ESCAPE '\\'")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, _, err := repo.Search(context.Background(), models.AuditCriteria{Table: "tariffs", User: "ADM", From: &from})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditSearchUserMatchesWildcardsLiterally(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`LOWER(user_id) LIKE $1 ESCAPE '\'`)).
		WithArgs(`%a\_b\%c\\%`).
		WillReturnRows(sqlmock.NewRows(auditRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_records")).
		WithArgs(`%a\_b\%c\\%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, _, err := repo.Search(context.Background(), models.AuditCriteria{User: `A_b%C\`})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditSearchWithDateRange(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	from := time.Now().Add(-time.Hour)
	to := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND operation = $1 AND created_at BETWEEN $2 AND $3")).
		WithArgs("DELETE", from, to).
		WillReturnRows(sqlmock.NewRows(auditRowColumns).AddRow("a1", "drivers", "DELETE", []byte(`{"id":"d1"}`), nil, "u1", to))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_records")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.Search(context.Background(), models.AuditCriteria{Operation: models.AuditDelete, From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].NewData)
	assert.Equal(t, 1, total)
}

func TestAuditListByTableAndID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE table_name = $1 AND (new_data->>'id' = $2 OR old_data->>'id' = $2)")).
		WithArgs("drivers", "d1", models.AuditRecentLimit).
		WillReturnRows(sqlmock.NewRows(auditRowColumns))

	_, err := repo.ListByTableAndID(context.Background(), "drivers", "d1", models.AuditRecentLimit)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditDeleteOlderThan(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	cutoff := time.Now().AddDate(-1, 0, 0)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_records WHERE created_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	deleted, err := repo.DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
}
