package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/cpo-backoffice-api/pkg/errors"
)

type mockAuditRepo struct {
	created  []models.AuditRecord
	search   []models.AuditRecord
	total    int
	criteria models.AuditCriteria
	cutoff   time.Time
	purged   int64
	err      error
}

func (m *mockAuditRepo) Create(ctx context.Context, record *models.AuditRecord) error {
	if m.err != nil {
		return m.err
	}
	record.ID = fmt.Sprintf("aud-%d", len(m.created)+1)
	m.created = append(m.created, *record)
	return nil
}

func (m *mockAuditRepo) Search(ctx context.Context, criteria models.AuditCriteria) ([]models.AuditRecord, int, error) {
	m.criteria = criteria
	return m.search, m.total, m.err
}

func (m *mockAuditRepo) ListAll(ctx context.Context, criteria models.AuditCriteria) ([]models.AuditRecord, error) {
	m.criteria = criteria
	return m.search, m.err
}

func (m *mockAuditRepo) ListByTableAndID(ctx context.Context, table, entityID string, limit int) ([]models.AuditRecord, error) {
	return nil, m.err
}

func (m *mockAuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.cutoff = cutoff
	return m.purged, m.err
}

type mockPublisher struct {
	published []models.AuditRecord
}

func (m *mockPublisher) PublishAudit(record models.AuditRecord) {
	m.published = append(m.published, record)
}

func TestAuditServiceRecordCreateUsesEmptyOldSnapshot(t *testing.T) {
	repo := &mockAuditRepo{}
	pub := &mockPublisher{}
	svc := NewAuditService(repo, pub, nil, zap.NewNop())

	tariff := models.Tariff{ID: "t-1", ConnectorType: "CCS2", PricePerKWh: 0.5, Currency: models.CurrencyUSD}
	require.NoError(t, svc.Record(context.Background(), models.TableTariffs, models.AuditCreate, nil, tariff, "admin-1"))

	require.Len(t, repo.created, 1)
	rec := repo.created[0]
	assert.JSONEq(t, `{}`, string(rec.OldData))
	assert.Contains(t, string(rec.NewData), `"connector_type":"CCS2"`)
	assert.Equal(t, "admin-1", rec.UserID)
	assert.Equal(t, models.AuditCreate, rec.Operation)

	require.Len(t, pub.published, 1)
	assert.Equal(t, rec.ID, pub.published[0].ID)
}

func TestAuditServiceRecordDefaultsActorToSystem(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewAuditService(repo, nil, nil, nil)

	require.NoError(t, svc.Record(context.Background(), models.TableCards, models.AuditUpdate, map[string]string{"status": "active"}, map[string]string{"status": "expired"}, ""))
	require.Len(t, repo.created, 1)
	assert.Equal(t, models.SystemActor, repo.created[0].UserID)
	assert.JSONEq(t, `{"status":"active"}`, string(repo.created[0].OldData))
}

func TestAuditServiceRecordFailureIsInternal(t *testing.T) {
	pub := &mockPublisher{}
	svc := NewAuditService(&mockAuditRepo{err: errors.New("insert failed")}, pub, nil, nil)

	err := svc.Record(context.Background(), models.TableDrivers, models.AuditDelete, nil, nil, "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	assert.Empty(t, pub.published)
}

func TestAuditServiceSearchRejectsInvertedRange(t *testing.T) {
	svc := NewAuditService(&mockAuditRepo{}, nil, nil, nil)
	from := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)

	_, _, err := svc.Search(context.Background(), models.AuditCriteria{From: &from, To: &to})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAuditServiceSearchPaginates(t *testing.T) {
	repo := &mockAuditRepo{search: []models.AuditRecord{{ID: "a"}, {ID: "b"}}, total: 45}
	svc := NewAuditService(repo, nil, nil, nil)

	records, pagination, err := svc.ListByTable(context.Background(), models.TableTariffs, models.PageRequest{Page: 2, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, models.TableTariffs, repo.criteria.Table)
	assert.Equal(t, 45, pagination.TotalCount)
	assert.Equal(t, 2, pagination.Page)

	_, _, err = svc.ListByTable(context.Background(), "", models.PageRequest{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAuditServicePurgeUsesOneYearCutoff(t *testing.T) {
	repo := &mockAuditRepo{purged: 7}
	svc := NewAuditService(repo, nil, nil, nil)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	deleted, err := svc.PurgeOlderThanOneYear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
	assert.Equal(t, now.Add(-365*24*time.Hour), repo.cutoff)
}

func TestAuditServiceExportCSV(t *testing.T) {
	repo := &mockAuditRepo{search: []models.AuditRecord{{
		ID: "c", TableName: models.TableInvoices, Operation: models.AuditAnnulled, UserID: "admin-1",
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), NewData: models.JSONB(`{"status":"annulled"}`),
	}}}
	svc := NewAuditService(repo, nil, nil, nil)

	out, err := svc.ExportCSV(context.Background(), models.AuditCriteria{Table: models.TableInvoices})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id,table_name,operation"))
	assert.Contains(t, lines[1], "ANNULLED")
}
