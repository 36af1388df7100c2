package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	"github.com/noah-isme/cpo-backoffice-api/pkg/database"
	appErrors "github.com/noah-isme/cpo-backoffice-api/pkg/errors"
	"github.com/noah-isme/cpo-backoffice-api/pkg/export"
)

// AuditRetention is how long audit records are kept.
const AuditRetention = 365 * 24 * time.Hour

type auditRepository interface {
	Create(ctx context.Context, record *models.AuditRecord) error
	Search(ctx context.Context, criteria models.AuditCriteria) ([]models.AuditRecord, int, error)
	ListAll(ctx context.Context, criteria models.AuditCriteria) ([]models.AuditRecord, error)
	ListByTableAndID(ctx context.Context, table, entityID string, limit int) ([]models.AuditRecord, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditPublisher forwards committed audit records to external consumers.
type AuditPublisher interface {
	PublishAudit(record models.AuditRecord)
}

// AuditService appends and queries the audit log.
type AuditService struct {
	repo      auditRepository
	publisher AuditPublisher
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuditService constructs an AuditService. publisher and metrics may be nil.
func NewAuditService(repo auditRepository, publisher AuditPublisher, metrics *MetricsService, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, publisher: publisher, metrics: metrics, logger: logger, now: time.Now}
}

// Record appends one audit row. Inside a transaction the row commits or rolls
// back with the mutation it describes; the event is only published after commit.
func (s *AuditService) Record(ctx context.Context, table string, op models.AuditOperation, oldState, newState interface{}, actor string) error {
	if actor == "" {
		actor = models.SystemActor
	}
	oldData, err := snapshot(oldState)
	if err != nil {
		return appErrors.Internal(err, "failed to encode audit snapshot")
	}
	if oldData == nil && op == models.AuditCreate {
		oldData = models.JSONB(`{}`)
	}
	newData, err := snapshot(newState)
	if err != nil {
		return appErrors.Internal(err, "failed to encode audit snapshot")
	}

	record := models.AuditRecord{
		TableName: table,
		Operation: op,
		OldData:   oldData,
		NewData:   newData,
		UserID:    actor,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, &record); err != nil {
		return appErrors.Internal(err, "failed to record audit entry")
	}

	database.AfterCommit(ctx, func() {
		s.metrics.RecordAudit(table, string(op))
		if s.publisher != nil {
			s.publisher.PublishAudit(record)
		}
	})
	return nil
}

// List returns every audit record page by page in insertion order.
func (s *AuditService) List(ctx context.Context, page models.PageRequest) ([]models.AuditRecord, *models.Pagination, error) {
	return s.Search(ctx, models.AuditCriteria{PageRequest: page})
}

// ListByTable returns the records of a single table.
func (s *AuditService) ListByTable(ctx context.Context, table string, page models.PageRequest) ([]models.AuditRecord, *models.Pagination, error) {
	if table == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "table is required")
	}
	return s.Search(ctx, models.AuditCriteria{Table: table, PageRequest: page})
}

// Search filters records by table, operation, actor substring and date range.
func (s *AuditService) Search(ctx context.Context, criteria models.AuditCriteria) ([]models.AuditRecord, *models.Pagination, error) {
	if criteria.HasDateRange() && criteria.From.After(*criteria.To) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "desde must not be after hasta")
	}
	records, total, err := s.repo.Search(ctx, criteria)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list audit records")
	}
	if records == nil {
		records = []models.AuditRecord{}
	}
	return records, criteria.PageRequest.Pagination(total), nil
}

// ListByTableAndID returns the latest records whose snapshots reference entityID.
func (s *AuditService) ListByTableAndID(ctx context.Context, table, entityID string) ([]models.AuditRecord, error) {
	records, err := s.repo.ListByTableAndID(ctx, table, entityID, models.AuditRecentLimit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load audit history")
	}
	if records == nil {
		records = []models.AuditRecord{}
	}
	return records, nil
}

// PurgeOlderThanOneYear deletes records created before now minus one year.
func (s *AuditService) PurgeOlderThanOneYear(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-AuditRetention)
	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to purge audit records")
	}
	s.metrics.AddAuditPurged(deleted)
	s.logger.Info("audit retention sweep", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	return deleted, nil
}

// ExportCSV renders all records matching the criteria as CSV.
func (s *AuditService) ExportCSV(ctx context.Context, criteria models.AuditCriteria) ([]byte, error) {
	records, err := s.repo.ListAll(ctx, criteria)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to export audit records")
	}
	data := export.Dataset{Headers: []string{"id", "table_name", "operation", "user_id", "created_at", "old_data", "new_data"}}
	for _, r := range records {
		data.AddRow(r.ID, r.TableName, string(r.Operation), r.UserID, r.CreatedAt.UTC().Format(time.RFC3339), string(r.OldData), string(r.NewData))
	}
	out, err := export.RenderCSV(data)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render audit export")
	}
	return out, nil
}

func snapshot(state interface{}) (models.JSONB, error) {
	switch v := state.(type) {
	case nil:
		return nil, nil
	case models.JSONB:
		return v, nil
	case json.RawMessage:
		return models.JSONB(v), nil
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return models.JSONB(raw), nil
}
