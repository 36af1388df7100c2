package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/cpo-backoffice-api/internal/dto"
	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	"github.com/noah-isme/cpo-backoffice-api/pkg/database"
	appErrors "github.com/noah-isme/cpo-backoffice-api/pkg/errors"
)

const tariffCachePrefix = "tariffs:"

type tariffRepository interface {
	FindByID(ctx context.Context, id string, includeDeleted bool) (*models.Tariff, error)
	List(ctx context.Context, filter models.TariffFilter) ([]models.Tariff, int, error)
	Create(ctx context.Context, tariff *models.Tariff) error
	Update(ctx context.Context, tariff *models.Tariff) error
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error
}

type cachedTariffPage struct {
	Items []models.TariffView `json:"items"`
	Total int                 `json:"total"`
}

// TariffService manages tariffs and projects converted prices on read.
type TariffService struct {
	repo      tariffRepository
	audit     auditTrail
	tx        TxRunner
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewTariffService constructs a TariffService. cache may be nil.
func NewTariffService(repo tariffRepository, audit auditTrail, tx TxRunner, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *TariffService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TariffService{repo: repo, audit: audit, tx: txOrNoop(tx), cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger, now: time.Now}
}

// List returns tariffs with converted prices, served from cache when possible.
func (s *TariffService) List(ctx context.Context, filter models.TariffFilter) ([]models.TariffView, *models.Pagination, error) {
	page := filter.PageRequest.Normalize()
	key := fmt.Sprintf("%slist:%s:%s:%t:%d:%d", tariffCachePrefix, strings.ToLower(filter.ConnectorType), filter.Currency, filter.IncludeDeleted, page.Page, page.PageSize)

	var cached cachedTariffPage
	if s.cache.Get(ctx, key, &cached) {
		return cached.Items, page.Pagination(cached.Total), nil
	}

	tariffs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list tariffs")
	}
	views := make([]models.TariffView, 0, len(tariffs))
	for _, t := range tariffs {
		views = append(views, t.View())
	}
	s.cache.Set(ctx, key, cachedTariffPage{Items: views, Total: total}, s.cacheTTL)
	return views, page.Pagination(total), nil
}

// Get returns a single tariff with its converted price.
func (s *TariffService) Get(ctx context.Context, id string, includeDeleted bool) (*models.TariffView, error) {
	tariff, err := s.repo.FindByID(ctx, id, includeDeleted)
	if err != nil {
		return nil, notFoundOr(err, "tariff not found", "failed to load tariff")
	}
	view := tariff.View()
	return &view, nil
}

// Create adds a tariff.
func (s *TariffService) Create(ctx context.Context, req dto.CreateTariffRequest, actor string) (*models.TariffView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid tariff payload")
	}
	tariff := &models.Tariff{
		ConnectorType: strings.TrimSpace(req.ConnectorType),
		PricePerKWh:   req.PricePerKWh,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Currency:      req.Currency,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, tariff); err != nil {
			return err
		}
		s.invalidateAfterCommit(ctx)
		return s.audit.Record(ctx, models.TableTariffs, models.AuditCreate, nil, tariff, actor)
	})
	if err != nil {
		return nil, notFoundOr(err, "tariff not found", "failed to create tariff")
	}
	view := tariff.View()
	return &view, nil
}

// Update merges the provided fields into the tariff.
func (s *TariffService) Update(ctx context.Context, id string, req dto.UpdateTariffRequest, actor string) (*models.TariffView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid tariff payload")
	}
	var updated models.Tariff
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id, false)
		if err != nil {
			return err
		}
		updated = *current
		if req.ConnectorType != nil {
			updated.ConnectorType = strings.TrimSpace(*req.ConnectorType)
		}
		if req.PricePerKWh != nil {
			updated.PricePerKWh = *req.PricePerKWh
		}
		if req.StartTime != nil {
			updated.StartTime = *req.StartTime
		}
		if req.EndTime != nil {
			updated.EndTime = *req.EndTime
		}
		if req.Currency != nil {
			updated.Currency = *req.Currency
		}
		if err := s.repo.Update(ctx, &updated); err != nil {
			return err
		}
		s.invalidateAfterCommit(ctx)
		return s.audit.Record(ctx, models.TableTariffs, models.AuditUpdate, current, &updated, actor)
	})
	if err != nil {
		return nil, notFoundOr(err, "tariff not found", "failed to update tariff")
	}
	view := updated.View()
	return &view, nil
}

// Delete soft-deletes a tariff.
func (s *TariffService) Delete(ctx context.Context, id, actor string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id, false)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := s.repo.SoftDelete(ctx, id, now); err != nil {
			return err
		}
		next := *current
		next.DeletedAt = &now
		next.UpdatedAt = now
		s.invalidateAfterCommit(ctx)
		return s.audit.Record(ctx, models.TableTariffs, models.AuditSoftDelete, current, &next, actor)
	})
	if err != nil {
		return notFoundOr(err, "tariff not found", "failed to delete tariff")
	}
	return nil
}

// History returns the latest audit records of a tariff.
func (s *TariffService) History(ctx context.Context, id string) ([]models.AuditRecord, error) {
	return s.audit.ListByTableAndID(ctx, models.TableTariffs, id)
}

func (s *TariffService) invalidateAfterCommit(ctx context.Context) {
	database.AfterCommit(ctx, func() {
		s.cache.InvalidatePrefix(context.Background(), tariffCachePrefix)
	})
}
