package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/cpo-backoffice-api/internal/dto"
	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/cpo-backoffice-api/pkg/errors"
)

func newTestTariffService(repo *mockTariffRepo, cacheRepo *mockCacheRepo) (*TariffService, *mockAuditTrail) {
	audit := &mockAuditTrail{}
	var cache *CacheService
	if cacheRepo != nil {
		cache = NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	}
	return NewTariffService(repo, audit, &mockTx{}, cache, time.Minute, validator.New(), zap.NewNop()), audit
}

func TestTariffServiceCreateConvertsPrice(t *testing.T) {
	svc, audit := newTestTariffService(newMockTariffRepo(), nil)

	view, err := svc.Create(context.Background(), dto.CreateTariffRequest{
		ConnectorType: "CCS2", PricePerKWh: 0.5, StartTime: "08:00", EndTime: "18:00", Currency: models.CurrencyUSD,
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.CurrencyCUP, view.ConvertedCurrency)
	assert.InDelta(t, 60.0, view.ConvertedPrice, 1e-9)

	require.Len(t, audit.records, 1)
	assert.Equal(t, models.AuditCreate, audit.last().Operation)
	assert.Equal(t, "admin-1", audit.last().Actor)
}

func TestTariffServiceCreateRejectsOutOfRangePrice(t *testing.T) {
	svc, audit := newTestTariffService(newMockTariffRepo(), nil)

	_, err := svc.Create(context.Background(), dto.CreateTariffRequest{
		ConnectorType: "CCS2", PricePerKWh: 2, StartTime: "08:00", EndTime: "18:00", Currency: models.CurrencyUSD,
	}, "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, audit.records)
}

func TestTariffServiceListUsesCacheAndMutationsInvalidate(t *testing.T) {
	repo := newMockTariffRepo(&models.Tariff{ID: "t-1", ConnectorType: "Type2", PricePerKWh: 1.2, Currency: models.CurrencyCUP})
	cacheRepo := newMockCacheRepo()
	svc, _ := newTestTariffService(repo, cacheRepo)

	first, _, err := svc.List(context.Background(), models.TariffFilter{})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, models.CurrencyUSD, first[0].ConvertedCurrency)
	assert.InDelta(t, 0.01, first[0].ConvertedPrice, 1e-9)

	_, _, err = svc.List(context.Background(), models.TariffFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)

	price := 0.9
	_, err = svc.Update(context.Background(), "t-1", dto.UpdateTariffRequest{PricePerKWh: &price}, "admin-1")
	require.NoError(t, err)
	require.NotEmpty(t, cacheRepo.deleted)
	assert.True(t, strings.HasPrefix(cacheRepo.deleted[0], "cpo:tariffs:"))

	_, _, err = svc.List(context.Background(), models.TariffFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
}

func TestTariffServiceUpdateAuditsSnapshots(t *testing.T) {
	repo := newMockTariffRepo(&models.Tariff{ID: "t-1", ConnectorType: "CCS2", PricePerKWh: 0.5, StartTime: "08:00", EndTime: "18:00", Currency: models.CurrencyUSD})
	svc, audit := newTestTariffService(repo, nil)
	before := *repo.tariffs["t-1"]

	price := 0.7
	view, err := svc.Update(context.Background(), "t-1", dto.UpdateTariffRequest{PricePerKWh: &price}, "admin-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, view.PricePerKWh, 1e-9)

	rec := audit.last()
	assert.Equal(t, models.AuditUpdate, rec.Operation)
	assert.Equal(t, &before, rec.Old)
	assert.Equal(t, &view.Tariff, rec.New)
}

func TestTariffServiceDelete(t *testing.T) {
	repo := newMockTariffRepo(&models.Tariff{ID: "t-1", ConnectorType: "CHAdeMO", PricePerKWh: 0.3, Currency: models.CurrencyUSD})
	svc, audit := newTestTariffService(repo, nil)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	before := *repo.tariffs["t-1"]

	require.NoError(t, svc.Delete(context.Background(), "t-1", "admin-1"))
	assert.NotNil(t, repo.tariffs["t-1"].DeletedAt)

	rec := audit.last()
	assert.Equal(t, models.AuditSoftDelete, rec.Operation)
	assert.Equal(t, &before, rec.Old)
	after := before
	after.DeletedAt = &now
	after.UpdatedAt = now
	assert.Equal(t, &after, rec.New)

	_, err := svc.Get(context.Background(), "t-1", false)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	err = svc.Delete(context.Background(), "t-1", "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestTariffServiceDeletedTariffVisibleWhenIncluded(t *testing.T) {
	repo := newMockTariffRepo()
	svc, _ := newTestTariffService(repo, nil)

	created, err := svc.Create(context.Background(), dto.CreateTariffRequest{
		ConnectorType: "Type2", PricePerKWh: 0.4, StartTime: "00:00", EndTime: "23:59", Currency: models.CurrencyUSD,
	}, "admin-1")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), created.ID, "admin-1"))

	_, err = svc.Get(context.Background(), created.ID, false)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	view, err := svc.Get(context.Background(), created.ID, true)
	require.NoError(t, err)
	assert.NotNil(t, view.DeletedAt)

	active, _, err := svc.List(context.Background(), models.TariffFilter{})
	require.NoError(t, err)
	assert.Empty(t, active)

	all, _, err := svc.List(context.Background(), models.TariffFilter{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, created.ID, all[0].ID)
}
