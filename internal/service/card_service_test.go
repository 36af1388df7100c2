package service

import (
	"context"
	"errors"
	"regexp"
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

var (
	temporaryCode = regexp.MustCompile(`^TMP-[A-Z0-9]{8}$`)
	permanentCode = regexp.MustCompile(`^RFID-[A-Z0-9]{12}$`)
)

func newTestCardService(cards ...*models.RFIDCard) (*CardService, *mockCardRepo, *mockAuditTrail) {
	repo := &mockCardRepo{cards: map[string]*models.RFIDCard{}}
	for _, c := range cards {
		repo.cards[c.ID] = c
	}
	drivers := newMockDriverRepo(&models.Driver{ID: testDriverID, Email: "eva@example.com"})
	audit := &mockAuditTrail{}
	return NewCardService(repo, drivers, audit, &mockTx{}, validator.New(), zap.NewNop()), repo, audit
}

func TestCardServiceCreateTemporaryCard(t *testing.T) {
	svc, _, audit := newTestCardService()
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	card, err := svc.Create(context.Background(), dto.CreateCardRequest{}, "admin-1")
	require.NoError(t, err)
	assert.True(t, card.Temporary)
	assert.Nil(t, card.DriverID)
	assert.Regexp(t, temporaryCode, card.Code)
	assert.Equal(t, now.Add(30*24*time.Hour), card.ExpiresAt)
	assert.Equal(t, models.CardStatusActive, card.Status)
	assert.Equal(t, models.AuditCreate, audit.last().Operation)
}

func TestCardServiceCreateAssignedCard(t *testing.T) {
	svc, _, _ := newTestCardService()
	driverID := testDriverID

	card, err := svc.Create(context.Background(), dto.CreateCardRequest{DriverID: &driverID}, "admin-1")
	require.NoError(t, err)
	assert.False(t, card.Temporary)
	assert.Regexp(t, permanentCode, card.Code)
	assert.True(t, card.OwnedBy(testDriverID))

	missing := otherDriver
	_, err = svc.Create(context.Background(), dto.CreateCardRequest{DriverID: &missing}, "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestCardServiceCreateDuplicateCode(t *testing.T) {
	svc, _, _ := newTestCardService(&models.RFIDCard{ID: "c-1", Code: "RFID-ABCDEF"})
	driverID := testDriverID

	_, err := svc.Create(context.Background(), dto.CreateCardRequest{Code: "rfid-abcdef", DriverID: &driverID}, "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestCardServiceCreateRejectsCodeOfOtherKind(t *testing.T) {
	svc, repo, audit := newTestCardService()
	driverID := testDriverID

	_, err := svc.Create(context.Background(), dto.CreateCardRequest{Code: "RFID-ABCDEFGH"}, "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(context.Background(), dto.CreateCardRequest{Code: "TMP-ABCDEFGH", DriverID: &driverID}, "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, repo.cards)
	assert.Empty(t, audit.records)

	card, err := svc.Create(context.Background(), dto.CreateCardRequest{Code: "tmp-abcdefgh"}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "TMP-ABCDEFGH", card.Code)
}

func TestCardServiceUpdateReissuesCodeOnKindChange(t *testing.T) {
	svc, repo, audit := newTestCardService()

	card, err := svc.Create(context.Background(), dto.CreateCardRequest{}, "admin-1")
	require.NoError(t, err)
	require.Regexp(t, temporaryCode, card.Code)
	before := *repo.cards[card.ID]

	driverID := testDriverID
	assigned, err := svc.Update(context.Background(), card.ID, dto.UpdateCardRequest{DriverID: &driverID}, "admin-1")
	require.NoError(t, err)
	assert.False(t, assigned.Temporary)
	assert.Regexp(t, permanentCode, assigned.Code)
	assert.Equal(t, assigned.Code, repo.cards[card.ID].Code)

	rec := audit.last()
	assert.Equal(t, models.AuditUpdate, rec.Operation)
	assert.Equal(t, &before, rec.Old)
	assert.Equal(t, assigned, rec.New)

	unassigned, err := svc.Update(context.Background(), card.ID, dto.UpdateCardRequest{UnassignDriver: true}, "admin-1")
	require.NoError(t, err)
	assert.True(t, unassigned.Temporary)
	assert.Nil(t, unassigned.DriverID)
	assert.Regexp(t, temporaryCode, unassigned.Code)
}

func TestCardServiceUpdateKeepsCodeWithinKind(t *testing.T) {
	owner := testDriverID
	svc, _, audit := newTestCardService(&models.RFIDCard{ID: "c-1", Code: "RFID-AAAABBBBCCCC", DriverID: &owner, Status: models.CardStatusExpired, ExpiresAt: time.Now().Add(-time.Hour)})

	expiry := time.Now().Add(24 * time.Hour)
	card, err := svc.Update(context.Background(), "c-1", dto.UpdateCardRequest{ExpiresAt: &expiry}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "RFID-AAAABBBBCCCC", card.Code)
	assert.Equal(t, models.CardStatusActive, card.Status)
	assert.Equal(t, card, audit.last().New)
}

func TestCardServiceCreateRejectsPastExpiry(t *testing.T) {
	svc, _, _ := newTestCardService()
	past := time.Now().Add(-time.Hour)

	_, err := svc.Create(context.Background(), dto.CreateCardRequest{ExpiresAt: &past}, "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestCardServiceDeactivate(t *testing.T) {
	svc, repo, audit := newTestCardService(&models.RFIDCard{ID: "c-1", Code: "TMP-AAAA1111", Status: models.CardStatusActive})
	before := *repo.cards["c-1"]

	card, err := svc.Deactivate(context.Background(), "c-1", dto.DeactivateCardRequest{Reason: "lost"}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.CardStatusInactive, card.Status)
	require.NotNil(t, card.DeactivationReason)
	assert.Equal(t, "lost", *card.DeactivationReason)
	assert.Equal(t, models.AuditUpdate, audit.last().Operation)
	assert.Equal(t, &before, audit.last().Old)
	assert.Equal(t, card, audit.last().New)

	_, err = svc.Deactivate(context.Background(), "c-1", dto.DeactivateCardRequest{Reason: "again"}, "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestCardServiceGetOwnership(t *testing.T) {
	owner := testDriverID
	svc, _, _ := newTestCardService(&models.RFIDCard{ID: "c-1", Code: "RFID-X", DriverID: &owner})

	_, err := svc.Get(context.Background(), "c-1", false, conductorClaims(testDriverID))
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "c-1", false, conductorClaims(otherDriver))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestCardServiceDeleteAndIncludeDeleted(t *testing.T) {
	owner := testDriverID
	svc, repo, audit := newTestCardService(&models.RFIDCard{ID: "c-1", Code: "RFID-AAAABBBBCCCC", DriverID: &owner, Status: models.CardStatusActive})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	before := *repo.cards["c-1"]

	require.NoError(t, svc.Delete(context.Background(), "c-1", "admin-1"))
	rec := audit.last()
	assert.Equal(t, models.AuditSoftDelete, rec.Operation)
	assert.Equal(t, &before, rec.Old)
	after := before
	after.DeletedAt = &now
	after.UpdatedAt = now
	assert.Equal(t, &after, rec.New)

	_, err := svc.Get(context.Background(), "c-1", false, adminClaims())
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	card, err := svc.Get(context.Background(), "c-1", true, adminClaims())
	require.NoError(t, err)
	assert.NotNil(t, card.DeletedAt)

	_, err = svc.Get(context.Background(), "c-1", true, conductorClaims(testDriverID))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	cards, _, err := svc.List(context.Background(), models.CardFilter{IncludeDeleted: true}, adminClaims())
	require.NoError(t, err)
	assert.Len(t, cards, 1)

	cards, _, err = svc.List(context.Background(), models.CardFilter{IncludeDeleted: true}, conductorClaims(testDriverID))
	require.NoError(t, err)
	assert.Empty(t, cards)

	err = svc.Delete(context.Background(), "c-1", "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestCardServiceExpireOverdue(t *testing.T) {
	overdue := []models.RFIDCard{
		{ID: "c-1", Code: "TMP-1", Status: models.CardStatusActive, ExpiresAt: time.Now().Add(-time.Hour)},
		{ID: "c-2", Code: "TMP-2", Status: models.CardStatusActive, ExpiresAt: time.Now().Add(-2 * time.Hour)},
	}
	svc, repo, audit := newTestCardService()
	repo.overdue = overdue

	count, err := svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, models.CardStatusExpired, repo.cards["c-1"].Status)
	assert.Equal(t, models.CardStatusExpired, repo.cards["c-2"].Status)
	require.Len(t, audit.records, 2)
	assert.Equal(t, models.SystemActor, audit.last().Actor)
}
