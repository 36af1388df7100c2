package service

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/cpo-backoffice-api/internal/dto"
	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/cpo-backoffice-api/pkg/errors"
)

const cardCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type cardRepository interface {
	FindByID(ctx context.Context, id string, includeDeleted bool) (*models.RFIDCard, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, filter models.CardFilter) ([]models.RFIDCard, int, error)
	ListOverdue(ctx context.Context, now time.Time) ([]models.RFIDCard, error)
	Create(ctx context.Context, card *models.RFIDCard) error
	Update(ctx context.Context, card *models.RFIDCard) error
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error
}

// CardService issues and manages RFID cards.
type CardService struct {
	repo      cardRepository
	drivers   driverLookup
	audit     auditTrail
	tx        TxRunner
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewCardService constructs a CardService.
func NewCardService(repo cardRepository, drivers driverLookup, audit auditTrail, tx TxRunner, validate *validator.Validate, logger *zap.Logger) *CardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CardService{repo: repo, drivers: drivers, audit: audit, tx: txOrNoop(tx), validator: validate, logger: logger, now: time.Now}
}

// Create issues a card. Cards without a driver are temporary; codes are
// generated when omitted, must be unique and must carry the prefix of their kind.
func (s *CardService) Create(ctx context.Context, req dto.CreateCardRequest, actor string) (*models.RFIDCard, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid card payload")
	}
	now := s.now().UTC()
	temporary := req.DriverID == nil || *req.DriverID == ""

	card := &models.RFIDCard{
		Code:      strings.ToUpper(strings.TrimSpace(req.Code)),
		Status:    models.CardStatusActive,
		IssuedAt:  now,
		Temporary: temporary,
	}
	if card.Code != "" && !strings.HasPrefix(card.Code, cardCodePrefix(temporary)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "card code must start with "+cardCodePrefix(temporary))
	}
	if !temporary {
		card.DriverID = req.DriverID
	}
	card.ExpiresAt = defaultCardExpiry(now, temporary)
	if req.ExpiresAt != nil {
		if !req.ExpiresAt.After(now) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "expires_at must be in the future")
		}
		card.ExpiresAt = req.ExpiresAt.UTC()
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if card.DriverID != nil {
			if _, err := s.drivers.FindByID(ctx, *card.DriverID, false); err != nil {
				return notFoundOr(err, "driver not found", "failed to load driver")
			}
		}
		if card.Code == "" {
			code, err := s.uniqueCode(ctx, temporary)
			if err != nil {
				return err
			}
			card.Code = code
		} else {
			exists, err := s.repo.CodeExists(ctx, card.Code)
			if err != nil {
				return appErrors.Internal(err, "failed to check card code")
			}
			if exists {
				return appErrors.Clone(appErrors.ErrConflict, "card code already exists")
			}
		}
		if err := s.repo.Create(ctx, card); err != nil {
			return err
		}
		return s.audit.Record(ctx, models.TableCards, models.AuditCreate, nil, card, actor)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "card code already exists")
		}
		return nil, notFoundOr(err, "card not found", "failed to create card")
	}
	return card, nil
}

// Update reassigns the card or moves its expiry. A change between temporary
// and permanent re-issues the code with the matching prefix.
func (s *CardService) Update(ctx context.Context, id string, req dto.UpdateCardRequest, actor string) (*models.RFIDCard, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid card payload")
	}
	var updated models.RFIDCard
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id, false)
		if err != nil {
			return err
		}
		updated = *current
		switch {
		case req.UnassignDriver:
			updated.DriverID = nil
			updated.Temporary = true
		case req.DriverID != nil && *req.DriverID != "":
			if _, err := s.drivers.FindByID(ctx, *req.DriverID, false); err != nil {
				return notFoundOr(err, "driver not found", "failed to load driver")
			}
			driverID := *req.DriverID
			updated.DriverID = &driverID
			updated.Temporary = false
		}
		if updated.Temporary != current.Temporary {
			code, err := s.uniqueCode(ctx, updated.Temporary)
			if err != nil {
				return err
			}
			updated.Code = code
		}
		if req.ExpiresAt != nil {
			updated.ExpiresAt = req.ExpiresAt.UTC()
			if updated.Status == models.CardStatusExpired && updated.ExpiresAt.After(s.now()) {
				updated.Status = models.CardStatusActive
			}
		}
		if err := s.repo.Update(ctx, &updated); err != nil {
			return err
		}
		return s.audit.Record(ctx, models.TableCards, models.AuditUpdate, current, &updated, actor)
	})
	if err != nil {
		return nil, notFoundOr(err, "card not found", "failed to update card")
	}
	return &updated, nil
}

// Deactivate switches the card off and records the reason.
func (s *CardService) Deactivate(ctx context.Context, id string, req dto.DeactivateCardRequest, actor string) (*models.RFIDCard, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid deactivation payload")
	}
	var updated models.RFIDCard
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id, false)
		if err != nil {
			return err
		}
		if current.Status == models.CardStatusInactive {
			return appErrors.Clone(appErrors.ErrConflict, "card already inactive")
		}
		updated = *current
		reason := strings.TrimSpace(req.Reason)
		updated.Status = models.CardStatusInactive
		updated.DeactivationReason = &reason
		if err := s.repo.Update(ctx, &updated); err != nil {
			return err
		}
		return s.audit.Record(ctx, models.TableCards, models.AuditUpdate, current, &updated, actor)
	})
	if err != nil {
		return nil, notFoundOr(err, "card not found", "failed to deactivate card")
	}
	return &updated, nil
}

// Delete soft-deletes a card.
func (s *CardService) Delete(ctx context.Context, id, actor string) error {
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
		return s.audit.Record(ctx, models.TableCards, models.AuditSoftDelete, current, &next, actor)
	})
	if err != nil {
		return notFoundOr(err, "card not found", "failed to delete card")
	}
	return nil
}

// Get returns a card visible to the caller. Only admins may see soft-deleted cards.
func (s *CardService) Get(ctx context.Context, id string, includeDeleted bool, claims *models.JWTClaims) (*models.RFIDCard, error) {
	card, err := s.repo.FindByID(ctx, id, includeDeleted && claims.IsAdmin())
	if err != nil {
		return nil, notFoundOr(err, "card not found", "failed to load card")
	}
	if !claims.IsAdmin() && (claims == nil || !card.OwnedBy(claims.UserID)) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "card belongs to another driver")
	}
	return card, nil
}

// List returns cards. Conductors only see their own.
func (s *CardService) List(ctx context.Context, filter models.CardFilter, claims *models.JWTClaims) ([]models.RFIDCard, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if !claims.IsAdmin() {
		filter.DriverID = claims.UserID
		filter.IncludeDeleted = false
	}
	cards, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list cards")
	}
	if cards == nil {
		cards = []models.RFIDCard{}
	}
	return cards, filter.PageRequest.Pagination(total), nil
}

// History returns the latest audit records of a card.
func (s *CardService) History(ctx context.Context, id string) ([]models.AuditRecord, error) {
	return s.audit.ListByTableAndID(ctx, models.TableCards, id)
}

// ExpireOverdue marks active cards past their expiry as expired, each change
// audited as the system actor. It returns the number of expired cards.
func (s *CardService) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	overdue, err := s.repo.ListOverdue(ctx, now)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list overdue cards")
	}
	expired := 0
	for i := range overdue {
		current := overdue[i]
		err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			next := current
			next.Status = models.CardStatusExpired
			if err := s.repo.Update(ctx, &next); err != nil {
				return err
			}
			return s.audit.Record(ctx, models.TableCards, models.AuditUpdate, &current, &next, models.SystemActor)
		})
		if err != nil {
			s.logger.Warn("card expiry failed", zap.String("card_id", current.ID), zap.Error(err))
			continue
		}
		expired++
	}
	if expired > 0 {
		s.logger.Info("cards expired", zap.Int("count", expired))
	}
	return expired, nil
}

func (s *CardService) uniqueCode(ctx context.Context, temporary bool) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code, err := generateCardCode(temporary)
		if err != nil {
			return "", appErrors.Internal(err, "failed to generate card code")
		}
		exists, err := s.repo.CodeExists(ctx, code)
		if err != nil {
			return "", appErrors.Internal(err, "failed to check card code")
		}
		if !exists {
			return code, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrConflict, "could not allocate a unique card code")
}

func cardCodePrefix(temporary bool) string {
	if temporary {
		return models.CardPrefixTemporary
	}
	return models.CardPrefixPermanent
}

// generateCardCode returns TMP-XXXXXXXX for temporary cards and
// RFID-XXXXXXXXXXXX for permanent ones.
func generateCardCode(temporary bool) (string, error) {
	prefix, n := cardCodePrefix(temporary), 12
	if temporary {
		n = 8
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = cardCodeAlphabet[int(b)%len(cardCodeAlphabet)]
	}
	return prefix + string(buf), nil
}

func defaultCardExpiry(issued time.Time, temporary bool) time.Time {
	if temporary {
		return issued.Add(models.TemporaryCardValidity)
	}
	return issued.Add(models.PermanentCardValidity)
}
