package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/noah-isme/cpo-backoffice-api/internal/dto"
	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/cpo-backoffice-api/pkg/errors"
	"github.com/noah-isme/cpo-backoffice-api/pkg/paylink"
)

type paymentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	Create(ctx context.Context, payment *models.Payment) error
	UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, updatedAt time.Time) error
	UpdateQR(ctx context.Context, id, payload string, expiresAt, updatedAt time.Time) error
	ReferenceExists(ctx context.Context, reference string) (bool, error)
}

type driverLookup interface {
	FindByID(ctx context.Context, id string, includeDeleted bool) (*models.Driver, error)
}

type tariffLookup interface {
	FindByID(ctx context.Context, id string, includeDeleted bool) (*models.Tariff, error)
}

// LinkSigner issues and verifies signed payment links.
type LinkSigner interface {
	Issue(paymentID, reference string) (string, time.Time, error)
	URL(token string) string
	Verify(token string) (*paylink.Claims, error)
}

// PaymentService records payments and produces their link and QR artefacts.
type PaymentService struct {
	repo      paymentRepository
	drivers   driverLookup
	tariffs   tariffLookup
	signer    LinkSigner
	audit     auditTrail
	tx        TxRunner
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(repo paymentRepository, drivers driverLookup, tariffs tariffLookup, signer LinkSigner, audit auditTrail, tx TxRunner, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PaymentService{repo: repo, drivers: drivers, tariffs: tariffs, signer: signer, audit: audit, tx: txOrNoop(tx), validator: validate, logger: logger, now: time.Now}
}

// Create registers a pending payment. Conductors pay for themselves; admins
// must name the driver. Card payments receive a signed payment link.
func (s *PaymentService) Create(ctx context.Context, req dto.CreatePaymentRequest, claims *models.JWTClaims) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid payment payload")
	}
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	driverID := req.DriverID
	if !claims.IsAdmin() {
		if driverID != "" && driverID != claims.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "drivers may only register their own payments")
		}
		driverID = claims.UserID
	}
	if driverID == "" {
		return nil, &appErrors.Error{
			Code: appErrors.ErrValidation.Code, Status: appErrors.ErrValidation.Status, Message: "invalid payment payload",
			Details: []appErrors.FieldError{{Field: "driver_id", Message: "is required"}},
		}
	}
	if len(req.CardMetadata) > 0 && !json.Valid(req.CardMetadata) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "card_metadata must be valid JSON")
	}

	payment := &models.Payment{
		ID:                uuid.NewString(),
		Amount:            req.Amount,
		Method:            req.Method,
		Status:            models.PaymentStatusPending,
		PaidAt:            s.now().UTC(),
		ExternalReference: strings.TrimSpace(req.ExternalReference),
		DriverID:          driverID,
		TariffID:          req.TariffID,
	}
	if len(req.CardMetadata) > 0 && string(req.CardMetadata) != "null" {
		payment.CardMetadata = models.JSONB(req.CardMetadata)
	}
	if payment.ExternalReference == "" {
		payment.ExternalReference = newReference()
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.drivers.FindByID(ctx, driverID, false); err != nil {
			return notFoundOr(err, "driver not found", "failed to load driver")
		}
		tariff, err := s.tariffs.FindByID(ctx, req.TariffID, false)
		if err != nil {
			return notFoundOr(err, "tariff not found", "failed to load tariff")
		}
		payment.Tariff = tariff

		exists, err := s.repo.ReferenceExists(ctx, payment.ExternalReference)
		if err != nil {
			return appErrors.Internal(err, "failed to check payment reference")
		}
		if exists {
			return appErrors.Clone(appErrors.ErrConflict, "external reference already used")
		}

		if payment.Method == models.PaymentMethodCard && s.signer != nil {
			token, _, err := s.signer.Issue(payment.ID, payment.ExternalReference)
			if err != nil {
				return appErrors.Internal(err, "failed to issue payment link")
			}
			link := s.signer.URL(token)
			payment.PaymentLink = &link
		}

		if err := s.repo.Create(ctx, payment); err != nil {
			return err
		}
		return s.audit.Record(ctx, models.TablePayments, models.AuditCreate, nil, payment, actorOf(claims))
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "external reference already used")
		}
		return nil, notFoundOr(err, "payment not found", "failed to create payment")
	}
	return payment, nil
}

// List returns payments. Conductors only see their own.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter, claims *models.JWTClaims) ([]models.Payment, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if !claims.IsAdmin() {
		filter.DriverID = claims.UserID
	}
	payments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list payments")
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	return payments, filter.PageRequest.Pagination(total), nil
}

// Get returns a payment visible to the caller.
func (s *PaymentService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "payment not found", "failed to load payment")
	}
	if !canAccess(claims, payment.DriverID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "payment belongs to another driver")
	}
	return payment, nil
}

// UpdateStatus moves a pending payment to a new status. Confirmed and failed
// payments are final.
func (s *PaymentService) UpdateStatus(ctx context.Context, id string, req dto.UpdatePaymentStatusRequest, actor string) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid payment status")
	}
	var updated models.Payment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == req.Status {
			updated = *current
			return nil
		}
		if current.Status.Terminal() {
			return appErrors.Clone(appErrors.ErrConflict, "payment status is final")
		}
		now := s.now().UTC()
		if err := s.repo.UpdateStatus(ctx, id, req.Status, now); err != nil {
			return err
		}
		updated = *current
		updated.Status = req.Status
		updated.UpdatedAt = now
		return s.audit.Record(ctx, models.TablePayments, models.AuditUpdate, current, &updated, actor)
	})
	if err != nil {
		return nil, notFoundOr(err, "payment not found", "failed to update payment")
	}
	return &updated, nil
}

// GenerateQR builds the QR payload for a pending payment, stores it with a
// 15 minute advisory expiry and returns it rendered as PNG.
func (s *PaymentService) GenerateQR(ctx context.Context, id string, claims *models.JWTClaims) (*models.PaymentQR, error) {
	var result *models.PaymentQR
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !canAccess(claims, current.DriverID) {
			return appErrors.Clone(appErrors.ErrForbidden, "payment belongs to another driver")
		}
		if current.Status.Terminal() {
			return appErrors.Clone(appErrors.ErrConflict, "payment is already settled")
		}

		now := s.now().UTC()
		payload := models.QRPayload{
			PaymentID: current.ID,
			Reference: current.ExternalReference,
			Amount:    current.Amount,
			DriverID:  current.DriverID,
			ExpiresAt: now.Add(models.QRValidity),
		}
		if current.Tariff != nil {
			payload.Currency = current.Tariff.Currency
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return appErrors.Internal(err, "failed to encode qr payload")
		}
		png, err := qrcode.Encode(string(raw), qrcode.Medium, 256)
		if err != nil {
			return appErrors.Internal(err, "failed to render qr code")
		}

		if err := s.repo.UpdateQR(ctx, id, string(raw), payload.ExpiresAt, now); err != nil {
			return err
		}
		next := *current
		encoded := string(raw)
		next.QRPayload = &encoded
		next.QRExpiresAt = &payload.ExpiresAt
		next.UpdatedAt = now
		if err := s.audit.Record(ctx, models.TablePayments, models.AuditUpdate, current, &next, actorOf(claims)); err != nil {
			return err
		}

		result = &models.PaymentQR{
			PaymentID: id,
			Payload:   encoded,
			ExpiresAt: payload.ExpiresAt,
			PNGBase64: base64.StdEncoding.EncodeToString(png),
		}
		return nil
	})
	if err != nil {
		return nil, notFoundOr(err, "payment not found", "failed to generate qr")
	}
	return result, nil
}

// ResolveLink returns the payment behind a signed link. Invalid, tampered or
// expired links are a plain 401.
func (s *PaymentService) ResolveLink(ctx context.Context, token string) (*models.Payment, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payment links disabled")
	}
	claims, err := s.signer.Verify(token)
	if err != nil {
		if !errors.Is(err, paylink.ErrExpired) {
			s.logger.Debug("payment link rejected", zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired payment link")
	}
	payment, err := s.repo.FindByID(ctx, claims.PaymentID)
	if err != nil {
		return nil, notFoundOr(err, "payment not found", "failed to load payment")
	}
	if payment.ExternalReference != claims.Reference {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired payment link")
	}
	payment.CardMetadata = nil
	return payment, nil
}

func newReference() string {
	return "PAY-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}
