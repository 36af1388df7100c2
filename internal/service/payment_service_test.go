package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
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
	"github.com/noah-isme/cpo-backoffice-api/pkg/paylink"
)

const (
	testDriverID = "5b0a7c53-3f0e-4f4e-9d55-0d4d2b1b8a11"
	otherDriver  = "0f6c1a54-8a55-4d1d-8c65-7b1cb2f0a222"
	testTariffID = "9d3e4a1f-2b7c-4c3e-8f1a-6e5d4c3b2a33"
)

type paymentFixture struct {
	svc      *PaymentService
	repo     *mockPaymentRepo
	audit    *mockAuditTrail
	signer   *paylink.Signer
	tariff   *models.Tariff
	drivers  *mockDriverRepo
	tariffs  *mockTariffRepo
	payments []*models.Payment
}

func newPaymentFixture(t *testing.T, payments ...*models.Payment) *paymentFixture {
	t.Helper()
	tariff := &models.Tariff{ID: testTariffID, ConnectorType: "CCS2", PricePerKWh: 0.5, Currency: models.CurrencyUSD}
	drivers := newMockDriverRepo(
		&models.Driver{ID: testDriverID, Email: "eva@example.com", Role: models.RoleConductor},
		&models.Driver{ID: otherDriver, Email: "leo@example.com", Role: models.RoleConductor},
	)
	tariffs := newMockTariffRepo(tariff)
	repo := newMockPaymentRepo(payments...)
	audit := &mockAuditTrail{}
	signer := paylink.NewSigner("link-secret", time.Hour, "https://pay.test/enlace")
	svc := NewPaymentService(repo, drivers, tariffs, signer, audit, &mockTx{}, validator.New(), zap.NewNop())
	return &paymentFixture{svc: svc, repo: repo, audit: audit, signer: signer, tariff: tariff, drivers: drivers, tariffs: tariffs, payments: payments}
}

func TestPaymentServiceConductorCreatesOwnPayment(t *testing.T) {
	f := newPaymentFixture(t)

	payment, err := f.svc.Create(context.Background(), dto.CreatePaymentRequest{
		Amount: 10, Method: models.PaymentMethodCash, TariffID: testTariffID,
	}, conductorClaims(testDriverID))
	require.NoError(t, err)
	assert.Equal(t, testDriverID, payment.DriverID)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.True(t, strings.HasPrefix(payment.ExternalReference, "PAY-"))
	assert.Nil(t, payment.PaymentLink)
	assert.Equal(t, models.AuditCreate, f.audit.last().Operation)
	assert.Equal(t, testDriverID, f.audit.last().Actor)
}

func TestPaymentServiceConductorCannotPayForOthers(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.svc.Create(context.Background(), dto.CreatePaymentRequest{
		Amount: 10, Method: models.PaymentMethodCash, TariffID: testTariffID, DriverID: otherDriver,
	}, conductorClaims(testDriverID))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Empty(t, f.repo.payments)
}

func TestPaymentServiceAdminMustNameDriver(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.svc.Create(context.Background(), dto.CreatePaymentRequest{
		Amount: 10, Method: models.PaymentMethodCash, TariffID: testTariffID,
	}, adminClaims())
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 400, appErr.Status)
	require.Len(t, appErr.Details, 1)
	assert.Equal(t, "driver_id", appErr.Details[0].Field)
}

func TestPaymentServiceCreateMissingTariff(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.svc.Create(context.Background(), dto.CreatePaymentRequest{
		Amount: 10, Method: models.PaymentMethodCash, TariffID: "11111111-2222-4333-8444-555555555555", DriverID: testDriverID,
	}, adminClaims())
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestPaymentServiceDuplicateReference(t *testing.T) {
	f := newPaymentFixture(t, &models.Payment{ID: "p-1", ExternalReference: "REF-1", DriverID: testDriverID})

	_, err := f.svc.Create(context.Background(), dto.CreatePaymentRequest{
		Amount: 10, Method: models.PaymentMethodCash, TariffID: testTariffID, DriverID: testDriverID, ExternalReference: "REF-1",
	}, adminClaims())
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestPaymentServiceCardPaymentGetsResolvableLink(t *testing.T) {
	f := newPaymentFixture(t)

	payment, err := f.svc.Create(context.Background(), dto.CreatePaymentRequest{
		Amount: 25, Method: models.PaymentMethodCard, TariffID: testTariffID, DriverID: testDriverID,
		CardMetadata: json.RawMessage(`{"last4":"4242"}`),
	}, adminClaims())
	require.NoError(t, err)
	require.NotNil(t, payment.PaymentLink)
	require.True(t, strings.HasPrefix(*payment.PaymentLink, "https://pay.test/enlace/"))

	token := strings.TrimPrefix(*payment.PaymentLink, "https://pay.test/enlace/")
	resolved, err := f.svc.ResolveLink(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, resolved.ID)
	assert.Nil(t, resolved.CardMetadata)

	_, err = f.svc.ResolveLink(context.Background(), token+"x")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestPaymentServiceOwnershipOnRead(t *testing.T) {
	f := newPaymentFixture(t,
		&models.Payment{ID: "p-1", DriverID: testDriverID, ExternalReference: "A"},
		&models.Payment{ID: "p-2", DriverID: otherDriver, ExternalReference: "B"},
	)

	_, err := f.svc.Get(context.Background(), "p-2", conductorClaims(testDriverID))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	got, err := f.svc.Get(context.Background(), "p-2", adminClaims())
	require.NoError(t, err)
	assert.Equal(t, otherDriver, got.DriverID)

	list, _, err := f.svc.List(context.Background(), models.PaymentFilter{DriverID: otherDriver}, conductorClaims(testDriverID))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p-1", list[0].ID)
}

func TestPaymentServiceStatusTransitions(t *testing.T) {
	f := newPaymentFixture(t, &models.Payment{ID: "p-1", DriverID: testDriverID, Status: models.PaymentStatusPending})

	updated, err := f.svc.UpdateStatus(context.Background(), "p-1", dto.UpdatePaymentStatusRequest{Status: models.PaymentStatusConfirmed}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusConfirmed, updated.Status)
	assert.Len(t, f.audit.records, 1)

	_, err = f.svc.UpdateStatus(context.Background(), "p-1", dto.UpdatePaymentStatusRequest{Status: models.PaymentStatusConfirmed}, "admin-1")
	require.NoError(t, err)
	assert.Len(t, f.audit.records, 1)

	_, err = f.svc.UpdateStatus(context.Background(), "p-1", dto.UpdatePaymentStatusRequest{Status: models.PaymentStatusFailed}, "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestPaymentServiceGenerateQR(t *testing.T) {
	f := newPaymentFixture(t,
		&models.Payment{ID: "p-1", Amount: 12.5, DriverID: testDriverID, Status: models.PaymentStatusPending, ExternalReference: "PAY-1"},
		&models.Payment{ID: "p-2", DriverID: testDriverID, Status: models.PaymentStatusFailed, ExternalReference: "PAY-2"},
	)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	qr, err := f.svc.GenerateQR(context.Background(), "p-1", conductorClaims(testDriverID))
	require.NoError(t, err)
	assert.Equal(t, now.Add(15*time.Minute), qr.ExpiresAt)

	var payload models.QRPayload
	require.NoError(t, json.Unmarshal([]byte(qr.Payload), &payload))
	assert.Equal(t, "PAY-1", payload.Reference)
	assert.Equal(t, 12.5, payload.Amount)

	png, err := base64.StdEncoding.DecodeString(qr.PNGBase64)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))

	stored := f.repo.payments["p-1"]
	require.NotNil(t, stored.QRPayload)
	assert.Equal(t, qr.Payload, *stored.QRPayload)

	_, err = f.svc.GenerateQR(context.Background(), "p-1", conductorClaims(otherDriver))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.GenerateQR(context.Background(), "p-2", adminClaims())
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}
