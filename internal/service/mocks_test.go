package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/cpo-backoffice-api/pkg/errors"
)

type recordedAudit struct {
	Table     string
	Operation models.AuditOperation
	Old       interface{}
	New       interface{}
	Actor     string
}

type mockAuditTrail struct {
	records []recordedAudit
	err     error
	history []models.AuditRecord
}

func (m *mockAuditTrail) Record(ctx context.Context, table string, op models.AuditOperation, oldState, newState interface{}, actor string) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, recordedAudit{Table: table, Operation: op, Old: oldState, New: newState, Actor: actor})
	return nil
}

func (m *mockAuditTrail) ListByTableAndID(ctx context.Context, table, entityID string) ([]models.AuditRecord, error) {
	return m.history, nil
}

func (m *mockAuditTrail) last() recordedAudit {
	return m.records[len(m.records)-1]
}

// mockTx mimics commit/rollback by recording the outcome.
type mockTx struct {
	commits   int
	rollbacks int
}

func (m *mockTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

func (m *mockTx) WithinReadOnlyTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.WithinTx(ctx, fn)
}

type mockDriverRepo struct {
	drivers   map[string]*models.Driver
	createErr error
}

func newMockDriverRepo(drivers ...*models.Driver) *mockDriverRepo {
	m := &mockDriverRepo{drivers: map[string]*models.Driver{}}
	for _, d := range drivers {
		m.drivers[d.ID] = d
	}
	return m
}

func (m *mockDriverRepo) FindByEmail(ctx context.Context, email string) (*models.Driver, error) {
	for _, d := range m.drivers {
		if strings.EqualFold(d.Email, email) && d.DeletedAt == nil {
			copy := *d
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockDriverRepo) FindByID(ctx context.Context, id string, includeDeleted bool) (*models.Driver, error) {
	d, ok := m.drivers[id]
	if !ok || (d.DeletedAt != nil && !includeDeleted) {
		return nil, sql.ErrNoRows
	}
	copy := *d
	return &copy, nil
}

func (m *mockDriverRepo) EmailExists(ctx context.Context, email, excludeID string) (bool, error) {
	for _, d := range m.drivers {
		if strings.EqualFold(d.Email, email) && d.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockDriverRepo) List(ctx context.Context, filter models.DriverFilter) ([]models.Driver, int, error) {
	var out []models.Driver
	for _, d := range m.drivers {
		if d.DeletedAt == nil || filter.IncludeDeleted {
			out = append(out, *d)
		}
	}
	return out, len(out), nil
}

func (m *mockDriverRepo) Create(ctx context.Context, driver *models.Driver) error {
	if m.createErr != nil {
		return m.createErr
	}
	if driver.ID == "" {
		driver.ID = "drv-" + driver.Email
	}
	copy := *driver
	m.drivers[driver.ID] = &copy
	return nil
}

func (m *mockDriverRepo) Update(ctx context.Context, driver *models.Driver) error {
	if _, ok := m.drivers[driver.ID]; !ok {
		return sql.ErrNoRows
	}
	copy := *driver
	m.drivers[driver.ID] = &copy
	return nil
}

func (m *mockDriverRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	d, ok := m.drivers[id]
	if !ok {
		return sql.ErrNoRows
	}
	d.PasswordHash = passwordHash
	return nil
}

func (m *mockDriverRepo) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	d, ok := m.drivers[id]
	if !ok || d.DeletedAt != nil {
		return sql.ErrNoRows
	}
	d.DeletedAt = &deletedAt
	return nil
}

type mockTariffRepo struct {
	tariffs   map[string]*models.Tariff
	listCalls int
}

func newMockTariffRepo(tariffs ...*models.Tariff) *mockTariffRepo {
	m := &mockTariffRepo{tariffs: map[string]*models.Tariff{}}
	for _, t := range tariffs {
		m.tariffs[t.ID] = t
	}
	return m
}

func (m *mockTariffRepo) FindByID(ctx context.Context, id string, includeDeleted bool) (*models.Tariff, error) {
	t, ok := m.tariffs[id]
	if !ok || (t.DeletedAt != nil && !includeDeleted) {
		return nil, sql.ErrNoRows
	}
	copy := *t
	return &copy, nil
}

func (m *mockTariffRepo) List(ctx context.Context, filter models.TariffFilter) ([]models.Tariff, int, error) {
	m.listCalls++
	var out []models.Tariff
	for _, t := range m.tariffs {
		if t.DeletedAt == nil || filter.IncludeDeleted {
			out = append(out, *t)
		}
	}
	return out, len(out), nil
}

func (m *mockTariffRepo) Create(ctx context.Context, tariff *models.Tariff) error {
	if tariff.ID == "" {
		tariff.ID = "tar-" + tariff.ConnectorType
	}
	copy := *tariff
	m.tariffs[tariff.ID] = &copy
	return nil
}

func (m *mockTariffRepo) Update(ctx context.Context, tariff *models.Tariff) error {
	if _, ok := m.tariffs[tariff.ID]; !ok {
		return sql.ErrNoRows
	}
	copy := *tariff
	m.tariffs[tariff.ID] = &copy
	return nil
}

func (m *mockTariffRepo) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	t, ok := m.tariffs[id]
	if !ok || t.DeletedAt != nil {
		return sql.ErrNoRows
	}
	t.DeletedAt = &deletedAt
	return nil
}

type mockPaymentRepo struct {
	payments map[string]*models.Payment
	refs     map[string]bool
}

func newMockPaymentRepo(payments ...*models.Payment) *mockPaymentRepo {
	m := &mockPaymentRepo{payments: map[string]*models.Payment{}, refs: map[string]bool{}}
	for _, p := range payments {
		m.payments[p.ID] = p
		m.refs[p.ExternalReference] = true
	}
	return m
}

func (m *mockPaymentRepo) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *p
	return &copy, nil
}

func (m *mockPaymentRepo) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	var out []models.Payment
	for _, p := range m.payments {
		if filter.DriverID == "" || p.DriverID == filter.DriverID {
			out = append(out, *p)
		}
	}
	return out, len(out), nil
}

func (m *mockPaymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	copy := *payment
	m.payments[payment.ID] = &copy
	m.refs[payment.ExternalReference] = true
	return nil
}

func (m *mockPaymentRepo) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, updatedAt time.Time) error {
	p, ok := m.payments[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Status = status
	return nil
}

func (m *mockPaymentRepo) UpdateQR(ctx context.Context, id, payload string, expiresAt, updatedAt time.Time) error {
	p, ok := m.payments[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.QRPayload = &payload
	p.QRExpiresAt = &expiresAt
	return nil
}

func (m *mockPaymentRepo) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	return m.refs[reference], nil
}

type mockInvoiceRepo struct {
	invoices map[string]*models.Invoice
}

func (m *mockInvoiceRepo) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *inv
	copy.History = append(models.InvoiceHistory(nil), inv.History...)
	return &copy, nil
}

func (m *mockInvoiceRepo) List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error) {
	var out []models.Invoice
	for _, inv := range m.invoices {
		if filter.DriverID == "" || inv.DriverID == filter.DriverID {
			out = append(out, *inv)
		}
	}
	return out, len(out), nil
}

func (m *mockInvoiceRepo) HasActiveForPayment(ctx context.Context, paymentID string) (bool, error) {
	for _, inv := range m.invoices {
		if inv.PaymentID == paymentID && inv.Status == models.InvoiceStatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockInvoiceRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = "inv-" + invoice.PaymentID
	}
	copy := *invoice
	m.invoices[invoice.ID] = &copy
	return nil
}

func (m *mockInvoiceRepo) Update(ctx context.Context, invoice *models.Invoice) error {
	if _, ok := m.invoices[invoice.ID]; !ok {
		return sql.ErrNoRows
	}
	copy := *invoice
	m.invoices[invoice.ID] = &copy
	return nil
}

type mockCardRepo struct {
	cards   map[string]*models.RFIDCard
	overdue []models.RFIDCard
}

func (m *mockCardRepo) FindByID(ctx context.Context, id string, includeDeleted bool) (*models.RFIDCard, error) {
	c, ok := m.cards[id]
	if !ok || (c.DeletedAt != nil && !includeDeleted) {
		return nil, sql.ErrNoRows
	}
	copy := *c
	return &copy, nil
}

func (m *mockCardRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	for _, c := range m.cards {
		if c.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockCardRepo) List(ctx context.Context, filter models.CardFilter) ([]models.RFIDCard, int, error) {
	var out []models.RFIDCard
	for _, c := range m.cards {
		if c.DeletedAt != nil && !filter.IncludeDeleted {
			continue
		}
		if filter.DriverID == "" || c.OwnedBy(filter.DriverID) {
			out = append(out, *c)
		}
	}
	return out, len(out), nil
}

func (m *mockCardRepo) ListOverdue(ctx context.Context, now time.Time) ([]models.RFIDCard, error) {
	return m.overdue, nil
}

func (m *mockCardRepo) Create(ctx context.Context, card *models.RFIDCard) error {
	if card.ID == "" {
		card.ID = "card-" + card.Code
	}
	copy := *card
	m.cards[card.ID] = &copy
	return nil
}

func (m *mockCardRepo) Update(ctx context.Context, card *models.RFIDCard) error {
	copy := *card
	m.cards[card.ID] = &copy
	return nil
}

func (m *mockCardRepo) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	c, ok := m.cards[id]
	if !ok || c.DeletedAt != nil {
		return sql.ErrNoRows
	}
	c.DeletedAt = &deletedAt
	return nil
}

type mockCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
	deleted []string
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{entries: map[string][]byte{}}
}

func (m *mockCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *mockCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

type mockDenyList struct {
	keys map[string]time.Duration
}

func (m *mockDenyList) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.keys[key]
	return ok, nil
}

func (m *mockDenyList) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if m.keys == nil {
		m.keys = map[string]time.Duration{}
	}
	m.keys[key] = ttl
	return nil
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdminCPO}
}

func conductorClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleConductor}
}
