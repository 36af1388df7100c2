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
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/cpo-backoffice-api/pkg/errors"
)

func newTestAuthService(t *testing.T, drivers ...*models.Driver) (*AuthService, *mockDriverRepo, *mockAuditTrail) {
	t.Helper()
	repo := newMockDriverRepo(drivers...)
	audit := &mockAuditTrail{}
	svc := NewAuthService(repo, audit, &mockTx{}, validator.New(), zap.NewNop(), AuthConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessExpiry:  30 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
		Issuer:        "cpo-test",
	})
	return svc, repo, audit
}

func hashedDriver(t *testing.T, id, email, password string, role models.UserRole) *models.Driver {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.Driver{ID: id, FirstName: "Ana", LastName: "Perez", Email: email, PasswordHash: string(hash), Role: role}
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc, _, _ := newTestAuthService(t, hashedDriver(t, "drv-1", "ana@example.com", "Password123", models.RoleConductor))

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "Password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(1800), resp.ExpiresIn)
	assert.Equal(t, "drv-1", resp.User.ID)
	assert.Equal(t, models.RoleConductor, resp.User.Role)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "drv-1", claims.UserID)
	assert.Equal(t, models.TokenAccess, claims.Kind)
}

func TestAuthServiceLoginFailures(t *testing.T) {
	svc, _, _ := newTestAuthService(t, hashedDriver(t, "drv-1", "ana@example.com", "Password123", models.RoleConductor))

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "wrong-password"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.com", Password: "Password123"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "x"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAuthServiceGenerateTokensAreDistinct(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	first, err := svc.GenerateTokens("drv-1", models.RoleAdminCPO)
	require.NoError(t, err)
	second, err := svc.GenerateTokens("drv-1", models.RoleAdminCPO)
	require.NoError(t, err)

	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, first.AccessToken, first.RefreshToken)
}

func TestAuthServiceTokensAreNotInterchangeable(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	pair, err := svc.GenerateTokens("drv-1", models.RoleConductor)
	require.NoError(t, err)

	_, err = svc.ValidateToken(pair.RefreshToken)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	_, err = svc.Refresh(context.Background(), pair.AccessToken)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceRefresh(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	pair, err := svc.GenerateTokens("drv-1", models.RoleConductor)
	require.NoError(t, err)

	next, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	claims, err := svc.ValidateToken(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "drv-1", claims.UserID)
	assert.Equal(t, models.RoleConductor, claims.Role)
}

func TestAuthServiceRefreshRejectsTamperedAndExpired(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	pair, err := svc.GenerateTokens("drv-1", models.RoleConductor)
	require.NoError(t, err)

	parts := strings.Split(pair.RefreshToken, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	_, err = svc.Refresh(context.Background(), tampered)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	svc.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	stale, err := svc.GenerateTokens("drv-1", models.RoleConductor)
	require.NoError(t, err)
	svc.now = time.Now

	_, err = svc.Refresh(context.Background(), stale.RefreshToken)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	_, err = svc.Refresh(context.Background(), "")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceRefreshRejectsForeignSecret(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	other := NewAuthService(newMockDriverRepo(), &mockAuditTrail{}, nil, nil, nil, AuthConfig{
		AccessSecret: "access-secret", RefreshSecret: "another-refresh-secret", Issuer: "cpo-test",
	})
	pair, err := other.GenerateTokens("drv-1", models.RoleConductor)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceLogoutRevokesRefreshToken(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	deny := &mockDenyList{}
	svc.UseDenyList(deny)

	pair, err := svc.GenerateTokens("drv-1", models.RoleConductor)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), "drv-1", pair.RefreshToken))
	require.Len(t, deny.keys, 1)
	for key, ttl := range deny.keys {
		assert.True(t, strings.HasPrefix(key, denyListPrefix))
		assert.Greater(t, ttl, 6*24*time.Hour)
	}

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceLogoutRejectsForeignRefreshToken(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	deny := &mockDenyList{}
	svc.UseDenyList(deny)

	victim, err := svc.GenerateTokens("drv-1", models.RoleConductor)
	require.NoError(t, err)

	err = svc.Logout(context.Background(), "drv-2", victim.RefreshToken)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Empty(t, deny.keys)

	_, err = svc.Refresh(context.Background(), victim.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthServiceLogoutTTLFollowsServiceClock(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	deny := &mockDenyList{}
	svc.UseDenyList(deny)

	pair, err := svc.GenerateTokens("drv-1", models.RoleConductor)
	require.NoError(t, err)

	later := time.Now().Add(2 * 24 * time.Hour)
	svc.now = func() time.Time { return later }
	require.NoError(t, svc.Logout(context.Background(), "drv-1", pair.RefreshToken))
	require.Len(t, deny.keys, 1)
	for _, ttl := range deny.keys {
		assert.InDelta(t, float64(5*24*time.Hour), float64(ttl), float64(5*time.Second))
	}
}

func TestAuthServiceRegister(t *testing.T) {
	svc, repo, audit := newTestAuthService(t)

	driver, err := svc.Register(context.Background(), models.RegisterRequest{
		FirstName: "Luis", LastName: "Diaz", Email: "Luis@Example.com", Password: "Password123",
	})
	require.NoError(t, err)
	assert.Equal(t, "luis@example.com", driver.Email)
	assert.Equal(t, models.RoleConductor, driver.Role)
	assert.NotEqual(t, "Password123", driver.PasswordHash)
	assert.Len(t, repo.drivers, 1)

	require.Len(t, audit.records, 1)
	assert.Equal(t, models.TableDrivers, audit.last().Table)
	assert.Equal(t, models.AuditCreate, audit.last().Operation)
	assert.Equal(t, models.SystemActor, audit.last().Actor)

	_, err = svc.Register(context.Background(), models.RegisterRequest{
		FirstName: "Luis", LastName: "Diaz", Email: "luis@example.com", Password: "Password123",
	})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 409, appErr.Status)
}

func TestAuthServiceRegisterRollsBackWhenAuditFails(t *testing.T) {
	svc, _, audit := newTestAuthService(t)
	audit.err = appErrors.Internal(errors.New("db down"), "failed to record audit entry")
	tx := &mockTx{}
	svc.tx = tx

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		FirstName: "Luis", LastName: "Diaz", Email: "luis@example.com", Password: "Password123",
	})
	require.Error(t, err)
	assert.Equal(t, 1, tx.rollbacks)
	assert.Equal(t, 0, tx.commits)
}

func TestAuthServiceEnsureAdmin(t *testing.T) {
	svc, repo, _ := newTestAuthService(t)

	require.NoError(t, svc.EnsureAdmin(context.Background(), "admin@cpo.test", "Password123"))
	require.NoError(t, svc.EnsureAdmin(context.Background(), "admin@cpo.test", "Password123"))
	require.Len(t, repo.drivers, 1)
	for _, d := range repo.drivers {
		assert.Equal(t, models.RoleAdminCPO, d.Role)
	}

	require.NoError(t, svc.EnsureAdmin(context.Background(), "", ""))
}

func TestAuthServiceProfile(t *testing.T) {
	svc, _, _ := newTestAuthService(t, hashedDriver(t, "drv-1", "ana@example.com", "Password123", models.RoleConductor))

	info, err := svc.Profile(context.Background(), conductorClaims("drv-1"))
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", info.Email)

	_, err = svc.Profile(context.Background(), conductorClaims("missing"))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
