package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/cpo-backoffice-api/pkg/errors"
)

const denyListPrefix = "auth:revoked:"

type authDriverRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Driver, error)
	FindByID(ctx context.Context, id string, includeDeleted bool) (*models.Driver, error)
	EmailExists(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, driver *models.Driver) error
}

// TokenDenyList remembers revoked refresh token ids until they expire.
type TokenDenyList interface {
	Exists(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// AuthService provides authentication use cases.
type AuthService struct {
	repo      authDriverRepository
	audit     auditTrail
	tx        TxRunner
	denyList  TokenDenyList
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authDriverRepository, audit auditTrail, tx TxRunner, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessExpiry <= 0 {
		config.AccessExpiry = 30 * time.Minute
	}
	if config.RefreshExpiry <= 0 {
		config.RefreshExpiry = 7 * 24 * time.Hour
	}
	return &AuthService{repo: repo, audit: audit, tx: txOrNoop(tx), validator: validate, logger: logger, config: config, now: time.Now}
}

// UseDenyList enables refresh token revocation.
func (s *AuthService) UseDenyList(denyList TokenDenyList) {
	s.denyList = denyList
}

// Login authenticates a driver and returns issued tokens.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid login payload")
	}

	driver, err := s.repo.FindByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Internal(err, "failed to fetch driver")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(driver.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}

	pair, err := s.GenerateTokens(driver.ID, driver.Role)
	if err != nil {
		return nil, err
	}

	return &models.LoginResponse{
		TokenPair: *pair,
		User: models.UserInfo{
			ID:        driver.ID,
			Email:     driver.Email,
			FirstName: driver.FirstName,
			LastName:  driver.LastName,
			Role:      driver.Role,
		},
	}, nil
}

// GenerateTokens signs an access and a refresh token for the same subject.
// Both are signed concurrently; every call yields distinct token ids.
func (s *AuthService) GenerateTokens(userID string, role models.UserRole) (*models.TokenPair, error) {
	issuedAt := s.now().UTC()
	var access, refresh string

	var g errgroup.Group
	g.Go(func() error {
		var err error
		access, err = s.sign(userID, role, models.TokenAccess, issuedAt)
		return err
	})
	g.Go(func() error {
		var err error
		refresh, err = s.sign(userID, role, models.TokenRefresh, issuedAt)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Internal(err, "failed to sign tokens")
	}

	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.config.AccessExpiry.Seconds()),
		RefreshExpiresIn: int64(s.config.RefreshExpiry.Seconds()),
		IssuedAt:         issuedAt,
	}, nil
}

// Refresh exchanges a valid refresh token for a brand-new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	claims, err := s.parse(refreshToken, models.TokenRefresh)
	if err != nil {
		return nil, err
	}
	if s.revoked(ctx, claims.ID) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token revoked")
	}
	return s.GenerateTokens(claims.UserID, claims.Role)
}

// Logout revokes the caller's refresh token until its natural expiry.
func (s *AuthService) Logout(ctx context.Context, callerID, refreshToken string) error {
	claims, err := s.parse(refreshToken, models.TokenRefresh)
	if err != nil {
		return err
	}
	if claims.UserID != callerID {
		return appErrors.Clone(appErrors.ErrForbidden, "refresh token belongs to another user")
	}
	if s.denyList == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if err := s.denyList.Mark(ctx, denyListPrefix+claims.ID, ttl); err != nil {
		return appErrors.Internal(err, "failed to revoke refresh token")
	}
	return nil
}

// ValidateToken verifies an access token and returns its claims.
func (s *AuthService) ValidateToken(token string) (*models.JWTClaims, error) {
	return s.parse(token, models.TokenAccess)
}

// Register creates a conductor account, audited as the system actor.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.Driver, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid registration payload")
	}
	return s.createDriver(ctx, req, models.RoleConductor)
}

// Profile returns the caller's own driver record.
func (s *AuthService) Profile(ctx context.Context, claims *models.JWTClaims) (*models.UserInfo, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	driver, err := s.repo.FindByID(ctx, claims.UserID, false)
	if err != nil {
		return nil, notFoundOr(err, "driver not found", "failed to load profile")
	}
	return &models.UserInfo{
		ID:        driver.ID,
		Email:     driver.Email,
		FirstName: driver.FirstName,
		LastName:  driver.LastName,
		Role:      driver.Role,
	}, nil
}

// EnsureAdmin creates the bootstrap administrator when the email is unused.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	exists, err := s.repo.EmailExists(ctx, email, "")
	if err != nil {
		return appErrors.Internal(err, "failed to check bootstrap admin")
	}
	if exists {
		return nil
	}
	_, err = s.createDriver(ctx, models.RegisterRequest{FirstName: "Admin", LastName: "CPO", Email: email, Password: password}, models.RoleAdminCPO)
	if err == nil {
		s.logger.Info("bootstrap admin created", zap.String("email", email))
	}
	return err
}

func (s *AuthService) createDriver(ctx context.Context, req models.RegisterRequest, role models.UserRole) (*models.Driver, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	exists, err := s.repo.EmailExists(ctx, email, "")
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}

	driver := &models.Driver{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, driver); err != nil {
			return err
		}
		return s.audit.Record(ctx, models.TableDrivers, models.AuditCreate, nil, driver, models.SystemActor)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, notFoundOr(err, "driver not found", "failed to create driver")
	}
	return driver, nil
}

func (s *AuthService) sign(userID string, role models.UserRole, kind models.TokenKind, issuedAt time.Time) (string, error) {
	secret, ttl := s.config.AccessSecret, s.config.AccessExpiry
	if kind == models.TokenRefresh {
		secret, ttl = s.config.RefreshSecret, s.config.RefreshExpiry
	}
	if secret == "" {
		return "", fmt.Errorf("%s secret not configured", kind)
	}
	claims := models.JWTClaims{
		UserID: userID,
		Role:   role,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// parse verifies signature, expiry and token kind. Every failure is a plain 401.
func (s *AuthService) parse(token string, kind models.TokenKind) (*models.JWTClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token required")
	}
	secret := s.config.AccessSecret
	if kind == models.TokenRefresh {
		secret = s.config.RefreshSecret
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now)}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	claims := &models.JWTClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil || !parsed.Valid || claims.Kind != kind || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	return claims, nil
}

func (s *AuthService) revoked(ctx context.Context, jti string) bool {
	if s.denyList == nil || jti == "" {
		return false
	}
	revoked, err := s.denyList.Exists(ctx, denyListPrefix+jti)
	if err != nil {
		s.logger.Warn("deny-list lookup failed", zap.Error(err))
		return false
	}
	return revoked
}
