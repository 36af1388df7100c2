package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/cpo-backoffice-api/internal/dto"
	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/cpo-backoffice-api/pkg/errors"
)

type driverRepository interface {
	FindByID(ctx context.Context, id string, includeDeleted bool) (*models.Driver, error)
	EmailExists(ctx context.Context, email, excludeID string) (bool, error)
	List(ctx context.Context, filter models.DriverFilter) ([]models.Driver, int, error)
	Create(ctx context.Context, driver *models.Driver) error
	Update(ctx context.Context, driver *models.Driver) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error
}

// DriverService manages driver accounts.
type DriverService struct {
	repo      driverRepository
	audit     auditTrail
	tx        TxRunner
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewDriverService constructs a DriverService.
func NewDriverService(repo driverRepository, audit auditTrail, tx TxRunner, validate *validator.Validate, logger *zap.Logger) *DriverService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &DriverService{repo: repo, audit: audit, tx: txOrNoop(tx), validator: validate, logger: logger, now: time.Now}
}

// List returns drivers with pagination.
func (s *DriverService) List(ctx context.Context, filter models.DriverFilter) ([]models.Driver, *models.Pagination, error) {
	drivers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list drivers")
	}
	if drivers == nil {
		drivers = []models.Driver{}
	}
	return drivers, filter.PageRequest.Pagination(total), nil
}

// Get returns a driver. Soft-deleted drivers are only returned when asked for.
func (s *DriverService) Get(ctx context.Context, id string, includeDeleted bool) (*models.Driver, error) {
	driver, err := s.repo.FindByID(ctx, id, includeDeleted)
	if err != nil {
		return nil, notFoundOr(err, "driver not found", "failed to load driver")
	}
	return driver, nil
}

// Create adds a driver with the requested role.
func (s *DriverService) Create(ctx context.Context, req dto.CreateDriverRequest, actor string) (*models.Driver, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid driver payload")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}
	role := req.Role
	if role == "" {
		role = models.RoleConductor
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
		return s.audit.Record(ctx, models.TableDrivers, models.AuditCreate, nil, driver, actor)
	})
	if err != nil {
		return nil, s.writeError(err, "failed to create driver")
	}
	return driver, nil
}

// Update merges profile fields into the driver.
func (s *DriverService) Update(ctx context.Context, id string, req dto.UpdateDriverRequest, actor string) (*models.Driver, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid driver payload")
	}

	var updated *models.Driver
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id, false)
		if err != nil {
			return err
		}
		next := *current
		if req.FirstName != nil {
			next.FirstName = strings.TrimSpace(*req.FirstName)
		}
		if req.LastName != nil {
			next.LastName = strings.TrimSpace(*req.LastName)
		}
		if req.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*req.Email))
			if email != current.Email {
				if err := s.ensureEmailFree(ctx, email, id); err != nil {
					return err
				}
			}
			next.Email = email
		}
		if err := s.repo.Update(ctx, &next); err != nil {
			return err
		}
		updated = &next
		return s.audit.Record(ctx, models.TableDrivers, models.AuditUpdate, current, &next, actor)
	})
	if err != nil {
		return nil, s.writeError(err, "failed to update driver")
	}
	return updated, nil
}

// ChangePassword verifies the current password before storing the new one.
func (s *DriverService) ChangePassword(ctx context.Context, id string, req dto.ChangePasswordRequest, actor string) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.FromValidation(err, "invalid password payload")
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id, false)
		if err != nil {
			return err
		}
		if bcrypt.CompareHashAndPassword([]byte(current.PasswordHash), []byte(req.CurrentPassword)) != nil {
			return appErrors.Clone(appErrors.ErrInvalidCredentials, "current password is incorrect")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			return appErrors.Internal(err, "failed to hash password")
		}
		now := s.now().UTC()
		if err := s.repo.UpdatePassword(ctx, id, string(hash), now); err != nil {
			return err
		}
		next := *current
		next.UpdatedAt = now
		return s.audit.Record(ctx, models.TableDrivers, models.AuditUpdate, current, &next, actor)
	})
	if err != nil {
		return s.writeError(err, "failed to change password")
	}
	return nil
}

// Delete soft-deletes a driver.
func (s *DriverService) Delete(ctx context.Context, id, actor string) error {
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
		return s.audit.Record(ctx, models.TableDrivers, models.AuditSoftDelete, current, &next, actor)
	})
	if err != nil {
		return s.writeError(err, "failed to delete driver")
	}
	return nil
}

// History returns the latest audit records of a driver.
func (s *DriverService) History(ctx context.Context, id string) ([]models.AuditRecord, error) {
	return s.audit.ListByTableAndID(ctx, models.TableDrivers, id)
}

func (s *DriverService) ensureEmailFree(ctx context.Context, email, excludeID string) error {
	exists, err := s.repo.EmailExists(ctx, email, excludeID)
	if err != nil {
		return appErrors.Internal(err, "failed to check email")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}
	return nil
}

func (s *DriverService) writeError(err error, msg string) error {
	if isUniqueViolation(err) {
		return appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}
	return notFoundOr(err, "driver not found", msg)
}
