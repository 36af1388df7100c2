package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/cpo-backoffice-api/pkg/errors"
)

// TxRunner executes units of work atomically.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	WithinReadOnlyTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type noopTx struct{}

func (noopTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

func (noopTx) WithinReadOnlyTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func txOrNoop(tx TxRunner) TxRunner {
	if tx == nil {
		return noopTx{}
	}
	return tx
}

// auditTrail is what domain services need from the audit recorder.
type auditTrail interface {
	Record(ctx context.Context, table string, op models.AuditOperation, oldState, newState interface{}, actor string) error
	ListByTableAndID(ctx context.Context, table, entityID string) ([]models.AuditRecord, error)
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// notFoundOr maps sql.ErrNoRows to a 404 and anything else to a 500.
func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Internal(err, internal)
}

// canAccess reports whether the caller may read a resource owned by ownerID.
func canAccess(claims *models.JWTClaims, ownerID string) bool {
	if claims == nil {
		return false
	}
	return claims.IsAdmin() || (ownerID != "" && claims.UserID == ownerID)
}

func actorOf(claims *models.JWTClaims) string {
	if claims == nil || claims.UserID == "" {
		return models.SystemActor
	}
	return claims.UserID
}
