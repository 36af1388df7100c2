package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/cpo-backoffice-api/pkg/errors"
)

type statsRepository interface {
	Counts(ctx context.Context) (*models.DBStats, error)
	Ping(ctx context.Context) error
}

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DependencyStatus is the outcome of one readiness check.
type DependencyStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// SystemService answers health, readiness and database statistics.
type SystemService struct {
	stats   statsRepository
	tx      TxRunner
	extras  map[string]Pinger
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewSystemService constructs a SystemService. extras are additional
// dependencies checked on readiness, keyed by name.
func NewSystemService(stats statsRepository, tx TxRunner, extras map[string]Pinger, metrics *MetricsService, logger *zap.Logger) *SystemService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SystemService{stats: stats, tx: txOrNoop(tx), extras: extras, metrics: metrics, logger: logger, now: time.Now}
}

// DBStats counts rows of every table inside one read-only transaction.
func (s *SystemService) DBStats(ctx context.Context) (*models.DBStats, error) {
	var stats *models.DBStats
	err := s.tx.WithinReadOnlyTx(ctx, func(ctx context.Context) error {
		var err error
		stats, err = s.stats.Counts(ctx)
		return err
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to collect database stats")
	}
	stats.GeneratedAt = s.now().UTC()
	return stats, nil
}

// Probe checks every dependency, publishing the result as metrics. It
// reports whether all dependencies are healthy.
func (s *SystemService) Probe(ctx context.Context) ([]DependencyStatus, bool) {
	results := []DependencyStatus{s.check(ctx, "postgres", s.stats)}
	for name, p := range s.extras {
		results = append(results, s.check(ctx, name, p))
	}
	healthy := true
	for _, r := range results {
		healthy = healthy && r.Healthy
	}
	return results, healthy
}

// ProbeTask adapts Probe for the scheduler and fails when any dependency is down.
func (s *SystemService) ProbeTask(ctx context.Context) error {
	results, healthy := s.Probe(ctx)
	if healthy {
		return nil
	}
	var down []string
	for _, r := range results {
		if !r.Healthy {
			s.logger.Warn("dependency unhealthy", zap.String("dependency", r.Name), zap.String("error", r.Error))
			down = append(down, r.Name)
		}
	}
	return fmt.Errorf("unhealthy dependencies: %s", strings.Join(down, ", "))
}

func (s *SystemService) check(ctx context.Context, name string, p Pinger) DependencyStatus {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	status := DependencyStatus{Name: name, Healthy: true}
	if err := p.Ping(ctx); err != nil {
		status.Healthy = false
		status.Error = err.Error()
	}
	s.metrics.SetDependencyUp(name, status.Healthy)
	return status
}
