package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/cpo-backoffice-api/api/swagger"
	"github.com/noah-isme/cpo-backoffice-api/internal/dto"
	"github.com/noah-isme/cpo-backoffice-api/internal/events"
	"github.com/noah-isme/cpo-backoffice-api/internal/handler"
	internalmiddleware "github.com/noah-isme/cpo-backoffice-api/internal/middleware"
	"github.com/noah-isme/cpo-backoffice-api/internal/repository"
	"github.com/noah-isme/cpo-backoffice-api/internal/service"
	"github.com/noah-isme/cpo-backoffice-api/pkg/cache"
	"github.com/noah-isme/cpo-backoffice-api/pkg/config"
	"github.com/noah-isme/cpo-backoffice-api/pkg/database"
	"github.com/noah-isme/cpo-backoffice-api/pkg/jobs"
	"github.com/noah-isme/cpo-backoffice-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/cpo-backoffice-api/pkg/middleware/cors"
	"github.com/noah-isme/cpo-backoffice-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/cpo-backoffice-api/pkg/middleware/requestid"
	"github.com/noah-isme/cpo-backoffice-api/pkg/paylink"
)

// @title CPO Back-office API
// @version 1.0.0
// @description Back-office for a charging point operator: drivers, tariffs, payments, invoices, RFID cards and audit log.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		logr.Info("migrations applied")
	}

	metrics := service.NewMetricsService()
	validate := dto.NewValidator()
	tx := database.NewTxManager(db)

	var cacheRepo *repository.CacheRepository
	pingers := map[string]service.Pinger{}
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		cacheRepo = repository.NewCacheRepository(client, logr)
		defer cacheRepo.Close() //nolint:errcheck
		pingers["redis"] = cacheRepo
	}

	var publisher service.AuditPublisher
	if cfg.Events.Enabled() {
		conn, ch, err := events.Dial(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			return err
		}
		defer conn.Close()
		pub := events.NewPublisher(ch, cfg.Events.Exchange, jobs.QueueConfig{
			Workers:    cfg.Events.Workers,
			MaxRetries: cfg.Events.MaxRetries,
			Logger:     logr,
		})
		pub.Start(ctx)
		defer pub.Stop()
		publisher = pub
		pingers["amqp"] = amqpPinger{conn}
	}

	driverRepo := repository.NewDriverRepository(db)
	tariffRepo := repository.NewTariffRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	cardRepo := repository.NewCardRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	var cacheBackend service.CacheRepository
	if cacheRepo != nil {
		cacheBackend = cacheRepo
	}
	cacheSvc := service.NewCacheService(cacheBackend, metrics, cfg.Cache.TariffTTL, logr, cfg.Cache.Enabled)

	auditSvc := service.NewAuditService(auditRepo, publisher, metrics, logr)
	authSvc := service.NewAuthService(driverRepo, auditSvc, tx, validate, logr, service.AuthConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessExpiry:  cfg.JWT.AccessExpiration,
		RefreshExpiry: cfg.JWT.RefreshExpiration,
		Issuer:        cfg.JWT.Issuer,
	})
	if cacheRepo != nil {
		authSvc.UseDenyList(cacheRepo)
	}
	signer := paylink.NewSigner(cfg.PaymentLinks.Secret, cfg.PaymentLinks.TTL, cfg.PaymentLinks.BaseURL)

	driverSvc := service.NewDriverService(driverRepo, auditSvc, tx, validate, logr)
	tariffSvc := service.NewTariffService(tariffRepo, auditSvc, tx, cacheSvc, cfg.Cache.TariffTTL, validate, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, driverRepo, tariffRepo, signer, auditSvc, tx, validate, logr)
	invoiceSvc := service.NewInvoiceService(invoiceRepo, paymentRepo, auditSvc, tx, validate, logr)
	cardSvc := service.NewCardService(cardRepo, driverRepo, auditSvc, tx, validate, logr)
	systemSvc := service.NewSystemService(statsRepo, tx, pingers, metrics, logr)

	if err := authSvc.EnsureAdmin(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword); err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	scheduler := jobs.NewScheduler(logr, 5*time.Minute)
	tasks := []struct {
		name     string
		schedule string
		task     jobs.Task
	}{
		{"audit-retention", cfg.Scheduler.AuditRetention, func(ctx context.Context) error {
			_, err := auditSvc.PurgeOlderThanOneYear(ctx)
			return err
		}},
		{"card-expiry", cfg.Scheduler.CardExpiry, func(ctx context.Context) error {
			_, err := cardSvc.ExpireOverdue(ctx)
			return err
		}},
		{"health-probe", fmt.Sprintf("@every %s", cfg.Scheduler.HealthProbeInterval), systemSvc.ProbeTask},
		{"rate-limit-cleanup", "@every 10m", func(ctx context.Context) error {
			logr.Debug("rate limiter cleanup", zap.Int("removed", limiter.Cleanup()))
			return nil
		}},
	}
	for _, t := range tasks {
		name, task := t.name, t.task
		if err := scheduler.Register(name, t.schedule, func(ctx context.Context) error {
			err := task(ctx)
			metrics.ObserveTask(name, err)
			return err
		}); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	system := handler.NewSystemHandler(systemSvc, metrics)
	r.GET("/health", system.Health)
	r.GET("/ready", system.Ready)
	r.GET("/metrics", system.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Auth:     handler.NewAuthHandler(authSvc),
		Drivers:  handler.NewDriverHandler(driverSvc),
		Tariffs:  handler.NewTariffHandler(tariffSvc),
		Payments: handler.NewPaymentHandler(paymentSvc),
		Invoices: handler.NewInvoiceHandler(invoiceSvc),
		Cards:    handler.NewCardHandler(cardSvc),
		Audit:    handler.NewAuditHandler(auditSvc, validate),
		System:   system,
	}, authSvc, limiter.Middleware())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type amqpPinger struct {
	conn *amqp.Connection
}

func (p amqpPinger) Ping(ctx context.Context) error {
	if p.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}
