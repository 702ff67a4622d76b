package container

import (
	"context"
	"database/sql"
	"fmt"

	auditLogRepo "sitewarehouse/internal/auditlog"
	"sitewarehouse/internal/access"
	"sitewarehouse/internal/core/config"
	"sitewarehouse/internal/inventory/assets"
	"sitewarehouse/internal/inventory/category"
	"sitewarehouse/internal/inventory/transfers"
	"sitewarehouse/internal/locking"
	"sitewarehouse/internal/middleware"
	"sitewarehouse/internal/notifications"
	"sitewarehouse/internal/procurement"
	"sitewarehouse/internal/rate_limiter"
	"sitewarehouse/internal/repository"
	"sitewarehouse/internal/requests"
	"sitewarehouse/internal/scheduler"
	"sitewarehouse/internal/workflow"
	"sitewarehouse/pkg/auditlog"
	"sitewarehouse/pkg/security"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const Version = "1.0.0"

type Container struct {
	Repository         *repository.Repository
	AuditLog           *auditlog.Auditlog
	JWT                *security.JWT
	HealthChecker      *middleware.HealthChecker
	RateLimiter        *rate_limiter.RateLimiter
	CategoryHandler    *category.CategoryHandler
	AssetHandler       *assets.AssetHandler
	ProcurementHandler *procurement.ProcurementHandler
	TransferHandler    *transfers.TransferHandler
	Scheduler          *scheduler.Scheduler

	redis *redis.Client
}

func NewAppContainer(ctx context.Context, cfg *config.Config, db *sql.DB, logger *zap.Logger) (*Container, error) {
	repo := repository.NewRepository(db)
	auditLog := auditlog.NewAuditLog(auditLogRepo.NewRepository(repo), logger)

	c := &Container{
		Repository:    repo,
		AuditLog:      auditLog,
		JWT:           security.NewJWT(cfg.Security.JWTSecret),
		HealthChecker: middleware.NewHealthChecker(db, Version),
		RateLimiter:   rate_limiter.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window),
	}

	locker, err := c.newLocker(ctx, cfg, logger)
	if err != nil {
		c.RateLimiter.Stop()
		return nil, err
	}

	var dispatcher notifications.Dispatcher = notifications.NewLogDispatcher(logger)
	if cfg.Notifications.WebhookURL != "" {
		dispatcher = notifications.NewWebhookDispatcher(notifications.WebhookConfig{
			URL:     cfg.Notifications.WebhookURL,
			Timeout: cfg.Notifications.Timeout,
			Retries: cfg.Notifications.Retries,
		}, logger)
	}

	rt := workflow.Runtime{
		Tx:         repo,
		Access:     access.NewProjectAccessRepository(repo),
		Audit:      auditLog,
		Locker:     locker,
		Dispatcher: dispatcher,
		Logger:     logger,
	}

	categoryRepo := category.NewRepository(repo)
	assetRepo := assets.NewRepository(repo)
	procurementRepo := procurement.NewRepository(repo)
	transferRepo := transfers.NewRepository(repo)

	categoryService := category.NewCategoryService(categoryRepo, logger)
	assetService := assets.NewAssetService(assetRepo, categoryRepo, procurementRepo, rt, cfg.Assets.RefPrefix)
	procurementService := procurement.NewProcurementService(procurementRepo, categoryRepo, requests.NewRepository(repo), rt, procurement.Defaults{
		VATRate: cfg.Procurement.DefaultVATRate,
		EWTRate: cfg.Procurement.DefaultEWTRate,
	})
	transferService := transfers.NewTransferService(transferRepo, assetRepo, rt)

	c.CategoryHandler = category.NewCategoryHandler(categoryService)
	c.AssetHandler = assets.NewAssetHandler(assetService)
	c.ProcurementHandler = procurement.NewProcurementHandler(procurementService)
	c.TransferHandler = transfers.NewTransferHandler(transferService)
	c.Scheduler = scheduler.NewScheduler(cfg.Scheduler.ReturnReminderCron, transferService, dispatcher, logger)

	return c, nil
}

// newLocker connects to Redis when configured. Without Redis only the
// Postgres row locks serialise transitions.
func (c *Container) newLocker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (locking.Locker, error) {
	if cfg.Redis.URL == "" {
		logger.Info("REDIS_URL not set, aggregate locks disabled")
		return locking.NewNoopLocker(), nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("could not ping redis: %w", err)
	}
	c.redis = client

	return locking.NewRedisLocker(client, cfg.Redis.LockTTL, logger), nil
}

func (c *Container) Close() {
	c.RateLimiter.Stop()
	if c.redis != nil {
		c.redis.Close()
	}
}
