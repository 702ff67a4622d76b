package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"sitewarehouse/internal/core/config"
	"sitewarehouse/internal/core/container"
	"sitewarehouse/internal/core/logger"
	"sitewarehouse/internal/core/routes"
	"sitewarehouse/internal/database"
	"sitewarehouse/internal/metrics"
	"sitewarehouse/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Serve runs the API until ctx is canceled, then drains in-flight requests.
func Serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	log := logger.NewLogger(cfg.App.Env, cfg.App.LogLevel)
	defer log.Sync()

	if migrate {
		if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir, log); err != nil {
			return err
		}
	}

	db, err := database.NewPostgresConnection(ctx, cfg.Database.URL, log)
	if err != nil {
		return err
	}
	defer db.Close()

	app, err := container.NewAppContainer(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Register()

	router := gin.New()
	router.Use(
		middleware.RequestIDMiddleware(),
		middleware.RecoveryMiddleware(log),
		metrics.Middleware(),
		middleware.TimeoutMiddleware(cfg.App.RequestTimeout),
	)
	routes.RegisterUtilityRoutes(router, app)
	routes.RegisterProtectedRoutes(router, app)

	if err := app.Scheduler.Start(); err != nil {
		return err
	}
	defer app.Scheduler.Stop()

	server := &http.Server{
		Addr:              cfg.App.Host,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("addr", cfg.App.Host), zap.String("env", cfg.App.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
