package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/punchamoorthee/custodia/internal/api"
	"github.com/punchamoorthee/custodia/internal/auth"
	"github.com/punchamoorthee/custodia/internal/config"
	"github.com/punchamoorthee/custodia/internal/logging"
	"github.com/punchamoorthee/custodia/internal/service"
	"github.com/punchamoorthee/custodia/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	// Browser clients format balances with Number methods.
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("unable to open store", zap.Error(err))
	}
	defer db.Close()

	admin, err := auth.NewAdminAuthorizer(cfg.AdminJWTSecret)
	if err != nil {
		logger.Fatal("invalid admin authorization config", zap.Error(err))
	}

	// Initialize Layers
	handler := api.NewHandler(
		service.NewAccountService(db, auth.NewBcrypt(cfg.BcryptCost), logger),
		service.NewIntakeService(db, logger),
		service.NewApprovalService(db, logger),
		service.NewQueryService(db, cfg.HistoryLimit),
		db,
		logger,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(handler, admin, cfg.AllowedOrigins, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory store; data is lost on exit")
		return store.NewMemory(), nil
	}

	if cfg.MigrateOnStart {
		if err := store.Migrate(cfg.DBSource, logger); err != nil {
			return nil, err
		}
	}
	return store.NewPostgres(ctx, cfg.DBSource, cfg.DBMaxConns, logger)
}
