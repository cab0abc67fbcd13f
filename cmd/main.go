package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kkkkikiki/redemption/internal/campaign"
	"github.com/kkkkikiki/redemption/internal/config"
	"github.com/kkkkikiki/redemption/internal/database"
	"github.com/kkkkikiki/redemption/internal/event"
	"github.com/kkkkikiki/redemption/internal/idgen"
	"github.com/kkkkikiki/redemption/internal/logger"
	"github.com/kkkkikiki/redemption/internal/qrexport"
	"github.com/kkkkikiki/redemption/internal/reconcile"
	"github.com/kkkkikiki/redemption/internal/redemption"
	"github.com/kkkkikiki/redemption/internal/registry"
	"github.com/kkkkikiki/redemption/internal/repository"
	"github.com/kkkkikiki/redemption/internal/server"
	"github.com/kkkkikiki/redemption/internal/service"
	"github.com/kkkkikiki/redemption/internal/stats"
	"github.com/kkkkikiki/redemption/internal/store"
	"github.com/kkkkikiki/redemption/internal/store/memory"
)

const auditTimeout = time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "redemption: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.App)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting redemption service",
		zap.String("store", cfg.Store.Driver),
		zap.String("mode", cfg.Redemption.Mode))

	st, pinger, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	ids, err := idgen.NewSnowflake(cfg.Redemption.NodeID)
	if err != nil {
		return err
	}

	bus := event.NewBus()
	bus.SubscribeAll(event.LogHandler(log.Named("events")))

	coordinator, err := redemption.New(st, ids, bus, log.Named("redemption"), redemption.Config{
		Mode:                redemption.Mode(cfg.Redemption.Mode),
		CompensationTimeout: cfg.Redemption.CompensationTimeout,
	})
	if err != nil {
		return err
	}
	log.Info("redemption coordinator ready", zap.Bool("transactional", coordinator.Transactional()))

	qr := qrexport.New(cfg.Redemption.PublicBaseURL)
	reconciler := reconcile.New(st, bus, log.Named("reconcile"), cfg.Reconcile.OrphanGrace)

	campaigns := campaign.New(st, ids, bus, log.Named("campaign"), cfg.Redemption.SlugLength)

	handler := server.NewHandler(server.Deps{
		Redemption: service.NewRedemptionServer(coordinator, registry.New(st, log.Named("registry")), qr, log),
		Admin: service.NewAdminServer(
			campaigns,
			coordinator,
			stats.New(st),
			reconciler,
			qr,
			log,
		),
		CampaignCodes: campaigns,
		Codes:         st.Codes(),
		QR:            qr,
		Pinger:        pinger,
		Logger:        log.Named("http"),
	}, server.Options{
		AdminTokenHash: cfg.Admin.TokenHash,
		PublicRPS:      cfg.RateLimit.PublicRPS,
		PublicBurst:    cfg.RateLimit.PublicBurst,
	})
	if cfg.Admin.TokenHash == "" {
		log.Warn("ADMIN_TOKEN_HASH is empty, admin endpoints are locked")
	}

	// Periodic ledger audit
	if cfg.Reconcile.AuditSchedule != "" {
		c, err := reconcile.Schedule(cfg.Reconcile.AuditSchedule,
			reconcile.NewAuditJob(reconciler, log.Named("audit"), auditTimeout), log)
		if err != nil {
			return err
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
	}

	srv := server.NewHTTPServer(cfg.Server, handler)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited gracefully")
	return nil
}

// openStore selects the storage backend. The returned pinger is nil for the
// memory store.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, store.Pinger, func(), error) {
	if cfg.Store.Driver == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil, func() {}, nil
	}

	db, err := database.NewDB(ctx, cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			log.Error("error closing database connections", zap.Error(err))
		}
	}

	if cfg.Store.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			closeDB()
			return nil, nil, nil, err
		}
		log.Info("database schema applied")
	}

	pg := repository.NewPostgresStore(db.Postgres)
	return pg, pg, closeDB, nil
}
