package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/neomorfeo/useriq/internal/adapter/fsm"
	"github.com/neomorfeo/useriq/internal/adapter/iam"
	"github.com/neomorfeo/useriq/internal/adapter/otel"
	"github.com/neomorfeo/useriq/internal/adapter/river"
	"github.com/neomorfeo/useriq/internal/adapter/sqlite"
	"github.com/neomorfeo/useriq/internal/app"
	"github.com/neomorfeo/useriq/internal/config"
	"github.com/neomorfeo/useriq/internal/domain"

	handler "github.com/neomorfeo/useriq/internal/adapter/http"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// --- Observability ---
	providers, err := otel.Setup(ctx, otel.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}

	// --- Adapters (out) ---
	db, err := otel.OpenDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	store, err := sqlite.NewFromDB(db)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	// The job workers need the service, and the service needs the
	// river-backed publisher. The closure resolves the service lazily;
	// the client is only started once svc is assigned below.
	var svc *app.UserService
	client, err := river.Setup(ctx, db, river.Options{
		Service:            func() river.CommandService { return svc },
		NewID:              func() string { return svc.NewCommandID() },
		CompactionMinTail:  cfg.SnapshotCompactMinTail,
		CompactionInterval: cfg.SnapshotCompactInterval,
	})
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}

	publisher := otel.NewTracingPublisher(river.NewPublisher(client, cfg.TopicPrefix))

	var idp domain.IdentityProvider
	if cfg.IAM.Enabled() {
		iamClient := iam.New(iam.Config{
			BaseURL:      cfg.IAM.BaseURL,
			ClientID:     cfg.IAM.ClientID,
			ClientSecret: cfg.IAM.ClientSecret,
			Audience:     cfg.IAM.Audience,
			Connection:   cfg.IAM.Connection,
		})
		go iamClient.Refresh(ctx)
		idp = iamClient
	} else {
		slog.Warn("identity provider not configured, confirmations will not provision identities")
		idp = &noopProvisioner{}
	}

	// --- Application ---
	svc = app.NewUserService(otel.NewTracingStore(store), publisher, fsm.New(), idp, cfg.ConfirmWindow)

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("starting river: %w", err)
	}

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(otelchi.Middleware("useriq", otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig("useriq", "0.1.0"))
	handler.Register(api, svc)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("useriq listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	if err := client.Stop(shutdownCtx); err != nil {
		slog.Error("river shutdown", "error", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		slog.Error("otel shutdown", "error", err)
	}

	slog.Info("stopped")
	return nil
}

// noopProvisioner stands in for the identity provider when no credentials
// are configured, e.g. in local development.
type noopProvisioner struct{}

func (p *noopProvisioner) CreateIdentity(_ context.Context, user domain.User, _ string) error {
	slog.Info("identity provisioning skipped", "user_id", user.ID)
	return nil
}
