package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"permitflow/internal/config"
	"permitflow/internal/guard"
	transporthttp "permitflow/internal/http"
	"permitflow/internal/identity"
	"permitflow/internal/notify"
	"permitflow/internal/platform/database"
	"permitflow/internal/platform/logging"
	"permitflow/internal/platform/migrate"
	"permitflow/internal/profile"
	"permitflow/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)

	if cfg.IdentityURL() == "" {
		logger.Warn("no identity service configured; sign-in will fail until SERVICE_URL or IDENTITY_URL is set")
	}

	client := identity.NewHTTPClient(cfg.IdentityURL(), cfg.ServiceKey,
		identity.WithSessionFile(cfg.SessionFile),
		identity.WithEmailRedirectTo(cfg.EmailRedirectURL()),
		identity.WithAutoConfirm(!cfg.RequireEmailVerification),
	)

	feed := notify.NewFeed(notify.NewLog(logger))
	views := transporthttp.NewViewState()

	manager := session.New(client, feed, views, logger, cfg.RequireEmailVerification)
	defer manager.Close()

	// Resolve the persisted session in the background; routes answer with a
	// restoring status until this settles.
	go manager.Restore(ctx)

	store, cleanup, err := buildStore(ctx, cfg, logger, manager)
	if err != nil {
		logger.Error("failed to initialize profile store", "error", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	profiles := profile.NewService(store, manager, feed, logger)
	routeGuard := guard.New(feed)

	var oauthHandler *transporthttp.OAuthHandler
	if cfg.OAuthEnabled() {
		google, err := identity.NewGoogleAuthenticator(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
		if err != nil {
			logger.Error("failed to initialize google sign-in", "error", err)
			os.Exit(1)
		}
		oauthHandler = transporthttp.NewOAuthHandler(google, manager, cfg.PublicURL, cfg.Environment, logger)
		logger.Info("google sign-in enabled")
	}

	router := transporthttp.NewRouter(cfg, transporthttp.RouterDeps{
		Manager:  manager,
		Profiles: profiles,
		Guard:    routeGuard,
		Feed:     feed,
		Views:    views,
		Google:   oauthHandler,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	go func() {
		logger.Info("PermitFlow shell listening", "addr", srv.Addr, "store", cfg.DataStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func buildStore(ctx context.Context, cfg config.Config, logger *slog.Logger, manager *session.Manager) (profile.Store, func(), error) {
	switch cfg.DataStore {
	case "memory":
		logger.Info("using in-memory profile store")
		store := profile.NewMemoryStore(seedWorkflows())
		return store, nil, nil

	case "postgres":
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}

		cleanup := func() {
			_ = db.Close()
		}

		if err := migrate.Apply(ctx, db, logger); err != nil {
			cleanup()
			return nil, nil, err
		}

		logger.Info("connected to postgres")
		return profile.NewPostgresStore(db), cleanup, nil

	default: // rest
		logger.Info("using hosted data API", "url", cfg.RestURL())
		store := profile.NewRESTStore(cfg.RestURL(), cfg.ServiceKey, manager.AccessToken, nil)
		return store, nil, nil
	}
}
