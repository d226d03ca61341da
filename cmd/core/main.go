// Package main provides the core server entry point.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/haventools/premises-manage/core/internal/api"
	"github.com/haventools/premises-manage/core/internal/config"
	"github.com/haventools/premises-manage/core/internal/credential"
	"github.com/haventools/premises-manage/core/internal/identity"
	"github.com/haventools/premises-manage/core/internal/messaging"
	"github.com/haventools/premises-manage/core/internal/obs"
	"github.com/haventools/premises-manage/core/internal/session"
	"github.com/haventools/premises-manage/core/internal/session/pg"
	"github.com/haventools/premises-manage/core/internal/token"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cfg := config.FromEnv()

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting core server", "version", version, "listen_addr", cfg.ListenAddr)

	if cfg.JWTSecret == "" {
		logger.Error("CORE_JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	obs.Init()

	// Session store: PostgreSQL when configured, in-memory otherwise.
	var store session.Store
	if cfg.DatabaseURL != "" {
		pgStore, err := pg.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to initialize session store", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		store = pgStore
		logger.Info("session store initialized", "backend", "postgres")
	} else {
		store = session.NewMemoryStore()
		logger.Warn("no database configured, sessions are in-memory and will not survive a restart")
	}

	tokens := token.NewGenerator(token.Config{
		Secret:    []byte(cfg.JWTSecret),
		AccessTTL: cfg.AccessTTL,
		Issuer:    cfg.Issuer,
	})

	idClient := identity.NewClient(cfg.IdentityAuthorityURL)
	sessions := session.NewManager(store, tokens, idClient, cfg.SessionTTL, logger)

	machines := credential.NewMachineService(credential.NewMemoryMachineStore())
	for id, secret := range cfg.ServiceCredentialPairs() {
		if err := machines.Register(ctx, id, secret); err != nil {
			logger.Error("failed to seed machine credential", "service_id", id, "error", err)
			os.Exit(1)
		}
	}

	server := api.NewServer(sessions, idClient, logger).WithMachines(machines)

	// Message bus: optional; session lifecycle events carry identity headers.
	if cfg.MQTTBrokerURL != "" {
		bus, err := messaging.Connect(messaging.BusConfig{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
		}, logger)
		if err != nil {
			logger.Error("failed to connect message bus", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		server.WithEvents(bus)
		logger.Info("message bus connected", "broker", cfg.MQTTBrokerURL)
	}

	// Periodic cleanup of expired sessions.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := sessions.SweepExpired(ctx); err != nil {
					logger.Error("expired session sweep failed", "error", err)
				} else if n > 0 {
					logger.Info("swept expired sessions", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("core server listening", "addr", cfg.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
