package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claude/tulog/internal/audio"
	"github.com/claude/tulog/internal/config"
	"github.com/claude/tulog/internal/labels"
	"github.com/claude/tulog/internal/localstore"
	tulogmcp "github.com/claude/tulog/internal/mcp"
	"github.com/claude/tulog/internal/proxy"
	"github.com/claude/tulog/internal/server"
	"github.com/claude/tulog/internal/storage"
	"github.com/claude/tulog/internal/tracker"
	"github.com/claude/tulog/internal/vision"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"tailscale.com/tsnet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// resyncInterval is how often writes left pending by failed retries are retried.
const resyncInterval = time.Minute

// backend is a storage layer that can own exercise tables and users.
type backend interface {
	tracker.Store
	server.UserResolver
}

func main() {
	configPath := flag.String("config", "", "path to config file (defaults and TULOG_ env vars when empty)")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit (postgres backend)")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("tulog starting", "version", Version)

	// Load config
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, closeStore, err := openBackend(ctx, cfg, *migrateOnly, log)
	if err != nil {
		log.Error("failed to open storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	if store == nil {
		log.Info("migrate-only: exiting")
		return
	}
	defer closeStore()

	policy := cfg.Retry.Policy()
	registry := tracker.NewRegistry(store, tracker.Options{
		Log:    log,
		Policy: policy,
		Cue:    serverCue(cfg.Audio, log),
	})
	defer registry.Close()

	// Proxies report missing secrets once, here.
	labelClient := labels.NewClient(cfg.Proxy.LabelsBaseURL, cfg.Proxy.LabelsAPIKey, policy)
	proxyHandler := proxy.New(labelClient, vision.NewClient(cfg.Proxy.VisionURL, cfg.Proxy.VisionAPIKey), log)
	for _, err := range proxyHandler.ConfigErrors() {
		log.Warn("proxy not fully configured", "error", err)
	}

	srv := server.New(registry, labelClient, proxyHandler, cfg.Auth.APIKey, log)

	mcpSrv := tulogmcp.New(tulogmcp.NewRegistrySource(registry), Version, log)
	srv.SetMCP(mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithHTTPContextFunc(server.MCPContext),
	))

	// Listen on the tailnet or on plain TCP
	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Error("tsnet local client failed", "error", err)
			os.Exit(1)
		}
		srv.SetTailscale(lc, store)

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	resyncCtx, stopResync := context.WithCancel(ctx)
	defer stopResync()
	go resyncLoop(resyncCtx, registry, log)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)
	stopResync()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	if pending := registry.Resync(shutdownCtx); pending > 0 {
		log.Warn("exercises left unsynced at shutdown", "pending", pending)
	}
	log.Info("server stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv()
	}
	return config.Load(path)
}

// openBackend opens the configured store. With migrateOnly it applies
// migrations and returns a nil store.
func openBackend(ctx context.Context, cfg *config.Config, migrateOnly bool, log *slog.Logger) (backend, func(), error) {
	if cfg.Storage.Backend == config.BackendSQLite {
		if migrateOnly {
			return nil, nil, nil
		}
		store, err := localstore.Open(cfg.Storage.SQLiteDir, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("local store opened", "dir", cfg.Storage.SQLiteDir)
		return store, func() { store.Close() }, nil
	}

	dsn := cfg.Database.DSN()
	if err := storage.RunMigrations(dsn); err != nil {
		return nil, nil, fmt.Errorf("migration failed: %w", err)
	}
	log.Info("migrations applied")
	if migrateOnly {
		return nil, nil, nil
	}

	db, err := storage.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	log.Info("database connected")
	return db, db.Close, nil
}

// serverCue plays cues on the server host only when a player is configured.
func serverCue(cfg config.AudioConfig, log *slog.Logger) audio.Cue {
	if cfg.Command == "" || cfg.File == "" {
		return audio.Nop{}
	}
	return audio.NewCommand(cfg.Command, cfg.File, log)
}

func resyncLoop(ctx context.Context, registry *tracker.Registry, log *slog.Logger) {
	ticker := time.NewTicker(resyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pending := registry.Resync(ctx); pending > 0 {
				log.Warn("exercises still pending sync", "pending", pending)
			}
		}
	}
}
