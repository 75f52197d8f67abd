package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/grovekit/grove/internal/config"
	"github.com/grovekit/grove/internal/domain/activity"
	"github.com/grovekit/grove/internal/domain/grant"
	"github.com/grovekit/grove/internal/domain/invitation"
	"github.com/grovekit/grove/internal/domain/ratelimit"
	"github.com/grovekit/grove/internal/keyed"
	"github.com/grovekit/grove/internal/keyedstore"
	"github.com/grovekit/grove/internal/mcp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		logger.Error("failed to prepare database path", "error", err)
		os.Exit(1)
	}

	store, err := keyedstore.OpenSQLite(cfg.DB.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	grantRepo := keyed.NewGrantRepository(store)
	inviteRepo := keyed.NewInvitationRepository(store)
	activityRepo := keyed.NewActivityRepository(store)
	adminRepo := keyed.NewAdminRepository(store)

	if err := seedPlatformAdmins(adminRepo, cfg.Admin.PrincipalIDs); err != nil {
		logger.Error("failed to seed platform admins", "error", err)
		os.Exit(1)
	}

	activitySvc := activity.NewService(activityRepo, logger)
	grantSvc := grant.NewService(grantRepo, activitySvc, adminRepo, logger)
	limiter := ratelimit.New(activitySvc, cfg.Invites.Ceiling, cfg.Invites.Window.Std(), logger)
	inviteSvc := invitation.NewService(inviteRepo, grantSvc, limiter, activitySvc, cfg.Invites.MaxTTL.Std(), logger)

	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Permissions: grantSvc,
			Invitations: inviteSvc,
			Activity:    activitySvc,
		},
		Logger: logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runSweeper(ctx, logger, inviteSvc, cfg.Invites.SweepInterval.Std())

	if cfg.Transport.Mode == "stdio" {
		runStdioMode(ctx, cancel, logger, mcpServer)
	} else {
		runHTTPMode(logger, mcpServer, cfg.Server.Host, cfg.Server.Port)
	}
}

// runSweeper expires overdue invitations in the background. Sweeping is
// idempotent and race-safe, so overlapping processes are fine.
func runSweeper(ctx context.Context, logger *slog.Logger, invites *invitation.Service, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := invites.SweepExpired(ctx)
			if err != nil {
				logger.Warn("invitation sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired invitations swept", "count", n)
			}
		}
	}
}

func runStdioMode(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, mcpServer *sdkmcp.Server) {
	logger.Info("starting stdio transport")

	transport := &sdkmcp.StdioTransport{}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	// Run blocks until stdin closes or context is canceled
	if err := mcpServer.Run(ctx, transport); err != nil {
		logger.Error("stdio server error", "error", err)
		os.Exit(1)
	}
}

func runHTTPMode(logger *slog.Logger, mcpServer *sdkmcp.Server, host string, port int) {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)

	router := http.NewServeMux()
	router.Handle("/mcp", mcpHandler)
	router.Handle("/mcp/", mcpHandler)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(logger, httpServer)
}

func seedPlatformAdmins(admins *keyed.AdminRepository, ids []string) error {
	ctx := context.Background()
	for _, id := range ids {
		if err := admins.Add(ctx, id, "config"); err != nil {
			return fmt.Errorf("seeding admin %s: %w", id, err)
		}
	}
	return nil
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func waitForShutdown(logger *slog.Logger, server *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
