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

	"matchme-client/internal/backend"
	"matchme-client/internal/bridge"
	"matchme-client/internal/models"
	"matchme-client/internal/realtime"
	"matchme-client/internal/telemetry"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the realtime session and serve the local bridge",
	RunE:  runSession,
}

/*
LEARNING: STARTUP AND SHUTDOWN ORDER

Tracing comes up first so everything after it is traced. The bridge registers
its observers before Connect so the first connect event reaches the UI.
Shutdown runs in reverse: session, HTTP server, bridge, tracing.
*/

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	jaegerShutdown, err := telemetry.InitJaeger("matchme-client", cfg.JaegerEndpoint)
	if err != nil {
		slog.Warn("failed to initialize Jaeger, continuing without tracing", "error", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			slog.Warn("failed to shutdown Jaeger", "error", err)
		}
	}()

	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = s.Close() }()

	token, err := s.Token()
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if token == "" {
		return errors.New("not signed in, run `matchme login` first")
	}

	api := backend.NewClient(cfg.APIURL, token)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	matches, err := api.EnrichedMatches(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to load matches: %w", err)
	}
	chatIDs := api.ChatIDs(ctx, matches)
	cancel()

	byChat := make(map[int64]models.Match, len(chatIDs))
	for _, m := range matches {
		if id, ok := chatIDs[m.LikedID]; ok {
			byChat[id] = m
		}
	}

	session := realtime.NewSession(realtime.Config{
		HeartbeatInterval: cfg.PresenceInterval,
		StaleAfter:        cfg.PresenceStaleAfter,
		Freshness:         cfg.PresenceFreshness,
	}, realtime.StompTransport(cfg.WebSocketURL, realtime.StompOptions{
		ReconnectDelay:    cfg.ReconnectDelay,
		HeartbeatIncoming: cfg.HeartbeatIncoming,
		HeartbeatOutgoing: cfg.HeartbeatOutgoing,
	}), api)

	srv := bridge.NewServer(session, byChat, api, cfg.TypingQuiet)
	if email, err := realtime.EmailFromToken(token); err == nil {
		srv.Sender = email
	}
	session.OnConnect(func() { color.Green("✅ Realtime session connected") })
	session.OnDisconnect(func(err error) {
		if err != nil {
			color.Yellow("⚠️  Realtime session lost: %v", err)
		}
	})
	session.OnMatch(func(n models.MatchNotification) { color.Cyan("💞 %s", n.Message) })
	session.OnMessage(func(n models.MessageNotification) {
		color.Cyan("💬 %s: %s", n.SenderDisplayName, n.Content)
	})

	httpServer := &http.Server{
		Addr:         cfg.BridgeAddr(),
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		color.Green("🌐 Bridge listening on http://%s (%d chats)", cfg.BridgeAddr(), len(byChat))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	session.Connect(token, matches, chatIDs)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
		color.Yellow("\n🛑 Shutting down...")
	case err := <-serveErr:
		runErr = fmt.Errorf("bridge server error: %w", err)
	}

	session.Disconnect()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("bridge server forced to shutdown", "error", err)
	}
	srv.Shutdown()

	if runErr == nil {
		color.Green("✓ Shutdown complete")
	}
	return runErr
}
