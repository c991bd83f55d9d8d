package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wuhu-dev/wuhu/internal/config"
	"github.com/wuhu-dev/wuhu/internal/event"
	"github.com/wuhu-dev/wuhu/internal/logging"
	"github.com/wuhu-dev/wuhu/internal/runner"
	"github.com/wuhu-dev/wuhu/internal/server"
	"github.com/wuhu-dev/wuhu/internal/session"
	"github.com/wuhu-dev/wuhu/internal/storage"
	"github.com/wuhu-dev/wuhu/internal/subscription"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session engine's HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, err := storage.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}

	transcript := storage.NewTranscriptStore(db)
	queue := storage.NewQueueStore(db, transcript)
	bus := event.NewBus()
	runners := runner.NewRegistry()
	manager := session.NewManager(cfg, transcript, queue, runners, bus)
	hub := subscription.NewHub(bus, transcript, queue, manager)

	if err := manager.ResumeAll(ctx); err != nil {
		return fmt.Errorf("resume sessions: %w", err)
	}

	srv := server.New(cfg, server.DefaultOptions(), transcript, queue, manager, hub, runners)

	go func() {
		logging.Info().Str("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)).Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}
	if err := bus.Close(); err != nil {
		logging.Error().Err(err).Msg("event bus close error")
	}
	return db.Close()
}
