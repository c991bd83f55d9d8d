// Package main provides the entry point for the wuhu session-engine
// server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wuhu-dev/wuhu/internal/config"
	"github.com/wuhu-dev/wuhu/internal/event"
	"github.com/wuhu-dev/wuhu/internal/logging"
	"github.com/wuhu-dev/wuhu/internal/runner"
	"github.com/wuhu-dev/wuhu/internal/server"
	"github.com/wuhu-dev/wuhu/internal/session"
	"github.com/wuhu-dev/wuhu/internal/storage"
	"github.com/wuhu-dev/wuhu/internal/subscription"
)

var (
	configPath = flag.String("config", "wuhu.yaml", "Path to the YAML config file")
	printLogs  = flag.Bool("print-logs", false, "Print logs to stderr")
	version    = flag.Bool("version", false, "Print version and exit")
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("wuhu-server %s (%s)\n", Version, BuildTime)
		os.Exit(0)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Pretty = *printLogs
	if !*printLogs {
		logCfg.Level = logging.WarnLevel
	}
	logging.Init(logCfg)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	db, err := storage.Open(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	transcript := storage.NewTranscriptStore(db)
	queue := storage.NewQueueStore(db, transcript)
	bus := event.NewBus()
	runners := runner.NewRegistry()
	manager := session.NewManager(cfg, transcript, queue, runners, bus)
	hub := subscription.NewHub(bus, transcript, queue, manager)

	if err := manager.ResumeAll(ctx); err != nil {
		log.Fatalf("resume sessions: %v", err)
	}

	opts := server.DefaultOptions()
	srv := server.New(cfg, opts, transcript, queue, manager, hub, runners)

	go func() {
		logging.Info().Str("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)).Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
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
	if err := db.Close(); err != nil {
		logging.Error().Err(err).Msg("database close error")
	}

	logging.Info().Msg("server stopped")
}
