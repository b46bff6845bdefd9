// Rehabd is the daemon for the rehab engine.
//
// It loads configuration, starts the HTTP/WebSocket server, and runs the
// pose pipeline over the configured keypoint source (the synthetic demo, a
// replay file, or a pose-estimation worker process). Shutdown is handled
// gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/large-farva/rehab-engine/internal/app"
	"github.com/large-farva/rehab-engine/internal/config"
	"github.com/large-farva/rehab-engine/internal/exercise"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "Path to config TOML (defaults are used when empty)")
		bind       = pflag.String("bind", "", "HTTP bind address (overrides server.bind)")
		record     = pflag.String("record", "", "Tee every source frame into this replay file")
		initial    = pflag.StringP("exercise", "e", "", "Initial exercise (overrides session.exercise)")
	)
	pflag.Parse()

	logger := log.New(os.Stdout, "rehabd ", log.LstdFlags|log.Lmicroseconds)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Fatalf("config load failed: %v", err)
		}
	}
	if *initial != "" {
		kind, err := exercise.ParseKind(*initial)
		if err != nil {
			logger.Fatalf("invalid --exercise: %v", err)
		}
		cfg.Session.Exercise = kind.String()
	}

	a, err := app.New(app.Options{
		Logger:     logger,
		Cfg:        cfg,
		ConfigPath: *configPath,
		Bind:       *bind,
		Record:     *record,
	})
	if err != nil {
		logger.Fatalf("startup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("rehabd failed: %v", err)
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
}
