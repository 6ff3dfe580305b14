// Command chatserver runs the multi-room TCP chat server: flag
// parsing, config resolution, logger construction, and graceful
// shutdown on SIGINT/SIGTERM.
//
// Grounded on the teacher's main.go (flag-style argument parsing,
// optional -ui flag dispatching to the admin console) generalized per
// SPEC_FULL.md §6's full CLI surface, and on krisfromhbk-ata's
// cmd/server/main.go for the signal.NotifyContext shutdown shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"chatserver/internal/app"
	"chatserver/internal/chatlog"
	"chatserver/internal/config"
)

func main() {
	var (
		port       = flag.Int("port", 0, "listen port (0 = use config)")
		useUI      = flag.Bool("ui", false, "launch the admin console dashboard")
		configPath = flag.String("config", "", "path to a YAML config file")
		logLevel   = flag.String("log-level", "", "log level override (debug, info, warn, error)")
	)
	flag.Parse()

	bootstrapLogger, err := chatlog.New("development", "info")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build bootstrap logger:", err)
		os.Exit(1)
	}

	cfg, err := config.Load(bootstrapLogger, *configPath)
	if err != nil {
		bootstrapLogger.Error("failed to load config", zap.Error(err))
		os.Exit(1)
	}

	if *port != 0 {
		cfg.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger, err := chatlog.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		bootstrapLogger.Error("failed to build logger", zap.Error(err))
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, logger)
	if err := a.Run(ctx, *useUI); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
}
