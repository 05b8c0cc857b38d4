package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/talkroom/talkroom-server/internal/app"
	"github.com/talkroom/talkroom-server/internal/config"
	"github.com/talkroom/talkroom-server/internal/log"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		logLevel   = flag.String("log-level", "", "log level override (debug, info, warn, error)")
	)
	flag.Parse()

	bootLogger := log.New("info")

	cfg, path, err := config.Load(bootLogger, *configPath)
	if err != nil {
		bootLogger.Fatal().Err(err).Str("path", path).Msg("failed to load config")
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := log.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting talkroom server")
	if err := application.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
	logger.Info().Msg("server stopped")
}
