// Copyright 2024-2026 Aiku AI

// Command slack-rtm connects a Slack workspace to a message bus over the
// Real Time Messaging API. On its own it logs every normalized message and
// trigger it receives; it exists as a reference host and a smoke-test
// harness for the adapter packages.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/aiku/slack-rtm/pkg/bus"
	"github.com/aiku/slack-rtm/pkg/slack"
	"github.com/aiku/slack-rtm/pkg/slack/store"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// logBus is a Bus that just logs everything it receives.
type logBus struct {
	log zerolog.Logger
}

func (b *logBus) Receive(msg *bus.Message) {
	b.log.Info().
		Str("user_id", msg.Source.UserID).
		Str("channel", msg.Source.ChannelID).
		Bool("private", msg.Source.Private).
		Str("text", msg.Text).
		Msg("Message received")
}

func (b *logBus) Trigger(event string, payload map[string]any) {
	b.log.Info().Str("event", event).Msg("Trigger received")
}

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to the adapter config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
	log.Info().Str("tag", Tag).Str("commit", Commit).Str("build_time", BuildTime).Msg("slack-rtm starting")

	cfg := &slack.Config{}
	if data, err := os.ReadFile(*configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to parse config")
		}
	} else {
		log.Warn().Str("path", *configPath).Msg("No config file, using environment only")
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("SLACK_TOKEN")
	}

	var userStore slack.UserStore
	if cfg.StorePath != "" {
		sqliteStore, err := store.OpenSQLite(cfg.StorePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.StorePath).Msg("Failed to open identity store")
		}
		defer sqliteStore.Close()
		userStore = sqliteStore
	} else {
		userStore = store.NewMemory()
	}

	adapter, err := slack.NewAdapter(cfg, &logBus{log: log}, userStore, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create adapter")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := adapter.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect")
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Signal received, shutting down")
		adapter.Shutdown()
	case <-adapter.Done():
	}

	if err := adapter.Err(); err != nil {
		log.Fatal().Err(err).Msg("Connection terminated with error")
	}
	log.Info().Msg("slack-rtm stopped")
}
