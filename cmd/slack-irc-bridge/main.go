// Copyright 2024-2026 Aiku AI

// Command slack-irc-bridge mirrors a Slack workspace onto an IRC network:
// one IRC connection per workspace member plus a control connection for the
// bridge itself.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aiku/slack-irc-bridge/pkg/bridge"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "slack-irc-bridge",
	Short:        "A Slack-IRC bridge with one IRC session per Slack user",
	Version:      fmt.Sprintf("%s (%s, built %s)", Tag, Commit, BuildTime),
	SilenceUsage: true,
	RunE:         run,
}

var exampleConfigCmd = &cobra.Command{
	Use:   "example-config",
	Short: "Print the example config file and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(bridge.ExampleConfig)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		"/etc/slack-irc-bridge/config.yaml", "path to the config file")
	rootCmd.AddCommand(exampleConfigCmd)
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := bridge.LoadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := bridge.NewSlackHub(cfg.Hub.Token, log)
	dialer := bridge.NewIRCDialer(bridge.RelaySettings{
		Host: cfg.Relay.Host,
		Port: cfg.Relay.Port,
		TLS:  cfg.Relay.TLS,
	}, bridge.NewReconnectBackoff)

	mgr := bridge.NewSessionManager(cfg, hub, hub, dialer, log)
	if err := mgr.Start(ctx); err != nil {
		log.Err(err).Msg("Bridge failed to start")
		return err
	}
	log.Info().Str("version", Tag).Msg("Bridge running")

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
