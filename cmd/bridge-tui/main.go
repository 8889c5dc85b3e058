package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/glimte/nativebridge"
	"github.com/glimte/nativebridge/internal/config"
	"github.com/glimte/nativebridge/internal/logging"
	rabbitmqTransport "github.com/glimte/nativebridge/transports/rabbitmq"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		url        string
		logFile    string
		refresh    time.Duration
		events     []string
	)

	cmd := &cobra.Command{
		Use:   "bridge-tui",
		Short: "Terminal dashboard for a native bridge",
		Long: `bridge-tui connects to the bridge as the front-end and shows call
metrics, per-command latency, live native events and health checks.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if url != "" {
				cfg.AMQP.URL = url
			}

			// the screen belongs to the TUI, so logs go to a file or nowhere
			var logOut io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return err
				}
				defer f.Close()
				logOut = f
			}
			logger, err := logging.New(logOut, logging.Options{Level: cfg.Log.Level, NoColor: true})
			if err != nil {
				return err
			}

			clientOpts := []nativebridge.ClientOption{
				nativebridge.WithLogger(logger),
				nativebridge.WithDefaultTimeout(cfg.Bridge.DefaultTimeout),
				nativebridge.WithTransportOptions(cfg.AMQP.TransportOptions(rabbitmqTransport.RoleFront, logger)...),
			}
			if b := cfg.Bridge.Breaker; b.Enabled {
				clientOpts = append(clientOpts, nativebridge.WithCircuitBreaker(b.FailureThreshold, b.OpenTimeout))
			}
			client, err := nativebridge.NewClient(cfg.AMQP.URL, clientOpts...)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer client.Close()

			feed := make(chan eventEntry, 64)
			for _, name := range events {
				client.On(name, func(ctx context.Context, data json.RawMessage) error {
					select {
					case feed <- eventEntry{at: time.Now(), event: name, data: data}:
					default:
						logger.Warn("event feed full, dropping", "event", name)
					}
					return nil
				})
			}

			p := tea.NewProgram(newModel(client, feed, refresh), tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("run TUI: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default $NATIVEBRIDGE_HOME/config.toml)")
	cmd.Flags().StringVarP(&url, "url", "u", "", "RabbitMQ connection URL (overrides amqp.url)")
	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file")
	cmd.Flags().DurationVar(&refresh, "refresh", 2*time.Second, "refresh interval")
	cmd.Flags().StringSliceVarP(&events, "event", "e", []string{"windowActivated", "tick"}, "events to show in the Events tab")
	return cmd
}
