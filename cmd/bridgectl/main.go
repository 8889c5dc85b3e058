package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/glimte/nativebridge/internal/config"
	"github.com/glimte/nativebridge/internal/logging"
	rabbitmqTransport "github.com/glimte/nativebridge/transports/rabbitmq"
	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// app carries what every subcommand needs once flags are parsed
type app struct {
	configPath string
	url        string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "bridgectl",
		Short: "Call, watch and host a native bridge over RabbitMQ",
		Long: `bridgectl talks to a native bridge through RabbitMQ. It can invoke
commands on the native side, print the events it emits, run a demo native
host and report bridge health.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default $NATIVEBRIDGE_HOME/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&a.url, "url", "u", "", "RabbitMQ connection URL (overrides amqp.url)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides log.level)")

	rootCmd.AddCommand(
		newInvokeCmd(a),
		newListenCmd(a),
		newServeCmd(a),
		newHealthCmd(a),
		newConfigCmd(a),
	)
	return rootCmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.url != "" {
		cfg.AMQP.URL = a.url
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	logger, err := logging.Setup(logging.Options{
		Level:   cfg.Log.Level,
		JSON:    cfg.Log.JSON,
		NoColor: cfg.Log.NoColor,
	})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	if cfg.Path != "" {
		logger.Debug("loaded config", "path", cfg.Path)
	}
	return nil
}

// transportOptions maps the amqp section onto transport options for role
func (a *app) transportOptions(role rabbitmqTransport.Role) []rabbitmqTransport.TransportOption {
	return a.cfg.AMQP.TransportOptions(role, a.logger)
}
