package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"co2-bank-monitor/config"
)

const envPrefix = "CO2MON"

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "co2monitord",
		Short:         "Monitor CO2 cylinder banks and alert when supply runs low",
		Long:          "co2monitord polls the gas supplier portal every hour, records both bank levels, emails procurement when a bank runs low and serves a status dashboard.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// a missing .env is normal outside development
			_ = godotenv.Load()
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(v)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "./config/config.yaml", "path to the YAML configuration file")
	flags.String("path", "", "data directory holding credentials.json and the logs (default ./data/)")
	flags.Bool("notify", false, "send alert emails")
	flags.Int("port", 0, "dashboard port (default 8000)")
	flags.Bool("debug", false, "enable debug logging and gin debug mode")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd.AddCommand(newTestEmailCmd(v))
	return rootCmd
}

// loadConfig reads the YAML file and applies flag and environment overrides on top.
func loadConfig(v *viper.Viper) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	if v.IsSet("path") && v.GetString("path") != "" {
		cfg.Storage.DataDir = v.GetString("path")
	}
	if v.GetBool("notify") {
		cfg.Alerts.Notify = true
	}
	if port := v.GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}
	if v.GetBool("debug") {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Finalize(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.Logging)
	if cfg.Source == "" {
		logger.Warn("config file not found; using defaults", "path", v.GetString("config"))
	} else {
		logger.Debug("configuration loaded", "path", cfg.Source)
	}
	return cfg, logger, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
