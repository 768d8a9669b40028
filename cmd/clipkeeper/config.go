package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipkeeper/internal/logging"
	"go.klb.dev/clipkeeper/internal/store"
)

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and CLIPKEEPER_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → CLIPKEEPER_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("clipkeeper")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/clipkeeper/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "clipkeeper"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("CLIPKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-background", false, "run interactively: tinter logs + debug level")
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error (default: info for service, debug for interactive)")
	cmd.Flags().String("log-file", "", "also write JSON logs to this file, rotated at --log-max-size MB")
	cmd.Flags().Int("log-max-size", 10, "log file size in MB before rotation")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// addClientFlags adds the flags shared by commands that talk to a daemon.
func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", "", "daemon address host:port (default: local IPC socket)")
	cmd.Flags().String("token", "", "bearer token for --server")
	cmd.Flags().String("db", store.DefaultPath(), "database used when no daemon is running")
	addConfigFlag(cmd)
}

// setupLogging builds the logger from the logging flags. The closer
// releases the --log-file handle.
func setupLogging(v *viper.Viper) (*slog.Logger, io.Closer, error) {
	interactive := v.GetBool("no-background") || logging.IsTTY(os.Stderr)
	levelStr := v.GetString("log-level")
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = slog.LevelDebug
		} else {
			level = slog.LevelInfo
		}
	}
	log, closer, err := logging.NewWithFile(os.Stderr, logging.Options{
		Format:    logging.ParseFormat(v.GetString("log-format")),
		Level:     level,
		File:      v.GetString("log-file"),
		MaxSizeMB: v.GetInt("log-max-size"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("log file: %w", err)
	}
	return log, closer, nil
}
