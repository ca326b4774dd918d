// Package cmd implements the channelfold CLI commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/voyagen/channelfold/internal/config"
	"github.com/voyagen/channelfold/internal/logging"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "channelfold",
	Short: "Consolidate IPTV playlists into channels",
	Long: `channelfold reads M3U playlists, groups entries that carry the same
channel (by tvg-id, or by a normalized title) into one channel with several
stream variants, and syncs selected channels into a remote channel catalog.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment variables are used when unset")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (json, console)")

	rootCmd.AddCommand(serveCmd, parseCmd, syncCmd)
}

// loadConfig reads the config file or environment. Explicit --log-* flags
// override the loaded values.
func loadConfig(flags *pflag.FlagSet, requireDB bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case cfgFile != "":
		cfg, err = config.LoadFromFile(cfgFile, requireDB)
	case requireDB:
		cfg, err = config.Load()
	default:
		cfg = config.LoadOptional()
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return log, nil
}
