package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/voyagen/channelfold/internal/consolidate"
)

var parseCmd = &cobra.Command{
	Use:   "parse <file|url|->",
	Short: "Parse a playlist and print the consolidated channels",
	Long: `Parse an M3U playlist and print the channels it consolidates into.

With --raw the parsed entries are printed instead, before any grouping.
With --cleanup provider suffixes such as "ABCD -->..." are stripped from
channel names.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringP("format", "f", "json", "output format (json, yaml)")
	parseCmd.Flags().Bool("raw", false, "print raw entries instead of channels")
	parseCmd.Flags().Bool("cleanup", false, "clean channel names")
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags(), false)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	format, _ := cmd.Flags().GetString("format")
	raw, _ := cmd.Flags().GetBool("raw")
	cleanup, _ := cmd.Flags().GetBool("cleanup")
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unknown format %q (use json or yaml)", format)
	}

	entries, err := readEntries(cmd.Context(), args[0], cmd.InOrStdin(), cfg, log)
	if err != nil {
		return err
	}
	if raw {
		return encode(cmd.OutOrStdout(), format, entries)
	}

	channels := consolidate.Group(entries, nil)
	if cleanup {
		consolidate.CleanNames(channels)
	}
	return encode(cmd.OutOrStdout(), format, channels)
}

func encode(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
