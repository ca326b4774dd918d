package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voyagen/channelfold/internal/consolidate"
	"github.com/voyagen/channelfold/internal/models"
	"github.com/voyagen/channelfold/internal/service"
)

var syncCmd = &cobra.Command{
	Use:   "sync <file|url|->",
	Short: "Consolidate a playlist and push channels to the catalog",
	Long: `Parse and consolidate a playlist, then create the chosen channels in the
catalog configured by CATALOG_URL (and CATALOG_TOKEN or CATALOG_USERNAME /
CATALOG_PASSWORD). No database is needed.

Choose channels with --all or with one or more --select filters, which match
channel names and groups case-insensitively.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	f := syncCmd.Flags()
	f.Int64("profile-id", 0, "target catalog profile id")
	f.String("profile-name", "", "target catalog profile name (created when missing)")
	f.Bool("all", false, "sync every channel")
	f.StringSlice("select", nil, "sync channels whose name or group contains this text")
	f.Bool("cleanup", false, "clean channel names before syncing")
	f.Bool("dry-run", false, "print the channels that would be synced")
	syncCmd.MarkFlagsMutuallyExclusive("profile-id", "profile-name")
	syncCmd.MarkFlagsMutuallyExclusive("all", "select")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags(), false)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	f := cmd.Flags()
	profileID, _ := f.GetInt64("profile-id")
	profileName, _ := f.GetString("profile-name")
	all, _ := f.GetBool("all")
	filters, _ := f.GetStringSlice("select")
	cleanup, _ := f.GetBool("cleanup")
	dryRun, _ := f.GetBool("dry-run")
	if !all && len(filters) == 0 {
		return errors.New("choose channels with --all or --select")
	}

	ctx := cmd.Context()
	entries, err := readEntries(ctx, args[0], cmd.InOrStdin(), cfg, log)
	if err != nil {
		return err
	}
	channels := consolidate.Group(entries, nil)
	if cleanup {
		consolidate.CleanNames(channels)
	}
	n := selectChannels(channels, all, filters)
	log.Info("channels selected", zap.Int("selected", n), zap.Int("channels", len(channels)))

	if dryRun {
		out := cmd.OutOrStdout()
		for _, ch := range channels {
			if ch.Selected {
				fmt.Fprintf(out, "%s\t%d streams\t%s\n", ch.Name, len(ch.Streams), ch.Group)
			}
		}
		return nil
	}

	connect := catalogConnector(cfg.Catalog, log)
	if connect == nil {
		return errors.New("CATALOG_URL is not set")
	}
	cat, err := connect(ctx)
	if err != nil {
		return fmt.Errorf("connect catalog: %w", err)
	}
	if profileID == 0 {
		if profileName == "" {
			return errors.New("--profile-id or --profile-name is required")
		}
		if profileID, err = service.ResolveProfile(ctx, cat, profileName); err != nil {
			return err
		}
	}

	report, err := service.Sync(ctx, cat, channels, service.SyncOptions{
		ProfileID:    profileID,
		DefaultGroup: cfg.Catalog.DefaultGroup,
		Logger:       log,
		OnProgress: func(p service.SyncProgress) {
			fmt.Fprintf(cmd.ErrOrStderr(), "\r%d/%d %s", p.Done, p.Total, p.Channel)
		},
	})
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	return encode(cmd.OutOrStdout(), "json", report)
}

// selectChannels marks channels for syncing and returns how many are selected.
func selectChannels(channels []models.ChannelAggregate, all bool, filters []string) int {
	n := 0
	for i := range channels {
		ch := &channels[i]
		ch.Selected = all || matchesAny(ch, filters)
		if ch.Selected {
			n++
		}
	}
	return n
}

func matchesAny(ch *models.ChannelAggregate, filters []string) bool {
	name, group := strings.ToLower(ch.Name), strings.ToLower(ch.Group)
	for _, f := range filters {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" && (strings.Contains(name, f) || strings.Contains(group, f)) {
			return true
		}
	}
	return false
}
