package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/voyagen/channelfold/internal/catalog"
	"github.com/voyagen/channelfold/internal/models"
)

var (
	// ErrNothingSelected is returned by Sync when no channel is selected.
	ErrNothingSelected = errors.New("no channels selected")
	// ErrNoProfile is returned by Sync when no target profile is given.
	ErrNoProfile = errors.New("target profile is required")
)

// Catalog is the subset of the catalog API used to sync channels.
type Catalog interface {
	ListProfiles(ctx context.Context) ([]catalog.Profile, error)
	CreateProfile(ctx context.Context, name string) (catalog.Profile, error)
	CreateStream(ctx context.Context, url, name string) (catalog.Stream, error)
	CreateLogo(ctx context.Context, name, url string) (catalog.Logo, error)
	ListGroups(ctx context.Context) ([]catalog.Group, error)
	CreateGroup(ctx context.Context, name string) (catalog.Group, error)
	CreateChannel(ctx context.Context, req catalog.ChannelRequest) (catalog.Channel, error)
	AssignToProfile(ctx context.Context, profileID, channelID int64) error
	MatchEPG(ctx context.Context, channelIDs []int64) error
}

// SyncProgress is reported after each selected channel is processed.
type SyncProgress struct {
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Channel string `json:"channel"`
}

// SyncOptions configures Sync.
type SyncOptions struct {
	ProfileID    int64
	DefaultGroup string // group for channels without one; models.DefaultGroupName if empty
	Logger       *zap.Logger
	OnProgress   func(SyncProgress)
}

// SyncReport summarises a Sync run.
type SyncReport struct {
	Selected       int     `json:"selected"`
	Created        int     `json:"created"`
	Failed         int     `json:"failed"`
	StreamsCreated int     `json:"streams_created"`
	StreamsFailed  int     `json:"streams_failed"`
	ChannelIDs     []int64 `json:"channel_ids"`
	EPGMatched     bool    `json:"epg_matched"`
}

// Sync pushes the selected channels to the catalog one at a time: their
// streams are registered, then a channel grouping them is created and
// enabled in the target profile. Failures of a single stream or channel are
// logged and skipped. Once every channel has been attempted, EPG matching is
// requested for the created channels.
//
// An ErrUnauthorized from the catalog aborts the run since every later
// request would fail the same way.
func Sync(ctx context.Context, cat Catalog, channels []models.ChannelAggregate, opts SyncOptions) (SyncReport, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("sync")
	if opts.ProfileID == 0 {
		return SyncReport{}, ErrNoProfile
	}

	selected := make([]models.ChannelAggregate, 0, len(channels))
	for _, ch := range channels {
		if ch.Selected {
			selected = append(selected, ch)
		}
	}
	report := SyncReport{Selected: len(selected), ChannelIDs: []int64{}}
	if len(selected) == 0 {
		return report, ErrNothingSelected
	}

	groups := newGroupResolver(cat, opts.DefaultGroup, log)
	log.Info("sync started", zap.Int("channels", len(selected)), zap.Int64("profile_id", opts.ProfileID))

	for i, ch := range selected {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("sync cancelled: %w", err)
		}

		id, err := syncChannel(ctx, cat, ch, opts.ProfileID, groups, &report, log)
		switch {
		case errors.Is(err, catalog.ErrUnauthorized):
			return report, err
		case err != nil:
			report.Failed++
			log.Warn("channel failed", zap.String("channel", ch.Name), zap.Error(err))
		default:
			report.Created++
			report.ChannelIDs = append(report.ChannelIDs, id)
		}

		if opts.OnProgress != nil {
			opts.OnProgress(SyncProgress{Done: i + 1, Total: len(selected), Channel: ch.Name})
		}
	}

	if len(report.ChannelIDs) > 0 {
		if err := cat.MatchEPG(ctx, report.ChannelIDs); err != nil {
			log.Warn("EPG matching failed, channels were created", zap.Error(err))
		} else {
			report.EPGMatched = true
		}
	}

	log.Info("sync finished",
		zap.Int("created", report.Created),
		zap.Int("failed", report.Failed),
		zap.Bool("epg_matched", report.EPGMatched))
	return report, nil
}

func syncChannel(ctx context.Context, cat Catalog, ch models.ChannelAggregate, profileID int64, groups *groupResolver, report *SyncReport, log *zap.Logger) (int64, error) {
	streamIDs := make([]int64, 0, len(ch.Streams))
	for _, st := range ch.Streams {
		created, err := cat.CreateStream(ctx, st.URL, st.Name)
		if errors.Is(err, catalog.ErrUnauthorized) {
			return 0, err
		}
		if err != nil {
			report.StreamsFailed++
			log.Warn("stream failed", zap.String("channel", ch.Name), zap.String("url", st.URL), zap.Error(err))
			continue
		}
		report.StreamsCreated++
		streamIDs = append(streamIDs, created.ID)
	}
	if len(streamIDs) == 0 {
		return 0, errors.New("no stream could be created")
	}

	req := catalog.ChannelRequest{Name: ch.Name, StreamIDs: streamIDs}
	if strings.TrimSpace(ch.TvgID) != "" {
		req.TvgID = ch.TvgID
	}
	if gid, ok := groups.resolve(ctx, ch.Group); ok {
		req.GroupID = &gid
	}
	if ch.Logo != "" {
		logo, err := cat.CreateLogo(ctx, ch.Name, ch.Logo)
		if err != nil {
			log.Warn("logo failed", zap.String("channel", ch.Name), zap.Error(err))
		} else {
			req.LogoID = &logo.ID
		}
	}

	created, err := cat.CreateChannel(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("create channel: %w", err)
	}
	if err := cat.AssignToProfile(ctx, profileID, created.ID); err != nil {
		log.Warn("profile assignment failed", zap.String("channel", ch.Name), zap.Int64("channel_id", created.ID), zap.Error(err))
	}
	return created.ID, nil
}

// groupResolver maps group names to catalog group ids, creating missing
// groups. Lookups are cached for one run.
type groupResolver struct {
	cat      Catalog
	fallback string
	log      *zap.Logger
	ids      map[string]int64
	loaded   bool
}

func newGroupResolver(cat Catalog, fallback string, log *zap.Logger) *groupResolver {
	if fallback == "" {
		fallback = models.DefaultGroupName
	}
	return &groupResolver{cat: cat, fallback: fallback, log: log, ids: map[string]int64{}}
}

func (g *groupResolver) resolve(ctx context.Context, name string) (int64, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = g.fallback
	}
	if !g.loaded {
		g.loaded = true
		existing, err := g.cat.ListGroups(ctx)
		if err != nil {
			g.log.Warn("listing groups failed", zap.Error(err))
		}
		for _, eg := range existing {
			g.ids[strings.ToLower(eg.Name)] = eg.ID
		}
	}
	if id, ok := g.ids[strings.ToLower(name)]; ok {
		return id, true
	}
	created, err := g.cat.CreateGroup(ctx, name)
	if err != nil {
		g.log.Warn("group creation failed", zap.String("group", name), zap.Error(err))
		return 0, false
	}
	g.ids[strings.ToLower(name)] = created.ID
	return created.ID, true
}

// ResolveProfile returns the id of the profile named name, creating it when
// it does not exist.
func ResolveProfile(ctx context.Context, cat Catalog, name string) (int64, error) {
	profiles, err := cat.ListProfiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list profiles: %w", err)
	}
	for _, p := range profiles {
		if strings.EqualFold(p.Name, name) {
			return p.ID, nil
		}
	}
	p, err := cat.CreateProfile(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("create profile: %w", err)
	}
	return p.ID, nil
}
