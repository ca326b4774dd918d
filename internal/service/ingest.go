package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voyagen/channelfold/internal/consolidate"
	"github.com/voyagen/channelfold/internal/embedding"
	"github.com/voyagen/channelfold/internal/fetcher"
	"github.com/voyagen/channelfold/internal/models"
	"github.com/voyagen/channelfold/internal/store"
)

// Locker guards a source against concurrent ingests and syncs.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// Embedder turns texts into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, inputType string, batchSize int) ([][]float32, error)
}

const (
	lockTTL        = 10 * time.Minute
	embedBatchSize = 128
)

// IngestOptions configures Ingest. Only Fetch is required to reach the
// playlist; everything else is optional.
type IngestOptions struct {
	SourceName string // defaults to "m3u"
	Fetch      fetcher.FetchOptions
	Logger     *zap.Logger
	Locker     Locker
	LockKey    func(sourceID int64) string
	Embedder   Embedder
	NewID      consolidate.IDFunc
}

// IngestResult summarises an Ingest run.
type IngestResult struct {
	SourceID int64 `json:"source_id"`
	Entries  int   `json:"entries"`
	store.SaveResult
	Embedded int `json:"embedded"`
}

// Ingest fetches an M3U URL, consolidates its entries into channels and
// stores them under the named source. Channels already stored under the
// same grouping key keep their id, name and selection; their streams are
// replaced. Channels no longer present in the playlist are removed.
func Ingest(ctx context.Context, s store.Store, m3uURL string, opts IngestOptions) (IngestResult, error) {
	if m3uURL == "" {
		return IngestResult{}, fmt.Errorf("m3u URL is required")
	}
	if opts.SourceName == "" {
		opts.SourceName = "m3u"
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ingest").With(zap.String("source", opts.SourceName))
	opts.Fetch.Logger = log

	sourceID, err := s.CreateOrGetSource(ctx, opts.SourceName, m3uURL, opts.Fetch.UserAgent)
	if err != nil {
		return IngestResult{}, fmt.Errorf("CreateOrGetSource: %w", err)
	}
	res := IngestResult{SourceID: sourceID}

	if opts.Locker != nil && opts.LockKey != nil {
		unlock, err := opts.Locker.TryLock(ctx, opts.LockKey(sourceID), lockTTL)
		if err != nil {
			return res, fmt.Errorf("lock source %d: %w", sourceID, err)
		}
		defer unlock()
	}

	entries, err := fetcher.FetchEntries(ctx, m3uURL, opts.Fetch)
	if err != nil {
		return res, fmt.Errorf("fetch: %w", err)
	}
	res.Entries = len(entries)

	channels := consolidate.Group(entries, opts.NewID)
	saved, err := s.SaveChannels(ctx, sourceID, channels)
	if err != nil {
		return res, fmt.Errorf("SaveChannels: %w", err)
	}
	res.SaveResult = saved

	if err := s.UpdateSourceLastUpdated(ctx, sourceID); err != nil {
		return res, fmt.Errorf("UpdateSourceLastUpdated: %w", err)
	}
	log.Info("ingested",
		zap.Int64("source_id", sourceID),
		zap.Int("entries", res.Entries),
		zap.Int("channels", saved.Channels),
		zap.Int("streams", saved.Streams),
		zap.Int64("removed", saved.Removed))

	if opts.Embedder != nil {
		n, err := EmbedChannels(ctx, s, opts.Embedder, sourceID, log)
		if err != nil {
			// Embeddings only back semantic search; the ingest itself succeeded.
			log.Warn("embedding failed", zap.Error(err))
		}
		res.Embedded = n
	}
	return res, nil
}

// ErrSourceDisabled is returned by Refresh for disabled sources.
var ErrSourceDisabled = errors.New("source is disabled")

// Refresh re-ingests a stored source from its URL.
func Refresh(ctx context.Context, s store.Store, sourceID int64, opts IngestOptions) (IngestResult, error) {
	src, err := s.GetSourceByID(ctx, sourceID)
	if err != nil {
		return IngestResult{}, err
	}
	if !src.Enabled {
		return IngestResult{SourceID: sourceID}, fmt.Errorf("source %d: %w", sourceID, ErrSourceDisabled)
	}
	opts.SourceName = src.Name
	if src.UserAgent != "" {
		opts.Fetch.UserAgent = src.UserAgent
	}
	return Ingest(ctx, s, src.URL, opts)
}

// EmbedChannels embeds every channel of the source that has no embedding yet
// and returns how many were stored.
func EmbedChannels(ctx context.Context, s store.Store, e Embedder, sourceID int64, log *zap.Logger) (int, error) {
	total := 0
	for {
		pending, err := s.ListChannelsWithoutEmbeddings(ctx, sourceID, embedBatchSize)
		if err != nil {
			return total, fmt.Errorf("ListChannelsWithoutEmbeddings: %w", err)
		}
		if len(pending) == 0 {
			return total, nil
		}
		ids := make([]string, len(pending))
		texts := make([]string, len(pending))
		for i, ch := range pending {
			ids[i] = ch.ID
			texts[i] = embedding.ChannelText(ch)
		}
		vecs, err := e.EmbedBatch(ctx, texts, embedding.InputDocument, embedBatchSize)
		if err != nil {
			return total, err
		}
		if err := s.StoreEmbeddings(ctx, ids, vecs); err != nil {
			return total, fmt.Errorf("StoreEmbeddings: %w", err)
		}
		total += len(pending)
		log.Debug("embedded channels", zap.Int("batch", len(pending)), zap.Int("total", total))
	}
}

// PreviewInput is either inline playlist text or a URL to fetch.
type PreviewInput struct {
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

// ErrEmptyPreview is returned when neither text nor URL is given.
var ErrEmptyPreview = errors.New("playlist text or url is required")

// Preview parses and consolidates a playlist without storing anything.
func Preview(ctx context.Context, in PreviewInput, fetch fetcher.FetchOptions, newID consolidate.IDFunc) ([]models.ChannelAggregate, error) {
	text := in.Text
	if strings.TrimSpace(text) == "" {
		if in.URL == "" {
			return nil, ErrEmptyPreview
		}
		var err error
		if text, err = fetcher.Fetch(ctx, in.URL, fetch); err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
	}
	return consolidate.Group(fetcher.Parse(text), newID), nil
}
