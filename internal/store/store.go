package store

import (
	"context"
	"errors"

	"github.com/voyagen/channelfold/internal/models"
)

// ErrNotFound is returned when a source or channel does not exist.
var ErrNotFound = errors.New("not found")

// Store defines persistence for sources and their consolidated channels.
type Store interface {
	// CreateOrGetSource creates a source by name if not exists, returns id.
	CreateOrGetSource(ctx context.Context, name, url, userAgent string) (int64, error)
	// UpdateSourceLastUpdated sets last_updated for the source.
	UpdateSourceLastUpdated(ctx context.Context, sourceID int64) error
	// ListSources returns all sources.
	ListSources(ctx context.Context) ([]models.Source, error)
	// GetSourceByID returns a single source by id.
	GetSourceByID(ctx context.Context, sourceID int64) (*models.Source, error)
	// UpdateSource updates mutable fields of a source.
	UpdateSource(ctx context.Context, sourceID int64, fields SourceUpdate) error
	// DeleteSource deletes a source and cascades to its channels and streams.
	DeleteSource(ctx context.Context, sourceID int64) error

	// SaveChannels upserts channels by grouping key, replaces their streams
	// and removes channels of the source that are no longer present. The
	// stored id, name and selected flag of existing channels are kept and
	// written back into channels.
	SaveChannels(ctx context.Context, sourceID int64, channels []models.ChannelAggregate) (SaveResult, error)
	// ListChannels returns channels (with streams) matching the filter and the total count.
	ListChannels(ctx context.Context, filter ChannelFilter) ([]models.ChannelAggregate, int, error)
	// ListChannelsBySource returns every channel of a source in playlist order.
	ListChannelsBySource(ctx context.Context, sourceID int64) ([]models.ChannelAggregate, error)
	// GetChannelByID returns a single channel with its streams.
	GetChannelByID(ctx context.Context, channelID string) (*models.ChannelAggregate, error)
	// UpdateChannel renames a channel or toggles its selection.
	UpdateChannel(ctx context.Context, channelID string, fields ChannelUpdate) error
	// SetChannelsSelected sets the selected flag on many channels and returns how many changed.
	SetChannelsSelected(ctx context.Context, channelIDs []string, selected bool) (int64, error)
	// RenameChannels applies channel id -> name updates.
	RenameChannels(ctx context.Context, names map[string]string) error

	// ListChannelsWithoutEmbeddings returns up to limit channels of a source lacking an embedding.
	ListChannelsWithoutEmbeddings(ctx context.Context, sourceID int64, limit int) ([]models.ChannelAggregate, error)
	// StoreEmbeddings writes name embeddings for the given channels.
	StoreEmbeddings(ctx context.Context, channelIDs []string, embeddings [][]float32) error
	// SemanticSearch returns channels ordered by cosine distance to queryVec.
	SemanticSearch(ctx context.Context, queryVec []float32, filter ChannelFilter) ([]SemanticResult, error)
}

// SaveResult summarises a SaveChannels call.
type SaveResult struct {
	Channels int   `json:"channels"`
	Streams  int   `json:"streams"`
	Removed  int64 `json:"removed"`
}

// ChannelFilter holds optional filters for listing channels.
type ChannelFilter struct {
	SourceID *int64
	Selected *bool
	Group    string // exact group-title match
	Search   string // case-insensitive substring match on channel name
	Limit    int    // default 50, max 200
	Offset   int
}

// SourceUpdate holds mutable fields for PATCH /sources/{id}.
// Pointer fields: nil = don't change, non-nil = set.
type SourceUpdate struct {
	Name      *string
	URL       *string
	UserAgent *string
	Enabled   *bool
}

// ChannelUpdate holds mutable fields for PATCH /channels/{id}.
type ChannelUpdate struct {
	Name     *string
	Selected *bool
}

// SemanticResult is a channel with its similarity to a search query.
type SemanticResult struct {
	models.ChannelAggregate
	Similarity float64 `json:"similarity"`
}
