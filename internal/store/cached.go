package store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/voyagen/channelfold/internal/cache"
	"github.com/voyagen/channelfold/internal/models"
)

// Cache TTLs for different entity types.
const (
	ttlSources  = 2 * time.Minute
	ttlSource   = 5 * time.Minute
	ttlChannels = 1 * time.Minute
	ttlChannel  = 5 * time.Minute
)

// CachedStore wraps a Store with a Redis caching layer. Reads of sources and
// channels are served from cache when possible; writes invalidate the
// affected keys. Semantic search and embedding bookkeeping pass through.
type CachedStore struct {
	inner Store
	cache *cache.Redis
	log   *zap.Logger
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis, log *zap.Logger) *CachedStore {
	return &CachedStore{inner: inner, cache: c, log: log.Named("cache")}
}

// cached reads key from Redis, or loads and stores it on a miss.
func cached[T any](ctx context.Context, c *CachedStore, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if v, err := cache.Get[T](ctx, c.cache, key); err == nil {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if err := cache.Set(ctx, c.cache, key, v, ttl); err != nil {
		c.log.Warn("set failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

func sourceKey(id int64) string   { return fmt.Sprintf("source:%d", id) }
func channelKey(id string) string { return "channel:" + id }
func bySourceKey(id int64) string { return fmt.Sprintf("channels:source:%d", id) }

// --- cached reads ---

func (c *CachedStore) ListSources(ctx context.Context) ([]models.Source, error) {
	return cached(ctx, c, "sources:all", ttlSources, func() ([]models.Source, error) {
		return c.inner.ListSources(ctx)
	})
}

func (c *CachedStore) GetSourceByID(ctx context.Context, sourceID int64) (*models.Source, error) {
	return cached(ctx, c, sourceKey(sourceID), ttlSource, func() (*models.Source, error) {
		return c.inner.GetSourceByID(ctx, sourceID)
	})
}

// channelListResult caches the ListChannels tuple.
type channelListResult struct {
	Channels []models.ChannelAggregate `json:"channels"`
	Total    int                       `json:"total"`
}

func (c *CachedStore) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.ChannelAggregate, int, error) {
	v, err := cached(ctx, c, "channels:list:"+filterHash(filter), ttlChannels, func() (channelListResult, error) {
		channels, total, err := c.inner.ListChannels(ctx, filter)
		return channelListResult{Channels: channels, Total: total}, err
	})
	return v.Channels, v.Total, err
}

func (c *CachedStore) ListChannelsBySource(ctx context.Context, sourceID int64) ([]models.ChannelAggregate, error) {
	return cached(ctx, c, bySourceKey(sourceID), ttlChannels, func() ([]models.ChannelAggregate, error) {
		return c.inner.ListChannelsBySource(ctx, sourceID)
	})
}

func (c *CachedStore) GetChannelByID(ctx context.Context, channelID string) (*models.ChannelAggregate, error) {
	return cached(ctx, c, channelKey(channelID), ttlChannel, func() (*models.ChannelAggregate, error) {
		return c.inner.GetChannelByID(ctx, channelID)
	})
}

// --- writes with invalidation ---

func (c *CachedStore) CreateOrGetSource(ctx context.Context, name, url, userAgent string) (int64, error) {
	id, err := c.inner.CreateOrGetSource(ctx, name, url, userAgent)
	if err != nil {
		return 0, err
	}
	c.invalidate(ctx, sourceKey(id), "sources:all")
	return id, nil
}

func (c *CachedStore) UpdateSource(ctx context.Context, sourceID int64, fields SourceUpdate) error {
	if err := c.inner.UpdateSource(ctx, sourceID, fields); err != nil {
		return err
	}
	c.invalidate(ctx, sourceKey(sourceID), "sources:all")
	return nil
}

func (c *CachedStore) DeleteSource(ctx context.Context, sourceID int64) error {
	if err := c.inner.DeleteSource(ctx, sourceID); err != nil {
		return err
	}
	c.invalidate(ctx, sourceKey(sourceID), "sources:all")
	c.invalidatePattern(ctx, "channels:*", "channel:*")
	return nil
}

func (c *CachedStore) UpdateSourceLastUpdated(ctx context.Context, sourceID int64) error {
	if err := c.inner.UpdateSourceLastUpdated(ctx, sourceID); err != nil {
		return err
	}
	c.invalidate(ctx, sourceKey(sourceID), "sources:all")
	return nil
}

func (c *CachedStore) SaveChannels(ctx context.Context, sourceID int64, channels []models.ChannelAggregate) (SaveResult, error) {
	res, err := c.inner.SaveChannels(ctx, sourceID, channels)
	if err != nil {
		return res, err
	}
	c.invalidatePattern(ctx, "channels:*", "channel:*")
	return res, nil
}

func (c *CachedStore) UpdateChannel(ctx context.Context, channelID string, fields ChannelUpdate) error {
	if err := c.inner.UpdateChannel(ctx, channelID, fields); err != nil {
		return err
	}
	c.invalidate(ctx, channelKey(channelID))
	c.invalidatePattern(ctx, "channels:*")
	return nil
}

func (c *CachedStore) SetChannelsSelected(ctx context.Context, channelIDs []string, selected bool) (int64, error) {
	n, err := c.inner.SetChannelsSelected(ctx, channelIDs, selected)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		keys := make([]string, len(channelIDs))
		for i, id := range channelIDs {
			keys[i] = channelKey(id)
		}
		c.invalidate(ctx, keys...)
		c.invalidatePattern(ctx, "channels:*")
	}
	return n, nil
}

func (c *CachedStore) RenameChannels(ctx context.Context, names map[string]string) error {
	if err := c.inner.RenameChannels(ctx, names); err != nil {
		return err
	}
	keys := make([]string, 0, len(names))
	for id := range names {
		keys = append(keys, channelKey(id))
	}
	c.invalidate(ctx, keys...)
	c.invalidatePattern(ctx, "channels:*")
	return nil
}

// --- passthrough ---

func (c *CachedStore) ListChannelsWithoutEmbeddings(ctx context.Context, sourceID int64, limit int) ([]models.ChannelAggregate, error) {
	return c.inner.ListChannelsWithoutEmbeddings(ctx, sourceID, limit)
}

func (c *CachedStore) StoreEmbeddings(ctx context.Context, channelIDs []string, embeddings [][]float32) error {
	return c.inner.StoreEmbeddings(ctx, channelIDs, embeddings)
}

func (c *CachedStore) SemanticSearch(ctx context.Context, queryVec []float32, filter ChannelFilter) ([]SemanticResult, error) {
	return c.inner.SemanticSearch(ctx, queryVec, filter)
}

// --- helpers ---

func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := cache.Del(ctx, c.cache, keys...); err != nil && !cache.IsMiss(err) {
		c.log.Warn("del failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil {
			c.log.Warn("del pattern failed", zap.String("pattern", p), zap.Error(err))
		}
	}
}

// filterHash produces a short deterministic hash of a ChannelFilter for use in cache keys.
func filterHash(f ChannelFilter) string {
	var sid, sel string
	if f.SourceID != nil {
		sid = fmt.Sprint(*f.SourceID)
	}
	if f.Selected != nil {
		sel = fmt.Sprint(*f.Selected)
	}
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%d", sid, sel, f.Group, f.Search, f.Limit, f.Offset)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}
