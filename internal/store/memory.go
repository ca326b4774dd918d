package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/voyagen/channelfold/internal/models"
)

// Memory is an in-process Store used when no database is configured. Data
// is lost on restart.
type Memory struct {
	mu         sync.RWMutex
	nextSource int64
	sources    map[int64]*models.Source
	channels   map[string]*models.ChannelAggregate
	embeddings map[string][]float32
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		sources:    map[int64]*models.Source{},
		channels:   map[string]*models.ChannelAggregate{},
		embeddings: map[string][]float32{},
	}
}

func (m *Memory) CreateOrGetSource(_ context.Context, name, url, userAgent string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sources {
		if s.Name == name {
			s.URL, s.UserAgent = url, userAgent
			return s.ID, nil
		}
	}
	m.nextSource++
	now := time.Now()
	m.sources[m.nextSource] = &models.Source{ID: m.nextSource, Name: name, URL: url, UserAgent: userAgent, Enabled: true, CreatedAt: &now}
	return m.nextSource, nil
}

func (m *Memory) UpdateSourceLastUpdated(_ context.Context, sourceID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[sourceID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	s.LastUpdated = &now
	return nil
}

func (m *Memory) ListSources(_ context.Context) ([]models.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Source, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetSourceByID(_ context.Context, sourceID int64) (*models.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sources[sourceID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) UpdateSource(_ context.Context, sourceID int64, f SourceUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[sourceID]
	if !ok {
		return ErrNotFound
	}
	if f.Name != nil {
		s.Name = *f.Name
	}
	if f.URL != nil {
		s.URL = *f.URL
	}
	if f.UserAgent != nil && *f.UserAgent != "" {
		s.UserAgent = *f.UserAgent
	}
	if f.Enabled != nil {
		s.Enabled = *f.Enabled
	}
	return nil
}

func (m *Memory) DeleteSource(_ context.Context, sourceID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[sourceID]; !ok {
		return ErrNotFound
	}
	delete(m.sources, sourceID)
	for id, ch := range m.channels {
		if ch.SourceID == sourceID {
			delete(m.channels, id)
			delete(m.embeddings, id)
		}
	}
	return nil
}

func (m *Memory) SaveChannels(_ context.Context, sourceID int64, channels []models.ChannelAggregate) (SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[sourceID]; !ok {
		return SaveResult{}, fmt.Errorf("SaveChannels: source %d: %w", sourceID, ErrNotFound)
	}

	byKey := map[string]*models.ChannelAggregate{}
	for _, ch := range m.channels {
		if ch.SourceID == sourceID {
			byKey[ch.Key] = ch
		}
	}

	var res SaveResult
	keep := map[string]bool{}
	for i := range channels {
		ch := &channels[i]
		ch.SourceID = sourceID
		if existing, ok := byKey[ch.Key]; ok {
			ch.ID, ch.Name, ch.Selected = existing.ID, existing.Name, existing.Selected
		}
		stored := *ch
		stored.Streams = append([]models.StreamVariant{}, ch.Streams...)
		m.channels[ch.ID] = &stored
		keep[ch.ID] = true
		res.Streams += len(ch.Streams)
	}
	for id, ch := range m.channels {
		if ch.SourceID == sourceID && !keep[id] {
			delete(m.channels, id)
			delete(m.embeddings, id)
			res.Removed++
		}
	}
	res.Channels = len(channels)
	return res, nil
}

func (m *Memory) filtered(filter ChannelFilter) []models.ChannelAggregate {
	search := strings.ToLower(filter.Search)
	var out []models.ChannelAggregate
	for _, ch := range m.channels {
		switch {
		case filter.SourceID != nil && ch.SourceID != *filter.SourceID,
			filter.Selected != nil && ch.Selected != *filter.Selected,
			filter.Group != "" && ch.Group != filter.Group,
			search != "" && !strings.Contains(strings.ToLower(ch.Name), search):
			continue
		}
		out = append(out, copyChannel(ch))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].Position < out[j].Position
	})
	return out
}

func (m *Memory) ListChannels(_ context.Context, filter ChannelFilter) ([]models.ChannelAggregate, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.filtered(filter)
	start := min(filter.Offset, len(all))
	end := min(start+clampLimit(filter.Limit), len(all))
	return append([]models.ChannelAggregate{}, all[start:end]...), len(all), nil
}

func (m *Memory) ListChannelsBySource(_ context.Context, sourceID int64) ([]models.ChannelAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.filtered(ChannelFilter{SourceID: &sourceID})
	if out == nil {
		out = []models.ChannelAggregate{}
	}
	return out, nil
}

func (m *Memory) GetChannelByID(_ context.Context, channelID string) (*models.ChannelAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[channelID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := copyChannel(ch)
	return &cp, nil
}

func (m *Memory) UpdateChannel(_ context.Context, channelID string, f ChannelUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[channelID]
	if !ok {
		return ErrNotFound
	}
	if f.Name != nil {
		ch.Name = *f.Name
	}
	if f.Selected != nil {
		ch.Selected = *f.Selected
	}
	return nil
}

func (m *Memory) SetChannelsSelected(_ context.Context, channelIDs []string, selected bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range channelIDs {
		if ch, ok := m.channels[id]; ok && ch.Selected != selected {
			ch.Selected = selected
			n++
		}
	}
	return n, nil
}

func (m *Memory) RenameChannels(_ context.Context, names map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, name := range names {
		if ch, ok := m.channels[id]; ok {
			ch.Name = name
		}
	}
	return nil
}

func (m *Memory) ListChannelsWithoutEmbeddings(_ context.Context, sourceID int64, limit int) ([]models.ChannelAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ChannelAggregate
	for _, ch := range m.filtered(ChannelFilter{SourceID: &sourceID}) {
		if _, ok := m.embeddings[ch.ID]; !ok {
			out = append(out, ch)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) StoreEmbeddings(_ context.Context, channelIDs []string, embeddings [][]float32) error {
	if len(channelIDs) != len(embeddings) {
		return fmt.Errorf("StoreEmbeddings: %d ids for %d embeddings", len(channelIDs), len(embeddings))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range channelIDs {
		if _, ok := m.channels[id]; ok {
			m.embeddings[id] = embeddings[i]
		}
	}
	return nil
}

func (m *Memory) SemanticSearch(_ context.Context, queryVec []float32, filter ChannelFilter) ([]SemanticResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []SemanticResult
	for _, ch := range m.filtered(filter) {
		vec, ok := m.embeddings[ch.ID]
		if !ok {
			continue
		}
		results = append(results, SemanticResult{ChannelAggregate: ch, Similarity: cosine(queryVec, vec)})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if limit := clampLimit(filter.Limit); len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func copyChannel(ch *models.ChannelAggregate) models.ChannelAggregate {
	cp := *ch
	cp.Streams = append([]models.StreamVariant{}, ch.Streams...)
	return cp
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
