package consolidate

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/voyagen/channelfold/internal/models"
)

// Grouping key prefixes.
const (
	KeyPrefixTvgID = "tvgid:"
	KeyPrefixName  = "name:"
)

// IDFunc generates unique identifiers for channels and streams.
type IDFunc func() string

// GroupingKey returns the identity used to merge an entry into a channel.
func GroupingKey(e models.RawStreamEntry) string {
	if utf8.RuneCountInString(e.TvgID) > 1 {
		return KeyPrefixTvgID + e.TvgID
	}
	return KeyPrefixName + NormalizeName(e.Title)
}

// Group consolidates entries into channels, in order of first appearance.
// Every entry contributes exactly one stream variant. newID may be nil, in
// which case random UUIDs are used.
func Group(entries []models.RawStreamEntry, newID IDFunc) []models.ChannelAggregate {
	if newID == nil {
		newID = uuid.NewString
	}

	channels := []models.ChannelAggregate{}
	index := make(map[string]int)

	for _, e := range entries {
		key := GroupingKey(e)
		i, ok := index[key]
		if !ok {
			i = len(channels)
			index[key] = i
			ch := newChannel(e, key, newID())
			ch.Position = i
			channels = append(channels, ch)
		}

		ch := &channels[i]
		ch.Streams = append(ch.Streams, models.StreamVariant{
			ID:            newID(),
			URL:           e.URL,
			Name:          e.Title,
			OriginalTitle: e.Title,
			Resolution:    DetectResolution(e.Title),
		})
		if ch.Logo == "" && e.Logo != "" {
			ch.Logo = e.Logo
		}
		if ch.TvgID == "" && e.TvgID != "" {
			ch.TvgID = e.TvgID
		}
	}
	return channels
}

func newChannel(e models.RawStreamEntry, key, id string) models.ChannelAggregate {
	name := strings.TrimSpace(e.TvgID)
	if name == "" {
		name = SimplifyName(e.Title, e.TvgName)
	}
	return models.ChannelAggregate{
		ID:       id,
		Key:      key,
		Name:     name,
		TvgID:    e.TvgID,
		Logo:     e.Logo,
		Group:    e.GroupTitle,
		Streams:  []models.StreamVariant{},
		Selected: true,
	}
}
