package models

// RawStreamEntry is one #EXTINF/URL pair read from a playlist.
// Optional fields are empty when the attribute was not present.
type RawStreamEntry struct {
	Title      string            `json:"title" yaml:"title"`
	URL        string            `json:"url" yaml:"url"`
	TvgID      string            `json:"tvg_id,omitempty" yaml:"tvg_id,omitempty"`
	TvgName    string            `json:"tvg_name,omitempty" yaml:"tvg_name,omitempty"`
	GroupTitle string            `json:"group_title,omitempty" yaml:"group_title,omitempty"`
	Logo       string            `json:"logo,omitempty" yaml:"logo,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// StreamVariant is one playable source under a ChannelAggregate.
type StreamVariant struct {
	ID            string `json:"id" yaml:"id"`
	URL           string `json:"url" yaml:"url"`
	Name          string `json:"name" yaml:"name"`
	OriginalTitle string `json:"original_title" yaml:"original_title"`
	Resolution    string `json:"resolution,omitempty" yaml:"resolution,omitempty"` // "4K", "1080p", "720p", "SD"
}
