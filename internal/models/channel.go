package models

// ChannelAggregate is a logical channel consolidating one or more stream
// variants (bitrates, qualities, mirrors) of the same content.
type ChannelAggregate struct {
	ID       string          `json:"id" yaml:"id"`
	Key      string          `json:"key" yaml:"key"` // grouping key, e.g. "tvgid:espn.us" or "name:espn"
	Name     string          `json:"name" yaml:"name"`
	TvgID    string          `json:"tvg_id,omitempty" yaml:"tvg_id,omitempty"`
	Logo     string          `json:"logo,omitempty" yaml:"logo,omitempty"`
	Group    string          `json:"group,omitempty" yaml:"group,omitempty"`
	Streams  []StreamVariant `json:"streams" yaml:"streams"`
	Selected bool            `json:"selected" yaml:"selected"`

	SourceID int64 `json:"source_id,omitempty" yaml:"-"`
	Position int   `json:"position" yaml:"-"`
}
