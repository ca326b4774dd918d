package models

import "time"

// Source represents an IPTV playlist source (one M3U URL).
type Source struct {
	ID          int64      `json:"id,omitempty"`
	Name        string     `json:"name"`
	URL         string     `json:"url,omitempty"`
	UserAgent   string     `json:"user_agent,omitempty"`
	Enabled     bool       `json:"enabled"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}
