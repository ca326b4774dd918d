package models

// Resolution labels reported on StreamVariant.Resolution.
const (
	Resolution4K    = "4K"
	Resolution1080p = "1080p"
	Resolution720p  = "720p"
	ResolutionSD    = "SD"
)

// DefaultGroupName is the catalog category used for channels without a group-title.
const DefaultGroupName = "Uncategorized"
