package domain

import "time"

// Video is a destination entity for video-platform sources. Saves are
// idempotent upserts keyed by (source_id, natural_key); the natural key is
// the platform's video id.
type Video struct {
	ID         string `gorm:"type:text;primaryKey" json:"id"`
	SourceID   string `gorm:"type:text;not null;index:idx_videos_source,unique" json:"source_id"`
	NaturalKey string `gorm:"type:text;not null;index:idx_videos_source,unique" json:"natural_key"`

	Title           string      `gorm:"type:text" json:"title"`
	ChannelID       string      `gorm:"type:text;index" json:"channel_id,omitempty"`
	ChannelTitle    string      `gorm:"type:text" json:"channel_title,omitempty"`
	Description     string      `gorm:"type:text" json:"description,omitempty"`
	Tags            StringArray `gorm:"type:text" json:"tags,omitempty"`
	DurationSeconds int         `json:"duration_seconds,omitempty"`
	ThumbnailURL    string      `gorm:"type:text" json:"thumbnail_url,omitempty"`
	PublishedAt     *time.Time  `json:"published_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Video.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Video) TableName() string {
	return "videos"
}
