package repository

import (
	"context"

	"github.com/jonas/shelfscout/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VideoRepository handles video catalog persistence.
type VideoRepository struct {
	db *gorm.DB
}

// NewVideoRepository creates a new VideoRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *VideoRepository: repository instance bound to db.
func NewVideoRepository(db *gorm.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// Upsert creates or updates a video keyed by (source_id, natural_key).
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - video: video record to create or update.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *VideoRepository) Upsert(ctx context.Context, video *domain.Video) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_id"}, {Name: "natural_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "channel_id", "channel_title", "description",
			"tags", "duration_seconds", "thumbnail_url", "published_at",
			"updated_at",
		}),
	}).Create(video).Error
}

// GetByNaturalKey retrieves a video by source and platform video id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - sourceID: source identifier.
//   - naturalKey: platform video id.
// Returns:
//   - *domain.Video: video record if found.
//   - error: non-nil if lookup fails.
func (r *VideoRepository) GetByNaturalKey(ctx context.Context, sourceID, naturalKey string) (*domain.Video, error) {
	var video domain.Video
	if err := r.db.WithContext(ctx).
		First(&video, "source_id = ? AND natural_key = ?", sourceID, naturalKey).Error; err != nil {
		return nil, err
	}
	return &video, nil
}

// List retrieves videos, optionally filtered by channel.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - channelID: channel filter; empty means all.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Video: matching video records.
//   - error: non-nil if the query fails.
func (r *VideoRepository) List(ctx context.Context, channelID string, limit, offset int) ([]domain.Video, error) {
	var videos []domain.Video
	query := r.db.WithContext(ctx)
	if channelID != "" {
		query = query.Where("channel_id = ?", channelID)
	}
	if err := query.
		Limit(limit).
		Offset(offset).
		Order("published_at DESC").
		Find(&videos).Error; err != nil {
		return nil, err
	}
	return videos, nil
}
