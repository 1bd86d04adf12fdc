package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonas/shelfscout/internal/domain"
	"gorm.io/gorm"
)

// EventRepository handles the append-only job event log.
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *EventRepository: repository instance bound to db.
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append writes one event entry. Entries are immutable once written.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job the event belongs to.
//   - typ: event severity/type.
//   - message: free-text narrative for operators.
// Returns:
//   - error: non-nil if the insert fails.
func (r *EventRepository) Append(ctx context.Context, jobID string, typ domain.EventType, message string) error {
	event := &domain.JobEvent{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Type:      typ,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// ListSince returns a job's events created strictly after the given time,
// oldest first. Consumers poll with the timestamp of their last seen event.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job to read events for.
//   - after: exclusive lower bound; zero time returns everything.
//   - limit: maximum number of entries to return.
// Returns:
//   - []domain.JobEvent: events in creation order ascending.
//   - error: non-nil if the query fails.
func (r *EventRepository) ListSince(ctx context.Context, jobID string, after time.Time, limit int) ([]domain.JobEvent, error) {
	var events []domain.JobEvent
	query := r.db.WithContext(ctx).Where("job_id = ?", jobID)
	if !after.IsZero() {
		query = query.Where("created_at > ?", after)
	}
	if err := query.
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
