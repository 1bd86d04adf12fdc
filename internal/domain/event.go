package domain

import "time"

// EventType classifies a job event entry.
type EventType string

const (
	EventTypeInfo    EventType = "info"
	EventTypeSuccess EventType = "success"
	EventTypeError   EventType = "error"
)

// JobEvent is an append-only audit entry for a job. Entries are never
// updated or deleted; consumers poll them ordered by creation time.
type JobEvent struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	JobID     string    `gorm:"type:text;not null;index:idx_job_events_job" json:"job_id"`
	Type      EventType `gorm:"type:text;not null" json:"type"`
	Message   string    `gorm:"type:text" json:"message"`
	CreatedAt time.Time `gorm:"index:idx_job_events_job" json:"created_at"`
}

// TableName returns the database table name for JobEvent.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (JobEvent) TableName() string {
	return "job_events"
}
