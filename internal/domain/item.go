package domain

import "time"

// ItemStatus represents the completion status of a single ledger row.
// Transitions are one-way (pending -> done | failed) except for operator
// retry, which resets failed rows to pending.
type ItemStatus string

const (
	ItemStatusPending ItemStatus = "pending"
	ItemStatusDone    ItemStatus = "done"
	ItemStatusFailed  ItemStatus = "failed"
)

// JobItem is one discovered unit of work, scoped to exactly one job.
// (job_id, natural_key) is unique; rediscovery of the same item is a no-op.
type JobItem struct {
	ID         string     `gorm:"type:text;primaryKey" json:"id"`
	JobID      string     `gorm:"type:text;not null;index:idx_job_items_key,unique;index:idx_job_items_status" json:"job_id"`
	NaturalKey string     `gorm:"type:text;not null;index:idx_job_items_key,unique" json:"natural_key"`
	DetailURL  string     `gorm:"type:text" json:"detail_url,omitempty"`
	Title      string     `gorm:"type:text" json:"title,omitempty"`
	Seq        int        `gorm:"not null;default:0;index" json:"seq"`
	Status     ItemStatus `gorm:"type:text;index:idx_job_items_status;default:pending" json:"status"`
	Error      string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the database table name for JobItem.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (JobItem) TableName() string {
	return "job_items"
}
