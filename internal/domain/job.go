package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the lifecycle status of a crawl job.
// Values include JobStatusPending, JobStatusDiscovering, JobStatusCrawling,
// JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusDiscovering JobStatus = "discovering"
	JobStatusCrawling    JobStatus = "crawling"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
)

// IsTerminal reports whether the status accepts no further transitions.
// Parameters: none.
// Returns:
//   - bool: true for completed and failed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobKind discriminates what a job does; drivers read the kind-specific
// config fields, the tick controller does not.
type JobKind string

const (
	JobKindDiscovery       JobKind = "discovery"
	JobKindCrawl           JobKind = "crawl"
	JobKindAggregation     JobKind = "aggregation"
	JobKindVideo           JobKind = "video"
	JobKindIngredientCrawl JobKind = "ingredient_crawl"
)

// JobScope narrows which items a job covers.
type JobScope string

const (
	JobScopeFull     JobScope = "full"
	JobScopePartial  JobScope = "partial"
	JobScopeSelected JobScope = "selected"
)

// JobConfig is the kind-specific configuration of a job, stored as JSON.
// Fields not used by a kind stay at their zero value.
type JobConfig struct {
	// ListingURL is the discovery entry point (category page, channel URL).
	ListingURL string `json:"listing_url,omitempty"`
	// GTINs seeds the ledger directly for targeted jobs.
	GTINs []string `json:"gtins,omitempty"`
	// SourcePriority orders sources for multi-source aggregation.
	SourcePriority []string `json:"source_priority,omitempty"`
	Scope          JobScope `json:"scope,omitempty"`
	Language       string   `json:"language,omitempty"`
}

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded representation of the config.
//   - error: non-nil if marshaling fails.
func (c JobConfig) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (c *JobConfig) Scan(value interface{}) error {
	if value == nil {
		*c = JobConfig{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JobConfig")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, c)
}

// CrawlJob represents one discovery/crawl/aggregation run and its progress.
// ClaimedBy is non-empty only while a worker owns a non-terminal job.
type CrawlJob struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	Kind         JobKind   `gorm:"type:text;not null;index" json:"kind"`
	SourceID     string    `gorm:"type:text;not null;index" json:"source_id"`
	Status       JobStatus `gorm:"type:text;index;default:pending" json:"status"`
	Config       JobConfig `gorm:"type:text" json:"config"`
	ItemsPerTick int       `gorm:"default:0" json:"items_per_tick"`

	ClaimedBy string     `gorm:"type:text;default:''" json:"claimed_by,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`

	TotalItems      int `gorm:"default:0" json:"total_items"`
	SucceededItems  int `gorm:"default:0" json:"succeeded_items"`
	FailedItems     int `gorm:"default:0" json:"failed_items"`
	DiscoveredItems int `gorm:"default:0" json:"discovered_items"`
	CreatedItems    int `gorm:"default:0" json:"created_items"`
	ExistingItems   int `gorm:"default:0" json:"existing_items"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for CrawlJob.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (CrawlJob) TableName() string {
	return "crawl_jobs"
}
