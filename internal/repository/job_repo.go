package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jonas/shelfscout/internal/domain"
	"gorm.io/gorm"
)

// terminalStatuses are excluded from every claim and progress write.
var terminalStatuses = []domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusFailed}

// ClaimResult reports the outcome of a claim attempt. A rejection is not an
// error; it tells the caller to no-op this invocation.
type ClaimResult struct {
	Granted bool          `json:"granted"`
	Owner   string        `json:"owner,omitempty"`
	HeldFor time.Duration `json:"held_for,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// JobRepository handles crawl job persistence, including the claim lock.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *JobRepository) Create(ctx context.Context, job *domain.CrawlJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.CrawlJob: job record if found.
//   - error: non-nil if lookup fails.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.CrawlJob, error) {
	var job domain.CrawlJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// List retrieves jobs ordered by creation time descending.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.CrawlJob: matching job records.
//   - error: non-nil if the query fails.
func (r *JobRepository) List(ctx context.Context, limit, offset int) ([]domain.CrawlJob, error) {
	var jobs []domain.CrawlJob
	if err := r.db.WithContext(ctx).
		Limit(limit).
		Offset(offset).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// TryClaim attempts to acquire or refresh the claim lock on a job.
//
// The grant decision is a single guarded UPDATE so that two workers racing
// on the same job cannot both observe it as unclaimed. A claim is granted
// when the job is non-terminal and either unclaimed, already held by the
// same worker (heartbeat refresh), or stale (held longer than timeout).
//
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job to claim.
//   - workerID: identity of the claiming worker.
//   - timeout: age after which a foreign claim becomes takeable.
// Returns:
//   - *ClaimResult: grant or rejection with the current owner and held time.
//   - error: non-nil only on infrastructure failure, never on rejection.
func (r *JobRepository) TryClaim(ctx context.Context, jobID, workerID string, timeout time.Duration) (*ClaimResult, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-timeout)

	claimable := r.db.
		Where("claimed_by = ? OR claimed_by IS NULL", "").
		Or("claimed_by = ?", workerID).
		Or("claimed_at IS NOT NULL AND claimed_at <= ?", cutoff)

	res := r.db.WithContext(ctx).
		Model(&domain.CrawlJob{}).
		Where("id = ? AND status NOT IN ?", jobID, terminalStatuses).
		Where(claimable).
		Updates(map[string]interface{}{
			"claimed_by": workerID,
			"claimed_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}

	if res.RowsAffected == 1 {
		return &ClaimResult{Granted: true, Owner: workerID}, nil
	}

	// Rejected; load the row to report why.
	job, err := r.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("claim rejected and job unreadable: %w", err)
	}

	result := &ClaimResult{Granted: false, Owner: job.ClaimedBy}
	if job.Status.IsTerminal() {
		result.Reason = fmt.Sprintf("job is %s", job.Status)
		return result, nil
	}
	if job.ClaimedAt != nil {
		result.HeldFor = now.Sub(job.ClaimedAt.UTC())
	}
	result.Reason = fmt.Sprintf("claimed by %s for %s", job.ClaimedBy, result.HeldFor.Round(time.Second))
	return result, nil
}

// StartIfPending moves a pending job into an in-progress status and stamps
// started_at. A no-op when the job already left pending.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - to: in-progress status to enter (discovering or crawling).
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) StartIfPending(ctx context.Context, id string, to domain.JobStatus) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&domain.CrawlJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     to,
			"started_at": now,
		}).Error
}

// SetStatus updates the status of a non-terminal job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - status: new non-terminal status.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) SetStatus(ctx context.Context, id string, status domain.JobStatus) error {
	return r.db.WithContext(ctx).
		Model(&domain.CrawlJob{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Update("status", status).Error
}

// Complete marks a job completed and releases the claim. Terminal states
// never carry a claim.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) Complete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&domain.CrawlJob{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusCompleted,
			"completed_at": now,
			"claimed_by":   "",
			"claimed_at":   nil,
		}).Error
}

// Fail marks a job failed with an error message and releases the claim.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - msg: operator-visible failure description.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) Fail(ctx context.Context, id, msg string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&domain.CrawlJob{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusFailed,
			"error":        msg,
			"completed_at": now,
			"claimed_by":   "",
			"claimed_at":   nil,
		}).Error
}

// AddProgress atomically adjusts the success/failure counters. Ticks only
// ever pass positive deltas; the operator retry path passes a negative failed
// delta so reset rows are not double-counted when re-processed.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - succeeded: delta for succeeded items.
//   - failed: delta for failed items.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) AddProgress(ctx context.Context, id string, succeeded, failed int) error {
	return r.db.WithContext(ctx).
		Model(&domain.CrawlJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"succeeded_items": gorm.Expr("succeeded_items + ?", succeeded),
			"failed_items":    gorm.Expr("failed_items + ?", failed),
		}).Error
}

// SetDiscoveryCounts records the outcome of the discovery phase.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - total: total ledger rows after discovery.
//   - discovered: items reported by the source listing.
//   - created: ledger rows newly inserted.
//   - existing: items already present in the ledger.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) SetDiscoveryCounts(ctx context.Context, id string, total, discovered, created, existing int) error {
	return r.db.WithContext(ctx).
		Model(&domain.CrawlJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_items":      total,
			"discovered_items": discovered,
			"created_items":    created,
			"existing_items":   existing,
		}).Error
}

// SetTotalItems sets the ledger size for jobs seeded at creation time.
func (r *JobRepository) SetTotalItems(ctx context.Context, id string, total int) error {
	return r.db.WithContext(ctx).
		Model(&domain.CrawlJob{}).
		Where("id = ?", id).
		Update("total_items", total).Error
}

// Reopen resets a terminal job back to pending so a future tick can resume
// it. Applies to failed jobs and to completed jobs whose failed rows an
// operator wants re-processed; callers gate the completed case on having
// rows to retry. In-progress jobs are left alone.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - bool: true if the job was reopened.
//   - error: non-nil if the update fails.
func (r *JobRepository) Reopen(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.CrawlJob{}).
		Where("id = ? AND status IN ?", id, terminalStatuses).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusPending,
			"error":        "",
			"completed_at": nil,
			"claimed_by":   "",
			"claimed_at":   nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
