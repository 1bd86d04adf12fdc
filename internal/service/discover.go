package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonas/shelfscout/internal/domain"
	"github.com/jonas/shelfscout/internal/logger"
	"github.com/jonas/shelfscout/internal/repository"
)

// DiscoveryOutcome reports what one discovery run found.
type DiscoveryOutcome struct {
	JobID         string                  `json:"job_id"`
	TotalReported int                     `json:"total_reported"`
	Discovered    int                     `json:"discovered"`
	Created       int                     `json:"created"`
	Existing      int                     `json:"existing"`
	Status        domain.JobStatus        `json:"status"`
	NoOp          bool                    `json:"no_op"`
	Claim         *repository.ClaimResult `json:"claim,omitempty"`
}

// Discover walks the job's listing and populates the item ledger, leaving
// the job crawl-ready. Rediscovery is safe: rows whose (job, naturalKey)
// already exists are skipped, never duplicated.
//
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job whose ledger to populate.
//   - workerID: identity of the calling worker.
//   - opts: per-call overrides; nil uses service defaults.
// Returns:
//   - *DiscoveryOutcome: counts and resulting job status.
//   - error: non-nil on infrastructure or listing failure.
func (s *TickService) Discover(ctx context.Context, jobID, workerID string, opts *TickOptions) (*DiscoveryOutcome, error) {
	ctx = s.scope(ctx)
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldJobID:    jobID,
		logger.FieldWorkerID: workerID,
	})

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	outcome := &DiscoveryOutcome{JobID: jobID, Status: job.Status}

	if job.Status.IsTerminal() {
		outcome.NoOp = true
		return outcome, nil
	}

	claim, err := s.jobs.TryClaim(ctx, jobID, workerID, s.claimTimeout(opts))
	if err != nil {
		return nil, fmt.Errorf("claim attempt failed: %w", err)
	}
	outcome.Claim = claim
	if !claim.Granted {
		outcome.NoOp = true
		s.log(ctx).WithField("reason", claim.Reason).Info("Discovery skipped: claim rejected")
		return outcome, nil
	}

	if err := s.jobs.StartIfPending(ctx, jobID, domain.JobStatusDiscovering); err != nil {
		return nil, fmt.Errorf("failed to start job: %w", err)
	}

	drv, err := s.resolveDriver(job)
	if err != nil {
		msg := err.Error()
		if failErr := s.jobs.Fail(ctx, jobID, msg); failErr != nil {
			return nil, fmt.Errorf("failed to mark job failed: %w", failErr)
		}
		s.appendEvent(ctx, jobID, domain.EventTypeError, msg)
		outcome.Status = domain.JobStatusFailed
		return outcome, err
	}
	ctx = logger.SetSource(ctx, drv.ID())

	listing, err := drv.Discover(ctx, job.Config.ListingURL)
	if err != nil {
		// A failed listing walk leaves the job failed: there is nothing to
		// crawl and nothing a retry tick could resume.
		msg := fmt.Sprintf("discovery failed: %v", err)
		if failErr := s.jobs.Fail(ctx, jobID, msg); failErr != nil {
			return nil, fmt.Errorf("failed to mark job failed: %w", failErr)
		}
		s.appendEvent(ctx, jobID, domain.EventTypeError, msg)
		outcome.Status = domain.JobStatusFailed
		return outcome, err
	}

	maxSeq, err := s.items.MaxSeq(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger seq: %w", err)
	}

	rows := make([]domain.JobItem, 0, len(listing.Items))
	for i, it := range listing.Items {
		rows = append(rows, domain.JobItem{
			ID:         uuid.New().String(),
			JobID:      jobID,
			NaturalKey: it.NaturalKey,
			DetailURL:  it.DetailURL,
			Title:      it.Title,
			Seq:        maxSeq + i + 1,
			Status:     domain.ItemStatusPending,
		})
	}

	created, err := s.items.InsertIgnoreDuplicates(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ledger rows: %w", err)
	}

	total, err := s.items.CountAll(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to count ledger rows: %w", err)
	}

	outcome.TotalReported = listing.TotalReported
	outcome.Discovered = len(listing.Items)
	outcome.Created = created
	outcome.Existing = len(listing.Items) - created

	if err := s.jobs.SetDiscoveryCounts(ctx, jobID, int(total), outcome.Discovered, outcome.Created, outcome.Existing); err != nil {
		return nil, fmt.Errorf("failed to record discovery counts: %w", err)
	}
	if err := s.jobs.SetStatus(ctx, jobID, domain.JobStatusCrawling); err != nil {
		return nil, fmt.Errorf("failed to mark job crawl-ready: %w", err)
	}
	outcome.Status = domain.JobStatusCrawling

	s.appendEvent(ctx, jobID, domain.EventTypeInfo,
		fmt.Sprintf("discovery found %d items (%d new, source reported %d)",
			outcome.Discovered, outcome.Created, outcome.TotalReported))

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldCount: outcome.Discovered,
		"created":         outcome.Created,
		"reported":        outcome.TotalReported,
	}).Info("Discovery completed")

	return outcome, nil
}
