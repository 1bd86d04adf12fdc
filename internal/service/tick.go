package service

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jonas/shelfscout/internal/domain"
	"github.com/jonas/shelfscout/internal/logger"
	"github.com/jonas/shelfscout/internal/repository"
	"github.com/jonas/shelfscout/internal/source"
	"github.com/jonas/shelfscout/internal/storage"
)

// DefaultClaimTimeout applies when the caller supplies none. Long enough to
// survive normal inter-tick gaps, short enough to rescue a dead worker's job
// within an acceptable window.
const DefaultClaimTimeout = 30 * time.Minute

// DefaultItemsPerTick bounds a tick when neither the job nor the caller
// configures a batch size.
const DefaultItemsPerTick = 20

// TickConfig holds tick pacing configuration.
type TickConfig struct {
	ItemsPerTick int
	ClaimTimeout time.Duration
	// Randomized delay inserted between items to avoid tripping
	// source-side bot defenses.
	DelayMin time.Duration
	DelayMax time.Duration
}

// TickOptions are per-call overrides supplied by the transport layer.
type TickOptions struct {
	ItemsPerTick int
	ClaimTimeout time.Duration
}

// TickResult reports what one tick did.
type TickResult struct {
	JobID            string                  `json:"job_id"`
	Processed        int                     `json:"processed"`
	Succeeded        int                     `json:"succeeded"`
	Failed           int                     `json:"failed"`
	RemainingPending int64                   `json:"remaining_pending"`
	Status           domain.JobStatus        `json:"status"`
	NoOp             bool                    `json:"no_op"`
	Claim            *repository.ClaimResult `json:"claim,omitempty"`
}

// TickService advances crawl jobs one bounded batch at a time. It keeps no
// state between ticks; everything lives in the job record and the ledger.
type TickService struct {
	jobs      JobStore
	items     ItemStore
	events    EventStore
	registry  *source.Registry
	snapshots storage.SnapshotStore // nil disables snapshot archiving
	logger    *logger.Logger
	cfg       TickConfig

	sleep func(time.Duration)
}

// NewTickService creates a new tick service.
func NewTickService(
	jobs JobStore,
	items ItemStore,
	events EventStore,
	registry *source.Registry,
	snapshots storage.SnapshotStore,
	log *logger.Logger,
	cfg TickConfig,
) *TickService {
	if cfg.ItemsPerTick <= 0 {
		cfg.ItemsPerTick = DefaultItemsPerTick
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = DefaultClaimTimeout
	}
	return &TickService{
		jobs:      jobs,
		items:     items,
		events:    events,
		registry:  registry,
		snapshots: snapshots,
		logger:    log,
		cfg:       cfg,
		sleep:     time.Sleep,
	}
}

// scope seeds ctx with the service logger unless the caller (e.g. HTTP
// middleware) already attached a request-scoped one.
func (s *TickService) scope(ctx context.Context) context.Context {
	if !logger.Has(ctx) {
		ctx = s.logger.WithContext(ctx)
	}
	return ctx
}

func (s *TickService) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx)
}

// RunTick advances one job by at most one batch of pending items.
//
// The call is idempotent and cheap to repeat: a terminal job or a job
// currently claimed by another worker yields a no-op result, not an error.
// Item-level scrape/save failures are recorded on the ledger and never
// abort the batch; infrastructure failures abort the remainder and leave
// the job in its in-progress status so a future tick can resume.
//
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job to advance.
//   - workerID: identity of the calling worker.
//   - opts: per-call overrides; nil uses service defaults.
// Returns:
//   - *TickResult: what this tick did, including the claim outcome.
//   - error: non-nil on infrastructure failure; ledger state stays
//     consistent for resumption.
func (s *TickService) RunTick(ctx context.Context, jobID, workerID string, opts *TickOptions) (*TickResult, error) {
	ctx = s.scope(ctx)
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldJobID:    jobID,
		logger.FieldWorkerID: workerID,
	})

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	result := &TickResult{JobID: jobID, Status: job.Status}

	if job.Status.IsTerminal() {
		result.NoOp = true
		s.log(ctx).WithField(logger.FieldStatus, string(job.Status)).Debug("Tick skipped: job is terminal")
		return result, nil
	}

	claim, err := s.jobs.TryClaim(ctx, jobID, workerID, s.claimTimeout(opts))
	if err != nil {
		return nil, fmt.Errorf("claim attempt failed: %w", err)
	}
	result.Claim = claim
	if !claim.Granted {
		result.NoOp = true
		s.log(ctx).WithFields(logger.Fields{
			"owner":  claim.Owner,
			"reason": claim.Reason,
		}).Info("Tick skipped: claim rejected")
		return result, nil
	}

	if job.Status == domain.JobStatusPending {
		if err := s.jobs.StartIfPending(ctx, jobID, domain.JobStatusCrawling); err != nil {
			return nil, fmt.Errorf("failed to start job: %w", err)
		}
		result.Status = domain.JobStatusCrawling
	}

	drv, err := s.resolveDriver(job)
	if err != nil {
		// No driver is fatal to the job, not just the tick; operators must
		// fix the configuration and re-run.
		msg := err.Error()
		if failErr := s.jobs.Fail(ctx, jobID, msg); failErr != nil {
			return nil, fmt.Errorf("failed to mark job failed: %w", failErr)
		}
		s.appendEvent(ctx, jobID, domain.EventTypeError, msg)
		result.Status = domain.JobStatusFailed
		return result, err
	}
	ctx = logger.SetSource(ctx, drv.ID())

	batch, err := s.items.ListPending(ctx, jobID, s.itemsPerTick(job, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to read pending items: %w", err)
	}

	if len(batch) == 0 {
		if err := s.jobs.Complete(ctx, jobID); err != nil {
			return nil, fmt.Errorf("failed to complete job: %w", err)
		}
		s.appendEvent(ctx, jobID, domain.EventTypeInfo, "no pending items left, job completed")
		result.Status = domain.JobStatusCompleted
		return result, nil
	}

	start := time.Now()
	for i, item := range batch {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		abort, err := s.processItem(ctx, jobID, drv, &item, result)
		if abort {
			s.appendEvent(ctx, jobID, domain.EventTypeError,
				fmt.Sprintf("batch aborted at item %s: %v", item.NaturalKey, err))
			return result, err
		}

		// Pace the source; never sleep after the last item.
		if i < len(batch)-1 {
			s.sleep(s.interItemDelay())
		}
	}

	remaining, err := s.items.CountByStatus(ctx, jobID, domain.ItemStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to count remaining items: %w", err)
	}
	result.RemainingPending = remaining

	if remaining == 0 {
		if err := s.jobs.Complete(ctx, jobID); err != nil {
			return nil, fmt.Errorf("failed to complete job: %w", err)
		}
		result.Status = domain.JobStatusCompleted
		s.appendEvent(ctx, jobID, domain.EventTypeInfo,
			fmt.Sprintf("job completed: %d succeeded, %d failed in final tick", result.Succeeded, result.Failed))
	} else {
		result.Status = domain.JobStatusCrawling
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldCount:      result.Processed,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		"remaining":            remaining,
	}).Infof("Tick finished: %d succeeded, %d failed", result.Succeeded, result.Failed)

	return result, nil
}

// processItem runs scrape+save for one ledger row. Item-level failures are
// converted to ledger state and events; only infrastructure failures return
// abort=true.
func (s *TickService) processItem(ctx context.Context, jobID string, drv source.Driver, item *domain.JobItem, result *TickResult) (abort bool, err error) {
	ctx = logger.WithField(ctx, logger.FieldItemKey, item.NaturalKey)

	scraped, err := drv.Scrape(ctx, item.NaturalKey)
	if err != nil && source.IsFatal(err) {
		return true, err
	}

	if err != nil || scraped == nil {
		// No exploitable data and scrape errors are treated identically;
		// the distinction only matters for the event message.
		msg := "no exploitable data"
		if err != nil {
			msg = err.Error()
		}
		s.recordItemFailure(ctx, jobID, item, msg, result)
		return false, nil
	}

	s.archiveSnapshot(ctx, drv.ID(), scraped)

	destID, err := drv.Save(ctx, scraped)
	if err != nil {
		s.recordItemFailure(ctx, jobID, item, fmt.Sprintf("save failed: %v", err), result)
		return false, nil
	}

	if err := s.items.MarkDone(ctx, item.ID); err != nil {
		return true, fmt.Errorf("failed to mark item done: %w", err)
	}
	if err := s.jobs.AddProgress(ctx, jobID, 1, 0); err != nil {
		return true, fmt.Errorf("failed to update progress: %w", err)
	}

	result.Processed++
	result.Succeeded++
	s.appendEvent(ctx, jobID, domain.EventTypeSuccess,
		fmt.Sprintf("item %s saved as %s", item.NaturalKey, destID))
	return false, nil
}

// recordItemFailure marks one ledger row failed and bumps the counters.
func (s *TickService) recordItemFailure(ctx context.Context, jobID string, item *domain.JobItem, msg string, result *TickResult) {
	if err := s.items.MarkFailed(ctx, item.ID, msg); err != nil {
		s.log(ctx).WithError(err).Error("Failed to mark item failed")
	}
	if err := s.jobs.AddProgress(ctx, jobID, 0, 1); err != nil {
		s.log(ctx).WithError(err).Error("Failed to update progress")
	}
	result.Processed++
	result.Failed++
	s.appendEvent(ctx, jobID, domain.EventTypeError,
		fmt.Sprintf("item %s failed: %s", item.NaturalKey, msg))
}

// archiveSnapshot uploads the raw scrape payload. Best effort: archive
// failures are logged, never surfaced.
func (s *TickService) archiveSnapshot(ctx context.Context, sourceID string, scraped *source.ScrapedItem) {
	if s.snapshots == nil || len(scraped.Raw) == 0 {
		return
	}
	key := fmt.Sprintf("%s/%s.json", sourceID, scraped.NaturalKey)
	err := s.snapshots.Upload(ctx, key, bytes.NewReader(scraped.Raw), int64(len(scraped.Raw)), "application/json")
	if err != nil {
		s.log(ctx).WithError(err).Warn("Failed to archive scrape snapshot")
	}
}

// appendEvent writes to the event log, swallowing failures: the tick's
// correctness must not depend on observability.
func (s *TickService) appendEvent(ctx context.Context, jobID string, typ domain.EventType, msg string) {
	if err := s.events.Append(ctx, jobID, typ, msg); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to append job event")
	}
}

// resolveDriver picks the driver from the job's source id, falling back to
// the listing URL hostname.
func (s *TickService) resolveDriver(job *domain.CrawlJob) (source.Driver, error) {
	if job.SourceID != "" {
		return s.registry.ResolveByID(job.SourceID)
	}
	if job.Config.ListingURL != "" {
		return s.registry.ResolveByHostname(job.Config.ListingURL)
	}
	return nil, fmt.Errorf("%w: job %s has neither source id nor listing URL", source.ErrNoDriver, job.ID)
}

func (s *TickService) claimTimeout(opts *TickOptions) time.Duration {
	if opts != nil && opts.ClaimTimeout > 0 {
		return opts.ClaimTimeout
	}
	return s.cfg.ClaimTimeout
}

func (s *TickService) itemsPerTick(job *domain.CrawlJob, opts *TickOptions) int {
	if opts != nil && opts.ItemsPerTick > 0 {
		return opts.ItemsPerTick
	}
	if job.ItemsPerTick > 0 {
		return job.ItemsPerTick
	}
	return s.cfg.ItemsPerTick
}

func (s *TickService) interItemDelay() time.Duration {
	min, max := s.cfg.DelayMin, s.cfg.DelayMax
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
