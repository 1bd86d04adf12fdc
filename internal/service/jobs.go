package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonas/shelfscout/internal/domain"
	"github.com/jonas/shelfscout/internal/logger"
)

// CreateJobInput carries everything needed to register a new crawl job.
type CreateJobInput struct {
	Kind         domain.JobKind   `json:"kind" binding:"required"`
	SourceID     string           `json:"source_id"`
	Config       domain.JobConfig `json:"config"`
	ItemsPerTick int              `json:"items_per_tick"`
}

// RetryOutcome reports what a retry reset.
type RetryOutcome struct {
	JobID      string           `json:"job_id"`
	ItemsReset int              `json:"items_reset"`
	Reopened   bool             `json:"reopened"`
	Status     domain.JobStatus `json:"status"`
}

// JobService covers job lifecycle outside the tick loop: creation, reads,
// and retrying failed work.
type JobService struct {
	jobs   JobStore
	items  ItemStore
	events EventStore
	logger *logger.Logger
}

// NewJobService creates a new job service.
func NewJobService(jobs JobStore, items ItemStore, events EventStore, log *logger.Logger) *JobService {
	return &JobService{
		jobs:   jobs,
		items:  items,
		events: events,
		logger: log,
	}
}

// scope seeds ctx with the service logger unless the caller (e.g. HTTP
// middleware) already attached a request-scoped one.
func (s *JobService) scope(ctx context.Context) context.Context {
	if !logger.Has(ctx) {
		ctx = s.logger.WithContext(ctx)
	}
	return ctx
}

func (s *JobService) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx)
}

// CreateJob registers a pending job. When the config names GTINs directly
// the ledger is seeded immediately and the job can be ticked without a
// discovery pass.
//
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - input: job kind, source, and kind-specific config.
// Returns:
//   - *domain.CrawlJob: the created record.
//   - error: non-nil if validation or persistence fails.
func (s *JobService) CreateJob(ctx context.Context, input CreateJobInput) (*domain.CrawlJob, error) {
	ctx = s.scope(ctx)
	if input.SourceID == "" && input.Config.ListingURL == "" && len(input.Config.GTINs) == 0 {
		return nil, fmt.Errorf("job needs a source id, a listing URL, or explicit GTINs")
	}

	now := time.Now().UTC()
	job := &domain.CrawlJob{
		ID:           uuid.New().String(),
		Kind:         input.Kind,
		SourceID:     input.SourceID,
		Status:       domain.JobStatusPending,
		Config:       input.Config,
		ItemsPerTick: input.ItemsPerTick,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	ctx = logger.SetJobID(ctx, job.ID)

	if len(input.Config.GTINs) > 0 {
		rows := make([]domain.JobItem, 0, len(input.Config.GTINs))
		for i, gtin := range input.Config.GTINs {
			rows = append(rows, domain.JobItem{
				ID:         uuid.New().String(),
				JobID:      job.ID,
				NaturalKey: gtin,
				Seq:        i + 1,
				Status:     domain.ItemStatusPending,
			})
		}
		created, err := s.items.InsertIgnoreDuplicates(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to seed job items: %w", err)
		}
		if err := s.jobs.SetTotalItems(ctx, job.ID, created); err != nil {
			return nil, fmt.Errorf("failed to record item total: %w", err)
		}
		job.TotalItems = created
	}

	s.appendEvent(ctx, job.ID, domain.EventTypeInfo,
		fmt.Sprintf("job created (kind=%s, source=%s)", job.Kind, job.SourceID))
	s.log(ctx).WithFields(logger.Fields{
		"kind":             string(job.Kind),
		logger.FieldSource: job.SourceID,
	}).Info("Job created")

	return job, nil
}

// RetryFailed resets the job's failed ledger rows to pending and reopens a
// terminal job so ticks can resume. Done rows are left untouched. A completed
// job qualifies only when it carries failed rows to redo; retrying a clean
// completed job is an error.
//
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job to retry.
// Returns:
//   - *RetryOutcome: how many rows were reset and the resulting status.
//   - error: non-nil on persistence failure or when there is nothing to retry.
func (s *JobService) RetryFailed(ctx context.Context, jobID string) (*RetryOutcome, error) {
	ctx = s.scope(ctx)
	ctx = logger.SetJobID(ctx, jobID)

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status == domain.JobStatusCompleted {
		failedRows, err := s.items.CountByStatus(ctx, jobID, domain.ItemStatusFailed)
		if err != nil {
			return nil, fmt.Errorf("failed to count failed items: %w", err)
		}
		if failedRows == 0 {
			return nil, fmt.Errorf("job %s is completed with no failed items, nothing to retry", jobID)
		}
	}

	reset, err := s.items.ResetFailed(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to reset items: %w", err)
	}
	if reset > 0 {
		// The reset rows will be counted again when re-processed; hand their
		// failures back so succeeded+failed can never exceed the total.
		if err := s.jobs.AddProgress(ctx, jobID, 0, -reset); err != nil {
			return nil, fmt.Errorf("failed to adjust progress counters: %w", err)
		}
	}

	reopened := false
	if job.Status == domain.JobStatusFailed || (job.Status == domain.JobStatusCompleted && reset > 0) {
		reopened, err = s.jobs.Reopen(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("failed to reopen job: %w", err)
		}
	}

	status := job.Status
	if reopened {
		status = domain.JobStatusPending
	}
	s.appendEvent(ctx, jobID, domain.EventTypeInfo,
		fmt.Sprintf("retry requested: %d failed items reset", reset))
	s.log(ctx).WithField(logger.FieldCount, reset).Info("Failed items reset for retry")

	return &RetryOutcome{
		JobID:      jobID,
		ItemsReset: reset,
		Reopened:   reopened,
		Status:     status,
	}, nil
}

// GetJob returns one job by id.
func (s *JobService) GetJob(ctx context.Context, id string) (*domain.CrawlJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// ListJobs returns jobs newest first.
func (s *JobService) ListJobs(ctx context.Context, limit, offset int) ([]domain.CrawlJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.jobs.List(ctx, limit, offset)
}

// ListItems returns the job's ledger rows in sequence order.
func (s *JobService) ListItems(ctx context.Context, jobID string, limit, offset int) ([]domain.JobItem, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.items.ListByJob(ctx, jobID, limit, offset)
}

// ListEvents returns events appended after the given instant, oldest first,
// for incremental polling.
func (s *JobService) ListEvents(ctx context.Context, jobID string, after time.Time, limit int) ([]domain.JobEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.events.ListSince(ctx, jobID, after, limit)
}

func (s *JobService) appendEvent(ctx context.Context, jobID string, typ domain.EventType, msg string) {
	if err := s.events.Append(ctx, jobID, typ, msg); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to append job event")
	}
}
