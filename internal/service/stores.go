package service

import (
	"context"
	"time"

	"github.com/jonas/shelfscout/internal/domain"
	"github.com/jonas/shelfscout/internal/repository"
)

// JobStore is the job persistence port (implementation: repository.JobRepository).
type JobStore interface {
	Create(ctx context.Context, job *domain.CrawlJob) error
	GetByID(ctx context.Context, id string) (*domain.CrawlJob, error)
	List(ctx context.Context, limit, offset int) ([]domain.CrawlJob, error)
	TryClaim(ctx context.Context, jobID, workerID string, timeout time.Duration) (*repository.ClaimResult, error)
	StartIfPending(ctx context.Context, id string, to domain.JobStatus) error
	SetStatus(ctx context.Context, id string, status domain.JobStatus) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, msg string) error
	AddProgress(ctx context.Context, id string, succeeded, failed int) error
	SetDiscoveryCounts(ctx context.Context, id string, total, discovered, created, existing int) error
	SetTotalItems(ctx context.Context, id string, total int) error
	Reopen(ctx context.Context, id string) (bool, error)
}

// ItemStore is the ledger persistence port (implementation: repository.ItemRepository).
type ItemStore interface {
	InsertIgnoreDuplicates(ctx context.Context, items []domain.JobItem) (int, error)
	ListPending(ctx context.Context, jobID string, limit int) ([]domain.JobItem, error)
	ListByJob(ctx context.Context, jobID string, limit, offset int) ([]domain.JobItem, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, msg string) error
	CountByStatus(ctx context.Context, jobID string, status domain.ItemStatus) (int64, error)
	CountAll(ctx context.Context, jobID string) (int64, error)
	MaxSeq(ctx context.Context, jobID string) (int, error)
	ResetFailed(ctx context.Context, jobID string) (int, error)
}

// EventStore is the event log port (implementation: repository.EventRepository).
type EventStore interface {
	Append(ctx context.Context, jobID string, typ domain.EventType, message string) error
	ListSince(ctx context.Context, jobID string, after time.Time, limit int) ([]domain.JobEvent, error)
}
