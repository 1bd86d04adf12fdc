package repository

import (
	"context"
	"time"

	"github.com/jonas/shelfscout/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ItemRepository handles the per-job item ledger.
type ItemRepository struct {
	db *gorm.DB
}

// NewItemRepository creates a new ItemRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ItemRepository: repository instance bound to db.
func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// InsertIgnoreDuplicates inserts ledger rows, silently skipping rows whose
// (job_id, natural_key) already exists. Rediscovery is a no-op, not a
// duplicate row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - items: ledger rows to insert.
// Returns:
//   - int: number of rows actually created.
//   - error: non-nil if the insert fails.
func (r *ItemRepository) InsertIgnoreDuplicates(ctx context.Context, items []domain.JobItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}, {Name: "natural_key"}},
		DoNothing: true,
	}).Create(&items)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// ListPending returns up to limit pending rows for a job in deterministic
// ledger order, so repeated ticks make monotonic forward progress.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: owning job.
//   - limit: maximum number of rows to return.
// Returns:
//   - []domain.JobItem: pending rows in insertion order.
//   - error: non-nil if the query fails.
func (r *ItemRepository) ListPending(ctx context.Context, jobID string, limit int) ([]domain.JobItem, error) {
	var items []domain.JobItem
	if err := r.db.WithContext(ctx).
		Where("job_id = ? AND status = ?", jobID, domain.ItemStatusPending).
		Order("seq ASC, id ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// MarkDone transitions a row to done.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: ledger row ID.
// Returns:
//   - error: non-nil if the update fails.
func (r *ItemRepository) MarkDone(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&domain.JobItem{}).
		Where("id = ? AND status = ?", id, domain.ItemStatusPending).
		Updates(map[string]interface{}{
			"status":     domain.ItemStatusDone,
			"error":      "",
			"updated_at": time.Now().UTC(),
		}).Error
}

// MarkFailed transitions a row to failed and records the error message.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: ledger row ID.
//   - msg: failure description for operators.
// Returns:
//   - error: non-nil if the update fails.
func (r *ItemRepository) MarkFailed(ctx context.Context, id, msg string) error {
	return r.db.WithContext(ctx).
		Model(&domain.JobItem{}).
		Where("id = ? AND status = ?", id, domain.ItemStatusPending).
		Updates(map[string]interface{}{
			"status":     domain.ItemStatusFailed,
			"error":      msg,
			"updated_at": time.Now().UTC(),
		}).Error
}

// CountByStatus counts a job's ledger rows in the given status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: owning job.
//   - status: ledger status to count.
// Returns:
//   - int64: number of matching rows.
//   - error: non-nil if the query fails.
func (r *ItemRepository) CountByStatus(ctx context.Context, jobID string, status domain.ItemStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.JobItem{}).
		Where("job_id = ? AND status = ?", jobID, status).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountAll counts all ledger rows of a job.
func (r *ItemRepository) CountAll(ctx context.Context, jobID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.JobItem{}).
		Where("job_id = ?", jobID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// MaxSeq returns the highest seq assigned within a job's ledger, 0 when the
// ledger is empty. New rows continue numbering from here.
func (r *ItemRepository) MaxSeq(ctx context.Context, jobID string) (int, error) {
	var maxSeq int
	if err := r.db.WithContext(ctx).
		Model(&domain.JobItem{}).
		Where("job_id = ?", jobID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error; err != nil {
		return 0, err
	}
	return maxSeq, nil
}

// ResetFailed flips a job's failed rows back to pending for operator retry.
// The core never does this on its own.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: owning job.
// Returns:
//   - int: number of rows reset.
//   - error: non-nil if the update fails.
func (r *ItemRepository) ResetFailed(ctx context.Context, jobID string) (int, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.JobItem{}).
		Where("job_id = ? AND status = ?", jobID, domain.ItemStatusFailed).
		Updates(map[string]interface{}{
			"status": domain.ItemStatusPending,
			"error":  "",
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// ListByJob returns a job's ledger rows in ledger order with pagination.
func (r *ItemRepository) ListByJob(ctx context.Context, jobID string, limit, offset int) ([]domain.JobItem, error) {
	var items []domain.JobItem
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("seq ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
