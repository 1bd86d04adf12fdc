package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonas/shelfscout/internal/domain"
)

func ledgerRow(jobID, key string, seq int) domain.JobItem {
	return domain.JobItem{
		ID:         uuid.New().String(),
		JobID:      jobID,
		NaturalKey: key,
		Seq:        seq,
		Status:     domain.ItemStatusPending,
	}
}

func TestInsertIgnoreDuplicatesSkipsExistingKeys(t *testing.T) {
	repo := NewItemRepository(openTestDB(t))
	ctx := context.Background()

	created, err := repo.InsertIgnoreDuplicates(ctx, []domain.JobItem{
		ledgerRow("job-1", "a", 1),
		ledgerRow("job-1", "b", 2),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 2 {
		t.Fatalf("created = %d, want 2", created)
	}

	// Rediscovery overlaps one key; only the new one lands.
	created, err = repo.InsertIgnoreDuplicates(ctx, []domain.JobItem{
		ledgerRow("job-1", "b", 3),
		ledgerRow("job-1", "c", 4),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}

	total, err := repo.CountAll(ctx, "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Errorf("ledger rows = %d, want 3", total)
	}

	// The same key under a different job is a distinct row.
	created, err = repo.InsertIgnoreDuplicates(ctx, []domain.JobItem{ledgerRow("job-2", "a", 1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Errorf("cross-job insert created = %d, want 1", created)
	}
}

func TestListPendingReturnsLedgerOrder(t *testing.T) {
	repo := NewItemRepository(openTestDB(t))
	ctx := context.Background()

	rows := []domain.JobItem{
		ledgerRow("job-1", "third", 3),
		ledgerRow("job-1", "first", 1),
		ledgerRow("job-1", "second", 2),
	}
	if _, err := repo.InsertIgnoreDuplicates(ctx, rows); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	pending, err := repo.ListPending(ctx, "job-1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("rows = %d, want 2 (limit applies)", len(pending))
	}
	if pending[0].NaturalKey != "first" || pending[1].NaturalKey != "second" {
		t.Errorf("order = %s, %s; want first, second", pending[0].NaturalKey, pending[1].NaturalKey)
	}
}

func TestMarkDoneIsOneWay(t *testing.T) {
	repo := NewItemRepository(openTestDB(t))
	ctx := context.Background()

	row := ledgerRow("job-1", "a", 1)
	if _, err := repo.InsertIgnoreDuplicates(ctx, []domain.JobItem{row}); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	if err := repo.MarkDone(ctx, row.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A late failure report for an already-done row must not regress it.
	if err := repo.MarkFailed(ctx, row.ID, "late error"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done, err := repo.CountByStatus(ctx, "job-1", domain.ItemStatusDone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done != 1 {
		t.Errorf("done rows = %d, want 1", done)
	}
}

func TestResetFailedRestoresPendingOnly(t *testing.T) {
	repo := NewItemRepository(openTestDB(t))
	ctx := context.Background()

	a := ledgerRow("job-1", "a", 1)
	b := ledgerRow("job-1", "b", 2)
	c := ledgerRow("job-1", "c", 3)
	if _, err := repo.InsertIgnoreDuplicates(ctx, []domain.JobItem{a, b, c}); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}
	if err := repo.MarkDone(ctx, a.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.MarkFailed(ctx, b.ID, "timeout"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reset, err := repo.ResetFailed(ctx, "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reset != 1 {
		t.Errorf("reset = %d, want 1", reset)
	}

	pending, _ := repo.CountByStatus(ctx, "job-1", domain.ItemStatusPending)
	done, _ := repo.CountByStatus(ctx, "job-1", domain.ItemStatusDone)
	if pending != 2 || done != 1 {
		t.Errorf("pending/done = %d/%d, want 2/1", pending, done)
	}
}

func TestMaxSeqContinuesNumbering(t *testing.T) {
	repo := NewItemRepository(openTestDB(t))
	ctx := context.Background()

	max, err := repo.MaxSeq(ctx, "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if max != 0 {
		t.Errorf("empty ledger max seq = %d, want 0", max)
	}

	if _, err := repo.InsertIgnoreDuplicates(ctx, []domain.JobItem{
		ledgerRow("job-1", "a", 1),
		ledgerRow("job-1", "b", 7),
	}); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	max, err = repo.MaxSeq(ctx, "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if max != 7 {
		t.Errorf("max seq = %d, want 7", max)
	}
}

func TestEventLogIsAppendOnlyAndPollable(t *testing.T) {
	repo := NewEventRepository(openTestDB(t))
	ctx := context.Background()

	if err := repo.Append(ctx, "job-1", domain.EventTypeInfo, "job created"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	mark := time.Now().UTC()
	time.Sleep(10 * time.Millisecond)
	if err := repo.Append(ctx, "job-1", domain.EventTypeSuccess, "item saved"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all, err := repo.ListSince(ctx, "job-1", time.Time{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("events = %d, want 2", len(all))
	}
	if all[0].Message != "job created" {
		t.Errorf("events not in append order: first = %q", all[0].Message)
	}

	// Incremental poll picks up only what happened after the cursor.
	recent, err := repo.ListSince(ctx, "job-1", mark, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) != 1 || recent[0].Message != "item saved" {
		t.Errorf("incremental poll = %d events, want just the item save", len(recent))
	}
}
