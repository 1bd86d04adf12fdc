package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"testing"

	"github.com/jonas/shelfscout/internal/domain"
	"github.com/jonas/shelfscout/internal/logger"
	"github.com/jonas/shelfscout/internal/repository"
	"github.com/jonas/shelfscout/internal/source"
	"gorm.io/gorm"
)

// fakeJobStore keeps a single job in memory and mirrors the repository's
// claim semantics so tick behavior can be tested without a database.
type fakeJobStore struct {
	job *domain.CrawlJob
}

func (f *fakeJobStore) Create(_ context.Context, job *domain.CrawlJob) error {
	f.job = job
	return nil
}

func (f *fakeJobStore) GetByID(_ context.Context, id string) (*domain.CrawlJob, error) {
	if f.job == nil || f.job.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	j := *f.job
	return &j, nil
}

func (f *fakeJobStore) List(_ context.Context, _, _ int) ([]domain.CrawlJob, error) {
	if f.job == nil {
		return nil, nil
	}
	return []domain.CrawlJob{*f.job}, nil
}

func (f *fakeJobStore) TryClaim(_ context.Context, jobID, workerID string, timeout time.Duration) (*repository.ClaimResult, error) {
	if f.job == nil || f.job.ID != jobID {
		return nil, gorm.ErrRecordNotFound
	}
	j := f.job
	if j.Status.IsTerminal() {
		return &repository.ClaimResult{Granted: false, Owner: j.ClaimedBy, Reason: "terminal"}, nil
	}
	now := time.Now().UTC()
	stale := j.ClaimedAt != nil && now.Sub(j.ClaimedAt.UTC()) >= timeout
	if j.ClaimedBy == "" || j.ClaimedBy == workerID || stale {
		j.ClaimedBy = workerID
		j.ClaimedAt = &now
		return &repository.ClaimResult{Granted: true, Owner: workerID}, nil
	}
	return &repository.ClaimResult{
		Granted: false,
		Owner:   j.ClaimedBy,
		HeldFor: now.Sub(j.ClaimedAt.UTC()),
		Reason:  "claimed by " + j.ClaimedBy,
	}, nil
}

func (f *fakeJobStore) StartIfPending(_ context.Context, id string, to domain.JobStatus) error {
	if f.job != nil && f.job.ID == id && f.job.Status == domain.JobStatusPending {
		now := time.Now().UTC()
		f.job.Status = to
		f.job.StartedAt = &now
	}
	return nil
}

func (f *fakeJobStore) SetStatus(_ context.Context, id string, status domain.JobStatus) error {
	if f.job != nil && f.job.ID == id && !f.job.Status.IsTerminal() {
		f.job.Status = status
	}
	return nil
}

func (f *fakeJobStore) Complete(_ context.Context, id string) error {
	if f.job != nil && f.job.ID == id && !f.job.Status.IsTerminal() {
		now := time.Now().UTC()
		f.job.Status = domain.JobStatusCompleted
		f.job.CompletedAt = &now
		f.job.ClaimedBy = ""
		f.job.ClaimedAt = nil
	}
	return nil
}

func (f *fakeJobStore) Fail(_ context.Context, id, msg string) error {
	if f.job != nil && f.job.ID == id && !f.job.Status.IsTerminal() {
		now := time.Now().UTC()
		f.job.Status = domain.JobStatusFailed
		f.job.Error = msg
		f.job.CompletedAt = &now
		f.job.ClaimedBy = ""
		f.job.ClaimedAt = nil
	}
	return nil
}

func (f *fakeJobStore) AddProgress(_ context.Context, id string, succeeded, failed int) error {
	if f.job != nil && f.job.ID == id {
		f.job.SucceededItems += succeeded
		f.job.FailedItems += failed
	}
	return nil
}

func (f *fakeJobStore) SetDiscoveryCounts(_ context.Context, id string, total, discovered, created, existing int) error {
	if f.job != nil && f.job.ID == id {
		f.job.TotalItems = total
		f.job.DiscoveredItems = discovered
		f.job.CreatedItems = created
		f.job.ExistingItems = existing
	}
	return nil
}

func (f *fakeJobStore) SetTotalItems(_ context.Context, id string, total int) error {
	if f.job != nil && f.job.ID == id {
		f.job.TotalItems = total
	}
	return nil
}

func (f *fakeJobStore) Reopen(_ context.Context, id string) (bool, error) {
	if f.job != nil && f.job.ID == id && f.job.Status.IsTerminal() {
		f.job.Status = domain.JobStatusPending
		f.job.Error = ""
		f.job.CompletedAt = nil
		f.job.ClaimedBy = ""
		f.job.ClaimedAt = nil
		return true, nil
	}
	return false, nil
}

// fakeItemStore keeps ledger rows in memory with (job, naturalKey) dedup.
type fakeItemStore struct {
	rows []domain.JobItem
}

func (f *fakeItemStore) InsertIgnoreDuplicates(_ context.Context, items []domain.JobItem) (int, error) {
	created := 0
	for _, it := range items {
		dup := false
		for _, existing := range f.rows {
			if existing.JobID == it.JobID && existing.NaturalKey == it.NaturalKey {
				dup = true
				break
			}
		}
		if !dup {
			f.rows = append(f.rows, it)
			created++
		}
	}
	return created, nil
}

func (f *fakeItemStore) ListPending(_ context.Context, jobID string, limit int) ([]domain.JobItem, error) {
	var out []domain.JobItem
	for _, it := range f.rows {
		if it.JobID == jobID && it.Status == domain.ItemStatusPending {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeItemStore) ListByJob(_ context.Context, jobID string, limit, offset int) ([]domain.JobItem, error) {
	var out []domain.JobItem
	for _, it := range f.rows {
		if it.JobID == jobID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (f *fakeItemStore) MarkDone(_ context.Context, id string) error {
	for i := range f.rows {
		if f.rows[i].ID == id && f.rows[i].Status == domain.ItemStatusPending {
			f.rows[i].Status = domain.ItemStatusDone
		}
	}
	return nil
}

func (f *fakeItemStore) MarkFailed(_ context.Context, id, msg string) error {
	for i := range f.rows {
		if f.rows[i].ID == id && f.rows[i].Status == domain.ItemStatusPending {
			f.rows[i].Status = domain.ItemStatusFailed
			f.rows[i].Error = msg
		}
	}
	return nil
}

func (f *fakeItemStore) CountByStatus(_ context.Context, jobID string, status domain.ItemStatus) (int64, error) {
	var n int64
	for _, it := range f.rows {
		if it.JobID == jobID && it.Status == status {
			n++
		}
	}
	return n, nil
}

func (f *fakeItemStore) CountAll(_ context.Context, jobID string) (int64, error) {
	var n int64
	for _, it := range f.rows {
		if it.JobID == jobID {
			n++
		}
	}
	return n, nil
}

func (f *fakeItemStore) MaxSeq(_ context.Context, jobID string) (int, error) {
	max := 0
	for _, it := range f.rows {
		if it.JobID == jobID && it.Seq > max {
			max = it.Seq
		}
	}
	return max, nil
}

func (f *fakeItemStore) ResetFailed(_ context.Context, jobID string) (int, error) {
	n := 0
	for i := range f.rows {
		if f.rows[i].JobID == jobID && f.rows[i].Status == domain.ItemStatusFailed {
			f.rows[i].Status = domain.ItemStatusPending
			f.rows[i].Error = ""
			n++
		}
	}
	return n, nil
}

// fakeEventStore appends events in memory.
type fakeEventStore struct {
	events []domain.JobEvent
}

func (f *fakeEventStore) Append(_ context.Context, jobID string, typ domain.EventType, message string) error {
	f.events = append(f.events, domain.JobEvent{
		ID:        fmt.Sprintf("evt-%d", len(f.events)+1),
		JobID:     jobID,
		Type:      typ,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (f *fakeEventStore) ListSince(_ context.Context, jobID string, after time.Time, limit int) ([]domain.JobEvent, error) {
	var out []domain.JobEvent
	for _, e := range f.events {
		if e.JobID == jobID && e.CreatedAt.After(after) {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeDriver scripts scrape behavior per natural key.
type fakeDriver struct {
	discovery   *source.DiscoveryResult
	discoverErr error
	scrapeErr   map[string]error
	missing     map[string]bool
	saveErr     map[string]error
	scrapedKeys []string
}

func (d *fakeDriver) ID() string               { return "fake" }
func (d *fakeDriver) DisplayName() string      { return "Fake Source" }
func (d *fakeDriver) MatchHostnames() []string { return []string{"fake.example"} }

func (d *fakeDriver) Discover(_ context.Context, _ string) (*source.DiscoveryResult, error) {
	if d.discoverErr != nil {
		return nil, d.discoverErr
	}
	if d.discovery != nil {
		return d.discovery, nil
	}
	return &source.DiscoveryResult{}, nil
}

func (d *fakeDriver) Scrape(_ context.Context, naturalKey string) (*source.ScrapedItem, error) {
	d.scrapedKeys = append(d.scrapedKeys, naturalKey)
	if err, ok := d.scrapeErr[naturalKey]; ok {
		return nil, err
	}
	if d.missing[naturalKey] {
		return nil, nil
	}
	return &source.ScrapedItem{
		NaturalKey: naturalKey,
		URL:        "https://fake.example/" + naturalKey,
		Raw:        []byte(`{}`),
	}, nil
}

func (d *fakeDriver) Save(_ context.Context, item *source.ScrapedItem) (string, error) {
	if err, ok := d.saveErr[item.NaturalKey]; ok {
		return "", err
	}
	return "dest-" + item.NaturalKey, nil
}

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "json", Output: io.Discard})
}

type tickFixture struct {
	jobs   *fakeJobStore
	items  *fakeItemStore
	events *fakeEventStore
	driver *fakeDriver
	svc    *TickService
	sleeps int
}

func newTickFixture(cfg TickConfig) *tickFixture {
	f := &tickFixture{
		jobs:   &fakeJobStore{},
		items:  &fakeItemStore{},
		events: &fakeEventStore{},
		driver: &fakeDriver{scrapeErr: map[string]error{}, missing: map[string]bool{}, saveErr: map[string]error{}},
	}
	f.svc = NewTickService(f.jobs, f.items, f.events, source.NewRegistry(f.driver), nil, testLogger(), cfg)
	f.svc.sleep = func(time.Duration) { f.sleeps++ }
	return f
}

func (f *tickFixture) seedJob(status domain.JobStatus) *domain.CrawlJob {
	job := &domain.CrawlJob{
		ID:       "job-1",
		Kind:     domain.JobKindCrawl,
		SourceID: "fake",
		Status:   status,
	}
	f.jobs.job = job
	return job
}

func (f *tickFixture) seedItems(keys ...string) {
	for i, key := range keys {
		f.items.rows = append(f.items.rows, domain.JobItem{
			ID:         "item-" + key,
			JobID:      "job-1",
			NaturalKey: key,
			Seq:        i + 1,
			Status:     domain.ItemStatusPending,
		})
	}
}

func TestRunTickProcessesBatchesUntilComplete(t *testing.T) {
	f := newTickFixture(TickConfig{ItemsPerTick: 5})
	f.seedJob(domain.JobStatusPending)
	keys := make([]string, 12)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%02d", i+1)
	}
	f.seedItems(keys...)

	ctx := context.Background()

	expectations := []struct {
		processed int
		remaining int64
		status    domain.JobStatus
	}{
		{5, 7, domain.JobStatusCrawling},
		{5, 2, domain.JobStatusCrawling},
		{2, 0, domain.JobStatusCompleted},
	}

	for i, want := range expectations {
		result, err := f.svc.RunTick(ctx, "job-1", "worker-a", nil)
		if err != nil {
			t.Fatalf("tick %d: unexpected error: %v", i+1, err)
		}
		if result.NoOp {
			t.Fatalf("tick %d: unexpected no-op", i+1)
		}
		if result.Processed != want.processed {
			t.Errorf("tick %d: processed = %d, want %d", i+1, result.Processed, want.processed)
		}
		if result.RemainingPending != want.remaining {
			t.Errorf("tick %d: remaining = %d, want %d", i+1, result.RemainingPending, want.remaining)
		}
		if result.Status != want.status {
			t.Errorf("tick %d: status = %s, want %s", i+1, result.Status, want.status)
		}
	}

	if f.jobs.job.SucceededItems != 12 {
		t.Errorf("succeeded counter = %d, want 12", f.jobs.job.SucceededItems)
	}
	if f.jobs.job.ClaimedBy != "" {
		t.Errorf("completed job still claimed by %q", f.jobs.job.ClaimedBy)
	}

	// A further tick on the terminal job is a no-op, not an error.
	result, err := f.svc.RunTick(ctx, "job-1", "worker-a", nil)
	if err != nil {
		t.Fatalf("post-completion tick: unexpected error: %v", err)
	}
	if !result.NoOp || result.Processed != 0 {
		t.Errorf("post-completion tick: got processed=%d no_op=%v, want 0/true", result.Processed, result.NoOp)
	}
	if len(f.driver.scrapedKeys) != 12 {
		t.Errorf("scraped %d items total, want 12", len(f.driver.scrapedKeys))
	}
}

func TestRunTickProcessesInLedgerOrder(t *testing.T) {
	f := newTickFixture(TickConfig{ItemsPerTick: 3})
	f.seedJob(domain.JobStatusPending)
	f.seedItems("a", "b", "c", "d")

	if _, err := f.svc.RunTick(context.Background(), "job-1", "worker-a", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(f.driver.scrapedKeys) != len(want) {
		t.Fatalf("scraped %d items, want %d", len(f.driver.scrapedKeys), len(want))
	}
	for i, key := range want {
		if f.driver.scrapedKeys[i] != key {
			t.Errorf("scrape order[%d] = %s, want %s", i, f.driver.scrapedKeys[i], key)
		}
	}
	// Delay applies between items but not after the last one.
	if f.sleeps != 2 {
		t.Errorf("slept %d times, want 2", f.sleeps)
	}
}

func TestRunTickRecordsItemFailuresWithoutAborting(t *testing.T) {
	f := newTickFixture(TickConfig{ItemsPerTick: 10})
	f.seedJob(domain.JobStatusPending)
	f.seedItems("good-1", "bad", "missing", "good-2")
	f.driver.scrapeErr["bad"] = errors.New("parse error")
	f.driver.missing["missing"] = true

	result, err := f.svc.RunTick(context.Background(), "job-1", "worker-a", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Succeeded != 2 || result.Failed != 2 {
		t.Errorf("succeeded/failed = %d/%d, want 2/2", result.Succeeded, result.Failed)
	}
	if result.Status != domain.JobStatusCompleted {
		t.Errorf("status = %s, want completed: failed items are not retried automatically", result.Status)
	}
	if f.jobs.job.SucceededItems != 2 || f.jobs.job.FailedItems != 2 {
		t.Errorf("job counters = %d/%d, want 2/2", f.jobs.job.SucceededItems, f.jobs.job.FailedItems)
	}

	for _, row := range f.items.rows {
		switch row.NaturalKey {
		case "bad":
			if row.Status != domain.ItemStatusFailed || row.Error == "" {
				t.Errorf("bad item: status=%s error=%q, want failed with message", row.Status, row.Error)
			}
		case "missing":
			if row.Status != domain.ItemStatusFailed {
				t.Errorf("missing item: status=%s, want failed", row.Status)
			}
		default:
			if row.Status != domain.ItemStatusDone {
				t.Errorf("item %s: status=%s, want done", row.NaturalKey, row.Status)
			}
		}
	}
}

func TestRunTickFatalErrorAbortsBatch(t *testing.T) {
	f := newTickFixture(TickConfig{ItemsPerTick: 10})
	f.seedJob(domain.JobStatusPending)
	f.seedItems("a", "b", "c")
	f.driver.scrapeErr["b"] = source.Fatal(errors.New("connection refused"))

	result, err := f.svc.RunTick(context.Background(), "job-1", "worker-a", nil)
	if err == nil {
		t.Fatal("expected an error from the aborted batch")
	}
	if !source.IsFatal(err) {
		t.Errorf("error should stay fatal through the tick: %v", err)
	}
	if result.Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1 (item a completed before the abort)", result.Succeeded)
	}

	// The job stays in progress so a later tick can resume where it stopped.
	if f.jobs.job.Status != domain.JobStatusCrawling {
		t.Errorf("job status = %s, want crawling", f.jobs.job.Status)
	}
	for _, row := range f.items.rows {
		switch row.NaturalKey {
		case "a":
			if row.Status != domain.ItemStatusDone {
				t.Errorf("item a: status=%s, want done", row.Status)
			}
		default:
			if row.Status != domain.ItemStatusPending {
				t.Errorf("item %s: status=%s, want pending", row.NaturalKey, row.Status)
			}
		}
	}

	// Resume succeeds once the source recovers.
	delete(f.driver.scrapeErr, "b")
	resumed, err := f.svc.RunTick(context.Background(), "job-1", "worker-a", nil)
	if err != nil {
		t.Fatalf("resume tick: unexpected error: %v", err)
	}
	if resumed.Status != domain.JobStatusCompleted || resumed.Succeeded != 2 {
		t.Errorf("resume tick: status=%s succeeded=%d, want completed/2", resumed.Status, resumed.Succeeded)
	}
}

func TestRunTickClaimSemantics(t *testing.T) {
	tests := []struct {
		name        string
		claimedBy   string
		claimedAge  time.Duration
		wantGranted bool
	}{
		{name: "unclaimed job", wantGranted: true},
		{name: "own fresh claim refreshes", claimedBy: "worker-a", claimedAge: time.Minute, wantGranted: true},
		{name: "foreign fresh claim rejects", claimedBy: "worker-b", claimedAge: time.Minute, wantGranted: false},
		{name: "foreign stale claim is taken over", claimedBy: "worker-b", claimedAge: 45 * time.Minute, wantGranted: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newTickFixture(TickConfig{ItemsPerTick: 5, ClaimTimeout: 30 * time.Minute})
			job := f.seedJob(domain.JobStatusCrawling)
			f.seedItems("x")
			if tc.claimedBy != "" {
				at := time.Now().UTC().Add(-tc.claimedAge)
				job.ClaimedBy = tc.claimedBy
				job.ClaimedAt = &at
			}

			result, err := f.svc.RunTick(context.Background(), "job-1", "worker-a", nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Claim.Granted != tc.wantGranted {
				t.Fatalf("granted = %v, want %v (%s)", result.Claim.Granted, tc.wantGranted, result.Claim.Reason)
			}
			if !tc.wantGranted {
				if !result.NoOp || result.Processed != 0 {
					t.Errorf("rejected claim must no-op: processed=%d no_op=%v", result.Processed, result.NoOp)
				}
				if len(f.driver.scrapedKeys) != 0 {
					t.Errorf("rejected claim must not touch the source")
				}
				return
			}
			if f.jobs.job.ClaimedBy != "worker-a" && !f.jobs.job.Status.IsTerminal() {
				t.Errorf("claim owner = %q, want worker-a", f.jobs.job.ClaimedBy)
			}
		})
	}
}

func TestRunTickEmptyLedgerCompletesJob(t *testing.T) {
	f := newTickFixture(TickConfig{ItemsPerTick: 5})
	f.seedJob(domain.JobStatusCrawling)

	result, err := f.svc.RunTick(context.Background(), "job-1", "worker-a", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.JobStatusCompleted {
		t.Errorf("status = %s, want completed", result.Status)
	}
	if f.jobs.job.Status != domain.JobStatusCompleted {
		t.Errorf("job status = %s, want completed", f.jobs.job.Status)
	}
}

func TestRunTickUnknownSourceFailsJob(t *testing.T) {
	f := newTickFixture(TickConfig{ItemsPerTick: 5})
	job := f.seedJob(domain.JobStatusPending)
	job.SourceID = "nope"

	_, err := f.svc.RunTick(context.Background(), "job-1", "worker-a", nil)
	if err == nil {
		t.Fatal("expected an error for an unresolvable source")
	}
	if !errors.Is(err, source.ErrNoDriver) {
		t.Errorf("error = %v, want ErrNoDriver", err)
	}
	if f.jobs.job.Status != domain.JobStatusFailed {
		t.Errorf("job status = %s, want failed", f.jobs.job.Status)
	}
}

func TestRunTickHonorsPerCallBatchOverride(t *testing.T) {
	f := newTickFixture(TickConfig{ItemsPerTick: 10})
	f.seedJob(domain.JobStatusPending)
	f.seedItems("a", "b", "c", "d", "e")

	result, err := f.svc.RunTick(context.Background(), "job-1", "worker-a", &TickOptions{ItemsPerTick: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Processed != 2 {
		t.Errorf("processed = %d, want 2", result.Processed)
	}
	if result.RemainingPending != 3 {
		t.Errorf("remaining = %d, want 3", result.RemainingPending)
	}
}

func TestRunTickLogsThroughInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: "info", Format: "json", Output: &buf})

	jobs := &fakeJobStore{}
	items := &fakeItemStore{}
	events := &fakeEventStore{}
	driver := &fakeDriver{scrapeErr: map[string]error{}, missing: map[string]bool{}, saveErr: map[string]error{}}
	svc := NewTickService(jobs, items, events, source.NewRegistry(driver), nil, log, TickConfig{ItemsPerTick: 5})
	svc.sleep = func(time.Duration) {}

	jobs.job = &domain.CrawlJob{ID: "job-1", Kind: domain.JobKindCrawl, SourceID: "fake", Status: domain.JobStatusPending}
	items.rows = append(items.rows, domain.JobItem{
		ID: "item-a", JobID: "job-1", NaturalKey: "a", Seq: 1, Status: domain.ItemStatusPending,
	})

	if _, err := svc.RunTick(context.Background(), "job-1", "worker-a", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if out == "" {
		t.Fatal("tick produced no output on the logger it was constructed with")
	}
	if !strings.Contains(out, `"job_id":"job-1"`) {
		t.Errorf("log output missing job_id field: %s", out)
	}
	if !strings.Contains(out, `"worker_id":"worker-a"`) {
		t.Errorf("log output missing worker_id field: %s", out)
	}
}

func TestDiscoverPopulatesLedgerIdempotently(t *testing.T) {
	f := newTickFixture(TickConfig{ItemsPerTick: 5})
	job := f.seedJob(domain.JobStatusPending)
	job.Config.ListingURL = "https://fake.example/category/drinks"
	f.driver.discovery = &source.DiscoveryResult{
		TotalReported: 3,
		Items: []source.DiscoveredItem{
			{NaturalKey: "p-1", Title: "One"},
			{NaturalKey: "p-2", Title: "Two"},
			{NaturalKey: "p-3", Title: "Three"},
		},
	}

	outcome, err := f.svc.Discover(context.Background(), "job-1", "worker-a", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Created != 3 || outcome.Existing != 0 {
		t.Errorf("created/existing = %d/%d, want 3/0", outcome.Created, outcome.Existing)
	}
	if outcome.Status != domain.JobStatusCrawling {
		t.Errorf("status = %s, want crawling", outcome.Status)
	}
	if f.jobs.job.TotalItems != 3 {
		t.Errorf("total items = %d, want 3", f.jobs.job.TotalItems)
	}

	// Rediscovery finds the same items and creates nothing new.
	again, err := f.svc.Discover(context.Background(), "job-1", "worker-a", nil)
	if err != nil {
		t.Fatalf("rediscovery: unexpected error: %v", err)
	}
	if again.Created != 0 || again.Existing != 3 {
		t.Errorf("rediscovery created/existing = %d/%d, want 0/3", again.Created, again.Existing)
	}
	if n, _ := f.items.CountAll(context.Background(), "job-1"); n != 3 {
		t.Errorf("ledger rows = %d, want 3", n)
	}
}

func TestDiscoverListingFailureFailsJob(t *testing.T) {
	f := newTickFixture(TickConfig{ItemsPerTick: 5})
	job := f.seedJob(domain.JobStatusPending)
	job.Config.ListingURL = "https://fake.example/category/drinks"
	f.driver.discoverErr = errors.New("listing returned 503")

	_, err := f.svc.Discover(context.Background(), "job-1", "worker-a", nil)
	if err == nil {
		t.Fatal("expected an error when the listing walk fails")
	}
	if f.jobs.job.Status != domain.JobStatusFailed {
		t.Errorf("job status = %s, want failed", f.jobs.job.Status)
	}
	if f.jobs.job.Error == "" {
		t.Error("failed job should carry an error message")
	}
}
