package commit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mkitdev/mkit-input-voucher/internal/models"
	"github.com/mkitdev/mkit-input-voucher/internal/staging"
)

// fakeCore scripts per-serial outcomes and counts inserts
type fakeCore struct {
	mu       sync.Mutex
	existing map[string]bool
	rejects  map[string]error
	inserts  map[string]int
	checkErr error
}

func newFakeCore() *fakeCore {
	return &fakeCore{
		existing: make(map[string]bool),
		rejects:  make(map[string]error),
		inserts:  make(map[string]int),
	}
}

func (f *fakeCore) InsertVoucher(ctx context.Context, rec models.VoucherRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.rejects[rec.SerialNumber]; ok {
		return err
	}
	f.inserts[rec.SerialNumber]++
	f.existing[rec.SerialNumber] = true
	return nil
}

func (f *fakeCore) SerialExists(ctx context.Context, serial string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return f.existing[serial], nil
}

func (f *fakeCore) insertCount(serial string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts[serial]
}

func stagePreviewed(t *testing.T, store *staging.MemoryStore, serial, batchID string) {
	t.Helper()
	ctx := context.Background()
	rec := models.VoucherRecord{
		SerialNumber:  serial,
		VoucherNumber: "123456789012",
		ProductCode:   "TSEL10",
		Denomination:  decimal.NewFromInt(10000),
		SourceChannel: models.ChannelCSV,
		BatchID:       batchID,
		Status:        models.StatusValidated,
	}
	if err := store.Put(ctx, &rec); err != nil {
		t.Fatalf("Failed to stage %s: %v", serial, err)
	}
	if err := store.MarkPreviewed(ctx, serial); err != nil {
		t.Fatalf("Failed to preview %s: %v", serial, err)
	}
}

func TestCommitBatchAllSucceed(t *testing.T) {
	store := staging.NewMemoryStore()
	core := newFakeCore()
	ctx := context.Background()

	if err := store.CreateBatch(ctx, &models.Batch{ID: "b1", SubmittedBy: "ops"}); err != nil {
		t.Fatal(err)
	}
	serials := []string{"AB12CD34EF", "CD34EF56GH", "EF56GH78IJ"}
	for _, sn := range serials {
		stagePreviewed(t, store, sn, "b1")
	}

	report, err := New(store, core).CommitBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("CommitBatch failed: %v", err)
	}
	if report.Committed != 3 || report.CommitFailed != 0 {
		t.Errorf("Unexpected report: %+v", report)
	}
	for _, sn := range serials {
		if core.insertCount(sn) != 1 {
			t.Errorf("Expected one insert for %s, got %d", sn, core.insertCount(sn))
		}
	}
	batch, _ := store.GetBatch(ctx, "b1")
	if batch.ReviewStatus != models.ReviewCommitted {
		t.Errorf("Batch should be committed, got %s", batch.ReviewStatus)
	}
}

func TestCommitBatchPartialFailure(t *testing.T) {
	// one core rejection must not touch the outcome of the other records
	store := staging.NewMemoryStore()
	core := newFakeCore()
	core.rejects["CD34EF56GH"] = errors.New("serial rejected by core policy")
	ctx := context.Background()

	if err := store.CreateBatch(ctx, &models.Batch{ID: "b1", SubmittedBy: "ops"}); err != nil {
		t.Fatal(err)
	}
	serials := []string{"AB12CD34EF", "CD34EF56GH", "EF56GH78IJ", "GH78IJ90KL", "IJ90KL12MN"}
	for _, sn := range serials {
		stagePreviewed(t, store, sn, "b1")
	}

	committer := New(store, core)
	report, err := committer.CommitBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("CommitBatch failed: %v", err)
	}
	if report.Committed != 4 || report.CommitFailed != 1 || report.Previewed != 0 {
		t.Errorf("Unexpected report: %+v", report)
	}

	failed, err := committer.Failed(ctx, "b1")
	if err != nil {
		t.Fatalf("Failed listing failed: %v", err)
	}
	if len(failed) != 1 || failed[0].SerialNumber != "CD34EF56GH" {
		t.Fatalf("Unexpected failed set: %+v", failed)
	}
	if !strings.Contains(failed[0].RejectionReason, "serial rejected by core policy") {
		t.Errorf("Core reason should be captured verbatim, got %q", failed[0].RejectionReason)
	}
}

func TestCommitTimeoutRecordedAsFailure(t *testing.T) {
	store := staging.NewMemoryStore()
	core := newFakeCore()
	core.rejects["AB12CD34EF"] = context.DeadlineExceeded
	ctx := context.Background()

	if err := store.CreateBatch(ctx, &models.Batch{ID: "b1", SubmittedBy: "ops"}); err != nil {
		t.Fatal(err)
	}
	stagePreviewed(t, store, "AB12CD34EF", "b1")

	report, err := New(store, core).CommitBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("CommitBatch failed: %v", err)
	}
	if report.CommitFailed != 1 {
		t.Fatalf("Timeout must be recorded as a failure: %+v", report)
	}

	rec, _ := store.Get(ctx, "AB12CD34EF")
	if rec.Status != models.StatusCommitFailed {
		t.Errorf("Expected commit_failed, got %s", rec.Status)
	}
	// the reason must let an operator tell a timeout from a core rejection
	if !strings.Contains(rec.RejectionReason, "timeout") {
		t.Errorf("Timeout failure should be distinguishable, got %q", rec.RejectionReason)
	}
}

func TestCommitRetryAfterLostAck(t *testing.T) {
	// first attempt landed in the core but the ack was lost; the retry must
	// see the serial via check-before-write and not insert a second time
	store := staging.NewMemoryStore()
	core := newFakeCore()
	core.existing["AB12CD34EF"] = true
	ctx := context.Background()

	if err := store.CreateBatch(ctx, &models.Batch{ID: "b1", SubmittedBy: "ops"}); err != nil {
		t.Fatal(err)
	}
	stagePreviewed(t, store, "AB12CD34EF", "b1")

	report, err := New(store, core).CommitBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("CommitBatch failed: %v", err)
	}
	if report.Committed != 1 {
		t.Fatalf("Pre-existing serial should be treated as committed: %+v", report)
	}
	if core.insertCount("AB12CD34EF") != 0 {
		t.Errorf("No insert may happen when the serial already exists, got %d", core.insertCount("AB12CD34EF"))
	}
}

func TestRetryThenRecommit(t *testing.T) {
	store := staging.NewMemoryStore()
	core := newFakeCore()
	core.rejects["AB12CD34EF"] = errors.New("core busy")
	ctx := context.Background()

	if err := store.CreateBatch(ctx, &models.Batch{ID: "b1", SubmittedBy: "ops"}); err != nil {
		t.Fatal(err)
	}
	stagePreviewed(t, store, "AB12CD34EF", "b1")

	committer := New(store, core)
	if _, err := committer.CommitBatch(ctx, "b1"); err != nil {
		t.Fatal(err)
	}

	if err := committer.Retry(ctx, "AB12CD34EF"); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	rec, _ := store.Get(ctx, "AB12CD34EF")
	if rec.Status != models.StatusStaged {
		t.Fatalf("Retry should return record to staged, got %s", rec.Status)
	}

	// core recovers, operator confirms again, second round succeeds
	delete(core.rejects, "AB12CD34EF")
	if err := store.MarkPreviewed(ctx, "AB12CD34EF"); err != nil {
		t.Fatal(err)
	}
	report, err := committer.CommitBatch(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if report.Committed != 1 || report.CommitFailed != 0 {
		t.Errorf("Unexpected report after retry: %+v", report)
	}
}

func TestCommitCheckFailureDoesNotInsert(t *testing.T) {
	store := staging.NewMemoryStore()
	core := newFakeCore()
	core.checkErr = errors.New("connection refused")
	ctx := context.Background()

	if err := store.CreateBatch(ctx, &models.Batch{ID: "b1", SubmittedBy: "ops"}); err != nil {
		t.Fatal(err)
	}
	stagePreviewed(t, store, "AB12CD34EF", "b1")

	report, err := New(store, core).CommitBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("CommitBatch failed: %v", err)
	}
	if report.CommitFailed != 1 {
		t.Fatalf("Check failure should fail the record: %+v", report)
	}
	if core.insertCount("AB12CD34EF") != 0 {
		t.Error("Insert must not run when the existence check fails")
	}
}

func TestIsTimeout(t *testing.T) {
	if !isTimeout(context.DeadlineExceeded) {
		t.Error("DeadlineExceeded is a timeout")
	}
	if isTimeout(errors.New("invalid serial")) {
		t.Error("Plain errors are not timeouts")
	}
}
