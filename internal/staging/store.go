// Package staging owns voucher record persistence between validation and
// commit. The store is the authoritative uniqueness gate: insert-if-absent
// is enforced by a partial unique index on serial_number over non-rejected
// rows, not by advisory locking.
package staging

import (
	"context"
	"time"

	"github.com/mkitdev/mkit-input-voucher/internal/models"
)

// Store is interface-driven so the pipeline, review and commit layers stay
// testable against the in-memory implementation without a database.
type Store interface {
	// Put inserts a validated record as staged. Fails with ErrDuplicateSerial
	// when an active record with the same serial number already exists.
	Put(ctx context.Context, rec *models.VoucherRecord) error

	// SaveRejected persists a rejection for the audit trail. Rejected records
	// do not hold their serial number, so duplicates are allowed here.
	SaveRejected(ctx context.Context, rec *models.VoucherRecord) error

	// Get returns the active (non-rejected) record for a serial number
	Get(ctx context.Context, serial string) (models.VoucherRecord, error)

	ListBatch(ctx context.Context, batchID string) ([]models.VoucherRecord, error)
	ListBatchByStatus(ctx context.Context, batchID string, status models.Status) ([]models.VoucherRecord, error)

	// HasActiveSerial is the validator's advisory duplicate check. Put remains
	// the enforcement point; this only gives earlier, cheaper rejections.
	HasActiveSerial(ctx context.Context, serial string) (bool, error)

	MarkPreviewed(ctx context.Context, serial string) error
	MarkRejected(ctx context.Context, serial, reason string) error
	MarkCommitted(ctx context.Context, serial string) error
	MarkCommitFailed(ctx context.Context, serial, reason string) error

	// RetryCommitFailed moves a commit_failed record back to staged, the only
	// backward step in the state machine
	RetryCommitFailed(ctx context.Context, serial string) error

	// Purge removes one terminal record. Staged and previewed records are
	// never purged.
	Purge(ctx context.Context, serial string) error

	// PurgeExpired removes terminal records older than the cutoff and returns
	// how many were removed. Driven by the retention janitor.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)

	CreateBatch(ctx context.Context, batch *models.Batch) error
	GetBatch(ctx context.Context, id string) (models.Batch, error)
	UpdateBatchReview(ctx context.Context, id string, status models.ReviewStatus) error
	AddBatchRecords(ctx context.Context, id string, delta int) error

	// Report aggregates per-status counts for operator-facing summaries
	Report(ctx context.Context, batchID string) (models.BatchReport, error)
}
