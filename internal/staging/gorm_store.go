package staging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mkitdev/mkit-input-voucher/internal/apperrors"
	"github.com/mkitdev/mkit-input-voucher/internal/models"
)

// GormStore is the PostgreSQL-backed staging store
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a staging store on an open gorm connection
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Put inserts a validated record as staged. The partial unique index on
// serial_number makes the insert-if-absent atomic under concurrent channels;
// a translated duplicate-key error becomes ErrDuplicateSerial.
func (s *GormStore) Put(ctx context.Context, rec *models.VoucherRecord) error {
	if rec.Status != models.StatusValidated {
		return apperrors.TransitionError(rec.SerialNumber, string(rec.Status), string(models.StatusStaged))
	}
	rec.Status = models.StatusStaged

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		rec.Status = models.StatusValidated
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", apperrors.ErrDuplicateSerial, rec.SerialNumber)
		}
		return fmt.Errorf("failed to stage record %s: %w", rec.SerialNumber, err)
	}
	return nil
}

// SaveRejected persists a rejected record for the audit trail
func (s *GormStore) SaveRejected(ctx context.Context, rec *models.VoucherRecord) error {
	if rec.Status != models.StatusRejected {
		return apperrors.TransitionError(rec.SerialNumber, string(rec.Status), string(models.StatusRejected))
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to record rejection for %s: %w", rec.SerialNumber, err)
	}
	return nil
}

// Get returns the active record holding a serial number
func (s *GormStore) Get(ctx context.Context, serial string) (models.VoucherRecord, error) {
	var rec models.VoucherRecord
	err := s.db.WithContext(ctx).
		Where("serial_number = ? AND status <> ?", serial, models.StatusRejected).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.VoucherRecord{}, apperrors.ErrNotFound
	}
	return rec, err
}

// ListBatch returns every record of a batch, rejections included
func (s *GormStore) ListBatch(ctx context.Context, batchID string) ([]models.VoucherRecord, error) {
	var recs []models.VoucherRecord
	err := s.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("id").
		Find(&recs).Error
	return recs, err
}

// ListBatchByStatus returns the records of a batch in one status
func (s *GormStore) ListBatchByStatus(ctx context.Context, batchID string, status models.Status) ([]models.VoucherRecord, error) {
	var recs []models.VoucherRecord
	err := s.db.WithContext(ctx).
		Where("batch_id = ? AND status = ?", batchID, status).
		Order("id").
		Find(&recs).Error
	return recs, err
}

// HasActiveSerial reports whether an active record holds the serial number
func (s *GormStore) HasActiveSerial(ctx context.Context, serial string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.VoucherRecord{}).
		Where("serial_number = ? AND status <> ?", serial, models.StatusRejected).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) MarkPreviewed(ctx context.Context, serial string) error {
	return s.transition(ctx, serial, models.StatusPreviewed, "", models.StatusStaged)
}

func (s *GormStore) MarkRejected(ctx context.Context, serial, reason string) error {
	return s.transition(ctx, serial, models.StatusRejected, reason, models.StatusStaged)
}

func (s *GormStore) MarkCommitted(ctx context.Context, serial string) error {
	return s.transition(ctx, serial, models.StatusCommitted, "", models.StatusPreviewed)
}

func (s *GormStore) MarkCommitFailed(ctx context.Context, serial, reason string) error {
	return s.transition(ctx, serial, models.StatusCommitFailed, reason, models.StatusPreviewed)
}

func (s *GormStore) RetryCommitFailed(ctx context.Context, serial string) error {
	return s.transition(ctx, serial, models.StatusStaged, "", models.StatusCommitFailed)
}

// transition applies a guarded status update. The WHERE clause on the current
// status makes each step atomic, which doubles as the per-record mutual
// exclusion during commit: the second writer affects zero rows.
func (s *GormStore) transition(ctx context.Context, serial string, to models.Status, reason string, from ...models.Status) error {
	updates := map[string]interface{}{
		"status":           to,
		"rejection_reason": reason,
		"updated_at":       time.Now().UTC(),
	}

	tx := s.db.WithContext(ctx).Model(&models.VoucherRecord{}).
		Where("serial_number = ? AND status IN ?", serial, from).
		Updates(updates)
	if tx.Error != nil {
		return fmt.Errorf("failed to transition %s to %s: %w", serial, to, tx.Error)
	}
	if tx.RowsAffected == 0 {
		cur, err := s.Get(ctx, serial)
		if err != nil {
			return err
		}
		return apperrors.TransitionError(serial, string(cur.Status), string(to))
	}
	return nil
}

// Purge removes one terminal record. Active pipeline records are protected.
func (s *GormStore) Purge(ctx context.Context, serial string) error {
	tx := s.db.WithContext(ctx).
		Where("serial_number = ? AND status IN ?", serial,
			[]models.Status{models.StatusCommitted, models.StatusRejected}).
		Delete(&models.VoucherRecord{})
	if tx.Error != nil {
		return fmt.Errorf("failed to purge %s: %w", serial, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// PurgeExpired removes terminal records last touched before the cutoff
func (s *GormStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]models.Status{models.StatusCommitted, models.StatusRejected}, cutoff).
		Delete(&models.VoucherRecord{})
	return tx.RowsAffected, tx.Error
}

// CreateBatch opens a new batch
func (s *GormStore) CreateBatch(ctx context.Context, batch *models.Batch) error {
	if batch.ReviewStatus == "" {
		batch.ReviewStatus = models.ReviewPending
	}
	return s.db.WithContext(ctx).Create(batch).Error
}

// GetBatch fetches one batch by ID
func (s *GormStore) GetBatch(ctx context.Context, id string) (models.Batch, error) {
	var batch models.Batch
	err := s.db.WithContext(ctx).First(&batch, "batch_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Batch{}, apperrors.ErrNotFound
	}
	return batch, err
}

// UpdateBatchReview persists a derived review status
func (s *GormStore) UpdateBatchReview(ctx context.Context, id string, status models.ReviewStatus) error {
	tx := s.db.WithContext(ctx).Model(&models.Batch{}).
		Where("batch_id = ?", id).
		Update("review_status", status)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// AddBatchRecords bumps a batch record count as channel submissions land
func (s *GormStore) AddBatchRecords(ctx context.Context, id string, delta int) error {
	return s.db.WithContext(ctx).Model(&models.Batch{}).
		Where("batch_id = ?", id).
		Update("record_count", gorm.Expr("record_count + ?", delta)).Error
}

// Report aggregates per-status counts for a batch
func (s *GormStore) Report(ctx context.Context, batchID string) (models.BatchReport, error) {
	recs, err := s.ListBatch(ctx, batchID)
	if err != nil {
		return models.BatchReport{}, err
	}
	return buildReport(batchID, recs), nil
}

func buildReport(batchID string, recs []models.VoucherRecord) models.BatchReport {
	report := models.BatchReport{BatchID: batchID, Total: len(recs)}
	for _, rec := range recs {
		switch rec.Status {
		case models.StatusStaged:
			report.Staged++
		case models.StatusPreviewed:
			report.Previewed++
		case models.StatusRejected:
			report.Rejected++
		case models.StatusCommitted:
			report.Committed++
		case models.StatusCommitFailed:
			report.CommitFailed++
		}
	}
	return report
}
