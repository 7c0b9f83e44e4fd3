// Package review groups staged records of a batch for operator confirmation.
// No record reaches the committer without passing through previewed.
package review

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/mkitdev/mkit-input-voucher/internal/apperrors"
	"github.com/mkitdev/mkit-input-voucher/internal/models"
	"github.com/mkitdev/mkit-input-voucher/internal/staging"
)

// Service drives the preview step of the funnel
type Service struct {
	store staging.Store
}

// NewService creates a review service over the staging store
func NewService(store staging.Store) *Service {
	return &Service{store: store}
}

// Confirm transitions one staged record to previewed
func (s *Service) Confirm(ctx context.Context, serial string) error {
	rec, err := s.store.Get(ctx, serial)
	if err != nil {
		return err
	}
	if err := s.store.MarkPreviewed(ctx, serial); err != nil {
		return err
	}
	return s.refreshBatch(ctx, rec.BatchID)
}

// Reject transitions one staged record to rejected, releasing its serial
// number. The record itself is never mutated back; a corrected voucher is
// resubmitted as a brand-new entry.
func (s *Service) Reject(ctx context.Context, serial, reason string) error {
	rec, err := s.store.Get(ctx, serial)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "rejected by operator during review"
	}
	if err := s.store.MarkRejected(ctx, serial, reason); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"serial_number": serial,
		"batch_id":      rec.BatchID,
	}).Info("Record rejected during review")
	return s.refreshBatch(ctx, rec.BatchID)
}

// ConfirmBatch confirms staged records of a batch en masse. With no serials
// listed, every staged record is confirmed. Per-record failures are collected
// so one bad serial does not block the rest.
func (s *Service) ConfirmBatch(ctx context.Context, batchID string, serials []string) (models.BatchReport, error) {
	if len(serials) == 0 {
		staged, err := s.store.ListBatchByStatus(ctx, batchID, models.StatusStaged)
		if err != nil {
			return models.BatchReport{}, err
		}
		for _, rec := range staged {
			serials = append(serials, rec.SerialNumber)
		}
	}

	var firstErr error
	for _, serial := range serials {
		if err := s.confirmInBatch(ctx, batchID, serial); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("confirm %s: %w", serial, err)
			}
			log.WithError(err).WithField("serial_number", serial).Warn("Failed to confirm record")
		}
	}

	if err := s.refreshBatch(ctx, batchID); err != nil && firstErr == nil {
		firstErr = err
	}

	report, err := s.store.Report(ctx, batchID)
	if err != nil {
		return models.BatchReport{}, err
	}
	return report, firstErr
}

// confirmInBatch confirms one listed serial after checking it belongs to the
// batch; a serial from another batch must not flip through a foreign confirm
func (s *Service) confirmInBatch(ctx context.Context, batchID, serial string) error {
	rec, err := s.store.Get(ctx, serial)
	if err != nil {
		return err
	}
	if rec.BatchID != batchID {
		return fmt.Errorf("%w: serial %s is not part of batch %s", apperrors.ErrNotFound, serial, batchID)
	}
	return s.store.MarkPreviewed(ctx, serial)
}

// refreshBatch re-derives the batch review status from its records
func (s *Service) refreshBatch(ctx context.Context, batchID string) error {
	recs, err := s.store.ListBatch(ctx, batchID)
	if err != nil {
		return err
	}
	return s.store.UpdateBatchReview(ctx, batchID, models.DeriveReviewStatus(recs))
}
