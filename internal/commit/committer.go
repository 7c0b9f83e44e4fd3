// Package commit pushes previewed records into the external core system.
// Per-record outcomes are independent: rows rejected by the core never roll
// back rows that succeeded.
package commit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mkitdev/mkit-input-voucher/internal/apperrors"
	"github.com/mkitdev/mkit-input-voucher/internal/locks"
	"github.com/mkitdev/mkit-input-voucher/internal/models"
	"github.com/mkitdev/mkit-input-voucher/internal/staging"
)

// Core is the insert contract of the external core system (Otomax). The core
// enforces its own uniqueness on serial number; SerialExists supports the
// check-before-write that makes retries idempotent.
type Core interface {
	InsertVoucher(ctx context.Context, rec models.VoucherRecord) error
	SerialExists(ctx context.Context, serial string) (bool, error)
}

// Committer writes previewed records to the core and records each outcome
// in staging. It is the only writer allowed to produce committed or
// commit_failed.
type Committer struct {
	store   staging.Store
	core    Core
	serials *locks.Keyed

	// Concurrency bounds parallel core writes within a batch. Ordering inside
	// a batch is unspecified; records are independent.
	Concurrency int
	// Timeout bounds each core call. A timeout is a failure, never a success.
	Timeout time.Duration
}

// New creates a committer over the staging store and core client
func New(store staging.Store, core Core) *Committer {
	return &Committer{
		store:       store,
		core:        core,
		serials:     locks.NewKeyed(),
		Concurrency: 4,
		Timeout:     15 * time.Second,
	}
}

// CommitBatch writes every previewed record of a batch to the core. The batch
// becomes committed only when no record remains previewed; commit_failed
// records are surfaced in the report for operator retry.
func (c *Committer) CommitBatch(ctx context.Context, batchID string) (models.BatchReport, error) {
	recs, err := c.store.ListBatchByStatus(ctx, batchID, models.StatusPreviewed)
	if err != nil {
		return models.BatchReport{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Concurrency)
	for _, rec := range recs {
		rec := rec
		g.Go(func() error {
			c.commitOne(gctx, rec)
			return nil // outcomes live on the records, not the group
		})
	}
	_ = g.Wait()

	all, err := c.store.ListBatch(ctx, batchID)
	if err != nil {
		return models.BatchReport{}, err
	}
	if err := c.store.UpdateBatchReview(ctx, batchID, models.DeriveReviewStatus(all)); err != nil {
		return models.BatchReport{}, err
	}

	return c.store.Report(ctx, batchID)
}

// Retry moves a commit_failed record back to staged for another review and
// commit round. The next commit attempt is idempotent against the core even
// when the failed attempt actually landed.
func (c *Committer) Retry(ctx context.Context, serial string) error {
	return c.store.RetryCommitFailed(ctx, serial)
}

// commitOne performs the check-before-write sequence for one record under
// its serial lock. All writes for the record complete before its status is
// reported.
func (c *Committer) commitOne(ctx context.Context, rec models.VoucherRecord) {
	logger := log.WithFields(log.Fields{
		"serial_number": rec.SerialNumber,
		"batch_id":      rec.BatchID,
	})

	c.serials.Lock(rec.SerialNumber)
	defer c.serials.Unlock(rec.SerialNumber)

	cctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	exists, err := c.core.SerialExists(cctx, rec.SerialNumber)
	if err != nil {
		c.fail(ctx, logger, rec.SerialNumber, err)
		return
	}
	if exists {
		// A previous attempt succeeded but the acknowledgment was lost.
		// Recording it as committed is the idempotent outcome.
		logger.Info("Serial already present in core, treating as committed")
		c.succeed(ctx, logger, rec.SerialNumber)
		return
	}

	if err := c.core.InsertVoucher(cctx, rec); err != nil {
		c.fail(ctx, logger, rec.SerialNumber, err)
		return
	}
	c.succeed(ctx, logger, rec.SerialNumber)
}

func (c *Committer) succeed(ctx context.Context, logger *log.Entry, serial string) {
	if err := c.store.MarkCommitted(ctx, serial); err != nil {
		if errors.Is(err, apperrors.ErrInvalidTransition) {
			// another committer invocation already recorded this record
			logger.WithError(err).Error("Commit transition lost; record was not previewed")
			return
		}
		logger.WithError(err).Error("Failed to record commit outcome")
		return
	}
	logger.Info("Record committed to core")
}

func (c *Committer) fail(ctx context.Context, logger *log.Entry, serial string, cause error) {
	cerr := &apperrors.CommitError{
		SerialNumber: serial,
		Reason:       cause.Error(), // external error captured verbatim
		Timeout:      isTimeout(cause),
	}
	if err := c.store.MarkCommitFailed(ctx, serial, cerr.Error()); err != nil {
		logger.WithError(err).Error("Failed to record commit failure")
		return
	}
	logger.WithError(cause).Warn("Record failed to commit")
}

// isTimeout distinguishes transient unreachability from a permanent core
// rejection so operators can tell the two apart in the failure reason
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Failed lists the commit_failed records of a batch for operator follow-up
func (c *Committer) Failed(ctx context.Context, batchID string) ([]models.VoucherRecord, error) {
	recs, err := c.store.ListBatchByStatus(ctx, batchID, models.StatusCommitFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to list commit failures: %w", err)
	}
	return recs, nil
}
