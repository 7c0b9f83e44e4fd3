// Package pipeline funnels every input channel through the same
// normalize -> validate -> stage sequence. Per-record failures never abort
// sibling records of the same batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mkitdev/mkit-input-voucher/internal/apperrors"
	"github.com/mkitdev/mkit-input-voucher/internal/models"
	"github.com/mkitdev/mkit-input-voucher/internal/normalize"
	"github.com/mkitdev/mkit-input-voucher/internal/staging"
	"github.com/mkitdev/mkit-input-voucher/internal/validate"
)

// Pipeline wires the normalizer and validator onto the staging store
type Pipeline struct {
	store     staging.Store
	validator *validate.Validator

	// Concurrency bounds per-batch ingestion workers. Structural and format
	// work is stateless, so rows of one upload are processed in parallel.
	Concurrency int
}

// New creates a pipeline over a staging store and validator
func New(store staging.Store, validator *validate.Validator) *Pipeline {
	return &Pipeline{store: store, validator: validator, Concurrency: 8}
}

// RowOutcome is the per-row result of a bulk ingestion
type RowOutcome struct {
	Index        int           `json:"index"`
	SerialNumber string        `json:"serialNumber,omitempty"`
	Status       models.Status `json:"status"`
	Reason       string        `json:"reason,omitempty"`
}

// IngestResult is the operator-facing summary of one bulk submission
type IngestResult struct {
	BatchID  string             `json:"batchId"`
	Outcomes []RowOutcome       `json:"outcomes"`
	Report   models.BatchReport `json:"report"`
}

// IngestBatch opens a batch and pushes every raw input through the funnel.
// Rows are processed concurrently; outcomes keep the input order.
func (p *Pipeline) IngestBatch(ctx context.Context, batch *models.Batch, inputs []normalize.Input) (IngestResult, error) {
	batch.RecordCount = len(inputs)
	if err := p.store.CreateBatch(ctx, batch); err != nil {
		return IngestResult{}, fmt.Errorf("failed to create batch: %w", err)
	}

	outcomes := make([]RowOutcome, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Concurrency)
	for i, in := range inputs {
		i, in := i, in
		in.BatchID = batch.ID
		g.Go(func() error {
			rec, err := p.IngestOne(gctx, in)
			outcomes[i] = outcomeFor(i, rec, err)
			return nil // per-record errors are captured, never propagated
		})
	}
	_ = g.Wait()

	report, err := p.store.Report(ctx, batch.ID)
	if err != nil {
		return IngestResult{}, err
	}
	return IngestResult{BatchID: batch.ID, Outcomes: outcomes, Report: report}, nil
}

// IngestOne runs a single raw input through normalize, validate and stage.
// The returned record reflects the terminal state of this stage: staged, or
// rejected with its reason. Normalization failures produce no record at all.
func (p *Pipeline) IngestOne(ctx context.Context, in normalize.Input) (models.VoucherRecord, error) {
	logger := log.WithFields(log.Fields{
		"batch_id": in.BatchID,
		"channel":  in.Channel,
	})

	rec, err := normalize.Record(in)
	if err != nil {
		logger.WithError(err).Warn("Record failed normalization")
		return models.VoucherRecord{}, err
	}
	logger = logger.WithField("serial_number", rec.SerialNumber)

	if err := p.validator.Validate(ctx, &rec); err != nil {
		var verr *apperrors.ValidationError
		if errors.As(err, &verr) {
			if saveErr := p.store.SaveRejected(ctx, &rec); saveErr != nil {
				logger.WithError(saveErr).Error("Failed to persist rejection")
			}
			logger.WithField("check", verr.Check).Info("Record rejected by validation")
			return rec, err
		}
		// infrastructure failure, not a verdict on the record
		return rec, err
	}

	if err := p.store.Put(ctx, &rec); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateSerial) {
			// the authoritative gate caught a race the advisory check missed
			rec.Status = models.StatusRejected
			rec.RejectionReason = (&apperrors.ValidationError{
				Check:  apperrors.CheckDuplicate,
				Reason: fmt.Sprintf("serial %s already staged", rec.SerialNumber),
			}).Error()
			if saveErr := p.store.SaveRejected(ctx, &rec); saveErr != nil {
				logger.WithError(saveErr).Error("Failed to persist rejection")
			}
			logger.Info("Record lost the staging race")
			return rec, err
		}
		return rec, err
	}

	logger.Debug("Record staged")
	return rec, nil
}

func outcomeFor(index int, rec models.VoucherRecord, err error) RowOutcome {
	out := RowOutcome{Index: index, SerialNumber: rec.SerialNumber, Status: rec.Status}
	if err != nil {
		out.Reason = err.Error()
		if rec.SerialNumber == "" {
			// normalization failure: no record was produced
			out.Status = models.StatusIngested
		}
	}
	return out
}
