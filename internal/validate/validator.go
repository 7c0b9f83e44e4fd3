// Package validate applies structural, format, duplication and upstream-usage
// checks to normalized records. Checks run in a fixed order and short-circuit
// on the first failure so rejection reasons are reproducible.
package validate

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mkitdev/mkit-input-voucher/internal/apperrors"
	"github.com/mkitdev/mkit-input-voucher/internal/locks"
	"github.com/mkitdev/mkit-input-voucher/internal/models"
)

// VerificationStatus is the upstream verdict for a serial number
type VerificationStatus string

const (
	VerificationUsed    VerificationStatus = "used"
	VerificationUnused  VerificationStatus = "unused"
	VerificationUnknown VerificationStatus = "unknown"
)

// Verifier reports whether a serial number was already marked used upstream
// (the Otoplus integration). Advisory and timeout-bounded; implementations
// must return an error, not a guess, when the upstream is unreachable.
type Verifier interface {
	Check(ctx context.Context, serial string) (VerificationStatus, error)
}

// SerialIndex is the slice of the staging store the duplicate check needs
type SerialIndex interface {
	HasActiveSerial(ctx context.Context, serial string) (bool, error)
}

// Validator runs the ordered check chain. The structural and format checks
// are stateless; only the duplicate check and upstream verification touch
// shared state, and those are serialized per serial number.
type Validator struct {
	index    SerialIndex
	verifier Verifier // nil disables upstream verification
	serials  *locks.Keyed

	// AllowedDenominations restricts denominations to a fixed product set.
	// Empty means any positive amount passes.
	AllowedDenominations []decimal.Decimal
}

// New creates a validator. verifier may be nil when Otoplus is not configured.
func New(index SerialIndex, verifier Verifier) *Validator {
	return &Validator{
		index:    index,
		verifier: verifier,
		serials:  locks.NewKeyed(),
	}
}

// Validate moves a normalized record to validated, or to rejected with the
// first failing check recorded as the rejection reason. The returned error is
// the *ValidationError for a rejection; infrastructure failures of the
// duplicate check itself are returned as plain errors without rejecting.
func (v *Validator) Validate(ctx context.Context, rec *models.VoucherRecord) error {
	if rec.Status != models.StatusNormalized {
		return apperrors.TransitionError(rec.SerialNumber, string(rec.Status), string(models.StatusValidated))
	}

	if err := v.structural(rec); err != nil {
		return v.reject(rec, err)
	}
	if err := v.format(rec); err != nil {
		return v.reject(rec, err)
	}

	// Shared-state checks run under the per-serial lock so two records racing
	// on one serial resolve deterministically while unrelated records of the
	// same batch keep validating in parallel.
	v.serials.Lock(rec.SerialNumber)
	defer v.serials.Unlock(rec.SerialNumber)

	taken, err := v.index.HasActiveSerial(ctx, rec.SerialNumber)
	if err != nil {
		return fmt.Errorf("duplicate check failed for %s: %w", rec.SerialNumber, err)
	}
	if taken {
		return v.reject(rec, &apperrors.ValidationError{
			Check:  apperrors.CheckDuplicate,
			Reason: fmt.Sprintf("serial %s already staged", rec.SerialNumber),
		})
	}

	if v.verifier != nil {
		if err := v.verifyUpstream(ctx, rec); err != nil {
			return v.reject(rec, err)
		}
	}

	rec.Status = models.StatusValidated
	return nil
}

func (v *Validator) reject(rec *models.VoucherRecord, verr *apperrors.ValidationError) error {
	rec.Status = models.StatusRejected
	rec.RejectionReason = verr.Error()
	return verr
}

// structural verifies required fields are present and typed correctly
func (v *Validator) structural(rec *models.VoucherRecord) *apperrors.ValidationError {
	fail := func(reason string) *apperrors.ValidationError {
		return &apperrors.ValidationError{Check: apperrors.CheckStructural, Reason: reason}
	}

	if !rec.SourceChannel.Valid() {
		return fail("unknown source channel")
	}
	if rec.SerialNumber == "" {
		return fail("serial_number is required")
	}
	if rec.VoucherNumber == "" {
		return fail("voucher_number is required")
	}
	if rec.ProductCode == "" {
		return fail("product_code is required")
	}
	if rec.BatchID == "" {
		return fail("batch_id is required")
	}
	if rec.SourceChannel.IsMachineRead() != (rec.Confidence != nil) {
		return fail("confidence must be present exactly for ocr/ai records")
	}
	return nil
}

// format verifies field shapes and the denomination range
func (v *Validator) format(rec *models.VoucherRecord) *apperrors.ValidationError {
	fail := func(reason string) *apperrors.ValidationError {
		return &apperrors.ValidationError{Check: apperrors.CheckFormat, Reason: reason}
	}

	if !models.SerialNumberPattern.MatchString(rec.SerialNumber) {
		return fail(fmt.Sprintf("serial %q does not match the voucher serial format", rec.SerialNumber))
	}
	if !models.VoucherNumberPattern.MatchString(rec.VoucherNumber) {
		return fail(fmt.Sprintf("voucher number %q does not match the top-up code format", rec.VoucherNumber))
	}
	if !rec.Denomination.IsPositive() {
		return fail("denomination must be positive")
	}
	if len(v.AllowedDenominations) > 0 {
		ok := false
		for _, d := range v.AllowedDenominations {
			if rec.Denomination.Equal(d) {
				ok = true
				break
			}
		}
		if !ok {
			return fail(fmt.Sprintf("denomination %s is not in the allowed set", rec.Denomination))
		}
	}
	return nil
}

// verifyUpstream asks Otoplus whether the serial was already redeemed. The
// verdict is advisory: "unknown" passes, "used" rejects, and an unreachable
// upstream rejects with a reason operators can tell apart from a real hit.
func (v *Validator) verifyUpstream(ctx context.Context, rec *models.VoucherRecord) *apperrors.ValidationError {
	status, err := v.verifier.Check(ctx, rec.SerialNumber)
	if err != nil {
		return &apperrors.ValidationError{
			Check:  apperrors.CheckVerification,
			Reason: fmt.Sprintf("upstream verification unreachable: %v", err),
		}
	}
	if status == VerificationUsed {
		return &apperrors.ValidationError{
			Check:  apperrors.CheckUpstreamUsage,
			Reason: fmt.Sprintf("serial %s already marked used upstream", rec.SerialNumber),
		}
	}
	return nil
}
