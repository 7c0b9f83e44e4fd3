package normalize

import (
	"github.com/mkitdev/mkit-input-voucher/internal/apperrors"
	"github.com/mkitdev/mkit-input-voucher/internal/models"
)

// fromAIFields passes through already-structured model output with type
// coercion only. The model must report a confidence; a missing one is a
// protocol violation, not a zero.
func fromAIFields(in Input) (models.VoucherRecord, error) {
	if in.Fields == nil {
		return models.VoucherRecord{}, &apperrors.NormalizationError{
			Channel: string(in.Channel), Reason: "missing structured fields",
		}
	}
	if in.Confidence == nil {
		return models.VoucherRecord{}, &apperrors.NormalizationError{
			Channel: string(in.Channel), Field: "confidence", Reason: "missing",
		}
	}

	return finalize(in,
		in.Fields["serial_number"],
		in.Fields["voucher_number"],
		in.Fields["product_code"],
		in.Fields["denomination"],
		in.Fields["expiry_date"],
		in.Fields,
	)
}
