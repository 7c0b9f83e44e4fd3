package normalize

import (
	"github.com/go-playground/validator/v10"

	"github.com/mkitdev/mkit-input-voucher/internal/apperrors"
	"github.com/mkitdev/mkit-input-voucher/internal/models"
)

// FormInput is a manual entry submission. Field names mirror the upload
// template; validation tags catch malformed input before normalization.
type FormInput struct {
	SerialNumber  string `json:"serialNumber" validate:"required,alphanum,min=8,max=20"`
	VoucherNumber string `json:"voucherNumber" validate:"required,numeric,min=6,max=20"`
	ProductCode   string `json:"productCode" validate:"required,max=32"`
	Denomination  string `json:"denomination" validate:"required"`
	ExpiryDate    string `json:"expiryDate" validate:"omitempty"`
}

var formValidator = validator.New()

// fromForm maps named form fields directly onto the record
func fromForm(in Input) (models.VoucherRecord, error) {
	if err := formValidator.Struct(in.Form); err != nil {
		reason := err.Error()
		field := ""
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			field = errs[0].Field()
			reason = "failed " + errs[0].Tag() + " check"
		}
		return models.VoucherRecord{}, &apperrors.NormalizationError{
			Channel: string(in.Channel), Field: field, Reason: reason,
		}
	}

	return finalize(in,
		in.Form.SerialNumber,
		in.Form.VoucherNumber,
		in.Form.ProductCode,
		in.Form.Denomination,
		in.Form.ExpiryDate,
		in.Form,
	)
}
