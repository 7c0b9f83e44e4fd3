// Package normalize converts heterogeneous channel input (CSV rows, form
// fields, OCR text, AI-extracted fields) into the canonical voucher record
// shape. Normalizers are pure: no I/O, no shared state.
package normalize

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/mkitdev/mkit-input-voucher/internal/apperrors"
	"github.com/mkitdev/mkit-input-voucher/internal/models"
)

// Input carries one raw unit of channel input plus its channel tag.
// Exactly one of the channel-specific payloads is consulted per channel.
type Input struct {
	Channel    models.Channel
	BatchID    string
	Header     []string          // csv: column names, empty for positional files
	Row        []string          // csv: one data row
	Form       FormInput         // form: named fields
	Text       string            // ocr: free text from the OCR engine
	Fields     map[string]string // ai: structured fields from the model
	Confidence *float64          // ocr/ai: engine-reported confidence
}

// Record dispatches raw input to the normalizer for its channel and returns
// a record in normalized status, or a NormalizationError
func Record(in Input) (models.VoucherRecord, error) {
	switch in.Channel {
	case models.ChannelCSV:
		return fromCSVRow(in)
	case models.ChannelForm:
		return fromForm(in)
	case models.ChannelOCR:
		return fromOCRText(in)
	case models.ChannelAI:
		return fromAIFields(in)
	default:
		return models.VoucherRecord{}, &apperrors.NormalizationError{
			Channel: string(in.Channel), Reason: "unknown source channel",
		}
	}
}

// finalize applies the field rules shared by every channel and moves the
// record from ingested to normalized
func finalize(in Input, serial, voucher, product, amount, expiry string, raw interface{}) (models.VoucherRecord, error) {
	ch := string(in.Channel)

	serial = strings.ToUpper(strings.TrimSpace(serial))
	if serial == "" {
		return models.VoucherRecord{}, &apperrors.NormalizationError{Channel: ch, Field: "serial_number", Reason: "missing"}
	}
	voucher = strings.TrimSpace(voucher)
	if voucher == "" {
		return models.VoucherRecord{}, &apperrors.NormalizationError{Channel: ch, Field: "voucher_number", Reason: "missing"}
	}
	product = strings.ToUpper(strings.TrimSpace(product))
	if product == "" {
		return models.VoucherRecord{}, &apperrors.NormalizationError{Channel: ch, Field: "product_code", Reason: "missing"}
	}

	denom, err := ParseAmount(amount)
	if err != nil {
		return models.VoucherRecord{}, &apperrors.NormalizationError{Channel: ch, Field: "denomination", Reason: err.Error()}
	}

	var expiryDate *time.Time
	if strings.TrimSpace(expiry) != "" {
		parsed, err := parseDate(expiry)
		if err != nil {
			return models.VoucherRecord{}, &apperrors.NormalizationError{Channel: ch, Field: "expiry_date", Reason: err.Error()}
		}
		expiryDate = &parsed
	}

	rec := models.VoucherRecord{
		SerialNumber:  serial,
		VoucherNumber: voucher,
		ProductCode:   product,
		Denomination:  denom,
		ExpiryDate:    expiryDate,
		SourceChannel: in.Channel,
		BatchID:       in.BatchID,
		Status:        models.StatusIngested,
		RawPayload:    marshalRaw(raw),
	}

	// Confidence is present iff the channel is machine-read
	if in.Channel.IsMachineRead() {
		conf := 1.0
		if in.Confidence != nil {
			conf = *in.Confidence
		}
		if conf < 0 || conf > 1 {
			return models.VoucherRecord{}, &apperrors.NormalizationError{Channel: ch, Field: "confidence", Reason: "outside [0,1]"}
		}
		rec.Confidence = &conf
	}

	rec.Status = models.StatusNormalized
	return rec, nil
}

// ParseAmount parses a denomination string into a positive decimal. Accepts
// plain numbers plus the formats seen on physical vouchers and uploads:
// currency prefix ("Rp 10.000") and dot or comma thousand separators.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(strings.TrimPrefix(cleaned, "Rp"), "RP")
	cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "rp"))
	cleaned = strings.ReplaceAll(cleaned, " ", "")

	switch {
	case regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`).MatchString(cleaned):
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	case regexp.MustCompile(`^\d{1,3}(,\d{3})+$`).MatchString(cleaned):
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, errNonPositiveAmount
	}
	return d, nil
}

var errNonPositiveAmount = errString("denomination must be positive")

type errString string

func (e errString) Error() string { return string(e) }

var dateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006", "2006/01/02"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func marshalRaw(raw interface{}) datatypes.JSON {
	if raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}
