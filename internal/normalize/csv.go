package normalize

import (
	"strings"

	"github.com/mkitdev/mkit-input-voucher/internal/apperrors"
	"github.com/mkitdev/mkit-input-voucher/internal/models"
)

// Column aliases accepted in upload headers. The predefined template uses the
// long names; the short aliases match the original voucher schema (sn, vn, ed).
var columnAliases = map[string]string{
	"serial_number":  "serial_number",
	"serialnumber":   "serial_number",
	"serial":         "serial_number",
	"sn":             "serial_number",
	"voucher_number": "voucher_number",
	"vouchernumber":  "voucher_number",
	"voucher":        "voucher_number",
	"vn":             "voucher_number",
	"product_code":   "product_code",
	"productcode":    "product_code",
	"product":        "product_code",
	"denomination":   "denomination",
	"amount":         "denomination",
	"nominal":        "denomination",
	"expiry_date":    "expiry_date",
	"expirydate":     "expiry_date",
	"expiry":         "expiry_date",
	"ed":             "expiry_date",
}

// Positional column order for header-less files, matching the template
var positionalColumns = []string{"serial_number", "voucher_number", "product_code", "denomination", "expiry_date"}

// HasHeader reports whether a first row looks like a template header row
func HasHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	_, ok := columnAliases[canonicalColumn(row[0])]
	return ok
}

func canonicalColumn(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// fromCSVRow maps one delimited file row to a record, by header name when a
// header is present, positionally otherwise
func fromCSVRow(in Input) (models.VoucherRecord, error) {
	fields := map[string]string{}

	if len(in.Header) > 0 {
		if len(in.Row) > len(in.Header) {
			return models.VoucherRecord{}, &apperrors.NormalizationError{
				Channel: string(in.Channel), Reason: "row has more columns than header",
			}
		}
		for i, cell := range in.Row {
			canonical, ok := columnAliases[canonicalColumn(in.Header[i])]
			if !ok {
				continue // unknown columns in the template are ignored
			}
			fields[canonical] = cell
		}
	} else {
		if len(in.Row) > len(positionalColumns) {
			return models.VoucherRecord{}, &apperrors.NormalizationError{
				Channel: string(in.Channel), Reason: "too many columns for positional template",
			}
		}
		for i, cell := range in.Row {
			fields[positionalColumns[i]] = cell
		}
	}

	return finalize(in,
		fields["serial_number"],
		fields["voucher_number"],
		fields["product_code"],
		fields["denomination"],
		fields["expiry_date"],
		in.Row,
	)
}
