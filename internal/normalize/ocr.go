package normalize

import (
	"regexp"
	"strings"

	"github.com/mkitdev/mkit-input-voucher/internal/apperrors"
	"github.com/mkitdev/mkit-input-voucher/internal/models"
)

// Labeled field patterns as they appear printed on vouchers. The OCR engine
// output is untrusted free text; labels are matched case-insensitively and
// the values re-checked against the canonical field patterns downstream.
var (
	ocrSerialRe  = regexp.MustCompile(`(?i)\b(?:SN|S/N|SERIAL(?:\s*(?:NO|NUMBER))?)\s*[:.]?\s*([A-Z0-9]{8,20})\b`)
	ocrVoucherRe = regexp.MustCompile(`(?i)\b(?:VN|VOUCHER(?:\s*(?:NO|NUMBER))?|KODE)\s*[:.]?\s*([0-9]{6,20})\b`)
	ocrProductRe = regexp.MustCompile(`(?i)\b(?:PRODUCT|PRODUK)\s*[:.]?\s*([A-Z0-9_-]{2,32})\b`)
	ocrAmountRe  = regexp.MustCompile(`(?i)\bRp\s*\.?\s*([\d.,]+)\b`)
	ocrExpiryRe  = regexp.MustCompile(`(?i)\b(?:ED|EXP(?:IRY|IRED)?(?:\s*DATE)?)\s*[:.]?\s*([0-9/-]{8,10})\b`)

	ocrDigitRunRe = regexp.MustCompile(`\b[0-9]{10,20}\b`)
	ocrAlnumRe    = regexp.MustCompile(`\b[A-Z0-9]{10,20}\b`)
)

const (
	confidenceLabeled   = 0.9
	confidenceHeuristic = 0.6
)

// fromOCRText extracts voucher fields from free OCR text. Labeled matches are
// preferred; bare pattern matches are a lower-confidence fallback. Operator
// hints in Fields (product code, denomination) fill what the scan missed.
func fromOCRText(in Input) (models.VoucherRecord, error) {
	text := strings.ToUpper(in.Text)
	if strings.TrimSpace(text) == "" {
		return models.VoucherRecord{}, &apperrors.NormalizationError{
			Channel: string(in.Channel), Reason: "empty OCR text",
		}
	}

	labeled := true
	serial := firstGroup(ocrSerialRe, text)
	voucher := firstGroup(ocrVoucherRe, text)

	// Fallback: a long digit run is the voucher number, a mixed alphanumeric
	// token is the serial. Pure-digit serials are indistinguishable from
	// voucher numbers without labels, so those stay unresolved.
	if voucher == "" {
		voucher = firstMatchExcluding(ocrDigitRunRe, text, serial)
		labeled = false
	}
	if serial == "" {
		for _, tok := range ocrAlnumRe.FindAllString(text, -1) {
			if tok != voucher && hasLetterAndDigit(tok) {
				serial = tok
				labeled = false
				break
			}
		}
	}

	product := firstGroup(ocrProductRe, text)
	if product == "" {
		product = in.Fields["product_code"]
	}
	amount := firstGroup(ocrAmountRe, text)
	if amount == "" {
		amount = in.Fields["denomination"]
	}
	expiry := firstGroup(ocrExpiryRe, text)

	if in.Confidence == nil {
		conf := confidenceHeuristic
		if labeled {
			conf = confidenceLabeled
		}
		in.Confidence = &conf
	}

	return finalize(in, serial, voucher, product, amount, expiry, map[string]string{"text": in.Text})
}

func firstGroup(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	return ""
}

func firstMatchExcluding(re *regexp.Regexp, text, exclude string) string {
	for _, tok := range re.FindAllString(text, -1) {
		if tok != exclude {
			return tok
		}
	}
	return ""
}

func hasLetterAndDigit(s string) bool {
	hasLetter, hasDigit := false, false
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}
