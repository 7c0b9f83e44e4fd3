package normalize

import (
	"strings"
	"testing"

	"github.com/mkitdev/mkit-input-voucher/internal/models"
)

func TestCSVRowWithHeader(t *testing.T) {
	in := Input{
		Channel: models.ChannelCSV,
		BatchID: "batch-1",
		Header:  []string{"serial_number", "voucher_number", "product_code", "denomination", "expiry_date"},
		Row:     []string{"ab12cd34ef", "123456789012", "tsel10", "10.000", "2026-12-31"},
	}

	rec, err := Record(in)
	if err != nil {
		t.Fatalf("Failed to normalize CSV row: %v", err)
	}

	if rec.Status != models.StatusNormalized {
		t.Errorf("Expected normalized status, got %s", rec.Status)
	}
	if rec.SerialNumber != "AB12CD34EF" {
		t.Errorf("Serial should be uppercased, got %q", rec.SerialNumber)
	}
	if rec.ProductCode != "TSEL10" {
		t.Errorf("Product code should be uppercased, got %q", rec.ProductCode)
	}
	if rec.Denomination.String() != "10000" {
		t.Errorf("Expected denomination 10000, got %s", rec.Denomination)
	}
	if rec.ExpiryDate == nil || rec.ExpiryDate.Year() != 2026 {
		t.Errorf("Expiry date not parsed: %v", rec.ExpiryDate)
	}
	if rec.Confidence != nil {
		t.Error("CSV records must not carry a confidence")
	}
}

func TestCSVRowWithAliasHeader(t *testing.T) {
	in := Input{
		Channel: models.ChannelCSV,
		BatchID: "batch-1",
		Header:  []string{"sn", "vn", "product", "nominal", "ed"},
		Row:     []string{"AB12CD34EF", "123456789012", "TSEL10", "10000", ""},
	}

	rec, err := Record(in)
	if err != nil {
		t.Fatalf("Failed to normalize aliased row: %v", err)
	}
	if rec.SerialNumber != "AB12CD34EF" || rec.VoucherNumber != "123456789012" {
		t.Errorf("Alias mapping wrong: %+v", rec)
	}
	if rec.ExpiryDate != nil {
		t.Error("Empty expiry column should stay nil")
	}
}

func TestCSVRowPositional(t *testing.T) {
	in := Input{
		Channel: models.ChannelCSV,
		BatchID: "batch-1",
		Row:     []string{"AB12CD34EF", "123456789012", "TSEL10", "10000"},
	}

	rec, err := Record(in)
	if err != nil {
		t.Fatalf("Failed to normalize positional row: %v", err)
	}
	if rec.VoucherNumber != "123456789012" {
		t.Errorf("Positional mapping wrong, got voucher %q", rec.VoucherNumber)
	}
}

func TestCSVRowMissingField(t *testing.T) {
	in := Input{
		Channel: models.ChannelCSV,
		BatchID: "batch-1",
		Row:     []string{"AB12CD34EF", "", "TSEL10", "10000"},
	}

	if _, err := Record(in); err == nil {
		t.Fatal("Expected normalization error for missing voucher number")
	}
}

func TestParseAmountFormats(t *testing.T) {
	cases := map[string]string{
		"10000":     "10000",
		"10.000":    "10000",
		"10,000":    "10000",
		"Rp 50.000": "50000",
		"Rp100.000": "100000",
		"25000.50":  "25000.5",
	}
	for input, want := range cases {
		got, err := ParseAmount(input)
		if err != nil {
			t.Errorf("ParseAmount(%q) failed: %v", input, err)
			continue
		}
		if got.String() != want {
			t.Errorf("ParseAmount(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestParseAmountRejectsNonPositive(t *testing.T) {
	for _, input := range []string{"0", "-5000", "abc", ""} {
		if _, err := ParseAmount(input); err == nil {
			t.Errorf("ParseAmount(%q) should fail", input)
		}
	}
}

func TestFormChannelValidation(t *testing.T) {
	in := Input{
		Channel: models.ChannelForm,
		BatchID: "batch-1",
		Form: FormInput{
			SerialNumber:  "AB12CD34EF",
			VoucherNumber: "123456789012",
			ProductCode:   "TSEL10",
			Denomination:  "10000",
		},
	}

	rec, err := Record(in)
	if err != nil {
		t.Fatalf("Failed to normalize form input: %v", err)
	}
	if rec.Confidence != nil {
		t.Error("Form records must not carry a confidence")
	}

	in.Form.SerialNumber = "too short!" // not alphanumeric, too short
	if _, err := Record(in); err == nil {
		t.Fatal("Expected validation failure for malformed serial")
	}
}

func TestAIChannelRequiresConfidence(t *testing.T) {
	fields := map[string]string{
		"serial_number":  "AB12CD34EF",
		"voucher_number": "123456789012",
		"product_code":   "TSEL10",
		"denomination":   "10000",
	}

	in := Input{Channel: models.ChannelAI, BatchID: "batch-1", Fields: fields}
	if _, err := Record(in); err == nil {
		t.Fatal("AI input without confidence should fail normalization")
	}

	conf := 0.87
	in.Confidence = &conf
	rec, err := Record(in)
	if err != nil {
		t.Fatalf("Failed to normalize AI fields: %v", err)
	}
	if rec.Confidence == nil || *rec.Confidence != 0.87 {
		t.Errorf("Expected confidence 0.87, got %v", rec.Confidence)
	}
}

func TestUnknownChannelFails(t *testing.T) {
	if _, err := Record(Input{Channel: "fax", BatchID: "b"}); err == nil {
		t.Fatal("Unknown channel should fail normalization")
	}
}

func TestReadUploadFileCSV(t *testing.T) {
	content := "serial_number,voucher_number,product_code,denomination\nAB12CD34EF,123456789012,TSEL10,10000\n"
	rows, err := ReadUploadFile("vouchers.csv", strings.NewReader(content))
	if err != nil {
		t.Fatalf("Failed to read CSV upload: %v", err)
	}
	if len(rows.Header) != 4 {
		t.Errorf("Expected 4 header columns, got %d", len(rows.Header))
	}
	if len(rows.Rows) != 1 {
		t.Fatalf("Expected 1 data row, got %d", len(rows.Rows))
	}
}

func TestReadUploadFileTXTDetectsDelimiter(t *testing.T) {
	content := "AB12CD34EF;123456789012;TSEL10;10000\nCD34EF56GH;210987654321;TSEL20;20000\n"
	rows, err := ReadUploadFile("vouchers.txt", strings.NewReader(content))
	if err != nil {
		t.Fatalf("Failed to read TXT upload: %v", err)
	}
	if len(rows.Header) != 0 {
		t.Error("Header-less file should have no header")
	}
	if len(rows.Rows) != 2 || len(rows.Rows[0]) != 4 {
		t.Fatalf("Delimiter detection failed: %v", rows.Rows)
	}
}

func TestReadUploadFileUnsupported(t *testing.T) {
	if _, err := ReadUploadFile("vouchers.pdf", strings.NewReader("x")); err == nil {
		t.Fatal("Unsupported extension should fail")
	}
}
