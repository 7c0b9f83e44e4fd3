// Package report renders printable batch manifests so operators can
// reconcile staged records against the physical voucher stack.
package report

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/mkitdev/mkit-input-voucher/internal/models"
)

// GenerateManifestPDF creates an A4 manifest for a batch: one row per record
// with its status and a QR code of the serial number for handheld scanning
func GenerateManifestPDF(batch models.Batch, records []models.VoucherRecord) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, fmt.Sprintf("Voucher Batch Manifest %s", batch.ID))
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Submitted by %s | channel %s | %d records | review: %s",
		batch.SubmittedBy, batch.Channel, batch.RecordCount, batch.ReviewStatus))
	pdf.Ln(10)

	const rowH = 16.0
	headers := []struct {
		label string
		width float64
	}{
		{"QR", 18}, {"Serial", 42}, {"Voucher No", 38}, {"Product", 24},
		{"Amount", 24}, {"Status", 44},
	}

	pdf.SetFont("Arial", "B", 9)
	for _, h := range headers {
		pdf.CellFormat(h.width, 7, h.label, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for i, rec := range records {
		if pdf.GetY()+rowH > 282 {
			pdf.AddPage()
		}
		x, y := pdf.GetXY()

		qrPng, err := qrcode.Encode(rec.SerialNumber, qrcode.Low, 128)
		if err != nil {
			return nil, fmt.Errorf("failed to encode QR for %s: %w", rec.SerialNumber, err)
		}
		imgName := fmt.Sprintf("qr-%d", i)
		pdf.RegisterImageOptionsReader(imgName,
			gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qrPng))
		pdf.ImageOptions(imgName, x+1.5, y+1.5, rowH-3, rowH-3, false,
			gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")

		status := string(rec.Status)
		if rec.RejectionReason != "" {
			status = fmt.Sprintf("%s: %.40s", rec.Status, rec.RejectionReason)
		}

		cells := []struct {
			text  string
			width float64
		}{
			{"", 18},
			{rec.SerialNumber, 42},
			{rec.VoucherNumber, 38},
			{rec.ProductCode, 24},
			{rec.Denomination.String(), 24},
			{status, 44},
		}
		for _, c := range cells {
			pdf.CellFormat(c.width, rowH, c.text, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render manifest: %w", err)
	}
	return buf.Bytes(), nil
}
