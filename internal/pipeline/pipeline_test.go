package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/mkitdev/mkit-input-voucher/internal/apperrors"
	"github.com/mkitdev/mkit-input-voucher/internal/models"
	"github.com/mkitdev/mkit-input-voucher/internal/normalize"
	"github.com/mkitdev/mkit-input-voucher/internal/staging"
	"github.com/mkitdev/mkit-input-voucher/internal/validate"
)

func newTestPipeline() (*Pipeline, *staging.MemoryStore) {
	store := staging.NewMemoryStore()
	return New(store, validate.New(store, nil)), store
}

func csvInput(serial string) normalize.Input {
	return normalize.Input{
		Channel: models.ChannelCSV,
		Row:     []string{serial, "123456789012", "TSEL10", "10000"},
	}
}

func TestIngestBatchMixedOutcomes(t *testing.T) {
	pipe, store := newTestPipeline()
	ctx := context.Background()

	inputs := []normalize.Input{
		csvInput("AB12CD34EF"),                // clean
		csvInput("CD34EF56GH"),                // clean
		csvInput("AB12CD34EF"),                // duplicate of row 0
		{Channel: models.ChannelCSV, Row: []string{"", "1", "X"}}, // unparseable
		csvInput("bad!serial"),                // fails format check
	}

	batch := &models.Batch{ID: uuid.NewString(), SubmittedBy: "ops", Channel: models.ChannelCSV}
	result, err := pipe.IngestBatch(ctx, batch, inputs)
	if err != nil {
		t.Fatalf("IngestBatch failed: %v", err)
	}

	if len(result.Outcomes) != 5 {
		t.Fatalf("Expected 5 outcomes, got %d", len(result.Outcomes))
	}
	if result.Report.Staged != 2 {
		t.Errorf("Expected 2 staged, got %d", result.Report.Staged)
	}
	if result.Report.Rejected != 2 {
		// the duplicate and the malformed serial are persisted rejections
		t.Errorf("Expected 2 rejected, got %d", result.Report.Rejected)
	}

	byIndex := make(map[int]RowOutcome, len(result.Outcomes))
	for _, out := range result.Outcomes {
		byIndex[out.Index] = out
	}
	if byIndex[3].Status != models.StatusIngested || byIndex[3].Reason == "" {
		t.Errorf("Unparseable row should stay ingested with a reason: %+v", byIndex[3])
	}
	if byIndex[4].Status != models.StatusRejected {
		t.Errorf("Malformed serial should be rejected: %+v", byIndex[4])
	}

	// exactly one of rows 0 and 2 staged the serial
	stagedCount := 0
	for _, idx := range []int{0, 2} {
		if byIndex[idx].Status == models.StatusStaged {
			stagedCount++
		}
	}
	if stagedCount != 1 {
		t.Errorf("Exactly one duplicate submission may stage, got %d", stagedCount)
	}

	if _, err := store.Get(ctx, "CD34EF56GH"); err != nil {
		t.Errorf("Clean record should be retrievable: %v", err)
	}
}

func TestIngestBatchKeepsInputOrder(t *testing.T) {
	pipe, _ := newTestPipeline()

	var inputs []normalize.Input
	serials := []string{"AB12CD34EF", "CD34EF56GH", "EF56GH78IJ", "GH78IJ90KL"}
	for _, sn := range serials {
		inputs = append(inputs, csvInput(sn))
	}

	batch := &models.Batch{ID: uuid.NewString(), SubmittedBy: "ops"}
	result, err := pipe.IngestBatch(context.Background(), batch, inputs)
	if err != nil {
		t.Fatalf("IngestBatch failed: %v", err)
	}
	for i, out := range result.Outcomes {
		if out.Index != i {
			t.Errorf("Outcome %d carries index %d", i, out.Index)
		}
		if out.SerialNumber != serials[i] {
			t.Errorf("Outcome %d: expected %s, got %s", i, serials[i], out.SerialNumber)
		}
	}
}

func TestIngestOneDuplicateRace(t *testing.T) {
	// many goroutines push the same serial: one staged record, the rest
	// persisted as rejections
	pipe, store := newTestPipeline()
	ctx := context.Background()

	var inputs []normalize.Input
	for i := 0; i < 8; i++ {
		in := csvInput("AB12CD34EF")
		in.BatchID = "race"
		inputs = append(inputs, in)
	}

	batch := &models.Batch{ID: "race", SubmittedBy: "ops"}
	result, err := pipe.IngestBatch(ctx, batch, inputs)
	if err != nil {
		t.Fatalf("IngestBatch failed: %v", err)
	}
	if result.Report.Staged != 1 {
		t.Errorf("Expected exactly 1 staged, got %d", result.Report.Staged)
	}
	if result.Report.Rejected != 7 {
		t.Errorf("Expected 7 rejections, got %d", result.Report.Rejected)
	}

	rec, err := store.Get(ctx, "AB12CD34EF")
	if err != nil {
		t.Fatalf("Winner should be retrievable: %v", err)
	}
	if rec.Status != models.StatusStaged {
		t.Errorf("Winner should be staged, got %s", rec.Status)
	}
}

func TestIngestOneNormalizationFailure(t *testing.T) {
	pipe, _ := newTestPipeline()

	_, err := pipe.IngestOne(context.Background(), normalize.Input{
		Channel: models.ChannelCSV,
		BatchID: "b1",
		Row:     []string{"AB12CD34EF"},
	})
	var nerr *apperrors.NormalizationError
	if !errors.As(err, &nerr) {
		t.Fatalf("Expected normalization error, got %v", err)
	}
}

func TestIngestOneConfidenceByChannel(t *testing.T) {
	pipe, _ := newTestPipeline()
	ctx := context.Background()

	rec, err := pipe.IngestOne(ctx, normalize.Input{
		Channel: models.ChannelCSV,
		BatchID: "b1",
		Row:     []string{"AB12CD34EF", "123456789012", "TSEL10", "10000"},
	})
	if err != nil {
		t.Fatalf("CSV ingest failed: %v", err)
	}
	if rec.Confidence != nil {
		t.Error("Deterministic channel records must not carry a confidence")
	}

	conf := 0.75
	rec, err = pipe.IngestOne(ctx, normalize.Input{
		Channel:    models.ChannelAI,
		BatchID:    "b1",
		Confidence: &conf,
		Fields: map[string]string{
			"serial_number":  "CD34EF56GH",
			"voucher_number": "210987654321",
			"product_code":   "TSEL20",
			"denomination":   "20000",
		},
	})
	if err != nil {
		t.Fatalf("AI ingest failed: %v", err)
	}
	if rec.Confidence == nil || *rec.Confidence != 0.75 {
		t.Errorf("AI record should keep its confidence, got %v", rec.Confidence)
	}
}

func TestIngestOneRejectionIsPersisted(t *testing.T) {
	pipe, store := newTestPipeline()
	ctx := context.Background()

	in := normalize.Input{
		Channel: models.ChannelCSV,
		BatchID: "b1",
		Row:     []string{fmt.Sprintf("%s!!", "AB12CD34"), "123456789012", "TSEL10", "10000"},
	}
	rec, err := pipe.IngestOne(ctx, in)
	if err == nil {
		t.Fatal("Expected validation rejection")
	}
	if rec.Status != models.StatusRejected {
		t.Fatalf("Expected rejected record, got %s", rec.Status)
	}

	recs, err := store.ListBatch(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Status != models.StatusRejected {
		t.Fatalf("Rejection should be persisted for audit: %+v", recs)
	}
	if recs[0].RejectionReason == "" {
		t.Error("Persisted rejection must carry its reason")
	}
}
