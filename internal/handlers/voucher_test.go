package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mkitdev/mkit-input-voucher/internal/apperrors"
	"github.com/mkitdev/mkit-input-voucher/internal/commit"
	"github.com/mkitdev/mkit-input-voucher/internal/models"
	"github.com/mkitdev/mkit-input-voucher/internal/pipeline"
	"github.com/mkitdev/mkit-input-voucher/internal/review"
	"github.com/mkitdev/mkit-input-voucher/internal/staging"
	"github.com/mkitdev/mkit-input-voucher/internal/validate"
	ws "github.com/mkitdev/mkit-input-voucher/internal/websocket"
)

// flakyStore fails the duplicate index lookup, simulating a staging backend
// outage mid-request
type flakyStore struct {
	*staging.MemoryStore
	indexErr error
}

func (s *flakyStore) HasActiveSerial(ctx context.Context, serial string) (bool, error) {
	if s.indexErr != nil {
		return false, s.indexErr
	}
	return s.MemoryStore.HasActiveSerial(ctx, serial)
}

func newTestRouter(store staging.Store) *Router {
	validator := validate.New(store, nil)
	pipe := pipeline.New(store, validator)
	return NewRouter(store, pipe, review.NewService(store), commit.New(store, nil),
		nil, nil, nil, ws.NewHub())
}

func postFormEntry(router *Router, payload map[string]string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/vouchers", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestFormEntryStoreOutageIsNotSuccess(t *testing.T) {
	mem := staging.NewMemoryStore()
	store := &flakyStore{MemoryStore: mem, indexErr: errors.New("connection refused")}
	router := newTestRouter(store)
	ctx := context.Background()

	if err := mem.CreateBatch(ctx, &models.Batch{ID: "b1", SubmittedBy: "ops"}); err != nil {
		t.Fatal(err)
	}

	rr := postFormEntry(router, map[string]string{
		"serialNumber":  "AB12CD34EF",
		"voucherNumber": "123456789012",
		"productCode":   "TSEL10",
		"denomination":  "10000",
		"batchId":       "b1",
	})

	if rr.Code < http.StatusInternalServerError {
		t.Fatalf("Store outage must surface as a server error, got %d: %s", rr.Code, rr.Body)
	}
	if _, err := mem.Get(ctx, "AB12CD34EF"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Error("Nothing may be persisted when the duplicate check fails")
	}
	batch, _ := mem.GetBatch(ctx, "b1")
	if batch.RecordCount != 0 {
		t.Errorf("Batch record count must not change on a failed submission, got %d", batch.RecordCount)
	}
}

func TestFormEntrySuccessAddsToBatch(t *testing.T) {
	mem := staging.NewMemoryStore()
	router := newTestRouter(mem)
	ctx := context.Background()

	if err := mem.CreateBatch(ctx, &models.Batch{ID: "b1", SubmittedBy: "ops"}); err != nil {
		t.Fatal(err)
	}

	rr := postFormEntry(router, map[string]string{
		"serialNumber":  "AB12CD34EF",
		"voucherNumber": "123456789012",
		"productCode":   "TSEL10",
		"denomination":  "10000",
		"batchId":       "b1",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body)
	}
	rec, err := mem.Get(ctx, "AB12CD34EF")
	if err != nil || rec.Status != models.StatusStaged {
		t.Fatalf("Record should be staged: %v %s", err, rec.Status)
	}
	batch, _ := mem.GetBatch(ctx, "b1")
	if batch.RecordCount != 1 {
		t.Errorf("Batch record count should be 1, got %d", batch.RecordCount)
	}
}

func TestFormEntryDuplicateIsRecordedRejection(t *testing.T) {
	mem := staging.NewMemoryStore()
	router := newTestRouter(mem)
	ctx := context.Background()

	if err := mem.CreateBatch(ctx, &models.Batch{ID: "b1", SubmittedBy: "ops"}); err != nil {
		t.Fatal(err)
	}
	holder := models.VoucherRecord{
		SerialNumber:  "AB12CD34EF",
		VoucherNumber: "123456789012",
		ProductCode:   "TSEL10",
		Denomination:  decimal.NewFromInt(10000),
		SourceChannel: models.ChannelCSV,
		BatchID:       "b0",
		Status:        models.StatusValidated,
	}
	if err := mem.Put(ctx, &holder); err != nil {
		t.Fatal(err)
	}

	rr := postFormEntry(router, map[string]string{
		"serialNumber":  "AB12CD34EF",
		"voucherNumber": "123456789012",
		"productCode":   "TSEL10",
		"denomination":  "10000",
		"batchId":       "b1",
	})

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Duplicate should report 422, got %d: %s", rr.Code, rr.Body)
	}

	// the rejection is a recorded outcome, so it counts toward the batch
	recs, _ := mem.ListBatch(ctx, "b1")
	if len(recs) != 1 || recs[0].Status != models.StatusRejected {
		t.Fatalf("Rejection should be persisted in the batch: %+v", recs)
	}
	batch, _ := mem.GetBatch(ctx, "b1")
	if batch.RecordCount != 1 {
		t.Errorf("Recorded rejection should count, got %d", batch.RecordCount)
	}
}
