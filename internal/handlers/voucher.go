package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/mkitdev/mkit-input-voucher/internal/apperrors"
	"github.com/mkitdev/mkit-input-voucher/internal/models"
	"github.com/mkitdev/mkit-input-voucher/internal/normalize"
	"github.com/mkitdev/mkit-input-voucher/internal/pipeline"
)

// singleEntryResponse reports the outcome of a one-record submission
type singleEntryResponse struct {
	BatchID string               `json:"batchId"`
	Record  models.VoucherRecord `json:"record"`
}

// ingestSingle pushes one raw input through the funnel, opening a fresh
// single-record batch unless the submission targets an existing one
func (r *Router) ingestSingle(w http.ResponseWriter, req *http.Request, in normalize.Input, batchID string, channel models.Channel) {
	ctx := req.Context()

	if batchID == "" {
		batch := &models.Batch{
			ID:          uuid.NewString(),
			SubmittedBy: operatorFrom(req, ""),
			Channel:     channel,
		}
		result, err := r.pipe.IngestBatch(ctx, batch, []normalize.Input{in})
		if err != nil {
			respondError(w, req, http.StatusInternalServerError, err.Error())
			return
		}
		r.respondSingle(w, req, batch.ID, result)
		return
	}

	if _, err := r.store.GetBatch(ctx, batchID); err != nil {
		respondDomainError(w, req, err)
		return
	}
	in.BatchID = batchID

	rec, err := r.pipe.IngestOne(ctx, in)
	if err != nil {
		// only a recorded rejection verdict is a per-record outcome the client
		// can act on; normalization failures and infrastructure errors
		// persisted nothing and must not read as success
		var verr *apperrors.ValidationError
		if !errors.As(err, &verr) && !errors.Is(err, apperrors.ErrDuplicateSerial) {
			respondDomainError(w, req, err)
			return
		}
	}
	_ = r.store.AddBatchRecords(ctx, batchID, 1)

	status := http.StatusCreated
	if rec.Status == models.StatusRejected {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, singleEntryResponse{BatchID: batchID, Record: rec})
}

func (r *Router) respondSingle(w http.ResponseWriter, req *http.Request, batchID string, result pipeline.IngestResult) {
	recs, err := r.store.ListBatch(req.Context(), batchID)
	if err != nil || len(recs) == 0 {
		// normalization failure: the outcome is all we have
		if len(result.Outcomes) > 0 && result.Outcomes[0].Reason != "" {
			respondError(w, req, http.StatusBadRequest, result.Outcomes[0].Reason)
			return
		}
		respondError(w, req, http.StatusInternalServerError, "record was not persisted")
		return
	}

	rec := recs[0]
	status := http.StatusCreated
	if rec.Status == models.StatusRejected {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, singleEntryResponse{BatchID: batchID, Record: rec})
}

// handleFormEntry ingests one manually keyed voucher
func (r *Router) handleFormEntry(w http.ResponseWriter, req *http.Request) {
	var body struct {
		normalize.FormInput
		BatchID string `json:"batchId"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, req, http.StatusBadRequest, "invalid request body")
		return
	}

	in := normalize.Input{Channel: models.ChannelForm, Form: body.FormInput}
	r.ingestSingle(w, req, in, body.BatchID, models.ChannelForm)
}

// handleScan ingests raw OCR text produced by the external OCR capability.
// The text is untrusted; the funnel re-validates everything it extracts.
func (r *Router) handleScan(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Text         string   `json:"text"`
		ProductCode  string   `json:"productCode"`
		Denomination string   `json:"denomination"`
		Confidence   *float64 `json:"confidence"`
		BatchID      string   `json:"batchId"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, req, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Text == "" {
		respondError(w, req, http.StatusBadRequest, "missing OCR text")
		return
	}

	in := normalize.Input{
		Channel:    models.ChannelOCR,
		Text:       body.Text,
		Confidence: body.Confidence,
		Fields: map[string]string{
			"product_code": body.ProductCode,
			"denomination": body.Denomination,
		},
	}
	r.ingestSingle(w, req, in, body.BatchID, models.ChannelOCR)
}

// handlePhoto runs an uploaded voucher photo through the AI parser and
// ingests the extracted candidate fields
func (r *Router) handlePhoto(w http.ResponseWriter, req *http.Request) {
	if r.parser == nil {
		respondError(w, req, http.StatusServiceUnavailable, "AI photo parsing is not configured")
		return
	}

	req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, req, http.StatusBadRequest, "invalid multipart request")
		return
	}

	file, header, err := req.FormFile("image")
	if err != nil {
		respondError(w, req, http.StatusBadRequest, "missing image file")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		respondError(w, req, http.StatusBadRequest, "unreadable image file")
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	parsed, err := r.parser.ParseVoucherPhoto(req.Context(), image, mimeType)
	if err != nil {
		respondError(w, req, http.StatusBadGateway, err.Error())
		return
	}

	in := normalize.Input{
		Channel:    models.ChannelAI,
		Fields:     parsed.Fields(),
		Confidence: &parsed.Confidence,
	}
	r.ingestSingle(w, req, in, req.FormValue("batchId"), models.ChannelAI)
}
