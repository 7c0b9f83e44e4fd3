package handlers

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/mkitdev/mkit-input-voucher/internal/models"
	"github.com/mkitdev/mkit-input-voucher/internal/normalize"
)

const maxUploadBytes = 16 << 20 // 16MB

// handleUpload ingests a bulk CSV/TXT/XLSX file as one batch. Every row gets
// an individual outcome; a bad row never blocks its siblings.
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, req, http.StatusBadRequest, "invalid multipart request")
		return
	}

	file, header, err := req.FormFile("file")
	if err != nil {
		respondError(w, req, http.StatusBadRequest, "missing upload file")
		return
	}
	defer file.Close()

	rows, err := normalize.ReadUploadFile(header.Filename, file)
	if err != nil {
		respondError(w, req, http.StatusBadRequest, err.Error())
		return
	}
	if len(rows.Rows) == 0 {
		respondError(w, req, http.StatusBadRequest, "upload contains no data rows")
		return
	}

	inputs := make([]normalize.Input, len(rows.Rows))
	for i, row := range rows.Rows {
		inputs[i] = normalize.Input{
			Channel: models.ChannelCSV,
			Header:  rows.Header,
			Row:     row,
		}
	}

	batch := &models.Batch{
		ID:          uuid.NewString(),
		SubmittedBy: operatorFrom(req, req.FormValue("submittedBy")),
		Channel:     models.ChannelCSV,
	}

	result, err := r.pipe.IngestBatch(req.Context(), batch, inputs)
	if err != nil {
		respondError(w, req, http.StatusInternalServerError,
			fmt.Sprintf("failed to ingest upload: %v", err))
		return
	}

	respondJSON(w, http.StatusCreated, result)
}
