package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mkitdev/mkit-input-voucher/internal/report"
)

// getBatch returns the batch row plus its aggregated per-status counts
func (r *Router) getBatch(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	batch, err := r.store.GetBatch(req.Context(), id)
	if err != nil {
		respondDomainError(w, req, err)
		return
	}
	rep, err := r.store.Report(req.Context(), id)
	if err != nil {
		respondDomainError(w, req, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"batch":  batch,
		"report": rep,
	})
}

// listBatchRecords returns every record of a batch for the preview screen,
// with stored photos attached when the photo-search service is configured
func (r *Router) listBatchRecords(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	if _, err := r.store.GetBatch(req.Context(), id); err != nil {
		respondDomainError(w, req, err)
		return
	}
	recs, err := r.store.ListBatch(req.Context(), id)
	if err != nil {
		respondDomainError(w, req, err)
		return
	}

	payload := map[string]interface{}{"records": recs}
	if r.photos != nil {
		if refs, err := r.photos.ByBatch(req.Context(), id); err == nil {
			payload["photos"] = refs
		}
	}
	respondJSON(w, http.StatusOK, payload)
}

// confirmBatch confirms staged records, all of them or a listed subset
func (r *Router) confirmBatch(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var body struct {
		Serials []string `json:"serials"`
	}
	if req.ContentLength > 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			respondError(w, req, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if _, err := r.store.GetBatch(req.Context(), id); err != nil {
		respondDomainError(w, req, err)
		return
	}

	rep, err := r.reviewer.ConfirmBatch(req.Context(), id, body.Serials)
	if err != nil {
		respondJSON(w, http.StatusMultiStatus, map[string]interface{}{
			"report": rep,
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"report": rep})
}

// commitBatch pushes every previewed record of the batch into the core.
// Partial failures are reported, never rolled back.
func (r *Router) commitBatch(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	if _, err := r.store.GetBatch(req.Context(), id); err != nil {
		respondDomainError(w, req, err)
		return
	}

	rep, err := r.committer.CommitBatch(req.Context(), id)
	if err != nil {
		respondDomainError(w, req, err)
		return
	}

	payload := map[string]interface{}{"report": rep}
	if rep.CommitFailed > 0 {
		failed, err := r.committer.Failed(req.Context(), id)
		if err == nil {
			payload["failed"] = failed
		}
	}
	respondJSON(w, http.StatusOK, payload)
}

// batchManifest streams the printable PDF manifest for a batch
func (r *Router) batchManifest(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	batch, err := r.store.GetBatch(req.Context(), id)
	if err != nil {
		respondDomainError(w, req, err)
		return
	}
	recs, err := r.store.ListBatch(req.Context(), id)
	if err != nil {
		respondDomainError(w, req, err)
		return
	}

	pdf, err := report.GenerateManifestPDF(batch, recs)
	if err != nil {
		respondError(w, req, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=manifest-%s.pdf", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
