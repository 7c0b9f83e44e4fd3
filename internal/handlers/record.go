package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// getRecord returns the active record for a serial number, with its stored
// photos when photo search is configured
func (r *Router) getRecord(w http.ResponseWriter, req *http.Request) {
	serial := mux.Vars(req)["serial"]

	rec, err := r.store.Get(req.Context(), serial)
	if err != nil {
		respondDomainError(w, req, err)
		return
	}

	payload := map[string]interface{}{"record": rec}
	if r.photos != nil {
		if refs, err := r.photos.BySerial(req.Context(), serial); err == nil {
			payload["photos"] = refs
		}
	}
	respondJSON(w, http.StatusOK, payload)
}

// confirmRecord transitions one staged record to previewed
func (r *Router) confirmRecord(w http.ResponseWriter, req *http.Request) {
	serial := mux.Vars(req)["serial"]

	if err := r.reviewer.Confirm(req.Context(), serial); err != nil {
		respondDomainError(w, req, err)
		return
	}
	rec, err := r.store.Get(req.Context(), serial)
	if err != nil {
		respondDomainError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// rejectRecord rejects one staged record during review, releasing its serial
func (r *Router) rejectRecord(w http.ResponseWriter, req *http.Request) {
	serial := mux.Vars(req)["serial"]

	var body struct {
		Reason string `json:"reason"`
	}
	if req.ContentLength > 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			respondError(w, req, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := r.reviewer.Reject(req.Context(), serial, body.Reason); err != nil {
		respondDomainError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"serialNumber": serial,
		"status":       "rejected",
	})
}

// retryRecord moves a commit_failed record back to staged for another round
func (r *Router) retryRecord(w http.ResponseWriter, req *http.Request) {
	serial := mux.Vars(req)["serial"]

	if err := r.committer.Retry(req.Context(), serial); err != nil {
		respondDomainError(w, req, err)
		return
	}
	rec, err := r.store.Get(req.Context(), serial)
	if err != nil {
		respondDomainError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
