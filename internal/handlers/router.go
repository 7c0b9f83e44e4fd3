package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mkitdev/mkit-input-voucher/internal/ai"
	"github.com/mkitdev/mkit-input-voucher/internal/commit"
	"github.com/mkitdev/mkit-input-voucher/internal/middleware"
	"github.com/mkitdev/mkit-input-voucher/internal/photos"
	"github.com/mkitdev/mkit-input-voucher/internal/pipeline"
	"github.com/mkitdev/mkit-input-voucher/internal/review"
	"github.com/mkitdev/mkit-input-voucher/internal/staging"
	"github.com/mkitdev/mkit-input-voucher/internal/stockmon"
	ws "github.com/mkitdev/mkit-input-voucher/internal/websocket"
)

// Router wraps the mux router and the pipeline services
type Router struct {
	*mux.Router
	store     staging.Store
	pipe      *pipeline.Pipeline
	reviewer  *review.Service
	committer *commit.Committer
	parser    ai.PhotoParser   // nil when the AI channel is not configured
	photos    *photos.Client   // nil when photo search is not configured
	stock     *stockmon.Monitor
	hub       *ws.Hub
}

// NewRouter creates the HTTP router with all routes
func NewRouter(store staging.Store, pipe *pipeline.Pipeline, reviewer *review.Service,
	committer *commit.Committer, parser ai.PhotoParser, photoSearch *photos.Client,
	stock *stockmon.Monitor, hub *ws.Hub) *Router {

	r := &Router{
		Router:    mux.NewRouter(),
		store:     store,
		pipe:      pipe,
		reviewer:  reviewer,
		committer: committer,
		parser:    parser,
		photos:    photoSearch,
		stock:     stock,
		hub:       hub,
	}

	r.Use(middleware.TraceID)
	r.Use(middleware.RequestLogging)

	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Input channels
	api.HandleFunc("/batches/upload", r.handleUpload).Methods("POST")
	api.HandleFunc("/vouchers", r.handleFormEntry).Methods("POST")
	api.HandleFunc("/vouchers/scan", r.handleScan).Methods("POST")
	api.HandleFunc("/vouchers/photo", r.handlePhoto).Methods("POST")

	// Review and commit
	api.HandleFunc("/batches/{id}", r.getBatch).Methods("GET")
	api.HandleFunc("/batches/{id}/records", r.listBatchRecords).Methods("GET")
	api.HandleFunc("/batches/{id}/confirm", r.confirmBatch).Methods("POST")
	api.HandleFunc("/batches/{id}/commit", r.commitBatch).Methods("POST")
	api.HandleFunc("/batches/{id}/manifest", r.batchManifest).Methods("GET")
	api.HandleFunc("/records/{serial}", r.getRecord).Methods("GET")
	api.HandleFunc("/records/{serial}/confirm", r.confirmRecord).Methods("POST")
	api.HandleFunc("/records/{serial}/reject", r.rejectRecord).Methods("POST")
	api.HandleFunc("/records/{serial}/retry", r.retryRecord).Methods("POST")

	// Stock monitoring
	api.HandleFunc("/stock", r.getStock).Methods("GET")
	r.HandleFunc("/ws/stock", r.stockFeed).Methods("GET")

	return r
}

func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Router) stockFeed(w http.ResponseWriter, req *http.Request) {
	ws.ServeWS(r.hub, w, req)
}

func (r *Router) getStock(w http.ResponseWriter, req *http.Request) {
	if r.stock == nil {
		respondError(w, req, http.StatusServiceUnavailable, "stock monitoring is not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"levels": r.stock.Latest()})
}
