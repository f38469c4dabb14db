package members

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/EmpoweredVote/mp-sync/internal/members/parl"
	"github.com/EmpoweredVote/mp-sync/internal/utils"
)

// maxImportIDs caps the ids one request may name explicitly.
const maxImportIDs = 2000

// Handler serves the admin surface over the pipeline.
type Handler struct {
	Store         Store
	Jobs          *Jobs
	Reconciler    *Reconciler
	Directory     DirectoryLister
	Term          parl.Term
	NearThreshold float64
	Log           *zap.Logger
}

// StartImport handles POST /members/import
// Accepts {"ids": ["99", ...], "all_known": false, "from_directory": false}
func (h *Handler) StartImport(w http.ResponseWriter, r *http.Request) {
	var body IDRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(body.IDs) > maxImportIDs {
		http.Error(w, "Too many ids in one request", http.StatusBadRequest)
		return
	}

	ids, err := ResolveIDs(r.Context(), body, h.Store, h.Directory, h.Term)
	if errors.Is(err, ErrNoIDs) {
		http.Error(w, "At least one member id is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.Log.Error("resolve import ids", zap.Error(err))
		http.Error(w, "Failed to resolve member ids", http.StatusBadGateway)
		return
	}

	job := h.Jobs.Start(ids)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
		"total":  len(ids),
	})
}

// ListImports handles GET /members/import
func (h *Handler) ListImports(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Jobs.List())
}

// GetImportStatus handles GET /members/import/{jobID}
func (h *Handler) GetImportStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := h.Jobs.Get(chi.URLParam(r, "jobID"))
	if !ok {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelImport handles DELETE /members/import/{jobID}
func (h *Handler) CancelImport(w http.ResponseWriter, r *http.Request) {
	if !h.Jobs.Cancel(chi.URLParam(r, "jobID")) {
		http.Error(w, "No running job with that id", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDuplicates handles GET /members/duplicates
func (h *Handler) ListDuplicates(w http.ResponseWriter, r *http.Request) {
	clusters, err := SnapshotDuplicates(r.Context(), h.Store)
	if IsPhaseConflict(err) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		h.Log.Error("group duplicates", zap.Error(err))
		http.Error(w, "Failed to group duplicates", http.StatusInternalServerError)
		return
	}
	if clusters == nil {
		clusters = []Cluster{}
	}
	writeJSON(w, http.StatusOK, clusters)
}

// ListNearDuplicates handles GET /members/near-duplicates
func (h *Handler) ListNearDuplicates(w http.ResponseWriter, r *http.Request) {
	pairs, err := NearDuplicatesFromStore(r.Context(), h.Store, h.NearThreshold)
	if IsPhaseConflict(err) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		h.Log.Error("near duplicates", zap.Error(err))
		http.Error(w, "Failed to compute near duplicates", http.StatusInternalServerError)
		return
	}
	if pairs == nil {
		pairs = []NearDuplicate{}
	}
	writeJSON(w, http.StatusOK, pairs)
}

// Reconcile handles POST /members/reconcile
// Accepts {"dry_run": true, "merged_by": "alice"}; an empty body runs for real.
// merged_by defaults to the operator set by the admin middleware.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DryRun   bool   `json:"dry_run"`
		MergedBy string `json:"merged_by"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	if body.MergedBy == "" {
		body.MergedBy, _ = utils.GetOperatorFromContext(r.Context())
	}

	report, err := h.Reconciler.Run(r.Context(), ReconcileOptions{DryRun: body.DryRun, MergedBy: body.MergedBy})
	if IsPhaseConflict(err) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		h.Log.Error("reconcile", zap.Error(err))
		http.Error(w, "Reconciliation failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetMember handles GET /members/{externalID}
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.Store.FindMemberByExternalID(r.Context(), chi.URLParam(r, "externalID"))
	if err != nil {
		h.Log.Error("find member", zap.Error(err))
		http.Error(w, "Failed to load member", http.StatusInternalServerError)
		return
	}
	if m == nil {
		http.Error(w, ErrNotFound.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
