package apiserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jellydator/validation"

	"github.com/denisvmedia/dedupfs/models"
)

type createJobRequest struct {
	Kind    models.JobKind `json:"kind"`
	Payload models.JSONMap `json:"payload,omitempty"`
	DryRun  *bool          `json:"dry_run,omitempty"`
}

func (req createJobRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Kind, validation.Required),
	)
}

type claimRequest struct {
	WorkerID string `json:"worker_id"`
}

func (req claimRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.WorkerID, validation.Required),
	)
}

type heartbeatRequest struct {
	WorkerID       string   `json:"worker_id"`
	Progress       *float64 `json:"progress,omitempty"`
	ProcessedItems *int64   `json:"processed_items,omitempty"`
}

func (req heartbeatRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.WorkerID, validation.Required),
	)
}

type finishRequest struct {
	WorkerID     string  `json:"worker_id"`
	Success      bool    `json:"success"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

func (req finishRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.WorkerID, validation.Required),
	)
}

type cancelRequest struct {
	ErrorMessage *string `json:"error_message,omitempty"`
}

type jobListResponse struct {
	Jobs       []models.Job `json:"jobs"`
	NextCursor *string      `json:"next_cursor,omitempty"`
}

type recoverStaleResponse struct {
	Recovered int `json:"recovered"`
}

func jobsRoutes(p Params) func(chi.Router) {
	return func(r chi.Router) {
		r.Post("/", createJobHandler(p))
		r.Get("/", listJobsHandler(p))
		r.Get("/{id}", getJobHandler(p))
		r.Post("/scan-hash/claim", claimJobHandler(p))
		r.Post("/{id}/heartbeat", heartbeatHandler(p))
		r.Post("/{id}/finish", finishJobHandler(p))
		r.Post("/{id}/cancel", cancelJobHandler(p))
		r.Post("/{id}/reset", resetJobHandler(p))
		r.Post("/recover-stale", recoverStaleHandler(p))
	}
}

func createJobHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, r, errkitValidation("malformed request body"))
			return
		}
		if err := req.Validate(); err != nil {
			respondError(w, r, errkitValidation(err.Error()))
			return
		}

		job, err := p.Coordinator.CreateJob(r.Context(), req.Kind, req.Payload, req.DryRun)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusCreated, job)
	}
}

func listJobsHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parsePageSize(r, p.Config.DefaultPageSize, p.Config.MaxPageSize)
		if err != nil {
			respondError(w, r, err)
			return
		}
		var cursor *string
		if c := r.URL.Query().Get("cursor"); c != "" {
			cursor = &c
		}

		jobs, next, err := p.Coordinator.ListJobs(r.Context(), limit, cursor)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, jobListResponse{Jobs: jobs, NextCursor: next})
	}
}

func getJobHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := p.Coordinator.GetJob(r.Context(), id)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, job)
	}
}

func claimJobHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req claimRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, r, errkitValidation("malformed request body"))
			return
		}
		if err := req.Validate(); err != nil {
			respondError(w, r, errkitValidation(err.Error()))
			return
		}

		job, err := p.Coordinator.ClaimPendingScanHashJob(r.Context(), req.WorkerID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if job == nil {
			respondError(w, r, errkitNotFound("no scan/hash job is pending"))
			return
		}
		respondJSON(w, r, http.StatusOK, job)
	}
}

func heartbeatHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req heartbeatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, r, errkitValidation("malformed request body"))
			return
		}
		if err := req.Validate(); err != nil {
			respondError(w, r, errkitValidation(err.Error()))
			return
		}

		job, err := p.Coordinator.Heartbeat(r.Context(), id, req.WorkerID, req.Progress, req.ProcessedItems)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, job)
	}
}

func finishJobHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req finishRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, r, errkitValidation("malformed request body"))
			return
		}
		if err := req.Validate(); err != nil {
			respondError(w, r, errkitValidation(err.Error()))
			return
		}

		job, err := p.Coordinator.FinishJob(r.Context(), id, req.WorkerID, req.Success, req.ErrorMessage)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, job)
	}
}

func cancelJobHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req cancelRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		job, err := p.Coordinator.CancelJob(r.Context(), id, req.ErrorMessage)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, job)
	}
}

func resetJobHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := p.Coordinator.ResetRetryableJob(r.Context(), id)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, job)
	}
}

func recoverStaleHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := p.Coordinator.RecoverStaleJobs(r.Context())
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, recoverStaleResponse{Recovered: n})
	}
}

// parsePageSize reads and bounds the "limit" query parameter, per §6's
// per-endpoint page-size limits.
func parsePageSize(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, errkitValidation("limit must be between 1 and " + strconv.Itoa(max))
	}
	return n, nil
}
