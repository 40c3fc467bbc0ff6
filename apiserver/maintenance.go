package apiserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jellydator/validation"

	"github.com/denisvmedia/dedupfs/models"
)

type requestCheckpointRequest struct {
	Mode        *models.WalMode `json:"mode,omitempty"`
	Reason      *string         `json:"reason,omitempty"`
	RequestedBy *string         `json:"requested_by,omitempty"`
	Force       bool            `json:"force,omitempty"`
}

func (req requestCheckpointRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Mode),
	)
}

type walMetricsResponse struct {
	CountByStatus   map[models.WalMaintenanceStatus]int `json:"count_by_status"`
	LastCompletedAt *string                              `json:"last_completed_at,omitempty"`
}

func walRoutes(p Params) func(chi.Router) {
	return func(r chi.Router) {
		r.Post("/checkpoint", requestCheckpointHandler(p))
		r.Get("/checkpoint/latest", latestCheckpointHandler(p))
		r.Get("/metrics", walMetricsHandler(p))
	}
}

func requestCheckpointHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req requestCheckpointRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, r, errkitValidation("malformed request body"))
				return
			}
		}
		if err := req.Validate(); err != nil {
			respondError(w, r, errkitValidation(err.Error()))
			return
		}

		job, err := p.WAL.RequestCheckpoint(r.Context(), req.Mode, req.Reason, req.RequestedBy, req.Force)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusAccepted, job)
	}
}

func latestCheckpointHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := p.WAL.GetLatest(r.Context())
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, job)
	}
}

func walMetricsHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := p.WAL.GetMetrics(r.Context())
		if err != nil {
			respondError(w, r, err)
			return
		}
		resp := walMetricsResponse{CountByStatus: m.CountByStatus}
		if m.LastCompletedAt != nil {
			ts := m.LastCompletedAt.Format("2006-01-02T15:04:05.000Z07:00")
			resp.LastCompletedAt = &ts
		}
		respondJSON(w, r, http.StatusOK, resp)
	}
}
