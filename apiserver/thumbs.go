package apiserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-extras/go-kit/ptr"
	"github.com/jellydator/validation"

	"github.com/denisvmedia/dedupfs/internal/errkit"
	"github.com/denisvmedia/dedupfs/models"
)

type requestThumbnailRequest struct {
	FileID       int64                   `json:"file_id"`
	MaxDimension *int                    `json:"max_dimension,omitempty"`
	Format       *models.ThumbnailFormat `json:"format,omitempty"`
}

func (req requestThumbnailRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.FileID, validation.Required, validation.Min(1)),
		validation.Field(&req.Format),
	)
}

type scheduleCleanupRequest struct {
	DelaySeconds *int64 `json:"delay_seconds,omitempty"`
}

type thumbsMetricsResponse struct {
	CountByStatus map[models.ThumbnailStatus]int `json:"count_by_status"`
	QueueCapacity int                             `json:"queue_capacity"`
	QueueDepth    int                             `json:"queue_depth"`
}

func thumbsRoutes(p Params) func(chi.Router) {
	return func(r chi.Router) {
		r.Post("/request", requestThumbnailHandler(p))
		r.Get("/metrics", thumbsMetricsHandler(p))
		r.Get("/{key}", getThumbnailHandler(p))
		r.Get("/{key}/content", getThumbnailContentHandler(p))
		r.Post("/cleanup/group", scheduleGroupCleanupHandler(p))
	}
}

func thumbsMetricsHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := p.Thumbnails.GetMetrics(r.Context())
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, thumbsMetricsResponse{
			CountByStatus: m.CountByStatus,
			QueueCapacity: m.QueueCapacity,
			QueueDepth:    m.QueueDepth,
		})
	}
}

func requestThumbnailHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req requestThumbnailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, r, errkitValidation("malformed request body"))
			return
		}
		if err := req.Validate(); err != nil {
			respondError(w, r, errkitValidation(err.Error()))
			return
		}

		task, err := p.Thumbnails.RequestThumbnail(r.Context(), req.FileID, req.MaxDimension, req.Format)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusAccepted, task)
	}
}

func getThumbnailHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		task, err := p.Thumbnails.GetThumbnail(r.Context(), key)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, task)
	}
}

func getThumbnailContentHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		task, err := p.Thumbnails.GetThumbnail(r.Context(), key)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if task.Status != models.ThumbnailStatusReady {
			respondError(w, r, errkit.WithFields(models.ErrThumbnailNotReady, "thumb_key", key, "status", task.Status))
			return
		}

		path, err := p.Thumbnails.ResolveOutputPath(task)
		if err != nil {
			respondError(w, r, err)
			return
		}
		http.ServeFile(w, r, path)
	}
}

func scheduleGroupCleanupHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scheduleCleanupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, r, errkitValidation("malformed request body"))
			return
		}

		groupKey := r.URL.Query().Get("group_key")
		if groupKey == "" {
			respondError(w, r, errkitValidation("group_key query parameter is required"))
			return
		}

		var delay *time.Duration
		if req.DelaySeconds != nil {
			d := time.Duration(ptr.From(req.DelaySeconds)) * time.Second
			delay = &d
		}

		job, err := p.Thumbnails.ScheduleGroupCleanup(r.Context(), groupKey, delay)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusAccepted, job)
	}
}
