package apiserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/denisvmedia/dedupfs/internal/errkit"
	"github.com/denisvmedia/dedupfs/models"
)

// errorBody is the plain-JSON error shape (§6: "all JSON"; this system
// has no JSON:API surface to match).
type errorBody struct {
	Error string `json:"error"`
}

// statusForError implements §7's error-kind-to-HTTP-status mapping.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrJobNotFound),
		errors.Is(err, models.ErrThumbnailNotFound),
		errors.Is(err, models.ErrWalMaintenanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidJobState):
		return http.StatusConflict
	case errors.Is(err, models.ErrThumbnailQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, models.ErrWalMaintenanceConflict):
		return http.StatusTooManyRequests
	case errors.Is(err, models.ErrJobConflict), errors.Is(err, models.ErrThumbnailNotReady):
		return http.StatusConflict
	case errors.Is(err, models.ErrJobPolicy),
		errors.Is(err, models.ErrThumbnailPolicy),
		errors.Is(err, models.ErrWalMaintenancePolicy):
		return http.StatusConflict
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrInvalidCursor):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrQuery):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		slog.Error("unhandled error", "error", err, "path", r.URL.Path)
	}
	render.Status(r, status)
	render.JSON(w, r, errorBody{Error: err.Error()})
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	render.Status(r, status)
	render.JSON(w, r, body)
}

// errkitValidation and errkitNotFound wrap a request-path detail message
// around the taxonomic sentinels so handlers can surface a reason without
// each constructing their own errkit call.
func errkitValidation(msg string) error {
	return errkit.WithFields(models.ErrValidation, "message", msg)
}

func errkitNotFound(msg string) error {
	return errkit.WithFields(models.ErrJobNotFound, "message", msg)
}
