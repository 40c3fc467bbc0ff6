package apiserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/denisvmedia/dedupfs/models"
)

type duplicateGroupsResponse struct {
	Groups     []models.DuplicateGroup `json:"groups"`
	NextCursor *string                 `json:"next_cursor,omitempty"`
}

type duplicateGroupFilesResponse struct {
	Files      []models.DuplicateGroupFile `json:"files"`
	NextCursor *int64                      `json:"next_cursor,omitempty"`
}

func duplicatesRoutes(p Params) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/groups", listDuplicateGroupsHandler(p))
		r.Get("/groups/{group_key}/files", listDuplicateGroupFilesHandler(p))
	}
}

func listDuplicateGroupsHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parsePageSize(r, p.Config.DefaultDuplicatesPageSize, p.Config.MaxDuplicatesPageSize)
		if err != nil {
			respondError(w, r, err)
			return
		}
		var cursor *string
		if c := r.URL.Query().Get("cursor"); c != "" {
			cursor = &c
		}

		groups, next, err := p.Duplicates.ListGroups(r.Context(), limit, cursor)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, duplicateGroupsResponse{Groups: groups, NextCursor: next})
	}
}

func listDuplicateGroupFilesHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupKey := chi.URLParam(r, "group_key")
		limit, err := parsePageSize(r, p.Config.DefaultDuplicatesPageSize, p.Config.MaxDuplicatesPageSize)
		if err != nil {
			respondError(w, r, err)
			return
		}

		var cursor *int64
		if raw := r.URL.Query().Get("cursor"); raw != "" {
			id, convErr := strconv.ParseInt(raw, 10, 64)
			if convErr != nil {
				respondError(w, r, errkitValidation("cursor must be an integer file id"))
				return
			}
			cursor = &id
		}

		files, next, err := p.Duplicates.ListGroupFiles(r.Context(), groupKey, limit, cursor)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if files == nil {
			files = []models.DuplicateGroupFile{}
		}
		respondJSON(w, r, http.StatusOK, duplicateGroupFilesResponse{Files: files, NextCursor: next})
	}
}
