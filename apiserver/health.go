package apiserver

import "net/http"

type healthBody struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Environment string `json:"environment"`
	DryRun      bool   `json:"dry_run"`
	Timestamp   string `json:"timestamp"`
}

func healthHandler(p Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, healthBody{
			Status:      "ok",
			Service:     p.Config.ServiceName,
			Environment: p.Config.Environment,
			DryRun:      p.Config.DryRun,
			Timestamp:   p.Clock.Now().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
}
