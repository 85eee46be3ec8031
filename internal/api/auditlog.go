package api

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"dockhand/internal/audit"
)

// NewAuditHandler serves the audit trail, newest entries first
func NewAuditHandler(store *audit.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", defaultListLimit)
		if limit < 1 {
			limit = 1
		} else if limit > maxListLimit {
			limit = maxListLimit
		}

		entries, err := store.List(r.Context(), limit)
		if err != nil {
			http.Error(w, "Failed to list audit logs", http.StatusInternalServerError)
			log.Error().Err(err).Msg("Failed to list audit logs")
			return
		}
		serveJson(w, entries)
	}
}
