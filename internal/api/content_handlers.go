package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dealforge/dealforge/internal/database"
	"github.com/dealforge/dealforge/internal/models"
)

// ContentHandlers serves stored deal entries.
type ContentHandlers struct {
	repo   *database.ContentRepository
	logger *slog.Logger
}

func NewContentHandlers(repo *database.ContentRepository, logger *slog.Logger) *ContentHandlers {
	return &ContentHandlers{repo: repo, logger: logger}
}

// ListContent handles GET /api/content?page=<slug>&limit=<n>
func (h *ContentHandlers) ListContent(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	entries, err := h.repo.List(r.Context(), r.URL.Query().Get("page"), limit)
	if err != nil {
		h.logger.Error("failed to list content", "error", err)
		http.Error(w, "Failed to list content", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.ContentEntry{}
	}
	writeJSON(w, h.logger, http.StatusOK, entries)
}
