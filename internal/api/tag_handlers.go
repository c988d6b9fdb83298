package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dealforge/dealforge/internal/database"
	"github.com/dealforge/dealforge/internal/models"
)

// TagHandlers manages affiliate tags and commission rates over the admin API.
type TagHandlers struct {
	repo   *database.TagRepository
	logger *slog.Logger
}

func NewTagHandlers(repo *database.TagRepository, logger *slog.Logger) *TagHandlers {
	return &TagHandlers{repo: repo, logger: logger}
}

// Tags handles GET and POST /api/tags
func (h *TagHandlers) Tags(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		h.listTags(w, r)
	case http.MethodPost:
		h.createTag(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// TagByID handles PUT and DELETE /api/tags/{id}
func (h *TagHandlers) TagByID(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	idStr := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/affiliate-tags/"), "/")
	tagID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid tag id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPut:
		h.updateTag(w, r, tagID)
	case http.MethodDelete:
		h.deleteTag(w, r, tagID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *TagHandlers) listTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list tags", "error", err)
		http.Error(w, "Failed to list tags", http.StatusInternalServerError)
		return
	}
	if tags == nil {
		tags = []models.AffiliateTag{}
	}
	writeJSON(w, h.logger, http.StatusOK, tags)
}

func (h *TagHandlers) createTag(w http.ResponseWriter, r *http.Request) {
	var tag models.AffiliateTag
	if err := json.NewDecoder(r.Body).Decode(&tag); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if tag.BotName == "" || !tag.Validate() {
		http.Error(w, "bot_name, tag_type and tag_value are required", http.StatusBadRequest)
		return
	}
	if tag.Priority <= 0 {
		tag.Priority = 1
	}

	if err := h.repo.Create(r.Context(), &tag); err != nil {
		h.logger.Error("failed to create tag", "error", err)
		http.Error(w, "Failed to create tag", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, tag)
}

func (h *TagHandlers) updateTag(w http.ResponseWriter, r *http.Request, tagID int64) {
	var tag models.AffiliateTag
	if err := json.NewDecoder(r.Body).Decode(&tag); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !tag.Validate() {
		http.Error(w, "tag_type and tag_value are required", http.StatusBadRequest)
		return
	}
	tag.ID = tagID

	if err := h.repo.Update(r.Context(), tag); err != nil {
		h.logger.Error("failed to update tag", "tag_id", tagID, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, tag)
}

func (h *TagHandlers) deleteTag(w http.ResponseWriter, r *http.Request, tagID int64) {
	if err := h.repo.Delete(r.Context(), tagID); err != nil {
		h.logger.Error("failed to delete tag", "tag_id", tagID, "error", err)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadCommissions handles POST /api/affiliate-tags/commissions/bulk: a
// bulk sheet of network/category rates.
func (h *TagHandlers) UploadCommissions(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var uploads []models.CommissionUpload
	if err := json.NewDecoder(r.Body).Decode(&uploads); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(uploads) == 0 {
		http.Error(w, "No commission rows provided", http.StatusBadRequest)
		return
	}
	for _, upload := range uploads {
		if upload.Network == "" || upload.Rate < 0 {
			http.Error(w, "Each row needs a network and a non-negative rate", http.StatusBadRequest)
			return
		}
	}

	if err := h.repo.BulkSetCommission(r.Context(), uploads); err != nil {
		h.logger.Error("failed to upload commissions", "error", err)
		http.Error(w, "Failed to upload commissions", http.StatusInternalServerError)
		return
	}

	h.logger.Info("commission rates uploaded", "rows", len(uploads))
	writeJSON(w, h.logger, http.StatusOK, map[string]int{"updated": len(uploads)})
}
