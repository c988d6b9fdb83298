package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dealforge/dealforge/internal/ingestion"
	"github.com/dealforge/dealforge/internal/models"
)

// BotHandlers exposes the listener registry over the admin API.
type BotHandlers struct {
	registry *ingestion.Registry
	logger   *slog.Logger
}

func NewBotHandlers(registry *ingestion.Registry, logger *slog.Logger) *BotHandlers {
	return &BotHandlers{registry: registry, logger: logger}
}

// ListBots handles GET /api/bots
func (h *BotHandlers) ListBots(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, h.registry.Statuses())
}

// Health handles GET /api/bots/health
func (h *BotHandlers) Health(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, h.registry.Summary())
}

// BotAction routes /api/bots/{id} and /api/bots/{id}/{action}
func (h *BotHandlers) BotAction(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/bots/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	botID := parts[0]
	if botID == "" {
		http.Error(w, "Bot id required", http.StatusBadRequest)
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch action {
	case "":
		h.getBot(w, r, botID)
	case "toggle":
		h.toggleBot(w, r, botID)
	case "restart":
		h.restartBot(w, r, botID)
	case "method":
		h.switchMethod(w, r, botID)
	case "apikey":
		h.setAPIKey(w, r, botID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *BotHandlers) getBot(w http.ResponseWriter, r *http.Request, botID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := h.registry.Status(botID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, status)
}

func (h *BotHandlers) toggleBot(w http.ResponseWriter, r *http.Request, botID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.registry.Toggle(r.Context(), botID, req.Enabled); err != nil {
		h.logger.Error("failed to toggle bot", "bot", botID, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respondWithStatus(w, botID)
}

func (h *BotHandlers) restartBot(w http.ResponseWriter, r *http.Request, botID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.registry.Restart(r.Context(), botID); err != nil {
		h.logger.Error("failed to restart bot", "bot", botID, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respondWithStatus(w, botID)
}

func (h *BotHandlers) switchMethod(w http.ResponseWriter, r *http.Request, botID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Method models.IngestionMethod `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.registry.SwitchMethod(r.Context(), botID, req.Method); err != nil {
		h.logger.Error("failed to switch method", "bot", botID, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respondWithStatus(w, botID)
}

func (h *BotHandlers) setAPIKey(w http.ResponseWriter, r *http.Request, botID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.APIKey == "" {
		http.Error(w, "api_key is required", http.StatusBadRequest)
		return
	}

	if err := h.registry.SetAPIKey(r.Context(), botID, req.APIKey); err != nil {
		h.logger.Error("failed to set api key", "bot", botID, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respondWithStatus(w, botID)
}

func (h *BotHandlers) respondWithStatus(w http.ResponseWriter, botID string) {
	status, err := h.registry.Status(botID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, status)
}
