package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dealforge/dealforge/internal/database"
	"github.com/dealforge/dealforge/internal/ingestion"
	"github.com/dealforge/dealforge/internal/models"
)

// CommissionMethodSink picks up commission method changes at runtime. The
// affiliate transformer implements it.
type CommissionMethodSink interface {
	SetCommissionMethod(method string)
}

// SettingsHandlers exposes the global processing switch and the commission
// ranking method.
type SettingsHandlers struct {
	repo     *database.SettingsRepository
	registry *ingestion.Registry
	tagging  CommissionMethodSink
	logger   *slog.Logger
}

func NewSettingsHandlers(repo *database.SettingsRepository, registry *ingestion.Registry, tagging CommissionMethodSink, logger *slog.Logger) *SettingsHandlers {
	return &SettingsHandlers{repo: repo, registry: registry, tagging: tagging, logger: logger}
}

// ProcessingSettings handles GET and POST /api/settings/processing
func (h *SettingsHandlers) ProcessingSettings(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		h.getSettings(w, r)
	case http.MethodPost:
		h.putSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandlers) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.repo.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to load settings", "error", err)
		http.Error(w, "Failed to load settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, settings)
}

func (h *SettingsHandlers) putSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.ProcessingSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if settings.CommissionMethod == "" {
		settings.CommissionMethod = models.CommissionMethodPriority
	}
	if settings.CommissionMethod != models.CommissionMethodPriority && settings.CommissionMethod != models.CommissionMethodCommission {
		http.Error(w, "commission_method must be priority or commission", http.StatusBadRequest)
		return
	}

	if err := h.repo.Set(r.Context(), settings); err != nil {
		h.logger.Error("failed to save settings", "error", err)
		http.Error(w, "Failed to save settings", http.StatusInternalServerError)
		return
	}

	// The registry and transformer see the change immediately; the row is
	// only for restarts.
	h.registry.SetProcessing(settings.Enabled)
	if h.tagging != nil {
		h.tagging.SetCommissionMethod(settings.CommissionMethod)
	}

	writeJSON(w, h.logger, http.StatusOK, settings)
}
