package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/dealforge/dealforge/internal/auth"
	"github.com/dealforge/dealforge/internal/database"
	"github.com/dealforge/dealforge/internal/ingestion"
)

// SetupRoutes configures all API routes. Content and health endpoints are
// public; everything that mutates state sits behind the auth middleware.
func SetupRoutes(
	mux *http.ServeMux,
	db *sql.DB,
	registry *ingestion.Registry,
	contentRepo *database.ContentRepository,
	tagRepo *database.TagRepository,
	settingsRepo *database.SettingsRepository,
	tagging CommissionMethodSink,
	authConfig auth.Config,
	logger *slog.Logger,
) {
	authHandler := NewAuthHandler(authConfig, logger)
	botHandlers := NewBotHandlers(registry, logger)
	tagHandlers := NewTagHandlers(tagRepo, logger)
	settingsHandlers := NewSettingsHandlers(settingsRepo, registry, tagging, logger)
	contentHandlers := NewContentHandlers(contentRepo, logger)

	authMiddleware := auth.AuthMiddleware(authConfig)
	protected := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				setCORSHeaders(w)
				w.WriteHeader(http.StatusOK)
				return
			}
			authMiddleware(h).ServeHTTP(w, r)
		}
	}

	// Authentication routes (public)
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.HandleFunc("/api/auth/validate", protected(authHandler.ValidateToken))

	// Content routes (public for reading)
	mux.HandleFunc("/api/content", contentHandlers.ListContent)

	// Bot registry routes
	mux.HandleFunc("/api/bots", botHandlers.ListBots)
	mux.HandleFunc("/api/bots/health", botHandlers.Health)
	mux.HandleFunc("/api/bots/", protected(botHandlers.BotAction))

	// Affiliate tag routes (admin only)
	mux.HandleFunc("/api/affiliate-tags", protected(tagHandlers.Tags))
	mux.HandleFunc("/api/affiliate-tags/commissions/bulk", protected(tagHandlers.UploadCommissions))
	mux.HandleFunc("/api/affiliate-tags/", protected(tagHandlers.TagByID))

	// Settings routes (admin only)
	mux.HandleFunc("/api/settings/processing", protected(settingsHandlers.ProcessingSettings))

	// Health check
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		status := "ok"
		code := http.StatusOK
		if err := database.HealthCheck(r.Context(), db); err != nil {
			logger.Error("health check failed", "error", err)
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, logger, code, map[string]interface{}{
			"status":   status,
			"bots":     registry.Summary(),
			"database": database.Stats(db),
		})
	})
}
