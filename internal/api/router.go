package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/callscribe/server/internal/config"
	"github.com/callscribe/server/pkg/logger"
)

// Router builds the HTTP routing tree
type Router struct {
	handler *Handler
	config  *config.Config
	logger  *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(handler *Handler, config *config.Config, logger *logger.Logger) *Router {
	return &Router{
		handler: handler,
		config:  config,
		logger:  logger.Named("api-router"),
	}
}

// Routes returns the assembled http.Handler
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(rt.config.Server.CORSAllowedOrigins))

	r.Route("/api", func(r chi.Router) {
		r.Post("/start", rt.handler.StartSession)
		r.Post("/stop", rt.handler.StopSession)
		r.Post("/cancel", rt.handler.CancelSession)

		r.Get("/status", rt.handler.GetStatus)
		r.Get("/transcript", rt.handler.GetTranscript)
		r.Get("/devices", rt.handler.GetDevices)
		r.Get("/languages", rt.handler.GetLanguages)

		r.Get("/transcripts", rt.handler.ListTranscripts)
		r.Get("/transcripts/{id}", rt.handler.GetStoredTranscript)
		r.Get("/transcripts/{id}/export", rt.handler.ExportTranscript)
		r.Delete("/transcripts/{id}", rt.handler.DeleteStoredTranscript)
	})

	r.Get("/ws/transcription", rt.handler.wsServer.HandleConnection)

	if rt.config.Server.StaticFilesDir != "" {
		static := NewStaticFileHandler(rt.config.Server.StaticFilesDir, rt.logger)
		r.NotFound(static.ServeHTTP)
	}

	return r
}

// corsMiddleware applies the configured allowed origins to every response.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				if allowAll {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
