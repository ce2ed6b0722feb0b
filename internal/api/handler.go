package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/skillsprint/coach/internal/pipeline"
	"github.com/skillsprint/coach/internal/sprint"
	"github.com/skillsprint/coach/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// PasscodeHeader carries the access passcode for model-backed sprint
// generation.
const PasscodeHeader = "X-SS-AI-Passcode"

// InteractionStore is the audit log as seen by the HTTP layer.
type InteractionStore interface {
	SaveInteraction(i storage.Interaction) (string, error)
	GetInteraction(id string) (storage.Interaction, error)
	ListInteractions(endpoint string, limit int) ([]storage.Interaction, error)
}

// Deps holds everything the HTTP surface needs.
type Deps struct {
	Coach   *pipeline.Coach
	Sprints *sprint.Generator
	// Store is optional. When nil nothing is audited and the interaction
	// routes are not mounted.
	Store InteractionStore
	// AdminToken guards the interaction routes. They are not mounted when
	// it is empty.
	AdminToken     string
	AllowedOrigins []string
	// Debug adds operator detail to coach responses.
	Debug bool
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", PasscodeHeader},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth)
	r.HandleFunc("/api/coach", postOnly(handleCoach(deps)))
	r.HandleFunc("/api/generate-sprint", postOnly(handleGenerateSprint(deps)))
	r.Get("/api/diag", handleDiag(deps))

	if deps.Store != nil && deps.AdminToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(deps.AdminToken))
			r.Get("/api/interactions", handleListInteractions(deps))
			r.Get("/api/interactions/{id}", handleGetInteraction(deps))
		})
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// postOnly rejects every method but POST with 405 and an Allow header.
func postOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			httpError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
			return
		}
		next(w, r)
	}
}

// recoverer turns a panic into a bare 500. Panic detail goes to the log
// only.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error("panic serving request",
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
				"panic", rec,
			)
			httpError(w, http.StatusInternalServerError, "server_error", "internal error")
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
