// Package api exposes preferences, languages and locale scans over HTTP and
// MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/purgekit/internal/config"
	"github.com/kalambet/purgekit/internal/storage"
	"github.com/kalambet/purgekit/internal/task"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Prefs serializes access to a configuration store, which is not safe for
// concurrent use.
type Prefs struct {
	mu    sync.Mutex
	store *config.Store
}

// NewPrefs wraps store.
func NewPrefs(store *config.Store) *Prefs {
	return &Prefs{store: store}
}

// Do runs fn with exclusive access to the store.
func (p *Prefs) Do(fn func(s *config.Store) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(p.store)
}

// Deps holds dependencies shared by the HTTP and MCP surfaces.
type Deps struct {
	Prefs  *Prefs
	Tasks  *storage.Store
	Runner *task.Runner
	Token  string

	// ScanBase is the directory scans resolve rule locations against.
	ScanBase string

	// BaseContext bounds the lifetime of scans started over the API. It is
	// usually the server's context, not the request's.
	BaseContext context.Context
}

func (d Deps) scanBase() string {
	if d.ScanBase == "" {
		return "/"
	}
	return d.ScanBase
}

func (d Deps) baseContext() context.Context {
	if d.BaseContext == nil {
		return context.Background()
	}
	return d.BaseContext
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/options", handleListOptions(deps))
		r.Get("/options/check", handleCheckOptions(deps))
		r.Get("/options/{key}", handleGetOption(deps))
		r.Put("/options/{key}", handleSetOption(deps))
		r.Post("/options/{key}/toggle", handleToggleOption(deps))

		r.Get("/languages", handleListLanguages(deps))
		r.Put("/languages/{id}", handleSetLanguage(deps, true))
		r.Delete("/languages/{id}", handleSetLanguage(deps, false))

		r.Get("/lists/{name}", handleGetList(deps))
		r.Put("/lists/{name}", handleSetList(deps))

		r.Get("/paths/{kind}", handleGetPaths(deps))
		r.Put("/paths/{kind}", handleSetPaths(deps))

		r.Post("/scans", handleStartScan(deps))
		r.Get("/tasks", handleListTasks(deps))
		r.Get("/tasks/{id}", handleGetTask(deps))
		r.Get("/tasks/{id}/paths", handleTaskPaths(deps))
		r.Post("/tasks/{id}/cancel", handleCancelTask(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
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

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
