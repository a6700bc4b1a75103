package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/purgekit/internal/config"
	"github.com/kalambet/purgekit/internal/locale"
	"github.com/kalambet/purgekit/internal/storage"
	"github.com/kalambet/purgekit/internal/task"
)

// ScanRequest is the body of POST /scans. An empty Keep uses the preserved
// languages from the configuration store.
type ScanRequest struct {
	Keep  []string `json:"keep"`
	Purge bool     `json:"purge"`
}

// startScan resolves the keep set and starts a run that outlives the caller.
// The events are drained in the background; progress is read back from the
// task history.
func startScan(deps Deps, keep []string, purge bool) (string, error) {
	if len(keep) == 0 {
		deps.Prefs.Do(func(s *config.Store) error {
			keep = s.Languages()
			return nil
		})
	}
	req := taskRequest(deps, keep)
	req.Purge = purge
	id, events, err := deps.Runner.StartScan(deps.baseContext(), req)
	if err != nil {
		return "", err
	}
	go func() {
		for range events {
		}
	}()
	return id, nil
}

func taskRequest(deps Deps, keep []string) task.ScanRequest {
	return task.ScanRequest{Base: deps.scanBase(), Keep: keep}
}

func handleStartScan(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScanRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}
		id, err := startScan(deps, req.Keep, req.Purge)
		if errors.Is(err, locale.ErrEmptyKeepSet) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to start scan: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     id,
			"status": storage.StatusRunning,
		})
	}
}

func handleListTasks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		tasks, err := deps.Tasks.ListTasks(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list tasks: %v", err)
			return
		}
		if tasks == nil {
			tasks = []storage.Task{}
		}
		writeJSON(w, http.StatusOK, tasks)
	}
}

func handleGetTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := deps.Tasks.GetTask(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get task: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func handleTaskPaths(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paths, err := deps.Tasks.TaskPaths(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get task paths: %v", err)
			return
		}
		if paths == nil {
			paths = []storage.TaskPath{}
		}
		writeJSON(w, http.StatusOK, paths)
	}
}

func handleCancelTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !deps.Runner.Cancel(id) {
			httpError(w, http.StatusConflict, "conflict", "task %s is not running", id)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
	}
}
