// Package task runs locale scans and purges in the background and records
// them in the task history.
package task

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/kalambet/purgekit/internal/storage"
)

// TaskStore abstracts the task history operations.
type TaskStore interface {
	CreateTask(t storage.Task) error
	AppendTaskPaths(id string, paths []storage.TaskPath) error
	FinishTask(id, status, lastError string) error
}

// PathSource yields purgeable paths. *locale.Resolver satisfies it.
type PathSource interface {
	Purgeable(base string, keep []string) (iter.Seq2[string, error], error)
}

// ScanRequest describes one run. With Purge set, every found path is removed.
type ScanRequest struct {
	Base  string   `json:"base"`
	Keep  []string `json:"keep"`
	Purge bool     `json:"purge"`
}

// EventKind distinguishes progress from the terminal event.
type EventKind int

const (
	EventProgress EventKind = iota
	EventDone
)

// Event reports progress of a run. The last event on a channel is always
// EventDone unless the consumer stopped reading after cancelling.
type Event struct {
	Kind    EventKind
	TaskID  string
	Path    string
	Size    int64
	Removed bool
	Found   int
	Bytes   int64
	Status  string
	Err     error
}

// Runner starts scans and tracks the running ones.
type Runner struct {
	store  TaskStore
	source PathSource
	batch  int
	buffer int
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner creates a Runner with the given dependencies.
func NewRunner(store TaskStore, source PathSource) *Runner {
	return &Runner{
		store:   store,
		source:  source,
		batch:   32,
		buffer:  64,
		logger:  slog.Default(),
		cancels: make(map[string]context.CancelFunc),
	}
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(l *slog.Logger) {
	r.logger = l
}

// StartScan validates the request, records a new task and starts the worker.
// Errors from the path source (such as an empty keep set) are returned before
// any task is created. The run lives until ctx is cancelled or Cancel is
// called for the returned id.
func (r *Runner) StartScan(ctx context.Context, req ScanRequest) (string, <-chan Event, error) {
	seq, err := r.source.Purgeable(req.Base, req.Keep)
	if err != nil {
		return "", nil, err
	}

	kind := storage.KindScan
	if req.Purge {
		kind = storage.KindPurge
	}
	id := uuid.New().String()
	if err := r.store.CreateTask(storage.Task{ID: id, Kind: kind, Base: req.Base, Keep: req.Keep}); err != nil {
		return "", nil, fmt.Errorf("recording task: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancels[id] = cancel
	r.mu.Unlock()

	events := make(chan Event, r.buffer)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(events)
		defer func() {
			r.mu.Lock()
			delete(r.cancels, id)
			r.mu.Unlock()
			cancel()
		}()
		r.run(ctx, id, req, seq, events)
	}()

	r.logger.Info("task started", "task_id", id, "kind", kind, "base", req.Base)
	return id, events, nil
}

// Cancel stops a running task. It reports whether the task was running.
func (r *Runner) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Wait blocks until every started task has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Run starts a scan and drains it, returning the terminal event.
func (r *Runner) Run(ctx context.Context, req ScanRequest) (Event, error) {
	_, events, err := r.StartScan(ctx, req)
	if err != nil {
		return Event{}, err
	}
	var last Event
	for ev := range events {
		last = ev
	}
	return last, last.Err
}

func (r *Runner) run(ctx context.Context, id string, req ScanRequest, seq iter.Seq2[string, error], events chan<- Event) {
	var (
		pending []storage.TaskPath
		found   int
		bytes   int64
		lastErr error
		status  = storage.StatusCompleted
	)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		err := r.store.AppendTaskPaths(id, pending)
		pending = pending[:0]
		return err
	}

	for p, err := range seq {
		if ctx.Err() != nil {
			status = storage.StatusCancelled
			break
		}
		if err != nil {
			r.logger.Warn("scan error", "task_id", id, "error", err)
			lastErr = err
			continue
		}

		tp := storage.TaskPath{Path: p, Size: pathSize(p)}
		if req.Purge {
			if err := os.RemoveAll(p); err != nil {
				r.logger.Warn("removing localization failed", "task_id", id, "path", p, "error", err)
				lastErr = err
			} else {
				tp.Removed = true
			}
		}
		found++
		bytes += tp.Size
		pending = append(pending, tp)
		if len(pending) >= r.batch {
			if err := flush(); err != nil {
				lastErr = fmt.Errorf("saving task paths: %w", err)
				status = storage.StatusFailed
				break
			}
		}

		ev := Event{Kind: EventProgress, TaskID: id, Path: p, Size: tp.Size, Removed: tp.Removed, Found: found, Bytes: bytes}
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	if err := flush(); err != nil && status != storage.StatusFailed {
		lastErr = fmt.Errorf("saving task paths: %w", err)
		status = storage.StatusFailed
	}

	var msg string
	if lastErr != nil {
		msg = lastErr.Error()
	}
	if err := r.store.FinishTask(id, status, msg); err != nil {
		r.logger.Error("failed to finish task", "task_id", id, "error", err)
	}
	r.logger.Info("task finished", "task_id", id, "status", status, "found", found, "bytes", bytes)

	done := Event{Kind: EventDone, TaskID: id, Found: found, Bytes: bytes, Status: status}
	if status == storage.StatusFailed {
		done.Err = lastErr
	} else if status == storage.StatusCancelled {
		done.Err = context.Canceled
	}
	select {
	case events <- done:
	case <-ctx.Done():
		select {
		case events <- done:
		default:
		}
	}
}

// pathSize returns the total size of the regular files at or below p.
func pathSize(p string) int64 {
	var total int64
	_ = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
