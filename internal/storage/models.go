package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Task kinds.
const (
	KindScan  = "scan"
	KindPurge = "purge"
)

// Task statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Task is one locale scan or purge run.
type Task struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Base       string     `json:"base"`
	Keep       []string   `json:"keep"`
	Found      int        `json:"found"`
	Bytes      int64      `json:"bytes"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// TaskPath is a localization entry a task found.
type TaskPath struct {
	Seq     int    `json:"seq"`
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Removed bool   `json:"removed"`
}
