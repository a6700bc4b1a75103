package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding scan and purge task history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "purgekit.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Tasks ---

// timeLayout is fixed-width so stored timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const taskColumns = `id, kind, status, base, keep, found, bytes, created_at, finished_at, last_error`

// CreateTask records a new running task. CreatedAt defaults to now.
func (s *Store) CreateTask(t Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	status := t.Status
	if status == "" {
		status = StatusRunning
	}
	_, err := s.db.Exec(`
		INSERT INTO tasks (id, kind, status, base, keep, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Kind, status, t.Base, strings.Join(t.Keep, ","),
		t.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// AppendTaskPaths adds found entries to a task and bumps its counters.
func (s *Store) AppendTaskPaths(id string, paths []TaskPath) error {
	if len(paths) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	var bytes int64
	for _, p := range paths {
		bytes += p.Size
	}
	res, err := tx.Exec(`UPDATE tasks SET found = found + ?, bytes = bytes + ? WHERE id = ?`, len(paths), bytes, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}

	var next int
	if err := tx.QueryRow("SELECT COALESCE(MAX(seq), -1) + 1 FROM task_paths WHERE task_id = ?", id).Scan(&next); err != nil {
		return fmt.Errorf("reading next seq: %w", err)
	}
	for i, p := range paths {
		if _, err := tx.Exec(`
			INSERT INTO task_paths (task_id, seq, path, size, removed) VALUES (?, ?, ?, ?, ?)`,
			id, next+i, p.Path, p.Size, p.Removed,
		); err != nil {
			return fmt.Errorf("inserting task path: %w", err)
		}
	}
	return tx.Commit()
}

// FinishTask sets the terminal status of a task.
func (s *Store) FinishTask(id, status, lastError string) error {
	res, err := s.db.Exec(`UPDATE tasks SET status = ?, last_error = ?, finished_at = ? WHERE id = ?`,
		status, nullString(lastError), time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTask returns a single task.
func (s *Store) GetTask(id string) (Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, ErrNotFound
	}
	return t, err
}

// ListTasks returns the most recent tasks first.
func (s *Store) ListTasks(limit int) ([]Task, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// TaskPaths returns the entries of a task in the order they were found.
func (s *Store) TaskPaths(id string) ([]TaskPath, error) {
	if _, err := s.GetTask(id); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT seq, path, size, removed FROM task_paths WHERE task_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TaskPath
	for rows.Next() {
		var p TaskPath
		if err := rows.Scan(&p.Seq, &p.Path, &p.Size, &p.Removed); err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// DeleteTask removes a task and its paths.
func (s *Store) DeleteTask(id string) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	var keep, createdAt string
	var finishedAt, lastError sql.NullString
	if err := row.Scan(&t.ID, &t.Kind, &t.Status, &t.Base, &keep, &t.Found, &t.Bytes,
		&createdAt, &finishedAt, &lastError); err != nil {
		return Task{}, err
	}
	if keep != "" {
		t.Keep = strings.Split(keep, ",")
	}
	ts, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Task{}, fmt.Errorf("parsing created_at: %w", err)
	}
	t.CreatedAt = ts
	if finishedAt.Valid {
		ts, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return Task{}, fmt.Errorf("parsing finished_at: %w", err)
		}
		t.FinishedAt = &ts
	}
	t.LastError = lastError.String
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
