package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/purgekit/internal/config"
	"github.com/kalambet/purgekit/internal/locale"
	"github.com/kalambet/purgekit/internal/storage"
	"github.com/kalambet/purgekit/internal/task"
)

const testToken = "test-token-12345"

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// newTestDeps builds a config store in a temp dir, an in-memory task store,
// and a scan base holding four locale directories.
func newTestDeps(t *testing.T, token string) (Deps, *config.Store) {
	t.Helper()
	t.Setenv("PURGEKIT_DEBUG", "")

	cfg, err := config.Open(filepath.Join(t.TempDir(), "purgekit.ini"),
		config.WithLogger(discard), config.WithVersion("1.0"),
		config.WithUserLocale("en_US"), config.WithDefaultDrives([]string{"/tmp"}))
	if err != nil {
		t.Fatalf("config.Open: %v", err)
	}

	tasks, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { tasks.Close() })

	base := t.TempDir()
	for _, d := range []string{"en", "en_GB", "fr", "de_DE"} {
		if err := os.MkdirAll(filepath.Join(base, "locale", d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	tree, err := locale.ParseRules(strings.NewReader("localizations:\n  - location: locale\n    children:\n      - regexfilter: {}\n"), locale.FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	runner := task.NewRunner(tasks, locale.NewResolver(tree, []string{"de", "en", "fr"}))
	runner.SetLogger(discard)
	t.Cleanup(runner.Wait)

	return Deps{
		Prefs:    NewPrefs(cfg),
		Tasks:    tasks,
		Runner:   runner,
		Token:    token,
		ScanBase: base,
	}, cfg
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func serve(t *testing.T, h http.Handler, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(method, url, body, testToken))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealth_NoAuth(t *testing.T) {
	deps, _ := newTestDeps(t, testToken)
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAuth_RejectsMissingToken(t *testing.T) {
	deps, _ := newTestDeps(t, testToken)
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/options", "", "wrong"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuth_EmptyTokenDisablesCheck(t *testing.T) {
	deps, _ := newTestDeps(t, "")
	h := NewHandler(deps)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/options", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestOptions_ListAndGet(t *testing.T) {
	deps, _ := newTestDeps(t, testToken)
	h := NewHandler(deps)

	rr := serve(t, h, http.MethodGet, "/options", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	infos := decode[[]config.KeyInfo](t, rr)
	if len(infos) != len(config.ValidKeys()) {
		t.Errorf("options = %d, want %d", len(infos), len(config.ValidKeys()))
	}

	rr = serve(t, h, http.MethodGet, "/options/delete_confirmation", "")
	info := decode[config.KeyInfo](t, rr)
	if info.Kind != "bool" || info.Value != "True" {
		t.Errorf("delete_confirmation = %+v", info)
	}

	rr = serve(t, h, http.MethodGet, "/options/no_such_key", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown key status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestOptions_SetAndToggle(t *testing.T) {
	deps, cfg := newTestDeps(t, testToken)
	h := NewHandler(deps)

	rr := serve(t, h, http.MethodPut, "/options/shred", `{"value":"yes"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("set status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if on, _ := cfg.Bool("shred"); !on {
		t.Error("shred = false after PUT yes")
	}

	rr = serve(t, h, http.MethodPost, "/options/shred/toggle", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("toggle status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if on, _ := cfg.Bool("shred"); on {
		t.Error("shred = true after toggle")
	}

	rr = serve(t, h, http.MethodPut, "/options/shred", `{"value":"banana"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad bool status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = serve(t, h, http.MethodPost, "/options/version/toggle", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("toggle string status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestOptions_Check(t *testing.T) {
	deps, _ := newTestDeps(t, testToken)
	h := NewHandler(deps)

	rr := serve(t, h, http.MethodGet, "/options/check", "")
	if got := decode[map[string]bool](t, rr); got["corrupt"] {
		t.Error("fresh store reported corrupt")
	}
}

func TestLanguages_KeepAndDrop(t *testing.T) {
	deps, cfg := newTestDeps(t, testToken)
	h := NewHandler(deps)

	rr := serve(t, h, http.MethodPut, "/languages/fr", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if !cfg.Language("fr") {
		t.Error("fr not preserved after PUT")
	}

	langs := decode[[]Language](t, serve(t, h, http.MethodGet, "/languages", ""))
	var fr Language
	for _, l := range langs {
		if l.Code == "fr" {
			fr = l
		}
	}
	if !fr.Keep || fr.Name == "" {
		t.Errorf("fr = %+v", fr)
	}

	serve(t, h, http.MethodDelete, "/languages/fr", "")
	if cfg.Language("fr") {
		t.Error("fr still preserved after DELETE")
	}

	rr = serve(t, h, http.MethodPut, "/languages/xx", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown language status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestLists_RoundTrip(t *testing.T) {
	deps, _ := newTestDeps(t, testToken)
	h := NewHandler(deps)

	if rr := serve(t, h, http.MethodGet, "/lists/extra", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unset list status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	serve(t, h, http.MethodPut, "/lists/extra", `{"items":["a","b"]}`)
	got := decode[setListRequest](t, serve(t, h, http.MethodGet, "/lists/extra", ""))
	if strings.Join(got.Items, ",") != "a,b" {
		t.Errorf("items = %v, want [a b]", got.Items)
	}
}

func TestPaths_RoundTrip(t *testing.T) {
	deps, _ := newTestDeps(t, testToken)
	h := NewHandler(deps)

	body := `{"files":["/tmp/a"],"folders":["/var/b","/var/c"]}`
	if rr := serve(t, h, http.MethodPut, "/paths/whitelist", body); rr.Code != http.StatusOK {
		t.Fatalf("PUT status = %d; body = %s", rr.Code, rr.Body.String())
	}
	got := decode[config.PathSet](t, serve(t, h, http.MethodGet, "/paths/whitelist", ""))
	if got.Len() != 3 || got.Folders[1] != "/var/c" {
		t.Errorf("whitelist = %+v", got)
	}

	if rr := serve(t, h, http.MethodGet, "/paths/bogus", ""); rr.Code != http.StatusNotFound {
		t.Errorf("bogus kind status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func waitForTask(t *testing.T, tasks *storage.Store, id string) storage.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		tk, err := tasks.GetTask(id)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if tk.Status != storage.StatusRunning {
			return tk
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s still running", id)
	return storage.Task{}
}

func TestScans_UsesPreservedLanguages(t *testing.T) {
	deps, _ := newTestDeps(t, testToken)
	deps.BaseContext = context.Background()
	h := NewHandler(deps)

	rr := serve(t, h, http.MethodPost, "/scans", "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	id := decode[map[string]string](t, rr)["id"]

	tk := waitForTask(t, deps.Tasks, id)
	if tk.Status != storage.StatusCompleted || tk.Found != 2 {
		t.Errorf("task = %+v, want completed with 2 found", tk)
	}

	paths := decode[[]storage.TaskPath](t, serve(t, h, http.MethodGet, "/tasks/"+id+"/paths", ""))
	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p.Path))
	}
	if strings.Join(names, ",") != "de_DE,fr" {
		t.Errorf("paths = %v, want [de_DE fr]", names)
	}

	list := decode[[]storage.Task](t, serve(t, h, http.MethodGet, "/tasks", ""))
	if len(list) != 1 || list[0].ID != id {
		t.Errorf("tasks = %+v", list)
	}
}

func TestScans_EmptyKeepSet(t *testing.T) {
	deps, cfg := newTestDeps(t, testToken)
	for _, id := range cfg.Languages() {
		if err := cfg.SetLanguage(id, false); err != nil {
			t.Fatal(err)
		}
	}
	h := NewHandler(deps)

	rr := serve(t, h, http.MethodPost, "/scans", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestTasks_NotFound(t *testing.T) {
	deps, _ := newTestDeps(t, testToken)
	h := NewHandler(deps)

	for _, url := range []string{"/tasks/missing", "/tasks/missing/paths"} {
		if rr := serve(t, h, http.MethodGet, url, ""); rr.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want %d", url, rr.Code, http.StatusNotFound)
		}
	}
	if rr := serve(t, h, http.MethodPost, "/tasks/missing/cancel", ""); rr.Code != http.StatusConflict {
		t.Errorf("cancel status = %d, want %d", rr.Code, http.StatusConflict)
	}
}
