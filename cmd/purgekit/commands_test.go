package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kalambet/purgekit/internal/config"
	"github.com/kalambet/purgekit/internal/locale"
	"github.com/kalambet/purgekit/internal/storage"
)

var ctx = context.Background()

type cliEnv struct {
	configPath string
	dataDir    string
	base       string
	messages   *bytes.Buffer
}

// newCLIEnv points the CLI at a temp preferences file and data dir, and lays
// out a locale tree with en, fr and de_DE under base.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("PURGEKIT_DEBUG", "")
	t.Setenv("PURGEKIT_API_TOKEN", "")
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "en_US.UTF-8")

	env := &cliEnv{
		configPath: filepath.Join(t.TempDir(), "purgekit.ini"),
		dataDir:    t.TempDir(),
		base:       t.TempDir(),
		messages:   &bytes.Buffer{},
	}
	for _, d := range []string{"en", "fr", "de_DE"} {
		p := filepath.Join(env.base, "usr", "share", "locale", d, "LC_MESSAGES")
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(p, "app.mo"), []byte("mo"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	old := messages
	messages = env.messages
	t.Cleanup(func() { messages = old })
	return env
}

// resetFlags restores every flag to its default so one Execute does not leak
// into the next.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--no-color", "--config", e.configPath, "--data-dir", e.dataDir}, args...))
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestConfigSetGet(t *testing.T) {
	env := newCLIEnv(t)

	env.mustRun(t, "config", "set", "window_width", "800")
	if out := env.mustRun(t, "config", "get", "window_width"); strings.TrimSpace(out) != "800" {
		t.Errorf("config get window_width = %q, want 800", out)
	}
	if !strings.Contains(env.messages.String(), "Set window_width = 800") {
		t.Errorf("messages = %q", env.messages.String())
	}
}

func TestConfigSetErrors(t *testing.T) {
	env := newCLIEnv(t)

	if _, err := env.run(t, "config", "set", "window_width", "wide"); !errors.Is(err, config.ErrKindMismatch) {
		t.Errorf("set non-integer error = %v, want ErrKindMismatch", err)
	}
	if _, err := env.run(t, "config", "set", "bogus", "1"); !errors.Is(err, config.ErrUnknownKey) {
		t.Errorf("set unknown key error = %v, want ErrUnknownKey", err)
	}
	if _, err := env.run(t, "config", "set", "window_width"); err == nil {
		t.Error("expected error for missing value")
	}
}

func TestConfigToggle(t *testing.T) {
	env := newCLIEnv(t)

	env.mustRun(t, "config", "toggle", "units_iec")
	if out := env.mustRun(t, "config", "get", "units_iec"); strings.TrimSpace(out) != "True" {
		t.Errorf("units_iec after one toggle = %q, want True", out)
	}
	env.mustRun(t, "config", "toggle", "units_iec")
	if out := env.mustRun(t, "config", "get", "units_iec"); strings.TrimSpace(out) != "False" {
		t.Errorf("units_iec after two toggles = %q, want False", out)
	}
	if _, err := env.run(t, "config", "toggle", "window_width"); !errors.Is(err, config.ErrKindMismatch) {
		t.Errorf("toggle int error = %v, want ErrKindMismatch", err)
	}
}

func TestConfigShowJSON(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "config", "show", "--json")
	var infos []config.KeyInfo
	if err := json.Unmarshal([]byte(out), &infos); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	found := false
	for _, k := range infos {
		if k.Key == "delete_confirmation" && k.Value == "True" {
			found = true
		}
	}
	if !found {
		t.Errorf("delete_confirmation=True not in %+v", infos)
	}

	plain := env.mustRun(t, "config", "show")
	if !strings.Contains(plain, "window_width = 0 (default)") {
		t.Errorf("plain show missing default marker:\n%s", plain)
	}
}

func TestConfigCheck(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "config", "check")

	if err := os.WriteFile(env.configPath, []byte("[bleachbit]\nunits_iec = banana\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := env.run(t, "config", "check"); err == nil {
		t.Error("expected error for corrupt file")
	}
	env.mustRun(t, "config", "reset", "--yes")
	env.mustRun(t, "config", "check")
}

func TestConfigResetNeedsTerminal(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.run(t, "config", "reset"); err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Errorf("reset without terminal error = %v, want it to mention --yes", err)
	}
}

func TestLanguagesKeepDrop(t *testing.T) {
	env := newCLIEnv(t)

	env.mustRun(t, "languages", "keep", "fr", "de")
	out := env.mustRun(t, "languages", "list", "--kept")
	for _, code := range []string{"en", "fr", "de"} {
		if !strings.Contains(out, " "+code+" ") {
			t.Errorf("kept list missing %s:\n%s", code, out)
		}
	}

	env.mustRun(t, "languages", "drop", "fr")
	out = env.mustRun(t, "languages", "list", "--kept")
	if strings.Contains(out, " fr ") {
		t.Errorf("fr still kept after drop:\n%s", out)
	}

	if _, err := env.run(t, "languages", "keep", "xx_bogus"); err == nil {
		t.Error("expected error for unknown language")
	}
}

func TestListsSetShow(t *testing.T) {
	env := newCLIEnv(t)

	env.mustRun(t, "lists", "set", "shred_drives", "/a", "/b")
	out := env.mustRun(t, "lists", "show", "shred_drives")
	if out != "/a\n/b\n" {
		t.Errorf("lists show = %q, want /a and /b", out)
	}
	if _, err := env.run(t, "lists", "show", "never_set"); err == nil {
		t.Error("expected error for unset list")
	}
}

func TestPathsAddRemove(t *testing.T) {
	env := newCLIEnv(t)
	dir := t.TempDir()

	env.mustRun(t, "paths", "add", "whitelist", dir)
	env.mustRun(t, "paths", "add", "whitelist", "/tmp/notes.txt", "--type", "file")
	env.mustRun(t, "paths", "add", "whitelist", dir)
	if !strings.Contains(env.messages.String(), "already in whitelist") {
		t.Errorf("duplicate add not reported: %q", env.messages.String())
	}

	out := env.mustRun(t, "paths", "show", "whitelist")
	if !strings.Contains(out, "folder "+dir) || !strings.Contains(out, "file   /tmp/notes.txt") {
		t.Errorf("paths show:\n%s", out)
	}

	env.mustRun(t, "paths", "remove", "whitelist", dir)
	out = env.mustRun(t, "paths", "show", "whitelist")
	if strings.Contains(out, dir) {
		t.Errorf("%s still listed after remove:\n%s", dir, out)
	}

	if _, err := env.run(t, "paths", "remove", "whitelist", dir); err == nil {
		t.Error("expected error removing a missing path")
	}
	if _, err := env.run(t, "paths", "add", "blacklist", dir); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, err := env.run(t, "paths", "add", "custom", dir, "--type", "socket"); !errors.Is(err, config.ErrUnknownPathType) {
		t.Errorf("bad --type error = %v, want ErrUnknownPathType", err)
	}
}

func TestLocalesScan(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "locales", "scan", "--base", env.base)
	lines := strings.Fields(out)
	if len(lines) != 2 {
		t.Fatalf("scan output = %q, want two paths", out)
	}
	for _, l := range lines {
		if !strings.HasSuffix(l, "/fr") && !strings.HasSuffix(l, "/de_DE") {
			t.Errorf("unexpected path %s", l)
		}
	}
	if !strings.Contains(env.messages.String(), "Found 2 paths") {
		t.Errorf("summary missing: %q", env.messages.String())
	}

	// Nothing is deleted by a scan.
	if _, err := os.Stat(filepath.Join(env.base, "usr", "share", "locale", "fr")); err != nil {
		t.Errorf("scan removed fr: %v", err)
	}

	out = env.mustRun(t, "locales", "scan", "--base", env.base, "--keep", "en,fr")
	if strings.TrimSpace(out) == "" || strings.Contains(out, "/fr") {
		t.Errorf("scan keeping fr = %q", out)
	}
}

func TestLocalesScanEmptyKeepSet(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "languages", "drop", "en")

	if _, err := env.run(t, "locales", "scan", "--base", env.base); !errors.Is(err, locale.ErrEmptyKeepSet) {
		t.Errorf("error = %v, want ErrEmptyKeepSet", err)
	}
}

func TestLocalesPurge(t *testing.T) {
	env := newCLIEnv(t)

	// Stdin is not a terminal under go test, so the confirmation refuses.
	if _, err := env.run(t, "locales", "purge", "--base", env.base); err == nil {
		t.Fatal("expected confirmation error")
	}
	if _, err := os.Stat(filepath.Join(env.base, "usr", "share", "locale", "fr")); err != nil {
		t.Fatalf("fr removed without confirmation: %v", err)
	}

	env.mustRun(t, "locales", "purge", "--base", env.base, "--yes")
	for d, want := range map[string]bool{"en": true, "fr": false, "de_DE": false} {
		_, err := os.Stat(filepath.Join(env.base, "usr", "share", "locale", d))
		if exists := err == nil; exists != want {
			t.Errorf("%s exists = %v, want %v", d, exists, want)
		}
	}
}

func TestLocalesPurgeWithoutConfirmationPreference(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "config", "set", "delete_confirmation", "false")

	env.mustRun(t, "locales", "purge", "--base", env.base)
	if _, err := os.Stat(filepath.Join(env.base, "usr", "share", "locale", "fr")); err == nil {
		t.Error("fr not removed")
	}
}

func TestLocalesList(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun(t, "locales", "list", "--base", env.base)
	for _, tag := range []string{"en", "fr", "de_DE"} {
		if !strings.Contains(out, tag+" ") {
			t.Errorf("list missing %s:\n%s", tag, out)
		}
	}
}

func TestLocalesCustomRules(t *testing.T) {
	env := newCLIEnv(t)
	rules := filepath.Join(t.TempDir(), "rules.xml")
	xml := `<localizations><path location="usr/share/locale"><regexfilter/></path></localizations>`
	if err := os.WriteFile(rules, []byte(xml), 0o644); err != nil {
		t.Fatal(err)
	}
	out := env.mustRun(t, "locales", "scan", "--base", env.base, "--rules", rules)
	if len(strings.Fields(out)) != 2 {
		t.Errorf("scan with XML rules = %q", out)
	}

	if _, err := env.run(t, "locales", "scan", "--rules", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing rules file")
	}
}

func TestTasksHistory(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "locales", "scan", "--base", env.base)

	store, err := storage.Open(env.dataDir)
	if err != nil {
		t.Fatal(err)
	}
	tasks, err := store.ListTasks(10)
	store.Close()
	if err != nil || len(tasks) != 1 {
		t.Fatalf("ListTasks = %v, %v; want one task", tasks, err)
	}
	id := tasks[0].ID

	if out := env.mustRun(t, "tasks", "list"); !strings.Contains(out, id) || !strings.Contains(out, "completed") {
		t.Errorf("tasks list:\n%s", out)
	}

	var shown struct {
		storage.Task
		Paths []storage.TaskPath `json:"paths"`
	}
	out := env.mustRun(t, "tasks", "show", id, "--paths")
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("decoding show: %v", err)
	}
	if shown.ID != id || shown.Found != 2 || len(shown.Paths) != 2 {
		t.Errorf("show = %+v", shown)
	}

	if out := env.mustRun(t, "tasks", "report", id); !strings.HasPrefix(out, "# Scan "+id) {
		t.Errorf("report:\n%s", out)
	}

	env.mustRun(t, "tasks", "delete", id)
	if _, err := env.run(t, "tasks", "show", id); err == nil {
		t.Error("expected error for deleted task")
	}
}

func TestTaskReport(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	finished := created.Add(1500 * time.Millisecond)
	md := taskReport(storage.Task{
		ID:         "t-1",
		Kind:       storage.KindPurge,
		Status:     storage.StatusCompleted,
		Base:       "/",
		Keep:       []string{"en", "de"},
		Found:      1,
		Bytes:      2048,
		CreatedAt:  created,
		FinishedAt: &finished,
	}, []storage.TaskPath{{Seq: 1, Path: "/usr/share/locale/fr", Size: 2048, Removed: true}})

	for _, want := range []string{
		"# Purge t-1",
		"| Kept | en, de |",
		"| Duration | 1.5s |",
		"| Found | 1 (2 kB) |",
		"- `/usr/share/locale/fr` 2 kB ~~removed~~",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q:\n%s", want, md)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		iec  bool
		want string
	}{
		{0, false, "0 B"},
		{999, false, "999 B"},
		{1000, false, "1 kB"},
		{1500, false, "1.5 kB"},
		{1024, true, "1 KiB"},
		{5 * 1024 * 1024, true, "5 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n, tt.iec); got != tt.want {
			t.Errorf("formatBytes(%d, %v) = %q, want %q", tt.n, tt.iec, got, tt.want)
		}
	}
}

type testServer struct {
	server   *httptest.Server
	requests []*http.Request
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}
	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests = append(ts.requests, r)
		if resp, ok := responses[r.Method+" "+r.URL.Path]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"message":"task x is not running","type":"conflict"}}`))
	}))
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

func withClient(t *testing.T, c *apiClient) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return c, nil }
	t.Cleanup(func() { newAPIClient = old })
}

func TestTasksCancel(t *testing.T) {
	env := newCLIEnv(t)
	ts := newTestServer(t, map[string]string{
		"POST /tasks/abc/cancel": `{"id":"abc","status":"cancelling"}`,
	})
	withClient(t, ts.client())

	env.mustRun(t, "tasks", "cancel", "abc")
	if len(ts.requests) != 1 || ts.requests[0].Header.Get("Authorization") != "Bearer test-token" {
		t.Errorf("requests = %v", ts.requests)
	}

	_, err := env.run(t, "tasks", "cancel", "x")
	if err == nil || !strings.Contains(err.Error(), "409: task x is not running") {
		t.Errorf("error = %v, want the server message", err)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestStatusCommand_Running(t *testing.T) {
	env := newCLIEnv(t)
	ts := newTestServer(t, map[string]string{"GET /health": `{"status":"ok"}`})
	withClient(t, ts.client())

	env.mustRun(t, "status")
	msgs := env.messages.String()
	for _, want := range []string{"Server: running", "Integrity: ok", "Kept languages: en"} {
		if !strings.Contains(msgs, want) {
			t.Errorf("status missing %q:\n%s", want, msgs)
		}
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid or missing bearer token","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, token: "bad-token", httpClient: ts.Client()}
	resp, err := client.get(ctx, "/options")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if err.Error() != "server returned 401: invalid or missing bearer token" {
		t.Errorf("error = %q", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{5, 100, "5"},
		{0, 100, "0"},
		{100, 100, "100+"},
		{150, 100, "150+"},
	}
	for _, tt := range tests {
		got := countLabel(tt.count, tt.limit)
		if got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}
