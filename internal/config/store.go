// Package config is the persistent preferences store. Preferences live in an
// INI file (UTF-8 with a byte-order mark) that stays readable by earlier
// releases of the cleaner. Every mutation rewrites the whole file.
//
// A Store is not safe for concurrent use; callers serialize access.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"gopkg.in/ini.v1"
)

// Section names used in the preferences file.
const (
	SectionMain      = "bleachbit"
	SectionHashpath  = "hashpath"
	SectionLanguages = "preserve_languages"
	SectionTree      = "tree"
	SectionWhitelist = "whitelist/paths"
	SectionCustom    = "custom/paths"
	listPrefix       = "list/"
)

const utf8BOM = "\ufeff"

func init() {
	// Write "key = value" without column alignment, like the files written by
	// earlier releases.
	ini.PrettyFormat = false
	ini.PrettyEqual = true
}

var loadOptions = ini.LoadOptions{
	// Paths may legitimately contain '#' and ';'.
	IgnoreInlineComment: true,
	// Quotes are part of the value, as configparser reads them.
	PreserveSurroundedQuote:  true,
	KeyValueDelimiters:       "=:",
	KeyValueDelimiterOnWrite: "=",
}

// writeFile is replaced in tests to simulate write failures.
var writeFile = writeFileAtomic

// storedValue trims the surrounding whitespace configparser drops on read.
// The writer would otherwise quote such a value, and the quotes would be read
// back as part of it.
func storedValue(v string) string {
	return strings.TrimSpace(v)
}

// Store holds user preferences backed by an INI file.
type Store struct {
	path          string
	file          *ini.File
	logger        *slog.Logger
	debugOverride bool
	version       string
	locale        string
	drives        []string
	purged        bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithDebugOverride forces the debug key on, as the --debug flag does.
func WithDebugOverride(on bool) Option {
	return func(s *Store) { s.debugOverride = s.debugOverride || on }
}

// WithVersion sets the application version recorded in the file.
func WithVersion(v string) Option {
	return func(s *Store) { s.version = v }
}

// WithUserLocale sets the locale whose language is preserved on first start.
func WithUserLocale(l string) Option {
	return func(s *Store) { s.locale = l }
}

// WithDefaultDrives sets the shred_drives list written on first start.
func WithDefaultDrives(drives []string) Option {
	return func(s *Store) { s.drives = drives }
}

// Open loads the preferences file at path, creating it if needed, and fills
// in the sections every later call relies on.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:          path,
		logger:        slog.Default(),
		debugOverride: envForced("debug"),
		version:       "dev",
		locale:        userLocale(),
		drives:        defaultShredDrives(),
	}
	for _, o := range opts {
		o(s)
	}

	f, err := load(path)
	if err != nil {
		return nil, err
	}
	s.file = f

	if err := s.restore(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset discards the file at path and opens a fresh store. It is the
// recovery path for a store that reports IsCorrupt.
func Reset(path string, opts ...Option) (*Store, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("removing config file: %w", err)
	}
	return Open(path, opts...)
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

func load(path string) (*ini.File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ini.Empty(loadOptions), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	f, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	foldMainKeys(f)
	return f, nil
}

// foldMainKeys lower-cases keys in the main section so lookups against the
// schema are case-insensitive. Other sections hold data keys (paths, locale
// tags) whose case is significant.
func foldMainKeys(f *ini.File) {
	sec, err := f.GetSection(SectionMain)
	if err != nil {
		return
	}
	for _, k := range sec.Keys() {
		name := k.Name()
		lower := strings.ToLower(name)
		if name == lower {
			continue
		}
		val := k.Value()
		sec.DeleteKey(name)
		if !sec.HasKey(lower) {
			sec.NewKey(lower, val)
		}
	}
}

func (s *Store) restore() error {
	s.section(SectionMain)
	s.section(SectionHashpath)

	if !s.hasSection(listPrefix + "shred_drives") {
		if err := s.SetList("shred_drives", s.drives); err != nil {
			s.logger.Error("error when setting the default drives to shred", "error", err)
		}
	}

	if !s.hasSection(SectionLanguages) {
		lang := s.locale
		if i := strings.IndexAny(lang, "_-"); i >= 0 {
			lang = lang[:i]
		}
		langs := []string{lang}
		if lang != "en" {
			langs = append(langs, "en")
		}
		for _, l := range langs {
			if l == "" {
				continue
			}
			s.logger.Info("automatically preserving language", "lang", l)
			if err := s.SetLanguage(l, true); err != nil {
				return err
			}
		}
	}

	sec := s.section(SectionMain)
	if !sec.HasKey("version") || sec.Key("version").String() != s.version {
		if err := s.Set(SectionMain, "first_start", true); err != nil {
			return err
		}
	}
	return s.Set(SectionMain, "version", s.version)
}

func (s *Store) hasSection(name string) bool {
	sec, err := s.file.GetSection(name)
	return err == nil && sec != nil
}

// section returns the named section, creating it when absent.
func (s *Store) section(name string) *ini.Section {
	if sec, err := s.file.GetSection(name); err == nil {
		return sec
	}
	sec, err := s.file.NewSection(name)
	if err != nil {
		// NewSection only fails for an empty name.
		panic(fmt.Sprintf("config: creating section %q: %v", name, err))
	}
	return sec
}

func foldKey(section, key string) string {
	if section == SectionMain {
		return strings.ToLower(key)
	}
	return key
}

func (s *Store) raw(section, key string) (string, bool) {
	sec, err := s.file.GetSection(section)
	if err != nil {
		return "", false
	}
	key = foldKey(section, key)
	if !sec.HasKey(key) {
		return "", false
	}
	return sec.Key(key).String(), true
}

// Get returns the typed value of a schema key in the main section: bool, int,
// or string. Absent keys yield their declared default.
func (s *Store) Get(key string) (any, error) {
	spec, ok := lookupSpec(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	switch spec.kind {
	case kBool:
		return s.Bool(key)
	case kInt:
		return s.Int(key)
	default:
		return s.String(SectionMain, spec.key, spec.def.(string)), nil
	}
}

// Bool reads a bool schema key. The debug override takes precedence over the
// stored value, and keys that only exist on another platform read as false.
func (s *Store) Bool(key string) (bool, error) {
	spec, err := s.specOf(key, kBool)
	if err != nil {
		return false, err
	}
	if spec.key == "debug" && s.debugOverride {
		return true, nil
	}
	if !spec.available(hostOS) {
		return false, nil
	}
	return s.storedBool(spec)
}

func (s *Store) storedBool(spec keySpec) (bool, error) {
	raw, ok := s.raw(SectionMain, spec.key)
	if !ok {
		return spec.def.(bool), nil
	}
	b, err := parseBool(raw)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", spec.key, err)
	}
	return b, nil
}

// Int reads an int schema key.
func (s *Store) Int(key string) (int, error) {
	spec, err := s.specOf(key, kInt)
	if err != nil {
		return 0, err
	}
	raw, ok := s.raw(SectionMain, spec.key)
	if !ok {
		return spec.def.(int), nil
	}
	v, err := spec.parse(raw)
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// String returns the raw value of any key, or fallback when it is absent.
func (s *Store) String(section, key, fallback string) string {
	if v, ok := s.raw(section, key); ok {
		return v
	}
	return fallback
}

func (s *Store) specOf(key string, want keyKind) (keySpec, error) {
	spec, ok := lookupSpec(key)
	if !ok {
		return keySpec{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if spec.kind != want {
		return keySpec{}, fmt.Errorf("%w: %s is %s, not %s", ErrKindMismatch, spec.key, spec.kind, want)
	}
	return spec, nil
}

// Set stores value under section/key and writes the file. Schema keys in the
// main section must be given a value of their declared kind; anything else is
// stored in its canonical string form.
func (s *Store) Set(section, key string, value any) error {
	key = foldKey(section, key)
	var raw string
	if spec, ok := lookupSpec(key); ok && section == SectionMain {
		str, err := spec.format(value)
		if err != nil {
			return err
		}
		raw = str
	} else {
		raw = formatValue(value)
	}
	if _, err := s.section(section).NewKey(key, storedValue(raw)); err != nil {
		return fmt.Errorf("setting [%s] %s: %w", section, key, err)
	}
	return s.save()
}

// SetString parses raw according to the schema (for main-section keys) and
// stores it. It backs the CLI and the HTTP API, which only see strings.
func (s *Store) SetString(section, key, raw string) error {
	if spec, ok := lookupSpec(key); ok && section == SectionMain {
		v, err := spec.parse(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrKindMismatch, err)
		}
		return s.Set(section, key, v)
	}
	return s.Set(section, key, raw)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case bool:
		return formatBool(val)
	case int:
		return strconv.Itoa(val)
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// Toggle negates a bool key.
func (s *Store) Toggle(key string) error {
	spec, err := s.specOf(key, kBool)
	if err != nil {
		return err
	}
	cur, err := s.storedBool(spec)
	if err != nil {
		return err
	}
	return s.Set(SectionMain, spec.key, !cur)
}

// IsCorrupt reports whether any stored bool or int schema key fails to parse.
// The only recovery is Reset.
func (s *Store) IsCorrupt() bool {
	for _, spec := range specs {
		raw, ok := s.raw(SectionMain, spec.key)
		if !ok {
			continue
		}
		switch spec.kind {
		case kBool, kInt:
			if _, err := spec.parse(raw); err != nil {
				return true
			}
		}
	}
	return false
}

// save rewrites the whole file through a temp file and rename. A full disk is
// logged and swallowed; the in-memory state stays authoritative.
func (s *Store) save() error {
	if !s.purged {
		s.purgeHashpaths()
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	_, statErr := os.Lstat(s.path)
	created := errors.Is(statErr, fs.ErrNotExist)

	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	if _, err := s.file.WriteTo(&buf); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := writeFile(s.path, buf.Bytes(), 0o600); err != nil {
		if errors.Is(err, syscall.ENOSPC) {
			s.logger.Error("disk was full when writing configuration to file", "path", s.path, "error", err)
			return nil
		}
		return fmt.Errorf("writing config file: %w", err)
	}

	if created {
		s.chownToSudoUser()
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() { os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// chownToSudoUser hands a freshly created file to the invoking user when the
// process runs under sudo, so a later unprivileged run can still write it.
func (s *Store) chownToSudoUser() {
	uidStr, gidStr := os.Getenv("SUDO_UID"), os.Getenv("SUDO_GID")
	if uidStr == "" || gidStr == "" {
		return
	}
	uid, err1 := strconv.Atoi(uidStr)
	gid, err2 := strconv.Atoi(gidStr)
	if err1 != nil || err2 != nil {
		s.logger.Warn("ignoring malformed SUDO_UID/SUDO_GID", "uid", uidStr, "gid", gidStr)
		return
	}
	if err := os.Chown(s.path, uid, gid); err != nil {
		s.logger.Warn("could not hand config file to sudo user", "path", s.path, "error", err)
	}
}
