package config

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
)

type keyKind int

const (
	kString keyKind = iota
	kInt
	kBool
)

func (k keyKind) String() string {
	switch k {
	case kString:
		return "string"
	case kInt:
		return "int"
	case kBool:
		return "bool"
	default:
		return fmt.Sprintf("keyKind(%d)", int(k))
	}
}

type keySpec struct {
	key  string
	kind keyKind
	def  any
	env  string
	// goos restricts the key to one platform ("windows") or excludes one ("!windows").
	goos string
}

var specs = []keySpec{
	{key: "auto_hide", kind: kBool, def: true},
	{key: "check_beta", kind: kBool, def: false},
	{key: "check_online_updates", kind: kBool, def: true},
	{key: "dark_mode", kind: kBool, def: true},
	{key: "debug", kind: kBool, def: false, env: "PURGEKIT_DEBUG"},
	{key: "delete_confirmation", kind: kBool, def: true},
	{key: "exit_done", kind: kBool, def: false},
	{key: "remember_geometry", kind: kBool, def: true},
	{key: "shred", kind: kBool, def: false},
	{key: "units_iec", kind: kBool, def: false},
	{key: "window_maximized", kind: kBool, def: false},
	{key: "first_start", kind: kBool, def: false},
	{key: "kde_shred_menu_option", kind: kBool, def: false, goos: "!windows"},
	{key: "update_winapp2", kind: kBool, def: false, goos: "windows"},
	{key: "window_x", kind: kInt, def: 0},
	{key: "window_y", kind: kInt, def: 0},
	{key: "window_width", kind: kInt, def: 0},
	{key: "window_height", kind: kInt, def: 0},
	{key: "version", kind: kString, def: ""},
}

var specIndex = indexSpecs(specs)

// indexSpecs validates the schema once at init. A duplicate key or a default
// that does not match its declared kind is a programming error.
func indexSpecs(list []keySpec) map[string]keySpec {
	idx := make(map[string]keySpec, len(list))
	for _, s := range list {
		if s.key != strings.ToLower(s.key) {
			panic(fmt.Sprintf("config: schema key %q must be lower case", s.key))
		}
		if _, dup := idx[s.key]; dup {
			panic(fmt.Sprintf("config: duplicate schema key %q", s.key))
		}
		var ok bool
		switch s.kind {
		case kBool:
			_, ok = s.def.(bool)
		case kInt:
			_, ok = s.def.(int)
		case kString:
			_, ok = s.def.(string)
		}
		if !ok {
			panic(fmt.Sprintf("config: default for %q is %T, want %s", s.key, s.def, s.kind))
		}
		idx[s.key] = s
	}
	return idx
}

func lookupSpec(key string) (keySpec, bool) {
	s, ok := specIndex[strings.ToLower(key)]
	return s, ok
}

// available reports whether the key has meaning on the given platform.
func (s keySpec) available(goos string) bool {
	switch {
	case s.goos == "":
		return true
	case strings.HasPrefix(s.goos, "!"):
		return goos != s.goos[1:]
	default:
		return goos == s.goos
	}
}

// format converts a typed value to its canonical stored form.
func (s keySpec) format(v any) (string, error) {
	switch s.kind {
	case kBool:
		b, ok := v.(bool)
		if !ok {
			return "", fmt.Errorf("%w: %s wants bool, got %T", ErrKindMismatch, s.key, v)
		}
		return formatBool(b), nil
	case kInt:
		i, ok := v.(int)
		if !ok {
			return "", fmt.Errorf("%w: %s wants int, got %T", ErrKindMismatch, s.key, v)
		}
		return strconv.Itoa(i), nil
	default:
		str, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("%w: %s wants string, got %T", ErrKindMismatch, s.key, v)
		}
		return str, nil
	}
}

// parse converts a raw string into the key's typed value.
func (s keySpec) parse(raw string) (any, error) {
	switch s.kind {
	case kBool:
		return parseBool(raw)
	case kInt:
		i, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid integer for %s: %w", s.key, err)
		}
		return i, nil
	default:
		return raw, nil
	}
}

// envForced reports whether the environment variable bound to a bool key
// forces it on. Only keys that declare an env var participate.
func envForced(key string) bool {
	s, ok := lookupSpec(key)
	if !ok || s.env == "" || s.kind != kBool {
		return false
	}
	raw := os.Getenv(s.env)
	if raw == "" {
		return false
	}
	b, err := parseBool(raw)
	if err != nil {
		slog.Warn("could not parse bool from env var, ignoring", "env", s.env, "value", raw, "error", err)
		return false
	}
	return b
}

var (
	truthy = map[string]bool{"1": true, "t": true, "true": true, "y": true, "yes": true, "on": true}
	falsy  = map[string]bool{"0": true, "f": true, "false": true, "n": true, "no": true, "off": true}
)

// parseBool accepts the INI boolean vocabulary, including single-letter t/f.
func parseBool(raw string) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case truthy[v]:
		return true, nil
	case falsy[v]:
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", raw)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// hostOS is a variable so tests can exercise platform-specific keys.
var hostOS = runtime.GOOS
