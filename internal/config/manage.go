package config

import (
	"fmt"
)

// KeyInfo describes a preference key for display purposes.
type KeyInfo struct {
	Key     string `json:"key"`
	Kind    string `json:"kind"`
	EnvVar  string `json:"env,omitempty"`
	Value   string `json:"value"`
	Default string `json:"default"`
	Stored  bool   `json:"stored"`
}

// ShowAll returns every schema key available on this platform with its
// effective value. A value that fails to parse is shown raw.
func (s *Store) ShowAll() []KeyInfo {
	var result []KeyInfo
	for _, spec := range specs {
		if !spec.available(hostOS) {
			continue
		}
		raw, stored := s.raw(SectionMain, spec.key)
		value := raw
		if v, err := s.Get(spec.key); err == nil {
			value = formatValue(v)
		}
		result = append(result, KeyInfo{
			Key:     spec.key,
			Kind:    spec.kind.String(),
			EnvVar:  spec.env,
			Value:   value,
			Default: formatValue(spec.def),
			Stored:  stored,
		})
	}
	return result
}

// Describe returns display info for a single key.
func (s *Store) Describe(key string) (KeyInfo, error) {
	spec, ok := lookupSpec(key)
	if !ok {
		return KeyInfo{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	for _, info := range s.ShowAll() {
		if info.Key == spec.key {
			return info, nil
		}
	}
	return KeyInfo{}, fmt.Errorf("%w: %q is not available on %s", ErrUnknownKey, key, hostOS)
}

// ValidKeys returns the list of schema key names available on this platform.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if s.available(hostOS) {
			keys = append(keys, s.key)
		}
	}
	return keys
}

// IsBoolKey reports whether key is a bool schema key.
func IsBoolKey(key string) bool {
	s, ok := lookupSpec(key)
	return ok && s.kind == kBool
}
