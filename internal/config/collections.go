package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// List returns the values of a list option in index order. The second result
// is false when the list was never set.
func (s *Store) List(name string) ([]string, bool) {
	sec, err := s.file.GetSection(listPrefix + name)
	if err != nil {
		return nil, false
	}
	keys := sec.KeyStrings()
	sortIndexKeys(keys)
	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, sec.Key(k).String())
	}
	return values, true
}

// SetList replaces a list option, one key per value ("0", "1", ...).
func (s *Store) SetList(name string, values []string) error {
	section := listPrefix + name
	sec := s.clearSection(section)
	for i, v := range values {
		if _, err := sec.NewKey(strconv.Itoa(i), storedValue(v)); err != nil {
			return fmt.Errorf("setting %s[%d]: %w", section, i, err)
		}
	}
	return s.save()
}

// clearSection empties a section in place so it keeps its position in the file.
func (s *Store) clearSection(name string) *ini.Section {
	sec := s.section(name)
	for _, k := range sec.KeyStrings() {
		sec.DeleteKey(k)
	}
	return sec
}

// sortIndexKeys orders numeric keys numerically so "10" follows "9"; any
// non-numeric keys sort after them lexically.
func sortIndexKeys(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
}

// Path kinds stored in whitelist and custom path sections.
const (
	PathFile   = "file"
	PathFolder = "folder"
)

// PathSet is a set of filesystem paths split by kind.
type PathSet struct {
	Files   []string `json:"files"`
	Folders []string `json:"folders"`
}

// Len returns the number of paths in the set.
func (p PathSet) Len() int {
	return len(p.Files) + len(p.Folders)
}

// WhitelistPaths returns paths the cleaner must never touch.
func (s *Store) WhitelistPaths() (PathSet, error) {
	return s.paths(SectionWhitelist)
}

// SetWhitelistPaths replaces the whitelist.
func (s *Store) SetWhitelistPaths(p PathSet) error {
	return s.setPaths(SectionWhitelist, p)
}

// CustomPaths returns user-added paths to clean.
func (s *Store) CustomPaths() (PathSet, error) {
	return s.paths(SectionCustom)
}

// SetCustomPaths replaces the custom path list.
func (s *Store) SetCustomPaths(p PathSet) error {
	return s.setPaths(SectionCustom, p)
}

func (s *Store) paths(section string) (PathSet, error) {
	var out PathSet
	sec, err := s.file.GetSection(section)
	if err != nil {
		return out, nil
	}

	seen := make(map[string]bool)
	var indexes []string
	for _, k := range sec.KeyStrings() {
		pos := strings.IndexByte(k, '_')
		if pos < 0 {
			continue
		}
		idx := k[:pos]
		if !seen[idx] {
			seen[idx] = true
			indexes = append(indexes, idx)
		}
	}
	sortIndexKeys(indexes)

	for _, idx := range indexes {
		kind := keyValue(sec, idx+"_type")
		path := keyValue(sec, idx+"_path")
		switch kind {
		case PathFile:
			out.Files = append(out.Files, path)
		case PathFolder:
			out.Folders = append(out.Folders, path)
		default:
			return PathSet{}, fmt.Errorf("%w: %q in [%s] entry %s", ErrUnknownPathType, kind, section, idx)
		}
	}
	return out, nil
}

// keyValue reads a key without creating it.
func keyValue(sec *ini.Section, name string) string {
	if !sec.HasKey(name) {
		return ""
	}
	return sec.Key(name).String()
}

func (s *Store) setPaths(section string, p PathSet) error {
	sec := s.clearSection(section)
	n := 0
	add := func(kind string, paths []string) {
		for _, path := range paths {
			sec.NewKey(strconv.Itoa(n)+"_type", kind)
			sec.NewKey(strconv.Itoa(n)+"_path", storedValue(path))
			n++
		}
	}
	add(PathFile, p.Files)
	add(PathFolder, p.Folders)
	return s.save()
}

// Language reports whether the locale is marked to be preserved.
func (s *Store) Language(id string) bool {
	raw, ok := s.raw(SectionLanguages, id)
	if !ok {
		return false
	}
	b, err := parseBool(raw)
	if err != nil {
		s.logger.Warn("corrupt language preference, treating as not preserved", "lang", id, "value", raw)
		return false
	}
	return b
}

// Languages returns every preserved locale id, or nil when the section is
// missing.
func (s *Store) Languages() []string {
	sec, err := s.file.GetSection(SectionLanguages)
	if err != nil {
		return nil
	}
	var ids []string
	for _, id := range sec.KeyStrings() {
		if s.Language(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// SetLanguage marks a locale to be preserved or not. Un-preserving removes
// the key entirely.
func (s *Store) SetLanguage(id string, keep bool) error {
	sec := s.section(SectionLanguages)
	if sec.HasKey(id) && !keep {
		sec.DeleteKey(id)
	} else {
		sec.NewKey(id, formatBool(keep))
	}
	return s.save()
}

func treeKey(parent, child string) string {
	if child == "" {
		return parent
	}
	return parent + "." + child
}

// Tree returns the checked state of a cleaner (child empty) or one of its
// options in the cleaner tree view.
func (s *Store) Tree(parent, child string) bool {
	key := treeKey(parent, child)
	raw, ok := s.raw(SectionTree, key)
	if !ok {
		return false
	}
	b, err := parseBool(raw)
	if err != nil {
		s.logger.Error("error in tree preference", "key", key, "value", raw, "error", err)
		return false
	}
	return b
}

// SetTree stores the checked state of a tree entry. Unchecking an existing
// entry removes it.
func (s *Store) SetTree(parent, child string, value bool) error {
	sec := s.section(SectionTree)
	key := treeKey(parent, child)
	if sec.HasKey(key) && !value {
		sec.DeleteKey(key)
	} else {
		sec.NewKey(key, formatBool(value))
	}
	return s.save()
}
