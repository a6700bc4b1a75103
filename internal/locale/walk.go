package locale

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"
)

// Match is a localization entry found by a filter.
type Match struct {
	Locale    string
	Specifier string
	Encoding  string
	Path      string
}

// Tag returns the fully qualified locale tag, e.g. "en_GB".
func (m Match) Tag() string {
	return m.Locale + m.Specifier
}

// Localizations walks the filesystem below base, depth first in rule order,
// and yields every entry a filter matches. The sequence is lazy: nothing is
// read until iteration starts, and breaking out stops all filesystem access.
// A directory that cannot be listed yields an error; iteration continues if
// the consumer keeps going.
func (t *Tree) Localizations(base string) iter.Seq2[Match, error] {
	return func(yield func(Match, error) bool) {
		t.root.walk(base, yield)
	}
}

func (n *Node) walk(base string, yield func(Match, error) bool) bool {
	paths, err := n.subpaths(base)
	if err != nil {
		return yield(Match{}, fmt.Errorf("listing %s: %w", base, err))
	}
	for _, p := range paths {
		for _, c := range n.children {
			switch c := c.(type) {
			case *Node:
				if !c.walk(p, yield) {
					return false
				}
			case *Filter:
				if !c.scan(p, yield) {
					return false
				}
			default:
				panic(fmt.Sprintf("locale: unexpected rule child %T", c))
			}
		}
	}
	return true
}

// subpaths resolves the node against base: the named subdirectory, or every
// subdirectory whose name matches the pattern.
func (n *Node) subpaths(base string) ([]string, error) {
	if n.pattern == nil {
		p := base
		if n.name != "" {
			p = filepath.Join(base, filepath.FromSlash(n.name))
		}
		if isDir(p) {
			return []string{p}, nil
		}
		return nil, nil
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !n.pattern.MatchString(e.Name()) {
			continue
		}
		p := filepath.Join(base, e.Name())
		if isDir(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// scan matches the immediate entries of dir; it does not recurse.
func (f *Filter) scan(dir string, yield func(Match, error) bool) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return yield(Match{}, fmt.Errorf("listing %s: %w", dir, err))
	}
	for _, e := range entries {
		sub := f.re.FindStringSubmatch(e.Name())
		if sub == nil {
			continue
		}
		m := Match{
			Locale:    sub[f.re.SubexpIndex("locale")],
			Specifier: sub[f.re.SubexpIndex("specifier")],
			Encoding:  sub[f.re.SubexpIndex("encoding")],
			Path:      filepath.Join(dir, e.Name()),
		}
		if !yield(m, nil) {
			return false
		}
	}
	return true
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}
