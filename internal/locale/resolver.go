package locale

import (
	"iter"
)

// Resolver decides which localization entries are purgeable.
type Resolver struct {
	tree    *Tree
	catalog []string
}

// NewResolver returns a resolver over tree. Catalog lists the locale tags the
// cleaner knows about; nil means Catalog().
func NewResolver(tree *Tree, catalog []string) *Resolver {
	if catalog == nil {
		catalog = Catalog()
	}
	return &Resolver{tree: tree, catalog: catalog}
}

// Purgeable yields the paths of localization entries for locales not in keep.
// An empty keep set is a configuration error reported before any filesystem
// access.
//
// An entry with tag "xx_YY" is purgeable when the full tag is a known locale
// not kept, or when the base language "xx" is purgeable and "xx_YY" itself is
// not kept. Keeping the full tag always protects the entry.
func (r *Resolver) Purgeable(base string, keep []string) (iter.Seq2[string, error], error) {
	if len(keep) == 0 {
		return nil, ErrEmptyKeepSet
	}
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}
	purgeable := make(map[string]bool, len(r.catalog))
	for _, c := range r.catalog {
		if !keepSet[c] {
			purgeable[c] = true
		}
	}

	return func(yield func(string, error) bool) {
		for m, err := range r.tree.Localizations(base) {
			if err != nil {
				if !yield("", err) {
					return
				}
				continue
			}
			if shouldPurge(m, purgeable, keepSet) && !yield(m.Path, nil) {
				return
			}
		}
	}, nil
}

func shouldPurge(m Match, purgeable, keep map[string]bool) bool {
	specific := m.Tag()
	return purgeable[specific] || (purgeable[m.Locale] && !keep[specific])
}

// Collect drains a sequence of paths, stopping at the first error.
func Collect(seq iter.Seq2[string, error]) ([]string, error) {
	var out []string
	for p, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}
