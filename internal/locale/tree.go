// Package locale finds localization files for languages the user does not
// want to keep. A rule tree describes where such files live; the tree is
// validated when it is built and only read afterwards.
package locale

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrSlashInPattern is returned for a directory pattern containing '/'.
	ErrSlashInPattern = errors.New("locale: directory pattern may not contain slashes")

	// ErrMalformedPattern is returned when a pattern does not compile.
	ErrMalformedPattern = errors.New("locale: malformed pattern")

	// ErrBadFilter is returned for a filter string without exactly one '*'.
	ErrBadFilter = errors.New("locale: filter must contain exactly one '*' placeholder")

	// ErrMixedChildren is returned when a node would hold both directory
	// matchers and file filters.
	ErrMixedChildren = errors.New("locale: node cannot mix directory rules and file filters")

	// ErrEmptyLocation is returned for a literal directory rule without a name.
	ErrEmptyLocation = errors.New("locale: empty location")

	// ErrEmptyKeepSet is returned when no locale is marked to be kept.
	ErrEmptyKeepSet = errors.New("locale: found no locales to keep")
)

// localePattern matches locale-tagged names such as "de", "pt_BR",
// "sr@latin" or "en_US.UTF-8". It is deliberately narrow so that names like
// "jp.importantfileextension" are not taken for locale files.
const localePattern = `(?P<locale>[a-z]{2,3})` +
	`(?P<specifier>[_-][A-Z]{2,4})?(?:\.[\w]+[\d-]+|@\w+)?` +
	`(?P<encoding>[.-_](?:(?:ISO|iso|UTF|utf|us-ascii)[\d-]+|(?:euc|EUC)[A-Z]+))?`

// Child is one entry below a Node: either a *Node (descend into matching
// subdirectories) or a *Filter (match entries of the resolved directory).
type Child interface {
	child()
}

// Node matches one path segment, by literal name or by pattern.
type Node struct {
	name     string
	pattern  *regexp.Regexp
	children []Child
	filters  int
}

// Filter matches locale-tagged entries inside a resolved directory.
type Filter struct {
	re *regexp.Regexp
}

func (*Node) child()   {}
func (*Filter) child() {}

// Tree is a rule tree rooted at the base directory given to Localizations.
type Tree struct {
	root *Node
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{root: &Node{}}
}

// Root returns the node bound to the base directory.
func (t *Tree) Root() *Node {
	return t.root
}

// String renders the node for logs and error messages.
func (n *Node) String() string {
	switch {
	case n.pattern != nil:
		return "/" + n.pattern.String() + "/"
	case n.name == "":
		return "<root>"
	default:
		return n.name
	}
}

func (n *Node) addNode(c *Node) (*Node, error) {
	if n.filters > 0 {
		return nil, fmt.Errorf("%w: %s already has file filters", ErrMixedChildren, n)
	}
	n.children = append(n.children, c)
	return c, nil
}

// AddDir adds a literal subdirectory (one or more segments) and returns it.
func (n *Node) AddDir(name string) (*Node, error) {
	if name == "" {
		return nil, ErrEmptyLocation
	}
	return n.addNode(&Node{name: name})
}

// AddPattern adds a subdirectory matcher. Like the rule files it comes from,
// the expression is anchored at the start of the name only.
func (n *Node) AddPattern(expr string) (*Node, error) {
	if strings.Contains(expr, "/") {
		return nil, fmt.Errorf("%w: %q", ErrSlashInPattern, expr)
	}
	re, err := regexp.Compile(`^(?:` + expr + `)`)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedPattern, expr, err)
	}
	return n.addNode(&Node{pattern: re})
}

// AddFilter adds a filter matching "^prefix<locale>postfix$", e.g. prefix
// "foobar_" and postfix `\.qm` match "foobar_en_US.utf-8.qm".
func (n *Node) AddFilter(prefix, postfix string) error {
	for _, c := range n.children {
		if _, ok := c.(*Node); ok {
			return fmt.Errorf("%w: %s already has subdirectory rules", ErrMixedChildren, n)
		}
	}
	re, err := regexp.Compile("^" + prefix + localePattern + postfix + "$")
	if err != nil {
		return fmt.Errorf("%w: %q or %q: %v", ErrMalformedPattern, prefix, postfix, err)
	}
	n.children = append(n.children, &Filter{re: re})
	n.filters++
	return nil
}

var globSpecial = regexp.MustCompile(`([\[\]()^$.])`)

// AddGlobFilter adds a filter written as a glob with a single '*' standing
// for the locale, e.g. "qt_*.qm".
func (n *Node) AddGlobFilter(glob string) error {
	if strings.Count(glob, "*") != 1 {
		return fmt.Errorf("%w: %q", ErrBadFilter, glob)
	}
	pre, post, _ := strings.Cut(glob, "*")
	return n.AddFilter(globSpecial.ReplaceAllString(pre, `\$1`), globSpecial.ReplaceAllString(post, `\$1`))
}
