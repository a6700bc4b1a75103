package locale

import (
	"bytes"
	_ "embed"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownElement is returned for a rule element other than path or
// regexfilter.
var ErrUnknownElement = errors.New("locale: unknown rule element")

// Rule formats accepted by ParseRules.
const (
	FormatXML  = "xml"
	FormatYAML = "yaml"
)

// Rule is one element of a rule file. A rule with RegexFilter set is a
// filter on its parent; any other rule is a path rule that resolves a
// directory by Location or DirectoryRegex and may carry a glob Filter.
type Rule struct {
	Location       string           `yaml:"location,omitempty"`
	DirectoryRegex string           `yaml:"directoryregex,omitempty"`
	Filter         string           `yaml:"filter,omitempty"`
	RegexFilter    *RegexFilterRule `yaml:"regexfilter,omitempty"`
	Children       []Rule           `yaml:"children,omitempty"`
}

// RegexFilterRule is the prefix/postfix pair of a regexfilter element.
type RegexFilterRule struct {
	Prefix  string `yaml:"prefix,omitempty"`
	Postfix string `yaml:"postfix,omitempty"`
}

type yamlRules struct {
	Localizations []Rule `yaml:"localizations"`
}

var (
	docFields    = []string{"localizations"}
	ruleFields   = []string{"location", "directoryregex", "filter", "regexfilter", "children"}
	filterFields = []string{"prefix", "postfix"}
)

// Unknown keys are checked by hand at every level: a decoder's KnownFields
// setting does not reach custom unmarshalers.
func (d *yamlRules) UnmarshalYAML(n *yaml.Node) error {
	if err := checkFields(n, docFields); err != nil {
		return err
	}
	if err := checkItems(field(n, "localizations")); err != nil {
		return err
	}
	type plain yamlRules
	return n.Decode((*plain)(d))
}

// UnmarshalYAML rejects unknown keys. A regexfilter key with no value is an
// empty filter, as <regexfilter/> is in XML.
func (r *Rule) UnmarshalYAML(n *yaml.Node) error {
	if err := checkFields(n, ruleFields); err != nil {
		return err
	}
	if err := checkItems(field(n, "children")); err != nil {
		return err
	}
	type plain Rule
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*r = Rule(p)
	if r.RegexFilter == nil && field(n, "regexfilter") != nil {
		r.RegexFilter = &RegexFilterRule{}
	}
	return nil
}

func (f *RegexFilterRule) UnmarshalYAML(n *yaml.Node) error {
	if err := checkFields(n, filterFields); err != nil {
		return err
	}
	type plain RegexFilterRule
	return n.Decode((*plain)(f))
}

func checkFields(n *yaml.Node, known []string) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: %w: rule must be a mapping", n.Line, ErrMalformedPattern)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if k := n.Content[i]; !slices.Contains(known, k.Value) {
			return fmt.Errorf("line %d: %w: %q", k.Line, ErrUnknownElement, k.Value)
		}
	}
	return nil
}

// checkItems rejects null entries in a rule list, which the decoder would
// otherwise drop.
func checkItems(seq *yaml.Node) error {
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return nil
	}
	for _, item := range seq.Content {
		if item.Kind == yaml.ScalarNode && item.ShortTag() == "!!null" {
			return fmt.Errorf("line %d: %w: empty rule", item.Line, ErrMalformedPattern)
		}
	}
	return nil
}

// field returns the value node of a mapping key, or nil.
func field(n *yaml.Node, name string) *yaml.Node {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == name {
			return n.Content[i+1]
		}
	}
	return nil
}

// LoadRules reads a rule file, picking the format from its extension.
func LoadRules(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rules: %w", err)
	}
	defer f.Close()

	format := FormatXML
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}
	tree, err := ParseRules(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tree, nil
}

// ParseRules builds a tree from XML or YAML rules.
func ParseRules(r io.Reader, format string) (*Tree, error) {
	var rules []Rule
	switch format {
	case FormatXML:
		var err error
		if rules, err = decodeXML(r); err != nil {
			return nil, err
		}
	case FormatYAML:
		var doc yamlRules
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decoding yaml rules: %w", err)
		}
		rules = doc.Localizations
	default:
		return nil, fmt.Errorf("unsupported rule format %q", format)
	}
	return BuildTree(rules)
}

// BuildTree builds a tree from decoded rules.
func BuildTree(rules []Rule) (*Tree, error) {
	t := NewTree()
	for _, r := range rules {
		if err := addRule(t.root, r); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func addRule(parent *Node, r Rule) error {
	if r.RegexFilter != nil {
		if r.Location != "" || r.DirectoryRegex != "" || r.Filter != "" || len(r.Children) > 0 {
			return fmt.Errorf("%w: regexfilter cannot carry path attributes or children", ErrBadFilter)
		}
		return parent.AddFilter(r.RegexFilter.Prefix, r.RegexFilter.Postfix)
	}

	if r.Location == "" && r.DirectoryRegex == "" && r.Filter == "" && len(r.Children) == 0 {
		return fmt.Errorf("%w: empty rule", ErrMalformedPattern)
	}

	node := parent
	var err error
	switch {
	case r.DirectoryRegex != "":
		if r.Location != "" || r.Filter != "" {
			return fmt.Errorf("%w: directoryregex %q cannot be combined with location or filter",
				ErrMalformedPattern, r.DirectoryRegex)
		}
		node, err = parent.AddPattern(r.DirectoryRegex)
	case r.Location != "":
		node, err = parent.AddDir(r.Location)
	}
	if err != nil {
		return err
	}
	if r.Filter != "" {
		if err := node.AddGlobFilter(r.Filter); err != nil {
			return err
		}
	}
	for _, c := range r.Children {
		if err := addRule(node, c); err != nil {
			return err
		}
	}
	return nil
}

type xmlElement struct {
	XMLName  xml.Name
	Attrs    []xml.Attr   `xml:",any,attr"`
	Children []xmlElement `xml:",any"`
}

func (e xmlElement) attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// decodeXML accepts a <localizations> document, or a cleaner document
// wrapping one.
func decodeXML(r io.Reader) ([]Rule, error) {
	var root xmlElement
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("decoding xml rules: %w", err)
	}
	switch root.XMLName.Local {
	case "localizations":
		return xmlRules(root.Children)
	case "cleaner":
		for _, c := range root.Children {
			if c.XMLName.Local == "localizations" {
				return xmlRules(c.Children)
			}
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: <%s> at document root", ErrUnknownElement, root.XMLName.Local)
	}
}

func xmlRules(elems []xmlElement) ([]Rule, error) {
	rules := make([]Rule, 0, len(elems))
	for _, e := range elems {
		switch e.XMLName.Local {
		case "path":
			children, err := xmlRules(e.Children)
			if err != nil {
				return nil, err
			}
			rules = append(rules, Rule{
				Location:       e.attr("location"),
				DirectoryRegex: e.attr("directoryregex"),
				Filter:         e.attr("filter"),
				Children:       children,
			})
		case "regexfilter":
			if len(e.Children) > 0 {
				return nil, fmt.Errorf("%w: regexfilter has child elements", ErrBadFilter)
			}
			rules = append(rules, Rule{RegexFilter: &RegexFilterRule{
				Prefix:  e.attr("prefix"),
				Postfix: e.attr("postfix"),
			}})
		default:
			return nil, fmt.Errorf("%w: <%s>", ErrUnknownElement, e.XMLName.Local)
		}
	}
	return rules, nil
}

//go:embed default_rules.yaml
var defaultRules []byte

// DefaultTree returns the built-in rule set for common Linux locations.
func DefaultTree() (*Tree, error) {
	return ParseRules(bytes.NewReader(defaultRules), FormatYAML)
}
