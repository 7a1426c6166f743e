// Package metadata loads the declarative YAML document bound to each
// notebooklet: identity, option sets, search tags, required providers
// and per-section display text.
package metadata

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opensoc/notebooklets/pkg/nberrors"
)

// AltSeparator splits a req_providers entry into alternatives; any one
// present provider satisfies the requirement.
const AltSeparator = "|"

// OptionDef is a named, toggleable step of a notebooklet run. In the
// YAML document an entry is either a bare name or a single-key mapping
// of name to description; bare names normalize to an empty description.
type OptionDef struct {
	Name        string
	Description string
}

// UnmarshalYAML accepts both the bare-string and name-to-description
// mapping forms of an option entry.
func (o *OptionDef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		o.Name = node.Value
		o.Description = ""

		return nil
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("option entry must have exactly one name")
		}

		o.Name = node.Content[0].Value
		o.Description = node.Content[1].Value

		return nil
	default:
		return fmt.Errorf("option entry must be a string or a single-key mapping")
	}
}

// Section is one display unit from the document's `output` block,
// emitted when the corresponding step of a notebooklet executes.
type Section struct {
	Title    string `yaml:"title"`
	HDLevel  int    `yaml:"hd_level"`
	Text     string `yaml:"text"`
	Markdown bool   `yaml:"md"`
}

// Metadata is the immutable declarative record for one notebooklet.
type Metadata struct {
	Name           string             `yaml:"name"`
	Description    string             `yaml:"description"`
	DefaultOptions []OptionDef        `yaml:"default_options"`
	OtherOptions   []OptionDef        `yaml:"other_options"`
	Inputs         []string           `yaml:"inputs"`
	EntityTypes    []string           `yaml:"entity_types"`
	Keywords       []string           `yaml:"keywords"`
	ReqProviders   []string           `yaml:"req_providers"`
	Sections       map[string]Section `yaml:"-"`
}

type document struct {
	Metadata Metadata           `yaml:"metadata"`
	Output   map[string]Section `yaml:"output"`
}

// Parse loads a metadata document. The source identifies the owning
// module in error messages. Fails with a ConfigurationError when the
// document is malformed, the mandatory name field is absent, or the
// default and other option sets overlap.
func Parse(data []byte, source string) (*Metadata, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nberrors.NewConfigurationError(source, "unmarshaling document: %v", err)
	}

	meta := doc.Metadata
	meta.Sections = doc.Output

	if meta.Name == "" {
		return nil, nberrors.NewConfigurationError(source, "metadata must have a name")
	}

	if meta.Sections == nil {
		meta.Sections = map[string]Section{}
	}

	if len(meta.Inputs) == 0 {
		meta.Inputs = []string{"value"}
	}

	defaults := make(map[string]struct{}, len(meta.DefaultOptions))
	for _, opt := range meta.DefaultOptions {
		defaults[opt.Name] = struct{}{}
	}

	for _, opt := range meta.OtherOptions {
		if _, ok := defaults[opt.Name]; ok {
			return nil, nberrors.NewConfigurationError(
				source, "option %q appears in both default_options and other_options", opt.Name,
			)
		}
	}

	return &meta, nil
}

// DefaultOptionNames returns the names of the default option set in
// declaration order.
func (m *Metadata) DefaultOptionNames() []string {
	return optionNames(m.DefaultOptions)
}

// OtherOptionNames returns the names of the non-default options in
// declaration order.
func (m *Metadata) OtherOptionNames() []string {
	return optionNames(m.OtherOptions)
}

// AllOptions returns default then other option definitions in
// declaration order.
func (m *Metadata) AllOptions() []OptionDef {
	all := make([]OptionDef, 0, len(m.DefaultOptions)+len(m.OtherOptions))
	all = append(all, m.DefaultOptions...)
	all = append(all, m.OtherOptions...)

	return all
}

// AllOptionNames returns every declared option name in declaration order.
func (m *Metadata) AllOptionNames() []string {
	return optionNames(m.AllOptions())
}

// Alternatives splits a req_providers entry into its alternative
// provider names.
func Alternatives(requirement string) []string {
	parts := strings.Split(requirement, AltSeparator)
	alts := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			alts = append(alts, trimmed)
		}
	}

	return alts
}

// SearchTerms returns the casefolded set of terms this notebooklet is
// findable by: name, entity types, keywords and option names.
func (m *Metadata) SearchTerms() []string {
	seen := map[string]struct{}{m.Name: {}}
	terms := []string{m.Name}

	add := func(values []string) {
		for _, val := range values {
			folded := strings.ToLower(val)
			if _, ok := seen[folded]; ok {
				continue
			}

			seen[folded] = struct{}{}
			terms = append(terms, folded)
		}
	}

	add(m.EntityTypes)
	add(m.Keywords)
	add(m.AllOptionNames())
	sort.Strings(terms[1:])

	return terms
}

// OptionsDoc renders the option sets as help text.
func (m *Metadata) OptionsDoc() string {
	var buf strings.Builder

	writeSet := func(heading string, opts []OptionDef) {
		buf.WriteString(heading + "\n")
		buf.WriteString(strings.Repeat("-", len(heading)) + "\n")

		if len(opts) == 0 {
			buf.WriteString("None\n")
		}

		for _, opt := range opts {
			if opt.Description != "" {
				fmt.Fprintf(&buf, "- %s: %s\n", opt.Name, opt.Description)
			} else {
				fmt.Fprintf(&buf, "- %s\n", opt.Name)
			}
		}

		buf.WriteString("\n")
	}

	writeSet("Default Options", m.DefaultOptions)
	writeSet("Other Options", m.OtherOptions)

	return buf.String()
}

func optionNames(opts []OptionDef) []string {
	names := make([]string, 0, len(opts))
	for _, opt := range opts {
		names = append(names, opt.Name)
	}

	return names
}
