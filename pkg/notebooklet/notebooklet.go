// Package notebooklet defines the contract every notebooklet
// implements and the shared base behavior: option resolution, timespan
// normalization, provider access and last-result retention.
package notebooklet

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opensoc/notebooklets/pkg/display"
	"github.com/opensoc/notebooklets/pkg/metadata"
	"github.com/opensoc/notebooklets/pkg/nberrors"
	"github.com/opensoc/notebooklets/pkg/options"
	"github.com/opensoc/notebooklets/pkg/providers"
	"github.com/opensoc/notebooklets/pkg/timespan"
	"github.com/opensoc/notebooklets/pkg/types"
)

// RunParams carries the arguments of one Run invocation.
type RunParams struct {
	// Value is the target identifier (host name, IP, account, URL...).
	Value string
	// Data is optional pre-fetched tabular input for notebooklets that
	// accept it instead of querying.
	Data *types.Table
	// Timespan is the window queries execute over.
	Timespan timespan.TimeSpan
	// Options selects the steps to run; nil means the metadata default
	// set. Entries are either all bare names or all "+"/"-" prefixed.
	Options []string
	// Silent, when non-nil, overrides the environment silent flag for
	// this call only.
	Silent *bool
}

// Notebooklet is a parameterized unit of investigative logic bound to
// declarative metadata.
type Notebooklet interface {
	Name() string
	Metadata() *metadata.Metadata
	// Run executes the enabled steps and returns the populated result.
	Run(ctx context.Context, params RunParams) (Result, error)
	// LastResult returns the result of the most recent Run, or nil.
	LastResult() Result
}

// Environment is the explicit per-process configuration handed to every
// notebooklet constructor: provider handles, the display emitter, the
// logger and the default silent flag. It replaces process-wide globals.
type Environment struct {
	Providers *providers.Set
	Display   *display.Emitter
	Log       logrus.FieldLogger
	Silent    bool
}

// Base carries the shared state and behavior concrete notebooklets
// embed. Construct with NewBase, which enforces the required-provider
// check once, before Run is ever callable.
type Base struct {
	meta *metadata.Metadata
	env  *Environment
	log  logrus.FieldLogger

	opts []string
	ts   timespan.TimeSpan
	emit *display.Emitter
	last Result
}

// NewBase binds metadata to an environment. Fails with a
// MissingProviderError when any req_providers entry has no present
// alternative.
func NewBase(meta *metadata.Metadata, env *Environment) (Base, error) {
	if env == nil || env.Providers == nil {
		return Base{}, fmt.Errorf("notebooklet %q requires a provider environment", meta.Name)
	}

	if missing := env.Providers.Missing(meta.ReqProviders); len(missing) > 0 {
		return Base{}, nberrors.NewMissingProviderError(meta.Name, missing)
	}

	log := env.Log
	if log == nil {
		log = logrus.New()
	}

	emitter := env.Display
	if emitter == nil {
		emitter = display.NewEmitter(log, nil)
	}

	return Base{
		meta: meta,
		env:  env,
		log:  log.WithField("notebooklet", meta.Name),
		opts: meta.DefaultOptionNames(),
		emit: emitter.WithSections(meta.Sections).WithSilent(env.Silent),
	}, nil
}

// Begin performs the base part of every Run: resolves the effective
// option set, records the timespan and applies any per-run silent
// override. Concrete Run implementations call it before any work.
func (b *Base) Begin(params RunParams) error {
	resolved, err := options.Resolve(b.meta, params.Options)
	if err != nil {
		return err
	}

	b.opts = resolved
	b.ts = params.Timespan

	silent := b.env.Silent
	if params.Silent != nil {
		silent = *params.Silent
	}

	b.emit = b.emit.WithSilent(silent)

	b.log.WithFields(logrus.Fields{
		"options":  strings.Join(resolved, ","),
		"timespan": params.Timespan.String(),
	}).Debug("Run started")

	return nil
}

// OptionEnabled reports whether the named option is in the effective
// set of the current run.
func (b *Base) OptionEnabled(name string) bool {
	return options.Enabled(b.opts, name)
}

// Options returns the effective option set of the current run.
func (b *Base) Options() []string {
	return b.opts
}

// Timespan returns the normalized timespan of the current run.
func (b *Base) Timespan() timespan.TimeSpan {
	return b.ts
}

// Emitter returns the display emitter bound to this notebooklet's
// sections and the current run's silent flag.
func (b *Base) Emitter() *display.Emitter {
	return b.emit
}

// Log returns the notebooklet-scoped logger.
func (b *Base) Log() logrus.FieldLogger {
	return b.log
}

// QueryProvider returns the environment's primary query backend.
func (b *Base) QueryProvider() providers.QueryProvider {
	return b.env.Providers.QueryProvider()
}

// Provider returns the named provider from the environment.
func (b *Base) Provider(name string) (providers.Provider, error) {
	return b.env.Providers.Get(name)
}

// Providers returns the full provider set.
func (b *Base) Providers() *providers.Set {
	return b.env.Providers
}

// SetLastResult records the populated result of the current run.
func (b *Base) SetLastResult(r Result) {
	b.last = r
}

// LastResult returns the most recent run's result, or nil.
func (b *Base) LastResult() Result {
	return b.last
}

// Name returns the metadata name.
func (b *Base) Name() string {
	return b.meta.Name
}

// Description returns the metadata description.
func (b *Base) Description() string {
	return b.meta.Description
}

// Metadata returns the bound metadata record.
func (b *Base) Metadata() *metadata.Metadata {
	return b.meta
}

// Keywords returns the metadata search keywords.
func (b *Base) Keywords() []string {
	return b.meta.Keywords
}

// EntityTypes returns the supported target entity categories.
func (b *Base) EntityTypes() []string {
	return b.meta.EntityTypes
}

// DefaultOptions returns the default option names.
func (b *Base) DefaultOptions() []string {
	return b.meta.DefaultOptionNames()
}

// AllOptions returns every declared option name.
func (b *Base) AllOptions() []string {
	return b.meta.AllOptionNames()
}

// ListOptions returns the formatted option documentation.
func (b *Base) ListOptions() string {
	return b.meta.OptionsDoc()
}

// GetHelp returns formatted help text combining description, options
// and section titles.
func (b *Base) GetHelp() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "%s\n\n%s\n\n", b.meta.Name, b.meta.Description)
	buf.WriteString(b.meta.OptionsDoc())

	if len(b.meta.Sections) > 0 {
		buf.WriteString("Display Sections\n----------------\n")

		for key, section := range b.meta.Sections {
			fmt.Fprintf(&buf, "- %s: %s\n", key, section.Title)
		}
	}

	return buf.String()
}

// MatchTerms matches space or comma separated search terms against the
// notebooklet's search text (name, description, entity types, keywords
// and option names). Terms are treated as case-insensitive regular
// expressions, falling back to substring match when a term is not a
// valid pattern. Returns whether every term matched and the count of
// matched terms.
func (b *Base) MatchTerms(searchTerms string) (bool, int) {
	return MatchMetadata(b.meta, searchTerms)
}

// MatchMetadata implements the MatchTerms scoring against a metadata
// record directly, so the registry can rank entries without
// instantiating notebooklets.
func MatchMetadata(meta *metadata.Metadata, searchTerms string) (bool, int) {
	searchText := strings.ToLower(strings.Join(meta.SearchTerms(), " ") + " " + meta.Description)

	var terms []string
	for _, part := range strings.Split(searchTerms, ",") {
		terms = append(terms, strings.Fields(part)...)
	}

	if len(terms) == 0 {
		return false, 0
	}

	matched := 0

	for _, term := range terms {
		term = strings.ToLower(term)

		re, err := regexp.Compile(term)
		if err != nil {
			if strings.Contains(searchText, term) {
				matched++
			}

			continue
		}

		if re.MatchString(searchText) {
			matched++
		}
	}

	return matched == len(terms), matched
}
