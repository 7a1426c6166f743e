// Package display routes notebooklet output to a pluggable renderer.
// The Emitter is the single enforcement point for silent mode: every
// render call passes through it, so individual notebooklets never need
// to check the flag themselves.
package display

import (
	"github.com/sirupsen/logrus"

	"github.com/opensoc/notebooklets/pkg/metadata"
)

// Kind identifies the rendering treatment a piece of output wants.
type Kind string

const (
	KindText     Kind = "text"
	KindMarkdown Kind = "markdown"
	KindTable    Kind = "table"
	KindTimeline Kind = "timeline"
	KindMap      Kind = "map"
	KindTree     Kind = "tree"
)

// Hints carry column-role and layout hints to the renderer
// (e.g. "time_column", "group_by", "title").
type Hints map[string]any

// Renderer renders one output unit. Implementations are external
// collaborators; the framework only defines the call shape.
type Renderer interface {
	Render(kind Kind, data any, hints Hints) error
}

// Emitter binds a renderer to a notebooklet's display sections and the
// effective silent flag for one run.
type Emitter struct {
	log      logrus.FieldLogger
	renderer Renderer
	sections map[string]metadata.Section
	silent   bool
}

// NewEmitter creates an emitter with no bound sections.
func NewEmitter(log logrus.FieldLogger, renderer Renderer) *Emitter {
	return &Emitter{
		log:      log.WithField("component", "display"),
		renderer: renderer,
		sections: map[string]metadata.Section{},
	}
}

// WithSections returns a copy bound to the given section lookup table.
func (e *Emitter) WithSections(sections map[string]metadata.Section) *Emitter {
	clone := *e
	clone.sections = sections

	return &clone
}

// WithSilent returns a copy with the silent flag set.
func (e *Emitter) WithSilent(silent bool) *Emitter {
	clone := *e
	clone.silent = silent

	return &clone
}

// Silent reports whether output is suppressed.
func (e *Emitter) Silent() bool {
	return e.silent
}

// EmitSection renders the titled display unit for the given section
// key. Unknown keys are ignored with a debug log so a missing output
// block never fails a run.
func (e *Emitter) EmitSection(key string) {
	section, ok := e.sections[key]
	if !ok {
		e.log.WithField("section", key).Debug("No display section for key")

		return
	}

	if section.Title != "" {
		e.Markdown(headingPrefix(section.HDLevel) + section.Title)
	}

	if section.Text == "" {
		return
	}

	if section.Markdown {
		e.Markdown(section.Text)
	} else {
		e.Text(section.Text)
	}
}

// Text renders a plain text line.
func (e *Emitter) Text(text string) {
	e.render(KindText, text, nil)
}

// Markdown renders markdown content.
func (e *Emitter) Markdown(text string) {
	e.render(KindMarkdown, text, nil)
}

// Table renders tabular data.
func (e *Emitter) Table(data any, hints Hints) {
	e.render(KindTable, data, hints)
}

// Timeline renders an event timeline.
func (e *Emitter) Timeline(data any, hints Hints) {
	e.render(KindTimeline, data, hints)
}

// Map renders a geographic map.
func (e *Emitter) Map(data any, hints Hints) {
	e.render(KindMap, data, hints)
}

// Tree renders hierarchical data such as a process tree.
func (e *Emitter) Tree(data any, hints Hints) {
	e.render(KindTree, data, hints)
}

func (e *Emitter) render(kind Kind, data any, hints Hints) {
	if e.silent || e.renderer == nil {
		return
	}

	if err := e.renderer.Render(kind, data, hints); err != nil {
		e.log.WithField("kind", string(kind)).WithError(err).Warn("Render call failed")
	}
}

func headingPrefix(level int) string {
	if level < 1 {
		level = 2
	}

	if level > 6 {
		level = 6
	}

	prefix := ""
	for i := 0; i < level; i++ {
		prefix += "#"
	}

	return prefix + " "
}
