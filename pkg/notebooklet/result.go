package notebooklet

import (
	"fmt"

	"github.com/opensoc/notebooklets/pkg/display"
	"github.com/opensoc/notebooklets/pkg/timespan"
	"github.com/opensoc/notebooklets/pkg/types"
)

// ResultField is one declared output of a notebooklet run: a name, the
// documented meaning, and the populated value (nil until its step runs).
type ResultField struct {
	Name        string
	Description string
	Value       any
}

// Result is the structured output of one Run call. Each concrete
// notebooklet declares its own result type with typed fields; Fields
// exposes them in declaration order for uniform display.
type Result interface {
	Description() string
	Timespan() timespan.TimeSpan
	Fields() []ResultField
}

// CoreResult carries the description and timespan every result shares.
// Concrete result types embed it.
type CoreResult struct {
	Descr string            `json:"description"`
	Span  timespan.TimeSpan `json:"timespan"`
}

// NewCoreResult creates the shared portion of a result.
func NewCoreResult(description string, span timespan.TimeSpan) CoreResult {
	return CoreResult{Descr: description, Span: span}
}

// Description implements Result.
func (r CoreResult) Description() string {
	return r.Descr
}

// Timespan implements Result.
func (r CoreResult) Timespan() timespan.TimeSpan {
	return r.Span
}

// HasData reports whether a result field value is populated: non-nil,
// and for table values, non-empty.
func HasData(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case *types.Table:
		return !v.IsEmpty()
	case string:
		return v != ""
	default:
		return true
	}
}

// FieldHasData looks up the named field of a result and reports whether
// it is populated. Drill-down helpers use it to decide whether to warn
// that Run must be called first.
func FieldHasData(r Result, name string) bool {
	if r == nil {
		return false
	}

	for _, field := range r.Fields() {
		if field.Name == name {
			return HasData(field.Value)
		}
	}

	return false
}

// RenderResult emits a result through the display emitter: the
// description, then each populated field's description and an
// appropriate rendering of its value, in declaration order.
func RenderResult(e *display.Emitter, r Result) {
	if r == nil {
		return
	}

	e.Markdown("## " + r.Description())
	e.Text("Timespan: " + r.Timespan().String())

	for _, field := range r.Fields() {
		if !HasData(field.Value) {
			continue
		}

		e.Markdown("### " + field.Name)

		if field.Description != "" {
			e.Text(field.Description)
		}

		switch value := field.Value.(type) {
		case *types.Table:
			e.Table(value, nil)
		case string:
			e.Text(value)
		default:
			e.Text(fmt.Sprint(value))
		}
	}
}
