package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/opensoc/notebooklets/pkg/types"
)

// consoleMaxRows caps table previews on the terminal.
const consoleMaxRows = 10

// Console is a Renderer for terminal output. Tables print a bounded
// preview with a humanized row count; timeline, map and tree kinds
// print a one-line summary since the terminal cannot draw them.
type Console struct {
	out io.Writer
}

// NewConsole creates a console renderer writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Render implements Renderer.
func (c *Console) Render(kind Kind, data any, hints Hints) error {
	switch kind {
	case KindText, KindMarkdown:
		fmt.Fprintln(c.out, data)
	case KindTable:
		c.renderTable(data, hints)
	case KindTimeline, KindMap, KindTree:
		c.renderPlaceholder(kind, data, hints)
	default:
		fmt.Fprintf(c.out, "[%s] %v\n", kind, data)
	}

	return nil
}

func (c *Console) renderTable(data any, hints Hints) {
	table, ok := data.(*types.Table)
	if !ok {
		fmt.Fprintln(c.out, data)

		return
	}

	if title, ok := hints["title"].(string); ok && title != "" {
		fmt.Fprintln(c.out, title)
	}

	if table.IsEmpty() {
		fmt.Fprintln(c.out, "(no rows)")

		return
	}

	fmt.Fprintln(c.out, strings.Join(table.Columns, " | "))

	for i, row := range table.Rows {
		if i >= consoleMaxRows {
			break
		}

		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = fmt.Sprint(cell)
		}

		fmt.Fprintln(c.out, strings.Join(cells, " | "))
	}

	fmt.Fprintf(c.out, "%s rows\n", humanize.Comma(int64(table.Len())))
}

func (c *Console) renderPlaceholder(kind Kind, data any, hints Hints) {
	descr := ""
	if table, ok := data.(*types.Table); ok {
		descr = fmt.Sprintf(" (%s events)", humanize.Comma(int64(table.Len())))
	}

	title := ""
	if t, ok := hints["title"].(string); ok {
		title = " " + t
	}

	fmt.Fprintf(c.out, "[%s]%s%s\n", kind, title, descr)
}
