package render

import (
	"fmt"
	"strings"
)

// Writer accumulates generated source with indentation tracking.
// Backends share it so every target indents the same way.
type Writer struct {
	sb     strings.Builder
	indent int
	tab    string
}

// NewWriter returns a Writer using tab as one indentation unit.
func NewWriter(tab string) *Writer {
	return &Writer{tab: tab}
}

// Linef writes one indented line.
func (w *Writer) Linef(format string, args ...any) {
	for i := 0; i < w.indent; i++ {
		w.sb.WriteString(w.tab)
	}
	fmt.Fprintf(&w.sb, format, args...)
	w.sb.WriteByte('\n')
}

// Blank writes an empty line.
func (w *Writer) Blank() {
	w.sb.WriteByte('\n')
}

// In increases the indentation level.
func (w *Writer) In() { w.indent++ }

// Out decreases the indentation level.
func (w *Writer) Out() {
	if w.indent > 0 {
		w.indent--
	}
}

// Block writes header, runs body one level deeper, then writes footer.
func (w *Writer) Block(header, footer string, body func()) {
	w.Linef("%s", header)
	w.In()
	body()
	w.Out()
	if footer != "" {
		w.Linef("%s", footer)
	}
}

func (w *Writer) String() string { return w.sb.String() }
