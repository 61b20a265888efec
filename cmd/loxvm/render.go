package main

import (
	"fmt"
	"io"
	"strings"

	"loxvm/internal/diag"
	"loxvm/internal/sourceset"
)

// renderDiagnostic writes one labelled-source rendering of it to w,
// in the style spec.md §1 delegates to an "out of scope" rendering
// backend: source line, a caret under the primary label's span, the
// message, and any notes.
func renderDiagnostic(w io.Writer, files *sourceset.Set, it *diag.Item) {
	fmt.Fprintf(w, "error[%s]: %s\n", it.Code, it.Message)
	renderLabel(w, files, it.Primary)
	for _, l := range it.Labels {
		renderLabel(w, files, l)
	}
	for _, note := range it.Notes {
		fmt.Fprintf(w, "  note: %s\n", note)
	}
}

func renderLabel(w io.Writer, files *sourceset.Set, l diag.Label) {
	f, ok := files.Get(l.Span.FileID)
	if !ok {
		fmt.Fprintf(w, "  --> <unknown file>:%d..%d: %s\n", l.Span.Start, l.Span.End, l.Message)
		return
	}
	line, col, ok := files.LineCol(l.Span.FileID, l.Span.Start)
	if !ok {
		line, col = 0, 0
	}
	fmt.Fprintf(w, "  --> %s:%d:%d\n", f.Name, line, col)

	lineText, caretLen := sourceLineAt(f.Text, l.Span.Start, l.Span.End)
	fmt.Fprintf(w, "   | %s\n", lineText)
	fmt.Fprintf(w, "   | %s%s %s\n", strings.Repeat(" ", col-1), strings.Repeat("^", maxInt(1, caretLen)), l.Message)
}

// sourceLineAt returns the full source line containing start, and how
// many of its bytes the [start,end) span covers, for the caret
// underline's width.
func sourceLineAt(text string, start, end int) (string, int) {
	lineStart := strings.LastIndexByte(text[:clampInt(start, len(text))], '\n') + 1
	lineEnd := len(text)
	if idx := strings.IndexByte(text[clampInt(start, len(text)):], '\n'); idx >= 0 {
		lineEnd = start + idx
	}
	if lineEnd < lineStart {
		lineEnd = lineStart
	}
	caretEnd := end
	if caretEnd > lineEnd {
		caretEnd = lineEnd
	}
	return text[lineStart:lineEnd], caretEnd - start
}

func clampInt(n, max int) int {
	if n > max {
		return max
	}
	if n < 0 {
		return 0
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
