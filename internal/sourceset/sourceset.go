// Package sourceset is the source-file registry spec.md §1 names as
// an external collaborator: it maps a `file_id` to the file's name and
// text, and supplies the byte ranges a diagnostic renderer needs to
// label a span. The core (scanner, parser, compiler, VM) only ever
// consumes a file_id and text; this package is what hands those in
// and turns a span back into readable context afterward.
package sourceset

import (
	"fmt"

	"github.com/google/uuid"

	"loxvm/internal/span"
)

// File is one registered source file.
type File struct {
	ID   int
	Name string
	Text string
	// SessionID distinguishes snippets entered in the same REPL run,
	// so a saved chunk can record where its source came from without
	// the registry needing a database of its own.
	SessionID uuid.UUID
}

// Set is the registry: file_id -> File, plus the REPL session id every
// file registered through AddREPLLine shares.
type Set struct {
	files     []File
	sessionID uuid.UUID
}

// New creates an empty registry tagged with a fresh session id.
func New() *Set {
	return &Set{sessionID: uuid.New()}
}

// SessionID reports the id shared by every file this Set has
// registered, stable for the process's lifetime.
func (s *Set) SessionID() uuid.UUID { return s.sessionID }

// AddFile registers a file loaded from disk and returns its file_id.
func (s *Set) AddFile(name, text string) int {
	id := len(s.files)
	s.files = append(s.files, File{ID: id, Name: name, Text: text, SessionID: s.sessionID})
	return id
}

// AddREPLLine registers one line of REPL input, named so a rendered
// diagnostic can tell the user which prompt it came from.
func (s *Set) AddREPLLine(text string) int {
	name := fmt.Sprintf("<repl:%d>", len(s.files)+1)
	return s.AddFile(name, text)
}

// Get returns the registered file for id, or ok=false if id was never
// registered.
func (s *Set) Get(id int) (File, bool) {
	if id < 0 || id >= len(s.files) {
		return File{}, false
	}
	return s.files[id], true
}

// Snippet returns the source text covered by sp, clamped to the
// file's actual length so a slightly stale span never panics.
func (s *Set) Snippet(sp span.Span) (string, bool) {
	f, ok := s.Get(sp.FileID)
	if !ok {
		return "", false
	}
	start, end := sp.Start, sp.End
	if start < 0 {
		start = 0
	}
	if end > len(f.Text) {
		end = len(f.Text)
	}
	if start > end {
		return "", false
	}
	return f.Text[start:end], true
}

// LineCol converts a byte offset within file id into a 1-based
// (line, column) pair, for rendering a caret under a span.
func (s *Set) LineCol(fileID, offset int) (line, col int, ok bool) {
	f, found := s.Get(fileID)
	if !found || offset < 0 || offset > len(f.Text) {
		return 0, 0, false
	}
	line, col = 1, 1
	for i := 0; i < offset; i++ {
		if f.Text[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col, true
}
