// Package span holds the byte-range location type threaded through every
// stage of the pipeline, from scanning to runtime error reporting.
package span

// Span is a half-open byte range [Start, End) into the source text of
// FileID. FileID is opaque to the core; the source file registry (an
// external collaborator, see internal/sourceset) owns the mapping from
// FileID to a name and text.
type Span struct {
	FileID int
	Start  int
	End    int
}

// Zero is the empty span at offset 0 of file 0, for places where a span
// is required but not meaningful.
var Zero = Span{}

func (s Span) Len() int {
	return s.End - s.Start
}
