// Package heap owns every heap-allocated object a running program can
// reference: today, only strings, but the registry is shaped so a
// later object kind (and eventually a mark-and-sweep collector) slots
// in without reworking the reference type.
//
// spec.md's design notes (§9) prefer, for an ownership language, "an
// indexed slot into a heap-owned arena (ObjectId = u32 indexing a
// Vec<Object>), with a free list for eventual GC. Identity equality
// compares ids." That is the shape implemented here, without the free
// list (ids are never reused, see slot): a ManagedReference is an arena
// index, not a pointer, so it can never dangle while the Heap that
// issued it is alive.
package heap

import "fmt"

// Kind tags the payload behind a ManagedReference. Only String exists
// in this version; the switch in Kind.String is written so that adding
// another kind later is a matter of extending this enum and that
// switch, not restructuring the heap.
type Kind int

const (
	KindString Kind = iota
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ManagedReference is an opaque handle into a Heap's arena. The zero
// value is never issued by InternString, so it is safe to use as a
// "no reference" sentinel.
type ManagedReference struct {
	id int
}

func (r ManagedReference) IsZero() bool { return r.id == 0 }

// slot is the arena entry. live is false once the heap has been torn
// down, so stale dereference after Drop is caught rather than silently
// reading garbage. There is no generational check beyond that: entries
// are never reused while the owning Heap is alive, since this version
// does no collection, only whole-heap teardown.
type slot struct {
	kind Kind
	str  string
	live bool
}

// Heap owns the backing storage for every heap object created during a
// VM's lifetime and interns string content so that equal literals
// share one allocation. Created with the VM, destroyed with the VM.
type Heap struct {
	objects []slot
	intern  map[string]ManagedReference
}

func New() *Heap {
	h := &Heap{
		// index 0 is never issued, so ManagedReference's zero value
		// reliably means "no reference".
		objects: make([]slot, 1),
		intern:  make(map[string]ManagedReference),
	}
	return h
}

// InternString returns a ManagedReference to s, allocating it on first
// sight and returning the existing reference (same id) for every
// later request with equal content.
func (h *Heap) InternString(s string) ManagedReference {
	if ref, ok := h.intern[s]; ok {
		return ref
	}
	h.objects = append(h.objects, slot{kind: KindString, str: s, live: true})
	ref := ManagedReference{id: len(h.objects) - 1}
	h.intern[s] = ref
	return ref
}

// String dereferences ref, which must have been produced by this Heap
// and must be KindString. Safe for the lifetime of the Heap: ids are
// never reused, so a reference taken before teardown stays resolvable
// until the Heap itself is dropped.
func (h *Heap) String(ref ManagedReference) (string, bool) {
	if ref.id <= 0 || ref.id >= len(h.objects) {
		return "", false
	}
	s := h.objects[ref.id]
	if !s.live || s.kind != KindString {
		return "", false
	}
	return s.str, true
}

// Kind reports the object kind behind ref.
func (h *Heap) Kind(ref ManagedReference) (Kind, bool) {
	if ref.id <= 0 || ref.id >= len(h.objects) {
		return 0, false
	}
	s := h.objects[ref.id]
	if !s.live {
		return 0, false
	}
	return s.kind, true
}

// Equal compares two references for the heap's definition of object
// equality: identity first (same arena slot), then, for strings, the
// byte content (so that runtime-built strings not produced through
// InternString — none exist yet, but the registry is shaped to allow
// them later — still compare as Lox expects).
func (h *Heap) Equal(a, b ManagedReference) bool {
	if a.id == b.id {
		return true
	}
	as, aok := h.String(a)
	bs, bok := h.String(b)
	return aok && bok && as == bs
}

// LiveCount returns the number of allocations still registered. Used
// by tests to assert the heap releases everything on Drop.
func (h *Heap) LiveCount() int {
	n := 0
	for _, s := range h.objects {
		if s.live {
			n++
		}
	}
	return n
}

// Drop finalizes every registered reference. No mark-and-sweep runs —
// this version only supports whole-heap teardown, as spec.md's
// Non-goals call for.
func (h *Heap) Drop() {
	for i := range h.objects {
		h.objects[i].live = false
	}
	h.objects = h.objects[:1]
	h.intern = make(map[string]ManagedReference)
}
