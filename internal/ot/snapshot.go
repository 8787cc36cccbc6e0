package ot

// NonexistentType is the sentinel Snapshot.Type value for a document that
// has never been created, or that has been deleted.
const NonexistentType = "nonexistent"

// Snapshot is the versioned container for one document's state.
//
// Invariants: V increases by exactly 1 per successfully applied operation;
// Type == NonexistentType iff Data is absent (nil); V == 0 &&
// Type == NonexistentType denotes a document that was never created but is
// still a legitimate subscribable entity.
type Snapshot struct {
	ID   string         `json:"id"`
	V    uint64         `json:"v"`
	Type string         `json:"type"`
	Data any            `json:"data,omitempty"`
	Meta map[string]any `json:"meta,omitempty"`
}

// NewSnapshot returns the empty, never-created snapshot for id.
func NewSnapshot(id string) Snapshot {
	return Snapshot{ID: id, Type: NonexistentType}
}

// Exists reports whether the document currently has content.
func (s *Snapshot) Exists() bool {
	return s.Type != NonexistentType
}

// Clone returns a structurally independent copy. The reference types
// (counter, simple-text) hold value payloads (int, string) that copy
// safely by assignment, so only the wrapper (in particular Meta, a map) is
// deep-copied here; a type with reference-typed payloads would need a
// type-specific clone hook.
func (s Snapshot) Clone() Snapshot {
	c := s
	if s.Meta != nil {
		c.Meta = make(map[string]any, len(s.Meta))
		for k, v := range s.Meta {
			c.Meta[k] = v
		}
	}
	return c
}
