package ottype

import (
	"encoding/json"
	"fmt"
)

const (
	// TextName is the short registry name for the simple-text type.
	TextName = "simple-text"
	textURI  = "https://otsync.example/types/simple-text"
)

// TextOp is the single-component text op: exactly one of Insert or Delete
// is set. Ops are exchanged as pointers so that Apply can record the text a
// delete removed, giving Invert a true inverse instead of a placeholder.
type TextOp struct {
	Insert bool `json:"insert,omitempty"`
	Delete bool `json:"delete,omitempty"`
	Pos    int  `json:"pos"`

	Text  string `json:"text,omitempty"`  // insert payload
	Count int    `json:"count,omitempty"` // delete length

	// DeletedText is filled in by Apply for delete ops, so a later Invert
	// call on the same op can reconstruct the removed span.
	DeletedText string `json:"deletedText,omitempty"`
}

func (op *TextOp) clone() *TextOp {
	c := *op
	return &c
}

type textType struct{}

// NewTextType returns the reference simple-text OT type.
func NewTextType() Type { return textType{} }

func (textType) URI() string { return textURI }

func (textType) Create(data any) (any, error) {
	if data == nil {
		return "", nil
	}
	s, ok := data.(string)
	if !ok {
		return nil, fmt.Errorf("simple-text: create data must be a string, got %T", data)
	}
	return s, nil
}

func (textType) DecodeOp(raw json.RawMessage) (any, error) {
	op := &TextOp{}
	if err := json.Unmarshal(raw, op); err != nil {
		return nil, fmt.Errorf("simple-text: decode op: %w", err)
	}
	return op, nil
}

func (textType) Apply(snapshot any, op any) (any, error) {
	s, ok := snapshot.(string)
	if !ok {
		return nil, fmt.Errorf("simple-text: snapshot must be a string, got %T", snapshot)
	}
	o, ok := op.(*TextOp)
	if !ok {
		return nil, fmt.Errorf("simple-text: op must be *TextOp, got %T", op)
	}
	runes := []rune(s)
	switch {
	case o.Insert:
		if o.Pos < 0 || o.Pos > len(runes) {
			return nil, fmt.Errorf("simple-text: insert pos %d out of bounds [0,%d]", o.Pos, len(runes))
		}
		out := make([]rune, 0, len(runes)+len([]rune(o.Text)))
		out = append(out, runes[:o.Pos]...)
		out = append(out, []rune(o.Text)...)
		out = append(out, runes[o.Pos:]...)
		return string(out), nil
	case o.Delete:
		if o.Pos < 0 || o.Count < 0 || o.Pos+o.Count > len(runes) {
			return nil, fmt.Errorf("simple-text: delete [%d,%d) out of bounds for len %d", o.Pos, o.Pos+o.Count, len(runes))
		}
		o.DeletedText = string(runes[o.Pos : o.Pos+o.Count])
		out := make([]rune, 0, len(runes)-o.Count)
		out = append(out, runes[:o.Pos]...)
		out = append(out, runes[o.Pos+o.Count:]...)
		return string(out), nil
	default:
		return nil, fmt.Errorf("simple-text: op has neither insert nor delete set")
	}
}

// Transform rewrites op1 to reflect that op2 (appliedOp) already happened.
// The four cases follow the position-shift rules for insert/delete pairs.
func (textType) Transform(op1, op2 any, side Side) (any, error) {
	a, ok := op1.(*TextOp)
	if !ok {
		return nil, fmt.Errorf("simple-text: op1 must be *TextOp, got %T", op1)
	}
	b, ok := op2.(*TextOp)
	if !ok {
		return nil, fmt.Errorf("simple-text: op2 must be *TextOp, got %T", op2)
	}
	r := a.clone()

	switch {
	case a.Insert && b.Insert:
		if b.Pos < a.Pos || (b.Pos == a.Pos && side == SideRight) {
			r.Pos = a.Pos + len([]rune(b.Text))
		}

	case a.Insert && b.Delete:
		delStart, delEnd := b.Pos, b.Pos+b.Count
		switch {
		case delEnd <= a.Pos:
			r.Pos = a.Pos - b.Count
		case delStart < a.Pos && a.Pos < delEnd:
			r.Pos = delStart
		}

	case a.Delete && b.Insert:
		if b.Pos <= a.Pos {
			r.Pos = a.Pos + len([]rune(b.Text))
		}

	case a.Delete && b.Delete:
		us, ue := a.Pos, a.Pos+a.Count
		as, ae := b.Pos, b.Pos+b.Count
		switch {
		case ae <= us:
			r.Pos = us - b.Count
		case as >= ue:
			// unchanged
		default:
			overlapStart := maxInt(us, as)
			overlapEnd := minInt(ue, ae)
			overlap := overlapEnd - overlapStart
			if overlap < 0 {
				overlap = 0
			}
			newCount := a.Count - overlap
			if newCount < 0 {
				newCount = 0
			}
			r.Count = newCount
			if as <= us {
				r.Pos = as
			}
		}

	default:
		return nil, fmt.Errorf("simple-text: op has neither insert nor delete set")
	}

	if r.Pos < 0 {
		r.Pos = 0
	}
	if r.Delete && r.Count < 0 {
		r.Count = 0
	}
	return r, nil
}

func (textType) Compose(op1, op2 any) (any, error) {
	return nil, ErrUnsupported
}

// Invert returns the op that undoes op, assuming op was just applied.
// Insert's inverse is a delete of the inserted span; delete's inverse is an
// insert of the text Apply recorded into DeletedText.
func (textType) Invert(op any) (any, error) {
	o, ok := op.(*TextOp)
	if !ok {
		return nil, fmt.Errorf("simple-text: invert requires *TextOp, got %T", op)
	}
	switch {
	case o.Insert:
		return &TextOp{Delete: true, Pos: o.Pos, Count: len([]rune(o.Text))}, nil
	case o.Delete:
		return &TextOp{Insert: true, Pos: o.Pos, Text: o.DeletedText}, nil
	default:
		return nil, fmt.Errorf("simple-text: op has neither insert nor delete set")
	}
}

func (textType) Normalize(op any) (any, error) {
	return op, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
