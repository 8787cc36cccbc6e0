package ot

import (
	"encoding/json"

	"otsync/internal/ottype"
)

// Kind identifies which of the three tagged-variant shapes an Op has.
type Kind int

const (
	// KindNone marks an op with none of the three recognized shapes; the
	// kernel's transform table calls this "N" and treats it as a no-op on
	// either side.
	KindNone Kind = iota
	KindCreate
	KindEdit
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindEdit:
		return "edit"
	case KindDelete:
		return "delete"
	default:
		return "none"
	}
}

// CreatePayload is the payload of a create-shaped Op.
type CreatePayload struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Op is a tagged variant with exactly one of Create, Del, or an edit
// payload set. OpSet distinguishes "the op field was present,
// possibly with a nil payload" from "the op field was entirely absent" —
// the former is a malformed edit (ErrOpNotProvided), the latter is not an
// edit at all.
type Op struct {
	Create *CreatePayload
	Del    *bool
	OpSet  bool
	Op     any

	// V is the base version this op was authored against, if provided.
	V *uint64
	// Src is the originating client identifier; Seq is that client's
	// per-connection monotone counter. Both are set together or both are
	// absent.
	Src string
	Seq *uint64
}

// Kind classifies which shape this op has, per the exactly-one-of
// discipline CheckOp enforces. It returns KindNone when no shape is set
// (or Del is false); an op with several shapes set is classified by the
// first of create, delete, edit it carries (callers are expected to have
// called CheckOp first).
func (op *Op) Kind() Kind {
	switch {
	case op.Create != nil:
		return KindCreate
	case op.Del != nil && *op.Del:
		return KindDelete
	case op.OpSet:
		return KindEdit
	default:
		return KindNone
	}
}

// HasIdentity reports whether Src/Seq are both set, forming the globally
// unique op identity used for ack matching and duplicate detection.
func (op *Op) HasIdentity() bool {
	return op.Src != "" && op.Seq != nil
}

// SameIdentity reports whether op and other carry the same (src, seq)
// pair. Both must have an identity.
func (op *Op) SameIdentity(other *Op) bool {
	return op.HasIdentity() && other.HasIdentity() && op.Src == other.Src && *op.Seq == *other.Seq
}

// Clone returns a deep-enough copy for the commit loop's per-retry reset,
// so a CAS retry starts from an op untouched by the previous attempt's
// rebasing.
func (op *Op) Clone() *Op {
	c := *op
	if op.Create != nil {
		cp := *op.Create
		c.Create = &cp
	}
	if op.Del != nil {
		d := *op.Del
		c.Del = &d
	}
	if op.V != nil {
		v := *op.V
		c.V = &v
	}
	if op.Seq != nil {
		s := *op.Seq
		c.Seq = &s
	}
	return &c
}

// NewCreateOp builds a create-shaped Op.
func NewCreateOp(typeName string, data any) *Op {
	return &Op{Create: &CreatePayload{Type: typeName, Data: data}}
}

// NewEditOp builds an edit-shaped Op carrying payload.
func NewEditOp(payload any) *Op {
	return &Op{OpSet: true, Op: payload}
}

// NewDeleteOp builds a delete-shaped Op.
func NewDeleteOp() *Op {
	t := true
	return &Op{Del: &t}
}

// WithVersion sets the op's base version and returns op for chaining.
func (op *Op) WithVersion(v uint64) *Op {
	op.V = &v
	return op
}

// WithIdentity sets src/seq and returns op for chaining.
func (op *Op) WithIdentity(src string, seq uint64) *Op {
	op.Src = src
	op.Seq = &seq
	return op
}

// wireOp is the JSON envelope an Op serializes to: {create|op|del, v, src, seq}.
type wireOp struct {
	Create *CreatePayload  `json:"create,omitempty"`
	Del    *bool           `json:"del,omitempty"`
	Op     json.RawMessage `json:"op,omitempty"`
	V      *uint64         `json:"v,omitempty"`
	Src    string          `json:"src,omitempty"`
	Seq    *uint64         `json:"seq,omitempty"`
}

// MarshalJSON encodes op in its wire envelope.
func (op *Op) MarshalJSON() ([]byte, error) {
	w := wireOp{Create: op.Create, Del: op.Del, V: op.V, Src: op.Src, Seq: op.Seq}
	if op.OpSet {
		raw, err := json.Marshal(op.Op)
		if err != nil {
			return nil, err
		}
		w.Op = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes op from the wire shape, distinguishing an absent
// "op" field (OpSet=false) from one present but null (OpSet=true, Op=nil).
// The edit payload itself is left as a json.RawMessage rather than decoded
// here: an edit's wire shape carries no type name, so nothing at this
// layer knows which native Go shape (*ottype.TextOp, a bare number, ...) it
// should become. Callers resolve the governing type first and call DecodeOp.
func (op *Op) UnmarshalJSON(data []byte) error {
	var w wireOp
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	op.Create = w.Create
	op.Del = w.Del
	op.V = w.V
	op.Src = w.Src
	op.Seq = w.Seq
	if len(w.Op) > 0 {
		op.OpSet = true
		if string(w.Op) != "null" {
			op.Op = w.Op
		}
	}
	return nil
}

// DecodeOp resolves a still-raw edit payload (as left by UnmarshalJSON) into
// typ's native op shape. It is a no-op if op.Op is already decoded, which
// covers every locally constructed op (NewEditOp is always called with a
// native payload) as well as an op DecodeOp has already been run on.
func (op *Op) DecodeOp(typ ottype.Type) error {
	raw, ok := op.Op.(json.RawMessage)
	if !ok {
		return nil
	}
	decoded, err := typ.DecodeOp(raw)
	if err != nil {
		return err
	}
	op.Op = decoded
	return nil
}

// CheckOp validates op's structural well-formedness: exactly one of
// create/edit/delete set, a recognized type on create, and src/seq set
// together or not at all.
func CheckOp(reg TypeResolver, op *Op) error {
	if op == nil {
		return ErrBadlyFormed
	}
	shapes := 0
	if op.Create != nil {
		shapes++
	}
	if op.Del != nil {
		shapes++
	}
	if op.OpSet {
		shapes++
	}
	if shapes != 1 {
		return ErrBadlyFormed
	}
	if op.Del != nil && !*op.Del {
		return ErrBadlyFormed
	}
	if op.Create != nil {
		if op.Create.Type == "" {
			return ErrBadlyFormed
		}
		if _, ok := reg.Resolve(op.Create.Type); !ok {
			return ErrTypeNotRecognized
		}
	}
	if (op.Src == "") != (op.Seq == nil) {
		return ErrBadlyFormed
	}
	return nil
}

// TypeResolver is the subset of *ottype.Registry the kernel depends on.
type TypeResolver interface {
	Resolve(name string) (ottype.Type, bool)
}
