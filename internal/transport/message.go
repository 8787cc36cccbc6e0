package transport

import (
	"encoding/json"

	"otsync/internal/ot"
)

// Message actions.
const (
	ActionHandshake   = "hs"
	ActionSubscribe   = "s"
	ActionUnsubscribe = "us"
	ActionFetch       = "f"
	ActionOp          = "op"
)

// ClientMessage is one inbound frame. Op is non-nil only for ActionOp.
type ClientMessage struct {
	A  string
	C  string
	D  string
	Op *ot.Op
}

type wireOpFields struct {
	Create *ot.CreatePayload `json:"create,omitempty"`
	Del    *bool             `json:"del,omitempty"`
	Op     json.RawMessage   `json:"op,omitempty"`
	V      *uint64           `json:"v,omitempty"`
	Src    string            `json:"src,omitempty"`
	Seq    *uint64           `json:"seq,omitempty"`
}

type wireClientMessage struct {
	A string `json:"a"`
	C string `json:"c,omitempty"`
	D string `json:"d,omitempty"`
	wireOpFields
}

// UnmarshalJSON decodes a client frame, folding the op-shaped fields (if
// any) into an *ot.Op the same way ot.Op itself distinguishes an absent
// "op" field from one present but null. Like ot.Op.UnmarshalJSON, an edit
// payload is left as a json.RawMessage: nothing here knows the document's
// governing type, so decoding into its native shape waits until a caller
// resolves the type and calls Op.DecodeOp.
func (m *ClientMessage) UnmarshalJSON(data []byte) error {
	var w wireClientMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.A, m.C, m.D = w.A, w.C, w.D
	m.Op = nil

	if w.Create == nil && w.Del == nil && len(w.Op) == 0 {
		return nil
	}
	op := &ot.Op{Create: w.Create, Del: w.Del, V: w.V, Src: w.Src, Seq: w.Seq}
	if len(w.Op) > 0 {
		op.OpSet = true
		if string(w.Op) != "null" {
			op.Op = w.Op
		}
	}
	m.Op = op
	return nil
}

// MarshalJSON encodes a client frame, the inverse of UnmarshalJSON.
func (m ClientMessage) MarshalJSON() ([]byte, error) {
	w := wireClientMessage{A: m.A, C: m.C, D: m.D}
	if m.Op != nil {
		w.Create, w.Del, w.V, w.Src, w.Seq = m.Op.Create, m.Op.Del, m.Op.V, m.Op.Src, m.Op.Seq
		if m.Op.OpSet {
			raw, err := json.Marshal(m.Op.Op)
			if err != nil {
				return nil, err
			}
			w.Op = raw
		}
	}
	return json.Marshal(w)
}

// ServerMessage is one outbound frame. Exactly the fields relevant to A
// are populated; see NewHandshake/NewSnapshotReply/NewUnsubscribeAck/
// NewOpMessage/NewOpAck.
type ServerMessage struct {
	A     string
	ID    string
	C     string
	D     string
	Data  *ot.Snapshot
	Err   error
	Op    *ot.Op
}

// NewHandshake builds the once-per-connection {a:'hs', id} frame.
func NewHandshake(clientID string) ServerMessage {
	return ServerMessage{A: ActionHandshake, ID: clientID}
}

// NewSnapshotReply builds a subscribe/fetch reply carrying either a
// snapshot or an error, never both.
func NewSnapshotReply(action, collection, id string, snapshot *ot.Snapshot, err error) ServerMessage {
	return ServerMessage{A: action, C: collection, D: id, Data: snapshot, Err: err}
}

// NewUnsubscribeAck builds the ack-only {a:'us'} reply.
func NewUnsubscribeAck(collection, id string) ServerMessage {
	return ServerMessage{A: ActionUnsubscribe, C: collection, D: id}
}

// NewOpMessage builds an {a:'op'} broadcast frame carrying op exactly as
// committed: v is the base version the recipient's replica must currently
// be at, matching how HandleRemoteOp reads it.
func NewOpMessage(collection, id string, op *ot.Op, err error) ServerMessage {
	return ServerMessage{A: ActionOp, C: collection, D: id, Op: op, Err: err}
}

// NewOpAck builds an {a:'op'} frame addressed back to the submitter. Unlike
// a broadcast, its wire v is the resulting snapshot version (base+1, or
// more after rebasing against concurrent history), matching what Doc.Ack
// expects to install as its new Version. On error, op is echoed back as
// submitted (its own v unchanged) so the submitter can still match its
// inflight op by Src/Seq.
func NewOpAck(collection, id string, op *ot.Op, newVersion uint64, err error) ServerMessage {
	if op == nil {
		return ServerMessage{A: ActionOp, C: collection, D: id, Err: err}
	}
	acked := *op
	if err == nil {
		acked.V = &newVersion
	}
	return ServerMessage{A: ActionOp, C: collection, D: id, Op: &acked, Err: err}
}

type wireServerMessage struct {
	A     string        `json:"a"`
	ID    string        `json:"id,omitempty"`
	C     string        `json:"c,omitempty"`
	D     string        `json:"d,omitempty"`
	Data  *ot.Snapshot  `json:"data,omitempty"`
	Error *ErrorPayload `json:"error,omitempty"`
	wireOpFields
}

// MarshalJSON encodes a server frame in its wire envelope.
func (m ServerMessage) MarshalJSON() ([]byte, error) {
	w := wireServerMessage{A: m.A, ID: m.ID, C: m.C, D: m.D, Data: m.Data, Error: errorPayload(m.Err)}
	if m.Op != nil {
		w.Create, w.Del, w.V, w.Src, w.Seq = m.Op.Create, m.Op.Del, m.Op.V, m.Op.Src, m.Op.Seq
		if m.Op.OpSet {
			raw, err := json.Marshal(m.Op.Op)
			if err != nil {
				return nil, err
			}
			w.Op = raw
		}
	}
	return json.Marshal(w)
}

// WireError is the client-side reconstruction of an ErrorPayload received
// over the wire: an error value carrying the server's stable code.
type WireError struct {
	Code    string
	Message string
}

func (e *WireError) Error() string { return e.Code + ": " + e.Message }

// UnmarshalJSON decodes a server frame, the inverse of MarshalJSON.
func (m *ServerMessage) UnmarshalJSON(data []byte) error {
	var w wireServerMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.A, m.ID, m.C, m.D, m.Data = w.A, w.ID, w.C, w.D, w.Data
	m.Err = nil
	if w.Error != nil {
		m.Err = &WireError{Code: w.Error.Code, Message: w.Error.Message}
	}
	m.Op = nil
	if w.Create == nil && w.Del == nil && len(w.Op) == 0 && w.V == nil && w.Src == "" {
		return nil
	}
	op := &ot.Op{Create: w.Create, Del: w.Del, V: w.V, Src: w.Src, Seq: w.Seq}
	if len(w.Op) > 0 {
		op.OpSet = true
		if string(w.Op) != "null" {
			op.Op = w.Op
		}
	}
	m.Op = op
	return nil
}
