package transport_test

import (
	"testing"

	"otsync/internal/ot"
	"otsync/internal/ottype"
	"otsync/internal/server"
	"otsync/internal/transport"
)

// TestSimpleTextOpSurvivesWireRoundTrip drives a simple-text create and
// edit through the same JSON envelope the websocket exchanges (Marshal on
// the sender's side, Unmarshal on the receiver's), then through SubmitOp.
// Before DecodeOp existed, the edit's payload decoded off the wire as
// map[string]any and textType.Apply rejected every keystroke.
func TestSimpleTextOpSurvivesWireRoundTrip(t *testing.T) {
	reg := ottype.NewDefaultRegistry()
	store := server.NewMemStore(func() int64 { return 1 })

	create := transport.ClientMessage{A: transport.ActionOp, C: "docs", D: "doc1", Op: ot.NewCreateOp(ottype.TextName, "hello")}
	if _, err := server.SubmitOp(store, reg, "docs", "doc1", roundTripClientOp(t, create), 0); err != nil {
		t.Fatalf("create: %v", err)
	}

	edit := transport.ClientMessage{
		A: transport.ActionOp, C: "docs", D: "doc1",
		Op: ot.NewEditOp(&ottype.TextOp{Insert: true, Pos: 5, Text: "!"}).WithVersion(1),
	}
	res, err := server.SubmitOp(store, reg, "docs", "doc1", roundTripClientOp(t, edit), 0)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if res.Snapshot.Data != "hello!" {
		t.Fatalf("expected %q, got %q", "hello!", res.Snapshot.Data)
	}

	// The server's own ack/broadcast frame must carry the same shape back
	// out and be decodable again on the receiving side.
	broadcast := roundTripServerOp(t, transport.NewOpMessage("docs", "doc1", res.Op, nil))
	typ, ok := reg.Resolve(ottype.TextName)
	if !ok {
		t.Fatal("simple-text not registered")
	}
	if err := broadcast.DecodeOp(typ); err != nil {
		t.Fatalf("decode broadcast op: %v", err)
	}
	if _, ok := broadcast.Op.(*ottype.TextOp); !ok {
		t.Fatalf("expected *ottype.TextOp after decode, got %T", broadcast.Op)
	}
}

func roundTripClientOp(t *testing.T, msg transport.ClientMessage) *ot.Op {
	t.Helper()
	raw, err := msg.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded transport.ClientMessage
	if err := (&decoded).UnmarshalJSON(raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Op == nil {
		t.Fatal("expected non-nil op")
	}
	return decoded.Op
}

func roundTripServerOp(t *testing.T, msg transport.ServerMessage) *ot.Op {
	t.Helper()
	raw, err := msg.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded transport.ServerMessage
	if err := (&decoded).UnmarshalJSON(raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Op == nil {
		t.Fatal("expected non-nil op")
	}
	return decoded.Op
}
