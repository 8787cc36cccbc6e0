package ottype

import "testing"

func apply(t *testing.T, typ Type, s string, op *TextOp) string {
	t.Helper()
	out, err := typ.Apply(s, op)
	if err != nil {
		t.Fatalf("Apply(%q, %+v): %v", s, op, err)
	}
	return out.(string)
}

func transform(t *testing.T, typ Type, a, b *TextOp, side Side) *TextOp {
	t.Helper()
	out, err := typ.Transform(a, b, side)
	if err != nil {
		t.Fatalf("Transform(%+v, %+v, %v): %v", a, b, side, err)
	}
	return out.(*TextOp)
}

func TestTextApplyInsertDelete(t *testing.T) {
	typ := NewTextType()
	s := apply(t, typ, "hello", &TextOp{Insert: true, Pos: 5, Text: " world"})
	if s != "hello world" {
		t.Fatalf("got %q", s)
	}
	s = apply(t, typ, s, &TextOp{Delete: true, Pos: 5, Count: 6})
	if s != "hello" {
		t.Fatalf("got %q", s)
	}
}

func TestTextApplyAppendAtLength(t *testing.T) {
	typ := NewTextType()
	s := apply(t, typ, "hello", &TextOp{Insert: true, Pos: 5, Text: "!"})
	if s != "hello!" {
		t.Fatalf("got %q", s)
	}
}

func TestTextInsertInsertShift(t *testing.T) {
	typ := NewTextType()
	// appliedOp.pos < op.pos: op shifts forward by len(appliedOp.text).
	a := &TextOp{Insert: true, Pos: 4, Text: "X"}
	b := &TextOp{Insert: true, Pos: 1, Text: "YY"}
	got := transform(t, typ, a, b, SideLeft)
	if got.Pos != 6 {
		t.Fatalf("Pos = %d, want 6", got.Pos)
	}
}

func TestTextInsertInsertTieBreak(t *testing.T) {
	typ := NewTextType()
	same := &TextOp{Insert: true, Pos: 0, Text: "A"}
	other := &TextOp{Insert: true, Pos: 0, Text: "B"}

	left := transform(t, typ, same, other, SideLeft)
	if left.Pos != 0 {
		t.Fatalf("left tie-break Pos = %d, want 0 (no shift)", left.Pos)
	}
	right := transform(t, typ, same, other, SideRight)
	if right.Pos != 1 {
		t.Fatalf("right tie-break Pos = %d, want 1 (shift)", right.Pos)
	}
}

func TestTextInsertVsDelete(t *testing.T) {
	typ := NewTextType()

	// delete fully before insert: shift back.
	ins := &TextOp{Insert: true, Pos: 10, Text: "z"}
	del := &TextOp{Delete: true, Pos: 2, Count: 3}
	got := transform(t, typ, ins, del, SideLeft)
	if got.Pos != 7 {
		t.Fatalf("Pos = %d, want 7", got.Pos)
	}

	// insert inside delete range: clamp to delete start.
	ins2 := &TextOp{Insert: true, Pos: 4, Text: "z"}
	del2 := &TextOp{Delete: true, Pos: 2, Count: 5}
	got2 := transform(t, typ, ins2, del2, SideLeft)
	if got2.Pos != 2 {
		t.Fatalf("Pos = %d, want 2", got2.Pos)
	}

	// delete fully after insert: no change.
	ins3 := &TextOp{Insert: true, Pos: 1, Text: "z"}
	del3 := &TextOp{Delete: true, Pos: 5, Count: 2}
	got3 := transform(t, typ, ins3, del3, SideLeft)
	if got3.Pos != 1 {
		t.Fatalf("Pos = %d, want 1", got3.Pos)
	}
}

func TestTextDeleteVsInsert(t *testing.T) {
	typ := NewTextType()
	del := &TextOp{Delete: true, Pos: 5, Count: 2}
	ins := &TextOp{Insert: true, Pos: 3, Text: "abc"}
	got := transform(t, typ, del, ins, SideLeft)
	if got.Pos != 8 {
		t.Fatalf("Pos = %d, want 8", got.Pos)
	}

	ins2 := &TextOp{Insert: true, Pos: 9, Text: "abc"}
	got2 := transform(t, typ, del, ins2, SideLeft)
	if got2.Pos != 5 {
		t.Fatalf("Pos = %d, want 5 (unchanged)", got2.Pos)
	}
}

func TestTextDeleteVsDeleteContainment(t *testing.T) {
	typ := NewTextType()
	// pending delete [3,5) fully contained in already-applied delete [1,10):
	// collapses to count=0.
	pending := &TextOp{Delete: true, Pos: 3, Count: 2}
	applied := &TextOp{Delete: true, Pos: 1, Count: 9}
	got := transform(t, typ, pending, applied, SideLeft)
	if got.Count != 0 {
		t.Fatalf("Count = %d, want 0", got.Count)
	}
	if got.Pos != 1 {
		t.Fatalf("Pos = %d, want 1", got.Pos)
	}
}

func TestTextDeleteVsDeleteDisjoint(t *testing.T) {
	typ := NewTextType()
	// applied range ends before pending range starts: shift back.
	pending := &TextOp{Delete: true, Pos: 10, Count: 2}
	applied := &TextOp{Delete: true, Pos: 0, Count: 3}
	got := transform(t, typ, pending, applied, SideLeft)
	if got.Pos != 7 || got.Count != 2 {
		t.Fatalf("got %+v, want pos=7 count=2", got)
	}

	// applied range starts after pending range ends: unchanged.
	pending2 := &TextOp{Delete: true, Pos: 0, Count: 2}
	applied2 := &TextOp{Delete: true, Pos: 10, Count: 3}
	got2 := transform(t, typ, pending2, applied2, SideLeft)
	if got2.Pos != 0 || got2.Count != 2 {
		t.Fatalf("got %+v, want pos=0 count=2", got2)
	}
}

func TestTextInvertRoundTrip(t *testing.T) {
	typ := NewTextType()
	insOp := &TextOp{Insert: true, Pos: 2, Text: "XY"}
	s := apply(t, typ, "hello", insOp)
	invIns, err := typ.Invert(insOp)
	if err != nil {
		t.Fatalf("Invert: %v", err)
	}
	s = apply(t, typ, s, invIns.(*TextOp))
	if s != "hello" {
		t.Fatalf("insert/invert round trip = %q, want %q", s, "hello")
	}

	delOp := &TextOp{Delete: true, Pos: 1, Count: 3}
	s2 := apply(t, typ, "hello", delOp)
	if s2 != "ho" {
		t.Fatalf("got %q", s2)
	}
	if delOp.DeletedText != "ell" {
		t.Fatalf("DeletedText = %q, want %q", delOp.DeletedText, "ell")
	}
	invDel, err := typ.Invert(delOp)
	if err != nil {
		t.Fatalf("Invert: %v", err)
	}
	s2 = apply(t, typ, s2, invDel.(*TextOp))
	if s2 != "hello" {
		t.Fatalf("delete/invert round trip = %q, want %q", s2, "hello")
	}
}

// TestTextConvergenceDifferentPositions checks that two concurrent inserts
// at different positions converge to the same string regardless of which
// one the server applies first.
func TestTextConvergenceDifferentPositions(t *testing.T) {
	typ := NewTextType()
	a := &TextOp{Insert: true, Pos: 1, Text: "X"}
	b := &TextOp{Insert: true, Pos: 4, Text: "Y"}

	// A applied first at server, B rebased forward over it. The positions
	// differ, so the tie-break side passed here does not affect the result.
	bRebased := transform(t, typ, b, a, SideRight)
	sServerOrderA := apply(t, typ, "hello", a)
	sServerOrderA = apply(t, typ, sServerOrderA, bRebased)

	// Symmetric: B applied first, A rebased forward.
	aRebased := transform(t, typ, a, b, SideRight)
	sServerOrderB := apply(t, typ, "hello", b)
	sServerOrderB = apply(t, typ, sServerOrderB, aRebased)

	if sServerOrderA != sServerOrderB {
		t.Fatalf("diverged: %q vs %q", sServerOrderA, sServerOrderB)
	}
	if sServerOrderA != "hXellYo" {
		t.Fatalf("got %q, want %q", sServerOrderA, "hXellYo")
	}
}

// TestTextTieBreakAtSamePosition checks the tie-break when two inserts
// land at the same position: A commits first at the server; B is rebased
// over A with the server's hard-coded 'left' side, which does not shift on
// an equal position, so B stays at 0 and lands in front of A.
func TestTextTieBreakAtSamePosition(t *testing.T) {
	typ := NewTextType()
	a := &TextOp{Insert: true, Pos: 0, Text: "A"}
	b := &TextOp{Insert: true, Pos: 0, Text: "B"}

	bRebased := transform(t, typ, b, a, SideLeft)
	s := apply(t, typ, "hello", a)
	s = apply(t, typ, s, bRebased)
	if s != "BAhello" {
		t.Fatalf("got %q, want %q", s, "BAhello")
	}
}
