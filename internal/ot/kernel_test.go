package ot_test

import (
	"errors"
	"testing"

	"otsync/internal/ot"
	"otsync/internal/ottype"
)

func newReg() *ottype.Registry { return ottype.NewDefaultRegistry() }

func TestCheckOpRequiresExactlyOneShape(t *testing.T) {
	reg := newReg()
	if err := ot.CheckOp(reg, &ot.Op{}); !errors.Is(err, ot.ErrBadlyFormed) {
		t.Fatalf("empty op: got %v, want ErrBadlyFormed", err)
	}
	create := ot.NewCreateOp(ottype.CounterName, 0)
	both := *create
	both.Del = create.Del
	del := true
	both.Del = &del
	if err := ot.CheckOp(reg, &both); !errors.Is(err, ot.ErrBadlyFormed) {
		t.Fatalf("two shapes: got %v, want ErrBadlyFormed", err)
	}
}

func TestCheckOpUnknownType(t *testing.T) {
	reg := newReg()
	op := ot.NewCreateOp("nope", nil)
	if err := ot.CheckOp(reg, op); !errors.Is(err, ot.ErrTypeNotRecognized) {
		t.Fatalf("got %v, want ErrTypeNotRecognized", err)
	}
}

func TestCheckOpDeleteMustBeLiteralTrue(t *testing.T) {
	reg := newReg()
	f := false
	op := &ot.Op{Del: &f}
	if err := ot.CheckOp(reg, op); !errors.Is(err, ot.ErrBadlyFormed) {
		t.Fatalf("got %v, want ErrBadlyFormed", err)
	}
}

func TestCheckOpSrcSeqPairing(t *testing.T) {
	reg := newReg()
	op := ot.NewCreateOp(ottype.CounterName, 0)
	op.Src = "c1"
	if err := ot.CheckOp(reg, op); !errors.Is(err, ot.ErrBadlyFormed) {
		t.Fatalf("src without seq: got %v, want ErrBadlyFormed", err)
	}
}

func TestApplyCreateEditDelete(t *testing.T) {
	reg := newReg()
	snap := ot.NewSnapshot("doc1")

	if err := ot.Apply(reg, &snap, ot.NewCreateOp(ottype.CounterName, 10)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if snap.V != 1 || snap.Data != 10 {
		t.Fatalf("after create: %+v", snap)
	}

	if err := ot.Apply(reg, &snap, ot.NewEditOp(5)); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if snap.V != 2 || snap.Data != 15 {
		t.Fatalf("after edit: %+v", snap)
	}

	if err := ot.Apply(reg, &snap, ot.NewDeleteOp()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if snap.V != 3 || snap.Exists() {
		t.Fatalf("after delete: %+v", snap)
	}
}

func TestApplyRejectsIllegalTransitions(t *testing.T) {
	reg := newReg()
	snap := ot.NewSnapshot("doc1")

	if err := ot.Apply(reg, &snap, ot.NewEditOp(5)); !errors.Is(err, ot.ErrDoesNotExist) {
		t.Fatalf("edit on nonexistent: got %v", err)
	}
	if err := ot.Apply(reg, &snap, ot.NewDeleteOp()); !errors.Is(err, ot.ErrDoesNotExist) {
		t.Fatalf("delete on nonexistent: got %v", err)
	}

	must(t, ot.Apply(reg, &snap, ot.NewCreateOp(ottype.CounterName, 0)))
	if err := ot.Apply(reg, &snap, ot.NewCreateOp(ottype.CounterName, 0)); !errors.Is(err, ot.ErrAlreadyCreated) {
		t.Fatalf("double create: got %v", err)
	}
}

func TestApplyVersionMismatch(t *testing.T) {
	reg := newReg()
	snap := ot.NewSnapshot("doc1")
	op := ot.NewCreateOp(ottype.CounterName, 0).WithVersion(5)
	if err := ot.Apply(reg, &snap, op); !errors.Is(err, ot.ErrVersionMismatchOnApply) {
		t.Fatalf("got %v, want ErrVersionMismatchOnApply", err)
	}
}

func TestApplyEditWithoutPayload(t *testing.T) {
	reg := newReg()
	snap := ot.NewSnapshot("doc1")
	must(t, ot.Apply(reg, &snap, ot.NewCreateOp(ottype.CounterName, 0)))
	bare := &ot.Op{OpSet: true}
	if err := ot.Apply(reg, &snap, bare); !errors.Is(err, ot.ErrOpNotProvided) {
		t.Fatalf("got %v, want ErrOpNotProvided", err)
	}
}

func TestTransformTable(t *testing.T) {
	reg := newReg()
	counter, _ := reg.Resolve(ottype.CounterName)

	cases := []struct {
		name        string
		op, applied *ot.Op
		wantErr     error
	}{
		{"create-vs-create", ot.NewCreateOp(ottype.CounterName, 0), ot.NewCreateOp(ottype.CounterName, 0), ot.ErrAlreadyCreated},
		{"create-vs-edit", ot.NewCreateOp(ottype.CounterName, 0), ot.NewEditOp(1), ot.ErrAlreadyCreated},
		{"create-vs-delete", ot.NewCreateOp(ottype.CounterName, 0), ot.NewDeleteOp(), ot.ErrWasDeleted},
		{"create-vs-none", ot.NewCreateOp(ottype.CounterName, 0), &ot.Op{}, nil},
		{"edit-vs-create", ot.NewEditOp(1), ot.NewCreateOp(ottype.CounterName, 0), ot.ErrAlreadyCreated},
		{"edit-vs-delete", ot.NewEditOp(1), ot.NewDeleteOp(), ot.ErrWasDeleted},
		{"edit-vs-none", ot.NewEditOp(1), &ot.Op{}, nil},
		{"delete-vs-create", ot.NewDeleteOp(), ot.NewCreateOp(ottype.CounterName, 0), nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ot.Transform(counter, c.op, c.applied)
			if c.wantErr == nil {
				if err != nil {
					t.Fatalf("got %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, c.wantErr) {
				t.Fatalf("got %v, want %v", err, c.wantErr)
			}
		})
	}
}

func TestTransformEditEditDelegatesToType(t *testing.T) {
	reg := newReg()
	counter, _ := reg.Resolve(ottype.CounterName)
	op := ot.NewEditOp(5)
	applied := ot.NewEditOp(3)
	if err := ot.Transform(counter, op, applied); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if op.Op != 5 {
		t.Fatalf("counter transform should be identity, got %v", op.Op)
	}
}

func TestTransformVersionMismatch(t *testing.T) {
	reg := newReg()
	counter, _ := reg.Resolve(ottype.CounterName)
	op := ot.NewEditOp(1).WithVersion(2)
	applied := ot.NewEditOp(1).WithVersion(3)
	if err := ot.Transform(counter, op, applied); !errors.Is(err, ot.ErrVersionMismatchOnTransform) {
		t.Fatalf("got %v, want ErrVersionMismatchOnTransform", err)
	}
}

// TestTP1Counter checks the TP1 convergence property for the counter
// type using two concurrent edits against the same snapshot.
func TestTP1Counter(t *testing.T) {
	reg := newReg()
	counter, _ := reg.Resolve(ottype.CounterName)

	a := ot.NewEditOp(5)
	b := ot.NewEditOp(3)
	base := 0

	aForB := a.Clone()
	if err := ot.Transform(counter, aForB, b); err != nil {
		t.Fatalf("transform a over b: %v", err)
	}
	left, err := counter.Apply(base, b.Op)
	if err != nil {
		t.Fatal(err)
	}
	left, err = counter.Apply(left, aForB.Op)
	if err != nil {
		t.Fatal(err)
	}

	bForA := b.Clone()
	if err := ot.Transform(counter, bForA, a); err != nil {
		t.Fatalf("transform b over a: %v", err)
	}
	right, err := counter.Apply(base, a.Op)
	if err != nil {
		t.Fatal(err)
	}
	right, err = counter.Apply(right, bForA.Op)
	if err != nil {
		t.Fatal(err)
	}

	if left != right {
		t.Fatalf("TP1 violated: left=%v right=%v", left, right)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
