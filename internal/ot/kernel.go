package ot

import "otsync/internal/ottype"

// Apply mutates snapshot in place to reflect op, incrementing snapshot.V by
// one on every successful outcome. Callers must have called CheckOp first;
// Apply itself only enforces the version precondition and the
// create/edit/delete transitions.
func Apply(reg TypeResolver, snapshot *Snapshot, op *Op) error {
	if op.V != nil && *op.V != snapshot.V {
		return ErrVersionMismatchOnApply
	}

	switch op.Kind() {
	case KindCreate:
		if snapshot.Exists() {
			return ErrAlreadyCreated
		}
		typ, ok := reg.Resolve(op.Create.Type)
		if !ok {
			return ErrTypeNotRecognized
		}
		data, err := typ.Create(op.Create.Data)
		if err != nil {
			return err
		}
		snapshot.Type = typ.URI()
		snapshot.Data = data

	case KindDelete:
		if !snapshot.Exists() {
			return ErrDoesNotExist
		}
		snapshot.Type = NonexistentType
		snapshot.Data = nil

	case KindEdit:
		if !snapshot.Exists() {
			return ErrDoesNotExist
		}
		if op.Op == nil {
			return ErrOpNotProvided
		}
		typ, ok := reg.Resolve(snapshot.Type)
		if !ok {
			return ErrTypeNotRecognized
		}
		if err := op.DecodeOp(typ); err != nil {
			return err
		}
		data, err := typ.Apply(snapshot.Data, op.Op)
		if err != nil {
			return err
		}
		snapshot.Data = data

	default:
		return ErrBadlyFormed
	}

	snapshot.V++
	return nil
}

// Transform mutates op to reflect that appliedOp was already applied to the
// same base version, per the 4x4 create/edit/delete/none table. typ is the OT type
// governing the document the two ops share; it is only consulted for the
// edit-edit cell. The tie-break side passed to typ.Transform is hard-coded
// to 'left': this function is used to rebase a submitted op forward over an
// already-committed log entry, so the submitted op yields priority to what
// is already applied.
func Transform(typ ottype.Type, op, appliedOp *Op) error {
	if op.V != nil && appliedOp.V != nil && *op.V != *appliedOp.V {
		return ErrVersionMismatchOnTransform
	}

	switch op.Kind() {
	case KindCreate:
		switch appliedOp.Kind() {
		case KindCreate, KindEdit:
			return ErrAlreadyCreated
		case KindDelete:
			return ErrWasDeleted
		}

	case KindEdit:
		switch appliedOp.Kind() {
		case KindCreate:
			return ErrAlreadyCreated
		case KindDelete:
			return ErrWasDeleted
		case KindEdit:
			if err := op.DecodeOp(typ); err != nil {
				return err
			}
			if err := appliedOp.DecodeOp(typ); err != nil {
				return err
			}
			transformed, err := typ.Transform(op.Op, appliedOp.Op, ottype.SideLeft)
			if err != nil {
				return err
			}
			op.Op = transformed
		}

	case KindDelete:
		// Delete always survives unchanged: no-op regardless of appliedOp.

	default:
		// KindNone: unrecognized/no-op shape, leave op unchanged.
	}

	if op.V != nil {
		*op.V++
	}
	return nil
}
