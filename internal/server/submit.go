package server

import (
	"otsync/internal/ot"
)

// DefaultMaxRetries bounds the compare-and-swap retry loop in SubmitOp when
// the caller does not supply one.
const DefaultMaxRetries = 10

// Result is what a successful SubmitOp returns: the op as finally
// committed (rebased forward to the winning version), the resulting
// snapshot, and the historical log entries it was rebased against.
type Result struct {
	Op       *ot.Op
	Snapshot ot.Snapshot
	Ops      []LogEntry
}

// SubmitOp is the authoritative fetch-transform-apply-commit loop. It
// validates op, then retries against the store's optimistic
// compare-and-swap until it either commits or exhausts maxRetries.
// maxRetries <= 0 uses DefaultMaxRetries.
func SubmitOp(store Store, registry ot.TypeResolver, collection, id string, op *ot.Op, maxRetries int) (*Result, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if err := ot.CheckOp(registry, op); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		snapshot, err := store.GetSnapshot(collection, id)
		if err != nil {
			return nil, err
		}

		attemptOp := op.Clone()
		if attemptOp.V == nil {
			v := snapshot.V
			attemptOp.V = &v
		}
		if *attemptOp.V > snapshot.V {
			return nil, ot.ErrBadlyFormed
		}

		var historical []LogEntry
		if *attemptOp.V < snapshot.V {
			entries, err := store.GetOps(collection, id, *attemptOp.V, snapshot.V)
			if err != nil {
				return nil, err
			}
			historical = entries

			typ, typeOK := registry.Resolve(snapshot.Type)
			for i := range entries {
				h := &entries[i].Op
				if attemptOp.HasIdentity() && h.HasIdentity() && attemptOp.SameIdentity(h) {
					return nil, ot.ErrAlreadySubmitted
				}
				if attemptOp.Kind() == ot.KindEdit && h.Kind() == ot.KindEdit && !typeOK {
					return nil, ot.ErrTypeNotRecognized
				}
				if err := ot.Transform(typ, attemptOp, h); err != nil {
					return nil, err
				}
			}
		}

		newSnapshot := snapshot.Clone()
		if err := ot.Apply(registry, &newSnapshot, attemptOp); err != nil {
			return nil, err
		}

		committed, err := store.Commit(collection, id, attemptOp, newSnapshot)
		if err != nil {
			return nil, err
		}
		if committed {
			return &Result{Op: attemptOp, Snapshot: newSnapshot, Ops: historical}, nil
		}
		// Lost the race with a concurrent commit: retry from a fresh fetch.
	}

	return nil, ot.ErrMaxSubmitRetriesExceeded
}
