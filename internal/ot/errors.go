package ot

import "errors"

// Sentinel errors for the kernel's error taxonomy. Every failure the
// kernel and commit loop can produce is one of these; wrap with %w and
// inspect with errors.Is/errors.As.
var (
	// ErrBadlyFormed covers checkOp structural failures and the server
	// observing op.v > snapshot.v (a client claiming to be ahead of the
	// server, which cannot happen honestly).
	ErrBadlyFormed = errors.New("otsync: badly formed operation")

	// ErrTypeNotRecognized is returned when a type name does not resolve
	// in the registry at create/apply/transform time.
	ErrTypeNotRecognized = errors.New("otsync: type not recognized")

	// ErrAlreadyCreated is returned by a create against an existing
	// document, or when a transform observes a create that conflicts.
	ErrAlreadyCreated = errors.New("otsync: document already created")

	// ErrDoesNotExist is returned by an edit or delete against a
	// nonexistent document.
	ErrDoesNotExist = errors.New("otsync: document does not exist")

	// ErrWasDeleted is returned when a transform observes a delete that
	// conflicts with a pending edit or create.
	ErrWasDeleted = errors.New("otsync: document was deleted")

	// ErrOpNotProvided is returned when an edit op has no op payload.
	ErrOpNotProvided = errors.New("otsync: edit op payload not provided")

	// ErrVersionMismatchOnApply is a kernel precondition violation: both
	// snapshot.v and op.v were set but did not match.
	ErrVersionMismatchOnApply = errors.New("otsync: version mismatch on apply")

	// ErrVersionMismatchOnTransform is a kernel precondition violation:
	// both ops had a base version set but they did not match.
	ErrVersionMismatchOnTransform = errors.New("otsync: version mismatch on transform")

	// ErrAlreadySubmitted signals a (src,seq) collision with a log entry
	// during server-side rebase: idempotent retry, not a real conflict.
	ErrAlreadySubmitted = errors.New("otsync: operation already submitted")

	// ErrTransformOpsNotFound means the server log lacks the entries
	// needed to rebase a stale op forward.
	ErrTransformOpsNotFound = errors.New("otsync: historical ops not found for transform")

	// ErrMaxSubmitRetriesExceeded means the server's CAS retry loop was
	// exhausted without a successful commit.
	ErrMaxSubmitRetriesExceeded = errors.New("otsync: max submit retries exceeded")

	// ErrConnectionClosed is returned by a send attempted over a closed
	// transport.
	ErrConnectionClosed = errors.New("otsync: connection closed")
)
