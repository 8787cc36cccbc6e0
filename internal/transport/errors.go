// Package transport binds the OT protocol onto a concrete wire format and
// a gorilla/websocket connection.
package transport

import (
	"errors"

	"otsync/internal/ot"
)

// ErrorPayload is the wire error envelope: a stable machine-readable code
// plus a human message.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorPayload maps a kernel/commit-loop error onto its wire code.
// Unrecognized errors fall back to "Internal" so a bug in a downstream
// layer never leaks an untyped message to the wire.
func errorPayload(err error) *ErrorPayload {
	if err == nil {
		return nil
	}
	return &ErrorPayload{Code: errorCode(err), Message: err.Error()}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ot.ErrBadlyFormed):
		return "BadlyFormed"
	case errors.Is(err, ot.ErrTypeNotRecognized):
		return "TypeNotRecognized"
	case errors.Is(err, ot.ErrAlreadyCreated):
		return "AlreadyCreated"
	case errors.Is(err, ot.ErrDoesNotExist):
		return "DoesNotExist"
	case errors.Is(err, ot.ErrWasDeleted):
		return "WasDeleted"
	case errors.Is(err, ot.ErrOpNotProvided):
		return "OpNotProvided"
	case errors.Is(err, ot.ErrVersionMismatchOnApply):
		return "VersionMismatchOnApply"
	case errors.Is(err, ot.ErrVersionMismatchOnTransform):
		return "VersionMismatchOnTransform"
	case errors.Is(err, ot.ErrAlreadySubmitted):
		return "OpAlreadySubmitted"
	case errors.Is(err, ot.ErrTransformOpsNotFound):
		return "TransformOpsNotFound"
	case errors.Is(err, ot.ErrMaxSubmitRetriesExceeded):
		return "MaxSubmitRetriesExceeded"
	case errors.Is(err, ot.ErrConnectionClosed):
		return "ConnectionClosed"
	default:
		return "Internal"
	}
}
