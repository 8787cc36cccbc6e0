package client

import (
	"otsync/internal/ot"
	"otsync/internal/ottype"
)

// transformX rewrites client and server in place so that client remains
// valid against the base version server was already applied to, and server
// becomes valid to apply on top of a replica that already carries client.
// docType names the OT type governing edits on this document; it is only
// consulted when both ops are edits.
func transformX(reg ot.TypeResolver, docType string, client, server *ot.Op) error {
	if client.Kind() == ot.KindDelete {
		// Delete wins locally: neutralize the server op so later pending
		// ops in the queue rebase against a clean no-op.
		*server = ot.Op{}
		return nil
	}
	switch server.Kind() {
	case ot.KindDelete:
		return ot.ErrWasDeleted
	case ot.KindCreate:
		return ot.ErrAlreadyCreated
	case ot.KindNone:
		return nil
	}
	if client.Kind() == ot.KindCreate {
		return ot.ErrAlreadyCreated
	}

	// Both are edits.
	typ, ok := reg.Resolve(docType)
	if !ok {
		return ot.ErrTypeNotRecognized
	}
	if err := client.DecodeOp(typ); err != nil {
		return err
	}
	if err := server.DecodeOp(typ); err != nil {
		return err
	}
	newClient, err := typ.Transform(client.Op, server.Op, ottype.SideLeft)
	if err != nil {
		return err
	}
	newServer, err := typ.Transform(server.Op, client.Op, ottype.SideRight)
	if err != nil {
		return err
	}
	client.Op = newClient
	server.Op = newServer
	return nil
}
