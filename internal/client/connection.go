package client

import "otsync/internal/ot"

// Connection is the abstract bidirectional channel a Doc sends operations
// over. The concrete transport (see the transport package) satisfies this;
// the client replica engine never touches a socket directly.
type Connection interface {
	// ClientID returns the id assigned to this connection at handshake.
	ClientID() string
	// NextSeq returns the next per-connection monotone sequence number,
	// incrementing on every call. Owned exclusively by the connection.
	NextSeq() uint64
	// Send transmits op for the given (collection, id) pair. It returns
	// ot.ErrConnectionClosed if the transport is not currently open.
	Send(collection, id string, op *ot.Op) error
}
