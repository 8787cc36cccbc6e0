// Package client implements the per-document replica state machine: local
// optimistic apply, a single in-flight operation, an ordered pending queue,
// and rebasing against remote operations arriving from the server.
package client

import "otsync/internal/ot"

// pendingOp is one queued (not yet acknowledged) local operation.
type pendingOp struct {
	op       *ot.Op
	callback func(error)
}

// Doc is the client-side replica of one (collection, id) document. It is
// not safe for concurrent use: callers must serialize access, matching the
// single-threaded cooperative scheduling model the replica assumes.
type Doc struct {
	Collection string
	ID         string

	// Version is the last server-acknowledged version; it is never
	// incremented by local optimistic apply, only by Ack and
	// HandleRemoteOp.
	Version uint64
	Type    string
	Data    any

	// Subscribed reports whether this replica currently holds a
	// server-confirmed snapshot. Submits still queue while unsubscribed;
	// Flush withholds sending until Subscribed is true.
	Subscribed bool

	Inflight *pendingOp
	Pending  []*pendingOp

	connected bool
	registry  ot.TypeResolver
	conn      Connection
	events    *subscribers
}

// NewDoc returns a fresh, unsubscribed replica for (collection, id).
func NewDoc(collection, id string, registry ot.TypeResolver, conn Connection) *Doc {
	return &Doc{
		Collection: collection,
		ID:         id,
		Type:       ot.NonexistentType,
		registry:   registry,
		conn:       conn,
		events:     newSubscribers(),
	}
}

// On registers h for events of kind. Handlers run synchronously in the
// turn that raises the event.
func (d *Doc) On(kind EventKind, h Handler) {
	d.events.on(kind, h)
}

// Subscribe installs a freshly fetched snapshot as this replica's base
// state and marks it subscribed. Called once after the initial 's' reply,
// and again after resubscribing post hard-rollback or reconnect.
func (d *Doc) Subscribe(snapshot ot.Snapshot) {
	d.Version = snapshot.V
	d.Type = snapshot.Type
	d.Data = snapshot.Data
	d.Subscribed = true
	d.events.emit(Event{Kind: EventLoad, Doc: d})
	d.events.emit(Event{Kind: EventSubscribe, Doc: d})
	d.Flush()
}

// SubmitCreate optimistically creates the document with the given type and
// initial data, then queues the create for send.
func (d *Doc) SubmitCreate(typeName string, data any, cb func(error)) error {
	return d.submit(ot.NewCreateOp(typeName, data), cb)
}

// SubmitEdit optimistically applies payload as an edit against the
// document's registered type, then queues it for send.
func (d *Doc) SubmitEdit(payload any, cb func(error)) error {
	return d.submit(ot.NewEditOp(payload), cb)
}

// SubmitDelete optimistically deletes the document, then queues the delete
// for send.
func (d *Doc) SubmitDelete(cb func(error)) error {
	return d.submit(ot.NewDeleteOp(), cb)
}

// submit runs a local precondition check, applies op optimistically,
// enqueues it, and flushes. Version is deliberately left
// untouched here; it only ever moves forward via Ack or HandleRemoteOp.
func (d *Doc) submit(op *ot.Op, cb func(error)) error {
	switch op.Kind() {
	case ot.KindCreate:
		if d.Type != ot.NonexistentType {
			return ot.ErrAlreadyCreated
		}
	case ot.KindEdit, ot.KindDelete:
		if d.Type == ot.NonexistentType {
			return ot.ErrDoesNotExist
		}
	}

	baseVersion := d.Version
	op.V = &baseVersion

	snap := ot.Snapshot{ID: d.ID, V: d.Version, Type: d.Type, Data: d.Data}
	if err := ot.Apply(d.registry, &snap, op); err != nil {
		return err
	}
	d.Type, d.Data = snap.Type, snap.Data

	d.Pending = append(d.Pending, &pendingOp{op: op, callback: cb})
	d.events.emit(Event{Kind: EventOp, Doc: d, Op: op, Source: "local"})
	d.Flush()
	return nil
}

// InflightOp returns the operation currently in flight, or nil if none.
func (d *Doc) InflightOp() *ot.Op {
	if d.Inflight == nil {
		return nil
	}
	return d.Inflight.op
}

// canSend reports whether the replica is allowed to transmit its head
// pending op right now.
func (d *Doc) canSend() bool {
	return d.connected && d.Subscribed
}

// Flush transmits the head of Pending if the replica is connected,
// subscribed, and has no operation already in flight. It is safe to call
// at any time; it is a no-op unless all three conditions hold.
func (d *Doc) Flush() {
	if !d.canSend() || d.Inflight != nil || len(d.Pending) == 0 {
		return
	}
	pend := d.Pending[0]
	d.Pending = d.Pending[1:]

	pend.op.Src = d.conn.ClientID()
	seq := d.conn.NextSeq()
	pend.op.Seq = &seq
	d.Inflight = pend

	if err := d.conn.Send(d.Collection, d.ID, pend.op); err != nil {
		d.Inflight = nil
		d.Pending = append([]*pendingOp{pend}, d.Pending...)
	}
}

// Ack applies the server's acknowledgement of the in-flight op identified
// by (src, seq), advancing Version and firing the submitter's callback.
func (d *Doc) Ack(src string, seq uint64, serverVersion uint64) error {
	if d.Inflight == nil || d.Inflight.op.Src != src || d.Inflight.op.Seq == nil || *d.Inflight.op.Seq != seq {
		return ot.ErrBadlyFormed
	}
	pend := d.Inflight
	d.Inflight = nil
	d.Version = serverVersion

	if pend.callback != nil {
		pend.callback(nil)
	}
	d.events.emit(Event{Kind: EventAck, Doc: d, Op: pend.op})
	d.Flush()
	return nil
}

// AckError fails the in-flight op identified by (src, seq) with err. A
// server-side rejection of an in-flight op always triggers hard rollback.
func (d *Doc) AckError(src string, seq uint64, err error) error {
	if d.Inflight == nil || d.Inflight.op.Src != src || d.Inflight.op.Seq == nil || *d.Inflight.op.Seq != seq {
		return ot.ErrBadlyFormed
	}
	d.hardRollback(err)
	return nil
}

// HandleRemoteOp rebases the in-flight and pending queues against an
// operation that arrived from the server, then applies it locally.
func (d *Doc) HandleRemoteOp(remote *ot.Op) error {
	if remote.V == nil {
		return ot.ErrBadlyFormed
	}
	switch {
	case *remote.V < d.Version:
		return nil // already seen; duplicate delivery
	case *remote.V > d.Version:
		// Out-of-order arrival: reference policy is to drop it (see the
		// out-of-order remote op design note); a production
		// implementation would fetch and replay the gap instead.
		return nil
	}

	server := remote.Clone()
	if d.Inflight != nil {
		if err := transformX(d.registry, d.Type, d.Inflight.op, server); err != nil {
			d.hardRollback(err)
			return err
		}
	}
	for _, pend := range d.Pending {
		if err := transformX(d.registry, d.Type, pend.op, server); err != nil {
			d.hardRollback(err)
			return err
		}
	}

	d.Version++
	if server.Kind() != ot.KindNone {
		snap := ot.Snapshot{ID: d.ID, V: d.Version - 1, Type: d.Type, Data: d.Data}
		if err := ot.Apply(d.registry, &snap, server); err != nil {
			return err
		}
		d.Type, d.Data = snap.Type, snap.Data
	}
	d.events.emit(Event{Kind: EventOp, Doc: d, Op: server, Source: "remote"})
	return nil
}

// HandleConnectionStateChange updates the replica for a transport
// connect/disconnect. On connect it flushes; on disconnect it returns any
// in-flight op to the head of the pending queue and marks the replica
// unsubscribed so the owner knows to resubscribe.
func (d *Doc) HandleConnectionStateChange(connected bool) {
	d.connected = connected
	if connected {
		d.events.emit(Event{Kind: EventConnected, Doc: d})
		d.Flush()
		return
	}
	if d.Inflight != nil {
		d.Pending = append([]*pendingOp{d.Inflight}, d.Pending...)
		d.Inflight = nil
	}
	d.Subscribed = false
	d.events.emit(Event{Kind: EventDisconnected, Doc: d})
}

// Close tears down the replica, notifying subscribers.
func (d *Doc) Close() {
	d.events.emit(Event{Kind: EventClose, Doc: d})
}

// hardRollback drops all local pipeline state, fails every dropped
// callback with err, and resets to nonexistent. The caller is responsible
// for triggering resubscribe.
func (d *Doc) hardRollback(err error) {
	dropped := d.Pending
	if d.Inflight != nil {
		dropped = append([]*pendingOp{d.Inflight}, dropped...)
	}
	d.Inflight = nil
	d.Pending = nil
	d.Type = ot.NonexistentType
	d.Data = nil
	d.Subscribed = false

	for _, pend := range dropped {
		if pend.callback != nil {
			pend.callback(err)
		}
	}
	d.events.emit(Event{Kind: EventError, Doc: d, Err: err})
}
