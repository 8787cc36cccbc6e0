package transport

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"otsync/internal/client"
	"otsync/internal/ot"
)

type docKey struct{ collection, id string }

// ClientConn is the client-side gorilla/websocket binding of
// client.Connection: it owns the connection id assigned at handshake and
// the per-connection sequence counter, and routes incoming frames to
// whichever tracked Doc they address.
type ClientConn struct {
	ws *websocket.Conn

	mu  sync.Mutex
	id  string
	seq uint64

	docs map[docKey]*client.Doc
}

// NewClientConn wraps an already-dialed websocket connection.
func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{ws: ws, docs: make(map[docKey]*client.Doc)}
}

func (c *ClientConn) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *ClientConn) NextSeq() uint64 {
	return atomic.AddUint64(&c.seq, 1)
}

func (c *ClientConn) Send(collection, id string, op *ot.Op) error {
	if err := c.ws.WriteJSON(ClientMessage{A: ActionOp, C: collection, D: id, Op: op}); err != nil {
		return fmt.Errorf("%w: %v", ot.ErrConnectionClosed, err)
	}
	return nil
}

// Track registers doc so frames addressed to (collection, id) route to it.
func (c *ClientConn) Track(collection, id string, doc *client.Doc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[docKey{collection, id}] = doc
}

func (c *ClientConn) lookup(collection, id string) *client.Doc {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.docs[docKey{collection, id}]
}

func (c *ClientConn) trackedDocs() []*client.Doc {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*client.Doc, 0, len(c.docs))
	for _, d := range c.docs {
		out = append(out, d)
	}
	return out
}

// Subscribe sends a subscribe request for (collection, id); the server's
// reply arrives asynchronously through Run and is delivered to the
// tracked Doc's Subscribe method.
func (c *ClientConn) Subscribe(collection, id string) error {
	return c.ws.WriteJSON(ClientMessage{A: ActionSubscribe, C: collection, D: id})
}

// Unsubscribe sends an unsubscribe request for (collection, id).
func (c *ClientConn) Unsubscribe(collection, id string) error {
	return c.ws.WriteJSON(ClientMessage{A: ActionUnsubscribe, C: collection, D: id})
}

// Run reads frames until the connection closes, dispatching each to its
// tracked Doc. Intended to run in its own goroutine.
func (c *ClientConn) Run() error {
	for {
		var msg ServerMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			for _, doc := range c.trackedDocs() {
				doc.HandleConnectionStateChange(false)
			}
			return err
		}
		c.handle(msg)
	}
}

// isAckForInflight reports whether op is the reply to doc's own inflight
// submission, keyed on (src, seq) rather than mere presence of identity: a
// broadcast of another client's committed op also carries that client's
// src/seq, and must be routed to HandleRemoteOp instead.
func isAckForInflight(doc *client.Doc, op *ot.Op) bool {
	inflight := doc.InflightOp()
	if inflight == nil || op.Seq == nil || inflight.Seq == nil {
		return false
	}
	return op.Src == inflight.Src && *op.Seq == *inflight.Seq
}

func (c *ClientConn) handle(msg ServerMessage) {
	if msg.A == ActionHandshake {
		c.mu.Lock()
		c.id = msg.ID
		c.mu.Unlock()
		for _, doc := range c.trackedDocs() {
			doc.HandleConnectionStateChange(true)
		}
		return
	}

	doc := c.lookup(msg.C, msg.D)
	if doc == nil {
		return
	}

	switch msg.A {
	case ActionSubscribe, ActionFetch:
		if msg.Err == nil && msg.Data != nil {
			doc.Subscribe(*msg.Data)
		}
	case ActionOp:
		if msg.Op == nil {
			return
		}
		if isAckForInflight(doc, msg.Op) {
			if msg.Err != nil {
				doc.AckError(msg.Op.Src, *msg.Op.Seq, msg.Err)
			} else if msg.Op.V != nil {
				doc.Ack(msg.Op.Src, *msg.Op.Seq, *msg.Op.V)
			}
			return
		}
		doc.HandleRemoteOp(msg.Op)
	}
}
