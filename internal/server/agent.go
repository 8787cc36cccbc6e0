package server

import "otsync/internal/ot"

// AgentTransport is the reply/push surface a connected session uses to talk
// back to one client. The concrete websocket binding lives in the
// transport package; server code depends only on this interface, mirroring
// how each reply/push shape maps onto outbound sends.
type AgentTransport interface {
	SendHandshake(clientID string) error
	SendSubscribeReply(collection, id string, snapshot *ot.Snapshot, err error) error
	SendUnsubscribeAck(collection, id string) error
	SendFetchReply(collection, id string, snapshot *ot.Snapshot, err error) error
	SendOpAck(collection, id string, op *ot.Op, newVersion uint64, err error) error
	SendOpBroadcast(collection, id string, op *ot.Op) error
	Close() error
}

// Agent is one connected client's session: an id, its transport, and the
// set of documents it is currently subscribed to.
type Agent struct {
	ID        string
	Transport AgentTransport

	subscriptions map[string]map[string]struct{}
}

// NewAgent returns a session for a freshly accepted connection. Backends
// normally construct agents through Backend.CreateAgent rather than
// calling this directly, so the client id is minted consistently.
func NewAgent(id string, transport AgentTransport) *Agent {
	return &Agent{
		ID:            id,
		Transport:     transport,
		subscriptions: make(map[string]map[string]struct{}),
	}
}

// IsSubscribed reports whether this agent currently holds a live
// subscription on (collection, id).
func (a *Agent) IsSubscribed(collection, id string) bool {
	ids, ok := a.subscriptions[collection]
	if !ok {
		return false
	}
	_, ok = ids[id]
	return ok
}

func (a *Agent) addSubscription(collection, id string) {
	ids, ok := a.subscriptions[collection]
	if !ok {
		ids = make(map[string]struct{})
		a.subscriptions[collection] = ids
	}
	ids[id] = struct{}{}
}

func (a *Agent) removeSubscription(collection, id string) {
	ids, ok := a.subscriptions[collection]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(a.subscriptions, collection)
	}
}
