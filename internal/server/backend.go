package server

import (
	"context"
	"strconv"
	"sync"
	"time"

	"otsync/internal/ot"
)

// Auditor receives every committed op as a side effect of Submit. It is
// never consulted for correctness; a failing or absent Auditor cannot
// affect the commit loop.
type Auditor interface {
	Publish(ctx context.Context, evt AuditEvent) error
}

// Backend owns the store, the registry of connected agents, and the
// subscription index (collection -> id -> agent id -> Agent) used to fan
// committed ops out to every other subscriber.
type Backend struct {
	mu          sync.Mutex
	store       Store
	commitStore Store
	registry    ot.TypeResolver
	auditor     Auditor
	maxRetries  int

	agents map[string]*Agent
	subs   map[string]map[string]map[string]*Agent

	nextClientID uint64
}

// readCacheBypasser is implemented by a Store that decorates another with a
// read cache-aside layer, e.g. RedisCache; it lets NewBackend keep the
// commit loop's reads off that cache while Subscribe/Fetch still use it.
type readCacheBypasser interface {
	BypassReadCache() Store
}

// NewBackend wires a Backend against store and registry. If store decorates
// another with a read cache (RedisCache), the commit loop reads through to
// the underlying store instead: a cached read racing a concurrent commit's
// invalidation would otherwise seed SubmitOp's compare-and-swap retries
// with a snapshot version that never lines up, burning the whole retry
// budget instead of converging.
func NewBackend(store Store, registry ot.TypeResolver) *Backend {
	commitStore := store
	if b, ok := store.(readCacheBypasser); ok {
		commitStore = b.BypassReadCache()
	}
	return &Backend{
		store:       store,
		commitStore: commitStore,
		registry:    registry,
		agents:      make(map[string]*Agent),
		subs:        make(map[string]map[string]map[string]*Agent),
	}
}

// SetAuditor attaches an Auditor invoked after every successful Submit.
// Optional; a nil auditor (the default) disables audit publishing.
func (b *Backend) SetAuditor(a Auditor) {
	b.auditor = a
}

// SetMaxRetries overrides SubmitOp's CAS retry budget for every Submit
// that does not specify its own (i.e. every call arriving over transport,
// which always passes 0). Zero or negative falls back to
// server.DefaultMaxRetries.
func (b *Backend) SetMaxRetries(n int) {
	b.maxRetries = n
}

// CreateAgent mints an incrementing base-36 client id, registers a new
// Agent for transport, and sends its handshake.
func (b *Backend) CreateAgent(transport AgentTransport) *Agent {
	b.mu.Lock()
	id := strconv.FormatUint(b.nextClientID, 36)
	b.nextClientID++
	agent := NewAgent(id, transport)
	b.agents[id] = agent
	b.mu.Unlock()

	transport.SendHandshake(id)
	return agent
}

// Subscribe fetches the current snapshot for (collection, id), registers
// agent in the subscription index on success, and replies over its
// transport.
func (b *Backend) Subscribe(agent *Agent, collection, id string) {
	snap, err := b.store.GetSnapshot(collection, id)
	if err != nil {
		agent.Transport.SendSubscribeReply(collection, id, nil, err)
		return
	}
	b.mu.Lock()
	b.subscribeLocked(agent, collection, id)
	b.mu.Unlock()
	agent.Transport.SendSubscribeReply(collection, id, &snap, nil)
}

// Unsubscribe removes agent from the subscription index for
// (collection, id) and acks over its transport.
func (b *Backend) Unsubscribe(agent *Agent, collection, id string) {
	b.mu.Lock()
	b.unsubscribeLocked(agent, collection, id)
	b.mu.Unlock()
	agent.Transport.SendUnsubscribeAck(collection, id)
}

// Fetch replies with a one-shot snapshot, independent of subscription
// state.
func (b *Backend) Fetch(agent *Agent, collection, id string) {
	snap, err := b.store.GetSnapshot(collection, id)
	if err != nil {
		agent.Transport.SendFetchReply(collection, id, nil, err)
		return
	}
	agent.Transport.SendFetchReply(collection, id, &snap, nil)
}

// Submit runs op through the commit loop and, on success, acks the
// submitter and broadcasts the committed op to every other subscriber of
// (collection, id). A failed commit is packaged into the ack reply and
// never broadcast.
func (b *Backend) Submit(agent *Agent, collection, id string, op *ot.Op, maxRetries int) {
	if maxRetries <= 0 {
		maxRetries = b.maxRetries
	}
	result, err := SubmitOp(b.commitStore, b.registry, collection, id, op, maxRetries)
	if err != nil {
		agent.Transport.SendOpAck(collection, id, op, 0, err)
		return
	}
	agent.Transport.SendOpAck(collection, id, result.Op, result.Snapshot.V, nil)
	b.broadcast(agent, collection, id, result.Op)

	if b.auditor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		b.auditor.Publish(ctx, NewAuditEvent(collection, id, result.Op, time.Now().UnixMilli()))
	}
}

// RemoveAgent tears down agent's subscriptions and deregisters it, without
// touching its transport (the caller owns closing the connection).
func (b *Backend) RemoveAgent(agent *Agent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for collection, ids := range agent.subscriptions {
		for id := range ids {
			b.removeFromIndexLocked(agent, collection, id)
		}
	}
	delete(b.agents, agent.ID)
}

// Close tears down every connected agent.
func (b *Backend) Close() {
	b.mu.Lock()
	agents := make([]*Agent, 0, len(b.agents))
	for _, a := range b.agents {
		agents = append(agents, a)
	}
	b.agents = make(map[string]*Agent)
	b.subs = make(map[string]map[string]map[string]*Agent)
	b.mu.Unlock()

	for _, a := range agents {
		a.Transport.Close()
	}
}

func (b *Backend) broadcast(except *Agent, collection, id string, op *ot.Op) {
	b.mu.Lock()
	var targets []*Agent
	if byID, ok := b.subs[collection]; ok {
		if agents, ok := byID[id]; ok {
			targets = make([]*Agent, 0, len(agents))
			for _, a := range agents {
				if a == except {
					continue
				}
				targets = append(targets, a)
			}
		}
	}
	b.mu.Unlock()

	for _, a := range targets {
		a.Transport.SendOpBroadcast(collection, id, op)
	}
}

func (b *Backend) subscribeLocked(agent *Agent, collection, id string) {
	byID, ok := b.subs[collection]
	if !ok {
		byID = make(map[string]map[string]*Agent)
		b.subs[collection] = byID
	}
	agents, ok := byID[id]
	if !ok {
		agents = make(map[string]*Agent)
		byID[id] = agents
	}
	agents[agent.ID] = agent
	agent.addSubscription(collection, id)
}

func (b *Backend) unsubscribeLocked(agent *Agent, collection, id string) {
	b.removeFromIndexLocked(agent, collection, id)
	agent.removeSubscription(collection, id)
}

func (b *Backend) removeFromIndexLocked(agent *Agent, collection, id string) {
	byID, ok := b.subs[collection]
	if !ok {
		return
	}
	agents, ok := byID[id]
	if ok {
		delete(agents, agent.ID)
		if len(agents) == 0 {
			delete(byID, id)
		}
	}
	if len(byID) == 0 {
		delete(b.subs, collection)
	}
}
