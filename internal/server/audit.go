package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"otsync/internal/ot"
)

// AuditEvent is one committed op, republished for external consumers
// (search indexing, analytics). It is a one-way, best-effort side channel:
// the server never reads it back, so a lost event never affects
// correctness of the OT engine itself. EventID gives downstream consumers
// an idempotency key independent of Kafka's own offset, since a retried
// send after a timed-out ack can otherwise land twice.
type AuditEvent struct {
	EventID    string `json:"eventId"`
	Collection string `json:"collection"`
	DocID      string `json:"docId"`
	Op         *ot.Op `json:"op"`
	Timestamp  int64  `json:"ts"`
}

// NewAuditEvent stamps evt with a fresh event id.
func NewAuditEvent(collection, id string, op *ot.Op, ts int64) AuditEvent {
	return AuditEvent{
		EventID:    uuid.NewString(),
		Collection: collection,
		DocID:      id,
		Op:         op,
		Timestamp:  ts,
	}
}

// AuditPublisher is a bounded local queue drained by a fixed worker pool,
// each retrying a failed send with cenkalti/backoff's exponential backoff
// before giving up; a send that still fails after MaxRetry attempts is
// logged and dropped rather than blocking the queue.
type AuditPublisher struct {
	producer sarama.SyncProducer
	topic    string
	queue    chan AuditEvent
	sem      *Semaphore
	workers  int
	maxRetry int
}

// AuditOptions configures queue depth, worker count, per-event retry
// budget, and the cap on concurrent in-flight sends. Zero values fall back
// to conservative defaults.
type AuditOptions struct {
	QueueSize      int
	Workers        int
	MaxRetry       int
	MaxConcurrency int
}

// NewAuditPublisher starts the worker pool immediately. producer may be
// nil (or topic empty) to run as a no-op sink, useful when Kafka isn't
// configured but callers still want to Publish unconditionally.
func NewAuditPublisher(producer sarama.SyncProducer, topic string, opt AuditOptions) *AuditPublisher {
	if opt.QueueSize <= 0 {
		opt.QueueSize = 256
	}
	if opt.Workers <= 0 {
		opt.Workers = 2
	}
	if opt.MaxRetry <= 0 {
		opt.MaxRetry = 5
	}
	if opt.MaxConcurrency <= 0 {
		opt.MaxConcurrency = opt.Workers
	}
	p := &AuditPublisher{
		producer: producer,
		topic:    topic,
		queue:    make(chan AuditEvent, opt.QueueSize),
		sem:      NewSemaphore(opt.MaxConcurrency),
		workers:  opt.Workers,
		maxRetry: opt.MaxRetry,
	}
	p.start()
	return p
}

// Publish enqueues evt, dropping it if ctx is done before the queue has
// room. A slow or unreachable broker never blocks the commit loop.
func (p *AuditPublisher) Publish(ctx context.Context, evt AuditEvent) error {
	select {
	case p.queue <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new events. Already-queued events keep draining
// through the worker pool.
func (p *AuditPublisher) Close() {
	close(p.queue)
}

func (p *AuditPublisher) start() {
	for i := 0; i < p.workers; i++ {
		go p.workerLoop(i)
	}
}

func (p *AuditPublisher) workerLoop(workerID int) {
	for evt := range p.queue {
		p.sendWithRetry(workerID, evt)
	}
}

func (p *AuditPublisher) sendWithRetry(workerID int, evt AuditEvent) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	attempt := 0
	op := func() error {
		attempt++
		// The semaphore allows waiting indefinitely: a retry backing off
		// on Kafka should never itself be starved out of a send slot.
		_ = p.sem.Acquire(context.Background())
		err := p.sendOnce(evt)
		p.sem.Release()

		if err != nil && attempt >= p.maxRetry {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, b); err != nil {
		log.Printf("audit: publish failed, drop event collection=%s doc=%s worker=%d err=%v",
			evt.Collection, evt.DocID, workerID, err)
	}
}

func (p *AuditPublisher) sendOnce(evt AuditEvent) error {
	if p.producer == nil || p.topic == "" {
		return nil
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(evt.DocID),
		Value: sarama.ByteEncoder(payload),
	}
	_, _, err = p.producer.SendMessage(msg)
	return err
}
