// Command otsync-client is a minimal demo replica: it dials an
// otsync-server websocket endpoint, creates or subscribes to one counter
// document, and submits a handful of increments so the client pipeline
// (optimistic apply, inflight/pending, remote-op rebase) can be exercised
// end to end against a running server.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"otsync/internal/client"
	"otsync/internal/ot"
	"otsync/internal/ottype"
	"otsync/internal/transport"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "otsync-server websocket URL")
	collection := flag.String("collection", "counters", "collection name")
	id := flag.String("id", "demo", "document id")
	flag.Parse()

	ws, _, err := websocket.DefaultDialer.Dial(*addr, nil)
	if err != nil {
		log.Fatalf("otsync-client: dial: %v", err)
	}
	defer ws.Close()

	conn := transport.NewClientConn(ws)
	go func() {
		if err := conn.Run(); err != nil {
			log.Printf("otsync-client: connection closed: %v", err)
		}
	}()

	registry := ottype.NewDefaultRegistry()
	doc := client.NewDoc(*collection, *id, registry, conn)
	conn.Track(*collection, *id, doc)

	doc.On(client.EventLoad, func(e client.Event) {
		log.Printf("otsync-client: loaded %s/%s at v%d: %+v", e.Doc.Collection, e.Doc.ID, e.Doc.Version, e.Doc.Data)
	})
	doc.On(client.EventOp, func(e client.Event) {
		log.Printf("otsync-client: op (%s) applied, data now %+v", e.Source, e.Doc.Data)
	})
	doc.On(client.EventError, func(e client.Event) {
		log.Printf("otsync-client: replica error, hard rollback: %v", e.Err)
	})

	// Give the handshake a moment before subscribing.
	time.Sleep(200 * time.Millisecond)
	if err := conn.Subscribe(*collection, *id); err != nil {
		log.Fatalf("otsync-client: subscribe: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if doc.Type == ot.NonexistentType {
		err := doc.SubmitCreate(ottype.CounterName, float64(0), func(err error) {
			if err != nil {
				log.Printf("otsync-client: create failed: %v", err)
			}
		})
		if err != nil {
			log.Printf("otsync-client: submit create: %v", err)
		}
	}

	for i := 0; i < 5; i++ {
		time.Sleep(300 * time.Millisecond)
		err := doc.SubmitEdit(float64(1), func(err error) {
			if err != nil {
				log.Printf("otsync-client: increment failed: %v", err)
			}
		})
		if err != nil {
			log.Printf("otsync-client: submit edit: %v", err)
		}
	}

	time.Sleep(time.Second)
	log.Printf("otsync-client: final state v%d: %+v", doc.Version, doc.Data)
}
