package transport

import (
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"otsync/internal/ot"
	"otsync/internal/server"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Session binds one websocket connection to a server.Agent. It implements
// server.AgentTransport by framing replies as ServerMessage and handing
// them to a single dedicated write goroutine, keeping writes
// single-threaded per connection.
type Session struct {
	ws        *websocket.Conn
	send      chan ServerMessage
	closeOnce sync.Once
}

// NewSession wraps an already-upgraded websocket connection.
func NewSession(ws *websocket.Conn) *Session {
	return &Session{ws: ws, send: make(chan ServerMessage, 64)}
}

func (s *Session) writeLoop() {
	for msg := range s.send {
		if err := s.ws.WriteJSON(msg); err != nil {
			log.Printf("transport: write error: %v", err)
			return
		}
	}
}

func (s *Session) enqueue(msg ServerMessage) error {
	select {
	case s.send <- msg:
		return nil
	default:
		return ot.ErrConnectionClosed
	}
}

func (s *Session) SendHandshake(clientID string) error {
	return s.enqueue(NewHandshake(clientID))
}

func (s *Session) SendSubscribeReply(collection, id string, snapshot *ot.Snapshot, err error) error {
	return s.enqueue(NewSnapshotReply(ActionSubscribe, collection, id, snapshot, err))
}

func (s *Session) SendUnsubscribeAck(collection, id string) error {
	return s.enqueue(NewUnsubscribeAck(collection, id))
}

func (s *Session) SendFetchReply(collection, id string, snapshot *ot.Snapshot, err error) error {
	return s.enqueue(NewSnapshotReply(ActionFetch, collection, id, snapshot, err))
}

func (s *Session) SendOpAck(collection, id string, op *ot.Op, newVersion uint64, err error) error {
	return s.enqueue(NewOpAck(collection, id, op, newVersion, err))
}

func (s *Session) SendOpBroadcast(collection, id string, op *ot.Op) error {
	return s.enqueue(NewOpMessage(collection, id, op, nil))
}

// Close stops the write loop and closes the underlying socket. Safe to
// call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.send)
		err = s.ws.Close()
	})
	return err
}

// Handler upgrades an inbound request to a websocket connection, registers
// an Agent with backend, and serves that connection's read loop until it
// disconnects. Wire into gin with router.GET("/ws", transport.Handler(backend)).
func Handler(backend *server.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("transport: upgrade error: %v", err)
			return
		}
		defer ws.Close()

		session := NewSession(ws)
		go session.writeLoop()

		agent := backend.CreateAgent(session)
		defer backend.RemoveAgent(agent)
		defer session.Close()

		readLoop(ws, backend, agent)
	}
}

func readLoop(ws *websocket.Conn, backend *server.Backend, agent *server.Agent) {
	for {
		var msg ClientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		dispatch(backend, agent, msg)
	}
}

func dispatch(backend *server.Backend, agent *server.Agent, msg ClientMessage) {
	switch msg.A {
	case ActionSubscribe:
		backend.Subscribe(agent, msg.C, msg.D)
	case ActionUnsubscribe:
		backend.Unsubscribe(agent, msg.C, msg.D)
	case ActionFetch:
		backend.Fetch(agent, msg.C, msg.D)
	case ActionOp:
		if msg.Op == nil {
			return
		}
		backend.Submit(agent, msg.C, msg.D, msg.Op, 0)
	}
}
