package gateway

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/openvtt/battlemap/pkg/log"
	"github.com/openvtt/battlemap/pkg/messages"
	"github.com/openvtt/battlemap/pkg/types"
)

const sessionSendBufferSize = 64

// session wraps a websocket connection with its actor identity and a
// buffered outbound pump, so a slow peer never blocks a broadcast.
type session struct {
	id    string
	actor types.Actor
	conn  *websocket.Conn
	send  chan *messages.Message
	done  chan struct{}
	once  sync.Once
}

func newSession(id string, actor types.Actor, conn *websocket.Conn) *session {
	return &session{
		id:    id,
		actor: actor,
		conn:  conn,
		send:  make(chan *messages.Message, sessionSendBufferSize),
		done:  make(chan struct{}),
	}
}

func (s *session) ID() string {
	return s.id
}

// Send queues a message for delivery. It never blocks: when the session
// buffer is full the message is dropped, matching the channel's
// best-effort contract.
func (s *session) Send(msg *messages.Message) error {
	select {
	case <-s.done:
		return fmt.Errorf("session %s is closed", s.id)
	case s.send <- msg:
		return nil
	default:
		return fmt.Errorf("session %s send buffer is full", s.id)
	}
}

// writePump drains the send buffer onto the websocket connection. It is
// the only writer of the connection.
func (s *session) writePump() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			if err := writeMessage(s.conn, msg); err != nil {
				log.Warn("Failed to write %s to session %s: %v", msg.Type, s.id, err)
				s.close()
				return
			}
		}
	}
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// writeMessage writes a serialized message to a websocket connection.
func writeMessage(conn *websocket.Conn, msg *messages.Message) error {
	b, err := messages.SerializeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %v", err)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return fmt.Errorf("failed to write message to WebSocket connection: %v", err)
	}

	return nil
}

// readMessage reads a serialized message from a websocket connection.
func readMessage(conn *websocket.Conn) (*messages.Message, error) {
	_, b, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	msg, err := messages.DeserializeMessage(b)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %v", err)
	}

	return msg, nil
}
