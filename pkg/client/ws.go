package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/openvtt/battlemap/pkg/log"
	"github.com/openvtt/battlemap/pkg/messages"
	"github.com/openvtt/battlemap/pkg/queue"
)

// RealtimeClient is the low-latency announcement path.
type RealtimeClient interface {
	SendMessage(msg *messages.Message) error
}

// WSClient represents a WebSocket client.
type WSClient struct {
	serverAddr   string
	token        string
	messageQueue queue.Queue
	conn         *websocket.Conn
	writeLock    sync.Mutex
}

var _ RealtimeClient = &WSClient{}

// NewWSClient creates a new WebSocket client. Received room events are
// enqueued on messageQueue for the reconciler to fold in.
func NewWSClient(serverAddr string, token string, messageQueue queue.Queue) *WSClient {
	return &WSClient{
		serverAddr:   serverAddr,
		token:        token,
		messageQueue: messageQueue,
	}
}

// Connect establishes a connection to the WebSocket server.
func (c *WSClient) Connect() error {
	log.Info("Connecting to WebSocket server at %s", c.serverAddr)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	conn, _, err := websocket.DefaultDialer.Dial(c.serverAddr, header)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %v", err)
	}
	c.conn = conn
	return nil
}

// HandleMessages handles incoming messages from the WebSocket server.
func (c *WSClient) HandleMessages(ctx context.Context) error {
	defer c.conn.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, b, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error("Error reading WebSocket message: %v", err)
			}
			log.Trace("Connection closed")
			return err
		}

		if err := c.handleMessage(b); err != nil {
			log.Error("Failed to handle message: %v", err)
		}
	}
}

func (c *WSClient) handleMessage(b []byte) error {
	msg, err := messages.DeserializeMessage(b)
	if err != nil {
		return fmt.Errorf("failed to deserialize message: %v", err)
	}
	log.Trace("Received message from WebSocket server of type %s", msg.Type)

	switch msg.Type {
	case messages.EventTokenMoved,
		messages.EventTokensUpdated,
		messages.EventMapUpdated,
		messages.EventError:
		if err := c.messageQueue.Enqueue(msg); err != nil {
			return fmt.Errorf("failed to enqueue message: %v", err)
		}
	default:
		return fmt.Errorf("received unexpected message type from WebSocket server: %s", msg.Type)
	}

	return nil
}

// SendMessage sends a message to the WebSocket server.
func (c *WSClient) SendMessage(msg *messages.Message) error {
	b, err := messages.SerializeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %v", err)
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return fmt.Errorf("failed to write message to WebSocket connection: %v", err)
	}

	return nil
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() error {
	if c.conn == nil {
		log.Warn("WebSocket connection is already closed")
		return nil
	}
	return c.conn.Close()
}
