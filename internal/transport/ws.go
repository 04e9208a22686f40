// Package transport is the endpoint side of the signaling link: a
// websocket client with a serialized write pump, a read loop that hands
// parsed messages to the controller, and disconnect notification.
package transport

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mossy-p/peercall/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is one signaling connection to the relay.
type Client struct {
	conn *websocket.Conn
	send chan models.SignalMessage

	done      chan struct{}
	closeOnce sync.Once

	onMessage    func(models.SignalMessage)
	onDisconnect func(error)
	disconnected sync.Once
}

// Dial connects to the relay's signaling endpoint. Handlers must be
// registered before Start.
func Dial(url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling relay: %w", err)
	}
	return &Client{
		conn: conn,
		send: make(chan models.SignalMessage, 64),
		done: make(chan struct{}),
	}, nil
}

// OnMessage registers the handler for inbound signaling messages.
func (c *Client) OnMessage(fn func(models.SignalMessage)) {
	c.onMessage = fn
}

// OnDisconnect registers the handler fired once when the link drops,
// whether abruptly or through Close.
func (c *Client) OnDisconnect(fn func(error)) {
	c.onDisconnect = fn
}

// Start launches the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// Send queues one message for delivery. FIFO order towards the relay is
// preserved by the single write pump.
func (c *Client) Send(msg models.SignalMessage) error {
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return fmt.Errorf("transport closed")
	}
}

// Close shuts the connection down.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}

func (c *Client) readPump() {
	defer func() {
		c.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.notifyDisconnect(err)
			return
		}

		var msg models.SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("malformed signal from relay: %v", err)
			continue
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("marshal signal: %v", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.notifyDisconnect(err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.notifyDisconnect(err)
				return
			}
		}
	}
}

func (c *Client) notifyDisconnect(err error) {
	c.disconnected.Do(func() {
		if c.onDisconnect != nil {
			c.onDisconnect(err)
		}
	})
}
