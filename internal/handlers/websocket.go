package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/peercall/internal/models"
	"github.com/mossy-p/peercall/internal/redis"
	"github.com/mossy-p/peercall/internal/relay"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Signaling owns the websocket endpoint and hands every parsed message
// to the coordinator.
type Signaling struct {
	router *relay.Router
	coord  *relay.Coordinator
	store  *redis.Store
}

func NewSignaling(router *relay.Router, coord *relay.Coordinator, store *redis.Store) *Signaling {
	return &Signaling{router: router, coord: coord, store: store}
}

// Client is one websocket connection. Send is buffered so the relay
// never blocks on a slow recipient; overflow is dropped and logged.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
}

func (c *Client) send(msg models.SignalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full for peer %s", c.ID)
	}
}

// HandleSignaling upgrades the connection, validates the room, and
// starts the read/write pumps.
func (s *Signaling) HandleSignaling(c *gin.Context) {
	roomIdentifier := c.Param("roomId")
	if roomIdentifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomId is required"})
		return
	}

	// Validate room exists and is not full before upgrading.
	roomID, room, err := s.validateRoom(c, roomIdentifier)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		ID:   uuid.New().String(),
		Conn: conn,
		Send: make(chan []byte, 256),
	}

	s.router.Attach(client.ID, senderFunc(client.send))

	log.Printf("Peer %s connected for room %s (code: %s) - %d/%d participants",
		client.ID, roomID, room.Code, room.ParticipantCount+1, room.MaxParticipants)

	go client.writePump()
	go s.readPump(client, roomID)
}

// senderFunc adapts a closure to relay.Sender.
type senderFunc func(models.SignalMessage) error

func (f senderFunc) Send(msg models.SignalMessage) error { return f(msg) }

func (s *Signaling) validateRoom(c *gin.Context, identifier string) (string, *models.RoomMetadata, error) {
	ctx := c.Request.Context()

	roomID := identifier
	if len(identifier) == roomCodeLength {
		id, err := s.store.ResolveCode(ctx, identifier)
		if err != nil {
			return "", nil, err
		}
		roomID = id
	}

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return "", nil, err
	}
	if room.MaxParticipants > 0 && room.ParticipantCount >= room.MaxParticipants {
		return "", nil, fmt.Errorf("room is full")
	}
	return roomID, room, nil
}

func (s *Signaling) readPump(c *Client, roomID string) {
	defer func() {
		s.coord.HandleDisconnect(c.ID)
		c.Conn.Close()
		log.Printf("Peer %s disconnected", c.ID)
	}()

	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg models.SignalMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Failed to parse message from %s: %v", c.ID, err)
			continue
		}

		// Joins are pinned to the room this socket was validated for.
		if msg.Type == models.SignalTypeJoinRoom {
			msg.RoomID = roomID
		}

		s.coord.HandleMessage(c.ID, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
