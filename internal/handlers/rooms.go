package handlers

import (
	"crypto/rand"
	"log"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mossy-p/peercall/internal/models"
	"github.com/mossy-p/peercall/internal/redis"
)

const (
	roomCodeLength = 6
	codeChars      = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // Removed ambiguous chars
)

// RoomAPI serves the room management endpoints.
type RoomAPI struct {
	store *redis.Store
}

func NewRoomAPI(store *redis.Store) *RoomAPI {
	return &RoomAPI{store: store}
}

// CreateRoom creates a new room (requires authentication)
func (a *RoomAPI) CreateRoom(c *gin.Context) {
	identity, exists := c.Get("identity")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// A call room holds the two call parties by default.
	if req.MaxParticipants == 0 {
		req.MaxParticipants = 2
	}

	room := models.RoomMetadata{
		ID:              uuid.New().String(),
		Code:            generateRoomCode(),
		CreatorID:       identity.(string),
		CreatedAt:       time.Now(),
		MaxParticipants: req.MaxParticipants,
	}

	if err := a.store.SaveRoom(c.Request.Context(), room); err != nil {
		log.Printf("Failed to store room in Redis: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}

	log.Printf("Room created: %s (code: %s) by %s", room.ID, room.Code, identity)

	c.JSON(http.StatusCreated, models.CreateRoomResponse{
		RoomID: room.ID,
		Code:   room.Code,
	})
}

// GetRoom gets room information by code or ID (public)
func (a *RoomAPI) GetRoom(c *gin.Context) {
	roomIdentifier := c.Param("roomId")
	ctx := c.Request.Context()

	roomID := roomIdentifier
	if len(roomIdentifier) == roomCodeLength {
		id, err := a.store.ResolveCode(ctx, roomIdentifier)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		roomID = id
	}

	room, err := a.store.GetRoom(ctx, roomID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	c.JSON(http.StatusOK, room)
}

// DeleteRoom deletes a room (requires authentication and creator)
func (a *RoomAPI) DeleteRoom(c *gin.Context) {
	identity, exists := c.Get("identity")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	roomID := c.Param("roomId")
	ctx := c.Request.Context()

	room, err := a.store.GetRoom(ctx, roomID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	if room.CreatorID != identity.(string) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the room creator can delete the room"})
		return
	}

	a.store.DeleteRoom(ctx, room)

	log.Printf("Room deleted: %s by %s", roomID, identity)

	c.JSON(http.StatusOK, gin.H{"message": "Room deleted"})
}

// generateRoomCode generates a random room code
func generateRoomCode() string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		code[i] = codeChars[n.Int64()]
	}
	return string(code)
}
