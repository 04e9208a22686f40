// Package redis stores room metadata, room codes, and presence sets.
// One Store is created at process start and shared by the handlers.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mossy-p/peercall/config"
	"github.com/mossy-p/peercall/internal/models"
	"github.com/redis/go-redis/v9"
)

const roomTTL = 24 * time.Hour

type Store struct {
	client *redis.Client
}

// Connect initializes the Redis client and verifies the connection.
func Connect(cfg config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// SaveRoom stores the room metadata and its code-to-id mapping.
func (s *Store) SaveRoom(ctx context.Context, room models.RoomMetadata) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, "room:"+room.ID, data, roomTTL).Err(); err != nil {
		return err
	}
	return s.client.Set(ctx, "code:"+room.Code, room.ID, roomTTL).Err()
}

// ResolveCode maps a short room code to the room id.
func (s *Store) ResolveCode(ctx context.Context, code string) (string, error) {
	id, err := s.client.Get(ctx, "code:"+code).Result()
	if err != nil {
		return "", fmt.Errorf("room not found")
	}
	return id, nil
}

// GetRoom fetches the room metadata by id, including the current
// participant count.
func (s *Store) GetRoom(ctx context.Context, roomID string) (*models.RoomMetadata, error) {
	data, err := s.client.Get(ctx, "room:"+roomID).Result()
	if err != nil {
		return nil, fmt.Errorf("room not found")
	}

	var room models.RoomMetadata
	if err := json.Unmarshal([]byte(data), &room); err != nil {
		return nil, fmt.Errorf("failed to parse room data")
	}

	room.ParticipantCount = s.PeerCount(ctx, roomID)
	return &room, nil
}

// DeleteRoom removes the metadata, the code mapping, and the presence set.
func (s *Store) DeleteRoom(ctx context.Context, room *models.RoomMetadata) {
	s.client.Del(ctx, "room:"+room.ID)
	s.client.Del(ctx, "code:"+room.Code)
	s.client.Del(ctx, "room:"+room.ID+":peers")
}

// AddPeer records presence of a connection in a room.
func (s *Store) AddPeer(ctx context.Context, roomID, connID string) {
	s.client.SAdd(ctx, "room:"+roomID+":peers", connID)
	s.client.Expire(ctx, "room:"+roomID+":peers", roomTTL)
}

// RemovePeer clears presence of a connection.
func (s *Store) RemovePeer(ctx context.Context, roomID, connID string) {
	s.client.SRem(ctx, "room:"+roomID+":peers", connID)
}

// PeerCount returns the number of present connections in a room.
func (s *Store) PeerCount(ctx context.Context, roomID string) int {
	count, _ := s.client.SCard(ctx, "room:"+roomID+":peers").Result()
	return int(count)
}
