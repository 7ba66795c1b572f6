package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pairpad-server/core"
)

const maxIDAttempts = 5

type memStore struct {
	mu    sync.RWMutex
	rooms map[string]core.Room
}

// NewStore creates a process-local store. Rooms are lost on restart.
func NewStore() *memStore {
	return &memStore{rooms: make(map[string]core.Room)}
}

func (s *memStore) GetRoom(ctx context.Context, id string) (*core.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := logrus.WithField("room_id", id)

	s.mu.RLock()
	room, ok := s.rooms[id]
	s.mu.RUnlock()

	if !ok {
		log.Debug("Room with specified ID not found")
		return nil, fmt.Errorf("room %s: %w", id, core.ErrRoomNotFound)
	}
	log.Debug("Room retrieved successfully")
	return &room, nil
}

func (s *memStore) CreateRoom(ctx context.Context, language string) (*core.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < maxIDAttempts; i++ {
		room := core.NewRoom(language)
		if _, taken := s.rooms[room.ID]; taken {
			continue
		}
		s.rooms[room.ID] = *room
		logrus.WithFields(logrus.Fields{
			"room_id":  room.ID,
			"language": room.Language,
		}).Info("Room created successfully")
		return room, nil
	}
	return nil, fmt.Errorf("allocate room id: gave up after %d attempts", maxIDAttempts)
}

func (s *memStore) UpdateRoomCode(ctx context.Context, id, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return fmt.Errorf("room %s: %w", id, core.ErrRoomNotFound)
	}
	room.CodeContent = code
	room.UpdatedAt = time.Now().UTC()
	s.rooms[id] = room

	logrus.WithFields(logrus.Fields{
		"room_id":     id,
		"code_length": len(code),
	}).Debug("Room code updated")
	return nil
}
