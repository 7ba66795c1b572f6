package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLanguage is used for rooms created without a language and for
	// the snapshot sent when a room cannot be loaded.
	DefaultLanguage = "python"

	roomIDLength = 8
)

// ErrRoomNotFound is returned by a RoomStore when no record exists for an id.
var ErrRoomNotFound = errors.New("room not found")

type (
	// Room is the persisted document snapshot of a collaboration room.
	Room struct {
		ID          string    `json:"room_id"`
		CodeContent string    `json:"code_content"`
		Language    string    `json:"language"`
		CreatedAt   time.Time `json:"-"`
		UpdatedAt   time.Time `json:"-"`
	}

	// RoomStore is the durable key-value mapping from room id to document
	// snapshot. Each call is an independent operation; implementations must
	// be safe for concurrent use.
	RoomStore interface {
		// GetRoom returns ErrRoomNotFound (possibly wrapped) for unknown ids.
		GetRoom(ctx context.Context, id string) (*Room, error)
		// CreateRoom provisions an empty room with a fresh short id.
		CreateRoom(ctx context.Context, language string) (*Room, error)
		// UpdateRoomCode replaces the stored code of an existing room.
		UpdateRoomCode(ctx context.Context, id, code string) error
	}
)

// NewRoomID returns a short identifier that is easy to share in a URL.
func NewRoomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:roomIDLength]
}

// NewRoom builds an empty room record, falling back to DefaultLanguage.
func NewRoom(language string) *Room {
	if language == "" {
		language = DefaultLanguage
	}
	now := time.Now().UTC()
	return &Room{
		ID:        NewRoomID(),
		Language:  language,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DefaultSnapshot is what a joiner sees when the room has no stored state.
func DefaultSnapshot(id string) *Room {
	return &Room{ID: id, Language: DefaultLanguage}
}
