package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"pairpad-server/core"
)

func TestCreateRoom_DefaultLanguage(t *testing.T) {
	store := NewStore()
	room, err := store.CreateRoom(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateRoom() failed: %v", err)
	}
	if len(room.ID) != 8 {
		t.Errorf("CreateRoom() returned invalid ID length: got %d, want 8", len(room.ID))
	}
	if room.Language != core.DefaultLanguage {
		t.Errorf("Language mismatch: got %q, want %q", room.Language, core.DefaultLanguage)
	}
	if room.CodeContent != "" {
		t.Errorf("New room should be empty, got %q", room.CodeContent)
	}
}

func TestGetRoom_NotFound(t *testing.T) {
	store := NewStore()
	_, err := store.GetRoom(context.Background(), "missing1")
	if !errors.Is(err, core.ErrRoomNotFound) {
		t.Errorf("GetRoom() error mismatch: got %v, want ErrRoomNotFound", err)
	}
}

func TestUpdateRoomCode(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	room, err := store.CreateRoom(ctx, "javascript")
	if err != nil {
		t.Fatalf("CreateRoom() failed: %v", err)
	}
	if err := store.UpdateRoomCode(ctx, room.ID, "console.log(1)"); err != nil {
		t.Fatalf("UpdateRoomCode() failed: %v", err)
	}

	got, err := store.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("GetRoom() failed: %v", err)
	}
	if got.CodeContent != "console.log(1)" || got.Language != "javascript" {
		t.Errorf("Room mismatch: got %+v", got)
	}
}

func TestUpdateRoomCode_NotFound(t *testing.T) {
	store := NewStore()
	err := store.UpdateRoomCode(context.Background(), "missing1", "x")
	if !errors.Is(err, core.ErrRoomNotFound) {
		t.Errorf("UpdateRoomCode() error mismatch: got %v, want ErrRoomNotFound", err)
	}
}

func TestCancelledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.CreateRoom(ctx, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("CreateRoom() error mismatch: got %v", err)
	}
	if _, err := store.GetRoom(ctx, "abc12345"); !errors.Is(err, context.Canceled) {
		t.Errorf("GetRoom() error mismatch: got %v", err)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	room, err := store.CreateRoom(ctx, "")
	if err != nil {
		t.Fatalf("CreateRoom() failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := store.UpdateRoomCode(ctx, room.ID, fmt.Sprintf("v%d", i)); err != nil {
				t.Errorf("Concurrent UpdateRoomCode() failed: %v", err)
			}
			if _, err := store.GetRoom(ctx, room.ID); err != nil {
				t.Errorf("Concurrent GetRoom() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
}

func TestStoreIsolation(t *testing.T) {
	a, b := NewStore(), NewStore()
	room, err := a.CreateRoom(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateRoom() failed: %v", err)
	}
	if _, err := b.GetRoom(context.Background(), room.ID); !errors.Is(err, core.ErrRoomNotFound) {
		t.Error("Rooms leaked between store instances")
	}
}
