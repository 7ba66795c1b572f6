package rooms

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"pairpad-server/core"
)

func TestBroadcastExcludesSender(t *testing.T) {
	b := NewBroadcaster(NewTable())
	a, c := newFakeConn("a"), newFakeConn("c")
	b.Table().Register("r1", a)
	b.Table().Register("r1", c)

	if err := b.Broadcast("r1", core.NewUserLeft(), a); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}

	if got := a.messages(); len(got) != 0 {
		t.Errorf("Excluded connection received %v", got)
	}
	want := `{"type":"user_left","message":"A user disconnected"}`
	if got := c.messages(); len(got) != 1 || got[0] != want {
		t.Errorf("Message mismatch: got %v, want [%s]", got, want)
	}
}

func TestBroadcastWithoutExclusion(t *testing.T) {
	b := NewBroadcaster(NewTable())
	a, c := newFakeConn("a"), newFakeConn("c")
	b.Table().Register("r1", a)
	b.Table().Register("r1", c)

	if err := b.Broadcast("r1", map[string]string{"type": "ping"}, nil); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}
	if len(a.messages()) != 1 || len(c.messages()) != 1 {
		t.Errorf("Expected both connections to receive one message, got %d and %d",
			len(a.messages()), len(c.messages()))
	}
}

func TestBroadcastToMissingRoomIsNoop(t *testing.T) {
	b := NewBroadcaster(NewTable())
	if err := b.Broadcast("nobody", core.NewUserLeft(), nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if len(b.Table().Active()) != 0 {
		t.Error("Broadcast should not create a room entry")
	}
}

func TestBroadcastPrunesFailedConnections(t *testing.T) {
	b := NewBroadcaster(NewTable())
	a, dead, c := newFakeConn("a"), newFakeConn("dead"), newFakeConn("c")
	dead.setFail(true)
	for _, conn := range []*fakeConn{a, dead, c} {
		b.Table().Register("r1", conn)
	}

	if err := b.Broadcast("r1", core.NewUserLeft(), a); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}

	if len(c.messages()) != 1 {
		t.Error("Healthy connection after the failed one did not receive the message")
	}
	if dead.closeCount() != 1 {
		t.Errorf("Failed connection close count: got %d, want 1", dead.closeCount())
	}
	for _, conn := range b.Table().Snapshot("r1") {
		if conn == Conn(dead) {
			t.Fatal("Failed connection is still registered")
		}
	}
	if got := b.Table().Count("r1"); got != 2 {
		t.Errorf("Count mismatch: got %d, want 2", got)
	}

	// A pruned connection is never sent to again.
	if err := b.Broadcast("r1", core.NewUserLeft(), nil); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}
	if dead.closeCount() != 1 {
		t.Errorf("Pruned connection touched again: close count %d", dead.closeCount())
	}
}

func TestBroadcastPruningLastMemberRemovesRoom(t *testing.T) {
	b := NewBroadcaster(NewTable())
	dead := newFakeConn("dead")
	dead.setFail(true)
	b.Table().Register("r1", dead)

	if err := b.Broadcast("r1", core.NewUserLeft(), nil); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}
	if _, ok := b.Table().Active()["r1"]; ok {
		t.Error("Room entry should be removed after pruning its only member")
	}
}

func TestBroadcastEncodeError(t *testing.T) {
	b := NewBroadcaster(NewTable())
	a := newFakeConn("a")
	b.Table().Register("r1", a)

	if err := b.Broadcast("r1", make(chan int), nil); err == nil {
		t.Error("Expected an encoding error")
	}
	if len(a.messages()) != 0 {
		t.Error("Nothing should be sent when encoding fails")
	}
}

func TestBroadcastOrderIsConsistentAcrossMembers(t *testing.T) {
	b := NewBroadcaster(NewTable())
	members := []*fakeConn{newFakeConn("a"), newFakeConn("b"), newFakeConn("c")}
	for _, m := range members {
		b.Table().Register("r1", m)
	}

	var wg sync.WaitGroup
	for s := 0; s < 4; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_ = b.Broadcast("r1", map[string]int{"sender": s, "seq": i}, nil)
			}
		}(s)
	}
	wg.Wait()

	ref := members[0].messages()
	if len(ref) != 100 {
		t.Fatalf("Expected 100 messages, got %d", len(ref))
	}
	for _, m := range members[1:] {
		got := m.messages()
		if len(got) != len(ref) {
			t.Fatalf("Member %s got %d messages, want %d", m.ID(), len(got), len(ref))
		}
		for i := range ref {
			if got[i] != ref[i] {
				t.Fatalf("Member %s diverges at %d: got %s, want %s", m.ID(), i, got[i], ref[i])
			}
		}
	}
}

func TestJoinGreetsBeforeAnyBroadcast(t *testing.T) {
	b := NewBroadcaster(NewTable())
	sender := newFakeConn("sender")
	b.Table().Register("r1", sender)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_ = b.Broadcast("r1", map[string]int{"seq": i}, sender)
		}
	}()

	for i := 0; i < 20; i++ {
		joiner := newFakeConn(fmt.Sprintf("joiner-%d", i))
		err := b.Join("r1", joiner, func() error {
			// Give a concurrent broadcast the chance to race the greeting.
			time.Sleep(time.Millisecond)
			return joiner.Send([]byte(`{"type":"init"}`))
		})
		if err != nil {
			t.Fatalf("Join failed: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
		if got := joiner.messages(); len(got) == 0 || got[0] != `{"type":"init"}` {
			t.Fatalf("Joiner %d did not receive init first: %v", i, got)
		}
	}
	close(stop)
	wg.Wait()
}

func TestJoinReturnsGreetError(t *testing.T) {
	b := NewBroadcaster(NewTable())
	joiner := newFakeConn("j")
	joiner.setFail(true)

	err := b.Join("r1", joiner, func() error { return joiner.Send([]byte("x")) })
	if err != errSendFailed {
		t.Fatalf("Expected greet error, got %v", err)
	}
	// The caller owns cleanup; the connection is still registered.
	if got := b.Table().Count("r1"); got != 1 {
		t.Errorf("Count mismatch: got %d, want 1", got)
	}
}

func TestNotifySwallowsPanics(t *testing.T) {
	b := NewBroadcaster(NewTable())
	bad := newFakeConn("bad")
	bad.onSend = func() { panic("boom") }
	b.Table().Register("r1", bad)

	b.Notify("r1", core.NewUserLeft(), nil)

	// The room lock must have been released.
	done := make(chan struct{})
	go func() {
		_ = b.Broadcast("r2", core.NewUserLeft(), nil)
		_ = b.Join("r1", newFakeConn("next"), nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Room lock still held after a panicking send")
	}
}
