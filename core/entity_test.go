package core

import (
	"encoding/json"
	"testing"
)

func TestNewRoomID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRoomID()
		if len(id) != 8 {
			t.Fatalf("NewRoomID() length = %d, want 8", len(id))
		}
		if seen[id] {
			t.Fatalf("NewRoomID() returned duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestNewRoom_DefaultLanguage(t *testing.T) {
	room := NewRoom("")
	if room.Language != DefaultLanguage {
		t.Errorf("Language = %q, want %q", room.Language, DefaultLanguage)
	}
	if room.CodeContent != "" {
		t.Errorf("CodeContent = %q, want empty", room.CodeContent)
	}
	if room.CreatedAt.IsZero() || !room.CreatedAt.Equal(room.UpdatedAt) {
		t.Errorf("timestamps not initialised: %v / %v", room.CreatedAt, room.UpdatedAt)
	}

	if got := NewRoom("go").Language; got != "go" {
		t.Errorf("Language = %q, want go", got)
	}
}

func TestDecodeInbound(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"type":"code_update","code":"print(1)","sender_id":"A"}`))
	if err != nil {
		t.Fatalf("DecodeInbound() failed: %v", err)
	}
	if in.Type != TypeCodeUpdate || in.Code != "print(1)" || string(in.Sender()) != `"A"` {
		t.Errorf("unexpected decode result: %+v", in)
	}
	if in.CursorPosition != nil {
		t.Errorf("CursorPosition = %v, want nil", *in.CursorPosition)
	}

	if _, err := DecodeInbound([]byte(`{not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
	if _, err := DecodeInbound([]byte(`[1,2,3]`)); err == nil {
		t.Error("expected error for non-object payload")
	}
}

func TestCodeUpdateWireFormat(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"type":"code_update","code":"print(1)","sender_id":"A"}`))
	if err != nil {
		t.Fatalf("DecodeInbound() failed: %v", err)
	}

	raw, err := json.Marshal(NewCodeUpdate(in))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"type":"code_update","code":"print(1)","cursor_position":null,"sender_id":"A"}`
	if string(raw) != want {
		t.Errorf("wire format = %s, want %s", raw, want)
	}
}

func TestCursorUpdateDefaultsSender(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"type":"cursor_update","cursor_position":7}`))
	if err != nil {
		t.Fatalf("DecodeInbound() failed: %v", err)
	}

	raw, err := json.Marshal(NewCursorUpdate(in))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"type":"cursor_update","cursor_position":7,"sender_id":"unknown"}`
	if string(raw) != want {
		t.Errorf("wire format = %s, want %s", raw, want)
	}
}

func TestSenderPassthrough(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"absent", `{"type":"cursor_update","cursor_position":1}`, `{"type":"cursor_update","cursor_position":1,"sender_id":"unknown"}`},
		{"explicit null", `{"type":"cursor_update","cursor_position":1,"sender_id":null}`, `{"type":"cursor_update","cursor_position":1,"sender_id":null}`},
		{"number", `{"type":"cursor_update","cursor_position":1,"sender_id":42}`, `{"type":"cursor_update","cursor_position":1,"sender_id":42}`},
		{"string", `{"type":"cursor_update","cursor_position":1,"sender_id":"B"}`, `{"type":"cursor_update","cursor_position":1,"sender_id":"B"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := DecodeInbound([]byte(tt.frame))
			if err != nil {
				t.Fatalf("DecodeInbound() failed: %v", err)
			}
			raw, err := json.Marshal(NewCursorUpdate(in))
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(raw) != tt.want {
				t.Errorf("wire format = %s, want %s", raw, tt.want)
			}
		})
	}
}

// Cursor positions are integers or null. Anything else rejects the frame.
func TestDecodeInboundRejectsNonIntegerCursor(t *testing.T) {
	for _, frame := range []string{
		`{"type":"cursor_update","cursor_position":"5"}`,
		`{"type":"cursor_update","cursor_position":1.5}`,
	} {
		if _, err := DecodeInbound([]byte(frame)); err == nil {
			t.Errorf("expected error for %s", frame)
		}
	}
}

func TestInitAndUserLeftWireFormat(t *testing.T) {
	raw, _ := json.Marshal(NewInitMessage(DefaultSnapshot("abc12345")))
	if want := `{"type":"init","code":"","language":"python"}`; string(raw) != want {
		t.Errorf("init = %s, want %s", raw, want)
	}

	raw, _ = json.Marshal(NewUserLeft())
	if want := `{"type":"user_left","message":"A user disconnected"}`; string(raw) != want {
		t.Errorf("user_left = %s, want %s", raw, want)
	}
}
