package core

import "encoding/json"

// Message types exchanged over a room connection.
const (
	TypeInit         = "init"
	TypeCodeUpdate   = "code_update"
	TypeCursorUpdate = "cursor_update"
	TypeUserLeft     = "user_left"

	UnknownSender   = "unknown"
	UserLeftMessage = "A user disconnected"
)

type (
	// InitMessage carries the room snapshot to a newly joined connection.
	InitMessage struct {
		Type     string `json:"type"`
		Code     string `json:"code"`
		Language string `json:"language"`
	}

	// CodeUpdate is relayed to every other member after an edit.
	CodeUpdate struct {
		Type           string          `json:"type"`
		Code           string          `json:"code"`
		CursorPosition *int            `json:"cursor_position"`
		SenderID       json.RawMessage `json:"sender_id"`
	}

	// CursorUpdate is relayed without touching the store.
	CursorUpdate struct {
		Type           string          `json:"type"`
		CursorPosition *int            `json:"cursor_position"`
		SenderID       json.RawMessage `json:"sender_id"`
	}

	// UserLeft notifies the remaining members that someone disconnected.
	UserLeft struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}

	// Inbound is the tagged record decoded from a client frame. Fields that a
	// given type does not use are ignored. SenderID keeps the raw value so an
	// explicit null is relayed as null.
	Inbound struct {
		Type           string          `json:"type"`
		Code           string          `json:"code"`
		CursorPosition *int            `json:"cursor_position"`
		SenderID       json.RawMessage `json:"sender_id"`
	}
)

// DecodeInbound parses a client frame. Any JSON object decodes; callers
// dispatch on Type and ignore what they do not recognise.
func DecodeInbound(data []byte) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

var unknownSenderJSON = json.RawMessage(`"` + UnknownSender + `"`)

// Sender returns the sender id as sent, or UnknownSender when the key is absent.
func (in *Inbound) Sender() json.RawMessage {
	if len(in.SenderID) == 0 {
		return unknownSenderJSON
	}
	return in.SenderID
}

func NewInitMessage(room *Room) InitMessage {
	return InitMessage{Type: TypeInit, Code: room.CodeContent, Language: room.Language}
}

func NewCodeUpdate(in *Inbound) CodeUpdate {
	return CodeUpdate{
		Type:           TypeCodeUpdate,
		Code:           in.Code,
		CursorPosition: in.CursorPosition,
		SenderID:       in.Sender(),
	}
}

func NewCursorUpdate(in *Inbound) CursorUpdate {
	return CursorUpdate{
		Type:           TypeCursorUpdate,
		CursorPosition: in.CursorPosition,
		SenderID:       in.Sender(),
	}
}

func NewUserLeft() UserLeft {
	return UserLeft{Type: TypeUserLeft, Message: UserLeftMessage}
}
