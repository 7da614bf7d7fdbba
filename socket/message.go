package socket

import "encoding/json"

// Client → server events.
const (
	EventJoinDocument  = "join-document"
	EventLeaveDocument = "leave-document"
	EventTextChange    = "text-change"
	EventCursorMove    = "cursor-move"
	EventDocumentSaved = "document-saved"
)

// Server → client events.
const (
	EventActiveUsers = "active-users"
	EventUserJoined  = "user-joined"
	EventUserLeft    = "user-left"
	EventError       = "error"
)

// Message is the wire envelope in both directions. Payload stays opaque
// for relayed events: text deltas pass through untouched.
type Message struct {
	Event      string          `json:"event"`
	DocumentID string          `json:"documentId,omitempty"`
	UserID     string          `json:"userId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type cursorBroadcast struct {
	UserID         string          `json:"userId"`
	CursorPosition json.RawMessage `json:"cursorPosition"`
}

type userLeftBroadcast struct {
	UserID   string `json:"userId"`
	SocketID string `json:"socketId"`
}

type savedNotice struct {
	Message string `json:"message"`
}

type errorNotice struct {
	Message string `json:"message"`
}

func mustEnvelope(event, docID string, payload interface{}) []byte {
	raw, _ := json.Marshal(payload)
	data, _ := json.Marshal(Message{Event: event, DocumentID: docID, Payload: raw})
	return data
}
