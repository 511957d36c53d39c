package collab

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Client → server events.
const (
	EventJoin           = "join-document"
	EventContentChange  = "content-change"
	EventCursorPosition = "cursor-position"
	EventLeave          = "leave-document"
)

// Server → client events.
const (
	EventJoined          = "document-joined"
	EventUserJoined      = "user-joined"
	EventContentUpdated  = "content-updated"
	EventCursorMoved     = "cursor-moved"
	EventUserLeft        = "user-left"
	EventDocumentDeleted = "document-deleted"
	EventError           = "error"
)

// Messages carried by error events.
const (
	MsgDocumentNotFound = "Document not found"
	MsgJoinFailed       = "Failed to join document"
	MsgUpdateFailed     = "Failed to update content"
	MsgInvalidMessage   = "Invalid message"
	MsgRateLimited      = "Rate limit exceeded"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ContentChange struct {
	DocumentID     string          `json:"documentId"`
	Content        string          `json:"content"`
	CursorPosition json.RawMessage `json:"cursorPosition,omitempty"`
}

type CursorPosition struct {
	DocumentID string          `json:"documentId"`
	Position   json.RawMessage `json:"position"`
}

type Joined struct {
	Content     string   `json:"content"`
	ActiveUsers []string `json:"activeUsers"`
}

// Presence is the payload of user-joined and user-left.
type Presence struct {
	UserID      string   `json:"userId"`
	ActiveUsers []string `json:"activeUsers"`
}

type ContentUpdated struct {
	Content        string          `json:"content"`
	UserID         string          `json:"userId"`
	CursorPosition json.RawMessage `json:"cursorPosition,omitempty"`
}

type CursorMoved struct {
	UserID   string          `json:"userId"`
	Position json.RawMessage `json:"position"`
}

type DocumentDeleted struct {
	DocumentID string `json:"documentId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

var errBadPayload = errors.New("malformed payload")

// encode builds a frame. Payloads are plain structs, so Marshal cannot fail.
func encode(event string, data interface{}) []byte {
	raw, _ := json.Marshal(data)
	b, _ := json.Marshal(Envelope{Event: event, Data: raw})
	return b
}

func errorFrame(msg string) []byte {
	return encode(EventError, ErrorPayload{Message: msg})
}

// documentIDOf accepts either a bare JSON string or {"documentId": "..."}.
func documentIDOf(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", errBadPayload
	}
	var id string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &id); err != nil {
			return "", errBadPayload
		}
	} else {
		var obj struct {
			DocumentID string `json:"documentId"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return "", errBadPayload
		}
		id = obj.DocumentID
	}
	if id == "" {
		return "", errBadPayload
	}
	return id, nil
}
