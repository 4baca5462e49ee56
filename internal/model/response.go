package model

// StreamEvent is one frame of the chat response stream, serialized as
// `data: <json>\n\n`. Exactly one payload shape is meaningful per type:
// metadata carries StartedAt+Cursor, content carries Content, error carries
// Error, done carries nothing.
type StreamEvent struct {
	Type      string `json:"type"`
	StartedAt int64  `json:"startedAt,omitempty"`
	Cursor    string `json:"cursor,omitempty"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
}

const (
	EventMetadata = "metadata"
	EventContent  = "content"
	EventDone     = "done"
	EventError    = "error"
)

func MetadataEvent(startedAt int64, cursor string) StreamEvent {
	return StreamEvent{Type: EventMetadata, StartedAt: startedAt, Cursor: cursor}
}

func ContentEvent(content string) StreamEvent {
	return StreamEvent{Type: EventContent, Content: content}
}

func DoneEvent() StreamEvent {
	return StreamEvent{Type: EventDone}
}

func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Error: message}
}

// SessionResponse is the admin view of a stream session.
type SessionResponse struct {
	SessionID    string `json:"session_id"`
	Status       string `json:"status"`
	StartedAt    int64  `json:"started_at"`
	MessageCount int    `json:"message_count"`
}

// DeckResponse summarizes an imported deck.
type DeckResponse struct {
	Name      string `json:"name"`
	CardCount int    `json:"card_count"`
	Cards     []Card `json:"cards"`
}
