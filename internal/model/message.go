package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Message is one turn of a conversation. Timestamps are unix milliseconds.
// A message is immutable once confirmed; the in-flight agent reply is the
// only message whose content grows.
type Message struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

func NewUserMessage(content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewAgentMessage returns an empty agent reply ready to accumulate deltas.
func NewAgentMessage() Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      RoleAgent,
		Timestamp: time.Now().UnixMilli(),
	}
}
