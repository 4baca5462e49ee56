package session

import "errors"

var (
	ErrNoMessages         = errors.New("no messages provided")
	ErrLastMessageNotUser = errors.New("last message must be from user")
	ErrSessionNotFound    = errors.New("session not found")
)
