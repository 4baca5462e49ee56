package prompt

import (
	"fmt"
	"strings"

	"recall-backend/internal/model"
)

// ErrUnknownCommand rejects a request before the completion provider is
// ever contacted.
var ErrUnknownCommand = fmt.Errorf("unknown command")

const systemInstruction = "You are a helpful assistant that can answer questions about flashcards."

const (
	backHiddenNote  = "The back of the card is currently hidden from the user. Do not reveal the information directly unless the user asks for it."
	backVisibleNote = "The back of the card is currently visible to the user."
)

type commandEntry struct {
	instruction string
	// backSensitive commands get the hidden/visible note appended so the
	// assistant knows whether it may quote the back of the card.
	backSensitive bool
}

var commands = map[string]commandEntry{
	"explain": {
		instruction:   "You've been asked to help the user understand the card.",
		backSensitive: true,
	},
	"grade": {
		instruction:   "The user is submitting an answer to the card. Grade it, explain what was right or wrong, and recommend a recall difficulty.",
		backSensitive: true,
	},
	"answer": {
		instruction:   "The user is submitting an answer to the card. Give feedback on the answer.",
		backSensitive: true,
	},
}

// Known reports whether command is part of the closed command set.
func Known(command string) bool {
	_, ok := commands[command]
	return ok
}

// Build assembles the single prompt string sent to the completion provider:
// system instruction, command instruction, card context, back visibility
// note, then the transcript as "role: content" lines. Pure and
// deterministic; an unknown command fails the whole request.
func Build(messages []model.Message, ctx model.CardContext, command string) (string, error) {
	entry, ok := commands[command]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}

	var b strings.Builder
	b.WriteString(systemInstruction)
	b.WriteString("\n")
	b.WriteString(entry.instruction)
	b.WriteString("\n")
	b.WriteString("Context:\nCard:\nFront:\n")
	b.WriteString(ctx.Card.Front)
	b.WriteString("\n---\nBack:\n")
	b.WriteString(ctx.Card.Back)
	b.WriteString("\n")

	if entry.backSensitive {
		if ctx.BackHidden {
			b.WriteString(backHiddenNote)
		} else {
			b.WriteString(backVisibleNote)
		}
		b.WriteString("\n")
	}

	b.WriteString("Conversation:\n")
	for _, msg := range messages {
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}

	return b.String(), nil
}
