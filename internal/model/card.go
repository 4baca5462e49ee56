package model

type Card struct {
	ID    string `json:"id"`
	Front string `json:"front"`
	Back  string `json:"back"`
}

// CardContext is the card the conversation is about, as seen by the learner
// at request time. Read-only to the chat core.
type CardContext struct {
	Card       Card `json:"card"`
	BackHidden bool `json:"backHidden"`
}
