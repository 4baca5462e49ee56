package model

type ChatRequest struct {
	Messages []Message   `json:"messages"`
	Command  string      `json:"command"`
	Context  CardContext `json:"context"`
}

type RateRequest struct {
	CardID string `json:"card_id" binding:"required"`
	Rating int    `json:"rating" binding:"required"`
}
