package card

import (
	"errors"
	"sync"

	"recall-backend/internal/model"
)

var (
	ErrEmptyDeck     = errors.New("deck has no cards")
	ErrStaleCard     = errors.New("rated card is not the current card")
	ErrInvalidRating = errors.New("rating must be between 1 and 4")
)

// Provider walks a deck in order, advancing one card per rating and
// wrapping at the end. Scheduling smarter than a rotation is someone
// else's problem; the chat core only ever sees the current card.
type Provider struct {
	mu    sync.RWMutex
	cards []model.Card
	index int
}

func NewProvider(cards []model.Card) (*Provider, error) {
	if len(cards) == 0 {
		return nil, ErrEmptyDeck
	}
	return &Provider{cards: cards}, nil
}

func (p *Provider) Current() model.Card {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cards[p.index]
}

// Rate consumes a rating for the current card and advances the rotation,
// returning the next card. Rating a card that is no longer current means
// the client is out of sync.
func (p *Provider) Rate(cardID string, rating int) (model.Card, error) {
	if rating < 1 || rating > 4 {
		return model.Card{}, ErrInvalidRating
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cards[p.index].ID != cardID {
		return model.Card{}, ErrStaleCard
	}

	p.index = (p.index + 1) % len(p.cards)
	return p.cards[p.index], nil
}

// LoadDeck replaces the rotation with a freshly imported deck.
func (p *Provider) LoadDeck(cards []model.Card) error {
	if len(cards) == 0 {
		return ErrEmptyDeck
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cards = append([]model.Card(nil), cards...)
	p.index = 0
	return nil
}

// SeedCards is the built-in starter deck.
func SeedCards() []model.Card {
	return []model.Card{
		{ID: "card-1", Front: "What does HTML stand for?", Back: "HyperText Markup Language"},
		{ID: "card-2", Front: "What is the primary purpose of CSS?", Back: "Styling and layout of web pages"},
		{ID: "card-3", Front: "What is a closure in JavaScript?", Back: "A function that has access to variables in its outer scope"},
		{ID: "card-4", Front: "What is the difference between let and var in JavaScript?", Back: "let has block scope, var has function scope"},
		{ID: "card-5", Front: "What is the purpose of the 'use strict' directive?", Back: "To enable strict mode which catches common coding mistakes"},
	}
}
