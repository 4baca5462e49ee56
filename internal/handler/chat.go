package handler

import (
	"bytes"
	"io"
	"net/http"

	"recall-backend/internal/card"
	"recall-backend/internal/model"
	"recall-backend/internal/session"
	"recall-backend/internal/utils"
	"recall-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	registry session.Registry
	cards    *card.Provider
}

func NewChatHandler(registry session.Registry, cards *card.Provider) *ChatHandler {
	return &ChatHandler{
		registry: registry,
		cards:    cards,
	}
}

// StreamChat validates the request, starts a stream session and copies its
// events onto the response as SSE frames. All validation failures happen
// before any session exists.
func (h *ChatHandler) StreamChat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.registry.CreateAndStart(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger.Debugf("streaming session %s (command=%s, %d messages)", sess.ID, req.Command, len(req.Messages))

	sseWriter := utils.NewSSEWriter(c.Writer)
	for ev := range sess.Events() {
		if err := sseWriter.WriteJSON(ev); err != nil {
			// Client went away; the session context is tied to the request
			// and unwinds on its own.
			logger.Warnf("session %s: failed to write SSE frame: %v", sess.ID, err)
			return
		}
	}
}

// DeleteSession handles the admin escape hatch: a specific sessionId deletes
// one session, "*" clears all of them.
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId query parameter is required"})
		return
	}

	if sessionID == "*" {
		n := h.registry.Clear()
		c.JSON(http.StatusOK, gin.H{"cleared": n})
		return
	}

	if !h.registry.Delete(sessionID) {
		c.JSON(http.StatusNotFound, gin.H{"error": session.ErrSessionNotFound.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "session deleted"})
}

func (h *ChatHandler) GetSession(c *gin.Context) {
	sess, ok := h.registry.Get(c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": session.ErrSessionNotFound.Error()})
		return
	}

	c.JSON(http.StatusOK, model.SessionResponse{
		SessionID:    sess.ID,
		Status:       string(sess.Status()),
		StartedAt:    sess.StartedAt,
		MessageCount: len(sess.Request.Messages),
	})
}

func (h *ChatHandler) NextCard(c *gin.Context) {
	c.JSON(http.StatusOK, h.cards.Current())
}

func (h *ChatHandler) RateCard(c *gin.Context) {
	var req model.RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	next, err := h.cards.Rate(req.CardID, req.Rating)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, next)
}

// ImportDeck accepts an APKG upload, parses it and makes it the active deck.
func (h *ChatHandler) ImportDeck(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file upload is required"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	deck, err := card.ImportAPKG(bytes.NewReader(data), int64(len(data)), fileHeader.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.cards.LoadDeck(deck.Cards); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.DeckResponse{
		Name:      deck.Name,
		CardCount: len(deck.Cards),
		Cards:     deck.Cards,
	})
}
