package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"recall-backend/internal/model"
	"recall-backend/pkg/logger"
)

// ChatStreamClient drives one conversation against the chat stream
// endpoint. It keeps confirmed history, the optimistic queue of sent but
// unconfirmed user messages, and the in-progress agent reply, reconciling
// them when each stream ends. At most one request is in flight; starting a
// new one aborts the previous.
type ChatStreamClient struct {
	baseURL    string
	httpClient *http.Client
	command    string
	onUpdate   func(model.Message)

	// sendMu serializes whole send attempts; mu guards the state below and
	// is safe to take from other goroutines (Abort, accessors).
	sendMu sync.Mutex
	mu     sync.Mutex

	past       []model.Message
	optimistic []model.Message
	streaming  *model.Message

	cardContext model.CardContext
	isStreaming bool
	isRetrying  bool
	lastErr     error
	lastCursor  string
	// lastFailedContent lets Retry resend the message the failed attempt
	// rolled back.
	lastFailedContent string

	cancel context.CancelFunc
}

type Option func(*ChatStreamClient)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *ChatStreamClient) { c.httpClient = hc }
}

func WithCommand(command string) Option {
	return func(c *ChatStreamClient) { c.command = command }
}

// WithOnUpdate registers a callback fired with a copy of the streaming
// message after every content chunk; this is what drives incremental
// rendering.
func WithOnUpdate(fn func(model.Message)) Option {
	return func(c *ChatStreamClient) { c.onUpdate = fn }
}

func New(baseURL string, cardContext model.CardContext, opts ...Option) *ChatStreamClient {
	c := &ChatStreamClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{},
		command:     "explain",
		cardContext: cardContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetContext swaps the card under discussion, e.g. after a rating advances
// the rotation.
func (c *ChatStreamClient) SetContext(ctx model.CardContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cardContext = ctx
}

// SendMessage sends one user message and blocks until the reply stream
// settles. Blank input is a no-op. Returns the transport error on failure;
// a user-initiated abort is not an error.
func (c *ChatStreamClient) SendMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	c.Abort()
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	userMsg := model.NewUserMessage(text)
	c.optimistic = append(c.optimistic, userMsg)

	allMessages := make([]model.Message, 0, len(c.past)+len(c.optimistic))
	allMessages = append(allMessages, c.past...)
	allMessages = append(allMessages, c.optimistic...)

	streaming := model.NewAgentMessage()
	c.streaming = &streaming
	c.isStreaming = true
	c.lastErr = nil

	reqCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	cardContext := c.cardContext
	command := c.command
	c.mu.Unlock()

	err := c.stream(reqCtx, allMessages, cardContext, command, &streaming)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.isStreaming = false
	c.streaming = nil

	if err != nil && !errors.Is(err, context.Canceled) {
		c.lastErr = err
		c.lastFailedContent = text
		// Roll back only the message that failed to send; earlier pending
		// messages stay queued.
		if len(c.optimistic) > 0 {
			c.optimistic = c.optimistic[:len(c.optimistic)-1]
		}
		return err
	}

	// Success or abort: flush the whole exchange, partial reply included,
	// into confirmed history.
	c.past = append(allMessages, streaming)
	c.optimistic = nil
	c.lastErr = nil
	c.lastFailedContent = ""
	return nil
}

// stream issues the request and consumes the SSE frames, mutating the
// streaming message in place as content arrives.
func (c *ChatStreamClient) stream(ctx context.Context, messages []model.Message, cardContext model.CardContext, command string, streaming *model.Message) error {
	body, err := json.Marshal(model.ChatRequest{
		Messages: messages,
		Command:  command,
		Context:  cardContext,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/stream", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp)
	}

	var streamErr error
	scanner := bufio.NewScanner(resp.Body)
	var dataBuffer strings.Builder

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if strings.HasPrefix(line, "data:") {
			dataBuffer.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		} else if line == "" && dataBuffer.Len() > 0 {
			if err := c.handleFrame(dataBuffer.String(), streaming); err != nil {
				// Terminal error frame; keep reading, the server closes the
				// transport right after it.
				streamErr = err
			}
			dataBuffer.Reset()
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("stream read failed: %w", err)
	}

	return streamErr
}

// handleFrame applies one parsed frame to the streaming message. A frame
// that fails to parse is logged and skipped; it never aborts the stream.
func (c *ChatStreamClient) handleFrame(data string, streaming *model.Message) error {
	var ev model.StreamEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		logger.Warnf("skipping unparseable frame %q: %v", data, err)
		return nil
	}

	switch ev.Type {
	case model.EventMetadata:
		c.mu.Lock()
		streaming.Timestamp = ev.StartedAt
		c.lastCursor = ev.Cursor
		c.mu.Unlock()
	case model.EventContent:
		c.mu.Lock()
		streaming.Content += ev.Content
		snapshot := *streaming
		c.mu.Unlock()
		if c.onUpdate != nil {
			c.onUpdate(snapshot)
		}
	case model.EventDone:
	case model.EventError:
		logger.Errorf("stream error from server: %s", ev.Error)
		return fmt.Errorf("stream failed: %s", ev.Error)
	default:
		logger.Warnf("skipping frame of unknown type %q", ev.Type)
	}
	return nil
}

// Abort cancels the in-flight request, if any. Idempotent and safe to call
// when nothing is streaming.
func (c *ChatStreamClient) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Retry resends the content of the message the last failed attempt rolled
// back. A no-op unless an error is pending.
func (c *ChatStreamClient) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.lastErr == nil {
		c.mu.Unlock()
		return nil
	}
	content := c.lastFailedContent
	if content == "" && len(c.optimistic) > 0 {
		content = c.optimistic[len(c.optimistic)-1].Content
	}
	if content == "" {
		c.mu.Unlock()
		return nil
	}
	c.isRetrying = true
	c.mu.Unlock()

	err := c.SendMessage(ctx, content)

	c.mu.Lock()
	c.isRetrying = false
	c.mu.Unlock()
	return err
}

func errorFromResponse(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}

// PastMessages returns a copy of the confirmed history.
func (c *ChatStreamClient) PastMessages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Message(nil), c.past...)
}

// OptimisticMessages returns a copy of the sent-but-unconfirmed queue.
func (c *ChatStreamClient) OptimisticMessages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Message(nil), c.optimistic...)
}

// StreamingMessage returns a copy of the in-progress reply, or nil.
func (c *ChatStreamClient) StreamingMessage() *model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streaming == nil {
		return nil
	}
	snapshot := *c.streaming
	return &snapshot
}

// Messages is the full conversation view: past ++ optimistic ++ streaming.
func (c *ChatStreamClient) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := make([]model.Message, 0, len(c.past)+len(c.optimistic)+1)
	all = append(all, c.past...)
	all = append(all, c.optimistic...)
	if c.streaming != nil {
		all = append(all, *c.streaming)
	}
	return all
}

func (c *ChatStreamClient) IsStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isStreaming
}

func (c *ChatStreamClient) IsRetrying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isRetrying
}

func (c *ChatStreamClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// LastCursor is the id of the last user message the server acknowledged.
// Kept for correlation and debugging; reconciliation does not depend on it.
func (c *ChatStreamClient) LastCursor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCursor
}
