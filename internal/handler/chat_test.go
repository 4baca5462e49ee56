package handler

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"recall-backend/internal/card"
	"recall-backend/internal/config"
	"recall-backend/internal/model"
	"recall-backend/internal/provider"
	"recall-backend/internal/session"

	"github.com/gin-gonic/gin"
)

var errTest = errors.New("upstream broke")

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router   *gin.Engine
	registry *session.MemoryRegistry
	stub     *provider.StubProvider
	cards    *card.Provider
}

func newTestEnv(t *testing.T, stub *provider.StubProvider) *testEnv {
	t.Helper()

	registry := session.NewMemoryRegistry(stub, config.SessionConfig{
		TTL:             time.Hour,
		CleanupInterval: time.Minute,
		StreamTimeout:   5 * time.Second,
	})
	cards, err := card.NewProvider(card.SeedCards())
	if err != nil {
		t.Fatalf("card provider: %v", err)
	}

	h := NewChatHandler(registry, cards)

	router := gin.New()
	api := router.Group("/api")
	api.POST("/chat/stream", h.StreamChat)
	api.DELETE("/chat/session", h.DeleteSession)
	api.GET("/chat/session/:session_id", h.GetSession)
	api.GET("/cards/next", h.NextCard)
	api.POST("/cards/rate", h.RateCard)
	api.POST("/decks/import", h.ImportDeck)

	return &testEnv{router: router, registry: registry, stub: stub, cards: cards}
}

func validChatBody() []byte {
	body, _ := json.Marshal(model.ChatRequest{
		Messages: []model.Message{
			{ID: "m-1", Role: model.RoleUser, Content: "explain this card", Timestamp: 1},
		},
		Command: "explain",
		Context: model.CardContext{
			Card:       model.Card{ID: "card-1", Front: "front", Back: "back"},
			BackHidden: true,
		},
	})
	return body
}

func postChat(env *testEnv, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func parseFrames(t *testing.T, body string) []model.StreamEvent {
	t.Helper()

	var events []model.StreamEvent
	for _, frame := range strings.Split(strings.TrimSpace(body), "\n\n") {
		if !strings.HasPrefix(frame, "data: ") {
			t.Fatalf("malformed frame: %q", frame)
		}
		var ev model.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &ev); err != nil {
			t.Fatalf("unparseable frame %q: %v", frame, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestStreamChat(t *testing.T) {
	env := newTestEnv(t, &provider.StubProvider{Deltas: []string{"a", "b", "c"}})

	w := postChat(env, validChatBody())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %s", ct)
	}

	events := parseFrames(t, w.Body.String())
	if len(events) != 5 {
		t.Fatalf("expected 5 frames, got %d: %+v", len(events), events)
	}
	if events[0].Type != model.EventMetadata || events[0].Cursor != "m-1" {
		t.Errorf("bad metadata frame: %+v", events[0])
	}

	var content strings.Builder
	for _, ev := range events[1:4] {
		if ev.Type != model.EventContent {
			t.Fatalf("expected content frame, got %s", ev.Type)
		}
		content.WriteString(ev.Content)
	}
	if content.String() != "abc" {
		t.Errorf("content = %q, want abc", content.String())
	}
	if events[4].Type != model.EventDone {
		t.Errorf("expected done frame, got %s", events[4].Type)
	}

	// The prompt that reached the provider carries the hidden-back note.
	if !strings.Contains(env.stub.LastPrompt(), "hidden from the user") {
		t.Error("prompt missing hidden-back instruction")
	}
}

func TestStreamChatRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.ChatRequest)
	}{
		{"empty messages", func(r *model.ChatRequest) { r.Messages = nil }},
		{"last message from agent", func(r *model.ChatRequest) {
			r.Messages = append(r.Messages, model.Message{ID: "m-2", Role: model.RoleAgent, Content: "reply"})
		}},
		{"unknown command", func(r *model.ChatRequest) { r.Command = "frobnicate" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, &provider.StubProvider{Deltas: []string{"x"}})

			var req model.ChatRequest
			if err := json.Unmarshal(validChatBody(), &req); err != nil {
				t.Fatal(err)
			}
			tc.mutate(&req)
			body, _ := json.Marshal(req)

			w := postChat(env, body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}

			var resp map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("non-JSON error body: %s", w.Body.String())
			}
			if resp["error"] == "" {
				t.Error("expected error message in response")
			}

			if env.registry.Len() != 0 {
				t.Errorf("registry size = %d, want 0", env.registry.Len())
			}
			if env.stub.Calls() != 0 {
				t.Errorf("provider called %d times, want 0", env.stub.Calls())
			}
		})
	}
}

func TestStreamChatProviderError(t *testing.T) {
	env := newTestEnv(t, &provider.StubProvider{
		Deltas:    []string{"half"},
		RecvErr:   errTest,
		FailAfter: 1,
	})

	w := postChat(env, validChatBody())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	events := parseFrames(t, w.Body.String())
	last := events[len(events)-1]
	if last.Type != model.EventError || last.Error == "" {
		t.Fatalf("expected terminal error frame, got %+v", last)
	}
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t, &provider.StubProvider{Deltas: []string{"x"}})

	// Run two sessions to completion so the registry holds them.
	postChat(env, validChatBody())
	postChat(env, validChatBody())
	if env.registry.Len() != 2 {
		t.Fatalf("registry size = %d, want 2", env.registry.Len())
	}

	// Missing parameter.
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/chat/session", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing param: status = %d, want 400", w.Code)
	}

	// Unknown id.
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/chat/session?sessionId=nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", w.Code)
	}

	// Clear all.
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/chat/session?sessionId=*", nil))
	if w.Code != http.StatusOK {
		t.Errorf("clear: status = %d, want 200", w.Code)
	}
	if env.registry.Len() != 0 {
		t.Errorf("registry size = %d after clear, want 0", env.registry.Len())
	}
}

func TestCardEndpoints(t *testing.T) {
	env := newTestEnv(t, &provider.StubProvider{})

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/cards/next", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("next: status = %d", w.Code)
	}
	var current model.Card
	if err := json.Unmarshal(w.Body.Bytes(), &current); err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(model.RateRequest{CardID: current.ID, Rating: 3})
	req := httptest.NewRequest(http.MethodPost, "/api/cards/rate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("rate: status = %d, body = %s", w.Code, w.Body.String())
	}
	var next model.Card
	if err := json.Unmarshal(w.Body.Bytes(), &next); err != nil {
		t.Fatal(err)
	}
	if next.ID == current.ID {
		t.Error("rating did not advance the rotation")
	}

	// Stale rating is rejected.
	body, _ = json.Marshal(model.RateRequest{CardID: current.ID, Rating: 3})
	req = httptest.NewRequest(http.MethodPost, "/api/cards/rate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("stale rate: status = %d, want 400", w.Code)
	}
}

func TestImportDeck(t *testing.T) {
	env := newTestEnv(t, &provider.StubProvider{})

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	if _, err := zw.Create("collection.anki2"); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "biology.apkg")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(archive.Bytes()); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/decks/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("import: status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp model.DeckResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Name != "biology" || resp.CardCount == 0 {
		t.Errorf("unexpected deck response: %+v", resp)
	}

	// The imported deck becomes the active rotation.
	if env.cards.Current().ID != resp.Cards[0].ID {
		t.Error("imported deck is not active")
	}
}
