package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/storechat/storechat/internal/chat"
	"github.com/storechat/storechat/internal/guardrails"
	"github.com/storechat/storechat/internal/routing"
	"github.com/storechat/storechat/internal/store"
	"github.com/storechat/storechat/pkg/contracts"
	"github.com/storechat/storechat/pkg/models"
)

type fakeGen struct{}

func (g *fakeGen) Generate(_ context.Context, req contracts.GenerateRequest) (*contracts.GenerateResult, error) {
	return &contracts.GenerateResult{Text: "generated answer", Driver: "fake", Model: "fake"}, nil
}

func (g *fakeGen) Stream(_ context.Context, req contracts.GenerateRequest, sink contracts.StreamSink) (*contracts.GenerateResult, error) {
	for _, part := range []string{"generated ", "answer"} {
		if err := sink(part); err != nil {
			return nil, err
		}
	}
	return &contracts.GenerateResult{Text: "generated answer", Driver: "fake", Model: "fake"}, nil
}

type fakeDocs struct {
	hits []models.SearchHit
}

func (d *fakeDocs) Ingest(_ context.Context, doc models.Document) (int, error) {
	return 3, nil
}

func (d *fakeDocs) Search(_ context.Context, query string, topK int) ([]models.SearchHit, error) {
	return d.hits, nil
}

type fakeWeb struct{}

func (w *fakeWeb) Search(_ context.Context, query string, limit int) ([]models.WebResult, error) {
	return []models.WebResult{{Title: "Go", URL: "https://go.dev", Snippet: "The Go programming language"}}, nil
}

type fakeCommerce struct{}

func (c *fakeCommerce) ExecuteSelect(_ context.Context, sql string) (*models.QueryResult, error) {
	return nil, store.ErrNoCommerceDatabase
}

func (c *fakeCommerce) Schema(_ context.Context) (*models.DatabaseSchema, error) {
	return &models.DatabaseSchema{Tables: []models.TableSchema{{Name: "products"}}}, nil
}

type fakeVector struct{}

func (v *fakeVector) Kind() string { return "fake" }
func (v *fakeVector) Upsert(_ context.Context, chunks []models.DocChunk) error {
	return nil
}
func (v *fakeVector) Search(_ context.Context, vector []float64, topK int) ([]models.SearchHit, error) {
	return nil, nil
}
func (v *fakeVector) DeleteDocument(_ context.Context, documentID string) error { return nil }
func (v *fakeVector) Count(_ context.Context) (int, error)                      { return 0, nil }
func (v *fakeVector) HealthCheck(_ context.Context) error                       { return nil }

type stubSQL struct{}

func (s *stubSQL) Answer(_ context.Context, question string) *models.SQLResolution {
	return &models.SQLResolution{Answer: "no database configured", Strategy: "none", Resolved: false}
}

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	st := store.NewMemoryStore("")
	t.Cleanup(func() { st.Close() })

	orch := chat.New(st, routing.New(&stubSQL{}), &fakeGen{}, &fakeDocs{}, nil, guardrails.New(), chat.Options{})

	h := &Handlers{
		Store:        st,
		Orchestrator: orch,
		Docs:         &fakeDocs{},
		Web:          &fakeWeb{},
		Commerce:     &fakeCommerce{},
		Vector:       &fakeVector{},
		Version:      "test",
	}

	r := chi.NewRouter()
	r.Get("/healthz", h.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", h.VersionInfo)
		r.Post("/chat", h.Chat)
		r.Post("/chat/stream", h.ChatStream)
		r.Get("/sessions", h.ListSessions)
		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions/{sessionID}/history", h.SessionHistory)
		r.Patch("/sessions/{sessionID}", h.RenameSession)
		r.Delete("/sessions/{sessionID}", h.DeleteSession)
		r.Post("/documents", h.IngestDocument)
		r.Get("/documents/search", h.SearchDocuments)
		r.Get("/search/web", h.WebSearch)
		r.Get("/schema", h.Schema)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, st
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestChatEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/chat", models.ChatRequest{Message: "Hello there"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out models.ChatResponse
	decodeJSON(t, resp, &out)
	if out.Answer != "generated answer" {
		t.Errorf("answer = %q", out.Answer)
	}
	if out.SessionID == "" {
		t.Error("expected a session ID in the response")
	}
}

func TestChatEndpointRejectsEmptyMessage(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/chat", models.ChatRequest{Message: "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChatStreamEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/chat/stream", models.ChatRequest{Message: "Hello there"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type = %q", ct)
	}

	var events []models.StreamEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var ev models.StreamEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("bad event line %q: %v", scanner.Text(), err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("read stream: %v", err)
	}

	if len(events) < 3 {
		t.Fatalf("got %d events, want session, deltas and done", len(events))
	}
	if events[0].SessionID == "" {
		t.Error("first event should carry the session ID")
	}
	last := events[len(events)-1]
	if !last.Done {
		t.Errorf("last event = %+v, want done", last)
	}

	var answer strings.Builder
	for _, ev := range events {
		answer.WriteString(ev.Delta)
	}
	if answer.String() != "generated answer" {
		t.Errorf("reassembled answer = %q", answer.String())
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/sessions", map[string]string{"title": "Returns policy"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created models.ChatSession
	decodeJSON(t, resp, &created)
	if created.ID == "" || created.Title != "Returns policy" {
		t.Fatalf("created = %+v", created)
	}

	resp, err := http.Get(srv.URL + "/api/v1/sessions")
	if err != nil {
		t.Fatal(err)
	}
	var sessions []models.ChatSession
	decodeJSON(t, resp, &sessions)
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}

	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/api/v1/sessions/"+created.ID,
		strings.NewReader(`{"title":"Renamed"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var renamed models.ChatSession
	decodeJSON(t, resp, &renamed)
	if renamed.Title != "Renamed" {
		t.Errorf("title = %q after rename", renamed.Title)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/sessions/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/v1/sessions/" + created.ID + "/history")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("history of deleted session = %d, want 404", resp.StatusCode)
	}
}

func TestSessionHistoryAfterChat(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/chat", models.ChatRequest{Message: "Hello there"})
	var out models.ChatResponse
	decodeJSON(t, resp, &out)

	resp, err := http.Get(srv.URL + "/api/v1/sessions/" + out.SessionID + "/history")
	if err != nil {
		t.Fatal(err)
	}
	var msgs []models.ChatMessage
	decodeJSON(t, resp, &msgs)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want user and assistant", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("roles = %q, %q", msgs[0].Role, msgs[1].Role)
	}
}

func TestRenameSessionRequiresTitle(t *testing.T) {
	srv, st := newTestServer(t)

	session := &models.ChatSession{ID: "s1", Title: "Old"}
	if err := st.CreateSession(context.Background(), session); err != nil {
		t.Fatal(err)
	}

	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/api/v1/sessions/s1",
		strings.NewReader(`{"title":"  "}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestIngestAndSearchDocuments(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/documents", map[string]string{
		"content": "Returns are accepted within 30 days.",
		"source":  "policy.md",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("ingest status = %d, want 201", resp.StatusCode)
	}
	var out struct {
		DocumentID string `json:"document_id"`
		Chunks     int    `json:"chunks"`
	}
	decodeJSON(t, resp, &out)
	if out.DocumentID == "" || out.Chunks != 3 {
		t.Fatalf("ingest response = %+v", out)
	}

	resp, err := http.Get(srv.URL + "/api/v1/documents/search?q=returns")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("search status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/v1/documents/search")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("search without query = %d, want 400", resp.StatusCode)
	}
}

func TestWebSearchEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/search/web?q=golang")
	if err != nil {
		t.Fatal(err)
	}
	var results []models.WebResult
	decodeJSON(t, resp, &results)
	if len(results) != 1 || results[0].Title != "Go" {
		t.Fatalf("results = %+v", results)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/schema")
	if err != nil {
		t.Fatal(err)
	}
	var schema models.DatabaseSchema
	decodeJSON(t, resp, &schema)
	if len(schema.Tables) != 1 || schema.Tables[0].Name != "products" {
		t.Fatalf("schema = %+v", schema)
	}
}

func TestHealthAndVersion(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	var health struct {
		Status string `json:"status"`
	}
	decodeJSON(t, resp, &health)
	if health.Status != "healthy" {
		t.Errorf("status = %q", health.Status)
	}

	resp, err = http.Get(srv.URL + "/api/v1/version")
	if err != nil {
		t.Fatal(err)
	}
	var version struct {
		Version string `json:"version"`
	}
	decodeJSON(t, resp, &version)
	if version.Version != "test" {
		t.Errorf("version = %q", version.Version)
	}
}
