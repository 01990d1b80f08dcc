// Package handlers implements the HTTP handlers for the StoreChat API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/storechat/storechat/internal/chat"
	"github.com/storechat/storechat/internal/store"
	"github.com/storechat/storechat/internal/vectorstore"
	"github.com/storechat/storechat/pkg/contracts"
	"github.com/storechat/storechat/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store        store.Store
	Orchestrator *chat.Orchestrator
	Docs         contracts.DocumentIndex
	Web          contracts.WebSearcher // nil when disabled
	Commerce     contracts.CommerceReader
	Vector       vectorstore.Driver
	Version      string
}

// ── Chat ────────────────────────────────────────────────────

func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	resp, err := h.Orchestrator.Handle(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Msg("Chat turn failed")
		respondError(w, http.StatusInternalServerError, "failed to process the message")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// ChatStream answers over NDJSON: one JSON event per line, session_id
// first, then deltas, then a single done or error event.
func (h *Handlers) ChatStream(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	err := h.Orchestrator.HandleStream(r.Context(), req, func(ev models.StreamEvent) error {
		if err := enc.Encode(ev); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are gone; the terminal error event is all we can do.
		log.Error().Err(err).Msg("Chat stream failed before completion")
		enc.Encode(models.StreamEvent{Error: "failed to process the message"})
		flusher.Flush()
	}
}

// ── Sessions ────────────────────────────────────────────────

func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	sessions, err := h.Store.ListSessions(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []models.ChatSession{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

type createSessionRequest struct {
	Title             string `json:"title,omitempty"`
	CustomInstruction string `json:"custom_instruction,omitempty"`
}

func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	now := time.Now()
	session := &models.ChatSession{
		ID:                uuid.NewString(),
		Title:             strings.TrimSpace(req.Title),
		CustomInstruction: strings.TrimSpace(req.CustomInstruction),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if session.Title == "" {
		session.Title = "New conversation"
	}
	if err := h.Store.CreateSession(r.Context(), session); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

func (h *Handlers) SessionHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	msgs, err := h.Store.ListMessages(r.Context(), id, 0)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	respondJSON(w, http.StatusOK, msgs)
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

func (h *Handlers) RenameSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var req renameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}

	session, err := h.Store.GetSession(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	session.Title = strings.TrimSpace(req.Title)
	session.UpdatedAt = time.Now()
	if err := h.Store.UpdateSession(r.Context(), session); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := h.Store.DeleteSession(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "session_id": id})
}

// ── Documents ───────────────────────────────────────────────

type ingestRequest struct {
	ID       string            `json:"id,omitempty"`
	Content  string            `json:"content"`
	Source   string            `json:"source,omitempty"`
	Category string            `json:"category,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (h *Handlers) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "content is required")
		return
	}

	doc := models.Document{
		ID:       req.ID,
		Content:  req.Content,
		Source:   req.Source,
		Category: req.Category,
		Metadata: req.Metadata,
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	chunks, err := h.Docs.Ingest(r.Context(), doc)
	if err != nil {
		log.Error().Err(err).Str("document", doc.ID).Msg("Document ingest failed")
		respondError(w, http.StatusInternalServerError, "failed to ingest document")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"document_id": doc.ID,
		"chunks":      chunks,
	})
}

func (h *Handlers) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	topK := 5
	if v := r.URL.Query().Get("k"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			topK = n
		}
	}

	hits, err := h.Docs.Search(r.Context(), query, topK)
	if err != nil {
		log.Error().Err(err).Msg("Document search failed")
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if hits == nil {
		hits = []models.SearchHit{}
	}
	respondJSON(w, http.StatusOK, hits)
}

// ── Web Search ──────────────────────────────────────────────

func (h *Handlers) WebSearch(w http.ResponseWriter, r *http.Request) {
	if h.Web == nil {
		respondError(w, http.StatusServiceUnavailable, "web search is disabled")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := 5
	if v := r.URL.Query().Get("k"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := h.Web.Search(r.Context(), query, limit)
	if err != nil {
		log.Error().Err(err).Msg("Web search failed")
		respondError(w, http.StatusBadGateway, "web search failed")
		return
	}
	if results == nil {
		results = []models.WebResult{}
	}
	respondJSON(w, http.StatusOK, results)
}

// ── Schema ──────────────────────────────────────────────────

func (h *Handlers) Schema(w http.ResponseWriter, r *http.Request) {
	schema, err := h.Commerce.Schema(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Schema introspection failed")
		respondError(w, http.StatusInternalServerError, "failed to load schema")
		return
	}
	respondJSON(w, http.StatusOK, schema)
}

// ── Health & Version ────────────────────────────────────────

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{}
	status := "healthy"

	if err := h.Store.Ping(r.Context()); err != nil {
		components["store"] = err.Error()
		status = "degraded"
	} else {
		components["store"] = "ok"
	}
	if err := h.Vector.HealthCheck(r.Context()); err != nil {
		components["vectorstore"] = err.Error()
		status = "degraded"
	} else {
		components["vectorstore"] = "ok"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"status":     status,
		"service":    "storechat",
		"components": components,
	})
}

func (h *Handlers) VersionInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
		"service": "storechat",
	})
}

// ── Helpers ─────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondStoreError(w http.ResponseWriter, err error) {
	var nf *store.ErrNotFound
	if errors.As(err, &nf) {
		respondError(w, http.StatusNotFound, nf.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}
