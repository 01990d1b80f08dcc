// Package chat implements the per-message orchestration flow: session
// resolution, guardrails, routing, context assembly, generation and
// persistence of both turns.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/storechat/storechat/internal/routing"
	"github.com/storechat/storechat/internal/store"
	"github.com/storechat/storechat/pkg/contracts"
	"github.com/storechat/storechat/pkg/models"
)

// refusalAnswer is returned for messages the guardrails block.
const refusalAnswer = "I can't help with that request. Please rephrase your question about products, orders, or the knowledge base."

// Options tune the orchestrator.
type Options struct {
	HistoryLimit int     // messages replayed into the prompt, default models.MaxHistoryMessages
	SearchTopK   int     // document chunks fetched per question, default 5
	MinScore     float64 // below this best-hit score the web fallback kicks in
	WebEnabled   bool
}

// EventSink receives stream events in order. Returning an error aborts
// the stream.
type EventSink func(models.StreamEvent) error

// Orchestrator drives one chat turn end to end.
type Orchestrator struct {
	store  store.Store
	router *routing.Router
	gen    contracts.Generator
	docs   contracts.DocumentIndex
	web    contracts.WebSearcher // nil when disabled
	screen contracts.InputScreen
	opts   Options
}

func New(st store.Store, router *routing.Router, gen contracts.Generator, docs contracts.DocumentIndex, web contracts.WebSearcher, screen contracts.InputScreen, opts Options) *Orchestrator {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = models.MaxHistoryMessages
	}
	if opts.SearchTopK <= 0 {
		opts.SearchTopK = 5
	}
	return &Orchestrator{store: st, router: router, gen: gen, docs: docs, web: web, screen: screen, opts: opts}
}

// turn is the prepared state shared by Handle and HandleStream.
type turn struct {
	session     *models.ChatSession
	history     []models.Message // prior turns, oldest first, without the new message
	instruction string
	route       models.RouteKind
	resolution  *models.SQLResolution
	sources     []models.SearchHit
	blocked     bool
}

// Handle answers one message in a blocking call.
func (o *Orchestrator) Handle(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	t, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	answer := refusalAnswer
	if !t.blocked {
		result, err := o.gen.Generate(ctx, contracts.GenerateRequest{
			System:   t.instruction,
			Messages: append(t.history, models.Message{Role: models.RoleUser, Content: req.Message}),
		})
		if err != nil {
			return nil, fmt.Errorf("generate answer: %w", err)
		}
		answer = result.Text
	}

	if err := o.persistAssistant(ctx, t, answer); err != nil {
		return nil, err
	}

	resp := &models.ChatResponse{
		SessionID: t.session.ID,
		Answer:    answer,
		Route:     t.route,
		Sources:   t.sources,
	}
	if t.resolution != nil {
		resp.SQL = t.resolution.SQL
		resp.Resolved = t.resolution.Resolved
	}
	return resp, nil
}

// HandleStream answers one message as an event stream: the session id
// first, then deltas, then exactly one done or error event. The assistant
// turn is persisted only after a complete stream.
func (o *Orchestrator) HandleStream(ctx context.Context, req models.ChatRequest, sink EventSink) error {
	t, err := o.prepare(ctx, req)
	if err != nil {
		return err
	}
	if err := sink(models.StreamEvent{SessionID: t.session.ID}); err != nil {
		return err
	}

	if t.blocked {
		if err := sink(models.StreamEvent{Delta: refusalAnswer}); err != nil {
			return err
		}
		if err := o.persistAssistant(ctx, t, refusalAnswer); err != nil {
			return err
		}
		return sink(models.StreamEvent{Done: true})
	}

	result, err := o.gen.Stream(ctx, contracts.GenerateRequest{
		System:   t.instruction,
		Messages: append(t.history, models.Message{Role: models.RoleUser, Content: req.Message}),
	}, func(delta string) error {
		return sink(models.StreamEvent{Delta: delta})
	})
	if err != nil {
		// Partial output is already on the wire; report and persist nothing.
		log.Error().Err(err).Str("session", t.session.ID).Msg("Stream generation failed")
		return sink(models.StreamEvent{Error: "failed to generate a response"})
	}

	if err := o.persistAssistant(ctx, t, result.Text); err != nil {
		return sink(models.StreamEvent{Error: "failed to save the response"})
	}
	return sink(models.StreamEvent{Done: true})
}

// prepare resolves the session, persists the user turn and routes the
// question. Everything after it only generates and persists the answer.
func (o *Orchestrator) prepare(ctx context.Context, req models.ChatRequest) (*turn, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("empty message")
	}

	session, err := o.resolveSession(ctx, req, message)
	if err != nil {
		return nil, err
	}

	userMsg := &models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   message,
		CreatedAt: time.Now(),
	}
	if err := o.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	t := &turn{session: session}
	t.history, err = o.loadHistory(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	verdict, err := o.screen.Screen(ctx, message)
	if err != nil {
		log.Warn().Err(err).Msg("Guardrail screen failed, allowing message")
	} else if verdict.Blocked {
		log.Info().Str("rule", verdict.Rule).Str("session", session.ID).Msg("Message blocked by guardrail")
		t.blocked = true
		t.route = models.RouteConceptual
		return t, nil
	}

	decision := o.router.Route(ctx, message)
	t.route = decision.Kind
	t.resolution = decision.Resolution
	t.instruction = decision.Instruction

	// Custom instructions lose only to an authoritative database answer.
	custom := strings.TrimSpace(req.Instruction)
	if custom == "" {
		custom = strings.TrimSpace(session.CustomInstruction)
	}
	if custom != "" && decision.Kind != models.RouteDatabase {
		t.instruction = custom
	} else if decision.Kind == models.RouteDocument {
		t.instruction = o.documentInstruction(ctx, message, req.WebSearch, t)
	}
	return t, nil
}

// documentInstruction assembles retrieval context. Failures degrade to the
// base instruction instead of failing the turn.
func (o *Orchestrator) documentInstruction(ctx context.Context, message string, forceWeb bool, t *turn) string {
	hits, err := o.docs.Search(ctx, message, o.opts.SearchTopK)
	if err != nil {
		log.Warn().Err(err).Msg("Document search failed, answering from general knowledge")
		hits = nil
	}
	t.sources = hits

	var web []models.WebResult
	lowConfidence := len(hits) == 0 || hits[0].Score < o.opts.MinScore
	if o.web != nil && (forceWeb || (o.opts.WebEnabled && lowConfidence)) {
		web, err = o.web.Search(ctx, message, 2)
		if err != nil {
			log.Warn().Err(err).Msg("Web search failed")
			web = nil
		}
	}

	if len(hits) == 0 && len(web) == 0 {
		return routing.BaseInstruction
	}

	var sb strings.Builder
	sb.WriteString("You are a helpful assistant with access to documents and an e-commerce database.\n\nContext Information:\n")
	for i, h := range hits {
		fmt.Fprintf(&sb, "%d. %s", i+1, h.Chunk.Content)
		if h.Chunk.Source != "" {
			fmt.Fprintf(&sb, " (Source: %s)", h.Chunk.Source)
		}
		sb.WriteString("\n")
	}
	if len(web) > 0 {
		sb.WriteString("\nRecent Information:\n")
		for i, r := range web {
			fmt.Fprintf(&sb, "%d. %s\n   %s\n   Source: %s\n", i+1, r.Title, r.Snippet, r.URL)
		}
	}
	sb.WriteString("\nPlease provide a helpful response based on the available context and your knowledge.")
	return sb.String()
}

// resolveSession reuses a live session or creates a fresh one. A stale
// session id is replaced rather than failed, matching client retry habits.
func (o *Orchestrator) resolveSession(ctx context.Context, req models.ChatRequest, message string) (*models.ChatSession, error) {
	if req.SessionID != "" {
		session, err := o.store.GetSession(ctx, req.SessionID)
		if err == nil {
			return session, nil
		}
		var nf *store.ErrNotFound
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("resolve session: %w", err)
		}
	}

	now := time.Now()
	session := &models.ChatSession{
		ID:                uuid.NewString(),
		Title:             models.DeriveTitle(message),
		CustomInstruction: strings.TrimSpace(req.Instruction),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := o.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	log.Info().Str("session", session.ID).Msg("Session created")
	return session, nil
}

// loadHistory returns the window of prior turns, excluding the user
// message persisted for the current turn.
func (o *Orchestrator) loadHistory(ctx context.Context, sessionID string) ([]models.Message, error) {
	msgs, err := o.store.ListMessages(ctx, sessionID, o.opts.HistoryLimit+1)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(msgs) > 0 {
		msgs = msgs[:len(msgs)-1]
	}
	if len(msgs) > o.opts.HistoryLimit {
		msgs = msgs[len(msgs)-o.opts.HistoryLimit:]
	}
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, models.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// persistAssistant writes the assistant turn, then touches the session, in
// that order so history readers never see a dangling timestamp bump.
func (o *Orchestrator) persistAssistant(ctx context.Context, t *turn, answer string) error {
	msg := &models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: t.session.ID,
		Role:      models.RoleAssistant,
		Content:   answer,
		Route:     t.route,
		CreatedAt: time.Now(),
	}
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("persist assistant message: %w", err)
	}

	t.session.UpdatedAt = time.Now()
	if err := o.store.UpdateSession(ctx, t.session); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}
