package models

import (
	"strings"
	"time"
)

// ── Chat Sessions ───────────────────────────────────────────

// MaxHistoryMessages is the conversation window handed to the model.
// Older messages stay persisted but are not replayed into the prompt.
const MaxHistoryMessages = 10

// TitleMaxLen caps derived session titles.
const TitleMaxLen = 50

// ChatSession is one persistent conversation.
type ChatSession struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	CustomInstruction string    `json:"custom_instruction,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DeriveTitle builds a session title from the first user message.
func DeriveTitle(firstUserMessage string) string {
	t := strings.TrimSpace(firstUserMessage)
	if t == "" {
		return "New conversation"
	}
	if len(t) > TitleMaxLen {
		t = strings.TrimSpace(t[:TitleMaxLen]) + "…"
	}
	return t
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single persisted turn in a session.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Route     RouteKind `json:"route,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a role/content pair as sent to an LLM driver.
// Distinct from ChatMessage: no identity, no persistence.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ── Chat API ────────────────────────────────────────────────

// ChatRequest is the inbound payload for /chat and /chat/stream.
type ChatRequest struct {
	SessionID   string `json:"session_id,omitempty"`
	Message     string `json:"message"`
	Instruction string `json:"instruction,omitempty"`
	WebSearch   bool   `json:"web_search,omitempty"`
}

// ChatResponse is the blocking /chat answer.
type ChatResponse struct {
	SessionID string      `json:"session_id"`
	Answer    string      `json:"answer"`
	Route     RouteKind   `json:"route"`
	SQL       string      `json:"sql,omitempty"`
	Resolved  bool        `json:"resolved"`
	Sources   []SearchHit `json:"sources,omitempty"`
}

// StreamEvent is one NDJSON line on /chat/stream.
// Exactly one of the fields is set per event. The first event of every
// stream carries SessionID; the last carries Done or Error.
type StreamEvent struct {
	SessionID string `json:"session_id,omitempty"`
	Delta     string `json:"delta,omitempty"`
	Done      bool   `json:"done,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ── Routing ─────────────────────────────────────────────────

// RouteKind classifies what a question is really asking for.
type RouteKind string

const (
	// RouteConceptual is a definitional question answered from model knowledge.
	RouteConceptual RouteKind = "conceptual"
	// RouteBusiness is strategy/advice phrasing with no data need.
	RouteBusiness RouteKind = "business"
	// RouteDatabase needs live numbers from the commerce schema.
	RouteDatabase RouteKind = "database"
	// RouteDocument is the default retrieval-augmented path.
	RouteDocument RouteKind = "document"
)

// ── Complexity ──────────────────────────────────────────────

// ComplexityLevel selects the NL2SQL strategy for a question.
type ComplexityLevel string

const (
	ComplexityLow       ComplexityLevel = "low"
	ComplexityMedium    ComplexityLevel = "medium"
	ComplexityHigh      ComplexityLevel = "high"
	ComplexityUltraHigh ComplexityLevel = "ultra-high"
)

// ComplexityScore is the classifier verdict for one question.
type ComplexityScore struct {
	Score   int             `json:"score"`
	Level   ComplexityLevel `json:"level"`
	Factors []string        `json:"factors,omitempty"`
}

// ── SQL Resolution ──────────────────────────────────────────

// Resolution strategies, in escalation order.
const (
	StrategyAgent   = "agent"
	StrategyDirect  = "direct"
	StrategyPattern = "pattern"
)

// QueryResult holds rows read back from a validated SELECT.
type QueryResult struct {
	Columns   []string        `json:"columns"`
	Rows      [][]interface{} `json:"rows"`
	RowCount  int             `json:"row_count"`
	Truncated bool            `json:"truncated,omitempty"`
	Elapsed   time.Duration   `json:"elapsed,omitempty"`
}

// SingleValue returns the lone cell of a 1x1 result, if that is what this is.
func (r *QueryResult) SingleValue() (interface{}, bool) {
	if r == nil || len(r.Rows) != 1 || len(r.Rows[0]) != 1 {
		return nil, false
	}
	return r.Rows[0][0], true
}

// SQLResolution is the outcome of the NL2SQL pipeline for one question.
type SQLResolution struct {
	SQL      string       `json:"sql,omitempty"`
	Answer   string       `json:"answer"`
	Table    string       `json:"table,omitempty"`
	Strategy string       `json:"strategy"`
	Resolved bool         `json:"resolved"`
	Result   *QueryResult `json:"result,omitempty"`
	Attempts int          `json:"attempts"`
}

// ── Commerce Schema ─────────────────────────────────────────

// ColumnSchema describes one column as shown to the model.
type ColumnSchema struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// ForeignKey records a column referencing another table.
type ForeignKey struct {
	Column     string `json:"column"`
	RefTable   string `json:"ref_table"`
	RefColumn  string `json:"ref_column"`
}

// TableSchema describes one commerce table.
type TableSchema struct {
	Name        string         `json:"name"`
	Columns     []ColumnSchema `json:"columns"`
	PrimaryKey  []string       `json:"primary_key,omitempty"`
	ForeignKeys []ForeignKey   `json:"foreign_keys,omitempty"`
}

// DatabaseSchema is the introspected commerce schema.
type DatabaseSchema struct {
	Tables []TableSchema `json:"tables"`
}

// Table looks up a table by name. Returns nil when absent.
func (s *DatabaseSchema) Table(name string) *TableSchema {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// ── Documents ───────────────────────────────────────────────

// Document is an ingested knowledge-base entry before chunking.
type Document struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Source    string            `json:"source,omitempty"`
	Category  string            `json:"category,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// DocChunk is one embedded slice of a document in the vector store.
type DocChunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Content    string            `json:"content"`
	Source     string            `json:"source,omitempty"`
	Category   string            `json:"category,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Embedding  []float64         `json:"-"`
	CreatedAt  time.Time         `json:"created_at"`
}

// SearchHit is a scored chunk returned by vector search.
type SearchHit struct {
	Chunk DocChunk `json:"chunk"`
	Score float64  `json:"score"`
}

// ── Web Search ──────────────────────────────────────────────

// WebResult is one hit from the instant-answer API.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// ── Guardrails ──────────────────────────────────────────────

// ScreenVerdict is the input-guardrail decision for one message.
type ScreenVerdict struct {
	Blocked bool   `json:"blocked"`
	Rule    string `json:"rule,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
