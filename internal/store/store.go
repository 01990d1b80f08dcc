// Package store provides chat persistence and commerce-schema access.
// Handlers and the orchestrator depend on the Store interface, so the
// in-memory implementation (dev, tests) and PostgreSQL (production) are
// interchangeable.
package store

import (
	"context"
	"time"

	"github.com/storechat/storechat/pkg/models"
)

// Store is the chat persistence interface.
type Store interface {
	SessionStore
	MessageStore

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// SessionStore manages conversation sessions.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	CreateSession(ctx context.Context, session *models.ChatSession) error
	UpdateSession(ctx context.Context, session *models.ChatSession) error

	// DeleteSession removes the session and, cascading, its messages.
	DeleteSession(ctx context.Context, id string) error

	// ListSessions returns sessions newest-first.
	ListSessions(ctx context.Context, limit int) ([]models.ChatSession, error)

	// DeleteSessionsIdleSince removes sessions not updated since cutoff
	// and returns how many were swept.
	DeleteSessionsIdleSince(ctx context.Context, cutoff time.Time) (int, error)
}

// MessageStore manages the ordered, immutable message log of a session.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error

	// ListMessages returns a session's messages oldest-first. limit <= 0
	// means all; otherwise the most recent limit messages are returned,
	// still oldest-first.
	ListMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
}

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
