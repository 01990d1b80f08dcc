// In-memory Store implementation, used when PostgreSQL is not available
// (local dev, tests). Supports file-based snapshot persistence so
// conversations survive restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/storechat/storechat/pkg/models"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Sessions map[string]*models.ChatSession   `json:"sessions"`
	Messages map[string][]*models.ChatMessage `json:"messages"` // key: session_id, oldest first
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.ChatSession
	messages map[string][]*models.ChatMessage // key: session_id, oldest first

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop
}

// NewMemoryStore creates a new in-memory store.
// If snapshotPath is non-empty, data is persisted to that JSON file after
// every mutation (debounced) and reloaded on startup.
func NewMemoryStore(snapshotPath string) *MemoryStore {
	s := &MemoryStore{
		sessions:     make(map[string]*models.ChatSession),
		messages:     make(map[string][]*models.ChatMessage),
		snapshotPath: snapshotPath,
		saveCh:       make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
	}
	if snapshotPath != "" {
		s.load()
		go s.saveLoop()
	}
	return s
}

// load restores state from the snapshot file, if present.
func (s *MemoryStore) load() {
	data, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.snapshotPath).Msg("Failed to read snapshot")
		}
		return
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Str("path", s.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}
	if snap.Sessions != nil {
		s.sessions = snap.Sessions
	}
	if snap.Messages != nil {
		s.messages = snap.Messages
	}
	log.Info().Int("sessions", len(s.sessions)).Str("path", s.snapshotPath).Msg("Restored chat snapshot")
}

// markDirty schedules a debounced save.
func (s *MemoryStore) markDirty() {
	if s.snapshotPath == "" {
		return
	}
	select {
	case s.saveCh <- struct{}{}:
	default:
	}
}

// saveLoop coalesces bursts of mutations into one write per second.
func (s *MemoryStore) saveLoop() {
	for {
		select {
		case <-s.doneCh:
			return
		case <-s.saveCh:
			time.Sleep(time.Second)
			// Drain anything queued while sleeping.
			select {
			case <-s.saveCh:
			default:
			}
			s.save()
		}
	}
}

func (s *MemoryStore) save() {
	s.mu.RLock()
	snap := snapshot{Sessions: s.sessions, Messages: s.messages}
	data, err := json.Marshal(&snap)
	s.mu.RUnlock()
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.snapshotPath), 0o755); err != nil {
		log.Error().Err(err).Msg("Failed to create snapshot directory")
		return
	}
	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Error().Err(err).Msg("Failed to write snapshot")
		return
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		log.Error().Err(err).Msg("Failed to replace snapshot")
	}
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (*models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "session", Key: id}
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, session *models.ChatSession) error {
	s.mu.Lock()
	cp := *session
	s.sessions[session.ID] = &cp
	s.mu.Unlock()
	s.markDirty()
	return nil
}

func (s *MemoryStore) UpdateSession(_ context.Context, session *models.ChatSession) error {
	s.mu.Lock()
	if _, ok := s.sessions[session.ID]; !ok {
		s.mu.Unlock()
		return &ErrNotFound{Entity: "session", Key: session.ID}
	}
	cp := *session
	s.sessions[session.ID] = &cp
	s.mu.Unlock()
	s.markDirty()
	return nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return &ErrNotFound{Entity: "session", Key: id}
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	s.mu.Unlock()
	s.markDirty()
	return nil
}

func (s *MemoryStore) ListSessions(_ context.Context, limit int) ([]models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ChatSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteSessionsIdleSince(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	swept := 0
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			delete(s.messages, id)
			swept++
		}
	}
	s.mu.Unlock()
	if swept > 0 {
		s.markDirty()
	}
	return swept, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg *models.ChatMessage) error {
	s.mu.Lock()
	if _, ok := s.sessions[msg.SessionID]; !ok {
		s.mu.Unlock()
		return &ErrNotFound{Entity: "session", Key: msg.SessionID}
	}
	cp := *msg
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], &cp)
	s.mu.Unlock()
	s.markDirty()
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, &ErrNotFound{Entity: "session", Key: sessionID}
	}
	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, *m)
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close stops background goroutines and flushes a final snapshot.
func (s *MemoryStore) Close() error {
	close(s.doneCh)
	if s.snapshotPath != "" {
		s.save()
	}
	return nil
}
