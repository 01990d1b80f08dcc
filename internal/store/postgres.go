package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/storechat/storechat/pkg/models"
)

// PostgresStore implements Store and contracts.CommerceReader against one
// PostgreSQL database: chat persistence in its own tables, read-only query
// access to the commerce schema alongside them.
type PostgresStore struct {
	pool         *pgxpool.Pool
	rowLimit     int
	queryTimeout time.Duration
}

// PostgresOptions tune the read path of ExecuteSelect.
type PostgresOptions struct {
	MaxConnections int
	RowLimit       int           // rows returned per query before truncation
	QueryTimeout   time.Duration // per-statement deadline
}

// NewPostgresStore connects, pings and migrates the chat tables.
func NewPostgresStore(ctx context.Context, connURL string, opts PostgresOptions) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if opts.MaxConnections > 0 {
		cfg.MaxConns = int32(opts.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	if opts.RowLimit <= 0 {
		opts.RowLimit = 100
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 15 * time.Second
	}

	s := &PostgresStore{pool: pool, rowLimit: opts.RowLimit, queryTimeout: opts.QueryTimeout}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	log.Info().Int("row_limit", opts.RowLimit).Msg("postgres store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS chat_sessions (
			id                 TEXT PRIMARY KEY,
			title              TEXT NOT NULL DEFAULT '',
			custom_instruction TEXT NOT NULL DEFAULT '',
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS chat_messages (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES chat_sessions (id) ON DELETE CASCADE,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			route      TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages (session_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_chat_sessions_updated ON chat_sessions (updated_at);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// ─── Sessions ────────────────────────────────────────────────

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, title, custom_instruction, created_at, updated_at
		FROM chat_sessions WHERE id = $1`, id)

	var sess models.ChatSession
	if err := row.Scan(&sess.ID, &sess.Title, &sess.CustomInstruction, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, &ErrNotFound{Entity: "session", Key: id}
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, session *models.ChatSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_sessions (id, title, custom_instruction, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.Title, session.CustomInstruction, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateSession(ctx context.Context, session *models.ChatSession) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chat_sessions SET title = $2, custom_instruction = $3, updated_at = $4
		WHERE id = $1`,
		session.ID, session.Title, session.CustomInstruction, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "session", Key: session.ID}
	}
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "session", Key: id}
	}
	return nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, limit int) ([]models.ChatSession, error) {
	q := `SELECT id, title, custom_instruction, created_at, updated_at
		FROM chat_sessions ORDER BY updated_at DESC`
	args := []interface{}{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.ChatSession
	for rows.Next() {
		var sess models.ChatSession
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CustomInstruction, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteSessionsIdleSince(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ─── Messages ────────────────────────────────────────────────

func (s *PostgresStore) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, route, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, string(msg.Route), msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	// Select the most recent window, then flip back to oldest-first.
	q := `SELECT id, session_id, role, content, route, created_at
		FROM chat_messages WHERE session_id = $1 ORDER BY created_at DESC`
	args := []interface{}{sessionID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		var route string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &route, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Route = models.RouteKind(route)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ─── Commerce reads ──────────────────────────────────────────

// ExecuteSelect runs a validated read-only statement under the query
// timeout and caps the number of rows it materializes. Validation is the
// caller's job; this layer only enforces limits.
func (s *PostgresStore) ExecuteSelect(ctx context.Context, sql string) (*models.QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("execute select: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = string(f.Name)
	}

	result := &models.QueryResult{Columns: cols}
	for rows.Next() {
		if result.RowCount >= s.rowLimit {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		result.Rows = append(result.Rows, values)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// Schema introspects the public commerce tables for prompt building.
// Chat persistence tables are excluded so the model never queries them.
func (s *PostgresStore) Schema(ctx context.Context) (*models.DatabaseSchema, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT table_name, column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = 'public'
		  AND table_name NOT IN ('chat_sessions', 'chat_messages')
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}
	defer rows.Close()

	var order []string
	byName := map[string]*models.TableSchema{}
	for rows.Next() {
		var table string
		var col models.ColumnSchema
		if err := rows.Scan(&table, &col.Name, &col.Type, &col.Nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		ts, ok := byName[table]
		if !ok {
			ts = &models.TableSchema{Name: table}
			byName[table] = ts
			order = append(order, table)
		}
		ts.Columns = append(ts.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadKeys(ctx, byName); err != nil {
		return nil, err
	}

	schema := &models.DatabaseSchema{Tables: make([]models.TableSchema, 0, len(order))}
	for _, name := range order {
		schema.Tables = append(schema.Tables, *byName[name])
	}
	return schema, nil
}

// loadKeys fills primary and foreign keys from key_column_usage.
func (s *PostgresStore) loadKeys(ctx context.Context, tables map[string]*models.TableSchema) error {
	pkRows, err := s.pool.Query(ctx, `
		SELECT tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = 'public' AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY kcu.ordinal_position`)
	if err != nil {
		return fmt.Errorf("introspect primary keys: %w", err)
	}
	defer pkRows.Close()
	for pkRows.Next() {
		var table, col string
		if err := pkRows.Scan(&table, &col); err != nil {
			return fmt.Errorf("scan primary key: %w", err)
		}
		if ts, ok := tables[table]; ok {
			ts.PrimaryKey = append(ts.PrimaryKey, col)
		}
	}
	if err := pkRows.Err(); err != nil {
		return err
	}

	fkRows, err := s.pool.Query(ctx, `
		SELECT tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
		WHERE tc.table_schema = 'public' AND tc.constraint_type = 'FOREIGN KEY'`)
	if err != nil {
		return fmt.Errorf("introspect foreign keys: %w", err)
	}
	defer fkRows.Close()
	for fkRows.Next() {
		var table string
		var fk models.ForeignKey
		if err := fkRows.Scan(&table, &fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return fmt.Errorf("scan foreign key: %w", err)
		}
		if ts, ok := tables[table]; ok {
			ts.ForeignKeys = append(ts.ForeignKeys, fk)
		}
	}
	return fkRows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
