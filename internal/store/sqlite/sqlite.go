package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/personahub/agent-service/internal/model"
	"github.com/personahub/agent-service/internal/store"
)

// Open opens (or creates) a SQLite database at the given path and enables WAL
// journal mode. A single connection avoids SQLITE_BUSY under concurrent writes.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(ON)"
	} else {
		// ensure parent directory exists to avoid SQLITE_CANTOPEN errors
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS personas (
    name_key      TEXT PRIMARY KEY,
    display_name  TEXT NOT NULL,
    personality   TEXT NOT NULL,
    appearance    TEXT NOT NULL DEFAULT '',
    channel_id    TEXT NOT NULL DEFAULT '',
    creation_time TIMESTAMP NOT NULL,
    update_time   TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS generation_settings (
    persona_name TEXT PRIMARY KEY,
    doc          TEXT NOT NULL,
    update_time  TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
    session_id    TEXT PRIMARY KEY,
    persona_name  TEXT NOT NULL,
    user_id       TEXT NOT NULL,
    creation_time TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS session_events (
    session_id    TEXT NOT NULL,
    seq           INTEGER NOT NULL,
    role          TEXT NOT NULL,
    content       TEXT NOT NULL,
    creation_time TIMESTAMP NOT NULL,
    PRIMARY KEY (session_id, seq)
);
CREATE TABLE IF NOT EXISTS channel_sessions (
    channel_id    TEXT PRIMARY KEY,
    persona_name  TEXT NOT NULL,
    session_id    TEXT NOT NULL,
    user_id       TEXT NOT NULL,
    creation_time TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS memories (
    memory_id     TEXT PRIMARY KEY,
    persona_name  TEXT NOT NULL,
    user_id       TEXT,
    content       TEXT NOT NULL,
    creation_time TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_scope ON memories (persona_name, user_id, creation_time DESC);
`

// New opens the database file, ensures the schema exists and returns a store.
func New(path string) (store.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	st, err := NewWithDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// NewWithDB wires a store over an existing connection and applies the schema.
func NewWithDB(db *sql.DB) (store.Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

type sqliteStore struct{ db *sql.DB }

func (s *sqliteStore) Personas() store.Personas               { return &personas{db: s.db} }
func (s *sqliteStore) Settings() store.Settings               { return &settings{db: s.db} }
func (s *sqliteStore) Sessions() store.Sessions               { return &sessions{db: s.db} }
func (s *sqliteStore) ChannelSessions() store.ChannelSessions { return &channelSessions{db: s.db} }
func (s *sqliteStore) Memories() store.Memories               { return &memories{db: s.db} }
func (s *sqliteStore) Close() error                           { return s.db.Close() }

// HealthPing implements health.HealthPinger.
func (s *sqliteStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func mapNoRows(err error) error {
	if err == sql.ErrNoRows {
		return model.ErrNotFound
	}
	return err
}

// --- Personas ---
type personas struct{ db *sql.DB }

func (p *personas) Create(ctx context.Context, m *model.Persona) (*model.Persona, error) {
	var exists int
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM personas WHERE name_key = ?`, m.NameKey).Scan(&exists)
	if err == nil {
		return nil, model.ErrConflict
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	now := time.Now().UTC()
	if _, err := p.db.ExecContext(ctx, `
        INSERT INTO personas (name_key, display_name, personality, appearance, channel_id, creation_time, update_time)
        VALUES (?,?,?,?,?,?,?)
    `, m.NameKey, m.DisplayName, m.Personality, m.Appearance, m.ChannelID, now, now); err != nil {
		return nil, err
	}
	out := *m
	out.CreationTime = now
	out.UpdateTime = now
	return &out, nil
}

func (p *personas) Get(ctx context.Context, nameKey string) (*model.Persona, error) {
	var out model.Persona
	row := p.db.QueryRowContext(ctx, `
        SELECT name_key, display_name, personality, appearance, channel_id, creation_time, update_time
        FROM personas WHERE name_key = ?
    `, nameKey)
	if err := row.Scan(&out.NameKey, &out.DisplayName, &out.Personality, &out.Appearance, &out.ChannelID, &out.CreationTime, &out.UpdateTime); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

func (p *personas) List(ctx context.Context) ([]*model.Persona, error) {
	rows, err := p.db.QueryContext(ctx, `
        SELECT name_key, display_name, personality, appearance, channel_id, creation_time, update_time
        FROM personas ORDER BY name_key
    `)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.Persona
	for rows.Next() {
		var m model.Persona
		if err := rows.Scan(&m.NameKey, &m.DisplayName, &m.Personality, &m.Appearance, &m.ChannelID, &m.CreationTime, &m.UpdateTime); err != nil {
			return nil, err
		}
		res = append(res, &m)
	}
	return res, rows.Err()
}

func (p *personas) Update(ctx context.Context, m *model.Persona) (*model.Persona, error) {
	now := time.Now().UTC()
	res, err := p.db.ExecContext(ctx, `
        UPDATE personas SET display_name = ?, personality = ?, appearance = ?, channel_id = ?, update_time = ? WHERE name_key = ?
    `, m.DisplayName, m.Personality, m.Appearance, m.ChannelID, now, m.NameKey)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrNotFound
	}
	return p.Get(ctx, m.NameKey)
}

func (p *personas) Rename(ctx context.Context, oldKey string, m *model.Persona) (*model.Persona, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var conflict int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM personas WHERE name_key = ?`, m.NameKey).Scan(&conflict)
	if err == nil {
		return nil, model.ErrConflict
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
        UPDATE personas SET name_key = ?, display_name = ?, personality = ?, appearance = ?, channel_id = ?, update_time = ?
        WHERE name_key = ?
    `, m.NameKey, m.DisplayName, m.Personality, m.Appearance, m.ChannelID, now, oldKey)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `UPDATE generation_settings SET persona_name = ? WHERE persona_name = ?`, m.NameKey, oldKey); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET persona_name = ? WHERE persona_name = ?`, m.NameKey, oldKey); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE channel_sessions SET persona_name = ? WHERE persona_name = ?`, m.NameKey, oldKey); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p.Get(ctx, m.NameKey)
}

func (p *personas) Delete(ctx context.Context, nameKey string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM personas WHERE name_key = ?`, nameKey)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM generation_settings WHERE persona_name = ?`, nameKey); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE persona_name = ?`, nameKey); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Settings ---
type settings struct{ db *sql.DB }

func (s *settings) Put(ctx context.Context, gs *model.GenerationSettings) (*model.GenerationSettings, error) {
	doc, err := json.Marshal(gs)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `
        INSERT INTO generation_settings (persona_name, doc, update_time)
        VALUES (?,?,?)
        ON CONFLICT (persona_name) DO UPDATE SET doc = excluded.doc, update_time = excluded.update_time
    `, gs.PersonaName, string(doc), now); err != nil {
		return nil, err
	}
	out := *gs
	out.UpdateTime = now
	return &out, nil
}

func (s *settings) Get(ctx context.Context, personaName string) (*model.GenerationSettings, error) {
	var doc string
	var updated time.Time
	row := s.db.QueryRowContext(ctx, `
        SELECT doc, update_time FROM generation_settings WHERE persona_name = ?
    `, personaName)
	if err := row.Scan(&doc, &updated); err != nil {
		return nil, mapNoRows(err)
	}
	var out model.GenerationSettings
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return nil, err
	}
	out.PersonaName = personaName
	out.UpdateTime = updated
	return &out, nil
}

func (s *settings) Delete(ctx context.Context, personaName string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM generation_settings WHERE persona_name = ?`, personaName)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- Sessions ---
type sessions struct{ db *sql.DB }

func (s *sessions) Create(ctx context.Context, m *model.Session) (*model.Session, error) {
	id := m.SessionID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `
        INSERT INTO sessions (session_id, persona_name, user_id, creation_time) VALUES (?,?,?,?)
    `, id, m.PersonaName, m.UserID, now); err != nil {
		return nil, err
	}
	return &model.Session{SessionID: id, PersonaName: m.PersonaName, UserID: m.UserID, CreationTime: now}, nil
}

func (s *sessions) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	var out model.Session
	row := s.db.QueryRowContext(ctx, `
        SELECT session_id, persona_name, user_id, creation_time FROM sessions WHERE session_id = ?
    `, sessionID)
	if err := row.Scan(&out.SessionID, &out.PersonaName, &out.UserID, &out.CreationTime); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

func (s *sessions) List(ctx context.Context, personaName, userID string) ([]*model.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT session_id, persona_name, user_id, creation_time FROM sessions
        WHERE (? = '' OR persona_name = ?) AND (? = '' OR user_id = ?)
        ORDER BY creation_time DESC
    `, personaName, personaName, userID, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Session
	for rows.Next() {
		var m model.Session
		if err := rows.Scan(&m.SessionID, &m.PersonaName, &m.UserID, &m.CreationTime); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *sessions) Delete(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_events WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return tx.Commit()
}

func (s *sessions) AppendEvent(ctx context.Context, e *model.SessionEvent) (*model.SessionEvent, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	if err := tx.QueryRowContext(ctx, `
        SELECT COALESCE(MAX(seq),0)+1 FROM session_events WHERE session_id = ?
    `, e.SessionID).Scan(&seq); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO session_events (session_id, seq, role, content, creation_time) VALUES (?,?,?,?,?)
    `, e.SessionID, seq, e.Role, e.Content, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	out := *e
	out.Seq = seq
	out.CreationTime = now
	return &out, nil
}

func (s *sessions) ListEvents(ctx context.Context, sessionID string, limit int) ([]*model.SessionEvent, error) {
	query := `
        SELECT session_id, seq, role, content, creation_time
        FROM session_events WHERE session_id = ? ORDER BY seq
    `
	if limit > 0 {
		query = fmt.Sprintf(`
            SELECT session_id, seq, role, content, creation_time FROM (
                SELECT session_id, seq, role, content, creation_time
                FROM session_events WHERE session_id = ? ORDER BY seq DESC LIMIT %d
            ) ORDER BY seq
        `, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.SessionEvent
	for rows.Next() {
		var e model.SessionEvent
		if err := rows.Scan(&e.SessionID, &e.Seq, &e.Role, &e.Content, &e.CreationTime); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// --- ChannelSessions ---
type channelSessions struct{ db *sql.DB }

func (c *channelSessions) Upsert(ctx context.Context, cs *model.ChannelSession) (*model.ChannelSession, error) {
	// On re-activation the original activator and creation time win.
	now := time.Now().UTC()
	if _, err := c.db.ExecContext(ctx, `
        INSERT INTO channel_sessions (channel_id, persona_name, session_id, user_id, creation_time)
        VALUES (?,?,?,?,?)
        ON CONFLICT (channel_id) DO UPDATE
            SET persona_name = excluded.persona_name, session_id = excluded.session_id
    `, cs.ChannelID, cs.PersonaName, cs.SessionID, cs.UserID, now); err != nil {
		return nil, err
	}
	return c.Get(ctx, cs.ChannelID)
}

func (c *channelSessions) Get(ctx context.Context, channelID string) (*model.ChannelSession, error) {
	var out model.ChannelSession
	row := c.db.QueryRowContext(ctx, `
        SELECT channel_id, persona_name, session_id, user_id, creation_time
        FROM channel_sessions WHERE channel_id = ?
    `, channelID)
	if err := row.Scan(&out.ChannelID, &out.PersonaName, &out.SessionID, &out.UserID, &out.CreationTime); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

func (c *channelSessions) Delete(ctx context.Context, channelID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM channel_sessions WHERE channel_id = ?`, channelID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (c *channelSessions) DeleteByPersona(ctx context.Context, personaName string) ([]string, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT session_id FROM channel_sessions WHERE persona_name = ?`, personaName)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM channel_sessions WHERE persona_name = ?`, personaName); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// --- Memories ---
type memories struct{ db *sql.DB }

func (m *memories) Create(ctx context.Context, mm *model.Memory) (*model.Memory, error) {
	id := mm.MemoryID
	if id == "" {
		id = uuid.New().String()
	}
	var userID interface{}
	if !mm.Scope.Shared() {
		userID = mm.Scope.UserID
	}
	now := time.Now().UTC()
	if _, err := m.db.ExecContext(ctx, `
        INSERT INTO memories (memory_id, persona_name, user_id, content, creation_time) VALUES (?,?,?,?,?)
    `, id, mm.Scope.PersonaName, userID, mm.Content, now); err != nil {
		return nil, err
	}
	out := *mm
	out.MemoryID = id
	out.CreationTime = now
	return &out, nil
}

func (m *memories) Get(ctx context.Context, memoryID string) (*model.Memory, error) {
	var out model.Memory
	var userID sql.NullString
	row := m.db.QueryRowContext(ctx, `
        SELECT memory_id, persona_name, user_id, content, creation_time FROM memories WHERE memory_id = ?
    `, memoryID)
	if err := row.Scan(&out.MemoryID, &out.Scope.PersonaName, &userID, &out.Content, &out.CreationTime); err != nil {
		return nil, mapNoRows(err)
	}
	out.Scope.UserID = userID.String
	return &out, nil
}

func (m *memories) List(ctx context.Context, scope model.MemoryScope, limit, offset int) ([]*model.Memory, error) {
	query := `
        SELECT memory_id, persona_name, user_id, content, creation_time
        FROM memories WHERE persona_name = ? AND user_id IS NULL
        ORDER BY creation_time DESC, memory_id
    `
	args := []interface{}{scope.PersonaName}
	if !scope.Shared() {
		query = `
            SELECT memory_id, persona_name, user_id, content, creation_time
            FROM memories WHERE persona_name = ? AND user_id = ?
            ORDER BY creation_time DESC, memory_id
        `
		args = append(args, scope.UserID)
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		if limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", offset)
	}
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Memory
	for rows.Next() {
		var mm model.Memory
		var userID sql.NullString
		if err := rows.Scan(&mm.MemoryID, &mm.Scope.PersonaName, &userID, &mm.Content, &mm.CreationTime); err != nil {
			return nil, err
		}
		mm.Scope.UserID = userID.String
		out = append(out, &mm)
	}
	return out, rows.Err()
}

func (m *memories) Delete(ctx context.Context, memoryID string) error {
	res, err := m.db.ExecContext(ctx, `DELETE FROM memories WHERE memory_id = ?`, memoryID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}
