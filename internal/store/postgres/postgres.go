package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/personahub/agent-service/internal/model"
	"github.com/personahub/agent-service/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
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
    creation_time TIMESTAMPTZ NOT NULL DEFAULT now(),
    update_time   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS generation_settings (
    persona_name TEXT PRIMARY KEY,
    doc          JSONB NOT NULL,
    update_time  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS sessions (
    session_id    TEXT PRIMARY KEY,
    persona_name  TEXT NOT NULL,
    user_id       TEXT NOT NULL,
    creation_time TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS session_events (
    session_id    TEXT NOT NULL,
    seq           BIGINT NOT NULL,
    role          TEXT NOT NULL,
    content       TEXT NOT NULL,
    creation_time TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (session_id, seq)
);
CREATE TABLE IF NOT EXISTS channel_sessions (
    channel_id    TEXT PRIMARY KEY,
    persona_name  TEXT NOT NULL,
    session_id    TEXT NOT NULL,
    user_id       TEXT NOT NULL,
    creation_time TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS memories (
    memory_id     TEXT PRIMARY KEY,
    persona_name  TEXT NOT NULL,
    user_id       TEXT,
    content       TEXT NOT NULL,
    creation_time TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_memories_scope ON memories (persona_name, user_id, creation_time DESC);
`

// Bootstrap ensures the schema exists and Postgres is reachable.
func Bootstrap(ctx context.Context, dsn string) error {
	db, err := Open(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	_, err = db.ExecContext(ctx, schema)
	return err
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Personas() store.Personas               { return &personas{db: s.db} }
func (s *pgStore) Settings() store.Settings               { return &settings{db: s.db} }
func (s *pgStore) Sessions() store.Sessions               { return &sessions{db: s.db} }
func (s *pgStore) ChannelSessions() store.ChannelSessions { return &channelSessions{db: s.db} }
func (s *pgStore) Memories() store.Memories               { return &memories{db: s.db} }
func (s *pgStore) Close() error                           { return s.db.Close() }

// HealthPing implements health.HealthPinger for the Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
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
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM personas WHERE name_key=$1`, m.NameKey).Scan(&exists)
	if err == nil {
		return nil, model.ErrConflict
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	var created time.Time
	row := p.db.QueryRowContext(ctx, `
        INSERT INTO personas (name_key, display_name, personality, appearance, channel_id)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING creation_time
    `, m.NameKey, m.DisplayName, m.Personality, m.Appearance, m.ChannelID)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	out := *m
	out.CreationTime = created
	out.UpdateTime = created
	return &out, nil
}

func (p *personas) Get(ctx context.Context, nameKey string) (*model.Persona, error) {
	var out model.Persona
	row := p.db.QueryRowContext(ctx, `
        SELECT name_key, display_name, personality, appearance, channel_id, creation_time, update_time
        FROM personas WHERE name_key=$1
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
	var updated time.Time
	row := p.db.QueryRowContext(ctx, `
        UPDATE personas SET display_name=$1, personality=$2, appearance=$3, channel_id=$4, update_time=now()
        WHERE name_key=$5
        RETURNING update_time
    `, m.DisplayName, m.Personality, m.Appearance, m.ChannelID, m.NameKey)
	if err := row.Scan(&updated); err != nil {
		return nil, mapNoRows(err)
	}
	out := *m
	out.UpdateTime = updated
	return &out, nil
}

func (p *personas) Rename(ctx context.Context, oldKey string, m *model.Persona) (*model.Persona, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var conflict int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM personas WHERE name_key=$1`, m.NameKey).Scan(&conflict)
	if err == nil {
		return nil, model.ErrConflict
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	var created, updated time.Time
	row := tx.QueryRowContext(ctx, `
        UPDATE personas SET name_key=$1, display_name=$2, personality=$3, appearance=$4, channel_id=$5, update_time=now()
        WHERE name_key=$6
        RETURNING creation_time, update_time
    `, m.NameKey, m.DisplayName, m.Personality, m.Appearance, m.ChannelID, oldKey)
	if err := row.Scan(&created, &updated); err != nil {
		return nil, mapNoRows(err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE generation_settings SET persona_name=$1 WHERE persona_name=$2`, m.NameKey, oldKey); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET persona_name=$1 WHERE persona_name=$2`, m.NameKey, oldKey); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE channel_sessions SET persona_name=$1 WHERE persona_name=$2`, m.NameKey, oldKey); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	out := *m
	out.CreationTime = created
	out.UpdateTime = updated
	return &out, nil
}

func (p *personas) Delete(ctx context.Context, nameKey string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM personas WHERE name_key=$1`, nameKey)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM generation_settings WHERE persona_name=$1`, nameKey); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE persona_name=$1`, nameKey); err != nil {
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
	var updated time.Time
	row := s.db.QueryRowContext(ctx, `
        INSERT INTO generation_settings (persona_name, doc)
        VALUES ($1,$2)
        ON CONFLICT (persona_name) DO UPDATE SET doc=EXCLUDED.doc, update_time=now()
        RETURNING update_time
    `, gs.PersonaName, doc)
	if err := row.Scan(&updated); err != nil {
		return nil, err
	}
	out := *gs
	out.UpdateTime = updated
	return &out, nil
}

func (s *settings) Get(ctx context.Context, personaName string) (*model.GenerationSettings, error) {
	var doc []byte
	var updated time.Time
	row := s.db.QueryRowContext(ctx, `
        SELECT doc, update_time FROM generation_settings WHERE persona_name=$1
    `, personaName)
	if err := row.Scan(&doc, &updated); err != nil {
		return nil, mapNoRows(err)
	}
	var out model.GenerationSettings
	if err := json.Unmarshal(doc, &out); err != nil {
		return nil, err
	}
	out.PersonaName = personaName
	out.UpdateTime = updated
	return &out, nil
}

func (s *settings) Delete(ctx context.Context, personaName string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM generation_settings WHERE persona_name=$1`, personaName)
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
	var created time.Time
	row := s.db.QueryRowContext(ctx, `
        INSERT INTO sessions (session_id, persona_name, user_id)
        VALUES ($1,$2,$3)
        RETURNING creation_time
    `, id, m.PersonaName, m.UserID)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	return &model.Session{SessionID: id, PersonaName: m.PersonaName, UserID: m.UserID, CreationTime: created}, nil
}

func (s *sessions) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	var out model.Session
	row := s.db.QueryRowContext(ctx, `
        SELECT session_id, persona_name, user_id, creation_time FROM sessions WHERE session_id=$1
    `, sessionID)
	if err := row.Scan(&out.SessionID, &out.PersonaName, &out.UserID, &out.CreationTime); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

func (s *sessions) List(ctx context.Context, personaName, userID string) ([]*model.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT session_id, persona_name, user_id, creation_time FROM sessions
        WHERE ($1 = '' OR persona_name = $1) AND ($2 = '' OR user_id = $2)
        ORDER BY creation_time DESC
    `, personaName, userID)
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
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_events WHERE session_id=$1`, sessionID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id=$1`, sessionID)
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
        SELECT COALESCE(MAX(seq),0)+1 FROM session_events WHERE session_id=$1
    `, e.SessionID).Scan(&seq); err != nil {
		return nil, err
	}
	var created time.Time
	row := tx.QueryRowContext(ctx, `
        INSERT INTO session_events (session_id, seq, role, content)
        VALUES ($1,$2,$3,$4)
        RETURNING creation_time
    `, e.SessionID, seq, e.Role, e.Content)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	out := *e
	out.Seq = seq
	out.CreationTime = created
	return &out, nil
}

func (s *sessions) ListEvents(ctx context.Context, sessionID string, limit int) ([]*model.SessionEvent, error) {
	query := `
        SELECT session_id, seq, role, content, creation_time
        FROM session_events WHERE session_id=$1 ORDER BY seq
    `
	if limit > 0 {
		query = fmt.Sprintf(`
            SELECT session_id, seq, role, content, creation_time FROM (
                SELECT session_id, seq, role, content, creation_time
                FROM session_events WHERE session_id=$1 ORDER BY seq DESC LIMIT %d
            ) t ORDER BY seq
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
	var out model.ChannelSession
	row := c.db.QueryRowContext(ctx, `
        INSERT INTO channel_sessions (channel_id, persona_name, session_id, user_id)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (channel_id) DO UPDATE
            SET persona_name=EXCLUDED.persona_name, session_id=EXCLUDED.session_id
        RETURNING channel_id, persona_name, session_id, user_id, creation_time
    `, cs.ChannelID, cs.PersonaName, cs.SessionID, cs.UserID)
	if err := row.Scan(&out.ChannelID, &out.PersonaName, &out.SessionID, &out.UserID, &out.CreationTime); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *channelSessions) Get(ctx context.Context, channelID string) (*model.ChannelSession, error) {
	var out model.ChannelSession
	row := c.db.QueryRowContext(ctx, `
        SELECT channel_id, persona_name, session_id, user_id, creation_time
        FROM channel_sessions WHERE channel_id=$1
    `, channelID)
	if err := row.Scan(&out.ChannelID, &out.PersonaName, &out.SessionID, &out.UserID, &out.CreationTime); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

func (c *channelSessions) Delete(ctx context.Context, channelID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM channel_sessions WHERE channel_id=$1`, channelID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (c *channelSessions) DeleteByPersona(ctx context.Context, personaName string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
        DELETE FROM channel_sessions WHERE persona_name=$1 RETURNING session_id
    `, personaName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
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
	var created time.Time
	row := m.db.QueryRowContext(ctx, `
        INSERT INTO memories (memory_id, persona_name, user_id, content)
        VALUES ($1,$2,$3,$4)
        RETURNING creation_time
    `, id, mm.Scope.PersonaName, userID, mm.Content)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	out := *mm
	out.MemoryID = id
	out.CreationTime = created
	return &out, nil
}

func (m *memories) Get(ctx context.Context, memoryID string) (*model.Memory, error) {
	var out model.Memory
	var userID sql.NullString
	row := m.db.QueryRowContext(ctx, `
        SELECT memory_id, persona_name, user_id, content, creation_time
        FROM memories WHERE memory_id=$1
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
        FROM memories WHERE persona_name=$1 AND user_id IS NULL
        ORDER BY creation_time DESC, memory_id
    `
	args := []interface{}{scope.PersonaName}
	if !scope.Shared() {
		query = `
            SELECT memory_id, persona_name, user_id, content, creation_time
            FROM memories WHERE persona_name=$1 AND user_id=$2
            ORDER BY creation_time DESC, memory_id
        `
		args = append(args, scope.UserID)
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
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
	res, err := m.db.ExecContext(ctx, `DELETE FROM memories WHERE memory_id=$1`, memoryID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}
