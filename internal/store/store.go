package store

import (
	"context"

	"github.com/personahub/agent-service/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (e.g., postgres, sqlite).
type Store interface {
	Personas() Personas
	Settings() Settings
	Sessions() Sessions
	ChannelSessions() ChannelSessions
	Memories() Memories
	Close() error
}

type Personas interface {
	Create(ctx context.Context, p *model.Persona) (*model.Persona, error)
	Get(ctx context.Context, nameKey string) (*model.Persona, error)
	List(ctx context.Context) ([]*model.Persona, error)
	Update(ctx context.Context, p *model.Persona) (*model.Persona, error)
	// Rename moves a persona to a new name key in one transaction,
	// carrying its settings document along.
	Rename(ctx context.Context, oldKey string, p *model.Persona) (*model.Persona, error)
	Delete(ctx context.Context, nameKey string) error
}

type Settings interface {
	Put(ctx context.Context, s *model.GenerationSettings) (*model.GenerationSettings, error)
	Get(ctx context.Context, personaName string) (*model.GenerationSettings, error)
	Delete(ctx context.Context, personaName string) error
}

type Sessions interface {
	Create(ctx context.Context, s *model.Session) (*model.Session, error)
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	// List returns sessions filtered by persona and/or user; empty
	// filters match everything. Newest first.
	List(ctx context.Context, personaName, userID string) ([]*model.Session, error)
	Delete(ctx context.Context, sessionID string) error
	// AppendEvent assigns the next sequence number within the session and
	// persists the event.
	AppendEvent(ctx context.Context, e *model.SessionEvent) (*model.SessionEvent, error)
	// ListEvents returns events in ascending seq order. limit of zero
	// means all events; otherwise the most recent limit events are
	// returned, still ascending.
	ListEvents(ctx context.Context, sessionID string, limit int) ([]*model.SessionEvent, error)
}

type ChannelSessions interface {
	// Upsert activates a persona in a channel. If the channel already has
	// an active binding, the persona and session are replaced but the
	// original activator and creation time are preserved.
	Upsert(ctx context.Context, cs *model.ChannelSession) (*model.ChannelSession, error)
	Get(ctx context.Context, channelID string) (*model.ChannelSession, error)
	Delete(ctx context.Context, channelID string) error
	// DeleteByPersona removes all channel bindings for a persona and
	// returns the session IDs they pointed at.
	DeleteByPersona(ctx context.Context, personaName string) ([]string, error)
}

type Memories interface {
	Create(ctx context.Context, m *model.Memory) (*model.Memory, error)
	Get(ctx context.Context, memoryID string) (*model.Memory, error)
	// List returns memories matching the scope exactly, newest first. A
	// scope with empty UserID matches only shared memories.
	List(ctx context.Context, scope model.MemoryScope, limit, offset int) ([]*model.Memory, error)
	Delete(ctx context.Context, memoryID string) error
}
