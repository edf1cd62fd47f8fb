package services

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/personahub/agent-service/internal/model"
	"github.com/personahub/agent-service/internal/store"
)

// PersonaService owns persona CRUD and the rename migration.
type PersonaService struct {
	store    store.Store
	memories *MemoryService
	log      zerolog.Logger
}

func NewPersonaService(s store.Store, memories *MemoryService, log zerolog.Logger) *PersonaService {
	return &PersonaService{store: s, memories: memories, log: log}
}

func normalizeInput(p *model.Persona) error {
	display := strings.TrimSpace(p.DisplayName)
	if display == "" {
		return errors.Wrap(model.ErrValidation, "persona name must not be empty")
	}
	p.DisplayName = display
	p.NameKey = model.NormalizePersonaName(display)
	p.Personality = strings.TrimSpace(p.Personality)
	if p.Personality == "" {
		return errors.Wrap(model.ErrValidation, "persona personality must not be empty")
	}
	return nil
}

func (s *PersonaService) Create(ctx context.Context, p *model.Persona) (*model.Persona, error) {
	if err := normalizeInput(p); err != nil {
		return nil, err
	}
	return s.store.Personas().Create(ctx, p)
}

func (s *PersonaService) Get(ctx context.Context, name string) (*model.Persona, error) {
	return s.store.Personas().Get(ctx, model.NormalizePersonaName(name))
}

func (s *PersonaService) List(ctx context.Context) ([]*model.Persona, error) {
	return s.store.Personas().List(ctx)
}

// Update changes a persona in place. The name is immutable here; use Rename.
func (s *PersonaService) Update(ctx context.Context, name string, p *model.Persona) (*model.Persona, error) {
	key := model.NormalizePersonaName(name)
	current, err := s.store.Personas().Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if p.DisplayName == "" {
		p.DisplayName = current.DisplayName
	}
	if err := normalizeInput(p); err != nil {
		return nil, err
	}
	if p.NameKey != key {
		return nil, errors.Wrap(model.ErrValidation, "display name must keep the persona name; use rename instead")
	}
	return s.store.Personas().Update(ctx, p)
}

// Rename moves a persona to a new name and migrates its shared-scope
// memories to the new scope key. The migration is best-effort per record;
// per-user memories are not touched.
func (s *PersonaService) Rename(ctx context.Context, oldName, newName string) (*model.Persona, error) {
	oldKey := model.NormalizePersonaName(oldName)
	current, err := s.store.Personas().Get(ctx, oldKey)
	if err != nil {
		return nil, err
	}

	next := *current
	next.DisplayName = strings.TrimSpace(newName)
	if err := normalizeInput(&next); err != nil {
		return nil, err
	}
	if next.NameKey == oldKey {
		return nil, errors.Wrap(model.ErrValidation, "new name is the same as the current name")
	}

	renamed, err := s.store.Personas().Rename(ctx, oldKey, &next)
	if err != nil {
		return nil, err
	}

	migrated := s.memories.MigrateShared(ctx, oldKey, next.NameKey)
	s.log.Info().
		Str("from", oldKey).
		Str("to", next.NameKey).
		Int("memoriesMigrated", migrated).
		Msg("persona renamed")
	return renamed, nil
}

// Delete removes a persona with its settings, memories, sessions and
// channel bindings. Session cleanup is best-effort.
func (s *PersonaService) Delete(ctx context.Context, name string) error {
	key := model.NormalizePersonaName(name)
	if _, err := s.store.Personas().Get(ctx, key); err != nil {
		return err
	}

	sessionIDs, err := s.store.ChannelSessions().DeleteByPersona(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("persona", key).Msg("channel session cleanup failed")
	}
	for _, id := range sessionIDs {
		if err := s.store.Sessions().Delete(ctx, id); err != nil && !errors.Is(err, model.ErrNotFound) {
			s.log.Warn().Err(err).Str("sessionId", id).Msg("session cleanup failed")
		}
	}
	if err := s.store.Personas().Delete(ctx, key); err != nil {
		return err
	}
	s.memories.ForgetPersona(key)
	return nil
}
