package services

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/personahub/agent-service/internal/memindex"
	"github.com/personahub/agent-service/internal/model"
	"github.com/personahub/agent-service/internal/store"
)

// migrationPageSize bounds how many shared memories one rename migration
// batch reads at a time.
const migrationPageSize = 1000

// MemoryService owns long-term memory persistence and retrieval. The vector
// index is optional; without it retrieval falls back to recency ordering.
type MemoryService struct {
	store store.Store
	idx   *memindex.Index
	log   zerolog.Logger
}

func NewMemoryService(s store.Store, idx *memindex.Index, log zerolog.Logger) *MemoryService {
	return &MemoryService{store: s, idx: idx, log: log}
}

// Save persists one fact under the given scope and indexes it. Index
// failures are logged, not surfaced, so a degraded index never loses the
// durable record.
func (s *MemoryService) Save(ctx context.Context, scope model.MemoryScope, fact string) (*model.Memory, error) {
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return nil, errors.Wrap(model.ErrValidation, "memory fact must not be empty")
	}
	if scope.PersonaName == "" {
		return nil, errors.Wrap(model.ErrValidation, "memory scope requires a persona name")
	}
	m, err := s.store.Memories().Create(ctx, &model.Memory{Scope: scope, Content: fact})
	if err != nil {
		return nil, err
	}
	if s.idx != nil {
		if err := s.idx.Add(ctx, m); err != nil {
			s.log.Warn().Err(err).Str("memoryId", m.MemoryID).Msg("memory index add failed")
		}
	}
	return m, nil
}

// List returns memories in a scope, newest first.
func (s *MemoryService) List(ctx context.Context, scope model.MemoryScope, limit, offset int) ([]*model.Memory, error) {
	return s.store.Memories().List(ctx, scope, limit, offset)
}

// Retrieve returns up to topK memories from one scope, ranked by similarity
// to the query when an index is configured and by recency otherwise.
func (s *MemoryService) Retrieve(ctx context.Context, scope model.MemoryScope, query string, topK int) ([]*model.Memory, error) {
	if s.idx == nil || strings.TrimSpace(query) == "" {
		return s.store.Memories().List(ctx, scope, topK, 0)
	}
	hits, err := s.idx.Search(ctx, scope, query, topK)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Memory, 0, len(hits))
	for _, h := range hits {
		out = append(out, &model.Memory{MemoryID: h.MemoryID, Scope: scope, Content: h.Content})
	}
	return out, nil
}

// Delete removes one memory from storage and the index.
func (s *MemoryService) Delete(ctx context.Context, memoryID string) error {
	m, err := s.store.Memories().Get(ctx, memoryID)
	if err != nil {
		return err
	}
	if err := s.store.Memories().Delete(ctx, memoryID); err != nil {
		return err
	}
	if s.idx != nil {
		if err := s.idx.Remove(ctx, m.Scope, memoryID); err != nil {
			s.log.Warn().Err(err).Str("memoryId", memoryID).Msg("memory index remove failed")
		}
	}
	return nil
}

// DeleteScope removes every memory in one scope. Returns how many records
// were deleted; a failed record is logged and skipped.
func (s *MemoryService) DeleteScope(ctx context.Context, scope model.MemoryScope) (int, error) {
	deleted := 0
	for {
		page, err := s.store.Memories().List(ctx, scope, migrationPageSize, 0)
		if err != nil {
			return deleted, err
		}
		if len(page) == 0 {
			return deleted, nil
		}
		progressed := false
		for _, m := range page {
			if err := s.Delete(ctx, m.MemoryID); err != nil {
				s.log.Warn().Err(err).Str("memoryId", m.MemoryID).Msg("scope delete failed for record")
				continue
			}
			deleted++
			progressed = true
		}
		if !progressed {
			return deleted, nil
		}
	}
}

// ForgetPersona drops every index collection for a persona. The store
// cascade removes the durable rows; this keeps the vector side in step.
func (s *MemoryService) ForgetPersona(personaName string) {
	if s.idx != nil {
		s.idx.RemoveScopes(personaName)
	}
}

// MigrateShared moves shared-scope memories from one persona name to
// another by copy-then-delete. A failure on a single record is logged and
// skipped; per-user memories are intentionally left alone since no registry
// of affected user ids exists. Returns the number of memories migrated.
func (s *MemoryService) MigrateShared(ctx context.Context, oldName, newName string) int {
	oldScope := model.MemoryScope{PersonaName: oldName}
	newScope := model.MemoryScope{PersonaName: newName}
	migrated := 0
	for {
		page, err := s.store.Memories().List(ctx, oldScope, migrationPageSize, 0)
		if err != nil {
			s.log.Error().Stack().Err(err).Str("persona", oldName).Msg("memory migration list failed")
			return migrated
		}
		if len(page) == 0 {
			return migrated
		}
		progressed := false
		for _, m := range page {
			if _, err := s.Save(ctx, newScope, m.Content); err != nil {
				s.log.Warn().Err(err).Str("memoryId", m.MemoryID).Msg("memory migration copy failed, skipping record")
				continue
			}
			if err := s.Delete(ctx, m.MemoryID); err != nil {
				s.log.Warn().Err(err).Str("memoryId", m.MemoryID).Msg("memory migration delete failed")
				continue
			}
			migrated++
			progressed = true
		}
		// every record in the page failed; bail instead of spinning
		if !progressed {
			return migrated
		}
	}
}
