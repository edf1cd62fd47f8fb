package services

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personahub/agent-service/internal/memindex"
	"github.com/personahub/agent-service/internal/model"
)

func newPersonaFixture() (*fakeStore, *PersonaService) {
	st := newFakeStore()
	log := zerolog.Nop()
	return st, NewPersonaService(st, NewMemoryService(st, nil, log), log)
}

func TestPersonaCreateNormalizesName(t *testing.T) {
	st, svc := newPersonaFixture()
	ctx := context.Background()

	created, err := svc.Create(ctx, &model.Persona{
		DisplayName: "  Nova  ",
		Personality: "curious",
	})
	require.NoError(t, err)
	assert.Equal(t, "nova", created.NameKey)
	assert.Equal(t, "Nova", created.DisplayName)

	// lookups accept any casing
	got, err := svc.Get(ctx, "NOVA")
	require.NoError(t, err)
	assert.Equal(t, created.NameKey, got.NameKey)

	_, ok := st.personas["nova"]
	assert.True(t, ok)
}

func TestPersonaCreateValidation(t *testing.T) {
	_, svc := newPersonaFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, &model.Persona{DisplayName: "  ", Personality: "x"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.Create(ctx, &model.Persona{DisplayName: "Nova", Personality: " "})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestPersonaCreateConflictOnNameKey(t *testing.T) {
	_, svc := newPersonaFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, &model.Persona{DisplayName: "Nova", Personality: "a"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, &model.Persona{DisplayName: "nova", Personality: "b"})
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestPersonaUpdateKeepsName(t *testing.T) {
	_, svc := newPersonaFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, &model.Persona{DisplayName: "Nova", Personality: "a"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "nova", &model.Persona{Personality: "wiser now", Appearance: "silver hair"})
	require.NoError(t, err)
	assert.Equal(t, "wiser now", updated.Personality)
	assert.Equal(t, "silver hair", updated.Appearance)
	assert.Equal(t, "Nova", updated.DisplayName)

	_, err = svc.Update(ctx, "nova", &model.Persona{DisplayName: "Vega", Personality: "x"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestPersonaRenameMigratesSharedMemories(t *testing.T) {
	st, svc := newPersonaFixture()
	ctx := context.Background()
	log := zerolog.Nop()
	memories := NewMemoryService(st, nil, log)

	_, err := svc.Create(ctx, &model.Persona{DisplayName: "Nova", Personality: "a"})
	require.NoError(t, err)

	sharedScope := model.MemoryScope{PersonaName: "nova"}
	userScope := model.MemoryScope{PersonaName: "nova", UserID: "U1"}
	_, err = memories.Save(ctx, sharedScope, "Nova grew up near the sea")
	require.NoError(t, err)
	_, err = memories.Save(ctx, userScope, "The user sails")
	require.NoError(t, err)

	renamed, err := svc.Rename(ctx, "nova", "Vega")
	require.NoError(t, err)
	assert.Equal(t, "vega", renamed.NameKey)
	assert.Equal(t, "Vega", renamed.DisplayName)

	moved, err := memories.List(ctx, model.MemoryScope{PersonaName: "vega"}, 0, 0)
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, "Nova grew up near the sea", moved[0].Content)

	old, err := memories.List(ctx, sharedScope, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, old)

	// per-user memories stay under the old scope key
	kept, err := memories.List(ctx, userScope, 0, 0)
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	_, err = svc.Get(ctx, "nova")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPersonaRenameRejectsSameName(t *testing.T) {
	_, svc := newPersonaFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, &model.Persona{DisplayName: "Nova", Personality: "a"})
	require.NoError(t, err)

	_, err = svc.Rename(ctx, "nova", " NOVA ")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestPersonaDeleteCleansUp(t *testing.T) {
	st, svc := newPersonaFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, &model.Persona{DisplayName: "Nova", Personality: "a"})
	require.NoError(t, err)

	sess, err := st.Sessions().Create(ctx, &model.Session{PersonaName: "nova", UserID: "U1"})
	require.NoError(t, err)
	_, err = st.ChannelSessions().Upsert(ctx, &model.ChannelSession{
		ChannelID: "C1", PersonaName: "nova", SessionID: sess.SessionID, UserID: "U1",
	})
	require.NoError(t, err)
	_, err = st.Memories().Create(ctx, &model.Memory{Scope: model.MemoryScope{PersonaName: "nova"}, Content: "x"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "Nova"))

	_, err = svc.Get(ctx, "nova")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = st.ChannelSessions().Get(ctx, "C1")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = st.Sessions().Get(ctx, sess.SessionID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Empty(t, st.memories)

	assert.ErrorIs(t, svc.Delete(ctx, "nova"), model.ErrNotFound)
}

type sumEmbedder struct{}

func (sumEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 4)
	for i, r := range text {
		vec[i%4] += float32(r)
	}
	return vec, nil
}

func TestPersonaDeletePurgesMemoryIndex(t *testing.T) {
	st := newFakeStore()
	log := zerolog.Nop()
	idx, err := memindex.New(sumEmbedder{})
	require.NoError(t, err)
	memories := NewMemoryService(st, idx, log)
	svc := NewPersonaService(st, memories, log)
	ctx := context.Background()

	_, err = svc.Create(ctx, &model.Persona{DisplayName: "Nova", Personality: "curious"})
	require.NoError(t, err)

	_, err = memories.Save(ctx, model.MemoryScope{PersonaName: "nova"}, "Nova loves constellations")
	require.NoError(t, err)
	_, err = memories.Save(ctx, model.MemoryScope{PersonaName: "nova", UserID: "U1"}, "The user lives in Lisbon")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "Nova"))

	// recreating the persona under the same name must not resurrect the
	// deleted facts through the vector index
	_, err = svc.Create(ctx, &model.Persona{DisplayName: "Nova", Personality: "a fresh start"})
	require.NoError(t, err)

	scopes := []model.MemoryScope{
		{PersonaName: "nova"},
		{PersonaName: "nova", UserID: "U1"},
	}
	for _, scope := range scopes {
		hits, err := memories.Retrieve(ctx, scope, "constellations", 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	}
}
