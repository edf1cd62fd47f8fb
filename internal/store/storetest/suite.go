package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/personahub/agent-service/internal/model"
	"github.com/personahub/agent-service/internal/store"
)

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store and return it from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	// Unique test identifiers
	nameKey := "p-" + uuid.New().String()
	userID := "u-" + uuid.New().String()

	// Personas
	p, err := s.Personas().Create(ctx, &model.Persona{NameKey: nameKey, DisplayName: "Nova", Personality: "cheerful"})
	if err != nil {
		t.Fatalf("CreatePersona: %v", err)
	}
	if p.CreationTime.IsZero() {
		t.Fatalf("CreatePersona: zero creation time")
	}
	if _, err := s.Personas().Create(ctx, &model.Persona{NameKey: nameKey, DisplayName: "Nova", Personality: "dup"}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("CreatePersona duplicate: want ErrConflict, got %v", err)
	}
	if got, err := s.Personas().Get(ctx, nameKey); err != nil || got.DisplayName != "Nova" {
		t.Fatalf("GetPersona: got=%v err=%v", got, err)
	}
	if _, err := s.Personas().Get(ctx, "no-such-persona"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetPersona missing: want ErrNotFound, got %v", err)
	}
	if lst, err := s.Personas().List(ctx); err != nil || len(lst) == 0 {
		t.Fatalf("ListPersonas: n=%d err=%v", len(lst), err)
	}
	if upd, err := s.Personas().Update(ctx, &model.Persona{NameKey: nameKey, DisplayName: "Nova", Personality: "cheerful and curious"}); err != nil || upd.Personality != "cheerful and curious" {
		t.Fatalf("UpdatePersona: got=%v err=%v", upd, err)
	}

	// Settings document round-trip
	temp := float32(0.8)
	gs := &model.GenerationSettings{
		PersonaName: nameKey,
		Chat:        model.ChatSettings{Model: "gemini-2.0-flash", Temperature: &temp, MaxOutputTokens: 512},
		Image:       model.ImageSettings{Model: "img-model", NumberOfImages: 2, AspectRatio: "16:9"},
	}
	if _, err := s.Settings().Put(ctx, gs); err != nil {
		t.Fatalf("PutSettings: %v", err)
	}
	got, err := s.Settings().Get(ctx, nameKey)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if got.Chat.Model != "gemini-2.0-flash" || got.Chat.Temperature == nil || *got.Chat.Temperature != 0.8 || got.Image.NumberOfImages != 2 {
		t.Fatalf("GetSettings mismatch: %+v", got)
	}
	// Put is an upsert
	gs.Chat.MaxOutputTokens = 1024
	if _, err := s.Settings().Put(ctx, gs); err != nil {
		t.Fatalf("PutSettings upsert: %v", err)
	}
	if got, err := s.Settings().Get(ctx, nameKey); err != nil || got.Chat.MaxOutputTokens != 1024 {
		t.Fatalf("GetSettings after upsert: got=%+v err=%v", got, err)
	}

	// Sessions and ordered events
	sess, err := s.Sessions().Create(ctx, &model.Session{PersonaName: nameKey, UserID: userID})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.SessionID == "" {
		t.Fatalf("CreateSession: empty session id")
	}
	for i, content := range []string{"hello", "hi there", "how are you"} {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		ev, err := s.Sessions().AppendEvent(ctx, &model.SessionEvent{SessionID: sess.SessionID, Role: role, Content: content})
		if err != nil {
			t.Fatalf("AppendEvent %d: %v", i, err)
		}
		if ev.Seq != int64(i+1) {
			t.Fatalf("AppendEvent seq: want %d got %d", i+1, ev.Seq)
		}
	}
	evs, err := s.Sessions().ListEvents(ctx, sess.SessionID, 0)
	if err != nil || len(evs) != 3 {
		t.Fatalf("ListEvents: n=%d err=%v", len(evs), err)
	}
	for i := 1; i < len(evs); i++ {
		if evs[i].Seq <= evs[i-1].Seq {
			t.Fatalf("ListEvents order: seq %d after %d", evs[i].Seq, evs[i-1].Seq)
		}
	}
	// Limited listing keeps the most recent events, still ascending
	last2, err := s.Sessions().ListEvents(ctx, sess.SessionID, 2)
	if err != nil || len(last2) != 2 {
		t.Fatalf("ListEvents limit: n=%d err=%v", len(last2), err)
	}
	if last2[0].Content != "hi there" || last2[1].Content != "how are you" {
		t.Fatalf("ListEvents limit contents: %q %q", last2[0].Content, last2[1].Content)
	}

	// Channel sessions preserve the original activator across upserts
	channelID := "c-" + uuid.New().String()
	cs1, err := s.ChannelSessions().Upsert(ctx, &model.ChannelSession{ChannelID: channelID, PersonaName: nameKey, SessionID: sess.SessionID, UserID: userID})
	if err != nil {
		t.Fatalf("UpsertChannelSession: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	sess2, err := s.Sessions().Create(ctx, &model.Session{PersonaName: nameKey, UserID: "other-user"})
	if err != nil {
		t.Fatalf("CreateSession 2: %v", err)
	}
	cs2, err := s.ChannelSessions().Upsert(ctx, &model.ChannelSession{ChannelID: channelID, PersonaName: nameKey, SessionID: sess2.SessionID, UserID: "other-user"})
	if err != nil {
		t.Fatalf("UpsertChannelSession 2: %v", err)
	}
	if cs2.UserID != userID {
		t.Fatalf("Upsert must keep original activator: want %s got %s", userID, cs2.UserID)
	}
	if cs2.SessionID != sess2.SessionID {
		t.Fatalf("Upsert must replace session: want %s got %s", sess2.SessionID, cs2.SessionID)
	}
	if !cs2.CreationTime.Equal(cs1.CreationTime) {
		t.Fatalf("Upsert must keep original creation time: %v vs %v", cs2.CreationTime, cs1.CreationTime)
	}
	// Session listing with filters, newest first
	all, err := s.Sessions().List(ctx, nameKey, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("ListSessions by persona: n=%d err=%v", len(all), err)
	}
	if all[0].SessionID != sess2.SessionID {
		t.Fatalf("ListSessions order: want %s first, got %s", sess2.SessionID, all[0].SessionID)
	}
	mine, err := s.Sessions().List(ctx, nameKey, userID)
	if err != nil || len(mine) != 1 || mine[0].SessionID != sess.SessionID {
		t.Fatalf("ListSessions by user: %v err=%v", mine, err)
	}

	if ids, err := s.ChannelSessions().DeleteByPersona(ctx, nameKey); err != nil || len(ids) != 1 || ids[0] != sess2.SessionID {
		t.Fatalf("DeleteByPersona: ids=%v err=%v", ids, err)
	}
	if _, err := s.ChannelSessions().Get(ctx, channelID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetChannelSession after delete: want ErrNotFound, got %v", err)
	}

	// Memory scopes are matched exactly
	shared, err := s.Memories().Create(ctx, &model.Memory{Scope: model.MemoryScope{PersonaName: nameKey}, Content: "likes painting"})
	if err != nil {
		t.Fatalf("CreateMemory shared: %v", err)
	}
	scoped, err := s.Memories().Create(ctx, &model.Memory{Scope: model.MemoryScope{PersonaName: nameKey, UserID: userID}, Content: "favorite color is blue"})
	if err != nil {
		t.Fatalf("CreateMemory scoped: %v", err)
	}
	if lst, err := s.Memories().List(ctx, model.MemoryScope{PersonaName: nameKey}, 0, 0); err != nil || len(lst) != 1 || lst[0].MemoryID != shared.MemoryID {
		t.Fatalf("List shared scope: n=%d err=%v", len(lst), err)
	}
	if lst, err := s.Memories().List(ctx, model.MemoryScope{PersonaName: nameKey, UserID: userID}, 0, 0); err != nil || len(lst) != 1 || lst[0].MemoryID != scoped.MemoryID {
		t.Fatalf("List user scope: n=%d err=%v", len(lst), err)
	}
	if lst, err := s.Memories().List(ctx, model.MemoryScope{PersonaName: nameKey, UserID: "stranger"}, 0, 0); err != nil || len(lst) != 0 {
		t.Fatalf("List foreign scope: n=%d err=%v", len(lst), err)
	}
	if got, err := s.Memories().Get(ctx, scoped.MemoryID); err != nil || got.Scope.UserID != userID {
		t.Fatalf("GetMemory: got=%v err=%v", got, err)
	}
	if err := s.Memories().Delete(ctx, scoped.MemoryID); err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}
	if err := s.Memories().Delete(ctx, scoped.MemoryID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("DeleteMemory twice: want ErrNotFound, got %v", err)
	}

	// Rename carries settings and sessions to the new key
	newKey := nameKey + "-rose"
	if _, err := s.Personas().Rename(ctx, nameKey, &model.Persona{NameKey: newKey, DisplayName: "Rose", Personality: "calm"}); err != nil {
		t.Fatalf("RenamePersona: %v", err)
	}
	if _, err := s.Personas().Get(ctx, nameKey); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetPersona old key: want ErrNotFound, got %v", err)
	}
	if got, err := s.Settings().Get(ctx, newKey); err != nil || got.Chat.MaxOutputTokens != 1024 {
		t.Fatalf("GetSettings after rename: got=%+v err=%v", got, err)
	}
	if got, err := s.Sessions().Get(ctx, sess.SessionID); err != nil || got.PersonaName != newKey {
		t.Fatalf("GetSession after rename: got=%+v err=%v", got, err)
	}

	// Session delete removes events too
	if err := s.Sessions().Delete(ctx, sess.SessionID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if evs, err := s.Sessions().ListEvents(ctx, sess.SessionID, 0); err != nil || len(evs) != 0 {
		t.Fatalf("ListEvents after delete: n=%d err=%v", len(evs), err)
	}

	// Persona delete cascades settings and memories
	if err := s.Personas().Delete(ctx, newKey); err != nil {
		t.Fatalf("DeletePersona: %v", err)
	}
	if _, err := s.Settings().Get(ctx, newKey); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetSettings after persona delete: want ErrNotFound, got %v", err)
	}
	if lst, err := s.Memories().List(ctx, model.MemoryScope{PersonaName: newKey}, 0, 0); err != nil || len(lst) != 0 {
		t.Fatalf("List memories after persona delete: n=%d err=%v", len(lst), err)
	}
}
