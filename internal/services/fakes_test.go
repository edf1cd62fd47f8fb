package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/personahub/agent-service/internal/llm"
	"github.com/personahub/agent-service/internal/model"
	"github.com/personahub/agent-service/internal/store"
)

// fakeStore is an in-memory store.Store used across the service tests.
// Individual operations can be forced to fail to exercise degraded paths.
type fakeStore struct {
	mu sync.Mutex

	personas map[string]*model.Persona
	settings map[string]*model.GenerationSettings
	sessions map[string]*model.Session
	events   map[string][]*model.SessionEvent
	channels map[string]*model.ChannelSession
	memories map[string]*model.Memory

	failSessionCreate bool
	failAppendEvent   bool
	failMemoryCreate  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		personas: map[string]*model.Persona{},
		settings: map[string]*model.GenerationSettings{},
		sessions: map[string]*model.Session{},
		events:   map[string][]*model.SessionEvent{},
		channels: map[string]*model.ChannelSession{},
		memories: map[string]*model.Memory{},
	}
}

func (f *fakeStore) Personas() store.Personas               { return (*fakePersonas)(f) }
func (f *fakeStore) Settings() store.Settings               { return (*fakeSettings)(f) }
func (f *fakeStore) Sessions() store.Sessions               { return (*fakeSessions)(f) }
func (f *fakeStore) ChannelSessions() store.ChannelSessions { return (*fakeChannels)(f) }
func (f *fakeStore) Memories() store.Memories               { return (*fakeMemories)(f) }
func (f *fakeStore) Close() error                           { return nil }

type fakePersonas fakeStore

func (f *fakePersonas) Create(_ context.Context, p *model.Persona) (*model.Persona, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.personas[p.NameKey]; ok {
		return nil, model.ErrConflict
	}
	cp := *p
	cp.CreationTime = time.Now().UTC()
	cp.UpdateTime = cp.CreationTime
	f.personas[cp.NameKey] = &cp
	out := cp
	return &out, nil
}

func (f *fakePersonas) Get(_ context.Context, nameKey string) (*model.Persona, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.personas[nameKey]
	if !ok {
		return nil, errors.Wrap(model.ErrNotFound, "persona "+nameKey)
	}
	out := *p
	return &out, nil
}

func (f *fakePersonas) List(_ context.Context) ([]*model.Persona, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Persona, 0, len(f.personas))
	for _, p := range f.personas {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NameKey < out[j].NameKey })
	return out, nil
}

func (f *fakePersonas) Update(_ context.Context, p *model.Persona) (*model.Persona, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.personas[p.NameKey]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *p
	cp.CreationTime = cur.CreationTime
	cp.UpdateTime = time.Now().UTC()
	f.personas[cp.NameKey] = &cp
	out := cp
	return &out, nil
}

func (f *fakePersonas) Rename(_ context.Context, oldKey string, p *model.Persona) (*model.Persona, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.personas[oldKey]
	if !ok {
		return nil, model.ErrNotFound
	}
	if _, taken := f.personas[p.NameKey]; taken {
		return nil, model.ErrConflict
	}
	cp := *p
	cp.CreationTime = cur.CreationTime
	cp.UpdateTime = time.Now().UTC()
	delete(f.personas, oldKey)
	f.personas[cp.NameKey] = &cp
	if gs, ok := f.settings[oldKey]; ok {
		gs.PersonaName = cp.NameKey
		f.settings[cp.NameKey] = gs
		delete(f.settings, oldKey)
	}
	for _, sess := range f.sessions {
		if sess.PersonaName == oldKey {
			sess.PersonaName = cp.NameKey
		}
	}
	for _, cs := range f.channels {
		if cs.PersonaName == oldKey {
			cs.PersonaName = cp.NameKey
		}
	}
	out := cp
	return &out, nil
}

func (f *fakePersonas) Delete(_ context.Context, nameKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.personas[nameKey]; !ok {
		return model.ErrNotFound
	}
	delete(f.personas, nameKey)
	delete(f.settings, nameKey)
	for id, m := range f.memories {
		if m.Scope.PersonaName == nameKey {
			delete(f.memories, id)
		}
	}
	return nil
}

type fakeSettings fakeStore

func (f *fakeSettings) Put(_ context.Context, s *model.GenerationSettings) (*model.GenerationSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	cp.UpdateTime = time.Now().UTC()
	f.settings[cp.PersonaName] = &cp
	out := cp
	return &out, nil
}

func (f *fakeSettings) Get(_ context.Context, personaName string) (*model.GenerationSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[personaName]
	if !ok {
		return nil, model.ErrNotFound
	}
	out := *s
	return &out, nil
}

func (f *fakeSettings) Delete(_ context.Context, personaName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.settings[personaName]; !ok {
		return model.ErrNotFound
	}
	delete(f.settings, personaName)
	return nil
}

type fakeSessions fakeStore

func (f *fakeSessions) Create(_ context.Context, s *model.Session) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSessionCreate {
		return nil, errors.New("session backend down")
	}
	cp := *s
	if cp.SessionID == "" {
		cp.SessionID = uuid.NewString()
	}
	cp.CreationTime = time.Now().UTC()
	f.sessions[cp.SessionID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeSessions) Get(_ context.Context, sessionID string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, errors.Wrap(model.ErrNotFound, "session "+sessionID)
	}
	out := *s
	return &out, nil
}

func (f *fakeSessions) List(_ context.Context, personaName, userID string) ([]*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Session
	for _, s := range f.sessions {
		if personaName != "" && s.PersonaName != personaName {
			continue
		}
		if userID != "" && s.UserID != userID {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreationTime.After(out[j].CreationTime) })
	return out, nil
}

func (f *fakeSessions) Delete(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[sessionID]; !ok {
		return model.ErrNotFound
	}
	delete(f.sessions, sessionID)
	delete(f.events, sessionID)
	return nil
}

func (f *fakeSessions) AppendEvent(_ context.Context, e *model.SessionEvent) (*model.SessionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppendEvent {
		return nil, errors.New("append failed")
	}
	cp := *e
	cp.Seq = int64(len(f.events[e.SessionID]) + 1)
	cp.CreationTime = time.Now().UTC()
	f.events[e.SessionID] = append(f.events[e.SessionID], &cp)
	out := cp
	return &out, nil
}

func (f *fakeSessions) ListEvents(_ context.Context, sessionID string, limit int) ([]*model.SessionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	evs := f.events[sessionID]
	if limit > 0 && len(evs) > limit {
		evs = evs[len(evs)-limit:]
	}
	out := make([]*model.SessionEvent, 0, len(evs))
	for _, e := range evs {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

type fakeChannels fakeStore

func (f *fakeChannels) Upsert(_ context.Context, cs *model.ChannelSession) (*model.ChannelSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *cs
	if cur, ok := f.channels[cs.ChannelID]; ok {
		cp.UserID = cur.UserID
		cp.CreationTime = cur.CreationTime
	} else {
		cp.CreationTime = time.Now().UTC()
	}
	f.channels[cp.ChannelID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeChannels) Get(_ context.Context, channelID string) (*model.ChannelSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cs, ok := f.channels[channelID]
	if !ok {
		return nil, errors.Wrap(model.ErrNotFound, "channel "+channelID)
	}
	out := *cs
	return &out, nil
}

func (f *fakeChannels) Delete(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[channelID]; !ok {
		return model.ErrNotFound
	}
	delete(f.channels, channelID)
	return nil
}

func (f *fakeChannels) DeleteByPersona(_ context.Context, personaName string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, cs := range f.channels {
		if cs.PersonaName == personaName {
			ids = append(ids, cs.SessionID)
			delete(f.channels, id)
		}
	}
	return ids, nil
}

type fakeMemories fakeStore

func (f *fakeMemories) Create(_ context.Context, m *model.Memory) (*model.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMemoryCreate {
		return nil, errors.New("memory backend down")
	}
	cp := *m
	if cp.MemoryID == "" {
		cp.MemoryID = uuid.NewString()
	}
	cp.CreationTime = time.Now().UTC()
	f.memories[cp.MemoryID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeMemories) Get(_ context.Context, memoryID string) (*model.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memories[memoryID]
	if !ok {
		return nil, errors.Wrap(model.ErrNotFound, "memory "+memoryID)
	}
	out := *m
	return &out, nil
}

func (f *fakeMemories) List(_ context.Context, scope model.MemoryScope, limit, offset int) ([]*model.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Memory
	for _, m := range f.memories {
		if m.Scope == scope {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreationTime.After(out[j].CreationTime) })
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMemories) Delete(_ context.Context, memoryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.memories[memoryID]; !ok {
		return model.ErrNotFound
	}
	delete(f.memories, memoryID)
	return nil
}

// fakeLLM replays a scripted reply and records every request it sees.
type fakeLLM struct {
	mu       sync.Mutex
	reply    *llm.Reply
	err      error
	requests []llm.CompleteRequest

	facts        []string
	extractErr   error
	extractCalls int
}

func (f *fakeLLM) Complete(_ context.Context, req llm.CompleteRequest) (*llm.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.reply == nil {
		return &llm.Reply{Text: "ok"}, nil
	}
	return f.reply, nil
}

func (f *fakeLLM) ExtractFacts(_ context.Context, _ string, _ []llm.Message) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extractCalls++
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.facts, nil
}

func (f *fakeLLM) lastRequest() llm.CompleteRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}
