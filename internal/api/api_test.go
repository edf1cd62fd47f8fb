package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personahub/agent-service/internal/llm"
	"github.com/personahub/agent-service/internal/media"
	"github.com/personahub/agent-service/internal/model"
	"github.com/personahub/agent-service/internal/services"
	"github.com/personahub/agent-service/internal/store/sqlite"
)

type scriptedLLM struct {
	reply llm.Reply
	facts []string
}

func (s *scriptedLLM) Complete(context.Context, llm.CompleteRequest) (*llm.Reply, error) {
	out := s.reply
	return &out, nil
}

func (s *scriptedLLM) ExtractFacts(context.Context, string, []llm.Message) ([]string, error) {
	return s.facts, nil
}

type scriptedImages struct{ err error }

func (s *scriptedImages) Generate(context.Context, string, model.ImageSettings) ([]media.Image, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []media.Image{{Data: []byte("png-bytes"), MIMEType: "image/png"}}, nil
}

type scriptedVideos struct{}

func (s *scriptedVideos) Generate(context.Context, string, model.VideoSettings) (*media.Video, error) {
	return &media.Video{URI: "https://example.com/v.mp4", MIMEType: "video/mp4"}, nil
}

type testServer struct {
	srv    *httptest.Server
	llm    *scriptedLLM
	images *scriptedImages
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := zerolog.Nop()
	client := &scriptedLLM{reply: llm.Reply{Text: "hello there"}}
	images := &scriptedImages{}

	memories := services.NewMemoryService(st, nil, log)
	personas := services.NewPersonaService(st, memories, log)
	settings := services.NewSettingsService(st, services.SettingsDefaults{
		ChatModel:  "test-chat",
		ImageModel: "test-image",
		VideoModel: "test-video",
	})
	chat := services.NewChatService(st, client, memories, settings, 5, 0, log)
	mediaSvc := services.NewMediaService(st, settings, images, &scriptedVideos{}, log)

	router := NewRouter(Deps{
		Personas:  personas,
		Settings:  settings,
		Chat:      chat,
		Memories:  memories,
		Media:     mediaSvc,
		Store:     st,
		IsHealthy: func() bool { return true },
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, llm: client, images: images}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (ts *testServer) createPersona(t *testing.T, name string) {
	t.Helper()
	resp, _ := ts.do(t, http.MethodPost, "/v0/personas", map[string]string{
		"name":        name,
		"personality": "friendly and curious",
		"appearance":  "red scarf",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodGet, "/v0/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	resp, body = ts.do(t, http.MethodGet, "/v0/health/db", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestPersonaLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.createPersona(t, "Nova")

	resp, body := ts.do(t, http.MethodGet, "/v0/personas/NOVA", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nova", body["nameKey"])
	assert.Equal(t, "Nova", body["displayName"])

	resp, body = ts.do(t, http.MethodGet, "/v0/personas", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])

	resp, body = ts.do(t, http.MethodPatch, "/v0/personas/nova", map[string]string{"personality": "wiser"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "wiser", body["personality"])

	resp, _ = ts.do(t, http.MethodDelete, "/v0/personas/nova", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/v0/personas/nova", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPersonaValidationErrors(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodPost, "/v0/personas", map[string]string{"name": "bad!name", "personality": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/v0/personas", map[string]string{"name": "Nova"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPersonaConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.createPersona(t, "Nova")

	resp, _ := ts.do(t, http.MethodPost, "/v0/personas", map[string]string{"name": "nova", "personality": "dup"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPersonaRenameEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createPersona(t, "Nova")

	resp, body := ts.do(t, http.MethodPost, "/v0/personas/nova/rename", map[string]string{"newName": "Vega"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "vega", body["nameKey"])

	resp, _ = ts.do(t, http.MethodGet, "/v0/personas/nova", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSettingsEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.createPersona(t, "Nova")

	resp, body := ts.do(t, http.MethodGet, "/v0/personas/nova/settings", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	chat := body["chat"].(map[string]interface{})
	assert.Equal(t, "test-chat", chat["model"])

	resp, _ = ts.do(t, http.MethodPut, "/v0/personas/nova/settings", map[string]interface{}{
		"chat": map[string]interface{}{"model": "custom", "temperature": 0.9},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/v0/personas/nova/settings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	chat = body["chat"].(map[string]interface{})
	assert.Equal(t, "custom", chat["model"])

	// out-of-range knobs are rejected
	resp, _ = ts.do(t, http.MethodPut, "/v0/personas/nova/settings", map[string]interface{}{
		"chat": map[string]interface{}{"temperature": 9},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodDelete, "/v0/personas/nova/settings", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestChatTurnEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createPersona(t, "Nova")

	resp, body := ts.do(t, http.MethodPost, "/v0/chat", map[string]interface{}{
		"personaName": "nova",
		"userId":      "U1",
		"message":     "hi",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello there", body["responseText"])
	assert.Equal(t, true, body["shouldRespond"])
	assert.NotEmpty(t, body["sessionId"])

	// unknown persona is a 404, not a silent failure
	resp, _ = ts.do(t, http.MethodPost, "/v0/chat", map[string]interface{}{
		"personaName": "ghost",
		"userId":      "U1",
		"message":     "hi",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListSessionsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createPersona(t, "Nova")

	_, turn := ts.do(t, http.MethodPost, "/v0/chat", map[string]interface{}{
		"personaName": "nova", "userId": "U1", "message": "hi",
	})
	sessionID := turn["sessionId"].(string)

	resp, body := ts.do(t, http.MethodGet, "/v0/chat/sessions?personaName=Nova&userId=U1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])
	sessions := body["sessions"].([]interface{})
	require.Len(t, sessions, 1)
	assert.Equal(t, sessionID, sessions[0].(map[string]interface{})["sessionId"])

	resp, body = ts.do(t, http.MethodGet, "/v0/chat/sessions?userId=nobody", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["count"])
}

func TestEndSessionEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createPersona(t, "Nova")
	ts.llm.facts = []string{"The user collects stamps"}

	_, body := ts.do(t, http.MethodPost, "/v0/chat", map[string]interface{}{
		"personaName": "nova", "userId": "U1", "message": "I collect stamps",
	})
	sessionID := body["sessionId"].(string)

	resp, body := ts.do(t, http.MethodPost, "/v0/chat/end-session", map[string]string{"sessionId": sessionID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["memoriesGenerated"])
	memories := body["memories"].([]interface{})
	require.Len(t, memories, 1)
	assert.Equal(t, "The user collects stamps", memories[0].(map[string]interface{})["content"])

	resp, _ = ts.do(t, http.MethodPost, "/v0/chat/end-session", map[string]string{"sessionId": sessionID})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEndSessionWithoutExtraction(t *testing.T) {
	ts := newTestServer(t)
	ts.createPersona(t, "Nova")
	ts.llm.facts = []string{"The user collects stamps"}

	_, body := ts.do(t, http.MethodPost, "/v0/chat", map[string]interface{}{
		"personaName": "nova", "userId": "U1", "message": "I collect stamps",
	})
	sessionID := body["sessionId"].(string)

	resp, body := ts.do(t, http.MethodPost, "/v0/chat/end-session", map[string]interface{}{
		"sessionId": sessionID, "extractMemories": false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["memoriesGenerated"])

	resp, body = ts.do(t, http.MethodGet, "/v0/personas/nova/memories?userId=U1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["count"])
}

func TestInterpretErrorEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createPersona(t, "Nova")
	ts.llm.reply = llm.Reply{Text: "The image service is catching its breath; try again shortly."}

	resp, body := ts.do(t, http.MethodPost, "/v0/chat/interpret-error", map[string]string{
		"errorMessage": "429 RESOURCE_EXHAUSTED",
		"errorContext": "generating an image",
		"personaName":  "Nova",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "The image service is catching its breath; try again shortly.", body["interpretation"])

	resp, _ = ts.do(t, http.MethodPost, "/v0/chat/interpret-error", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChannelSessionEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.createPersona(t, "Nova")

	_, turn := ts.do(t, http.MethodPost, "/v0/chat", map[string]interface{}{
		"personaName": "nova", "userId": "U1", "message": "hi", "channelId": "C1", "channelMode": true,
	})
	require.NotEmpty(t, turn["sessionId"])

	ts.llm.facts = []string{"The channel plans a trip"}
	resp, body := ts.do(t, http.MethodPost, "/v0/channels/C1/memories", map[string]string{"userId": "U2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["memoriesGenerated"])

	resp, body = ts.do(t, http.MethodDelete, "/v0/channels/C1/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["removed"])

	resp, body = ts.do(t, http.MethodDelete, "/v0/channels/C1/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["removed"])

	resp, _ = ts.do(t, http.MethodPost, "/v0/channels/C1/memories", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMemoryEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.createPersona(t, "Nova")

	resp, body := ts.do(t, http.MethodPost, "/v0/personas/nova/memories", map[string]string{
		"content": "Nova's hometown floats above the clouds",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	memoryID := body["memoryId"].(string)

	resp, _ = ts.do(t, http.MethodPost, "/v0/personas/nova/memories", map[string]string{
		"userId": "U1", "content": "The user is afraid of heights",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/v0/personas/nova/memories", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])

	resp, body = ts.do(t, http.MethodGet, "/v0/personas/nova/memories?userId=U1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])

	resp, _ = ts.do(t, http.MethodDelete, "/v0/memories/"+memoryID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodDelete, "/v0/memories/"+memoryID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// clearing the per-user scope leaves nothing behind
	resp, body = ts.do(t, http.MethodDelete, "/v0/personas/nova/memories?userId=U1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["deleted"])

	resp, body = ts.do(t, http.MethodGet, "/v0/personas/nova/memories?userId=U1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["count"])
}

func TestImageGenerationEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createPersona(t, "Nova")

	resp, body := ts.do(t, http.MethodPost, "/v0/personas/nova/images", map[string]string{"prompt": "on a hill"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])

	ts.images.err = fmt.Errorf("prompt rejected: %w", model.ErrContentFiltered)
	resp, _ = ts.do(t, http.MethodPost, "/v0/personas/nova/images", map[string]string{"prompt": "nope"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestVideoGenerationEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.createPersona(t, "Nova")

	resp, body := ts.do(t, http.MethodPost, "/v0/personas/nova/videos", map[string]string{"prompt": "waving"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp4", body["mimeType"])
}
