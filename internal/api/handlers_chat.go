package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	respond "github.com/personahub/agent-service/internal/api/respond"
	"github.com/personahub/agent-service/internal/api/validate"
	"github.com/personahub/agent-service/internal/services"
)

type ChatHandler struct {
	svc *services.ChatService
}

func NewChatHandler(svc *services.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// HandleTurn POST /v0/chat
func (h *ChatHandler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PersonaName string `json:"personaName"`
		UserID      string `json:"userId"`
		DisplayName string `json:"displayName,omitempty"`
		Message     string `json:"message"`
		SessionID   string `json:"sessionId,omitempty"`
		ChannelID   string `json:"channelId,omitempty"`
		ChannelMode bool   `json:"channelMode,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.NonEmpty("personaName", req.PersonaName); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.UserID(req.UserID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	out, err := h.svc.Turn(r.Context(), services.TurnRequest{
		PersonaName: req.PersonaName,
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		Message:     req.Message,
		SessionID:   req.SessionID,
		ChannelID:   req.ChannelID,
		ChannelMode: req.ChannelMode,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// ListSessions GET /v0/chat/sessions
func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessions, err := h.svc.ListSessions(r.Context(), q.Get("personaName"), q.Get("userId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// EndSession POST /v0/chat/end-session
func (h *ChatHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		// ExtractMemories defaults to true when omitted.
		ExtractMemories *bool `json:"extractMemories,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.NonEmpty("sessionId", req.SessionID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	extract := req.ExtractMemories == nil || *req.ExtractMemories
	out, err := h.svc.EndSession(r.Context(), req.SessionID, extract)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// InterpretError POST /v0/chat/interpret-error
func (h *ChatHandler) InterpretError(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ErrorMessage string `json:"errorMessage"`
		ErrorContext string `json:"errorContext,omitempty"`
		PersonaName  string `json:"personaName,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.NonEmpty("errorMessage", req.ErrorMessage); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	text, err := h.svc.InterpretError(r.Context(), req.ErrorMessage, req.ErrorContext, req.PersonaName)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"interpretation": text})
}

// GenerateChannelMemories POST /v0/channels/{channelId}/memories
func (h *ChatHandler) GenerateChannelMemories(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId,omitempty"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.WriteBadRequest(w, "Invalid JSON")
			return
		}
	}
	out, err := h.svc.GenerateChannelMemories(r.Context(), mux.Vars(r)["channelId"], req.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// DeleteChannelSession DELETE /v0/channels/{channelId}/session
func (h *ChatHandler) DeleteChannelSession(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.DeleteChannelSession(r.Context(), mux.Vars(r)["channelId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}
