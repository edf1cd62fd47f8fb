package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	respond "github.com/personahub/agent-service/internal/api/respond"
	"github.com/personahub/agent-service/internal/api/validate"
	"github.com/personahub/agent-service/internal/model"
	"github.com/personahub/agent-service/internal/services"
)

type MemoryHandler struct {
	svc *services.MemoryService
}

func NewMemoryHandler(svc *services.MemoryService) *MemoryHandler {
	return &MemoryHandler{svc: svc}
}

func scopeFromRequest(r *http.Request) model.MemoryScope {
	return model.MemoryScope{
		PersonaName: model.NormalizePersonaName(mux.Vars(r)["name"]),
		UserID:      r.URL.Query().Get("userId"),
	}
}

// ListMemories GET /v0/personas/{name}/memories?userId=...
// Without userId the shared scope is listed.
func (h *MemoryHandler) ListMemories(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respond.WriteBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respond.WriteBadRequest(w, "offset must be a non-negative integer")
			return
		}
		offset = n
	}
	out, err := h.svc.List(r.Context(), scopeFromRequest(r), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if out == nil {
		out = []*model.Memory{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"memories": out, "count": len(out)})
}

// CreateMemory POST /v0/personas/{name}/memories
func (h *MemoryHandler) CreateMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"userId,omitempty"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.NonEmpty("content", req.Content); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	scope := model.MemoryScope{
		PersonaName: model.NormalizePersonaName(mux.Vars(r)["name"]),
		UserID:      req.UserID,
	}
	out, err := h.svc.Save(r.Context(), scope, req.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, out)
}

// DeleteScope DELETE /v0/personas/{name}/memories?userId=...
// Clears one whole scope; without userId the shared scope is cleared.
func (h *MemoryHandler) DeleteScope(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.DeleteScope(r.Context(), scopeFromRequest(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"deleted": deleted})
}

// DeleteMemory DELETE /v0/memories/{memoryId}
func (h *MemoryHandler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), mux.Vars(r)["memoryId"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
