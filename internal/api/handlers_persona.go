package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	respond "github.com/personahub/agent-service/internal/api/respond"
	"github.com/personahub/agent-service/internal/api/validate"
	"github.com/personahub/agent-service/internal/model"
	"github.com/personahub/agent-service/internal/services"
)

type PersonaHandler struct {
	svc *services.PersonaService
}

func NewPersonaHandler(svc *services.PersonaService) *PersonaHandler {
	return &PersonaHandler{svc: svc}
}

// CreatePersona POST /v0/personas
func (h *PersonaHandler) CreatePersona(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Personality string `json:"personality"`
		Appearance  string `json:"appearance,omitempty"`
		ChannelID   string `json:"channelId,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.PersonaName(req.Name); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.NonEmpty("personality", req.Personality); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.MaxLen("personality", req.Personality, 4000); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.MaxLen("appearance", req.Appearance, 2000); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	out, err := h.svc.Create(r.Context(), &model.Persona{
		DisplayName: req.Name,
		Personality: req.Personality,
		Appearance:  req.Appearance,
		ChannelID:   req.ChannelID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, out)
}

// GetPersona GET /v0/personas/{name}
func (h *PersonaHandler) GetPersona(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Get(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// ListPersonas GET /v0/personas
func (h *PersonaHandler) ListPersonas(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if out == nil {
		out = []*model.Persona{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"personas": out, "count": len(out)})
}

// UpdatePersona PATCH /v0/personas/{name}
func (h *PersonaHandler) UpdatePersona(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Personality string `json:"personality,omitempty"`
		Appearance  string `json:"appearance,omitempty"`
		ChannelID   string `json:"channelId,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	name := mux.Vars(r)["name"]
	current, err := h.svc.Get(r.Context(), name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	next := *current
	if req.Personality != "" {
		next.Personality = req.Personality
	}
	if req.Appearance != "" {
		next.Appearance = req.Appearance
	}
	if req.ChannelID != "" {
		next.ChannelID = req.ChannelID
	}
	out, err := h.svc.Update(r.Context(), name, &next)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// RenamePersona POST /v0/personas/{name}/rename
func (h *PersonaHandler) RenamePersona(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewName string `json:"newName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.PersonaName(req.NewName); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	out, err := h.svc.Rename(r.Context(), mux.Vars(r)["name"], req.NewName)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// DeletePersona DELETE /v0/personas/{name}
func (h *PersonaHandler) DeletePersona(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), mux.Vars(r)["name"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
