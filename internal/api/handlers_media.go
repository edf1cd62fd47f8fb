package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	respond "github.com/personahub/agent-service/internal/api/respond"
	"github.com/personahub/agent-service/internal/api/validate"
	"github.com/personahub/agent-service/internal/services"
)

type MediaHandler struct {
	svc *services.MediaService
}

func NewMediaHandler(svc *services.MediaService) *MediaHandler {
	return &MediaHandler{svc: svc}
}

type mediaRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateImage POST /v0/personas/{name}/images
func (h *MediaHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req mediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.NonEmpty("prompt", req.Prompt); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	images, err := h.svc.GenerateImage(r.Context(), mux.Vars(r)["name"], req.Prompt)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	type imageOut struct {
		MIMEType string `json:"mimeType"`
		Data     string `json:"data"`
	}
	out := make([]imageOut, 0, len(images))
	for _, img := range images {
		out = append(out, imageOut{
			MIMEType: img.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		})
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"images": out, "count": len(out)})
}

// GenerateVideo POST /v0/personas/{name}/videos
func (h *MediaHandler) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req mediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.NonEmpty("prompt", req.Prompt); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	video, err := h.svc.GenerateVideo(r.Context(), mux.Vars(r)["name"], req.Prompt)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"mimeType": video.MIMEType,
		"uri":      video.URI,
		"data":     base64.StdEncoding.EncodeToString(video.Data),
	})
}
