package api

import (
	"errors"
	"net/http"

	respond "github.com/personahub/agent-service/internal/api/respond"
	"github.com/personahub/agent-service/internal/model"
)

// writeServiceError maps the service error taxonomy onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		respond.WriteBadRequest(w, err.Error())
	case errors.Is(err, model.ErrNotFound):
		respond.WriteNotFound(w, err.Error())
	case errors.Is(err, model.ErrConflict):
		respond.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrRateLimited):
		respond.WriteError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, model.ErrContentFiltered):
		respond.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respond.WriteInternalError(w, err.Error())
	}
}
