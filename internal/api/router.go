package api

import (
	"github.com/gorilla/mux"

	"github.com/personahub/agent-service/internal/api/recovery"
	"github.com/personahub/agent-service/internal/services"
	"github.com/personahub/agent-service/internal/store"
)

// Deps carries the wired services the router exposes.
type Deps struct {
	Personas *services.PersonaService
	Settings *services.SettingsService
	Chat     *services.ChatService
	Memories *services.MemoryService
	Media    *services.MediaService
	Store    store.Store

	// IsHealthy reports aggregate dependency health. Optional.
	IsHealthy func() bool
}

// NewRouter builds the HTTP router with all API routes.
func NewRouter(deps Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery.Middleware)

	healthHandler := NewHealthHandler(deps.IsHealthy, deps.Store)
	personaHandler := NewPersonaHandler(deps.Personas)
	settingsHandler := NewSettingsHandler(deps.Settings)
	chatHandler := NewChatHandler(deps.Chat)
	memoryHandler := NewMemoryHandler(deps.Memories)
	mediaHandler := NewMediaHandler(deps.Media)

	// Health
	router.HandleFunc("/v0/health", healthHandler.CheckHealth).Methods("GET")
	router.HandleFunc("/v0/health/db", healthHandler.CheckStorageHealth).Methods("GET")

	// Personas
	router.HandleFunc("/v0/personas", personaHandler.CreatePersona).Methods("POST")
	router.HandleFunc("/v0/personas", personaHandler.ListPersonas).Methods("GET")
	router.HandleFunc("/v0/personas/{name}", personaHandler.GetPersona).Methods("GET")
	router.HandleFunc("/v0/personas/{name}", personaHandler.UpdatePersona).Methods("PATCH")
	router.HandleFunc("/v0/personas/{name}", personaHandler.DeletePersona).Methods("DELETE")
	router.HandleFunc("/v0/personas/{name}/rename", personaHandler.RenamePersona).Methods("POST")

	// Generation settings
	router.HandleFunc("/v0/personas/{name}/settings", settingsHandler.GetSettings).Methods("GET")
	router.HandleFunc("/v0/personas/{name}/settings", settingsHandler.PutSettings).Methods("PUT")
	router.HandleFunc("/v0/personas/{name}/settings", settingsHandler.ResetSettings).Methods("DELETE")

	// Chat
	router.HandleFunc("/v0/chat", chatHandler.HandleTurn).Methods("POST")
	router.HandleFunc("/v0/chat/sessions", chatHandler.ListSessions).Methods("GET")
	router.HandleFunc("/v0/chat/end-session", chatHandler.EndSession).Methods("POST")
	router.HandleFunc("/v0/chat/interpret-error", chatHandler.InterpretError).Methods("POST")

	// Channel sessions
	router.HandleFunc("/v0/channels/{channelId}/memories", chatHandler.GenerateChannelMemories).Methods("POST")
	router.HandleFunc("/v0/channels/{channelId}/session", chatHandler.DeleteChannelSession).Methods("DELETE")

	// Long-term memories
	router.HandleFunc("/v0/personas/{name}/memories", memoryHandler.ListMemories).Methods("GET")
	router.HandleFunc("/v0/personas/{name}/memories", memoryHandler.CreateMemory).Methods("POST")
	router.HandleFunc("/v0/personas/{name}/memories", memoryHandler.DeleteScope).Methods("DELETE")
	router.HandleFunc("/v0/memories/{memoryId}", memoryHandler.DeleteMemory).Methods("DELETE")

	// Media generation
	router.HandleFunc("/v0/personas/{name}/images", mediaHandler.GenerateImage).Methods("POST")
	router.HandleFunc("/v0/personas/{name}/videos", mediaHandler.GenerateVideo).Methods("POST")

	return router
}
