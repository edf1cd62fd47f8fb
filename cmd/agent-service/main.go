package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/personahub/agent-service/internal/api"
	"github.com/personahub/agent-service/internal/config"
	"github.com/personahub/agent-service/internal/embeddings"
	"github.com/personahub/agent-service/internal/health"
	"github.com/personahub/agent-service/internal/llm"
	"github.com/personahub/agent-service/internal/media"
	"github.com/personahub/agent-service/internal/platform/factory"
	"github.com/personahub/agent-service/internal/platform/logger"
	"github.com/personahub/agent-service/internal/services"
	"github.com/personahub/agent-service/internal/store"
)

func main() {
	// Optional port override for local runs
	portFlag := flag.Int("port", 0, "Override AGENT_SERVICE_HTTP_PORT")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New("agent-service", false)
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *portFlag != 0 {
		cfg.HTTPPort = *portFlag
	}

	log := logger.New("agent-service", cfg.DebugLogging)

	log.Info().
		Str("environment", cfg.Environment).
		Str("db_driver", cfg.DBDriver).
		Str("embed_provider", cfg.EmbedProvider).
		Int("http_port", cfg.HTTPPort).
		Msg("Agent service starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// -------- Storage layer -----------------
	st, err := factory.NewStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Store adapter unavailable")
	}
	defer func() { _ = st.Close() }()

	// -------- Model provider ----------------
	gemini, err := llm.NewGemini(ctx, cfg.GenAIAPIKey, log)
	if err != nil {
		log.Fatal().Err(err).Msg("GenAI client unavailable")
	}

	// -------- Embeddings and vector index ---
	embedder, err := factory.NewEmbedder(cfg, gemini.Raw())
	if err != nil {
		log.Fatal().Err(err).Msg("Embedding provider unavailable")
	}
	idx, err := factory.NewMemoryIndex(embedder)
	if err != nil {
		log.Fatal().Err(err).Msg("Memory index unavailable")
	}

	// -------- Health monitors ---------------
	storeChecker := store.NewStoreHealthChecker(st, log, 5*time.Second)
	go storeChecker.Start(ctx, 30*time.Second)
	checkers := []health.HealthChecker{storeChecker}
	if embedder != nil {
		embedChecker := embeddings.NewProviderHealthChecker(embedder, log, 5*time.Second)
		go embedChecker.Start(ctx, 30*time.Second)
		checkers = append(checkers, embedChecker)
	}
	serviceHealth := health.NewServiceHealthChecker(log, checkers...)
	go serviceHealth.Start(ctx, 30*time.Second)

	// -------- Services ----------------------
	memories := services.NewMemoryService(st, idx, log)
	personas := services.NewPersonaService(st, memories, log)
	settings := services.NewSettingsService(st, services.SettingsDefaults{
		ChatModel:  cfg.ChatModel,
		ImageModel: cfg.ImageModel,
		VideoModel: cfg.VideoModel,
	})
	chat := services.NewChatService(st, gemini, memories, settings, cfg.MemoryTopK, cfg.MaxHistoryEvents, log)

	images := media.NewImageGenerator(gemini.Raw(), media.DefaultImagePolicy(cfg.ImageMaxRetries), log)
	videos := media.NewVideoGenerator(gemini.Raw(), media.DefaultVideoPolicy(cfg.VideoMaxRetries), cfg.VideoPollInterval, cfg.VideoTimeout, log)
	mediaSvc := services.NewMediaService(st, settings, images, videos, log)

	// -------- Router & Server ---------------
	router := api.NewRouter(api.Deps{
		Personas:  personas,
		Settings:  settings,
		Chat:      chat,
		Memories:  memories,
		Media:     mediaSvc,
		Store:     st,
		IsHealthy: serviceHealth.IsHealthy,
	})
	server := &http.Server{
		Addr:         cfg.GetHTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}
