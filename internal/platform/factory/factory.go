// Package factory wires configuration onto concrete adapters.
package factory

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/personahub/agent-service/internal/config"
	"github.com/personahub/agent-service/internal/embeddings"
	"github.com/personahub/agent-service/internal/embeddings/ollama"
	"github.com/personahub/agent-service/internal/memindex"
	"github.com/personahub/agent-service/internal/store"
	"github.com/personahub/agent-service/internal/store/postgres"
	"github.com/personahub/agent-service/internal/store/sqlite"
)

// NewStore selects the relational adapter based on cfg.DBDriver.
func NewStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return sqlite.New(cfg.SQLitePath)
	case "postgres":
		if err := postgres.Bootstrap(ctx, cfg.PostgresDSN); err != nil {
			return nil, err
		}
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return postgres.NewWithDB(db), nil
	default:
		return nil, errors.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
}

// NewEmbedder selects the embedding provider for memory retrieval. A nil
// provider (EMBED_PROVIDER=none) means recency-only retrieval.
func NewEmbedder(cfg *config.Config, genaiClient *genai.Client) (embeddings.Provider, error) {
	switch cfg.EmbedProvider {
	case "none":
		return nil, nil
	case "ollama":
		return ollama.New(cfg.OllamaURL, cfg.EmbedModel), nil
	case "gemini":
		if genaiClient == nil {
			return nil, errors.New("gemini embeddings require a GenAI client")
		}
		return embeddings.NewGeminiProvider(genaiClient, cfg.EmbedModel), nil
	default:
		return nil, errors.Errorf("unknown EMBED_PROVIDER: %s", cfg.EmbedProvider)
	}
}

// NewMemoryIndex builds the vector index when an embedder is configured.
func NewMemoryIndex(provider embeddings.Provider) (*memindex.Index, error) {
	if provider == nil {
		return nil, nil
	}
	return memindex.New(provider)
}
