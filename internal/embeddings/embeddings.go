package embeddings

import "context"

// Provider turns text into a dense vector for similarity search over
// persona memories.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
