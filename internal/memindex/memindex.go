// Package memindex maintains an in-process vector index over long-term
// memories so retrieval can rank by semantic similarity instead of recency.
package memindex

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/personahub/agent-service/internal/embeddings"
	"github.com/personahub/agent-service/internal/model"
)

// Result is one ranked hit from a similarity search.
type Result struct {
	MemoryID   string
	Content    string
	Similarity float32
}

// Index keeps one chromem collection per memory scope, so a search never
// crosses persona or user boundaries.
type Index struct {
	db    *chromem.DB
	embed chromem.EmbeddingFunc

	mu   sync.Mutex
	cols map[string]*chromem.Collection
}

// New builds an index that embeds documents with the given provider.
func New(provider embeddings.Provider) (*Index, error) {
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return provider.Embed(ctx, text)
	}
	return &Index{
		db:    chromem.NewDB(),
		embed: embed,
		cols:  make(map[string]*chromem.Collection),
	}, nil
}

func scopeKey(scope model.MemoryScope) string {
	return scope.PersonaName + "\x00" + scope.UserID
}

func (ix *Index) collection(scope model.MemoryScope) (*chromem.Collection, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	key := scopeKey(scope)
	if col, ok := ix.cols[key]; ok {
		return col, nil
	}
	col, err := ix.db.GetOrCreateCollection(key, nil, ix.embed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	ix.cols[key] = col
	return col, nil
}

// Add indexes one memory. Re-adding the same ID replaces the document.
func (ix *Index) Add(ctx context.Context, m *model.Memory) error {
	col, err := ix.collection(m.Scope)
	if err != nil {
		return err
	}
	return col.AddDocument(ctx, chromem.Document{ID: m.MemoryID, Content: m.Content})
}

// Remove drops a memory from its scope's collection. Unknown IDs are not an error.
func (ix *Index) Remove(ctx context.Context, scope model.MemoryScope, memoryID string) error {
	col, err := ix.collection(scope)
	if err != nil {
		return err
	}
	if col.Count() == 0 {
		return nil
	}
	return col.Delete(ctx, nil, nil, memoryID)
}

// RemoveScopes drops every collection belonging to one persona, shared and
// per-user alike. Used when the persona's durable rows are deleted so stale
// embeddings cannot resurface under a recreated name.
func (ix *Index) RemoveScopes(personaName string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	prefix := personaName + "\x00"
	for key := range ix.cols {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		_ = ix.db.DeleteCollection(key)
		delete(ix.cols, key)
	}
}

// Search returns up to topK memories from the given scope ranked by
// similarity to the query text.
func (ix *Index) Search(ctx context.Context, scope model.MemoryScope, query string, topK int) ([]Result, error) {
	col, err := ix.collection(scope)
	if err != nil {
		return nil, err
	}
	n := col.Count()
	if n == 0 || topK < 1 {
		return nil, nil
	}
	if topK > n {
		topK = n
	}
	hits, err := col.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, Result{MemoryID: h.ID, Content: h.Content, Similarity: h.Similarity})
	}
	return out, nil
}
