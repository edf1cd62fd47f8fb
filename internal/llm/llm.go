// Package llm adapts the Gemini API into the narrow surface chat
// orchestration needs: one completion call, one fact-extraction call, and a
// typed reply that separates text from tool calls.
package llm

import (
	"context"
	"strings"

	"github.com/personahub/agent-service/internal/model"
)

// SaveMemoryTool is the function name personas call to persist a long-term
// fact mid-conversation.
const SaveMemoryTool = "save_memory"

// Message is one transcript entry sent to the model.
type Message struct {
	Role    string
	Content string
}

// CompleteRequest carries everything one completion call needs.
type CompleteRequest struct {
	SystemPrompt string
	Messages     []Message
	Settings     model.ChatSettings
	// EnableMemoryTool exposes the save_memory function to the model.
	EnableMemoryTool bool
}

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	Name string
	Args map[string]any
}

// Reply is the parsed model output. Text and ToolCalls can both be present
// in a single turn.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
}

// Fact extracts the save_memory payload from a tool call. The second return
// is false when the call is not save_memory or the argument is missing or
// empty.
func (tc ToolCall) Fact() (string, bool) {
	if tc.Name != SaveMemoryTool {
		return "", false
	}
	raw, ok := tc.Args["fact"]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	s = strings.TrimSpace(s)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Client is the provider-facing interface services depend on.
type Client interface {
	// Complete runs one chat completion. Provider failures are mapped onto
	// the model error taxonomy (ErrRateLimited, ErrContentFiltered,
	// ErrGeneration).
	Complete(ctx context.Context, req CompleteRequest) (*Reply, error)

	// ExtractFacts distills third-person facts about the user from a
	// finished transcript. An empty slice means nothing worth keeping.
	ExtractFacts(ctx context.Context, modelName string, transcript []Message) ([]string, error)
}
