package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/personahub/agent-service/internal/model"
)

// Gemini implements Client over the google.golang.org/genai SDK.
type Gemini struct {
	client *genai.Client
	log    zerolog.Logger
}

// NewGemini dials the Gemini API with an API key.
func NewGemini(ctx context.Context, apiKey string, log zerolog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, errors.Wrap(err, "create genai client")
	}
	return &Gemini{client: client, log: log}, nil
}

// Raw exposes the underlying SDK client so embeddings and media generation
// can share one connection.
func (g *Gemini) Raw() *genai.Client { return g.client }

func saveMemoryDeclaration() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        SaveMemoryTool,
			Description: "Save an important fact about the user for future conversations. Write the fact in third person.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"fact": {
						Type:        genai.TypeString,
						Description: "The fact to remember, phrased in third person about the user.",
					},
				},
				Required: []string{"fact"},
			},
		}},
	}
}

func generationConfig(req CompleteRequest) *genai.GenerateContentConfig {
	s := req.Settings
	cfg := &genai.GenerateContentConfig{
		Temperature:      s.Temperature,
		TopP:             s.TopP,
		TopK:             s.TopK,
		PresencePenalty:  s.PresencePenalty,
		FrequencyPenalty: s.FrequencyPenalty,
		MaxOutputTokens:  s.MaxOutputTokens,
		StopSequences:    s.StopSequences,
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if s.SafetyThreshold != "" {
		threshold := genai.HarmBlockThreshold(s.SafetyThreshold)
		for _, cat := range []genai.HarmCategory{
			genai.HarmCategoryHarassment,
			genai.HarmCategoryHateSpeech,
			genai.HarmCategorySexuallyExplicit,
			genai.HarmCategoryDangerousContent,
		} {
			cfg.SafetySettings = append(cfg.SafetySettings, &genai.SafetySetting{Category: cat, Threshold: threshold})
		}
	}
	if req.EnableMemoryTool {
		cfg.Tools = []*genai.Tool{saveMemoryDeclaration()}
	}
	return cfg
}

func toContents(msgs []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		if m.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
	}
	return out
}

func (g *Gemini) Complete(ctx context.Context, req CompleteRequest) (*Reply, error) {
	resp, err := g.client.Models.GenerateContent(ctx, req.Settings.Model, toContents(req.Messages), generationConfig(req))
	if err != nil {
		return nil, MapProviderError(err)
	}
	return parseReply(resp)
}

// parseReply turns a raw SDK response into the tagged Reply form. Safety
// blocks surface as ErrContentFiltered, empty candidates as ErrGeneration.
func parseReply(resp *genai.GenerateContentResponse) (*Reply, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, errors.Wrap(model.ErrContentFiltered, string(resp.PromptFeedback.BlockReason))
		}
		return nil, errors.Wrap(model.ErrGeneration, "empty response")
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return nil, errors.Wrap(model.ErrContentFiltered, "candidate blocked")
	}
	var r Reply
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			r.ToolCalls = append(r.ToolCalls, ToolCall{Name: part.FunctionCall.Name, Args: part.FunctionCall.Args})
		}
	}
	r.Text = strings.TrimSpace(text.String())
	if r.Text == "" && len(r.ToolCalls) == 0 {
		return nil, errors.Wrap(model.ErrGeneration, "no text or tool calls in response")
	}
	return &r, nil
}

const extractionPrompt = `You review a finished conversation between a user and an AI persona.
Extract durable facts about the user worth remembering in future conversations.
Rules:
- Write each fact in third person ("The user ...").
- Only include facts stated or strongly implied by the user.
- Skip small talk, one-off requests and anything about the persona itself.
Respond with a JSON array of strings. Respond with [] if there is nothing worth keeping.`

func (g *Gemini) ExtractFacts(ctx context.Context, modelName string, transcript []Message) ([]string, error) {
	if len(transcript) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	for _, m := range transcript {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: extractionPrompt}}},
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: sb.String()}}}}
	resp, err := g.client.Models.GenerateContent(ctx, modelName, contents, cfg)
	if err != nil {
		return nil, MapProviderError(err)
	}
	reply, err := parseReply(resp)
	if err != nil {
		return nil, err
	}
	facts, err := parseFactList(reply.Text)
	if err != nil {
		g.log.Debug().Str("raw", reply.Text).Msg("fact extraction returned unparseable output")
		return nil, err
	}
	return facts, nil
}

// parseFactList decodes a JSON string array, tolerating markdown code fences
// around it.
func parseFactList(raw string) ([]string, error) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "["); i >= 0 {
		if j := strings.LastIndex(s, "]"); j > i {
			s = s[i : j+1]
		}
	}
	if s == "" {
		return nil, nil
	}
	var facts []string
	if err := json.Unmarshal([]byte(s), &facts); err != nil {
		return nil, errors.Wrap(err, "decode fact list")
	}
	out := facts[:0]
	for _, f := range facts {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out, nil
}

// MapProviderError folds SDK errors onto the service error taxonomy.
func MapProviderError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return errors.Wrap(model.ErrRateLimited, apiErr.Message)
		}
	}
	msg := err.Error()
	upper := strings.ToUpper(msg)
	if strings.Contains(msg, "429") || strings.Contains(upper, "RESOURCE_EXHAUSTED") {
		return errors.Wrap(model.ErrRateLimited, msg)
	}
	if strings.Contains(upper, "SAFETY") || strings.Contains(upper, "BLOCKED") {
		return errors.Wrap(model.ErrContentFiltered, msg)
	}
	return err
}
