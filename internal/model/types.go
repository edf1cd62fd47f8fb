package model

import (
	"strings"
	"time"
)

// Persona is an AI character. Personas are addressed by their normalized
// name (lower-cased, trimmed); DisplayName preserves the casing the creator
// chose. Personality steers text generation, Appearance steers image and
// video prompts, and ChannelID optionally binds the persona to one channel.
type Persona struct {
	NameKey      string    `json:"nameKey"`
	DisplayName  string    `json:"displayName"`
	Personality  string    `json:"personality"`
	Appearance   string    `json:"appearance,omitempty"`
	ChannelID    string    `json:"channelId,omitempty"`
	CreationTime time.Time `json:"creationTime"`
	UpdateTime   time.Time `json:"updateTime"`
}

// NormalizePersonaName maps a user-supplied persona name onto its storage
// key. Lookups, memory scopes and settings all use the normalized form.
func NormalizePersonaName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ChatSettings are the per-persona text generation knobs.
type ChatSettings struct {
	Model            string   `json:"model"`
	Temperature      *float32 `json:"temperature,omitempty"`
	TopP             *float32 `json:"topP,omitempty"`
	TopK             *float32 `json:"topK,omitempty"`
	MaxOutputTokens  int32    `json:"maxOutputTokens,omitempty"`
	PresencePenalty  *float32 `json:"presencePenalty,omitempty"`
	FrequencyPenalty *float32 `json:"frequencyPenalty,omitempty"`
	StopSequences    []string `json:"stopSequences,omitempty"`
	SafetyThreshold  string   `json:"safetyThreshold,omitempty"`
}

// ImageSettings control image generation requests.
type ImageSettings struct {
	Model          string `json:"model"`
	NumberOfImages int32  `json:"numberOfImages,omitempty"`
	AspectRatio    string `json:"aspectRatio,omitempty"`
	NegativePrompt string `json:"negativePrompt,omitempty"`
}

// VideoSettings control video generation requests.
type VideoSettings struct {
	Model           string `json:"model"`
	AspectRatio     string `json:"aspectRatio,omitempty"`
	DurationSeconds int32  `json:"durationSeconds,omitempty"`
	GenerateAudio   bool   `json:"generateAudio,omitempty"`
	NegativePrompt  string `json:"negativePrompt,omitempty"`
}

// GenerationSettings is the full per-persona settings document. Stored as a
// single JSON value keyed by persona so partial updates stay atomic.
type GenerationSettings struct {
	PersonaName string        `json:"personaName"`
	Chat        ChatSettings  `json:"chat"`
	Image       ImageSettings `json:"image"`
	Video       VideoSettings `json:"video"`
	UpdateTime  time.Time     `json:"updateTime"`
}

// Session is a direct conversation between one user and one persona.
type Session struct {
	SessionID    string    `json:"sessionId"`
	PersonaName  string    `json:"personaName"`
	UserID       string    `json:"userId"`
	CreationTime time.Time `json:"creationTime"`
}

// Event roles within a session transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SessionEvent is one transcript entry. Seq is assigned by the store and is
// strictly increasing within a session.
type SessionEvent struct {
	SessionID    string    `json:"sessionId"`
	Seq          int64     `json:"seq"`
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	CreationTime time.Time `json:"creationTime"`
}

// ChannelSession binds a persona to a shared channel. UserID records who
// activated the persona in the channel and is preserved across re-activation.
type ChannelSession struct {
	ChannelID    string    `json:"channelId"`
	PersonaName  string    `json:"personaName"`
	SessionID    string    `json:"sessionId"`
	UserID       string    `json:"userId"`
	CreationTime time.Time `json:"creationTime"`
}

// MemoryScope identifies which conversations a memory is visible to. An
// empty UserID means the memory is shared across all users of the persona.
type MemoryScope struct {
	PersonaName string `json:"personaName"`
	UserID      string `json:"userId,omitempty"`
}

// Shared reports whether the scope is persona-wide rather than per-user.
func (s MemoryScope) Shared() bool { return s.UserID == "" }

// Memory is a long-term fact retained across sessions.
type Memory struct {
	MemoryID     string      `json:"memoryId"`
	Scope        MemoryScope `json:"scope"`
	Content      string      `json:"content"`
	CreationTime time.Time   `json:"creationTime"`
}
