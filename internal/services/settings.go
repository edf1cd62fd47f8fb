package services

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/personahub/agent-service/internal/model"
	"github.com/personahub/agent-service/internal/store"
)

// SettingsDefaults supplies model names for personas without an explicit
// settings document.
type SettingsDefaults struct {
	ChatModel  string
	ImageModel string
	VideoModel string
}

var allowedAspectRatios = map[string]bool{
	"1:1":  true,
	"16:9": true,
	"9:16": true,
	"4:3":  true,
	"3:4":  true,
}

// SettingsService owns per-persona generation settings. Bad values are
// rejected on write so the orchestrator can trust whatever it reads.
type SettingsService struct {
	store    store.Store
	defaults SettingsDefaults
}

func NewSettingsService(s store.Store, defaults SettingsDefaults) *SettingsService {
	return &SettingsService{store: s, defaults: defaults}
}

// Defaults returns the settings applied when a persona has none stored.
func (s *SettingsService) Defaults(personaName string) *model.GenerationSettings {
	return &model.GenerationSettings{
		PersonaName: personaName,
		Chat:        model.ChatSettings{Model: s.defaults.ChatModel},
		Image:       model.ImageSettings{Model: s.defaults.ImageModel, NumberOfImages: 1, AspectRatio: "1:1"},
		Video:       model.VideoSettings{Model: s.defaults.VideoModel, AspectRatio: "16:9"},
	}
}

// Get returns the persona's settings, falling back to defaults when none
// are stored. Unset model names are filled from the defaults either way.
func (s *SettingsService) Get(ctx context.Context, personaName string) (*model.GenerationSettings, error) {
	key := model.NormalizePersonaName(personaName)
	gs, err := s.store.Settings().Get(ctx, key)
	if errors.Is(err, model.ErrNotFound) {
		return s.Defaults(key), nil
	}
	if err != nil {
		return nil, err
	}
	if gs.Chat.Model == "" {
		gs.Chat.Model = s.defaults.ChatModel
	}
	if gs.Image.Model == "" {
		gs.Image.Model = s.defaults.ImageModel
	}
	if gs.Video.Model == "" {
		gs.Video.Model = s.defaults.VideoModel
	}
	return gs, nil
}

// Put validates and stores the whole settings document for a persona that
// must already exist.
func (s *SettingsService) Put(ctx context.Context, gs *model.GenerationSettings) (*model.GenerationSettings, error) {
	gs.PersonaName = model.NormalizePersonaName(gs.PersonaName)
	if _, err := s.store.Personas().Get(ctx, gs.PersonaName); err != nil {
		return nil, err
	}
	if err := ValidateSettings(gs); err != nil {
		return nil, err
	}
	return s.store.Settings().Put(ctx, gs)
}

// Reset removes the stored document so the persona falls back to defaults.
func (s *SettingsService) Reset(ctx context.Context, personaName string) error {
	return s.store.Settings().Delete(ctx, model.NormalizePersonaName(personaName))
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrap(model.ErrValidation, fmt.Sprintf(format, args...))
}

// ValidateSettings checks every field range before anything is persisted.
func ValidateSettings(gs *model.GenerationSettings) error {
	c := gs.Chat
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return invalid("temperature %v out of range [0, 2]", *c.Temperature)
	}
	if c.TopP != nil && (*c.TopP < 0 || *c.TopP > 1) {
		return invalid("top_p %v out of range [0, 1]", *c.TopP)
	}
	if c.TopK != nil && *c.TopK < 1 {
		return invalid("top_k %v must be at least 1", *c.TopK)
	}
	if c.MaxOutputTokens < 0 {
		return invalid("max_output_tokens %d must not be negative", c.MaxOutputTokens)
	}
	if c.PresencePenalty != nil && (*c.PresencePenalty < -2 || *c.PresencePenalty > 2) {
		return invalid("presence_penalty %v out of range [-2, 2]", *c.PresencePenalty)
	}
	if c.FrequencyPenalty != nil && (*c.FrequencyPenalty < -2 || *c.FrequencyPenalty > 2) {
		return invalid("frequency_penalty %v out of range [-2, 2]", *c.FrequencyPenalty)
	}

	img := gs.Image
	if img.NumberOfImages != 0 && (img.NumberOfImages < 1 || img.NumberOfImages > 4) {
		return invalid("number_of_images %d out of range [1, 4]", img.NumberOfImages)
	}
	if img.AspectRatio != "" && !allowedAspectRatios[img.AspectRatio] {
		return invalid("unsupported aspect ratio %q", img.AspectRatio)
	}

	v := gs.Video
	if v.AspectRatio != "" && !allowedAspectRatios[v.AspectRatio] {
		return invalid("unsupported aspect ratio %q", v.AspectRatio)
	}
	if v.DurationSeconds < 0 {
		return invalid("duration_seconds %d must not be negative", v.DurationSeconds)
	}
	return nil
}
