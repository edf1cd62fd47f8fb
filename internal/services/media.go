package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/personahub/agent-service/internal/media"
	"github.com/personahub/agent-service/internal/model"
	"github.com/personahub/agent-service/internal/store"
)

// ImageBackend produces images for a prompt.
type ImageBackend interface {
	Generate(ctx context.Context, prompt string, settings model.ImageSettings) ([]media.Image, error)
}

// VideoBackend produces one video for a prompt.
type VideoBackend interface {
	Generate(ctx context.Context, prompt string, settings model.VideoSettings) (*media.Video, error)
}

// MediaService generates persona imagery. The persona's appearance, when
// set, is folded into every prompt so outputs stay visually consistent.
type MediaService struct {
	store    store.Store
	settings *SettingsService
	images   ImageBackend
	videos   VideoBackend
	log      zerolog.Logger
}

func NewMediaService(s store.Store, settings *SettingsService, images ImageBackend, videos VideoBackend, log zerolog.Logger) *MediaService {
	return &MediaService{store: s, settings: settings, images: images, videos: videos, log: log}
}

func (s *MediaService) composePrompt(ctx context.Context, personaName, prompt string) (string, *model.GenerationSettings, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", nil, errors.Wrap(model.ErrValidation, "prompt is required")
	}
	key := model.NormalizePersonaName(personaName)
	persona, err := s.store.Personas().Get(ctx, key)
	if err != nil {
		return "", nil, err
	}
	settings, err := s.settings.Get(ctx, key)
	if err != nil {
		return "", nil, err
	}
	if persona.Appearance != "" {
		prompt = fmt.Sprintf("%s. %s", prompt, persona.Appearance)
	}
	return prompt, settings, nil
}

// GenerateImage produces images of the persona for the given prompt.
func (s *MediaService) GenerateImage(ctx context.Context, personaName, prompt string) ([]media.Image, error) {
	full, settings, err := s.composePrompt(ctx, personaName, prompt)
	if err != nil {
		return nil, err
	}
	return s.images.Generate(ctx, full, settings.Image)
}

// GenerateVideo produces one video of the persona for the given prompt.
func (s *MediaService) GenerateVideo(ctx context.Context, personaName, prompt string) (*media.Video, error) {
	full, settings, err := s.composePrompt(ctx, personaName, prompt)
	if err != nil {
		return nil, err
	}
	return s.videos.Generate(ctx, full, settings.Video)
}
