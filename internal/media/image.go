// Package media generates images and videos through the Gemini media APIs
// with bounded retry on rate limits.
package media

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/personahub/agent-service/internal/llm"
	"github.com/personahub/agent-service/internal/model"
)

// Image is one generated image.
type Image struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mimeType"`
}

// ImageGenerator produces images for a prompt under per-persona settings.
type ImageGenerator struct {
	client *genai.Client
	policy RetryPolicy
	log    zerolog.Logger
}

func NewImageGenerator(client *genai.Client, policy RetryPolicy, log zerolog.Logger) *ImageGenerator {
	return &ImageGenerator{client: client, policy: policy, log: log}
}

// Generate runs one image generation call, retrying rate limits per the
// policy. Content-policy rejections are terminal.
func (g *ImageGenerator) Generate(ctx context.Context, prompt string, settings model.ImageSettings) ([]Image, error) {
	cfg := &genai.GenerateImagesConfig{
		NumberOfImages: settings.NumberOfImages,
		AspectRatio:    settings.AspectRatio,
		NegativePrompt: settings.NegativePrompt,
	}

	var out []Image
	attempt := 0
	err := withRetry(ctx, g.policy, func() error {
		attempt++
		resp, err := g.client.Models.GenerateImages(ctx, settings.Model, prompt, cfg)
		if err != nil {
			err = llm.MapProviderError(err)
			if errors.Is(err, model.ErrRateLimited) {
				g.log.Warn().Int("attempt", attempt).Msg("image generation rate limited")
			}
			return err
		}
		if len(resp.GeneratedImages) == 0 {
			return errors.Wrap(model.ErrContentFiltered, "all images filtered")
		}
		out = out[:0]
		for _, gi := range resp.GeneratedImages {
			if gi == nil || gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
				continue
			}
			out = append(out, Image{Data: gi.Image.ImageBytes, MIMEType: gi.Image.MIMEType})
		}
		if len(out) == 0 {
			return errors.Wrap(model.ErrContentFiltered, "all images filtered")
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrRateLimited) || errors.Is(err, model.ErrContentFiltered) {
			return nil, err
		}
		return nil, errors.Wrap(model.ErrGeneration, err.Error())
	}
	return out, nil
}
