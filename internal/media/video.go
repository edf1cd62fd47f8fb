package media

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/personahub/agent-service/internal/llm"
	"github.com/personahub/agent-service/internal/model"
)

// Video is one generated video. URI is set when the provider stores the
// result instead of returning bytes inline.
type Video struct {
	Data     []byte `json:"-"`
	URI      string `json:"uri,omitempty"`
	MIMEType string `json:"mimeType"`
}

// VideoGenerator drives the long-running video generation API: start the
// operation, poll until done or the wall-clock timeout expires.
type VideoGenerator struct {
	client       *genai.Client
	policy       RetryPolicy
	pollInterval time.Duration
	timeout      time.Duration
	log          zerolog.Logger
}

func NewVideoGenerator(client *genai.Client, policy RetryPolicy, pollInterval, timeout time.Duration, log zerolog.Logger) *VideoGenerator {
	return &VideoGenerator{client: client, policy: policy, pollInterval: pollInterval, timeout: timeout, log: log}
}

// Generate runs one video generation, retrying rate limits per the policy.
// Each attempt restarts the operation from scratch.
func (g *VideoGenerator) Generate(ctx context.Context, prompt string, settings model.VideoSettings) (*Video, error) {
	cfg := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    settings.AspectRatio,
		NegativePrompt: settings.NegativePrompt,
	}
	if settings.DurationSeconds > 0 {
		cfg.DurationSeconds = genai.Ptr(settings.DurationSeconds)
	}
	if settings.GenerateAudio {
		cfg.GenerateAudio = genai.Ptr(true)
	}

	var out *Video
	attempt := 0
	err := withRetry(ctx, g.policy, func() error {
		attempt++
		v, err := g.runOperation(ctx, prompt, settings.Model, cfg)
		if err != nil {
			if errors.Is(err, model.ErrRateLimited) {
				g.log.Warn().Int("attempt", attempt).Msg("video generation rate limited")
			}
			return err
		}
		out = v
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

func (g *VideoGenerator) runOperation(ctx context.Context, prompt, modelName string, cfg *genai.GenerateVideosConfig) (*Video, error) {
	opCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	op, err := g.client.Models.GenerateVideos(opCtx, modelName, prompt, nil, cfg)
	if err != nil {
		return nil, llm.MapProviderError(err)
	}
	for !op.Done {
		select {
		case <-opCtx.Done():
			return nil, errors.Wrap(model.ErrGeneration, "video operation timed out")
		case <-time.After(g.pollInterval):
		}
		op, err = g.client.Operations.GetVideosOperation(opCtx, op, nil)
		if err != nil {
			return nil, llm.MapProviderError(err)
		}
	}
	resp := op.Response
	if resp == nil || len(resp.GeneratedVideos) == 0 {
		if resp != nil && resp.RAIMediaFilteredCount > 0 {
			return nil, errors.Wrap(model.ErrContentFiltered, "video filtered")
		}
		return nil, errors.Wrap(model.ErrGeneration, "operation finished without a video")
	}
	v := resp.GeneratedVideos[0].Video
	if v == nil {
		return nil, errors.Wrap(model.ErrGeneration, "operation finished without a video")
	}
	return &Video{Data: v.VideoBytes, URI: v.URI, MIMEType: v.MIMEType}, nil
}
