package ads

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/clipcast/engine/internal/domain"
)

// CaptionDrafter fills in a caption when a CampaignOrchestrationRequest
// omits one, grounded on the teacher's OpenAICompletionExecutor. It is
// optional: a nil or zero-value drafter leaves the caption empty and the
// saga proceeds without one.
type CaptionDrafter struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

func NewCaptionDrafter(apiKey, model string, log zerolog.Logger) *CaptionDrafter {
	if model == "" {
		model = "gpt-4o"
	}
	return &CaptionDrafter{client: openai.NewClient(apiKey), model: model, log: log}
}

// Draft asks the model for a short caption describing the clip for the
// given platform. Failures are non-fatal to the caller: the orchestrator
// falls back to an empty caption rather than aborting the saga over a
// creative-copy nicety.
func (d *CaptionDrafter) Draft(ctx context.Context, clip *domain.Clip, platform domain.Platform) (string, error) {
	if d == nil || d.client == nil {
		return "", nil
	}
	prompt := fmt.Sprintf(
		"Write one short, punchy social media caption (no hashtags) for a %s video clip with visual_score=%.1f and engagement_score=%.1f.",
		platform, clip.VisualScore, clip.EngagementScore(),
	)
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     d.model,
		MaxTokens: 60,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		d.log.Warn().Err(err).Str("clip_id", clip.ID.String()).Msg("caption drafting failed, continuing without one")
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
