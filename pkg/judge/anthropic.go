package judge

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
	"github.com/XiaoConstantine/clara-go/pkg/logging"
)

const defaultJudgeModel = anthropic.Model("claude-sonnet-4-5-20250929")

// AnthropicJudge scores artifacts via the Anthropic Messages API. The
// Criterion string is interpolated into the grading prompt, so one
// client serves faithfulness, relevance and correctness judging.
type AnthropicJudge struct {
	client    *anthropic.Client
	model     anthropic.Model
	criterion string
}

// NewAnthropicJudge creates a judge for the named criterion. An empty
// modelID selects the default model.
func NewAnthropicJudge(apiKey, modelID, criterion string) (*AnthropicJudge, error) {
	if apiKey == "" {
		return nil, errors.New(errors.InvalidInput, "API key is required")
	}
	model := defaultJudgeModel
	if modelID != "" {
		model = anthropic.Model(modelID)
	}
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &AnthropicJudge{client: &client, model: model, criterion: criterion}, nil
}

func (j *AnthropicJudge) Judge(ctx context.Context, input core.JudgeInput) (core.JudgeVerdict, error) {
	logger := logging.GetLogger()

	prompt := fmt.Sprintf(`You are grading a loan assessment artifact on %s.

Question:
%s

Evidence:
%s

Artifact:
%s

Respond with a single line of the form "score: <value>" where <value> is a decimal between 0 and 1, followed by a one-sentence rationale on the next line.`,
		j.criterion, input.Question, input.Context, input.Answer)

	message, err := j.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model: j.model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
		MaxTokens: 256,
	})
	if err != nil {
		var apiErr *anthropic.Error
		if stderrors.As(err, &apiErr) {
			logger.Error(ctx, "Anthropic API error: status code %d", apiErr.StatusCode)
			if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
				return core.JudgeVerdict{}, errors.WithFields(
					errors.Wrap(err, errors.TransientCapability, "judge request throttled or unavailable"),
					errors.Fields{"criterion": j.criterion, "status": apiErr.StatusCode},
				)
			}
		}
		return core.JudgeVerdict{}, errors.WithFields(
			errors.Wrap(err, errors.InvalidResponse, "judge request failed"),
			errors.Fields{"criterion": j.criterion, "model": string(j.model)},
		)
	}
	if message == nil || len(message.Content) == 0 {
		return core.JudgeVerdict{}, errors.New(errors.InvalidResponse, "received empty judge response")
	}

	var text string
	if block := message.Content[0]; block.Type == "text" {
		text = block.Text
	}
	verdict, err := parseVerdict(text)
	if err != nil {
		return core.JudgeVerdict{}, errors.WithFields(
			errors.Wrap(err, errors.InvalidResponse, "failed to parse judge response"),
			errors.Fields{"criterion": j.criterion},
		)
	}
	logger.Debug(ctx, "%s judge scored %.2f (%d prompt tokens)",
		j.criterion, verdict.Score, message.Usage.InputTokens)
	return verdict, nil
}

func parseVerdict(text string) (core.JudgeVerdict, error) {
	lines := strings.SplitN(strings.TrimSpace(text), "\n", 2)
	scoreLine := strings.TrimSpace(lines[0])
	scoreLine = strings.TrimPrefix(strings.ToLower(scoreLine), "score:")
	score, err := strconv.ParseFloat(strings.TrimSpace(scoreLine), 64)
	if err != nil {
		return core.JudgeVerdict{}, fmt.Errorf("no score in response %q: %w", text, err)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	verdict := core.JudgeVerdict{Score: score}
	if len(lines) > 1 {
		verdict.Rationale = strings.TrimSpace(lines[1])
	}
	return verdict, nil
}
