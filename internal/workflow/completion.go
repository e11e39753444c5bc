package workflow

import (
	"context"
	"errors"

	"github.com/rahul/flowdesk/internal/observability"
	"github.com/tmc/langchaingo/llms"
)

// Completion purposes, used for logs and metrics.
const (
	purposePlan    = "plan"
	purposeStep    = "step"
	purposePresent = "present"
)

var errNoChoices = errors.New("completion returned no choices")

// complete sends a system instruction and one human message to the model
// and returns the text of the first choice.
func complete(ctx context.Context, model llms.Model, logger *observability.Logger, runID, purpose, system, input string, temperature float64) (string, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(input)},
		},
	}

	resp, err := model.GenerateContent(ctx, messages, llms.WithTemperature(temperature))
	if err == nil && (resp == nil || len(resp.Choices) == 0) {
		err = errNoChoices
	}
	if err != nil {
		observability.CompletionRequestsTotal.WithLabelValues(purpose, "error").Inc()
		return "", err
	}
	observability.CompletionRequestsTotal.WithLabelValues(purpose, "ok").Inc()

	content := resp.Choices[0].Content
	logger.LogLLM(runID, purpose, input, content)
	return content, nil
}
