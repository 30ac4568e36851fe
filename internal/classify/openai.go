package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClassifier implements Classifier against the OpenAI chat API. It is
// interchangeable with the Gemini backend; deployments pick whichever key
// they have.
type OpenAIClassifier struct {
	client  openai.Client
	modelID string
}

// NewOpenAIClassifier creates a new OpenAI-backed classifier.
func NewOpenAIClassifier(apiKey, modelID string) (*OpenAIClassifier, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("classify: openai api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = openai.ChatModelGPT4oMini
	}
	return &OpenAIClassifier{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		modelID: modelID,
	}, nil
}

// Classify sends the message to OpenAI and parses the JSON verdict.
func (c *OpenAIClassifier) Classify(ctx context.Context, in Input) (Result, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.modelID,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildUserPrompt(in)),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("classify: openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, errors.New("classify: openai returned no choices")
	}
	return parseResult(resp.Choices[0].Message.Content)
}
