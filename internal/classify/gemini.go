package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClassifier implements Classifier using Google's Gemini API.
type GeminiClassifier struct {
	client  *genai.Client
	modelID string
}

// NewGeminiClassifier creates a new Gemini-backed classifier.
func NewGeminiClassifier(ctx context.Context, apiKey, modelID string) (*GeminiClassifier, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("classify: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("classify: failed to create gemini client: %w", err)
	}

	return &GeminiClassifier{client: client, modelID: modelID}, nil
}

// Classify sends the message to Gemini and parses the JSON verdict.
func (c *GeminiClassifier) Classify(ctx context.Context, in Input) (Result, error) {
	model := c.client.GenerativeModel(c.modelID)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))

	resp, err := model.GenerateContent(ctx, genai.Text(buildUserPrompt(in)))
	if err != nil {
		return Result{}, fmt.Errorf("classify: gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Result{}, errors.New("classify: gemini returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return parseResult(text.String())
}

// Close releases the underlying API client.
func (c *GeminiClassifier) Close() error {
	return c.client.Close()
}
