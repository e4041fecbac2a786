package completion

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiService produces completions through the Gemini API.
type GeminiService struct {
	client *genai.Client
	model  string
}

var _ Service = (*GeminiService)(nil)

// NewGeminiService creates a GeminiService for the given API key and model.
//
// Parameters:
//
//	ctx: The context for client initialization.
//	apiKey: The Gemini API key.
//	model: The model name to request.
func NewGeminiService(ctx context.Context, apiKey, model string) (*GeminiService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiService{client: client, model: model}, nil
}

// Complete sends the combined input to the Gemini API and returns the model
// response text.
func (s *GeminiService) Complete(ctx context.Context, prompt string, text string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(buildInput(prompt, text), genai.RoleUser),
	}

	result, err := s.client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		return "", &Error{Body: err.Error()}
	}

	response := result.Text()
	if response == "" {
		return "", &Error{Body: "empty response from model"}
	}
	return response, nil
}
