package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPService talks to a local generate endpoint (an Ollama style
// POST {base_url}/api/generate API) with streaming disabled.
type HTTPService struct {
	baseURL string
	model   string
	client  *http.Client
}

var _ Service = (*HTTPService)(nil)

// NewHTTPService creates an HTTPService for the given endpoint and model.
//
// Parameters:
//
//	baseURL: The base URL of the generate endpoint.
//	model: The model name to request.
//	timeout: The per-request HTTP timeout.
func NewHTTPService(baseURL, model string, timeout time.Duration) *HTTPService {
	return &HTTPService{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// generateRequest is the wire shape of a generate call.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse is the wire shape of a non-streaming generate result.
type generateResponse struct {
	Response string `json:"response"`
}

// Complete sends the combined input to the generate endpoint and returns the
// model response.
func (s *HTTPService) Complete(ctx context.Context, prompt string, text string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  s.model,
		Prompt: buildInput(prompt, text),
		Stream: false,
	})
	if err != nil {
		return "", &Error{Body: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Body: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &Error{Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBytes, _ := io.ReadAll(resp.Body)
		return "", &Error{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBytes))}
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", &Error{Status: resp.StatusCode, Body: err.Error()}
	}
	return gr.Response, nil
}
