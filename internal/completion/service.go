// Package completion provides the text completion services used to analyze
// combined record text: an HTTP backend speaking the local generate API and a
// Gemini backend through the genai SDK.
package completion

import (
	"context"
	"fmt"
)

// Service produces a completion for one prompt and text pair.
type Service interface {
	// Complete sends the prompt and the text to analyze to the backend and
	// returns the model response.
	//
	// Parameters:
	//
	//	ctx: The context for the request.
	//	prompt: The user instruction applied to every record.
	//	text: The combined record text to analyze.
	//
	// Returns:
	//
	//	string: The model response.
	//	error: A *Error when the backend rejects or fails the request.
	Complete(ctx context.Context, prompt string, text string) (string, error)
}

// Error describes a failed completion request. It is carried per record: a
// completion failure never fails the surrounding job.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("completion request failed: status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("completion request failed: %s", e.Body)
}

// buildInput joins the instruction prompt and the record text into the single
// input string both backends send.
func buildInput(prompt, text string) string {
	return prompt + "\n\nText to analyze: " + text
}
