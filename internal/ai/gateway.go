// Package ai provides provider-agnostic access to chat completion APIs used
// for grading open answers.
package ai

import (
	"context"
	"fmt"
	"strings"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to an AI completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// CompletionResponse is the output from an AI completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Provider is the interface all AI providers must implement.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// APIError is returned when a provider answers with a non-success status.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// MaskAPIKey shortens a credential for logging.
func MaskAPIKey(key string) string {
	switch {
	case key == "":
		return "NOT_SET"
	case len(key) <= 10:
		return key[:min(4, len(key))] + "***"
	default:
		return key[:10] + "..." + strings.Repeat("*", min(10, len(key)-10))
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
