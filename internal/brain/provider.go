package brain

import (
	"context"
)

// Provider is a generative text backend.
type Provider interface {
	// Name returns the provider name (e.g., "gemini", "ollama")
	Name() string

	// Available returns true if the provider is configured and ready
	Available() bool

	// Generate sends a prompt and returns the response
	Generate(ctx context.Context, req Request) (Response, error)
}

// Request is a prompt request to a provider.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int

	// Model overrides the provider's configured model for this request.
	// The invoker sets it to switch between primary and fallback.
	Model string

	// JSON asks the backend for a JSON body when it supports that.
	JSON bool
}

// Response is the provider's response.
type Response struct {
	Content     string
	Model       string
	RawResponse string // raw API body, kept for debugging
}

func modelOr(req Request, def string) string {
	if req.Model != "" {
		return req.Model
	}
	return def
}
