package brain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/abelbrown/sentix/internal/logging"
	"google.golang.org/genai"
)

const (
	DefaultGeminiModel    = "gemini-3-flash-preview"
	DefaultGeminiFallback = "gemini-2.5-flash"
)

var _ Provider = (*GeminiProvider)(nil)

// GeminiProvider talks to the Gemini API through the genai SDK.
type GeminiProvider struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiProvider creates a provider. The SDK client is created lazily on
// the first request.
func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{apiKey: apiKey, model: model}
}

func (g *GeminiProvider) Name() string {
	return "gemini"
}

func (g *GeminiProvider) Available() bool {
	return g.apiKey != ""
}

func (g *GeminiProvider) getClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	g.client = client
	return client, nil
}

func (g *GeminiProvider) Generate(ctx context.Context, req Request) (Response, error) {
	if !g.Available() {
		return Response{}, fmt.Errorf("gemini provider not configured")
	}
	client, err := g.getClient(ctx)
	if err != nil {
		return Response{}, err
	}

	model := modelOr(req, g.model)
	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	logging.Debug("Gemini request", "model", model, "prompt_len", len(req.UserPrompt))

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(req.UserPrompt), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
			return Response{}, fmt.Errorf("gemini %s: %w: %w", model, ErrRateLimited, err)
		}
		return Response{}, fmt.Errorf("gemini %s: %w", model, err)
	}

	return Response{
		Content: resp.Text(),
		Model:   model,
	}, nil
}
