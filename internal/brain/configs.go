package brain

import (
	"encoding/json"
	"strings"
)

// Provider configurations

// OpenAIConfig targets any OpenAI-compatible chat completions endpoint.
func OpenAIConfig(apiKey, model, endpoint string) *ProviderConfig {
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/chat/completions"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &ProviderConfig{
		Name:          "openai",
		Endpoint:      endpoint,
		APIKey:        apiKey,
		Model:         model,
		AuthHeader:    "Authorization",
		AuthPrefix:    "Bearer ",
		BuildBody:     buildOpenAIBody,
		ParseResponse: parseOpenAIResponse,
	}
}

// OllamaConfig targets a local Ollama server.
func OllamaConfig(host, model string) *ProviderConfig {
	if host == "" {
		host = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.1"
	}
	return &ProviderConfig{
		Name:          "ollama",
		Endpoint:      strings.TrimRight(host, "/") + "/api/generate",
		Model:         model,
		NoAuth:        true,
		BuildBody:     buildOllamaBody,
		ParseResponse: parseOllamaResponse,
	}
}

// CreateProvider builds the named provider. Unknown names return nil.
func CreateProvider(name, apiKey, model, endpoint string) Provider {
	switch name {
	case "", "gemini":
		return NewGeminiProvider(apiKey, model)
	case "openai":
		return NewHTTPProvider(OpenAIConfig(apiKey, model, endpoint))
	case "ollama":
		return NewHTTPProvider(OllamaConfig(endpoint, model))
	default:
		return nil
	}
}

// Body builders

func buildOpenAIBody(model string, req Request) map[string]any {
	messages := []map[string]string{}
	if req.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.SystemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.UserPrompt})

	body := map[string]any{
		"model":                 model,
		"max_completion_tokens": maxTokensOr(req.MaxTokens, 4096),
		"messages":              messages,
	}
	if req.JSON {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	return body
}

func buildOllamaBody(model string, req Request) map[string]any {
	prompt := req.UserPrompt
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n" + req.UserPrompt
	}
	body := map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
	}
	if req.JSON {
		body["format"] = "json"
	}
	return body
}

// Response parsers

func parseOpenAIResponse(body []byte) (string, string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Model string `json:"model"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", err
	}
	if len(resp.Choices) > 0 {
		return resp.Choices[0].Message.Content, resp.Model, nil
	}
	return "", resp.Model, nil
}

func parseOllamaResponse(body []byte) (string, string, error) {
	var resp struct {
		Response string `json:"response"`
		Model    string `json:"model"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", err
	}
	return resp.Response, resp.Model, nil
}

func maxTokensOr(v, defaultVal int) int {
	if v > 0 {
		return v
	}
	return defaultVal
}
