package llm

import (
	"context"
	"fmt"

	"parley/parley/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var defaultBaseURLs = map[string]string{
	config.ProviderGemini: "https://generativelanguage.googleapis.com/v1beta/openai",
	config.ProviderOpenAI: "https://api.openai.com/v1",
	config.ProviderGroq:   "https://api.groq.com/openai/v1",
	config.ProviderOllama: "http://localhost:11434/api",
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Model     string
	Messages  []Message
	MaxTokens int
}

// Stream yields generated text incrementally. Recv returns io.EOF once the
// generation finished normally.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Client is the generation collaborator: a one-shot call and a token stream.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request) (Stream, error)
}

// NewClient builds the client for cfg.LLMProvider.
func NewClient(cfg config.Config) (Client, error) {
	baseURL := cfg.LLMBaseURL
	if baseURL == "" {
		baseURL = defaultBaseURLs[cfg.LLMProvider]
	}
	switch cfg.LLMProvider {
	case config.ProviderGemini, config.ProviderOpenAI, config.ProviderGroq:
		if cfg.LLMAPIKey == "" {
			return nil, fmt.Errorf("LLM_API_KEY is required for provider %s", cfg.LLMProvider)
		}
		return NewOpenAIClient(cfg.LLMAPIKey, baseURL), nil
	case config.ProviderOllama:
		return NewOllamaClient(baseURL), nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}
