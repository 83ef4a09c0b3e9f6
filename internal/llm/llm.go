package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrMalformedOutput is returned when the model answered but its output does
// not match the declared shape.
var ErrMalformedOutput = errors.New("malformed model output")

// Client sends a prompt together with a declared output shape to a
// generative-language model and returns the raw JSON text it produced.
type Client interface {
	Complete(ctx context.Context, prompt string, shape *Shape) (string, error)
	Ping(ctx context.Context) error
}

// Provider selects the model API.
type Provider string

const (
	// ProviderGemini talks to the Google Generative Language REST API.
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI talks to any OpenAI-compatible chat completions API.
	ProviderOpenAI Provider = "openai"
)

// Config configures a Client.
type Config struct {
	Provider    Provider
	BaseURL     string // empty means the provider's public endpoint
	APIKey      string
	Model       string
	Temperature float32      // 0 means the provider default
	HTTPClient  *http.Client // optional
}

// New creates a Client for the configured provider.
func New(cfg Config) (Client, error) {
	if cfg.Model == "" {
		return nil, errors.New("model name is required")
	}
	switch Provider(strings.ToLower(string(cfg.Provider))) {
	case ProviderGemini, "":
		if cfg.APIKey == "" {
			return nil, errors.New("gemini: API key is required (set --llm-key or AI_API_KEY)")
		}
		return NewGemini(cfg), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
