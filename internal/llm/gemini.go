package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const defaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient calls the Gemini generateContent endpoint with a
// responseSchema, so the service itself constrains the output shape.
type GeminiClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float32
	http        *http.Client
}

// NewGemini creates a Gemini client.
func NewGemini(cfg Config) *GeminiClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGeminiURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &GeminiClient{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		model:       strings.TrimPrefix(cfg.Model, "models/"),
		temperature: cfg.Temperature,
		http:        hc,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string         `json:"responseMimeType"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
	Temperature      *float32       `json:"temperature,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Complete implements Client.
func (c *GeminiClient) Complete(ctx context.Context, prompt string, shape *Shape) (string, error) {
	req := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			ResponseMimeType: "application/json",
		},
	}
	if shape != nil {
		req.GenerationConfig.ResponseSchema = shape.geminiSchema()
	}
	if c.temperature > 0 {
		t := c.temperature
		req.GenerationConfig.Temperature = &t
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	data, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", err
	}

	var resp geminiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse gemini response: %w", err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini blocked the prompt: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	raw := sb.String()
	slog.Debug("gemini response", "model", c.model, "finish_reason", resp.Candidates[0].FinishReason, "raw", raw)
	return raw, nil
}

// Ping checks that the model exists and the key is accepted.
func (c *GeminiClient) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/models/%s", c.baseURL, c.model), nil)
	return err
}

func (c *GeminiClient) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var ge geminiError
		if json.Unmarshal(data, &ge) == nil && ge.Error.Message != "" {
			return nil, fmt.Errorf("gemini: %s (%d %s)", ge.Error.Message, resp.StatusCode, ge.Error.Status)
		}
		return nil, fmt.Errorf("gemini: unexpected status %d", resp.StatusCode)
	}
	return data, nil
}
