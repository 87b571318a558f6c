package provider

// #region imports
import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// #endregion

// #region config

const (
	defaultOpenAIBase = "https://api.openai.com/v1"
	maxErrorBodySize  = 1 << 20
)

// OpenAIConfig configures any OpenAI-compatible chat-completions endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // default https://api.openai.com/v1
	FastModel  string
	ProModel   string
	HTTPClient *http.Client
}

var openAIModels = map[Tier]string{
	TierFast: "gpt-3.5-turbo",
	TierPro:  "gpt-4o",
}

// #endregion

// #region wire-types

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// #endregion

// #region backend

// OpenAIBackend speaks the chat-completions JSON schema over HTTP.
type OpenAIBackend struct {
	apiKey     string
	endpoint   string
	models     map[Tier]string
	httpClient *http.Client
}

// NewOpenAIBackend creates an OpenAI-compatible backend.
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key is empty", ErrMisconfigured)
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultOpenAIBase
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Minute}
	}
	return &OpenAIBackend{
		apiKey:     cfg.APIKey,
		endpoint:   base + "/chat/completions",
		models:     tierModels(openAIModels, cfg.FastModel, cfg.ProModel),
		httpClient: hc,
	}, nil
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string { return "openai" }

// Generate implements Backend.
func (b *OpenAIBackend) Generate(ctx context.Context, req Request) (string, error) {
	body := openAIRequest{
		Model: b.models[req.Tier],
		Messages: []openAIMessage{
			{Role: "system", Content: req.SystemInstruction},
			{Role: "user", Content: req.UserContent},
		},
		Temperature: req.Temperature,
	}
	if req.JSON {
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return "", fmt.Errorf("openai request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	var decoded openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("openai error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", nil
	}
	return decoded.Choices[0].Message.Content, nil
}

// #endregion
