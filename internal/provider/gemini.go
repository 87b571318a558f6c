package provider

// #region imports
import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// #endregion

// #region config

// GeminiConfig configures the Gemini backend. Empty models fall back to the
// built-in tier mapping.
type GeminiConfig struct {
	APIKey    string
	BaseURL   string // optional endpoint override
	FastModel string
	ProModel  string
}

var geminiModels = map[Tier]string{
	TierFast: "gemini-2.5-flash",
	TierPro:  "gemini-2.5-pro",
}

// #endregion

// #region backend

// GeminiBackend generates text through the Google GenAI SDK.
type GeminiBackend struct {
	client *genai.Client
	models map[Tier]string
}

// NewGeminiBackend creates a Gemini API client.
func NewGeminiBackend(ctx context.Context, cfg GeminiConfig) (*GeminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is empty", ErrMisconfigured)
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiBackend{
		client: client,
		models: tierModels(geminiModels, cfg.FastModel, cfg.ProModel),
	}, nil
}

// Name implements Backend.
func (b *GeminiBackend) Name() string { return "gemini" }

// Generate implements Backend.
func (b *GeminiBackend) Generate(ctx context.Context, req Request) (string, error) {
	model := b.models[req.Tier]
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr(float32(req.Temperature)),
		TopP:              genai.Ptr[float32](0.95),
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := b.client.Models.GenerateContent(ctx, model, genai.Text(req.UserContent), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", model, err)
	}
	return resp.Text(), nil
}

// #endregion

// #region helpers

func tierModels(defaults map[Tier]string, fast, pro string) map[Tier]string {
	out := map[Tier]string{TierFast: defaults[TierFast], TierPro: defaults[TierPro]}
	if fast != "" {
		out[TierFast] = fast
	}
	if pro != "" {
		out[TierPro] = pro
	}
	return out
}

// #endregion
