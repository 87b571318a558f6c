package provider

// #region imports
import (
	"context"
	"fmt"
)

// #endregion

// #region credentials

// Credentials is the configuration surface for provider selection.
// GeminiKey is resolved by the caller from API_KEY, then GEMINI_API_KEY.
type Credentials struct {
	OpenAIKey  string
	OpenAIBase string
	GeminiKey  string
	FastModel  string
	ProModel   string
}

// #endregion

// #region select

// Select instantiates the first backend whose credentials are present:
// OpenAI-compatible first, then Gemini. With none it fails fast with
// ErrMisconfigured instead of deferring the failure to the first call.
func Select(ctx context.Context, creds Credentials, opts ...Option) (*Client, error) {
	switch {
	case creds.OpenAIKey != "":
		b, err := NewOpenAIBackend(OpenAIConfig{
			APIKey:    creds.OpenAIKey,
			BaseURL:   creds.OpenAIBase,
			FastModel: creds.FastModel,
			ProModel:  creds.ProModel,
		})
		if err != nil {
			return nil, err
		}
		return NewClient(b, opts...), nil

	case creds.GeminiKey != "":
		b, err := NewGeminiBackend(ctx, GeminiConfig{
			APIKey:    creds.GeminiKey,
			FastModel: creds.FastModel,
			ProModel:  creds.ProModel,
		})
		if err != nil {
			return nil, err
		}
		return NewClient(b, opts...), nil
	}
	return nil, fmt.Errorf("%w: set OPENAI_API_KEY, API_KEY or GEMINI_API_KEY", ErrMisconfigured)
}

// #endregion
