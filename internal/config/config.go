// Package config loads runtime settings from defaults, an optional YAML
// file and the process environment.
package config

// #region imports
import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/danielpatrickdp/bibo/internal/orchestrator"
	"github.com/danielpatrickdp/bibo/internal/provider"
)

// #endregion

// #region types

// Config is the full runtime configuration.
type Config struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Store    StoreConfig    `mapstructure:"store"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// ProviderConfig holds credentials in selection priority order plus the
// retry policy of the provider client.
type ProviderConfig struct {
	OpenAIKey  string        `mapstructure:"openai_api_key"`
	OpenAIBase string        `mapstructure:"openai_api_base"`
	APIKey     string        `mapstructure:"api_key"`
	GeminiKey  string        `mapstructure:"gemini_api_key"`
	FastModel  string        `mapstructure:"fast_model"`
	ProModel   string        `mapstructure:"pro_model"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// EngineConfig mirrors orchestrator.Policy.
type EngineConfig struct {
	Mode             string        `mapstructure:"mode"`
	ReviewIterations int           `mapstructure:"review_iterations"`
	StageTimeout     time.Duration `mapstructure:"stage_timeout"`
	SimpleTier       string        `mapstructure:"simple_tier"`
	EvaluateDrafts   bool          `mapstructure:"evaluate_drafts"`
}

// StoreConfig locates the trace database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig holds listen addresses for `bibo serve`.
type ServerConfig struct {
	GRPCAddr string `mapstructure:"grpc_addr"`
	HTTPAddr string `mapstructure:"http_addr"`
}

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// #endregion

// #region defaults

// Default returns the built-in configuration.
func Default() Config {
	policy := orchestrator.DefaultPolicy()
	return Config{
		Provider: ProviderConfig{
			Retries:    3,
			RetryDelay: time.Second,
		},
		Engine: EngineConfig{
			Mode:             string(orchestrator.ModeAuto),
			ReviewIterations: policy.ReviewIterations,
			StageTimeout:     policy.StageTimeout,
			SimpleTier:       string(policy.SimpleTier),
			EvaluateDrafts:   policy.EvaluateDrafts,
		},
		Store:  StoreConfig{Path: "bibo.db"},
		Server: ServerConfig{GRPCAddr: ":50061", HTTPAddr: ":8080"},
		Log:    LogConfig{Level: "info"},
	}
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"provider.openai_api_key":  "OPENAI_API_KEY",
	"provider.openai_api_base": "OPENAI_API_BASE",
	"provider.api_key":         "API_KEY",
	"provider.gemini_api_key":  "GEMINI_API_KEY",
	"provider.fast_model":      "BIBO_FAST_MODEL",
	"provider.pro_model":       "BIBO_PRO_MODEL",
	"provider.retries":         "BIBO_RETRIES",
	"provider.retry_delay":     "BIBO_RETRY_DELAY",
	"engine.mode":              "BIBO_MODE",
	"engine.review_iterations": "BIBO_REVIEW_ITERATIONS",
	"engine.stage_timeout":     "BIBO_STAGE_TIMEOUT",
	"engine.simple_tier":       "BIBO_SIMPLE_TIER",
	"engine.evaluate_drafts":   "BIBO_EVALUATE_DRAFTS",
	"store.path":               "BIBO_DB",
	"server.grpc_addr":         "BIBO_GRPC_ADDR",
	"server.http_addr":         "BIBO_HTTP_ADDR",
	"log.level":                "BIBO_LOG_LEVEL",
	"log.development":          "BIBO_LOG_DEV",
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("provider.openai_api_key", "")
	v.SetDefault("provider.openai_api_base", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.gemini_api_key", "")
	v.SetDefault("provider.fast_model", "")
	v.SetDefault("provider.pro_model", "")
	v.SetDefault("provider.retries", d.Provider.Retries)
	v.SetDefault("provider.retry_delay", d.Provider.RetryDelay)
	v.SetDefault("engine.mode", d.Engine.Mode)
	v.SetDefault("engine.review_iterations", d.Engine.ReviewIterations)
	v.SetDefault("engine.stage_timeout", d.Engine.StageTimeout)
	v.SetDefault("engine.simple_tier", d.Engine.SimpleTier)
	v.SetDefault("engine.evaluate_drafts", d.Engine.EvaluateDrafts)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("server.grpc_addr", d.Server.GRPCAddr)
	v.SetDefault("server.http_addr", d.Server.HTTPAddr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}

// #endregion

// #region load

// Load reads configuration. configPath may be empty, in which case
// bibo.yaml is looked up in the working directory and $HOME/.config/bibo;
// a missing file is not an error. Environment variables win over the file.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("bibo")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/bibo")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that the engine would otherwise reject later.
func (c *Config) Validate() error {
	if c.Provider.Retries < 0 {
		return fmt.Errorf("provider.retries must be >= 0, got %d", c.Provider.Retries)
	}
	if c.Provider.RetryDelay < 0 {
		return fmt.Errorf("provider.retry_delay must be >= 0, got %s", c.Provider.RetryDelay)
	}
	if _, err := orchestrator.ParseMode(c.Engine.Mode); err != nil {
		return fmt.Errorf("engine.mode: %w", err)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	return nil
}

// #endregion

// #region adapters

// Credentials feeds provider.Select. API_KEY takes priority over GEMINI_API_KEY.
func (c *Config) Credentials() provider.Credentials {
	gemini := c.Provider.APIKey
	if gemini == "" {
		gemini = c.Provider.GeminiKey
	}
	return provider.Credentials{
		OpenAIKey:  c.Provider.OpenAIKey,
		OpenAIBase: c.Provider.OpenAIBase,
		GeminiKey:  gemini,
		FastModel:  c.Provider.FastModel,
		ProModel:   c.Provider.ProModel,
	}
}

// ClientOptions returns the retry policy for the provider client.
func (c *Config) ClientOptions() []provider.Option {
	return []provider.Option{
		provider.WithRetries(c.Provider.Retries),
		provider.WithBaseDelay(c.Provider.RetryDelay),
	}
}

// Policy converts the engine section into an orchestrator policy.
func (c *Config) Policy() (orchestrator.Policy, error) {
	tier, err := provider.ParseTier(c.Engine.SimpleTier)
	if err != nil {
		return orchestrator.Policy{}, fmt.Errorf("engine.simple_tier: %w", err)
	}
	p := orchestrator.Policy{
		ReviewIterations: c.Engine.ReviewIterations,
		StageTimeout:     c.Engine.StageTimeout,
		SimpleTier:       tier,
		EvaluateDrafts:   c.Engine.EvaluateDrafts,
	}
	if err := p.Validate(); err != nil {
		return orchestrator.Policy{}, fmt.Errorf("engine: %w", err)
	}
	return p, nil
}

// Mode returns the configured default mode.
func (c *Config) Mode() orchestrator.Mode {
	m, err := orchestrator.ParseMode(c.Engine.Mode)
	if err != nil {
		return orchestrator.ModeAuto
	}
	return m
}

// #endregion
