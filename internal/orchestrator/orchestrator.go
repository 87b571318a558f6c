// Package orchestrator runs the multi-perspective reasoning pipeline:
// a gatekeeper triages the prompt, then a fixed sequence of persona stages
// drafts, critiques and rewrites the answer while reporting progress.
package orchestrator

// #region imports
import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/bibo/internal/metrics"
	"github.com/danielpatrickdp/bibo/internal/persona"
	"github.com/danielpatrickdp/bibo/internal/progress"
	"github.com/danielpatrickdp/bibo/internal/provider"
)

// #endregion

// #region orchestrator-struct

// Orchestrator is the long-lived engine. It holds no per-run state, so one
// instance serves concurrent runs as long as its provider does.
type Orchestrator struct {
	provider provider.Provider
	personas map[persona.ID]persona.Persona
	policy   Policy
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	registry *persona.Registry
	policy   Policy
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// WithRegistry replaces the built-in persona catalog.
func WithRegistry(r *persona.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithPolicy replaces DefaultPolicy().
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics reports runs and stage durations to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// #endregion

// #region constructor

// requiredPersonas must all be present in the registry.
var requiredPersonas = []persona.ID{
	persona.Gatekeeper, persona.Analyst, persona.Empath, persona.Director,
	persona.Artist, persona.Visionary, persona.Critic,
	persona.Skeptic, persona.Editor, persona.Writer,
}

// New wires an orchestrator around p.
func New(p provider.Provider, opts ...Option) (*Orchestrator, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil provider", provider.ErrMisconfigured)
	}
	cfg := options{policy: DefaultPolicy()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = persona.Default()
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if err := cfg.policy.Validate(); err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}

	personas := make(map[persona.ID]persona.Persona, len(requiredPersonas))
	for _, id := range requiredPersonas {
		pp, err := cfg.registry.Get(id)
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		personas[id] = pp
	}

	return &Orchestrator{
		provider: p,
		personas: personas,
		policy:   cfg.policy,
		logger:   cfg.logger,
		metrics:  cfg.metrics,
	}, nil
}

// #endregion

// #region run

// Run answers prompt. Progress events are delivered to sink synchronously
// from the calling goroutine. On failure no partial answer is returned;
// provider exhaustion surfaces as provider.ErrExhausted.
func (o *Orchestrator) Run(ctx context.Context, prompt string, history []Message, sink progress.Sink, mode Mode) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	mode, err := ParseMode(string(mode))
	if err != nil {
		return "", err
	}
	for i, m := range history {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return "", fmt.Errorf("%w %q at history[%d]", ErrInvalidRole, m.Role, i)
		}
	}
	if sink == nil {
		sink = progress.Discard
	}

	r := &run{
		o:          o,
		prompt:     prompt,
		contextual: promptWithHistory(prompt, history),
		sink:       sink,
	}

	start := time.Now()
	answer, flow, err := r.route(ctx, mode)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	o.metrics.Run(flow, outcome)

	if err != nil {
		o.logger.Error("run failed",
			zap.String("flow", flow),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", err
	}
	o.logger.Info("run complete",
		zap.String("flow", flow),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("answer_len", len(answer)))
	return answer, nil
}

// route picks the flow and runs it. The returned flow name labels metrics.
func (r *run) route(ctx context.Context, mode Mode) (string, string, error) {
	switch mode {
	case ModeSimple:
		answer, err := r.simple(ctx)
		return answer, string(DecisionSimple), err
	case ModeMedium:
		answer, err := r.medium(ctx)
		return answer, string(DecisionMedium), err
	case ModeComplex:
		answer, err := r.complex(ctx)
		return answer, string(DecisionComplex), err
	}

	c, err := r.classify(ctx)
	if err != nil {
		return "", "classify", err
	}
	switch c.Decision {
	case DecisionSimple:
		return c.Response, string(DecisionSimple), nil
	case DecisionMedium:
		answer, err := r.medium(ctx)
		return answer, string(DecisionMedium), err
	default:
		answer, err := r.complex(ctx)
		return answer, string(DecisionComplex), err
	}
}

// #endregion
