package orchestrator

// #region imports
import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/bibo/internal/provider"
)

// #endregion

// #region errors

var (
	// ErrInvalidInput is the parent of every caller-input error.
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyPrompt  = fmt.Errorf("%w: empty prompt", ErrInvalidInput)
	ErrInvalidMode  = fmt.Errorf("%w: unknown mode", ErrInvalidInput)
	ErrInvalidRole  = fmt.Errorf("%w: unknown message role", ErrInvalidInput)

	// ErrClassificationMalformed never leaves the package. The run falls
	// back to the complex flow instead.
	ErrClassificationMalformed = errors.New("malformed classification")
)

// #endregion

// #region mode

// Mode chooses the flow. ModeAuto lets the gatekeeper decide.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeSimple  Mode = "simple"
	ModeMedium  Mode = "medium"
	ModeComplex Mode = "complex"
)

// ParseMode accepts auto, simple, medium or complex. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeSimple, ModeMedium, ModeComplex:
		return m, nil
	}
	return "", fmt.Errorf("%w %q", ErrInvalidMode, s)
}

// #endregion

// #region message

// Role tags a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior conversation turn.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// #endregion

// #region policy

// Policy holds the tunables of a run.
type Policy struct {
	ReviewIterations int           // critique/rewrite rounds in the complex flow; 0 skips the review stage
	StageTimeout     time.Duration // wall-clock budget per stage; 0 = none
	SimpleTier       provider.Tier // tier of the direct answer in forced simple mode
	EvaluateDrafts   bool          // run the evaluator batch before the first draft
}

// DefaultPolicy returns two review rounds, no stage timeout, fast simple
// answers and draft evaluation enabled.
func DefaultPolicy() Policy {
	return Policy{
		ReviewIterations: 2,
		SimpleTier:       provider.TierFast,
		EvaluateDrafts:   true,
	}
}

// Validate rejects negative counts and unknown tiers.
func (p Policy) Validate() error {
	if p.ReviewIterations < 0 {
		return fmt.Errorf("review iterations must be >= 0, got %d", p.ReviewIterations)
	}
	if p.StageTimeout < 0 {
		return fmt.Errorf("stage timeout must be >= 0, got %s", p.StageTimeout)
	}
	if _, err := provider.ParseTier(string(p.SimpleTier)); err != nil {
		return fmt.Errorf("simple tier: %w", err)
	}
	return nil
}

// #endregion

// #region classification

// Decision is the gatekeeper's verdict.
type Decision string

const (
	DecisionSimple  Decision = "simple"
	DecisionMedium  Decision = "medium"
	DecisionComplex Decision = "complex"
)

// Classification carries the decision and, for simple prompts, the answer.
type Classification struct {
	Decision Decision
	Response string
}

// #endregion
