// Package provider abstracts the remote text-generation endpoint behind a
// single GenerateText call with transparent retry and exponential backoff.
package provider

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// #endregion

// #region tier

// Tier selects the cost/quality class of the backing model.
type Tier string

const (
	TierFast Tier = "fast"
	TierPro  Tier = "pro"
)

// ParseTier accepts "fast" or "pro" (case-insensitive).
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFast:
		return TierFast, nil
	case TierPro:
		return TierPro, nil
	}
	return "", fmt.Errorf("unknown quality tier %q", s)
}

// #endregion

// #region request

// Request is one generation call. JSON asks the backend to constrain its
// output to a JSON object; the caller still has to parse and validate it.
type Request struct {
	Tier              Tier
	SystemInstruction string
	UserContent       string
	Temperature       float64
	JSON              bool
}

// Validate checks the input constraints. Invalid requests are never retried.
func (r Request) Validate() error {
	switch {
	case r.Tier != TierFast && r.Tier != TierPro:
		return fmt.Errorf("%w: tier %q", ErrInvalidRequest, r.Tier)
	case strings.TrimSpace(r.SystemInstruction) == "":
		return fmt.Errorf("%w: empty system instruction", ErrInvalidRequest)
	case strings.TrimSpace(r.UserContent) == "":
		return fmt.Errorf("%w: empty user content", ErrInvalidRequest)
	case math.IsNaN(r.Temperature) || math.IsInf(r.Temperature, 0):
		return fmt.Errorf("%w: temperature must be finite", ErrInvalidRequest)
	}
	return nil
}

// #endregion

// #region interfaces

// Provider is the contract consumed by the orchestrator.
// On success the returned text is never empty.
type Provider interface {
	GenerateText(ctx context.Context, req Request) (string, error)
}

// Backend performs exactly one attempt against a remote endpoint.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// #endregion

// #region errors

var (
	// ErrExhausted matches every *ExhaustedError.
	ErrExhausted = errors.New("provider exhausted")
	// ErrMisconfigured is returned by Select when no credentials are present.
	ErrMisconfigured = errors.New("no text-generation provider configured")
	// ErrInvalidRequest rejects requests that violate the input constraints.
	ErrInvalidRequest = errors.New("invalid generation request")

	errEmptyResponse = errors.New("received empty response from backend")
)

// ExhaustedError reports a call that failed on every attempt.
type ExhaustedError struct {
	Backend  string
	Attempts int
	Err      error // last underlying error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %s failed after %d attempts: %v", ErrExhausted, e.Backend, e.Attempts, e.Err)
}

// Is makes errors.Is(err, ErrExhausted) true.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// #endregion
