package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danielpatrickdp/bibo/internal/persona"
	"github.com/danielpatrickdp/bibo/internal/provider"
)

// #region scripted-provider

// fallbackClassification is served when no gatekeeper reply is scripted.
const fallbackClassification = `{"decision":"complex","response":""}`

// ErrScriptedFailure is returned for the calls a fixture marks as failing.
var ErrScriptedFailure = errors.New("scripted failure")

// ScriptedProvider is a provider.Backend that serves fixture responses.
// Each persona has its own queue, so concurrent batch calls stay
// deterministic. When a queue runs dry a placeholder "[<id> #<n>]" is
// returned so partial fixtures still complete.
type ScriptedProvider struct {
	reg *persona.Registry

	mu        sync.Mutex
	responses map[persona.ID][]string
	failures  map[persona.ID]int
	calls     map[persona.ID]int
}

// NewScriptedProvider queues the fixture's responses. reg may be nil.
func NewScriptedProvider(f *Fixture, reg *persona.Registry) *ScriptedProvider {
	if reg == nil {
		reg = persona.Default()
	}
	sp := &ScriptedProvider{
		reg:       reg,
		responses: make(map[persona.ID][]string, len(f.Responses)+1),
		failures:  make(map[persona.ID]int, len(f.Failures)),
		calls:     map[persona.ID]int{},
	}
	for id, rs := range f.Responses {
		sp.responses[id] = append([]string(nil), rs...)
	}
	if f.Gatekeeper != "" {
		sp.responses[persona.Gatekeeper] = append([]string{f.Gatekeeper}, sp.responses[persona.Gatekeeper]...)
	}
	for id, n := range f.Failures {
		sp.failures[id] = n
	}
	return sp
}

// Name implements provider.Backend.
func (s *ScriptedProvider) Name() string { return "scripted" }

// Generate implements provider.Backend.
func (s *ScriptedProvider) Generate(ctx context.Context, req provider.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, ok := s.reg.ByInstruction(req.SystemInstruction)
	if !ok {
		return "", fmt.Errorf("no persona owns system instruction %.40q", req.SystemInstruction)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[p.ID]++
	if s.failures[p.ID] > 0 {
		s.failures[p.ID]--
		return "", fmt.Errorf("%s: %w", p.ID, ErrScriptedFailure)
	}
	if q := s.responses[p.ID]; len(q) > 0 {
		s.responses[p.ID] = q[1:]
		return q[0], nil
	}
	if p.ID == persona.Gatekeeper {
		return fallbackClassification, nil
	}
	return fmt.Sprintf("[%s #%d]", p.ID, s.calls[p.ID]), nil
}

// GenerateText lets the scripted provider stand in for a provider.Provider
// directly, without retries.
func (s *ScriptedProvider) GenerateText(ctx context.Context, req provider.Request) (string, error) {
	return s.Generate(ctx, req)
}

// Calls returns how often each persona was called, failures included.
func (s *ScriptedProvider) Calls() map[persona.ID]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[persona.ID]int, len(s.calls))
	for id, n := range s.calls {
		out[id] = n
	}
	return out
}

// Remaining reports scripted responses that were never consumed.
func (s *ScriptedProvider) Remaining() map[persona.ID]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[persona.ID]int{}
	for id, q := range s.responses {
		if len(q) > 0 {
			out[id] = len(q)
		}
	}
	return out
}

// #endregion scripted-provider
