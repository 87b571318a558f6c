package replay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/bibo/internal/orchestrator"
	"github.com/danielpatrickdp/bibo/internal/persona"
)

// #region fixture-types

// Fixture is a recorded or hand-written conversation turn that can be
// replayed offline. Responses are consumed per persona in call order.
type Fixture struct {
	Description string                 `yaml:"description,omitempty"`
	Prompt      string                 `yaml:"prompt"`
	Mode        orchestrator.Mode      `yaml:"mode,omitempty"`
	History     []orchestrator.Message `yaml:"history,omitempty"`
	Policy      FixturePolicy          `yaml:"policy,omitempty"`

	// Gatekeeper is the raw classifier reply, queued ahead of any
	// scripted gatekeeper responses.
	Gatekeeper string                  `yaml:"gatekeeper,omitempty"`
	Responses  map[persona.ID][]string `yaml:"responses,omitempty"`
	// Failures makes the first N calls of a persona fail before any
	// response is served.
	Failures map[persona.ID]int `yaml:"failures,omitempty"`

	Expect *Expectation `yaml:"expect,omitempty"`
}

// FixturePolicy overrides parts of orchestrator.DefaultPolicy.
type FixturePolicy struct {
	ReviewIterations *int  `yaml:"review_iterations,omitempty"`
	EvaluateDrafts   *bool `yaml:"evaluate_drafts,omitempty"`
}

// Expectation is checked against a replay result.
type Expectation struct {
	Flow   string   `yaml:"flow,omitempty"`
	Answer string   `yaml:"answer,omitempty"`
	Titles []string `yaml:"titles,omitempty"`
	Error  string   `yaml:"error,omitempty"`
}

// ErrInvalidFixture wraps every fixture validation failure.
var ErrInvalidFixture = errors.New("invalid fixture")

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	f, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return f, nil
}

// ParseFixture decodes and validates YAML. Unknown keys are rejected.
func ParseFixture(data []byte) (*Fixture, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f Fixture
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the prompt, mode and persona keys.
func (f *Fixture) Validate() error {
	if strings.TrimSpace(f.Prompt) == "" {
		return fmt.Errorf("%w: empty prompt", ErrInvalidFixture)
	}
	if _, err := orchestrator.ParseMode(string(f.Mode)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFixture, err)
	}
	for id := range f.Responses {
		if !knownPersona(id) {
			return fmt.Errorf("%w: responses for unknown persona %q", ErrInvalidFixture, id)
		}
	}
	for id, n := range f.Failures {
		if !knownPersona(id) {
			return fmt.Errorf("%w: failures for unknown persona %q", ErrInvalidFixture, id)
		}
		if n < 0 {
			return fmt.Errorf("%w: negative failures for %q", ErrInvalidFixture, id)
		}
	}
	if p := f.Policy.ReviewIterations; p != nil && *p < 0 {
		return fmt.Errorf("%w: review_iterations must be >= 0", ErrInvalidFixture)
	}
	return nil
}

func knownPersona(id persona.ID) bool {
	return id == persona.Direct || id.Valid()
}

// Encode writes f as YAML.
func (f *Fixture) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	return enc.Close()
}

// ToPolicy applies the fixture overrides to the default policy.
func (f *Fixture) ToPolicy() orchestrator.Policy {
	p := orchestrator.DefaultPolicy()
	if f.Policy.ReviewIterations != nil {
		p.ReviewIterations = *f.Policy.ReviewIterations
	}
	if f.Policy.EvaluateDrafts != nil {
		p.EvaluateDrafts = *f.Policy.EvaluateDrafts
	}
	return p
}

// #endregion fixture-loader
