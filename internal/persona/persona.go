package persona

// #region imports
import (
	"errors"
	"fmt"
)

// #endregion

// #region id

// ID identifies one of the fixed reasoning personas.
type ID string

const (
	Analyst    ID = "analyst"
	Artist     ID = "artist"
	Critic     ID = "critic"
	Empath     ID = "empath"
	Visionary  ID = "visionary"
	Director   ID = "director"
	Skeptic    ID = "skeptic"
	Editor     ID = "editor"
	Writer     ID = "writer"
	Gatekeeper ID = "gatekeeper"
)

// order is the enumeration order used by All().
var order = []ID{
	Analyst, Artist, Critic, Empath, Visionary,
	Director, Skeptic, Editor, Writer, Gatekeeper,
}

// Valid reports whether id belongs to the fixed enumeration.
func (id ID) Valid() bool {
	for _, known := range order {
		if id == known {
			return true
		}
	}
	return false
}

// #endregion

// #region persona

// Persona is an immutable role: a system instruction paired with a temperature.
type Persona struct {
	ID          ID
	Name        string
	Description string
	Instruction string
	Temperature float64
}

// #endregion

// #region registry

// ErrUnknownPersona is returned for ids outside the enumeration.
var ErrUnknownPersona = errors.New("unknown persona")

// Registry is a read-only catalog of personas keyed by ID.
type Registry struct {
	byID map[ID]Persona
}

// NewRegistry builds a registry from the given personas.
// Every persona must carry a valid, unique ID.
func NewRegistry(personas []Persona) (*Registry, error) {
	byID := make(map[ID]Persona, len(personas))
	for _, p := range personas {
		if !p.ID.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPersona, p.ID)
		}
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate persona %q", p.ID)
		}
		byID[p.ID] = p
	}
	return &Registry{byID: byID}, nil
}

// Default returns the built-in registry of all ten personas.
func Default() *Registry {
	r, err := NewRegistry(builtins)
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the persona registered under id.
func (r *Registry) Get(id ID) (Persona, error) {
	p, ok := r.byID[id]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %q", ErrUnknownPersona, id)
	}
	return p, nil
}

// All returns the registered personas in enumeration order.
func (r *Registry) All() []Persona {
	out := make([]Persona, 0, len(r.byID))
	for _, id := range order {
		if p, ok := r.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// ByInstruction maps a system instruction back to the persona that owns it.
// DirectAnswer is recognised too.
func (r *Registry) ByInstruction(instruction string) (Persona, bool) {
	if instruction == DirectAnswer.Instruction {
		return DirectAnswer, true
	}
	for _, p := range r.byID {
		if p.Instruction == instruction {
			return p, true
		}
	}
	return Persona{}, false
}

// #endregion
