// Package progress defines the deliberation trace produced by a pipeline run
// and the event protocol used to report it incrementally.
package progress

// #region imports
import "github.com/danielpatrickdp/bibo/internal/persona"

// #endregion

// #region flow-type

// FlowType tags every event of a flow so consumers can pick the right step
// vocabulary without parsing stage titles.
type FlowType string

const (
	FlowNone    FlowType = ""
	FlowMedium  FlowType = "medium"
	FlowComplex FlowType = "complex"
)

// #endregion

// #region stage

// Execution is one persona's output for one stage.
type Execution struct {
	Persona  persona.ID `json:"brainId"`
	Response string     `json:"response"`
}

// Stage is a named pipeline step. Title is unique within a run and is the
// merge key for consumers.
type Stage struct {
	Title      string      `json:"title"`
	Executions []Execution `json:"executions"`
	Summary    *Execution  `json:"summary,omitempty"`
}

// Clone returns a deep copy so the engine can keep appending to s.
func (s *Stage) Clone() *Stage {
	if s == nil {
		return nil
	}
	out := &Stage{Title: s.Title, Executions: make([]Execution, len(s.Executions))}
	copy(out.Executions, s.Executions)
	if s.Summary != nil {
		sum := *s.Summary
		out.Summary = &sum
	}
	return out
}

// ReviewCycle is one critique/rewrite round. Round counts from 1 and is the
// merge key; zero means the producer did not number its rounds. RefinedText
// is empty until the rewrite lands.
type ReviewCycle struct {
	Round       int    `json:"round,omitempty"`
	Critique    string `json:"critique"`
	RefinedText string `json:"refinedText,omitempty"`
}

// ThinkingProcess is the full deliberation trace behind one answer.
type ThinkingProcess struct {
	Stages       []Stage       `json:"stages"`
	ReviewCycles []ReviewCycle `json:"reviewCycles"`
	FinalAnswer  string        `json:"finalAnswer"`
}

// #endregion

// #region event

// Event is one progress checkpoint. At most one of Stage and Review is set.
type Event struct {
	Label  string
	Stage  *Stage
	Review *ReviewCycle
	Brains []persona.ID
	Flow   FlowType
}

// Sink receives events synchronously, in emission order.
type Sink func(Event)

// Discard drops every event.
func Discard(Event) {}

// Tee fans each event out to every non-nil sink in order.
func Tee(sinks ...Sink) Sink {
	live := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return func(ev Event) {
		for _, s := range live {
			s(ev)
		}
	}
}

// #endregion
