package progress

// #region imports
import (
	"slices"
	"sync"

	"github.com/danielpatrickdp/bibo/internal/persona"
)

// #endregion

// #region accumulator

// Accumulator rebuilds a ThinkingProcess from a stream of events.
// Stages merge by title and review cycles by round, so a stage emitted
// several times with growing execution lists collapses into one entry.
// Safe for concurrent use.
type Accumulator struct {
	mu     sync.Mutex
	titles []string
	stages map[string]*Stage
	cycles []ReviewCycle
	label  string
	brains []persona.ID
	flow   FlowType
	final  string
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{stages: make(map[string]*Stage)}
}

// Sink returns a Sink that applies events to a.
func (a *Accumulator) Sink() Sink { return a.Apply }

// Apply merges one event.
func (a *Accumulator) Apply(ev Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.label = ev.Label
	if ev.Brains != nil {
		a.brains = append([]persona.ID(nil), ev.Brains...)
	}
	if ev.Flow != FlowNone {
		a.flow = ev.Flow
	}

	switch {
	case ev.Stage != nil:
		a.mergeStage(ev.Stage)
	case ev.Review != nil:
		a.mergeReview(*ev.Review)
	}
}

// SetFinal records the answer the run returned.
func (a *Accumulator) SetFinal(answer string) {
	a.mu.Lock()
	a.final = answer
	a.mu.Unlock()
}

// Current returns the latest label, active brains and flow tag.
func (a *Accumulator) Current() (label string, brains []persona.ID, flow FlowType) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.label, append([]persona.ID(nil), a.brains...), a.flow
}

// Process returns a snapshot of the reconstructed trace.
func (a *Accumulator) Process() ThinkingProcess {
	a.mu.Lock()
	defer a.mu.Unlock()

	tp := ThinkingProcess{
		Stages:       make([]Stage, 0, len(a.titles)),
		ReviewCycles: append([]ReviewCycle{}, a.cycles...),
		FinalAnswer:  a.final,
	}
	for _, title := range a.titles {
		tp.Stages = append(tp.Stages, *a.stages[title].Clone())
	}
	return tp
}

// #endregion

// #region merge

func (a *Accumulator) mergeStage(in *Stage) {
	cur, ok := a.stages[in.Title]
	if !ok {
		a.titles = append(a.titles, in.Title)
		a.stages[in.Title] = in.Clone()
		return
	}

	// Snapshots are cumulative: the longer list is the base and anything the
	// other one holds that the base lacks is appended.
	base, other := cur.Executions, in.Executions
	if len(other) > len(base) {
		base, other = other, base
	}
	merged := append([]Execution(nil), base...)
	for _, ex := range other {
		if !containsExecution(merged, ex) {
			merged = append(merged, ex)
		}
	}
	cur.Executions = merged

	if cur.Summary == nil && in.Summary != nil {
		sum := *in.Summary
		cur.Summary = &sum
	}
}

func (a *Accumulator) mergeReview(in ReviewCycle) {
	if in.Round > 0 {
		at := len(a.cycles)
		for i := range a.cycles {
			c := &a.cycles[i]
			if c.Round == in.Round {
				if c.RefinedText == "" {
					c.RefinedText = in.RefinedText
				}
				return
			}
			if c.Round > in.Round && at == len(a.cycles) {
				at = i
			}
		}
		a.cycles = slices.Insert(a.cycles, at, in)
		return
	}

	// Unnumbered cycles keep arrival order. A rewrite completes the open
	// cycle at the tail; an exact repeat of the tail is a replayed event.
	if n := len(a.cycles); n > 0 {
		last := &a.cycles[n-1]
		if *last == in {
			return
		}
		if last.Round == 0 && last.RefinedText == "" && in.RefinedText != "" && last.Critique == in.Critique {
			last.RefinedText = in.RefinedText
			return
		}
	}
	a.cycles = append(a.cycles, in)
}

func containsExecution(list []Execution, ex Execution) bool {
	for _, e := range list {
		if e == ex {
			return true
		}
	}
	return false
}

// #endregion
