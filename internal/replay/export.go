package replay

import (
	"encoding/json"
	"fmt"

	"github.com/danielpatrickdp/bibo/internal/orchestrator"
	"github.com/danielpatrickdp/bibo/internal/persona"
	"github.com/danielpatrickdp/bibo/internal/progress"
	"github.com/danielpatrickdp/bibo/internal/trace"
)

// #region export

// FromTrace turns a stored run into a fixture that reproduces it. Persona
// responses are taken from the stage snapshots in emission order; the
// classifier reply is reconstructed from the flow the run took.
func FromTrace(store *trace.Store, runID string) (*Fixture, error) {
	run, err := store.GetRun(runID)
	if err != nil {
		return nil, err
	}
	events, err := store.Events(runID)
	if err != nil {
		return nil, err
	}

	mode, err := orchestrator.ParseMode(run.Mode)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	f := &Fixture{
		Description: fmt.Sprintf("exported from run %s", run.ID),
		Prompt:      run.Prompt,
		Mode:        mode,
		History:     run.History,
		Responses:   responsesFrom(events),
	}

	switch {
	case mode == orchestrator.ModeSimple:
		if run.Answer != "" {
			f.Responses[persona.Direct] = []string{run.Answer}
		}
	case mode == orchestrator.ModeAuto && run.Flow != trace.FlowClassify:
		reply, err := classifierReply(run)
		if err != nil {
			return nil, err
		}
		f.Gatekeeper = reply
	}
	if len(f.Responses) == 0 {
		f.Responses = nil
	}

	if run.Flow == string(progress.FlowComplex) {
		f.Policy = policyFrom(events)
	}
	if run.Status == trace.StatusDone {
		tp, err := store.Process(runID)
		if err != nil {
			return nil, err
		}
		exp := &Expectation{Flow: run.Flow, Answer: run.Answer}
		for _, st := range tp.Stages {
			exp.Titles = append(exp.Titles, st.Title)
		}
		f.Expect = exp
	}
	return f, nil
}

// classifierReply is the gatekeeper JSON that routes a replay the same way.
func classifierReply(run trace.Run) (string, error) {
	reply := struct {
		Decision string `json:"decision"`
		Response string `json:"response"`
	}{Decision: run.Flow}
	if run.Flow == "simple" {
		reply.Response = run.Answer
	}
	b, err := json.Marshal(reply)
	if err != nil {
		return "", fmt.Errorf("marshal classifier reply: %w", err)
	}
	return string(b), nil
}

// responsesFrom collects each persona's responses in call order. Stage
// events repeat earlier executions, so per stage only executions beyond
// those already seen are taken.
func responsesFrom(events []progress.Event) map[persona.ID][]string {
	out := map[persona.ID][]string{}
	seen := map[string]map[persona.ID]int{}
	summarised := map[string]bool{}

	for _, ev := range events {
		st := ev.Stage
		if st == nil {
			continue
		}
		counts := map[persona.ID]int{}
		if seen[st.Title] == nil {
			seen[st.Title] = map[persona.ID]int{}
		}
		for _, ex := range st.Executions {
			counts[ex.Persona]++
			if counts[ex.Persona] > seen[st.Title][ex.Persona] {
				seen[st.Title][ex.Persona] = counts[ex.Persona]
				out[ex.Persona] = append(out[ex.Persona], ex.Response)
			}
		}
		if st.Summary != nil && !summarised[st.Title] {
			summarised[st.Title] = true
			out[st.Summary.Persona] = append(out[st.Summary.Persona], st.Summary.Response)
		}
	}
	return out
}

// policyFrom infers the review rounds and draft evaluation of a complex run.
// Each completed round emits exactly one review cycle event.
func policyFrom(events []progress.Event) FixturePolicy {
	rounds, evaluated := 0, false
	for _, ev := range events {
		if ev.Review != nil {
			rounds++
		}
		if st := ev.Stage; st != nil && st.Summary != nil && st.Summary.Persona == persona.Director &&
			hasPersona(st.Executions, persona.Critic) {
			evaluated = true
		}
	}
	return FixturePolicy{ReviewIterations: &rounds, EvaluateDrafts: &evaluated}
}

func hasPersona(execs []progress.Execution, id persona.ID) bool {
	for _, ex := range execs {
		if ex.Persona == id {
			return true
		}
	}
	return false
}

// #endregion export
