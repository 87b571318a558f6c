package orchestrator

// #region imports
import (
	"context"

	"github.com/danielpatrickdp/bibo/internal/persona"
	"github.com/danielpatrickdp/bibo/internal/progress"
)

// #endregion

// #region simple

// simple answers in one call with no stages.
func (r *run) simple(ctx context.Context) (string, error) {
	r.flow = progress.FlowNone
	p := persona.DirectAnswer
	r.emit(labelDirect, nil, nil)
	return r.call(ctx, p, r.o.policy.SimpleTier, r.contextual)
}

// #endregion

// #region medium

// medium runs structural analysis, then composition. One Stage event each.
func (r *run) medium(ctx context.Context) (string, error) {
	r.flow = progress.FlowMedium

	var analysis progress.Execution
	err := r.stage(ctx, titleStructure, func(ctx context.Context) error {
		var err error
		analysis, err = r.single(ctx, titleStructure, persona.Analyst, r.contextual)
		if err != nil {
			return err
		}
		r.emit(titleStructure, &progress.Stage{Title: titleStructure, Executions: []progress.Execution{analysis}}, nil)
		return nil
	})
	if err != nil {
		return "", err
	}
	return r.compose(ctx, titleComposition, analysis.Response)
}

// #endregion

// #region complex

// complex runs the five-stage pipeline with adversarial review.
func (r *run) complex(ctx context.Context) (string, error) {
	r.flow = progress.FlowComplex

	problem, err := r.understand(ctx)
	if err != nil {
		return "", err
	}
	ideas, err := r.brainstorm(ctx, problem)
	if err != nil {
		return "", err
	}
	text, err := r.draft(ctx, problem, ideas)
	if err != nil {
		return "", err
	}
	if n := r.o.policy.ReviewIterations; n > 0 {
		text, err = r.review(ctx, text, n)
		if err != nil {
			return "", err
		}
	}
	return r.compose(ctx, titleFinal, text)
}

// understand gathers analytic and empathetic readings of the prompt and
// condenses them into a problem statement.
func (r *run) understand(ctx context.Context) (string, error) {
	var problem string
	err := r.stage(ctx, titleUnderstand, func(ctx context.Context) error {
		execs, err := r.batch(ctx, titleUnderstand, []persona.ID{persona.Analyst, persona.Empath}, r.contextual)
		if err != nil {
			return err
		}
		st := &progress.Stage{Title: titleUnderstand, Executions: execs}
		r.emit(titleUnderstand, st, nil)

		summary, err := r.single(ctx, labelProblem, persona.Director, problemPrompt(combine("PERSPECTIVE", execs, r.name)))
		if err != nil {
			return err
		}
		st.Summary = &summary
		r.emit(labelProblem, st, []persona.ID{persona.Director})
		problem = summary.Response
		return nil
	})
	return problem, err
}

// brainstorm runs the divergent personas against the problem statement.
func (r *run) brainstorm(ctx context.Context, problem string) ([]progress.Execution, error) {
	var ideas []progress.Execution
	err := r.stage(ctx, titleBrainstorm, func(ctx context.Context) error {
		var err error
		ideas, err = r.batch(ctx, titleBrainstorm, []persona.ID{persona.Artist, persona.Visionary, persona.Critic}, brainstormPrompt(problem))
		if err != nil {
			return err
		}
		r.emit(titleBrainstorm, &progress.Stage{Title: titleBrainstorm, Executions: ideas}, nil)
		return nil
	})
	return ideas, err
}

// draft optionally evaluates the ideas, then has the director write the
// first draft. The draft is the stage summary and the initial current text.
func (r *run) draft(ctx context.Context, problem string, ideas []progress.Execution) (string, error) {
	var text string
	err := r.stage(ctx, titleDraft, func(ctx context.Context) error {
		st := &progress.Stage{Title: titleDraft, Executions: []progress.Execution{}}
		inputs := ideas
		if r.o.policy.EvaluateDrafts {
			evals, err := r.batch(ctx, titleDraft, []persona.ID{persona.Critic, persona.Analyst},
				evaluatePrompt(problem, combine("IDEA", ideas, r.name)))
			if err != nil {
				return err
			}
			st.Executions = evals
			r.emit(titleDraft, st, nil)
			inputs = append(append([]progress.Execution(nil), ideas...), evals...)
		}

		summary, err := r.single(ctx, labelDraft, persona.Director, draftPrompt(problem, combine("INPUT", inputs, r.name)))
		if err != nil {
			return err
		}
		st.Summary = &summary
		r.emit(labelDraft, st, []persona.ID{persona.Director})
		text = summary.Response
		return nil
	})
	return text, err
}

// review runs n critique/rewrite rounds. Every round appends its critique
// and rewrite to the one review stage.
func (r *run) review(ctx context.Context, text string, n int) (string, error) {
	err := r.stage(ctx, titleReview, func(ctx context.Context) error {
		st := &progress.Stage{Title: titleReview}
		for i := 1; i <= n; i++ {
			var err error
			text, err = r.reviewRound(ctx, st, text, i, n)
			if err != nil {
				return err
			}
		}
		return nil
	})
	return text, err
}

// reviewRound takes the current text and returns its rewrite.
func (r *run) reviewRound(ctx context.Context, st *progress.Stage, current string, i, n int) (string, error) {
	label := critiqueLabel(i, n)
	critique, err := r.single(ctx, label, persona.Skeptic, critiquePrompt(r.prompt, current))
	if err != nil {
		return "", err
	}
	st.Executions = append(st.Executions, critique)
	r.emit(label, st, []persona.ID{persona.Skeptic})

	label = rewriteLabel(i, n)
	rewrite, err := r.single(ctx, label, persona.Editor, rewritePrompt(current, critique.Response))
	if err != nil {
		return "", err
	}
	st.Executions = append(st.Executions, rewrite)
	r.emit(label, st, []persona.ID{persona.Editor})
	r.emitReview(label, progress.ReviewCycle{Round: i, Critique: critique.Response, RefinedText: rewrite.Response}, []persona.ID{persona.Editor})
	return rewrite.Response, nil
}

// #endregion

// #region compose

// compose has the writer turn the insights into the final answer. The
// stage is terminal and holds the writer's single execution.
func (r *run) compose(ctx context.Context, title, insights string) (string, error) {
	var answer string
	err := r.stage(ctx, title, func(ctx context.Context) error {
		final, err := r.single(ctx, title, persona.Writer, composePrompt(r.prompt, insights))
		if err != nil {
			return err
		}
		r.emit(labelFinal, &progress.Stage{Title: title, Executions: []progress.Execution{final}}, []persona.ID{persona.Writer})
		answer = final.Response
		return nil
	})
	return answer, err
}

// #endregion
