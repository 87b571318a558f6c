package orchestrator

// #region imports
import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/bibo/internal/persona"
	"github.com/danielpatrickdp/bibo/internal/progress"
	"github.com/danielpatrickdp/bibo/internal/provider"
)

// #endregion

// #region run-struct

// run is the state of a single invocation. Only the goroutine executing
// Run touches it; batch workers write into their own result slots.
type run struct {
	o          *Orchestrator
	prompt     string
	contextual string // prompt wrapped with the formatted history
	flow       progress.FlowType
	sink       progress.Sink
}

// #endregion

// #region emit

// emit delivers one event tagged with the current flow. stage is cloned so
// the engine may keep appending to it.
func (r *run) emit(label string, stage *progress.Stage, brains []persona.ID) {
	r.sink(progress.Event{
		Label:  label,
		Stage:  stage.Clone(),
		Brains: brains,
		Flow:   r.flow,
	})
}

func (r *run) emitReview(label string, cycle progress.ReviewCycle, brains []persona.ID) {
	r.sink(progress.Event{
		Label:  label,
		Review: &cycle,
		Brains: brains,
		Flow:   r.flow,
	})
}

// #endregion

// #region calls

// call runs one persona against user content.
func (r *run) call(ctx context.Context, p persona.Persona, tier provider.Tier, user string) (string, error) {
	text, err := r.o.provider.GenerateText(ctx, provider.Request{
		Tier:              tier,
		SystemInstruction: p.Instruction,
		UserContent:       user,
		Temperature:       p.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.ID, err)
	}
	return text, nil
}

// single announces one persona under label and calls it at pro tier.
func (r *run) single(ctx context.Context, label string, id persona.ID, user string) (progress.Execution, error) {
	p := r.o.personas[id]
	r.emit(label, nil, []persona.ID{id})
	text, err := r.call(ctx, p, provider.TierPro, user)
	if err != nil {
		return progress.Execution{}, err
	}
	return progress.Execution{Persona: id, Response: text}, nil
}

// batch announces every persona, then runs them concurrently against the
// same user content and waits for all of them. Results keep the order of
// ids regardless of completion order. The first failure cancels the rest.
func (r *run) batch(ctx context.Context, label string, ids []persona.ID, user string) ([]progress.Execution, error) {
	r.emit(label, nil, ids)
	for _, id := range ids {
		r.emit(thinkingLabel(r.o.personas[id].Name), nil, []persona.ID{id})
	}

	out := make([]progress.Execution, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		p := r.o.personas[id]
		g.Go(func() error {
			text, err := r.call(gctx, p, provider.TierPro, user)
			if err != nil {
				return err
			}
			out[i] = progress.Execution{Persona: id, Response: text}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// name resolves an execution's display name for prompt headers.
func (r *run) name(e progress.Execution) string {
	return r.o.personas[e.Persona].Name
}

// #endregion

// #region stage

// stage runs fn under the per-stage budget and records its duration.
func (r *run) stage(ctx context.Context, title string, fn func(context.Context) error) error {
	if r.o.policy.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.o.policy.StageTimeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	r.o.metrics.StageDone(string(r.flow), title, elapsed)

	if err != nil {
		return fmt.Errorf("%s: %w", title, err)
	}
	r.o.logger.Debug("stage complete",
		zap.String("flow", string(r.flow)),
		zap.String("stage", title),
		zap.Duration("elapsed", elapsed))
	return nil
}

// #endregion
