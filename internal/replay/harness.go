package replay

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/bibo/internal/logging"
	"github.com/danielpatrickdp/bibo/internal/orchestrator"
	"github.com/danielpatrickdp/bibo/internal/persona"
	"github.com/danielpatrickdp/bibo/internal/progress"
	"github.com/danielpatrickdp/bibo/internal/provider"
)

// #region types

// Options tunes a replay. The zero value retries three times without
// waiting and uses the fixture's policy.
type Options struct {
	Retries  *int
	Policy   *orchestrator.Policy
	Registry *persona.Registry
	Logger   *zap.Logger
	// Sink, when set, also receives every event as it is emitted.
	Sink progress.Sink
}

// Result captures the outcome of replaying one fixture.
type Result struct {
	Answer  string
	Err     error
	Flow    string
	Events  []progress.Event
	Process progress.ThinkingProcess
	Calls   map[persona.ID]int
}

// #endregion types

// #region replay

// Replay runs the real orchestrator against a ScriptedProvider built from
// f. A failed run is reported in Result.Err; the returned error is only for
// setup problems.
func Replay(ctx context.Context, f *Fixture, opts Options) (*Result, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	logger := logging.OrNop(opts.Logger)
	retries := 3
	if opts.Retries != nil {
		retries = *opts.Retries
	}
	policy := f.ToPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}

	sp := NewScriptedProvider(f, opts.Registry)
	client := provider.NewClient(sp,
		provider.WithRetries(retries),
		provider.WithBaseDelay(0),
		provider.WithLogger(logger),
	)
	orchOpts := []orchestrator.Option{
		orchestrator.WithPolicy(policy),
		orchestrator.WithLogger(logger),
	}
	if opts.Registry != nil {
		orchOpts = append(orchOpts, orchestrator.WithRegistry(opts.Registry))
	}
	o, err := orchestrator.New(client, orchOpts...)
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	var (
		mu     sync.Mutex
		events []progress.Event
	)
	acc := progress.NewAccumulator()
	collect := func(ev progress.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}

	answer, runErr := o.Run(ctx, f.Prompt, f.History, progress.Tee(collect, acc.Sink(), opts.Sink), f.Mode)
	if runErr == nil {
		acc.SetFinal(answer)
	}

	mu.Lock()
	defer mu.Unlock()
	return &Result{
		Answer:  answer,
		Err:     runErr,
		Flow:    FlowOf(events),
		Events:  events,
		Process: acc.Process(),
		Calls:   sp.Calls(),
	}, nil
}

// FlowOf names the flow a run took from its events. Runs whose events carry
// no flow tag were answered directly.
func FlowOf(events []progress.Event) string {
	flow := progress.FlowNone
	for _, ev := range events {
		if ev.Flow != progress.FlowNone {
			flow = ev.Flow
		}
	}
	if flow == progress.FlowNone {
		return "simple"
	}
	return string(flow)
}

// #endregion replay

// #region check

// Check compares r against exp and returns one line per mismatch.
func (r *Result) Check(exp *Expectation) []string {
	if exp == nil {
		return nil
	}
	var diffs []string
	if exp.Error != "" {
		if r.Err == nil {
			diffs = append(diffs, fmt.Sprintf("error: want %q, got success", exp.Error))
		} else if !containsFold(r.Err.Error(), exp.Error) {
			diffs = append(diffs, fmt.Sprintf("error: want %q, got %q", exp.Error, r.Err))
		}
	} else if r.Err != nil {
		diffs = append(diffs, fmt.Sprintf("error: want success, got %q", r.Err))
	}
	if exp.Flow != "" && exp.Flow != r.Flow {
		diffs = append(diffs, fmt.Sprintf("flow: want %s, got %s", exp.Flow, r.Flow))
	}
	if exp.Answer != "" && exp.Answer != r.Answer {
		diffs = append(diffs, fmt.Sprintf("answer: want %q, got %q", exp.Answer, r.Answer))
	}
	if exp.Titles != nil {
		got := make([]string, 0, len(r.Process.Stages))
		for _, st := range r.Process.Stages {
			got = append(got, st.Title)
		}
		if fmt.Sprint(got) != fmt.Sprint(exp.Titles) {
			diffs = append(diffs, fmt.Sprintf("titles: want %q, got %q", exp.Titles, got))
		}
	}
	return diffs
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// #endregion check
