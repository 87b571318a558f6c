package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/danielpatrickdp/bibo/internal/persona"
	"github.com/danielpatrickdp/bibo/internal/progress"
	"github.com/danielpatrickdp/bibo/internal/provider"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Started by go.opencensus.io's package init (pulled in via genai), not by this package.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

// #region fakes

type call struct {
	Persona persona.ID
	Req     provider.Request
}

// fakeProvider answers by mapping the system instruction back to a persona.
// respond may be nil, in which case every persona echoes its id and call
// number and the gatekeeper picks the complex flow.
type fakeProvider struct {
	reg     *persona.Registry
	respond func(ctx context.Context, id persona.ID, req provider.Request) (string, error)

	mu     sync.Mutex
	calls  []call
	counts map[persona.ID]int
}

func newFake(respond func(ctx context.Context, id persona.ID, req provider.Request) (string, error)) *fakeProvider {
	return &fakeProvider{reg: persona.Default(), respond: respond, counts: map[persona.ID]int{}}
}

func (f *fakeProvider) GenerateText(ctx context.Context, req provider.Request) (string, error) {
	p, ok := f.reg.ByInstruction(req.SystemInstruction)
	if !ok {
		return "", fmt.Errorf("unexpected instruction %q", req.SystemInstruction)
	}
	f.mu.Lock()
	f.calls = append(f.calls, call{Persona: p.ID, Req: req})
	f.counts[p.ID]++
	n := f.counts[p.ID]
	f.mu.Unlock()

	if f.respond != nil {
		return f.respond(ctx, p.ID, req)
	}
	return defaultReply(p.ID, n), nil
}

func defaultReply(id persona.ID, n int) string {
	if id == persona.Gatekeeper {
		return `{"decision":"complex","response":""}`
	}
	return fmt.Sprintf("%s output %d", id, n)
}

func (f *fakeProvider) callsFor(id persona.ID) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Persona == id {
			out = append(out, c)
		}
	}
	return out
}

// recorder collects events. Run calls the sink from one goroutine, the
// mutex only guards reads from the test goroutine.
type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) sink(ev progress.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

func (r *recorder) stageEvents() []progress.Event {
	var out []progress.Event
	for _, ev := range r.all() {
		if ev.Stage != nil {
			out = append(out, ev)
		}
	}
	return out
}

// titles returns distinct stage titles in first-seen order.
func (r *recorder) titles() []string {
	var out []string
	seen := map[string]bool{}
	for _, ev := range r.stageEvents() {
		if !seen[ev.Stage.Title] {
			seen[ev.Stage.Title] = true
			out = append(out, ev.Stage.Title)
		}
	}
	return out
}

func newEngine(t *testing.T, p provider.Provider, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(p, opts...)
	require.NoError(t, err)
	return o
}

// #endregion

// #region end-to-end

func TestRun_SimplePromptReturnsGatekeeperAnswer(t *testing.T) {
	fake := newFake(func(_ context.Context, id persona.ID, _ provider.Request) (string, error) {
		if id == persona.Gatekeeper {
			return "```json\n{\"decision\":\"simple\",\"response\":\"Hello! How can I help you today?\"}\n```", nil
		}
		return "", errors.New("only the gatekeeper should be called")
	})
	rec := &recorder{}

	answer, err := newEngine(t, fake).Run(context.Background(), "hi", nil, rec.sink, ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help you today?", answer)
	assert.Empty(t, rec.stageEvents())

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, labelClassify, events[0].Label)

	gk := fake.callsFor(persona.Gatekeeper)
	require.Len(t, gk, 1)
	assert.Equal(t, provider.TierFast, gk[0].Req.Tier)
	assert.True(t, gk[0].Req.JSON)
	assert.Contains(t, gk[0].Req.UserContent, noHistory)
	assert.Contains(t, gk[0].Req.UserContent, `CURRENT USER PROMPT: "hi"`)
}

func TestRun_ForcedMedium(t *testing.T) {
	fake := newFake(nil)
	rec := &recorder{}

	answer, err := newEngine(t, fake).Run(context.Background(), "Compare React and Vue", nil, rec.sink, ModeMedium)
	require.NoError(t, err)

	stages := rec.stageEvents()
	require.Len(t, stages, 2)
	assert.Equal(t, titleStructure, stages[0].Stage.Title)
	assert.Equal(t, titleComposition, stages[1].Stage.Title)
	require.Len(t, stages[1].Stage.Executions, 1)
	assert.Equal(t, persona.Writer, stages[1].Stage.Executions[0].Persona)
	assert.Equal(t, stages[1].Stage.Executions[0].Response, answer)
	assert.Equal(t, "writer output 1", answer)

	assert.Empty(t, fake.callsFor(persona.Gatekeeper), "forced mode skips classification")

	writer := fake.callsFor(persona.Writer)
	require.Len(t, writer, 1)
	assert.Contains(t, writer[0].Req.UserContent, "Compare React and Vue")
	assert.Contains(t, writer[0].Req.UserContent, "analyst output 1")
	assert.Equal(t, provider.TierPro, writer[0].Req.Tier)

	for _, ev := range rec.all() {
		assert.Equal(t, progress.FlowMedium, ev.Flow, ev.Label)
	}
}

func TestRun_ClassifiedMedium(t *testing.T) {
	fake := newFake(func(_ context.Context, id persona.ID, _ provider.Request) (string, error) {
		if id == persona.Gatekeeper {
			return `{"decision":"medium","response":""}`, nil
		}
		return string(id) + " says", nil
	})
	rec := &recorder{}

	answer, err := newEngine(t, fake).Run(context.Background(), "Explain TCP slow start", nil, rec.sink, ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, "writer says", answer)
	assert.Equal(t, []string{titleStructure, titleComposition}, rec.titles())
}

func TestRun_ComplexFlow(t *testing.T) {
	fake := newFake(nil)
	rec := &recorder{}

	answer, err := newEngine(t, fake).Run(context.Background(), "Design a city for 2100", nil, rec.sink, ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, "writer output 1", answer)

	assert.Equal(t, []string{titleUnderstand, titleBrainstorm, titleDraft, titleReview, titleFinal}, rec.titles())

	acc := progress.NewAccumulator()
	for _, ev := range rec.all() {
		acc.Apply(ev)
	}
	tp := acc.Process()
	require.Len(t, tp.Stages, 5)

	understand := tp.Stages[0]
	assert.Equal(t, []persona.ID{persona.Analyst, persona.Empath}, personasOf(understand.Executions))
	require.NotNil(t, understand.Summary)
	assert.Equal(t, "director output 1", understand.Summary.Response)

	brainstorm := tp.Stages[1]
	assert.Equal(t, []persona.ID{persona.Artist, persona.Visionary, persona.Critic}, personasOf(brainstorm.Executions))
	assert.Nil(t, brainstorm.Summary)

	draft := tp.Stages[2]
	assert.Equal(t, []persona.ID{persona.Critic, persona.Analyst}, personasOf(draft.Executions))
	require.NotNil(t, draft.Summary)
	assert.Equal(t, "director output 2", draft.Summary.Response)

	review := tp.Stages[3]
	assert.Equal(t, []persona.ID{persona.Skeptic, persona.Editor, persona.Skeptic, persona.Editor}, personasOf(review.Executions))
	assert.Equal(t, []progress.ReviewCycle{
		{Round: 1, Critique: "skeptic output 1", RefinedText: "editor output 1"},
		{Round: 2, Critique: "skeptic output 2", RefinedText: "editor output 2"},
	}, tp.ReviewCycles)

	final := tp.Stages[4]
	assert.Equal(t, []persona.ID{persona.Writer}, personasOf(final.Executions))

	for _, ev := range rec.all()[1:] {
		assert.Equal(t, progress.FlowComplex, ev.Flow, ev.Label)
	}
}

func personasOf(execs []progress.Execution) []persona.ID {
	out := make([]persona.ID, len(execs))
	for i, e := range execs {
		out[i] = e.Persona
	}
	return out
}

func TestRun_RepeatedCritiqueKeepsBothCycles(t *testing.T) {
	rewrites := 0
	fake := newFake(func(_ context.Context, id persona.ID, _ provider.Request) (string, error) {
		switch id {
		case persona.Gatekeeper:
			return `{"decision":"complex","response":""}`, nil
		case persona.Skeptic:
			return "Too generic.", nil
		case persona.Editor:
			rewrites++
			return fmt.Sprintf("rewrite %d", rewrites), nil
		}
		return string(id) + " says", nil
	})
	acc := progress.NewAccumulator()

	_, err := newEngine(t, fake).Run(context.Background(), "Plan a product launch", nil, acc.Sink(), ModeAuto)
	require.NoError(t, err)

	tp := acc.Process()
	assert.Len(t, tp.Stages[3].Executions, 4)
	assert.Equal(t, []progress.ReviewCycle{
		{Round: 1, Critique: "Too generic.", RefinedText: "rewrite 1"},
		{Round: 2, Critique: "Too generic.", RefinedText: "rewrite 2"},
	}, tp.ReviewCycles)
}

func TestRun_ComplexPromptsThreadText(t *testing.T) {
	fake := newFake(nil)
	prompt := "Why do cats purr?"

	_, err := newEngine(t, fake).Run(context.Background(), prompt, nil, nil, ModeComplex)
	require.NoError(t, err)

	director := fake.callsFor(persona.Director)
	require.Len(t, director, 2)
	assert.Contains(t, director[0].Req.UserContent, "--- PERSPECTIVE FROM THE ANALYST ---\nanalyst output 1")
	assert.Contains(t, director[0].Req.UserContent, "--- PERSPECTIVE FROM THE EMPATH ---")
	assert.Contains(t, director[1].Req.UserContent, `Core Problem: "director output 1"`)
	assert.Contains(t, director[1].Req.UserContent, "--- INPUT FROM THE ARTIST ---")
	assert.Contains(t, director[1].Req.UserContent, "--- INPUT FROM THE CRITIC ---")

	for _, id := range []persona.ID{persona.Artist, persona.Visionary} {
		calls := fake.callsFor(id)
		require.Len(t, calls, 1)
		assert.Equal(t, `Core Problem: "director output 1"`, calls[0].Req.UserContent)
	}

	skeptic := fake.callsFor(persona.Skeptic)
	require.Len(t, skeptic, 2)
	for _, c := range skeptic {
		assert.Contains(t, c.Req.UserContent, `The original user prompt was: "Why do cats purr?"`)
		assert.NotContains(t, c.Req.UserContent, `"director output 1"`)
	}
	assert.Contains(t, skeptic[0].Req.UserContent, "director output 2")
	assert.Contains(t, skeptic[1].Req.UserContent, "editor output 1")

	editor := fake.callsFor(persona.Editor)
	require.Len(t, editor, 2)
	assert.Equal(t, "Original Text:\n\"director output 2\"\n\nCritique:\n\"skeptic output 1\"", editor[0].Req.UserContent)

	writer := fake.callsFor(persona.Writer)
	require.Len(t, writer, 1)
	assert.Contains(t, writer[0].Req.UserContent, "\"editor output 2\"")
}

func TestRun_HistoryIsFormatted(t *testing.T) {
	fake := newFake(nil)
	history := []Message{
		{Role: RoleUser, Content: "What is Go?"},
		{Role: RoleAssistant, Content: "A language."},
	}
	_, err := newEngine(t, fake).Run(context.Background(), "Who made it?", history, nil, ModeMedium)
	require.NoError(t, err)

	analyst := fake.callsFor(persona.Analyst)
	require.Len(t, analyst, 1)
	assert.Equal(t,
		"PREVIOUS CONVERSATION:\nUser: What is Go?\nAI: A language.\n\nCURRENT USER PROMPT: \"Who made it?\"",
		analyst[0].Req.UserContent)
}

func TestRun_ForcedSimple(t *testing.T) {
	fake := newFake(func(_ context.Context, id persona.ID, _ provider.Request) (string, error) {
		return "direct reply", nil
	})
	rec := &recorder{}

	answer, err := newEngine(t, fake).Run(context.Background(), "2+2?", nil, rec.sink, ModeSimple)
	require.NoError(t, err)
	assert.Equal(t, "direct reply", answer)
	assert.Empty(t, rec.stageEvents())

	calls := fake.callsFor(persona.Direct)
	require.Len(t, calls, 1)
	assert.Equal(t, provider.TierFast, calls[0].Req.Tier)
	assert.False(t, calls[0].Req.JSON)
	for _, ev := range rec.all() {
		assert.Equal(t, progress.FlowNone, ev.Flow)
	}
}

// #endregion

// #region policy

func TestRun_ReviewIterationsPolicy(t *testing.T) {
	tests := []struct {
		name       string
		iterations int
		wantTitles int
		wantReview int
	}{
		{"none", 0, 4, 0},
		{"one", 1, 5, 2},
		{"three", 3, 5, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := DefaultPolicy()
			policy.ReviewIterations = tt.iterations
			fake := newFake(nil)
			rec := &recorder{}

			_, err := newEngine(t, fake, WithPolicy(policy)).Run(context.Background(), "q", nil, rec.sink, ModeComplex)
			require.NoError(t, err)
			assert.Len(t, rec.titles(), tt.wantTitles)
			assert.Equal(t, tt.wantReview, len(fake.callsFor(persona.Skeptic))+len(fake.callsFor(persona.Editor)))
		})
	}
}

func TestRun_WithoutDraftEvaluation(t *testing.T) {
	policy := DefaultPolicy()
	policy.EvaluateDrafts = false
	fake := newFake(nil)
	rec := &recorder{}

	_, err := newEngine(t, fake, WithPolicy(policy)).Run(context.Background(), "q", nil, rec.sink, ModeComplex)
	require.NoError(t, err)

	assert.Len(t, fake.callsFor(persona.Critic), 1, "critic only brainstorms")
	assert.Len(t, fake.callsFor(persona.Analyst), 1, "analyst only in step 1")
	assert.Len(t, rec.titles(), 5)
}

// #endregion

// #region classification-fallback

func TestRun_MalformedClassificationFallsToComplex(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"not-json", "I think this is simple", nil},
		{"missing-response", `{"decision":"medium"}`, nil},
		{"missing-decision", `{"response":"hi"}`, nil},
		{"unknown-decision", `{"decision":"trivial","response":""}`, nil},
		{"simple-without-answer", `{"decision":"simple","response":""}`, nil},
		{"provider-error", "", provider.ErrExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFake(func(_ context.Context, id persona.ID, _ provider.Request) (string, error) {
				if id == persona.Gatekeeper {
					return tt.reply, tt.err
				}
				return string(id) + " ok", nil
			})
			rec := &recorder{}

			answer, err := newEngine(t, fake).Run(context.Background(), "anything", nil, rec.sink, ModeAuto)
			require.NoError(t, err)
			assert.Equal(t, "writer ok", answer)
			assert.Len(t, rec.titles(), 5)
		})
	}
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Classification
		wantErr bool
	}{
		{"plain-simple", `{"decision":"simple","response":"Hi!"}`, Classification{DecisionSimple, "Hi!"}, false},
		{"fenced", "```json\n{\"decision\":\"complex\",\"response\":\"\"}\n```", Classification{DecisionComplex, ""}, false},
		{"bare-fence", "```\n{\"decision\":\"medium\",\"response\":\"\"}\n```", Classification{DecisionMedium, ""}, false},
		{"case-insensitive", `{"decision":" Medium ","response":""}`, Classification{DecisionMedium, ""}, false},
		{"medium-drops-response", `{"decision":"medium","response":"ignored"}`, Classification{DecisionMedium, ""}, false},
		{"garbage", "{", Classification{}, true},
		{"null-decision", `{"decision":null,"response":""}`, Classification{}, true},
		{"empty", "", Classification{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClassification(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrClassificationMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// #endregion

// #region concurrency

func TestRun_BatchBarrier(t *testing.T) {
	var (
		mu        sync.Mutex
		log       []string
		empathHit = make(chan struct{})
	)
	note := func(s string) {
		mu.Lock()
		log = append(log, s)
		mu.Unlock()
	}

	fake := newFake(func(ctx context.Context, id persona.ID, req provider.Request) (string, error) {
		switch id {
		case persona.Empath:
			note("resolved:empath")
			close(empathHit)
			return "empath view", nil
		case persona.Analyst:
			if strings.HasPrefix(req.UserContent, "PREVIOUS CONVERSATION") {
				// Resolve strictly after the empath.
				select {
				case <-empathHit:
				case <-ctx.Done():
					return "", ctx.Err()
				}
				note("resolved:analyst")
				return "analyst view", nil
			}
		}
		return string(id) + " ok", nil
	})

	sink := func(ev progress.Event) {
		if ev.Stage != nil && ev.Stage.Title == titleUnderstand {
			note(fmt.Sprintf("stage:%d", len(ev.Stage.Executions)))
		}
	}

	_, err := newEngine(t, fake).Run(context.Background(), "q", nil, sink, ModeComplex)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(log), 3)
	assert.Equal(t, []string{"resolved:empath", "resolved:analyst", "stage:2"}, log[:3])
}

func TestRun_AnnouncementsPrecedeBatch(t *testing.T) {
	fake := newFake(nil)
	rec := &recorder{}
	_, err := newEngine(t, fake).Run(context.Background(), "q", nil, rec.sink, ModeComplex)
	require.NoError(t, err)

	events := rec.all()
	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, titleUnderstand, events[0].Label)
	assert.Equal(t, []persona.ID{persona.Analyst, persona.Empath}, events[0].Brains)
	assert.Nil(t, events[0].Stage)
	assert.Equal(t, "The Analyst is thinking...", events[1].Label)
	assert.Equal(t, "The Empath is thinking...", events[2].Label)
	require.NotNil(t, events[3].Stage)
	assert.Len(t, events[3].Stage.Executions, 2)
}

func TestRun_ConcurrentRunsShareProvider(t *testing.T) {
	fake := newFake(nil)
	o := newEngine(t, fake)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = o.Run(context.Background(), fmt.Sprintf("question %d", i), nil, nil, ModeComplex)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, fake.callsFor(persona.Writer), 4)
}

// #endregion

// #region failures

// failingBackend fails every attempt for one persona instruction.
type failingBackend struct {
	fail       string
	gatekeeper string
}

func (b failingBackend) Name() string { return "failing" }

func (b failingBackend) Generate(_ context.Context, req provider.Request) (string, error) {
	switch req.SystemInstruction {
	case b.fail:
		return "", errors.New("upstream 503")
	case b.gatekeeper:
		return `{"decision":"complex","response":""}`, nil
	}
	return "fine", nil
}

func TestRun_ExhaustionAbortsRun(t *testing.T) {
	reg := persona.Default()
	director, err := reg.Get(persona.Director)
	require.NoError(t, err)
	gatekeeper, err := reg.Get(persona.Gatekeeper)
	require.NoError(t, err)
	client := provider.NewClient(failingBackend{fail: director.Instruction, gatekeeper: gatekeeper.Instruction}, provider.WithBaseDelay(0))
	rec := &recorder{}

	answer, err := newEngine(t, client).Run(context.Background(), "q", nil, rec.sink, ModeAuto)
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrExhausted))
	assert.Contains(t, err.Error(), "upstream 503")
	assert.Empty(t, answer)

	for _, ev := range rec.stageEvents() {
		assert.NotEqual(t, titleFinal, ev.Stage.Title)
	}
}

func TestRun_BatchFailureCancelsSiblings(t *testing.T) {
	fake := newFake(func(ctx context.Context, id persona.ID, _ provider.Request) (string, error) {
		switch id {
		case persona.Artist:
			return "", fmt.Errorf("%w: artist down", provider.ErrExhausted)
		case persona.Visionary, persona.Critic:
			<-ctx.Done()
			return "", ctx.Err()
		}
		return string(id) + " ok", nil
	})

	_, err := newEngine(t, fake).Run(context.Background(), "q", nil, nil, ModeComplex)
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrExhausted)
	assert.Contains(t, err.Error(), titleBrainstorm)
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := newFake(func(ctx context.Context, id persona.ID, _ provider.Request) (string, error) {
		if id == persona.Artist {
			cancel()
			<-ctx.Done()
			return "", ctx.Err()
		}
		return string(id) + " ok", nil
	})

	_, err := newEngine(t, fake).Run(ctx, "q", nil, nil, ModeComplex)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.callsFor(persona.Writer))
}

func TestRun_CancelledDuringClassification(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := newFake(func(ctx context.Context, id persona.ID, _ provider.Request) (string, error) {
		cancel()
		return "", ctx.Err()
	})

	_, err := newEngine(t, fake).Run(ctx, "q", nil, nil, ModeAuto)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, fake.calls, 1, "no flow runs after a cancelled classification")
}

func TestRun_StageTimeout(t *testing.T) {
	policy := DefaultPolicy()
	policy.StageTimeout = 20 * time.Millisecond
	fake := newFake(func(ctx context.Context, id persona.ID, _ provider.Request) (string, error) {
		if id == persona.Analyst {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return string(id) + " ok", nil
	})

	_, err := newEngine(t, fake, WithPolicy(policy)).Run(context.Background(), "q", nil, nil, ModeMedium)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), titleStructure)
}

// #endregion

// #region validation

func TestRun_InvalidInput(t *testing.T) {
	o := newEngine(t, newFake(nil))
	tests := []struct {
		name    string
		prompt  string
		history []Message
		mode    Mode
		want    error
	}{
		{"empty-prompt", "   ", nil, ModeAuto, ErrEmptyPrompt},
		{"bad-mode", "q", nil, "turbo", ErrInvalidMode},
		{"bad-role", "q", []Message{{Role: "system", Content: "x"}}, ModeAuto, ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Run(context.Background(), tt.prompt, tt.history, nil, tt.mode)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, provider.ErrMisconfigured)

	bad := DefaultPolicy()
	bad.ReviewIterations = -1
	_, err = New(newFake(nil), WithPolicy(bad))
	assert.Error(t, err)

	bad = DefaultPolicy()
	bad.SimpleTier = "ultra"
	_, err = New(newFake(nil), WithPolicy(bad))
	assert.Error(t, err)

	partial, err := persona.NewRegistry([]persona.Persona{{ID: persona.Analyst, Instruction: "x"}})
	require.NoError(t, err)
	_, err = New(newFake(nil), WithRegistry(partial))
	assert.ErrorIs(t, err, persona.ErrUnknownPersona)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeAuto, "AUTO": ModeAuto, "simple": ModeSimple, " Medium": ModeMedium, "complex": ModeComplex} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("deep")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

// #endregion
