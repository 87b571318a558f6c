package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/bibo/internal/metrics"
	"github.com/danielpatrickdp/bibo/internal/orchestrator"
	"github.com/danielpatrickdp/bibo/internal/persona"
	"github.com/danielpatrickdp/bibo/internal/progress"
	"github.com/danielpatrickdp/bibo/internal/provider"
	"github.com/danielpatrickdp/bibo/internal/trace"
)

// #region helpers

type runnerFunc func(ctx context.Context, prompt string, history []orchestrator.Message, sink progress.Sink, mode orchestrator.Mode) (string, error)

func (f runnerFunc) Run(ctx context.Context, prompt string, history []orchestrator.Message, sink progress.Sink, mode orchestrator.Mode) (string, error) {
	return f(ctx, prompt, history, sink, mode)
}

func startServer(t *testing.T, s *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dialRun(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/run"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntilDone collects frames until an answer or error frame arrives.
func readUntilDone(t *testing.T, conn *websocket.Conn) []Frame {
	t.Helper()
	var frames []Frame
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		frames = append(frames, f)
		if f.Type != FrameProgress {
			return frames
		}
	}
}

// #endregion helpers

// #region websocket-tests

func TestRun_StreamsProgressThenAnswer(t *testing.T) {
	var gotMode orchestrator.Mode
	runner := runnerFunc(func(_ context.Context, prompt string, history []orchestrator.Message, sink progress.Sink, mode orchestrator.Mode) (string, error) {
		gotMode = mode
		sink(progress.Event{Label: "Analyzing prompt complexity...", Brains: []persona.ID{persona.Gatekeeper}})
		sink(progress.Event{
			Label: "Step 1: Structural Analysis",
			Stage: &progress.Stage{Title: "Step 1: Structural Analysis", Executions: []progress.Execution{{Persona: persona.Analyst, Response: "s"}}},
			Flow:  progress.FlowMedium,
		})
		return "answer to " + prompt + " after " + history[0].Content, nil
	})
	conn := dialRun(t, startServer(t, New(runner)))

	require.NoError(t, conn.WriteJSON(Request{
		Prompt:  "Compare React and Vue",
		History: []orchestrator.Message{{Role: orchestrator.RoleUser, Content: "hello"}},
		Mode:    orchestrator.ModeMedium,
	}))
	frames := readUntilDone(t, conn)

	require.Len(t, frames, 3)
	assert.Equal(t, FrameProgress, frames[0].Type)
	assert.Equal(t, "Analyzing prompt complexity...", frames[0].Event.Label)
	assert.Equal(t, progress.FlowMedium, frames[1].Event.Flow)
	assert.Equal(t, "Step 1: Structural Analysis", frames[1].Event.Stage.Title)
	assert.Equal(t, Frame{Type: FrameAnswer, Answer: "answer to Compare React and Vue after hello"}, frames[2])
	assert.Equal(t, orchestrator.ModeMedium, gotMode)
}

func TestRun_ErrorFrames(t *testing.T) {
	tests := []struct {
		name string
		err  error
		mode orchestrator.Mode
		code string
	}{
		{"exhausted", &provider.ExhaustedError{Backend: "openai", Attempts: 4, Err: errors.New("429")}, "", "provider_exhausted"},
		{"invalid", orchestrator.ErrEmptyPrompt, "", "invalid_input"},
		{"bad-mode", nil, "turbo", "invalid_input"},
		{"internal", errors.New("boom"), "", "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := runnerFunc(func(context.Context, string, []orchestrator.Message, progress.Sink, orchestrator.Mode) (string, error) {
				return "", tt.err
			})
			conn := dialRun(t, startServer(t, New(runner)))
			require.NoError(t, conn.WriteJSON(Request{Prompt: "q", Mode: tt.mode}))

			frames := readUntilDone(t, conn)
			last := frames[len(frames)-1]
			assert.Equal(t, FrameError, last.Type)
			assert.Equal(t, tt.code, last.Code)
			assert.NotEmpty(t, last.Error)
		})
	}
}

func TestRun_ClientCloseCancelsRun(t *testing.T) {
	started := make(chan struct{})
	canceled := make(chan error, 1)
	runner := runnerFunc(func(ctx context.Context, _ string, _ []orchestrator.Message, _ progress.Sink, _ orchestrator.Mode) (string, error) {
		close(started)
		<-ctx.Done()
		canceled <- ctx.Err()
		return "", ctx.Err()
	})
	conn := dialRun(t, startServer(t, New(runner)))
	require.NoError(t, conn.WriteJSON(Request{Prompt: "long question"}))

	<-started
	require.NoError(t, conn.Close())

	select {
	case err := <-canceled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("run was not canceled after the client went away")
	}
}

// #endregion websocket-tests

// #region http-tests

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	m.Run("medium", "ok")

	ts := startServer(t, New(nil, WithGatherer(reg)))

	code, body := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	code, body = get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `bibo_runs_total{flow="medium",outcome="ok"} 1`)
}

func TestRuns_Endpoints(t *testing.T) {
	store, err := trace.NewStore(filepath.Join(t.TempDir(), "trace.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	runner := runnerFunc(func(_ context.Context, _ string, _ []orchestrator.Message, sink progress.Sink, _ orchestrator.Mode) (string, error) {
		sink(progress.Event{
			Label: "Writing Final Answer...",
			Stage: &progress.Stage{Title: "Step 2: Drafting & Composition", Executions: []progress.Execution{{Persona: persona.Writer, Response: "done"}}},
			Flow:  progress.FlowMedium,
		})
		return "done", nil
	})
	ts := startServer(t, New(runner, WithStore(store)))

	conn := dialRun(t, ts)
	require.NoError(t, conn.WriteJSON(Request{Prompt: "q"}))
	readUntilDone(t, conn)

	code, body := get(t, ts.URL+"/v1/runs")
	require.Equal(t, http.StatusOK, code)
	var runs []runSummary
	require.NoError(t, json.Unmarshal(body, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "medium", runs[0].Flow)
	assert.Equal(t, 1, runs[0].Events)

	// The run row is finished before the answer frame is written.
	code, body = get(t, ts.URL+"/v1/runs/"+runs[0].ID)
	require.Equal(t, http.StatusOK, code)
	var detail struct {
		Status  string                   `json:"status"`
		Process progress.ThinkingProcess `json:"thinkingProcess"`
	}
	require.NoError(t, json.Unmarshal(body, &detail))
	assert.Equal(t, "done", detail.Status)
	assert.Equal(t, "done", detail.Process.FinalAnswer)
	require.Len(t, detail.Process.Stages, 1)

	code, _ = get(t, ts.URL+"/v1/runs/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRuns_NoStore(t *testing.T) {
	ts := startServer(t, New(nil))
	code, _ := get(t, ts.URL+"/v1/runs")
	assert.Equal(t, http.StatusNotFound, code)
}

// #endregion http-tests
