// Package server is the HTTP surface: a websocket endpoint streaming one
// run's progress, read access to stored runs, metrics and a health probe.
package server

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/bibo/internal/logging"
	"github.com/danielpatrickdp/bibo/internal/orchestrator"
	"github.com/danielpatrickdp/bibo/internal/progress"
	"github.com/danielpatrickdp/bibo/internal/provider"
	"github.com/danielpatrickdp/bibo/internal/trace"
)

// #endregion

// #region frames

// Request is the first and only message a client sends on /v1/run.
type Request struct {
	Prompt  string                 `json:"prompt"`
	History []orchestrator.Message `json:"history,omitempty"`
	Mode    orchestrator.Mode      `json:"mode,omitempty"`
}

// Frame types sent to the client.
const (
	FrameProgress = "progress"
	FrameAnswer   = "answer"
	FrameError    = "error"
)

// Frame is one server-to-client websocket message.
type Frame struct {
	Type   string          `json:"type"`
	Event  *progress.Event `json:"event,omitempty"`
	Answer string          `json:"answer,omitempty"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

// errorCode classifies a run failure for clients.
func errorCode(err error) string {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, provider.ErrExhausted):
		return "provider_exhausted"
	case errors.Is(err, provider.ErrMisconfigured):
		return "misconfigured"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}

// #endregion frames

// #region server

// Runner is the pipeline entry point; *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, prompt string, history []orchestrator.Message, sink progress.Sink, mode orchestrator.Mode) (string, error)
}

// Server serves the HTTP surface.
type Server struct {
	runner   Runner
	store    *trace.Store
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithStore records runs and enables the /v1/runs endpoints.
func WithStore(s *trace.Store) Option {
	return func(srv *Server) { srv.store = s }
}

// WithGatherer sets the registry exposed on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(srv *Server) { srv.gatherer = g }
}

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(srv *Server) { srv.logger = logging.OrNop(l) }
}

// New builds a server around runner.
func New(runner Runner, opts ...Option) *Server {
	s := &Server{
		runner:   runner,
		gatherer: prometheus.DefaultGatherer,
		logger:   zap.NewNop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/run", s.handleRun)
	mux.HandleFunc("GET /v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http server listening", zap.String("addr", addr))

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// #endregion server

// #region handlers

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRun upgrades, reads one Request and streams the run. Closing the
// socket cancels the run.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	var req Request
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(Frame{Type: FrameError, Error: "decode request: " + err.Error(), Code: "invalid_input"})
		return
	}
	mode, err := orchestrator.ParseMode(string(req.Mode))
	if err != nil {
		_ = conn.WriteJSON(Frame{Type: FrameError, Error: err.Error(), Code: errorCode(err)})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Any further read, including the close frame, ends the run.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	var writeErr error
	send := func(ev progress.Event) {
		if writeErr != nil {
			return
		}
		if writeErr = conn.WriteJSON(Frame{Type: FrameProgress, Event: &ev}); writeErr != nil {
			cancel()
		}
	}
	sink := progress.Sink(send)

	var rec *trace.Recorder
	if s.store != nil {
		if rec, err = s.store.Begin(req.Prompt, mode, req.History); err != nil {
			s.logger.Warn("trace begin failed", zap.Error(err))
			rec = nil
		} else {
			sink = progress.Tee(send, rec.Record)
		}
	}

	answer, runErr := s.runner.Run(ctx, req.Prompt, req.History, sink, mode)
	if rec != nil {
		if err := rec.Finish(answer, runErr); err != nil {
			s.logger.Warn("trace finish failed", zap.String("run_id", rec.ID()), zap.Error(err))
		}
	}
	if writeErr != nil {
		return
	}

	final := Frame{Type: FrameAnswer, Answer: answer}
	if runErr != nil {
		final = Frame{Type: FrameError, Error: runErr.Error(), Code: errorCode(runErr)}
	}
	if err := conn.WriteJSON(final); err != nil {
		s.logger.Debug("final frame write failed", zap.Error(err))
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// runSummary is the JSON view of a stored run.
type runSummary struct {
	ID         string    `json:"id"`
	Prompt     string    `json:"prompt"`
	Mode       string    `json:"mode"`
	Flow       string    `json:"flow,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Events     int       `json:"events"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
}

func summarize(r trace.Run) runSummary {
	return runSummary{
		ID: r.ID, Prompt: r.Prompt, Mode: r.Mode, Flow: r.Flow, Status: string(r.Status),
		Error: r.Error, Events: r.Events, StartedAt: r.StartedAt, FinishedAt: r.FinishedAt,
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no trace store configured"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.store.ListRuns(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, summarize(run))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no trace store configured"})
		return
	}
	id := r.PathValue("id")
	run, err := s.store.GetRun(id)
	if errors.Is(err, trace.ErrRunNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	tp, err := s.store.Process(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		runSummary
		Process progress.ThinkingProcess `json:"thinkingProcess"`
	}{summarize(run), tp})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// #endregion handlers
