package trace

// #region imports
import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/bibo/internal/orchestrator"
	"github.com/danielpatrickdp/bibo/internal/progress"
)

// #endregion

// #region recorder

// FlowClassify marks a run that failed before any flow was chosen.
const FlowClassify = "classify"

// Recorder appends the events of one run. Record is a progress.Sink.
// Write failures are logged and never interrupt the run.
type Recorder struct {
	store *Store
	runID string
	mode  orchestrator.Mode

	mu       sync.Mutex
	seq      int
	flow     progress.FlowType
	finished bool
}

// ID returns the run id.
func (r *Recorder) ID() string { return r.runID }

// Record persists one event.
func (r *Recorder) Record(ev progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	if ev.Flow != progress.FlowNone {
		r.flow = ev.Flow
	}
	r.seq++
	if err := r.appendEvent(r.seq, ev); err != nil {
		r.store.logger.Warn("trace event dropped",
			zap.String("run_id", r.runID),
			zap.Int("seq", r.seq),
			zap.Error(err))
	}
}

// Finish closes the run with its answer or error.
func (r *Recorder) Finish(answer string, runErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return nil
	}
	r.finished = true

	status, errMsg := StatusDone, ""
	if runErr != nil {
		status, errMsg, answer = StatusFailed, runErr.Error(), ""
	}
	flow := string(r.flow)
	if flow == "" {
		// Direct answers carry no flow tag.
		flow = string(orchestrator.DecisionSimple)
		if runErr != nil && r.mode != orchestrator.ModeSimple {
			flow = FlowClassify
		}
	}

	_, err := r.store.db.Exec(
		`UPDATE runs SET flow = ?, status = ?, answer = ?, error = ?, finished_at = ? WHERE run_id = ?`,
		flow, string(status), nullIfEmpty(answer), nullIfEmpty(errMsg),
		time.Now().UTC().Format(timeLayout), r.runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// #endregion recorder

// #region append-event

func (r *Recorder) appendEvent(seq int, ev progress.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = r.store.db.Exec(
		`INSERT INTO run_events (run_id, seq, label, event_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.runID, seq, ev.Label, string(raw), time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// #endregion append-event
