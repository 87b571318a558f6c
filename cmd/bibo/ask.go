package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/bibo/internal/orchestrator"
	"github.com/danielpatrickdp/bibo/internal/progress"
	"github.com/danielpatrickdp/bibo/internal/rpc"
	"github.com/danielpatrickdp/bibo/internal/trace"
)

// #region turn

// turn runs one prompt and records it in store when one is open.
func (a *app) turn(ctx context.Context, o *orchestrator.Orchestrator, store *trace.Store, prompt string, history []orchestrator.Message, mode orchestrator.Mode, sink progress.Sink) (string, error) {
	var rec *trace.Recorder
	if store != nil {
		var err error
		if rec, err = store.Begin(prompt, mode, history); err != nil {
			a.logger.Warn("trace begin failed", zap.Error(err))
			rec = nil
		} else {
			sink = progress.Tee(sink, rec.Record)
		}
	}
	answer, err := o.Run(ctx, prompt, history, sink, mode)
	if rec != nil {
		if ferr := rec.Finish(answer, err); ferr != nil {
			a.logger.Warn("trace finish failed", zap.String("run_id", rec.ID()), zap.Error(ferr))
		}
		a.logger.Debug("run recorded", zap.String("run_id", rec.ID()))
	}
	return answer, err
}

// labelPrinter writes each new progress label on its own line.
func labelPrinter(w io.Writer) progress.Sink {
	last := ""
	return func(ev progress.Event) {
		if ev.Label == "" || ev.Label == last {
			return
		}
		last = ev.Label
		fmt.Fprintf(w, "… %s\n", ev.Label)
	}
}

// #endregion turn

// #region ask

func newAskCmd(a *app) *cobra.Command {
	var (
		jsonOut bool
		quiet   bool
		remote  string
	)
	cmd := &cobra.Command{
		Use:   "ask [prompt...]",
		Short: "Answer one prompt and exit",
		Long: `Answers a single prompt. Progress labels are printed to stderr and
the answer to stdout. With --remote the prompt is sent to a running
"bibo serve" over gRPC instead of being answered in-process.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			prompt := strings.Join(args, " ")
			mode := a.cfg.Mode()
			acc := progress.NewAccumulator()
			sink := acc.Sink()
			if !quiet {
				sink = progress.Tee(sink, labelPrinter(cmd.ErrOrStderr()))
			}

			var (
				answer string
				err    error
			)
			if remote != "" {
				answer, err = askRemote(ctx, remote, prompt, mode, sink)
			} else {
				answer, err = a.askLocal(ctx, prompt, mode, sink)
			}
			if err != nil {
				return err
			}
			acc.SetFinal(answer)

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Answer  string                   `json:"answer"`
					Process progress.ThinkingProcess `json:"thinkingProcess"`
				}{answer, acc.Process()})
			}
			_, err = fmt.Fprintln(out, answer)
			return err
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the answer and thinking process as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress labels")
	cmd.Flags().StringVar(&remote, "remote", "", "gRPC address of a running bibo serve")
	return cmd
}

func (a *app) askLocal(ctx context.Context, prompt string, mode orchestrator.Mode, sink progress.Sink) (string, error) {
	o, err := a.engine(ctx)
	if err != nil {
		return "", err
	}
	store, err := a.openStore()
	if err != nil {
		return "", err
	}
	if store != nil {
		defer store.Close()
	}
	return a.turn(ctx, o, store, prompt, nil, mode, sink)
}

func askRemote(ctx context.Context, addr, prompt string, mode orchestrator.Mode, sink progress.Sink) (string, error) {
	c, err := rpc.NewClient(addr)
	if err != nil {
		return "", err
	}
	defer c.Close()
	return c.Run(ctx, prompt, nil, mode, sink)
}

// #endregion ask
