package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/bibo/internal/replay"
)

// #region replay

// errDiverged makes the command exit non-zero when any replay mismatches.
var errDiverged = errors.New("replay diverged from expectations")

func newReplayCmd(a *app) *cobra.Command {
	var (
		runIDs  []string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "replay [fixture.yaml...]",
		Short: "Replay fixtures or stored runs offline",
		Long: `Runs the pipeline against scripted persona responses, without any
network calls, and compares flow, stage titles and answer with the
expectations. Fixtures come from YAML files or, with --run, from runs
stored in the trace database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(runIDs) == 0 {
				return errors.New("give at least one fixture file or --run id")
			}
			var cases []replayCase
			for _, path := range args {
				f, err := replay.LoadFixture(path)
				if err != nil {
					return err
				}
				cases = append(cases, replayCase{name: filepath.Base(path), fixture: f})
			}
			if len(runIDs) > 0 {
				fromDB, err := a.fixturesFromStore(runIDs)
				if err != nil {
					return err
				}
				cases = append(cases, fromDB...)
			}
			return a.runReplays(cmd.Context(), cmd.OutOrStdout(), cases, verbose)
		},
	}
	cmd.Flags().StringSliceVar(&runIDs, "run", nil, "stored run id (or unique prefix) to replay; repeatable")
	cmd.Flags().BoolVar(&verbose, "show", false, "print every mismatch and the replayed answer")
	return cmd
}

type replayCase struct {
	name    string
	fixture *replay.Fixture
}

func (a *app) fixturesFromStore(ids []string) ([]replayCase, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("no trace database configured (set --db or BIBO_DB)")
	}
	defer store.Close()

	out := make([]replayCase, 0, len(ids))
	for _, id := range ids {
		full, err := resolveRunID(store, id)
		if err != nil {
			return nil, err
		}
		f, err := replay.FromTrace(store, full)
		if err != nil {
			return nil, fmt.Errorf("export run %s: %w", shortID(full), err)
		}
		out = append(out, replayCase{name: "run:" + shortID(full), fixture: f})
	}
	return out, nil
}

// #endregion replay

// #region output

// runReplays prints a comparison table and returns errDiverged on any mismatch.
func (a *app) runReplays(ctx context.Context, w io.Writer, cases []replayCase, verbose bool) error {
	fmt.Fprintf(w, "%-24s| %-9s| %-9s| %s\n", "Fixture", "Expected", "Replayed", "Match")
	fmt.Fprintf(w, "%-24s+%-10s+%-10s+%s\n", "------------------------", "----------", "----------", "------")

	diverge := 0
	for _, c := range cases {
		res, err := replay.Replay(ctx, c.fixture, replay.Options{Logger: a.logger})
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		expected := "-"
		if c.fixture.Expect != nil && c.fixture.Expect.Flow != "" {
			expected = c.fixture.Expect.Flow
		}
		diffs := res.Check(c.fixture.Expect)
		match := "OK"
		if len(diffs) > 0 {
			match = "DIFF"
			diverge++
		}
		fmt.Fprintf(w, "%-24s| %-9s| %-9s| %s\n", truncate(c.name, 24), expected, res.Flow, match)
		if verbose {
			for _, d := range diffs {
				fmt.Fprintf(w, "    %s\n", d)
			}
			if res.Err != nil {
				fmt.Fprintf(w, "    error: %v\n", res.Err)
			} else {
				fmt.Fprintf(w, "    answer: %s\n", truncate(res.Answer, 100))
			}
		}
	}
	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge\n", len(cases), len(cases)-diverge, diverge)
	if diverge > 0 {
		return errDiverged
	}
	return nil
}

// #endregion output

// #region export

func newExportCmd(a *app) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Write a stored run as a replay fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := a.fixturesFromStore(args)
			if err != nil {
				return err
			}
			f := cases[0].fixture

			if outPath == "" || outPath == "-" {
				return f.Encode(cmd.OutOrStdout())
			}
			file, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", outPath, err)
			}
			if err := f.Encode(file); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "fixture written to %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output fixture path (default stdout)")
	return cmd
}

// #endregion export
