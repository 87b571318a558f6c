package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/bibo/internal/progress"
	"github.com/danielpatrickdp/bibo/internal/trace"
)

// #region inspect

func newInspectCmd(a *app) *cobra.Command {
	var (
		last    int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "inspect [run-id]",
		Short: "List stored runs or show one run's thinking process",
		Long: `Without arguments lists the most recent runs. With a run id (or a
unique prefix of one) prints the run and its reconstructed thinking
process.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("no trace database configured (set --db or BIBO_DB)")
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				id, err := resolveRunID(store, args[0])
				if err != nil {
					return err
				}
				return runDetailMode(out, store, id, jsonOut)
			}
			return runListMode(out, store, last, jsonOut)
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent runs")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of text")
	return cmd
}

// resolveRunID expands a unique id prefix.
func resolveRunID(store *trace.Store, id string) (string, error) {
	if _, err := store.GetRun(id); err == nil {
		return id, nil
	}
	runs, err := store.ListRuns(1000)
	if err != nil {
		return "", err
	}
	var match string
	for _, r := range runs {
		if strings.HasPrefix(r.ID, id) {
			if match != "" {
				return "", fmt.Errorf("run id prefix %q is ambiguous", id)
			}
			match = r.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", trace.ErrRunNotFound, id)
	}
	return match, nil
}

// #endregion inspect

// #region list-mode

type listRow struct {
	ID        string `json:"id"`
	Mode      string `json:"mode"`
	Flow      string `json:"flow"`
	Status    string `json:"status"`
	Events    int    `json:"events"`
	StartedAt string `json:"started_at"`
	Prompt    string `json:"prompt"`
	Error     string `json:"error,omitempty"`
}

func runListMode(w io.Writer, store *trace.Store, last int, jsonOut bool) error {
	runs, err := store.ListRuns(last)
	if err != nil {
		return err
	}
	rows := make([]listRow, len(runs))
	for i, r := range runs {
		rows[i] = listRow{
			ID:        r.ID,
			Mode:      r.Mode,
			Flow:      r.Flow,
			Status:    string(r.Status),
			Events:    r.Events,
			StartedAt: r.StartedAt.Format("2006-01-02T15:04:05Z"),
			Prompt:    r.Prompt,
			Error:     r.Error,
		}
	}
	if jsonOut {
		return printJSON(w, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "no runs found")
		return nil
	}

	fmt.Fprintf(w, "%-8s  %-7s  %-7s  %-7s  %6s  %-20s  %s\n",
		"Run", "Mode", "Flow", "Status", "Events", "Started", "Prompt")
	fmt.Fprintf(w, "%-8s+-%-7s+-%-7s+-%-7s+-%6s+-%-20s+-%s\n",
		"--------", "-------", "-------", "-------", "------", "--------------------", "--------------------")
	for _, r := range rows {
		fmt.Fprintf(w, "%-8s  %-7s  %-7s  %-7s  %6d  %-20s  %s\n",
			shortID(r.ID), r.Mode, r.Flow, r.Status, r.Events, r.StartedAt, truncate(r.Prompt, 60))
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	listRow
	History []string                 `json:"history,omitempty"`
	Answer  string                   `json:"answer,omitempty"`
	Process progress.ThinkingProcess `json:"thinking_process"`
}

func runDetailMode(w io.Writer, store *trace.Store, id string, jsonOut bool) error {
	run, err := store.GetRun(id)
	if err != nil {
		return err
	}
	tp, err := store.Process(id)
	if err != nil {
		return err
	}
	out := detailOutput{
		listRow: listRow{
			ID: run.ID, Mode: run.Mode, Flow: run.Flow, Status: string(run.Status),
			Events: run.Events, StartedAt: run.StartedAt.Format("2006-01-02T15:04:05Z"),
			Prompt: run.Prompt, Error: run.Error,
		},
		Answer:  run.Answer,
		Process: tp,
	}
	for _, m := range run.History {
		out.History = append(out.History, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	if jsonOut {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Run:     %s\n", out.ID)
	fmt.Fprintf(w, "Started: %s\n", out.StartedAt)
	fmt.Fprintf(w, "Mode:    %s\n", out.Mode)
	fmt.Fprintf(w, "Flow:    %s\n", out.Flow)
	fmt.Fprintf(w, "Status:  %s\n", out.Status)
	fmt.Fprintf(w, "Prompt:  %s\n", out.Prompt)
	if out.Error != "" {
		fmt.Fprintf(w, "Error:   %s\n", out.Error)
	}
	for _, h := range out.History {
		fmt.Fprintf(w, "  | %s\n", truncate(h, 100))
	}

	for _, st := range tp.Stages {
		fmt.Fprintf(w, "\n%s\n", st.Title)
		for _, ex := range st.Executions {
			fmt.Fprintf(w, "  [%s] %s\n", ex.Persona, truncate(ex.Response, 100))
		}
		if st.Summary != nil {
			fmt.Fprintf(w, "  => [%s] %s\n", st.Summary.Persona, truncate(st.Summary.Response, 100))
		}
	}
	if len(tp.ReviewCycles) > 0 {
		fmt.Fprintf(w, "\nReview cycles:\n")
		for i, rc := range tp.ReviewCycles {
			fmt.Fprintf(w, "  %d. critique: %s\n", i+1, truncate(rc.Critique, 90))
			if rc.RefinedText != "" {
				fmt.Fprintf(w, "     refined:  %s\n", truncate(rc.RefinedText, 90))
			}
		}
	}
	if out.Answer != "" {
		fmt.Fprintf(w, "\nAnswer:\n%s\n", out.Answer)
	}
	return nil
}

// #endregion detail-mode

// #region output

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate shortens s to n runes on one line.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// #endregion output
