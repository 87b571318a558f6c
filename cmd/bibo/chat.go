package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/bibo/internal/orchestrator"
	"github.com/danielpatrickdp/bibo/internal/trace"
)

// #region chat

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation that keeps history",
		Long: `Starts a read-eval loop. Every answered turn is added to the
conversation history sent with the next prompt.

Commands:
  /mode <auto|simple|medium|complex>   switch thinking mode
  /reset                               forget the conversation
  quit, exit                           leave`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			o, err := a.engine(ctx)
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}
			return a.chatLoop(ctx, cmd, o, store)
		},
	}
}

func (a *app) chatLoop(ctx context.Context, cmd *cobra.Command, o *orchestrator.Orchestrator, store *trace.Store) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	mode := a.cfg.Mode()
	var history []orchestrator.Message

	fmt.Fprintf(out, "bibo ready (mode: %s). Type a prompt, or 'quit' to exit.\n", mode)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "quit" || line == "exit":
			return nil
		case line == "/reset":
			history = nil
			fmt.Fprintln(out, "conversation cleared")
			continue
		case strings.HasPrefix(line, "/mode"):
			arg := strings.TrimSpace(strings.TrimPrefix(line, "/mode"))
			m, err := orchestrator.ParseMode(arg)
			if arg == "" || err != nil {
				fmt.Fprintln(errOut, "usage: /mode auto|simple|medium|complex")
				continue
			}
			mode = m
			fmt.Fprintf(out, "mode: %s\n", mode)
			continue
		}

		answer, err := a.turn(ctx, o, store, line, history, mode, labelPrinter(errOut))
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(errOut, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "\n%s\n\n", answer)
		history = append(history,
			orchestrator.Message{Role: orchestrator.RoleUser, Content: line},
			orchestrator.Message{Role: orchestrator.RoleAssistant, Content: answer},
		)
	}
	return scanner.Err()
}

// #endregion chat
