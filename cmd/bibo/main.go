// Command bibo answers prompts through a panel of reasoning personas.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/bibo/internal/config"
	"github.com/danielpatrickdp/bibo/internal/logging"
	"github.com/danielpatrickdp/bibo/internal/metrics"
	"github.com/danielpatrickdp/bibo/internal/orchestrator"
	"github.com/danielpatrickdp/bibo/internal/provider"
	"github.com/danielpatrickdp/bibo/internal/trace"
)

// #region app

// app holds state shared by every subcommand.
type app struct {
	// global flags
	configPath string
	dbPath     string
	mode       string
	verbose    bool

	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// newProvider builds the text-generation provider. Tests swap it for a
	// scripted one.
	newProvider func(ctx context.Context, a *app) (provider.Provider, error)
}

func newApp() *app {
	return &app{newProvider: selectProvider}
}

// selectProvider picks a backend from the configured credentials.
func selectProvider(ctx context.Context, a *app) (provider.Provider, error) {
	opts := append(a.cfg.ClientOptions(), provider.WithLogger(a.logger), provider.WithMetrics(a.metrics))
	client, err := provider.Select(ctx, a.cfg.Credentials(), opts...)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("provider selected", zap.String("backend", client.Backend()))
	return client, nil
}

// setup loads configuration, applies flag overrides and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db") {
		cfg.Store.Path = a.dbPath
	}
	if cmd.Flags().Changed("mode") {
		cfg.Engine.Mode = a.mode
	}
	if _, err := orchestrator.ParseMode(cfg.Engine.Mode); err != nil {
		return err
	}
	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg, a.logger = cfg, logger

	a.registry = prometheus.NewRegistry()
	if a.metrics, err = metrics.New(a.registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	return nil
}

// engine builds an orchestrator from the configuration.
func (a *app) engine(ctx context.Context) (*orchestrator.Orchestrator, error) {
	p, err := a.newProvider(ctx, a)
	if err != nil {
		return nil, err
	}
	policy, err := a.cfg.Policy()
	if err != nil {
		return nil, err
	}
	return orchestrator.New(p,
		orchestrator.WithPolicy(policy),
		orchestrator.WithLogger(a.logger),
		orchestrator.WithMetrics(a.metrics),
	)
}

// openStore opens the trace database. An empty path disables tracing.
func (a *app) openStore() (*trace.Store, error) {
	if a.cfg.Store.Path == "" {
		return nil, nil
	}
	return trace.NewStore(a.cfg.Store.Path, a.logger)
}

// #endregion app

// #region root

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "bibo",
		Short: "Multi-perspective reasoning over an LLM",
		Long: `bibo routes each prompt by complexity. Simple prompts are answered
directly; harder ones go through a staged panel of personas that
analyse, brainstorm, draft, critique and finally compose the answer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: ./bibo.yaml or ~/.config/bibo/bibo.yaml)")
	root.PersistentFlags().StringVar(&a.mode, "mode", "", "thinking mode: auto, simple, medium or complex")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "trace database path (empty disables tracing)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newAskCmd(a),
		newChatCmd(a),
		newServeCmd(a),
		newInspectCmd(a),
		newReplayCmd(a),
		newExportCmd(a),
	)
	return root
}

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// #endregion root
