package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/bibo/internal/rpc"
	"github.com/danielpatrickdp/bibo/internal/server"
)

// #region serve

func newServeCmd(a *app) *cobra.Command {
	var grpcAddr, httpAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over gRPC and websocket",
		Long: `Serves bibo.v1.Reasoner/Run over gRPC and GET /v1/run over websocket.
The HTTP listener also exposes /v1/runs, /metrics and /healthz.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("grpc") {
				a.cfg.Server.GRPCAddr = grpcAddr
			}
			if cmd.Flags().Changed("http") {
				a.cfg.Server.HTTPAddr = httpAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "gRPC listen address (empty disables)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP listen address (empty disables)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
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
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	grpcAddr, httpAddr := a.cfg.Server.GRPCAddr, a.cfg.Server.HTTPAddr
	if grpcAddr == "" && httpAddr == "" {
		return fmt.Errorf("nothing to serve: both gRPC and HTTP addresses are empty")
	}

	g, ctx := errgroup.WithContext(ctx)

	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", grpcAddr, err)
		}
		gs := grpc.NewServer()
		rpcOpts := []rpc.ServerOption{rpc.WithLogger(a.logger)}
		if store != nil {
			rpcOpts = append(rpcOpts, rpc.WithStore(store))
		}
		rpc.Register(gs, rpc.NewServer(o, rpcOpts...))
		a.logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))

		g.Go(func() error { return gs.Serve(lis) })
		g.Go(func() error {
			<-ctx.Done()
			gs.GracefulStop()
			return nil
		})
	}

	if httpAddr != "" {
		httpOpts := []server.Option{server.WithLogger(a.logger), server.WithGatherer(a.registry)}
		if store != nil {
			httpOpts = append(httpOpts, server.WithStore(store))
		}
		srv := server.New(o, httpOpts...)
		g.Go(func() error { return srv.ListenAndServe(ctx, httpAddr) })
	}

	return g.Wait()
}

// #endregion serve
