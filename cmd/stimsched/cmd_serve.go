package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/stimsched/internal/codec"
	"github.com/danielpatrickdp/stimsched/internal/logging"
	"github.com/danielpatrickdp/stimsched/internal/state"
)

type serveFlags struct {
	addr    string
	persist bool
}

func newServeCmd(g *globals) *cobra.Command {
	var fl serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve compiled schedules to renderers over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("addr") {
				fl.addr = envOr("STIMSCHED_ADDR", fl.addr)
			}
			return runServe(cmd.Context(), g, &fl)
		},
	}
	f := cmd.Flags()
	f.StringVar(&fl.addr, "addr", "localhost:50061", "listen address")
	f.BoolVar(&fl.persist, "persist", true, "record compiled runs in the database")
	return cmd
}

func runServe(ctx context.Context, g *globals, fl *serveFlags) error {
	log := logging.New("serve")
	var store *state.Store
	if fl.persist {
		var err error
		if store, err = g.openStore(); err != nil {
			return err
		}
		defer store.Close()
	}

	lis, err := net.Listen("tcp", fl.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", fl.addr, err)
	}
	srv := codec.NewServer()
	codec.Register(srv, codec.NewService(g.device, store))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info("listening", "addr", lis.Addr().String(), "frame_rate", g.device.FrameRate)
		return srv.Serve(lis)
	})
	eg.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		srv.GracefulStop()
		return nil
	})
	return eg.Wait()
}
