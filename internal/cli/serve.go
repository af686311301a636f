package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/adaptive-prompt/internal/catalog"
	"github.com/danielpatrickdp/adaptive-prompt/internal/composer"
	"github.com/danielpatrickdp/adaptive-prompt/internal/config"
	"github.com/danielpatrickdp/adaptive-prompt/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-prompt/internal/rpc"
)

func newServeCmd(e *env) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve Compose, Analyze and Turn over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				e.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			lis, err := net.Listen("tcp", e.cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", e.cfg.Server.Addr, err)
			}
			return serve(ctx, e.cfg, lis, e.logger, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

// serve runs the gRPC server on lis, plus the catalog watcher when enabled,
// until ctx is done or one of them fails.
func serve(ctx context.Context, cfg *config.Config, lis net.Listener, logger *zap.Logger, out io.Writer) error {
	cat, err := loadCatalog(cfg.Catalog.Dir)
	if err != nil {
		lis.Close()
		return err
	}
	holder := catalog.NewHolder(cat)

	store, err := openStore(ctx, cfg)
	if err != nil {
		lis.Close()
		return err
	}
	defer store.Close()

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithUpdateConfig(cfg.UpdateSettings()),
		orchestrator.WithEvalConfig(cfg.EvalSettings()),
		orchestrator.WithHeuristics(cfg.HeuristicsDefaults()),
	}
	if cfg.Trace.Enabled {
		db, closeDB, err := openTraceDB(cfg, store)
		if err != nil {
			lis.Close()
			return err
		}
		defer closeDB()
		opts = append(opts, orchestrator.WithTraceDB(db))
	}
	orch, err := orchestrator.New(holder, store, opts...)
	if err != nil {
		lis.Close()
		return err
	}

	srv := rpc.NewServer(
		composer.New(holder, composer.WithLogger(logger)),
		rpc.WithOrchestrator(orch),
		rpc.WithHeuristics(cfg.HeuristicsDefaults()),
		rpc.WithLogger(logger),
	)
	gs := srv.NewGRPCServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	if cfg.Catalog.Watch {
		w, err := catalog.NewWatcher(cfg.Catalog.Dir, holder,
			catalog.WithDebounce(cfg.Catalog.Debounce),
			catalog.WithLogger(logger))
		if err != nil {
			gs.Stop()
			_ = g.Wait()
			return err
		}
		g.Go(func() error { return w.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		gs.GracefulStop()
		return nil
	})

	fmt.Fprintf(out, "serving on %s (catalog: %d modules, store: %s)\n", lis.Addr(), cat.Len(), cfg.Store.Driver)
	logger.Info("serving",
		zap.String("addr", lis.Addr().String()),
		zap.Int("modules", cat.Len()),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("watch", cfg.Catalog.Watch),
		zap.Bool("trace", cfg.Trace.Enabled))

	return g.Wait()
}
