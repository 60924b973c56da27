package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/evcraddock/advocate/internal/auth"
	"github.com/evcraddock/advocate/internal/config"
	"github.com/evcraddock/advocate/internal/web"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the JSON API server. With ADV_QUEUE=memory the job worker runs in the same process.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (default: $ADV_PORT or 8080)")

	return cmd
}

func runServe(cmd *cobra.Command, port int) error {
	cfg, database, err := loadRuntime()
	if err != nil {
		return err
	}
	defer closeDB(database)

	if port == 0 {
		port = cfg.Port
	}

	verifier, err := auth.NewVerifier(cfg.IdentitySecret, cfg.IdentityIssuer, cfg.IdentityAudience)
	if err != nil {
		return fmt.Errorf("ADV_IDP_SECRET: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue, err := openQueue(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQueue(queue)

	if n, err := auth.NewSessionStore(database, !cfg.DevMode).Cleanup(ctx); err != nil {
		slog.Warn("cleaning up sessions", "err", err)
	} else if n > 0 {
		slog.Info("removed expired sessions", "count", n)
	}

	srv, err := web.NewServer(web.Config{
		DB:            database,
		Queue:         queue,
		Verifier:      verifier,
		SecureCookies: !cfg.DevMode,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, fmt.Sprintf(":%d", port))
	})
	if cfg.Queue == config.QueueMemory {
		mux := newJobMux(cfg, database)
		g.Go(func() error {
			return runWorker(gctx, queue, mux)
		})
	}
	return g.Wait()
}
