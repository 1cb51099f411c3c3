// Package cmd defines and implements the novelmirror CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/novelmirror/internal/app"
	"github.com/JakeFAU/novelmirror/internal/config"
	"github.com/JakeFAU/novelmirror/internal/metrics"
)

type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. Tests replace it to inject an App
// built on in-memory services.
var newApp = func(ctx context.Context, cfgFile string) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

// newRootCmd returns the command tree and a shutdown func that is safe to
// call more than once. Cobra skips post-run hooks when a command fails, so
// callers run shutdown themselves as well.
func newRootCmd() (*cobra.Command, func()) {
	var (
		cfgFile     string
		instance    *app.App
		stopMetrics context.CancelFunc
	)
	shutdown := func() {
		if stopMetrics != nil {
			stopMetrics()
			stopMetrics = nil
		}
		if instance != nil {
			_ = instance.Close()
			instance = nil
		}
	}
	cmd := &cobra.Command{
		Use:   "novelmirror",
		Short: "Mirror web-serialized novels into a local store and keep them current.",
		Long: `novelmirror crawls serialized fiction hosts, stores every series as
books, chapters and pages, and catches stored series up with new chapters
while pacing requests per host.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			instance = a
			ctx := context.WithValue(cmd.Context(), appKey, a)
			if addr := a.Config.Metrics.Addr; addr != "" {
				var metricsCtx context.Context
				metricsCtx, stopMetrics = context.WithCancel(ctx)
				go func() {
					if err := metrics.Serve(metricsCtx, addr, a.Logger); err != nil {
						a.Logger.Error("metrics server failed", zap.Error(err))
					}
				}()
			}
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			shutdown()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./novelmirror.yaml)")

	cmd.AddCommand(newLoadCmd(), newCatchUpCmd(), newSeriesCmd())
	return cmd, shutdown
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, shutdown := newRootCmd()
	err := root.ExecuteContext(ctx)
	shutdown()
	if err != nil {
		stop()
		os.Exit(1)
	}
}
