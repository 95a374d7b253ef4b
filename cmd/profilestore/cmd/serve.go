package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oneconcern/profilestore/pkg/config"
	"github.com/oneconcern/profilestore/pkg/coordinator"
	"github.com/oneconcern/profilestore/pkg/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const firstPullTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a replica",
	Long: `Run a replica: the store is kept in sync with the remote repository until interrupted.

Changes to the remote URL in the configuration file are applied on the fly.
`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := serve(); err != nil {
			wrapFatalln("serve", err)
		}
	},
}

func serve() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	r, err := openReplica(ctx)
	if err != nil {
		return err
	}
	defer r.close()

	coord := coordinator.New(r.store,
		coordinator.Logger(r.l.Named("coordinator")),
		coordinator.PullPeriod(settings.PullPeriod),
		coordinator.PullDelay(settings.PullDelay),
		coordinator.GCPeriod(settings.GCPeriod),
		coordinator.ShutdownGrace(settings.ShutdownGrace),
	)
	token := r.store.TrackConfiguration(func(c core.Change) {
		r.l.Info("configuration changed",
			zap.Strings("versions", c.Versions), zap.Bool("all", c.All), zap.Bool("remote", c.Remote))
	})
	defer r.store.UntrackConfiguration(token)

	coord.Start()
	defer coord.Stop()
	if !coord.AwaitFirstPull(firstPullTimeout) {
		r.l.Warn("first pull still running, serving local content", zap.Duration("timeout", firstPullTimeout))
	}

	if v.ConfigFileUsed() != "" {
		config.Watch(v, settings, r.l.Named("config"), coord.OnRemoteURLChanged)
	}

	var srv *http.Server
	if addr := params.serve.metricsAddr; addr != "" {
		srv = &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(r.metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				r.l.Error("metrics server", zap.Error(err))
			}
		}()
	}
	r.l.Info("replica running", zap.String("id", coord.ID()), zap.String("metrics", params.serve.metricsAddr))

	<-ctx.Done()
	r.l.Info("shutting down")
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), settings.ShutdownGrace)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.l.Warn("metrics server shutdown", zap.Error(err))
		}
	}
	return nil
}

func init() {
	addMetricsAddrFlag(serveCmd)
	rootCmd.AddCommand(serveCmd)
}
