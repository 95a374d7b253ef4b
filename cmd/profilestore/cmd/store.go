package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oneconcern/profilestore/pkg/core"
	"github.com/oneconcern/profilestore/pkg/dlogger"
	"github.com/oneconcern/profilestore/pkg/gitrepo"
	"github.com/oneconcern/profilestore/pkg/metrics"
	"github.com/oneconcern/profilestore/pkg/replication"
	"go.uber.org/zap"
)

type replica struct {
	store   *core.Store
	repo    *gitrepo.Repo
	metrics *metrics.Metrics
	l       *zap.Logger
}

func cliLogger() (*zap.Logger, error) {
	return dlogger.GetLogger(settings.LogLevel, dlogger.Encoding(dlogger.EncodingConsole))
}

func openReplica(ctx context.Context) (*replica, error) {
	l, err := cliLogger()
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	repo, err := gitrepo.Open(settings.DataDir,
		gitrepo.Logger(l.Named("git")),
		gitrepo.Remote(settings.Remote.Name),
		gitrepo.URL(settings.Remote.URL),
		gitrepo.Credentials(settings.Remote.Username, settings.Remote.Password),
		gitrepo.Identity(settings.Identity.Name, settings.Identity.Email),
	)
	if err != nil {
		return nil, err
	}
	policy := replication.New(repo,
		replication.Logger(l.Named("replication")),
		replication.FetchTimeout(settings.FetchTimeout),
		replication.PushTimeout(settings.PushTimeout),
		replication.Retries(settings.PushRetries),
		replication.RetryBackoff(settings.RetryBackoff),
		replication.Metrics(m),
	)
	store := core.New(repo, policy,
		core.Logger(l.Named("store")),
		core.Layout(settings.Layout()),
		core.WithPrefetch(settings.Prefetch),
		core.GCEvery(settings.GCEvery),
		core.CacheSize(settings.CacheSize),
		core.Metrics(m),
	)
	if err = store.Start(ctx); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return &replica{store: store, repo: repo, metrics: m, l: l}, nil
}

func (r *replica) close() {
	r.store.Stop()
	if err := r.repo.Close(); err != nil {
		r.l.Warn("closing repository", zap.Error(err))
	}
	_ = r.l.Sync()
}

// withStore runs a command against a started store
func withStore(fn func(context.Context, *core.Store) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	r, err := openReplica(ctx)
	if err != nil {
		return err
	}
	defer r.close()
	return fn(ctx, r.store)
}
