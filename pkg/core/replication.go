package core

import (
	"context"

	"github.com/oneconcern/profilestore/pkg/core/status"
	"go.uber.org/zap"
)

// Pull synchronizes local versions with the remote.
// It tells whether the content of some version changed.
func (s *Store) Pull(ctx context.Context, deleteStale bool) (bool, error) {
	return execute(ctx, s, opSpec{name: "pull"}, func(op *opContext) (bool, error) {
		return s.pullLocked(op, deleteStale)
	})
}

// Push publishes local versions which are ahead of the remote
func (s *Store) Push(ctx context.Context) error {
	_, err := execute(ctx, s, opSpec{name: "push"}, func(op *opContext) (struct{}, error) {
		op.requirePush()
		return struct{}{}, nil
	})
	return err
}

// Housekeep garbage collects the repository
func (s *Store) Housekeep(ctx context.Context) error {
	_, err := execute(ctx, s, opSpec{name: "housekeep"}, func(*opContext) (struct{}, error) {
		return struct{}{}, s.gcLocked()
	})
	return err
}

// SetRemoteURL points the store to another remote. It tells whether the URL changed.
func (s *Store) SetRemoteURL(ctx context.Context, url string) (bool, error) {
	return execute(ctx, s, opSpec{name: "set_remote"}, func(*opContext) (bool, error) {
		changed, err := s.repo.SetRemoteURL(url)
		if err != nil {
			return false, status.ErrStoreFault.Wrap(err)
		}
		if changed {
			s.l.Debug("remote changed", zap.String("url", url))
		}
		return changed, nil
	})
}

// OnRemoteChange is called when another replica published a change
func (s *Store) OnRemoteChange() {
	s.cache.InvalidateAll()
	s.listeners.notify(Change{All: true, Remote: true})
}

// InvalidateCache drops all cached versions
func (s *Store) InvalidateCache() {
	s.cache.InvalidateAll()
}
