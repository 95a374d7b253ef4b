package core_test

import (
	"context"
	"sync"
	"testing"

	"github.com/oneconcern/profilestore/pkg/core"
	"github.com/oneconcern/profilestore/pkg/core/status"
	"github.com/oneconcern/profilestore/pkg/errors"
	"github.com/oneconcern/profilestore/pkg/gitrepo/gitrepotest"
	"github.com/oneconcern/profilestore/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	changes []core.Change
	pushes  int
}

func (r *recorder) onChange(c core.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) onPush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes++
}

func (r *recorder) snapshot() ([]core.Change, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Change{}, r.changes...), r.pushes
}

func TestPushConflict(t *testing.T) {
	ctx := context.Background()
	remote := gitrepotest.NewRemote(t)

	winner, winnerRepo := newStore(t, remote)
	require.NoError(t, winner.CreateVersion(ctx, "", "1.0"))
	require.NoError(t, winner.CreateProfile(ctx, "1.0", "base"))

	loser, loserRepo := newStore(t, remote)
	versions, err := loser.ListVersions(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"1.0"}, versions)
	base, _, err := loserRepo.BranchHash("1.0")
	require.NoError(t, err)

	require.NoError(t, winner.SetConfiguration(ctx, "1.0", "base", "app", map[string]string{"owner": "winner"}))
	won, _, err := winnerRepo.BranchHash("1.0")
	require.NoError(t, err)
	require.NotEqual(t, base, won)

	err = loser.SetConfiguration(ctx, "1.0", "base", "app", map[string]string{"owner": "loser"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrPushRejected))

	// the loser caught up with the winner
	lost, _, err := loserRepo.BranchHash("1.0")
	require.NoError(t, err)
	assert.Equal(t, won, lost)
	props, err := loser.GetConfiguration(ctx, "1.0", "base", "app")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"owner": "winner"}, props)

	// the winner is unaffected
	props, err = winner.GetConfiguration(ctx, "1.0", "base", "app")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"owner": "winner"}, props)
	tip, _, err := winnerRepo.BranchHash("1.0")
	require.NoError(t, err)
	assert.Equal(t, won, tip)

	// and the loser may retry
	require.NoError(t, loser.SetConfiguration(ctx, "1.0", "base", "app", map[string]string{"owner": "loser"}))
	changed, err := winner.Pull(ctx, true)
	require.NoError(t, err)
	assert.True(t, changed)
	props, err = winner.GetConfiguration(ctx, "1.0", "base", "app")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"owner": "loser"}, props)
}

func TestPrefetch(t *testing.T) {
	ctx := context.Background()
	remote := gitrepotest.NewRemote(t)

	first, _ := newStore(t, remote)
	require.NoError(t, first.CreateVersion(ctx, "", "1.0"))
	second, _ := newStore(t, remote, core.WithPrefetch(true))

	require.NoError(t, first.SetConfiguration(ctx, "1.0", "base", "app", map[string]string{"a": "1"}))
	require.NoError(t, second.SetConfiguration(ctx, "1.0", "base", "web", map[string]string{"b": "2"}))

	configs, err := second.GetConfigurations(ctx, "1.0", "base")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1"}, configs["app"])
	assert.Equal(t, map[string]string{"b": "2"}, configs["web"])
}

func TestStaleVersionsArePruned(t *testing.T) {
	ctx := context.Background()
	remote := gitrepotest.NewRemote(t)

	first, _ := newStore(t, remote)
	require.NoError(t, first.CreateVersion(ctx, "", "1.0"))
	require.NoError(t, first.CreateVersion(ctx, "1.0", "1.1"))

	second, _ := newStore(t, remote)
	versions, err := second.ListVersions(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"1.0", "1.1"}, versions)

	require.NoError(t, first.DeleteVersion(ctx, "1.1"))

	changed, err := second.Pull(ctx, false)
	require.NoError(t, err)
	assert.False(t, changed)
	changed, err = second.Pull(ctx, true)
	require.NoError(t, err)
	assert.True(t, changed)

	versions, err = second.ListVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0"}, versions)
	_, err = second.GetProfiles(ctx, "1.1")
	assert.True(t, errors.Is(err, status.ErrVersionNotFound))
}

func TestListeners(t *testing.T) {
	ctx := context.Background()
	remote := gitrepotest.NewRemote(t)
	s, _ := newStore(t, remote)

	rec := &recorder{}
	token := s.TrackConfiguration(rec.onChange)
	s.TrackPushes(rec.onPush)
	s.TrackConfiguration(func(core.Change) { panic("broken listener") })

	require.NoError(t, s.CreateVersion(ctx, "", "1.0"))
	require.NoError(t, s.CreateProfile(ctx, "1.0", "base"))
	require.NoError(t, s.CreateProfile(ctx, "1.0", "base"))
	require.NoError(t, s.CreateProfile(ctx, model.MasterBranch, "ensemble"))

	changes, pushes := rec.snapshot()
	require.Len(t, changes, 3)
	assert.Equal(t, []string{"1.0"}, changes[0].Versions)
	assert.True(t, changes[1].Affects("1.0"))
	assert.False(t, changes[1].Affects("2.0"))
	assert.True(t, changes[2].All)
	assert.Equal(t, 3, pushes)

	s.OnRemoteChange()
	changes, _ = rec.snapshot()
	require.Len(t, changes, 4)
	assert.True(t, changes[3].Remote)
	assert.True(t, changes[3].All)

	assert.True(t, s.UntrackConfiguration(token))
	assert.False(t, s.UntrackConfiguration(token))
	require.NoError(t, s.CreateProfile(ctx, "1.0", "other"))
	changes, _ = rec.snapshot()
	assert.Len(t, changes, 4)
}

func TestSetRemoteURL(t *testing.T) {
	ctx := context.Background()
	s, repo := newStore(t, "")
	require.NoError(t, s.CreateVersion(ctx, "", "1.0"))
	require.NoError(t, s.CreateProfile(ctx, "1.0", "base"))

	remote := gitrepotest.NewRemote(t)
	changed, err := s.SetRemoteURL(ctx, remote)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, remote, repo.RemoteURL())
	changed, err = s.SetRemoteURL(ctx, remote)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, s.Push(ctx))

	other, _ := newStore(t, remote)
	ok, err := other.HasProfile(ctx, "1.0", "base")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPullNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	remote := gitrepotest.NewRemote(t)
	left, _ := newStore(t, remote)
	right, _ := newStore(t, remote)

	rec := &recorder{}
	right.TrackConfiguration(rec.onChange)

	require.NoError(t, left.CreateVersion(ctx, "", "1.0"))
	require.NoError(t, left.CreateProfile(ctx, "1.0", "base"))

	changed, err := right.Pull(ctx, true)
	require.NoError(t, err)
	require.True(t, changed)

	changes, _ := rec.snapshot()
	require.Len(t, changes, 1)
	assert.True(t, changes[0].All)
	assert.True(t, changes[0].Remote)

	changed, err = right.Pull(ctx, true)
	require.NoError(t, err)
	assert.False(t, changed)
	changes, _ = rec.snapshot()
	assert.Len(t, changes, 1)
}
