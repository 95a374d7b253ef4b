// Package gitrepotest provides git remotes served in process for tests.
package gitrepotest

import (
	"sync"
	"testing"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
	"github.com/oneconcern/profilestore/pkg/gitrepo"
	"github.com/stretchr/testify/require"
)

var installOnce sync.Once

// InstallFileTransport serves file URLs in process, without the git binary
func InstallFileTransport() {
	installOnce.Do(func() {
		client.InstallProtocol("file", server.DefaultServer)
	})
}

// NewRemote creates an empty bare repository and returns its URL
func NewRemote(t testing.TB) string {
	t.Helper()
	InstallFileTransport()

	dir := t.TempDir()
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)
	return dir
}

// NewRepo opens a repository replicating to some remote.
// Repositories are kept in memory unless onDisk is set.
func NewRepo(t testing.TB, url string, onDisk bool, opts ...gitrepo.Option) *gitrepo.Repo {
	t.Helper()
	InstallFileTransport()

	dir := ""
	if onDisk {
		dir = t.TempDir()
	}
	repo, err := gitrepo.Open(dir, append([]gitrepo.Option{gitrepo.URL(url)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}
