// Copyright © 2018 One Concern

package localfs

import (
	"bytes"
	"context"
	"io/ioutil"
	"testing"

	"github.com/oneconcern/profilestore/pkg/errors"
	"github.com/oneconcern/profilestore/pkg/storage"
	"github.com/oneconcern/profilestore/pkg/storage/status"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHas(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	has, err := bs.Has(context.Background(), "base/profile.agent.properties")
	require.NoError(t, err)
	require.True(t, has)

	has, err = bs.Has(context.Background(), "/base/templates/a.txt")
	require.NoError(t, err)
	require.True(t, has)

	has, err = bs.Has(context.Background(), "base")
	require.NoError(t, err)
	require.False(t, has)

	has, err = bs.Has(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, has)
}

func TestGet(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	rdr, err := bs.Get(context.Background(), "base/templates/a.txt")
	require.NoError(t, err)
	b, err := ioutil.ReadAll(rdr)
	require.NoError(t, err)
	require.NoError(t, rdr.Close())
	assert.Equal(t, "template", string(b))

	_, err = bs.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound))
}

func TestKeys(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	keys, err := storage.SortedKeys(context.Background(), bs)
	require.NoError(t, err)
	assert.Equal(t, []string{"base/profile.agent.properties", "base/templates/a.txt"}, keys)
}

func TestDelete(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	require.NoError(t, bs.Delete(context.Background(), "base/templates/a.txt"))
	require.NoError(t, bs.Delete(context.Background(), "base/templates/a.txt"))
	k, _ := bs.Keys(context.Background())
	assert.Len(t, k, 1)
}

func TestClear(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	require.NoError(t, bs.Clear(context.Background()))
	k, _ := bs.Keys(context.Background())
	require.Empty(t, k)
}

func TestPut(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, bs.Put(ctx, "child/x.properties", bytes.NewBufferString("k = v\n"), storage.NoOverWrite))

	b, err := storage.ReadAll(ctx, bs, "child/x.properties")
	require.NoError(t, err)
	assert.Equal(t, "k = v\n", string(b))

	err = bs.Put(ctx, "child/x.properties", bytes.NewBufferString("again"), storage.NoOverWrite)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrExists))

	require.NoError(t, bs.Put(ctx, "child/x.properties", bytes.NewBufferString("k = w\n"), storage.OverWrite))
	b, err = storage.ReadAll(ctx, bs, "child/x.properties")
	require.NoError(t, err)
	assert.Equal(t, "k = w\n", string(b))

	k, _ := bs.Keys(ctx)
	assert.Len(t, k, 3)
}

func TestInvalidKey(t *testing.T) {
	bs, cleanup := setupStore(t)
	defer cleanup()

	err := bs.Put(context.Background(), "/", bytes.NewBufferString("x"), storage.OverWrite)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrInvalidKey))

	// parent references stay under the root
	require.NoError(t, bs.Put(context.Background(), "../../escape", bytes.NewBufferString("x"), storage.OverWrite))
	has, err := bs.Has(context.Background(), "escape")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestString(t *testing.T) {
	assert.Equal(t, "localfs", New(nil).String())
	assert.Contains(t, NewAt(t.TempDir()).String(), "localfs@")
}

func setupStore(t testing.TB) (storage.Store, func()) {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "base/profile.agent.properties", []byte("attribute.abstract = true\n"), 0600))
	require.NoError(t, afero.WriteFile(fs, "base/templates/a.txt", []byte("template"), 0600))

	return New(fs), func() {}
}
