package core_test

import (
	"context"
	"testing"

	"github.com/oneconcern/profilestore/pkg/core/status"
	"github.com/oneconcern/profilestore/pkg/errors"
	"github.com/oneconcern/profilestore/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProfileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, repo := newStore(t, "")
	require.NoError(t, s.CreateVersion(ctx, "", "1.0"))

	require.NoError(t, s.CreateProfile(ctx, "1.0", "base"))
	first, _, err := repo.BranchHash("1.0")
	require.NoError(t, err)
	filesBefore, err := s.GetFileConfigurations(ctx, "1.0", "base")
	require.NoError(t, err)

	require.NoError(t, s.CreateProfile(ctx, "1.0", "base"))
	second, _, err := repo.BranchHash("1.0")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	filesAfter, err := s.GetFileConfigurations(ctx, "1.0", "base")
	require.NoError(t, err)
	assert.Equal(t, filesBefore, filesAfter)
	assert.Contains(t, filesAfter, model.MarkerFile)
}

func TestProfileValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, "")
	require.NoError(t, s.CreateVersion(ctx, "", "1.0"))

	err := s.CreateProfile(ctx, "1.0", "bad/id")
	assert.True(t, errors.Is(err, status.ErrInvalidProfile))
	err = s.CreateProfile(ctx, "1.0", "trailing-")
	assert.True(t, errors.Is(err, status.ErrInvalidProfile))
	err = s.CreateProfile(ctx, "one", "base")
	assert.True(t, errors.Is(err, status.ErrInvalidVersion))
	err = s.CreateProfile(ctx, "9.0", "base")
	assert.True(t, errors.Is(err, status.ErrVersionNotFound))
	err = s.SetConfiguration(ctx, "1.0", "base", "../escape", map[string]string{})
	assert.True(t, errors.Is(err, status.ErrInvalidPID))
	err = s.SetFileConfiguration(ctx, "1.0", "base", "../../escape.txt", []byte("x"))
	assert.True(t, errors.Is(err, status.ErrInvalidPath))

	// failed validations leave no trace
	profiles, err := s.GetProfiles(ctx, "1.0")
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestDeleteProfile(t *testing.T) {
	ctx := context.Background()
	s, repo := newStore(t, "")
	require.NoError(t, s.CreateVersion(ctx, "", "1.0"))
	require.NoError(t, s.SetFileConfiguration(ctx, "1.0", "base", "a/b/c.txt", []byte("c")))

	ok, err := s.HasProfile(ctx, "1.0", "base")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.DeleteProfile(ctx, "1.0", "base"))
	ok, err = s.HasProfile(ctx, "1.0", "base")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, repo.Exists("fabric/profiles/base"))

	_, err = s.GetProfile(ctx, "1.0", "base")
	assert.True(t, errors.Is(err, status.ErrProfileNotFound))

	tip, _, err := repo.BranchHash("1.0")
	require.NoError(t, err)
	require.NoError(t, s.DeleteProfile(ctx, "1.0", "base"))
	again, _, err := repo.BranchHash("1.0")
	require.NoError(t, err)
	assert.Equal(t, tip, again)
}

func TestConfigurationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, "")
	require.NoError(t, s.CreateVersion(ctx, "", "1.0"))

	require.NoError(t, s.SetConfiguration(ctx, "1.0", "base", "app", map[string]string{"foo": "bar"}))
	props, err := s.GetConfiguration(ctx, "1.0", "base", "app")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"foo": "bar"}, props)

	// absent data reads as empty
	props, err = s.GetConfiguration(ctx, "1.0", "base", "missing")
	require.NoError(t, err)
	assert.Empty(t, props)
	props, err = s.GetConfiguration(ctx, "1.0", "nobody", "app")
	require.NoError(t, err)
	assert.Empty(t, props)
	content, err := s.GetFileConfiguration(ctx, "1.0", "nobody", "x.txt")
	require.NoError(t, err)
	assert.Nil(t, content)

	require.NoError(t, s.SetConfigurations(ctx, "1.0", "base", map[string]map[string]string{
		"db":  {"url": "jdbc:h2:mem", "pool": "${pool.size}"},
		"web": {"port": "8080"},
	}))
	configs, err := s.GetConfigurations(ctx, "1.0", "base")
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]string{
		model.AgentPID: {},
		"db":           {"url": "jdbc:h2:mem", "pool": "${pool.size}"},
		"web":          {"port": "8080"},
	}, configs)

	p, err := s.GetProfile(ctx, "1.0", "base")
	require.NoError(t, err)
	assert.Equal(t, []string{"db", model.AgentPID, "web"}, p.PIDs())
	assert.NotEmpty(t, p.LastModified)
	assert.Equal(t, "1.0", p.Version)
}

func TestFileConfigurations(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, "")
	require.NoError(t, s.CreateVersion(ctx, "", "1.0"))
	require.NoError(t, s.CreateProfile(ctx, "1.0", "base"))

	// warm up the cache
	files, err := s.GetFileConfigurations(ctx, "1.0", "base")
	require.NoError(t, err)
	assert.Len(t, files, 1)

	require.NoError(t, s.SetFileConfiguration(ctx, "1.0", "base", "templates/motd.txt", []byte("hello")))
	files, err = s.GetFileConfigurations(ctx, "1.0", "base")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(files["templates/motd.txt"]))

	content, err := s.GetFileConfiguration(ctx, "1.0", "base", "/templates/motd.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	require.NoError(t, s.SetFileConfiguration(ctx, "1.0", "base", "templates/motd.txt", nil))
	content, err = s.GetFileConfiguration(ctx, "1.0", "base", "templates/motd.txt")
	require.NoError(t, err)
	assert.Nil(t, content)

	require.NoError(t, s.SetFileConfigurations(ctx, "1.0", "base", map[string][]byte{
		"a.txt":          []byte("a"),
		"b/c.txt":        []byte("c"),
		"app.properties": []byte("k = v\n"),
	}))
	require.NoError(t, s.SetFileConfigurations(ctx, "1.0", "base", map[string][]byte{
		"a.txt":   []byte("A"),
		"b/c.txt": nil,
	}))
	files, err = s.GetFileConfigurations(ctx, "1.0", "base")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		model.MarkerFile: {},
		"a.txt":          []byte("A"),
	}, files)
}

func TestListFiles(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, "")
	require.NoError(t, s.CreateVersion(ctx, "", "1.0"))
	require.NoError(t, s.SetFileConfiguration(ctx, "1.0", "base", "templates/a.txt", []byte("a")))
	require.NoError(t, s.SetFileConfiguration(ctx, "1.0", "base", "templates/b.txt", []byte("b")))
	require.NoError(t, s.SetFileConfiguration(ctx, "1.0", "child", "templates/b.txt", []byte("B")))
	require.NoError(t, s.SetFileConfiguration(ctx, "1.0", "child", "templates/sub/c.txt", []byte("c")))
	require.NoError(t, s.SetFileConfiguration(ctx, "1.0", "child", "other.txt", []byte("o")))

	names, err := s.ListFiles(ctx, "1.0", []string{"child", "base", "missing"}, "templates")
	require.NoError(t, err)
	assert.Equal(t, []string{"templates/a.txt", "templates/b.txt", "templates/sub/c.txt"}, names)

	names, err = s.ListFiles(ctx, "1.0", []string{"base"}, "nowhere")
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = s.ListFiles(ctx, "1.0", []string{"base"}, "../..")
	assert.True(t, errors.Is(err, status.ErrInvalidPath))
}

func TestOverlayProfile(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, "")
	require.NoError(t, s.CreateVersion(ctx, "", "1.0"))

	require.NoError(t, s.SetConfiguration(ctx, "1.0", "base", "X", map[string]string{"a": "1", "b": "2", "k": "base"}))
	require.NoError(t, s.SetConfiguration(ctx, "1.0", "base", "Y", map[string]string{"y": "1"}))
	require.NoError(t, s.SetFileConfiguration(ctx, "1.0", "base", "banner.txt", []byte("base banner")))
	require.NoError(t, s.SetProfileAttribute(ctx, "1.0", "base", model.DescriptionAttribute, "the base"))

	require.NoError(t, s.SetConfiguration(ctx, "1.0", "child", "X", map[string]string{"b": model.DeleteMarker, "k": "child"}))
	require.NoError(t, s.SetConfiguration(ctx, "1.0", "child", "Y", map[string]string{model.DeleteMarker: ""}))
	require.NoError(t, s.SetFileConfiguration(ctx, "1.0", "child", "banner.txt", []byte(model.DeleteMarker)))
	require.NoError(t, s.SetProfileAttribute(ctx, "1.0", "child", model.ParentsAttribute, "base"))

	p, err := s.GetProfile(ctx, "1.0", "child")
	require.NoError(t, err)
	assert.Equal(t, []string{"base"}, p.Parents)
	assert.False(t, p.Overlay)

	o, err := s.GetOverlayProfile(ctx, "1.0", "child")
	require.NoError(t, err)
	assert.True(t, o.Overlay)
	assert.Equal(t, map[string]string{"a": "1", "k": "child"}, o.Configuration("X"))
	assert.NotContains(t, o.Configurations, "Y")
	assert.NotContains(t, o.Files, "banner.txt")
	assert.Empty(t, o.Description())
	assert.Contains(t, o.LastModified, ",")

	_, err = s.GetOverlayProfile(ctx, "1.0", "nobody")
	assert.True(t, errors.Is(err, status.ErrProfileNotFound))

	require.NoError(t, s.SetProfileAttribute(ctx, "1.0", "child", model.ParentsAttribute, ""))
	o, err = s.GetOverlayProfile(ctx, "1.0", "child")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "child"}, o.Configuration("X"))
	assert.NotContains(t, o.Files, "banner.txt")
}

func TestEmptyPropertyKey(t *testing.T) {
	ctx := context.Background()
	s, repo := newStore(t, "")
	require.NoError(t, s.CreateVersion(ctx, "", "1.0"))
	tip, _, err := repo.BranchHash("1.0")
	require.NoError(t, err)

	err = s.SetConfiguration(ctx, "1.0", "base", "app", map[string]string{"": "empty"})
	assert.True(t, errors.Is(err, status.ErrInvalidPID))
	err = s.SetConfigurations(ctx, "1.0", "base", map[string]map[string]string{"app": {"": "empty"}})
	assert.True(t, errors.Is(err, status.ErrInvalidPID))

	// nothing was written
	again, _, err := repo.BranchHash("1.0")
	require.NoError(t, err)
	assert.Equal(t, tip, again)

	props := map[string]string{"#": "x", "lead": "  spaced", "a=b": "c"}
	require.NoError(t, s.SetConfiguration(ctx, "1.0", "base", "app", props))
	got, err := s.GetConfiguration(ctx, "1.0", "base", "app")
	require.NoError(t, err)
	assert.Equal(t, props, got)
}
