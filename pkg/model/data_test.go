package model

import (
	"testing"
	"time"

	"github.com/oneconcern/profilestore/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfileData(t *testing.T) *ProfileData {
	pd, err := NewProfileData("child", "abc1234", map[string][]byte{
		MarkerFile:               []byte("attribute.parents = base base other\nattribute.abstract = true\nattribute.description = child profile\nrepository.x = y\n"),
		"org.example.properties": []byte("k = v\n"),
		"templates/a.txt":        []byte("A"),
		"templates/sub/b.txt":    []byte("B"),
		"readme.md":              []byte("R"),
	})
	require.NoError(t, err)
	return pd
}

func TestNewProfileData(t *testing.T) {
	pd := testProfileData(t)
	require.Len(t, pd.Configurations, 2)
	assert.Equal(t, map[string]string{"k": "v"}, pd.Configurations["org.example"])

	_, err := NewProfileData("broken", "", map[string][]byte{"x.properties": []byte("k=\\uZZZZ")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedProperties))
}

func TestListFiles(t *testing.T) {
	pd := testProfileData(t)
	assert.Equal(t, []string{"templates/a.txt", "templates/sub/b.txt"}, pd.ListFiles("templates"))
	assert.Equal(t, []string{"templates/sub/b.txt"}, pd.ListFiles("/templates/sub/"))
	assert.Len(t, pd.ListFiles(""), 5)
	assert.Empty(t, pd.ListFiles("nowhere"))
	assert.Empty(t, pd.ListFiles("../x"))
}

func TestNewProfile(t *testing.T) {
	p := NewProfile("1.0", testProfileData(t))
	assert.Equal(t, "child", p.ID)
	assert.Equal(t, "1.0", p.Version)
	assert.Equal(t, []string{"base", "other"}, p.Parents)
	assert.True(t, p.IsAbstract())
	assert.False(t, p.IsLocked())
	assert.False(t, p.IsHidden())
	assert.Equal(t, "child profile", p.Description())
	assert.Equal(t, []string{"org.example", AgentPID}, p.PIDs())
	assert.Empty(t, p.Configuration("missing"))
	assert.Nil(t, p.FileConfiguration("missing"))
	assert.Equal(t, []byte("A"), p.FileConfiguration("templates/a.txt"))

	// profiles are detached from the cached snapshot
	p.Configuration("org.example")["k"] = "changed"
	assert.Equal(t, "v", testProfileData(t).Configurations["org.example"]["k"])
}

func TestVersionData(t *testing.T) {
	vd := NewVersionData("1.0")
	vd.Profiles["b"] = &ProfileData{ID: "b"}
	vd.Profiles["a"] = &ProfileData{ID: "a"}
	vd.Profiles["ab"] = &ProfileData{ID: "ab"}
	assert.Equal(t, []string{"a", "ab", "b"}, vd.ProfileIDs())
	assert.Equal(t, []string{"a", "ab"}, vd.MatchProfiles("a"))

	_, ok := vd.Profile("zz")
	assert.False(t, ok)

	var missing *VersionData
	_, ok = missing.Profile("a")
	assert.False(t, ok)
}

func TestManifest(t *testing.T) {
	m := Manifest{
		Version:  "1.0",
		Profiles: []string{"a", "b"},
		Files:    3,
		Size:     1024,
		Exported: time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	b, err := m.Marshal()
	require.NoError(t, err)
	back, err := UnmarshalManifest(b)
	require.NoError(t, err)
	assert.Equal(t, m, back)

	_, err = UnmarshalManifest([]byte("profiles: {"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedManifest))
}
