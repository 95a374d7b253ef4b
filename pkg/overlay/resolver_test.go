package overlay

import (
	"context"
	"testing"

	"github.com/oneconcern/profilestore/pkg/errors"
	"github.com/oneconcern/profilestore/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fixture map[string]map[string]string

// buildVersion makes a version snapshot from profiles given as file name -> content
func buildVersion(t testing.TB, profiles map[string]fixture) *model.VersionData {
	t.Helper()
	vd := model.NewVersionData("1.0")
	for id, pidFiles := range profiles {
		files := make(map[string][]byte)
		for name, props := range pidFiles {
			if model.IsPIDFile(name) {
				files[name] = model.EncodeProperties(props)
			} else {
				files[name] = []byte(props["content"])
			}
		}
		if _, ok := files[model.MarkerFile]; !ok {
			files[model.MarkerFile] = nil
		}
		pd, err := model.NewProfileData(id, "rev-"+id, files)
		require.NoError(t, err)
		vd.Profiles[id] = pd
	}
	return vd
}

func agent(parents string, extra ...string) map[string]string {
	m := map[string]string{"attribute.parents": parents}
	for i := 0; i+1 < len(extra); i += 2 {
		m[extra[i]] = extra[i+1]
	}
	return m
}

func ids(order []*model.ProfileData) []string {
	res := make([]string, 0, len(order))
	for _, pd := range order {
		res = append(res, pd.ID)
	}
	return res
}

func TestPrecedence(t *testing.T) {
	vd := buildVersion(t, map[string]fixture{
		"base":  {"x.properties": {"k": "base", "only.base": "b"}},
		"child": {model.MarkerFile: agent("base"), "x.properties": {"k": "child"}},
	})
	p, err := New().Resolve(context.Background(), "1.0", "child", vd)
	require.NoError(t, err)
	assert.True(t, p.Overlay)
	assert.Equal(t, map[string]string{"k": "child", "only.base": "b"}, p.Configuration("x"))
	assert.Equal(t, "rev-child,rev-base", p.LastModified)

	// overlay PID files reflect the merged configuration
	props, err := model.ParseProperties(p.FileConfiguration("x.properties"))
	require.NoError(t, err)
	assert.Equal(t, p.Configuration("x"), props)
}

func TestTombstoneValue(t *testing.T) {
	vd := buildVersion(t, map[string]fixture{
		"base":  {"x.properties": {"a": "1", "b": "2"}},
		"child": {model.MarkerFile: agent("base"), "x.properties": {"b": model.DeleteMarker}},
	})
	p, err := New().Resolve(context.Background(), "1.0", "child", vd)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1"}, p.Configuration("x"))
}

func TestTombstoneKey(t *testing.T) {
	vd := buildVersion(t, map[string]fixture{
		"base": {
			"x.properties": {"a": "1", "b": "2"},
			"y.properties": {"c": "3"},
		},
		"child": {
			model.MarkerFile: agent("base"),
			"x.properties":   {model.DeleteMarker: "", "fresh": "yes"},
			"y.properties":   {model.DeleteMarker: "true"},
		},
	})
	p, err := New().Resolve(context.Background(), "1.0", "child", vd)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"fresh": "yes"}, p.Configuration("x"))
	assert.NotContains(t, p.Configurations, "y")
	assert.NotContains(t, p.Files, "y.properties")
}

func TestTombstoneFile(t *testing.T) {
	vd := buildVersion(t, map[string]fixture{
		"base": {
			"templates/a.txt": {"content": "A"},
			"templates/b.txt": {"content": "B"},
		},
		"child": {
			model.MarkerFile:  agent("base"),
			"templates/b.txt": {"content": model.DeleteMarker + "\n"},
		},
	})
	p, err := New().Resolve(context.Background(), "1.0", "child", vd)
	require.NoError(t, err)
	assert.Equal(t, []byte("A"), p.FileConfiguration("templates/a.txt"))
	assert.Nil(t, p.FileConfiguration("templates/b.txt"))
}

func TestDiamond(t *testing.T) {
	// root <- left, right <- child (child declares left then right)
	vd := buildVersion(t, map[string]fixture{
		"root":  {"x.properties": {"k": "root", "r": "root"}},
		"left":  {model.MarkerFile: agent("root"), "x.properties": {"k": "left", "l": "left"}},
		"right": {model.MarkerFile: agent("root"), "x.properties": {"k": "right"}},
		"child": {model.MarkerFile: agent("left right")},
	})
	r := New()
	order, err := r.Ancestry("child", vd)
	require.NoError(t, err)
	assert.Equal(t, []string{"child", "left", "root", "right"}, ids(order))

	// right comes after root in traversal order, so it is applied before root and loses
	p, err := r.Resolve(context.Background(), "1.0", "child", vd)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "left", "l": "left", "r": "root"}, p.Configuration("x"))
}

func TestAttributesNotInherited(t *testing.T) {
	vd := buildVersion(t, map[string]fixture{
		"base":  {model.MarkerFile: agent("", "attribute.abstract", "true", "attribute.description", "base", "feature.x", "on")},
		"child": {model.MarkerFile: agent("base", "attribute.description", "child")},
	})
	p, err := New().Resolve(context.Background(), "1.0", "child", vd)
	require.NoError(t, err)
	assert.False(t, p.IsAbstract())
	assert.Equal(t, "child", p.Description())
	assert.Equal(t, []string{"base"}, p.Parents)

	agentPID := p.Configuration(model.AgentPID)
	assert.Equal(t, "on", agentPID["feature.x"])
	assert.Equal(t, "child", agentPID["attribute.description"])
	assert.NotContains(t, agentPID, "attribute.abstract")
}

func TestMissingParentAndCycle(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	vd := buildVersion(t, map[string]fixture{
		"a": {model.MarkerFile: agent("b ghost"), "x.properties": {"k": "a"}},
		"b": {model.MarkerFile: agent("a"), "x.properties": {"k": "b", "kb": "b"}},
	})
	r := New(Logger(zap.New(core)))
	p, err := r.Resolve(context.Background(), "1.0", "a", vd)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "a", "kb": "b"}, p.Configuration("x"))
	assert.Equal(t, 1, logs.FilterMessage("missing parent profile").Len())

	_, err = r.Resolve(context.Background(), "1.0", "ghost", vd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProfileNotFound))
}

func TestCancelled(t *testing.T) {
	vd := buildVersion(t, map[string]fixture{"a": {}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Resolve(ctx, "1.0", "a", vd)
	require.Error(t, err)
}
