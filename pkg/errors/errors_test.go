package errors

import (
	stderr "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestError(t *testing.T) {
	e1 := New("cause1")
	e2 := New("cause2").Wrap(e1)
	e := New("dummy").Wrap(e2)
	e3 := e.Unwrap()
	assert.True(t, Is(e, e1))
	assert.True(t, Is(e, e2))
	assert.True(t, e3 == e2)
}

func TestWrapKeepsSentinel(t *testing.T) {
	sentinel := New("not found")
	cause := stderr.New("disk on fire")

	wrapped := sentinel.Wrap(cause)
	require.True(t, Is(wrapped, sentinel))
	require.True(t, Is(wrapped, cause))
	assert.Equal(t, "not found: disk on fire", wrapped.Error())

	// the sentinel itself is left untouched
	assert.Equal(t, "not found", sentinel.Error())
	assert.Nil(t, sentinel.Unwrap())

	rewrapped := wrapped.Wrapf("profile %s", "base")
	assert.True(t, Is(rewrapped, sentinel))
	assert.False(t, Is(rewrapped, New("not found")))
}

func TestWrapWithLog(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sentinel := New("push failed")

	err := sentinel.WrapWithLog(zap.New(core), stderr.New("timeout"), zap.String("branch", "1.0"))
	require.True(t, Is(err, sentinel))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "push failed", entry.Message)
	assert.Equal(t, "1.0", entry.ContextMap()["branch"])
}

func TestAs(t *testing.T) {
	var target *Error
	err := New("outer").Wrap(stderr.New("inner"))
	require.True(t, As(err, &target))
	assert.Equal(t, "outer: inner", target.Error())
}
