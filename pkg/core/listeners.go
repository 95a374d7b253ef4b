package core

import (
	"sync"

	"github.com/oneconcern/profilestore/pkg/metrics"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// Change describes which versions may have changed
type Change struct {
	// Versions which changed, unless All is set
	Versions []string

	// All versions may have changed, e.g. after a pull
	All bool

	// Remote is set when the change has been detected on another replica
	Remote bool
}

// Affects tells if a version is concerned by this change
func (c Change) Affects(version string) bool {
	if c.All {
		return true
	}
	for _, v := range c.Versions {
		if v == version {
			return true
		}
	}
	return false
}

// Listener is notified of configuration changes
type Listener func(Change)

type listeners struct {
	mu     sync.RWMutex
	byID   map[string]Listener
	pushes []func()

	m *metrics.Metrics
	l *zap.Logger
}

func newListeners(l *zap.Logger, m *metrics.Metrics) *listeners {
	return &listeners{
		byID: make(map[string]Listener),
		m:    m,
		l:    l,
	}
}

func (ls *listeners) add(fn Listener) string {
	token := ksuid.New().String()
	ls.mu.Lock()
	ls.byID[token] = fn
	n := len(ls.byID)
	ls.mu.Unlock()
	ls.m.Listeners(n)
	return token
}

func (ls *listeners) remove(token string) bool {
	ls.mu.Lock()
	_, ok := ls.byID[token]
	delete(ls.byID, token)
	n := len(ls.byID)
	ls.mu.Unlock()
	ls.m.Listeners(n)
	return ok
}

func (ls *listeners) addPushHook(fn func()) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.pushes = append(ls.pushes, fn)
}

func (ls *listeners) notify(c Change) {
	ls.mu.RLock()
	targets := make([]Listener, 0, len(ls.byID))
	for _, fn := range ls.byID {
		targets = append(targets, fn)
	}
	ls.mu.RUnlock()

	for _, fn := range targets {
		ls.call(func() { fn(c) })
	}
}

func (ls *listeners) pushed() {
	ls.mu.RLock()
	hooks := append([]func(){}, ls.pushes...)
	ls.mu.RUnlock()

	for _, fn := range hooks {
		ls.call(fn)
	}
}

// call isolates the store from a panicking listener
func (ls *listeners) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			ls.l.Error("listener panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

// TrackConfiguration registers a listener notified after every change.
// The returned token unregisters it.
func (s *Store) TrackConfiguration(fn Listener) string {
	return s.listeners.add(fn)
}

// UntrackConfiguration unregisters a listener
func (s *Store) UntrackConfiguration(token string) bool {
	return s.listeners.remove(token)
}

// TrackPushes registers a hook called after every push which updated the remote
func (s *Store) TrackPushes(fn func()) {
	s.listeners.addPushHook(fn)
}
