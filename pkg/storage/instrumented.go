// Copyright © 2018 One Concern

package storage

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"
)

// Instrument decorates a store so every call is traced in the log at debug level
func Instrument(l *zap.Logger, store Store) Store {
	if l == nil {
		l = zap.NewNop()
	}
	return &instrumentedStore{
		store: store,
		l:     l.With(zap.String("store", store.String())),
	}
}

type instrumentedStore struct {
	store Store
	l     *zap.Logger
}

func (i *instrumentedStore) trace(op, key string, start time.Time, err error) {
	fields := []zap.Field{zap.String("op", op), zap.Duration("elapsed", time.Since(start))}
	if key != "" {
		fields = append(fields, zap.String("key", key))
	}
	if err != nil {
		i.l.Debug("storage call failed", append(fields, zap.Error(err))...)
		return
	}
	i.l.Debug("storage call", fields...)
}

func (i *instrumentedStore) String() string {
	return i.store.String()
}

func (i *instrumentedStore) Has(ctx context.Context, key string) (has bool, err error) {
	defer func(t time.Time) { i.trace("has", key, t, err) }(time.Now())
	return i.store.Has(ctx, key)
}

func (i *instrumentedStore) Get(ctx context.Context, key string) (rdr io.ReadCloser, err error) {
	defer func(t time.Time) { i.trace("get", key, t, err) }(time.Now())
	return i.store.Get(ctx, key)
}

func (i *instrumentedStore) Put(ctx context.Context, key string, source io.Reader, exclusive bool) (err error) {
	defer func(t time.Time) { i.trace("put", key, t, err) }(time.Now())
	return i.store.Put(ctx, key, source, exclusive)
}

func (i *instrumentedStore) Delete(ctx context.Context, key string) (err error) {
	defer func(t time.Time) { i.trace("delete", key, t, err) }(time.Now())
	return i.store.Delete(ctx, key)
}

func (i *instrumentedStore) Keys(ctx context.Context) (keys []string, err error) {
	defer func(t time.Time) { i.trace("keys", "", t, err) }(time.Now())
	return i.store.Keys(ctx)
}

func (i *instrumentedStore) Clear(ctx context.Context) (err error) {
	defer func(t time.Time) { i.trace("clear", "", t, err) }(time.Now())
	return i.store.Clear(ctx)
}

// Close the underlying store
func (i *instrumentedStore) Close() error {
	return Close(i.store)
}
