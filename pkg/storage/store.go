// Copyright © 2018 One Concern

package storage

import (
	"context"
	"io"
	"io/ioutil"
	"sort"

	"github.com/oneconcern/profilestore/pkg/storage/status"
)

// Put modes
const (
	OverWrite   = false
	NoOverWrite = true
)

// Store implementations know how to read and write entries of a profile bundle with a K/V model.
//
// Keys are slash-separated paths. Typically this is something file system-like:
// a local directory or a zip archive.
type Store interface {
	String() string
	Has(context.Context, string) (bool, error)
	Get(context.Context, string) (io.ReadCloser, error)
	Put(context.Context, string, io.Reader, bool) error
	Delete(context.Context, string) error
	Keys(context.Context) ([]string, error)
	Clear(context.Context) error
}

// Close a store when it holds resources, e.g. an open archive
func Close(s Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ReadAll fetches a whole object in memory
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	rdr, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rdr.Close()
	}()
	b, err := ioutil.ReadAll(rdr)
	if err != nil {
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	return b, nil
}

// SortedKeys lists all keys of a store in alphabetical order
func SortedKeys(ctx context.Context, s Store) ([]string, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
