// Package ziparchive exposes a zip file as a bundle store.
//
// An archive is either opened for reading or created for writing, never both.
package ziparchive

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/oneconcern/profilestore/pkg/storage"
	"github.com/oneconcern/profilestore/pkg/storage/status"
	"github.com/spf13/afero"
)

// Store is a zip archive, read-only or write-only
type Store struct {
	name string

	mu      sync.Mutex
	file    afero.File
	reader  *zip.Reader
	entries map[string]*zip.File
	writer  *zip.Writer
	written map[string]struct{}
	closed  bool
}

var (
	_ storage.Store = &Store{}
	_ io.Closer     = &Store{}
)

// Open an existing archive for reading
func Open(fs afero.Fs, name string) (*Store, error) {
	f, err := fs.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, status.ErrNotFound.Wrapf("archive %q", name)
		}
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	r, err := zip.NewReader(f, info.Size())
	if err != nil {
		_ = f.Close()
		return nil, status.ErrStorageAPI.Wrapf("reading archive %q: %w", name, err)
	}
	s := &Store{
		name:    name,
		file:    f,
		reader:  r,
		entries: make(map[string]*zip.File, len(r.File)),
	}
	for _, entry := range r.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		key, err := cleanKey(entry.Name)
		if err != nil {
			// entries escaping the archive root are ignored
			continue
		}
		s.entries[key] = entry
	}
	return s, nil
}

// Create a new archive for writing. The archive is complete once closed.
func Create(fs afero.Fs, name string) (*Store, error) {
	if dir := path.Dir(name); dir != "." {
		if err := fs.MkdirAll(dir, 0700); err != nil {
			return nil, status.ErrStorageAPI.Wrap(err)
		}
	}
	f, err := fs.Create(name)
	if err != nil {
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	return &Store{
		name:    name,
		file:    f,
		writer:  zip.NewWriter(f),
		written: make(map[string]struct{}),
	}, nil
}

func cleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	if cleaned == "/" {
		return "", status.ErrInvalidKey.Wrapf("%q", key)
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}

func (s *Store) String() string {
	return "zip@" + s.name
}

func (s *Store) Has(_ context.Context, key string) (bool, error) {
	key, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, status.ErrClosed
	}
	if s.reader != nil {
		_, ok := s.entries[key]
		return ok, nil
	}
	_, ok := s.written[key]
	return ok, nil
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, status.ErrClosed
	}
	if s.reader == nil {
		return nil, status.ErrNotSupported.Wrapf("archive %q is write-only", s.name)
	}
	entry, ok := s.entries[key]
	if !ok {
		return nil, status.ErrNotFound.Wrapf("%q", key)
	}
	rdr, err := entry.Open()
	if err != nil {
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	return rdr, nil
}

func (s *Store) Put(_ context.Context, key string, source io.Reader, exclusive bool) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return status.ErrClosed
	}
	if s.writer == nil {
		return status.ErrNotSupported.Wrapf("archive %q is read-only", s.name)
	}
	if _, ok := s.written[key]; ok {
		// zip entries cannot be replaced once written
		return status.ErrExists.Wrapf("%q", key)
	}
	w, err := s.writer.Create(key)
	if err != nil {
		return status.ErrStorageAPI.Wrap(err)
	}
	if _, err = io.Copy(w, source); err != nil {
		return status.ErrStorageAPI.Wrapf("write entry %q: %w", key, err)
	}
	s.written[key] = struct{}{}
	return nil
}

func (s *Store) Delete(context.Context, string) error {
	return status.ErrNotSupported.Wrapf("cannot delete from archive %q", s.name)
}

func (s *Store) Clear(context.Context) error {
	return status.ErrNotSupported.Wrapf("cannot clear archive %q", s.name)
}

func (s *Store) Keys(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, status.ErrClosed
	}
	var keys []string
	if s.reader != nil {
		keys = make([]string, 0, len(s.entries))
		for k := range s.entries {
			keys = append(keys, k)
		}
	} else {
		keys = make([]string, 0, len(s.written))
		for k := range s.written {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close the archive, flushing the central directory of a written archive
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	if s.writer != nil {
		err = s.writer.Close()
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return status.ErrStorageAPI.Wrap(err)
	}
	return nil
}
