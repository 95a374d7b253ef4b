// Copyright © 2018 One Concern

// Package storage provides interface to handle profile bundles.
//
// This package supports the following backends:
//   - local file system (localfs)
//   - zip archives (ziparchive)
package storage
