// Package status exports errors produced by the core package.
package status

import (
	"github.com/oneconcern/profilestore/pkg/errors"
)

var (
	// ErrNotStarted is returned by a store which has not been started yet
	ErrNotStarted = errors.New("store not started")

	// ErrStopped is returned by a store which has been stopped
	ErrStopped = errors.New("store stopped")

	// ErrInvalidVersion indicates a malformed version identifier
	ErrInvalidVersion = errors.New("invalid version")

	// ErrReservedVersion prevents operations on the master branch which are only meant for versions
	ErrReservedVersion = errors.New("reserved version")

	// ErrInvalidProfile indicates a malformed profile identifier
	ErrInvalidProfile = errors.New("invalid profile")

	// ErrInvalidPID indicates a malformed configuration identifier
	ErrInvalidPID = errors.New("invalid configuration identifier")

	// ErrInvalidPath indicates a file path escaping its profile
	ErrInvalidPath = errors.New("invalid file path")

	// ErrVersionNotFound indicates a version which exists neither locally nor on the remote
	ErrVersionNotFound = errors.New("version not found")

	// ErrVersionExists prevents creating a version twice
	ErrVersionExists = errors.New("version already exists")

	// ErrProfileNotFound indicates a profile which does not exist in some version
	ErrProfileNotFound = errors.New("profile not found")

	// ErrPushRejected indicates a change lost to a concurrent change on another replica
	ErrPushRejected = errors.New("change rejected by remote")

	// ErrPushFailed indicates a change which could not be published
	ErrPushFailed = errors.New("change could not be published")

	// ErrStoreFault wraps any failure of the underlying repository
	ErrStoreFault = errors.New("store fault")
)
