package model

import "github.com/oneconcern/profilestore/pkg/errors"

var (
	// ErrInvalidVersion is returned whenever a version identifier does not match the expected pattern
	ErrInvalidVersion = errors.New("invalid version identifier")

	// ErrInvalidProfile is returned whenever a profile identifier cannot be mapped to a directory
	ErrInvalidProfile = errors.New("invalid profile identifier")

	// ErrMalformedProperties indicates a PID file which cannot be parsed
	ErrMalformedProperties = errors.New("malformed properties file")
)
