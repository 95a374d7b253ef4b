package gitrepo

import "github.com/oneconcern/profilestore/pkg/errors"

var (
	// ErrBranchNotFound is returned when a local branch is required but missing
	ErrBranchNotFound = errors.New("branch not found")

	// ErrCheckedOut prevents deleting the current branch
	ErrCheckedOut = errors.New("branch is checked out")

	// ErrNoRemote is returned by network operations when no remote URL is configured
	ErrNoRemote = errors.New("no remote configured")

	// ErrRejected indicates a push which is not a fast-forward
	ErrRejected = errors.New("push rejected")

	// ErrTransport wraps network and transport failures
	ErrTransport = errors.New("transport failure")

	// ErrRepository wraps any other failure of the git backend
	ErrRepository = errors.New("git repository error")
)
