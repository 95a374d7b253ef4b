// Package status declares error constants returned by replication
package status

import "github.com/oneconcern/profilestore/pkg/errors"

var (
	// ErrFetch indicates that the remote could not be fetched: local state may be stale
	ErrFetch = errors.New("cannot fetch from remote")

	// ErrPushRejected indicates a push which is not a fast-forward: the local change has been rolled back
	ErrPushRejected = errors.New("push rejected by remote")

	// ErrPushFailed indicates a push which failed after all retries
	ErrPushFailed = errors.New("push failed")

	// ErrReplication indicates a failure of the local repository while replicating
	ErrReplication = errors.New("replication error")
)
