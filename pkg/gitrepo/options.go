package gitrepo

import (
	"go.uber.org/zap"
)

// DefaultRemote is the name of the remote used for replication
const DefaultRemote = "origin"

// Option configures a repository
type Option func(*Repo)

// Logger for this repository
func Logger(l *zap.Logger) Option {
	return func(r *Repo) {
		if l != nil {
			r.l = l
		}
	}
}

// Remote name, defaults to "origin"
func Remote(name string) Option {
	return func(r *Repo) {
		if name != "" {
			r.remote = name
		}
	}
}

// Credentials for the remote. Basic authentication is used when user is not empty.
func Credentials(user, password string) Option {
	return func(r *Repo) {
		r.user = user
		r.password = password
	}
}

// Identity used to author commits
func Identity(name, email string) Option {
	return func(r *Repo) {
		if name != "" {
			r.authorName = name
		}
		if email != "" {
			r.authorEmail = email
		}
	}
}

// URL of the remote, set when opening the repository
func URL(url string) Option {
	return func(r *Repo) {
		r.initialURL = url
	}
}
