// Package overlay computes the effective configuration of a profile from its ancestors.
package overlay

import (
	"bytes"
	"context"
	"strings"

	"github.com/oneconcern/profilestore/pkg/errors"
	"github.com/oneconcern/profilestore/pkg/model"
	"go.uber.org/zap"
)

// ErrProfileNotFound is returned when the profile to resolve does not exist
var ErrProfileNotFound = errors.New("profile not found")

// Lookup finds profiles by id. *model.VersionData is a Lookup.
type Lookup interface {
	Profile(string) (*model.ProfileData, bool)
}

// Option configures a resolver
type Option func(*Resolver)

// Logger for the resolver
func Logger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.l = l
		}
	}
}

// Resolver merges profiles with their ancestors
type Resolver struct {
	l *zap.Logger
}

// New resolver
func New(opts ...Option) *Resolver {
	r := &Resolver{l: zap.NewNop()}
	for _, apply := range opts {
		apply(r)
	}
	return r
}

// Ancestry returns the profile followed by its ancestors, depth first, parents in declaration order.
//
// Profiles are identified by id only: a profile reached twice is only visited the first time.
// Missing parents are skipped.
func (r *Resolver) Ancestry(id string, lookup Lookup) ([]*model.ProfileData, error) {
	target, ok := lookup.Profile(id)
	if !ok {
		return nil, ErrProfileNotFound.Wrapf("%s", id)
	}
	var (
		order []*model.ProfileData
		seen  = make(map[string]struct{})
		visit func(*model.ProfileData)
	)
	visit = func(pd *model.ProfileData) {
		if _, ok := seen[pd.ID]; ok {
			return
		}
		seen[pd.ID] = struct{}{}
		order = append(order, pd)
		for _, parentID := range parentsOf(pd) {
			parent, ok := lookup.Profile(parentID)
			if !ok {
				r.l.Warn("missing parent profile", zap.String("profile", pd.ID), zap.String("parent", parentID))
				continue
			}
			visit(parent)
		}
	}
	visit(target)
	return order, nil
}

func parentsOf(pd *model.ProfileData) []string {
	return model.ParseParents(pd.Configurations[model.AgentPID][model.AttributePrefix+model.ParentsAttribute])
}

// Resolve computes the overlay of a profile
func (r *Resolver) Resolve(ctx context.Context, version, id string, lookup Lookup) (*model.Profile, error) {
	order, err := r.Ancestry(id, lookup)
	if err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	configs := make(map[string]map[string]string)
	files := make(map[string][]byte)
	markers := make([]string, 0, len(order))

	// most distant ancestor first: the profile itself comes last and wins
	for i := len(order) - 1; i >= 0; i-- {
		layer := order[i]
		for pid, props := range layer.Configurations {
			mergeConfiguration(configs, pid, props, i == 0)
		}
		for name, content := range layer.Files {
			if model.IsPIDFile(name) {
				continue
			}
			if string(bytes.TrimSpace(content)) == model.DeleteMarker {
				delete(files, name)
				continue
			}
			files[name] = content
		}
	}
	for _, layer := range order {
		if layer.LastModified != "" {
			markers = append(markers, layer.LastModified)
		}
	}
	for pid, props := range configs {
		files[model.PIDFile(pid)] = model.EncodeProperties(props)
	}

	p := model.NewProfile(version, order[0])
	p.Configurations = configs
	p.Files = files
	p.LastModified = strings.Join(markers, ",")
	p.Overlay = true
	return p, nil
}

func mergeConfiguration(configs map[string]map[string]string, pid string, props map[string]string, isTarget bool) {
	_, dropped := props[model.DeleteMarker]
	if dropped {
		delete(configs, pid)
	}
	merged, ok := configs[pid]
	if !ok {
		merged = make(map[string]string, len(props))
	}
	applied := false
	for k, v := range props {
		if k == model.DeleteMarker {
			continue
		}
		if pid == model.AgentPID && !isTarget && strings.HasPrefix(k, model.AttributePrefix) {
			// attributes are not inherited
			continue
		}
		applied = true
		if v == model.DeleteMarker {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	if dropped && !applied {
		return
	}
	configs[pid] = merged
}
