package core

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/oneconcern/profilestore/pkg/core/status"
	"github.com/oneconcern/profilestore/pkg/model"
	"go.uber.org/zap"
)

// CreateVersion creates a version from a parent version, or from scratch when parent is empty.
//
// The new version is published right away: it is removed again when the remote rejects it.
func (s *Store) CreateVersion(ctx context.Context, parent, id string) error {
	if err := validateVersion(id, false); err != nil {
		return err
	}
	if parent != "" {
		if err := validateVersion(parent, true); err != nil {
			return err
		}
	}
	_, err := execute(ctx, s, opSpec{name: "create_version", write: true}, func(op *opContext) (struct{}, error) {
		_, exists, err := s.branchTip(id)
		if err != nil {
			return struct{}{}, status.ErrStoreFault.Wrap(err)
		}
		if exists {
			return struct{}{}, status.ErrVersionExists.Wrapf("%s", id)
		}

		if parent == "" {
			if _, err = s.repo.CreateOrphanBranch(id, fmt.Sprintf("Create version %s", id)); err != nil {
				return struct{}{}, status.ErrStoreFault.Wrap(err)
			}
		} else {
			tip, found, err := s.branchTip(parent)
			if err != nil {
				return struct{}{}, status.ErrStoreFault.Wrap(err)
			}
			if !found {
				return struct{}{}, status.ErrVersionNotFound.Wrapf("parent %s", parent)
			}
			if err = s.repo.CreateBranch(id, tip); err != nil {
				return struct{}{}, status.ErrStoreFault.Wrap(err)
			}
		}
		s.l.Info("created version", zap.String("version", id), zap.String("parent", parent))
		op.branch = id
		op.requirePush()
		op.invalidate(id)
		return struct{}{}, nil
	})
	return err
}

// DeleteVersion deletes a version, on the remote first and then locally
func (s *Store) DeleteVersion(ctx context.Context, id string) error {
	if err := validateVersion(id, false); err != nil {
		return err
	}
	_, err := execute(ctx, s, opSpec{name: "delete_version", write: true}, func(op *opContext) (struct{}, error) {
		_, local, err := s.repo.BranchHash(id)
		if err != nil {
			return struct{}{}, status.ErrStoreFault.Wrap(err)
		}
		_, tracked, err := s.repo.RemoteBranchHash(id)
		if err != nil {
			return struct{}{}, status.ErrStoreFault.Wrap(err)
		}
		if !local && !tracked {
			return struct{}{}, status.ErrVersionNotFound.Wrapf("%s", id)
		}

		if err = s.policy.DeleteRemoteBranch(op.ctx, id); err != nil {
			return struct{}{}, status.ErrPushFailed.Wrap(err)
		}
		if local {
			current, err := s.repo.CurrentBranch()
			if err != nil {
				return struct{}{}, status.ErrStoreFault.Wrap(err)
			}
			if current == id {
				if err = s.repo.Checkout(model.MasterBranch); err != nil {
					s.checkedOut = ""
					return struct{}{}, status.ErrStoreFault.Wrap(err)
				}
				s.checkedOut = model.MasterBranch
			}
			if err = s.repo.DeleteLocalBranch(id); err != nil {
				return struct{}{}, status.ErrStoreFault.Wrap(err)
			}
		}
		if tracked {
			if err = s.repo.DeleteRemoteTrackingBranch(id); err != nil {
				return struct{}{}, status.ErrStoreFault.Wrap(err)
			}
		}
		s.l.Info("deleted version", zap.String("version", id))
		op.invalidate(id)
		return struct{}{}, nil
	})
	return err
}

// ListVersions lists the versions known locally or on the remote, in version order
func (s *Store) ListVersions(ctx context.Context) ([]string, error) {
	return execute(ctx, s, opSpec{name: "list_versions"}, func(*opContext) ([]string, error) {
		local, err := s.repo.LocalBranches()
		if err != nil {
			return nil, status.ErrStoreFault.Wrap(err)
		}
		remote, err := s.repo.RemoteBranches()
		if err != nil {
			return nil, status.ErrStoreFault.Wrap(err)
		}
		seen := make(map[string]struct{}, len(local)+len(remote))
		versions := []string{}
		for _, branches := range []map[string]plumbing.Hash{local, remote} {
			for name := range branches {
				if _, ok := seen[name]; ok || !model.IsVersion(name) {
					continue
				}
				seen[name] = struct{}{}
				versions = append(versions, name)
			}
		}
		model.SortVersions(versions)
		return versions, nil
	})
}

// GetVersion describes a version
func (s *Store) GetVersion(ctx context.Context, id string) (model.Version, error) {
	vd, err := s.snapshot(ctx, id)
	if err != nil {
		return model.Version{}, err
	}
	return model.Version{
		ID:       id,
		Revision: vd.Revision,
		Profiles: vd.ProfileIDs(),
	}, nil
}
