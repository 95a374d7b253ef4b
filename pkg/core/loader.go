package core

import (
	"context"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/oneconcern/profilestore/pkg/core/status"
	"github.com/oneconcern/profilestore/pkg/gitrepo"
	"github.com/oneconcern/profilestore/pkg/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxParsers bounds the number of profiles parsed concurrently
const maxParsers = 8

// loadVersion builds the snapshot of a version, from the git objects of its branch and of master.
// It does not touch the working tree.
func (s *Store) loadVersion(ctx context.Context, version string) (*model.VersionData, error) {
	return execute(ctx, s, opSpec{name: "load"}, func(op *opContext) (*model.VersionData, error) {
		return s.loadLocked(op.ctx, version)
	})
}

// branchTip returns the tip of a local branch, or of its remote-tracking counterpart
func (s *Store) branchTip(name string) (plumbing.Hash, bool, error) {
	hash, ok, err := s.repo.BranchHash(name)
	if err != nil || ok {
		return hash, ok, err
	}
	return s.repo.RemoteBranchHash(name)
}

type profileSource struct {
	tip   plumbing.Hash
	files map[string][]byte
}

func (s *Store) loadLocked(ctx context.Context, version string) (*model.VersionData, error) {
	vd := model.NewVersionData(version)

	masterTip, _, err := s.branchTip(model.MasterBranch)
	if err != nil {
		return nil, status.ErrStoreFault.Wrap(err)
	}
	tips := []plumbing.Hash{masterTip}
	tip := masterTip
	if version != model.MasterBranch {
		var exists bool
		tip, exists, err = s.branchTip(version)
		if err != nil {
			return nil, status.ErrStoreFault.Wrap(err)
		}
		if !exists {
			return vd, nil
		}
		tips = append(tips, tip)
	}
	vd.Exists = !tip.IsZero()
	vd.Revision = gitrepo.Abbrev(tip)

	// profiles of the version override profiles of master with the same id
	sources := make(map[string]*profileSource)
	for _, t := range tips {
		found, err := s.readProfiles(t)
		if err != nil {
			return nil, err
		}
		for id, files := range found {
			sources[id] = &profileSource{tip: t, files: files}
		}
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	markers, err := s.lastModified(sources)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(sources))
	for id := range sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parsed := make([]*model.ProfileData, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParsers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pd, err := model.NewProfileData(id, markers[id], sources[id].files)
			if err != nil {
				return err
			}
			parsed[i] = pd
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, status.ErrStoreFault.WrapWithLog(s.l, err, zap.String("version", version))
	}
	for _, pd := range parsed {
		vd.Profiles[pd.ID] = pd
	}
	s.l.Debug("loaded version", zap.String("version", version), zap.String("revision", vd.Revision), zap.Int("profiles", len(ids)))
	return vd, nil
}

// readProfiles collects the files of all profiles in a commit.
// Directories without a marker file are not profiles.
func (s *Store) readProfiles(tip plumbing.Hash) (map[string]map[string][]byte, error) {
	tree, err := s.repo.ReadTree(tip, s.layout.ProfilesRoot())
	if err != nil {
		return nil, status.ErrStoreFault.Wrap(err)
	}
	found := make(map[string]map[string][]byte)
	for rel, content := range tree {
		id, name, ok := s.layout.SplitProfileFile(rel)
		if !ok {
			continue
		}
		files, ok := found[id]
		if !ok {
			files = make(map[string][]byte)
			found[id] = files
		}
		files[name] = content
	}
	for id, files := range found {
		if _, ok := files[model.MarkerFile]; !ok {
			delete(found, id)
		}
	}
	return found, nil
}

// lastModified resolves the last commit touching each profile, with one history walk per branch
func (s *Store) lastModified(sources map[string]*profileSource) (map[string]string, error) {
	byTip := make(map[plumbing.Hash][]string)
	for id, src := range sources {
		byTip[src.tip] = append(byTip[src.tip], id)
	}
	markers := make(map[string]string, len(sources))
	for tip, ids := range byTip {
		paths := make([]string, 0, len(ids))
		for _, id := range ids {
			paths = append(paths, s.layout.ProfileDir(id))
		}
		commits, err := s.repo.LastModified(tip, paths)
		if err != nil {
			return nil, status.ErrStoreFault.Wrap(err)
		}
		for _, id := range ids {
			markers[id] = gitrepo.Abbrev(commits[s.layout.ProfileDir(id)])
		}
	}
	return markers, nil
}

// snapshot returns the cached data of an existing version
func (s *Store) snapshot(ctx context.Context, version string) (*model.VersionData, error) {
	if err := s.assertStarted(); err != nil {
		return nil, err
	}
	if err := validateVersion(version, true); err != nil {
		return nil, err
	}
	vd, err := s.cache.Get(ctx, version)
	if err != nil {
		return nil, err
	}
	if !vd.Exists {
		return nil, status.ErrVersionNotFound.Wrapf("%s", version)
	}
	return vd, nil
}

func validateVersion(version string, allowMaster bool) error {
	if version == model.MasterBranch {
		if allowMaster {
			return nil
		}
		return status.ErrReservedVersion.Wrapf("%s", version)
	}
	if !model.IsVersion(version) {
		return status.ErrInvalidVersion.Wrapf("%q", version)
	}
	return nil
}

func (s *Store) validateProfile(id string) error {
	if err := s.layout.Validate(id); err != nil {
		return status.ErrInvalidProfile.Wrap(err)
	}
	return nil
}
