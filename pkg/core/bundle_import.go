package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/oneconcern/profilestore/pkg/core/status"
	"github.com/oneconcern/profilestore/pkg/model"
	"github.com/oneconcern/profilestore/pkg/storage"
	"go.uber.org/zap"
)

// ImportProfiles copies the profiles of a bundle into a version, in a single commit.
//
// Bundle files overwrite existing files; other files of imported profiles are kept.
// It returns the ids of the imported profiles.
func (s *Store) ImportProfiles(ctx context.Context, version string, src storage.Store) ([]string, error) {
	if err := s.assertStarted(); err != nil {
		return nil, err
	}
	if err := validateVersion(version, true); err != nil {
		return nil, err
	}
	profiles, err := s.readBundle(ctx, src)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(profiles))
	for id := range profiles {
		if err = s.validateProfile(id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	_, err = execute(ctx, s, s.writeSpec("import", version), func(op *opContext) (struct{}, error) {
		for _, id := range ids {
			if err := s.ensureProfileLocked(op, id); err != nil {
				return struct{}{}, err
			}
			files := profiles[id]
			for _, name := range sortedFileNames(files) {
				if err := s.repo.WriteFile(s.layout.ProfileFile(id, name), files[name]); err != nil {
					return struct{}{}, status.ErrStoreFault.Wrap(err)
				}
			}
		}
		op.requireCommit(fmt.Sprintf("Import %d profiles from %s", len(ids), src))
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}
	s.l.Info("imported profiles", zap.String("version", version), zap.Stringer("source", src), zap.Int("profiles", len(ids)))
	return ids, nil
}

// readBundle loads all profile files of a bundle, keyed by profile id and file name
func (s *Store) readBundle(ctx context.Context, src storage.Store) (map[string]map[string][]byte, error) {
	layout := s.layout
	hasManifest, err := src.Has(ctx, model.ManifestKey)
	if err != nil {
		return nil, status.ErrStoreFault.Wrap(err)
	}
	if hasManifest {
		data, err := storage.ReadAll(ctx, src, model.ManifestKey)
		if err != nil {
			return nil, status.ErrStoreFault.Wrap(err)
		}
		manifest, err := model.UnmarshalManifest(data)
		if err != nil {
			return nil, status.ErrStoreFault.Wrap(err)
		}
		layout.Hierarchical = manifest.Hierarchical
	}

	keys, err := storage.SortedKeys(ctx, src)
	if err != nil {
		return nil, status.ErrStoreFault.Wrap(err)
	}
	profiles := make(map[string]map[string][]byte)
	for _, key := range keys {
		if key == model.ManifestKey {
			continue
		}
		id, name, ok := layout.SplitProfileFile(key)
		if !ok {
			s.l.Debug("skipping bundle entry outside of any profile", zap.String("key", key))
			continue
		}
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		content, err := storage.ReadAll(ctx, src, key)
		if err != nil {
			return nil, status.ErrStoreFault.Wrap(err)
		}
		if model.IsPIDFile(name) {
			if _, err = model.ParseProperties(content); err != nil {
				return nil, status.ErrStoreFault.Wrapf("%s: %w", key, err)
			}
		}
		files, ok := profiles[id]
		if !ok {
			files = make(map[string][]byte)
			profiles[id] = files
		}
		files[name] = content
	}
	return profiles, nil
}
