package core

import (
	"bytes"
	"context"
	"path"
	"time"

	units "github.com/docker/go-units"
	"github.com/oneconcern/profilestore/pkg/core/status"
	"github.com/oneconcern/profilestore/pkg/model"
	"github.com/oneconcern/profilestore/pkg/storage"
	"go.uber.org/zap"
)

// ExportProfiles writes the profiles of a version matching a glob pattern to a bundle,
// followed by its manifest. An empty pattern exports all profiles.
func (s *Store) ExportProfiles(ctx context.Context, version string, dst storage.Store, pattern string) (model.Manifest, error) {
	if pattern == "" {
		pattern = "*"
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return model.Manifest{}, status.ErrInvalidProfile.Wrapf("pattern %q: %w", pattern, err)
	}
	vd, err := s.snapshot(ctx, version)
	if err != nil {
		return model.Manifest{}, err
	}

	manifest := model.Manifest{
		Version:      version,
		Revision:     vd.Revision,
		Hierarchical: s.layout.Hierarchical,
		Profiles:     []string{},
		Exported:     time.Now().UTC(),
	}
	for _, id := range vd.ProfileIDs() {
		if ok, _ := path.Match(pattern, id); !ok {
			continue
		}
		pd, _ := vd.Profile(id)
		for _, name := range sortedFileNames(pd.Files) {
			key := path.Join(s.layout.ProfilePath(id), name)
			if err = dst.Put(ctx, key, bytes.NewReader(pd.Files[name]), storage.OverWrite); err != nil {
				return model.Manifest{}, status.ErrStoreFault.Wrapf("exporting %s: %w", key, err)
			}
			manifest.Files++
			manifest.Size += int64(len(pd.Files[name]))
		}
		manifest.Profiles = append(manifest.Profiles, id)
	}

	data, err := manifest.Marshal()
	if err != nil {
		return model.Manifest{}, status.ErrStoreFault.Wrap(err)
	}
	if err = dst.Put(ctx, model.ManifestKey, bytes.NewReader(data), storage.OverWrite); err != nil {
		return model.Manifest{}, status.ErrStoreFault.Wrap(err)
	}
	s.l.Info("exported profiles",
		zap.String("version", version),
		zap.Stringer("destination", dst),
		zap.Int("profiles", len(manifest.Profiles)),
		zap.Int("files", manifest.Files),
		zap.String("size", units.HumanSize(float64(manifest.Size))),
	)
	return manifest, nil
}
