package core

import (
	"context"
	"fmt"

	"github.com/oneconcern/profilestore/pkg/core/status"
	"github.com/oneconcern/profilestore/pkg/errors"
	"github.com/oneconcern/profilestore/pkg/model"
	"github.com/oneconcern/profilestore/pkg/overlay"
)

// CreateProfile creates an empty profile. Creating an existing profile is a no-op.
func (s *Store) CreateProfile(ctx context.Context, version, id string) error {
	if err := s.validateTarget(version, id); err != nil {
		return err
	}
	_, err := execute(ctx, s, s.writeSpec("create_profile", version), func(op *opContext) (struct{}, error) {
		return struct{}{}, s.ensureProfileLocked(op, id)
	})
	return err
}

// DeleteProfile removes a profile with all its files. Deleting a missing profile is a no-op.
func (s *Store) DeleteProfile(ctx context.Context, version, id string) error {
	if err := s.validateTarget(version, id); err != nil {
		return err
	}
	_, err := execute(ctx, s, s.writeSpec("delete_profile", version), func(op *opContext) (struct{}, error) {
		dir := s.layout.ProfileDir(id)
		if !s.repo.Exists(dir) {
			return struct{}{}, nil
		}
		if err := s.repo.RemoveAll(dir); err != nil {
			return struct{}{}, status.ErrStoreFault.Wrap(err)
		}
		op.requireCommit(fmt.Sprintf("Delete profile %s", id))
		return struct{}{}, nil
	})
	return err
}

// GetProfiles lists the profiles visible from a version, master profiles included
func (s *Store) GetProfiles(ctx context.Context, version string) ([]string, error) {
	vd, err := s.snapshot(ctx, version)
	if err != nil {
		return nil, err
	}
	return vd.ProfileIDs(), nil
}

// GetProfile returns a profile without its ancestors
func (s *Store) GetProfile(ctx context.Context, version, id string) (*model.Profile, error) {
	vd, err := s.snapshot(ctx, version)
	if err != nil {
		return nil, err
	}
	pd, ok := vd.Profile(id)
	if !ok {
		return nil, status.ErrProfileNotFound.Wrapf("%s in version %s", id, version)
	}
	return model.NewProfile(version, pd), nil
}

// HasProfile tells if a profile is visible from a version
func (s *Store) HasProfile(ctx context.Context, version, id string) (bool, error) {
	vd, err := s.snapshot(ctx, version)
	if err != nil {
		return false, err
	}
	_, ok := vd.Profile(id)
	return ok, nil
}

// GetOverlayProfile returns a profile merged with all its ancestors
func (s *Store) GetOverlayProfile(ctx context.Context, version, id string) (*model.Profile, error) {
	vd, err := s.snapshot(ctx, version)
	if err != nil {
		return nil, err
	}
	p, err := s.resolver.Resolve(ctx, version, id, vd)
	if errors.Is(err, overlay.ErrProfileNotFound) {
		return nil, status.ErrProfileNotFound.Wrapf("%s in version %s", id, version)
	}
	return p, err
}

// SetProfileAttribute sets an attribute of a profile, e.g. its parents.
// An empty value removes the attribute.
func (s *Store) SetProfileAttribute(ctx context.Context, version, id, key, value string) error {
	if err := s.validateTarget(version, id); err != nil {
		return err
	}
	if key == "" {
		return status.ErrInvalidPID.Wrapf("empty attribute name")
	}
	_, err := execute(ctx, s, s.writeSpec("set_attribute", version), func(op *opContext) (struct{}, error) {
		if err := s.ensureProfileLocked(op, id); err != nil {
			return struct{}{}, err
		}
		props, err := s.readPIDLocked(id, model.AgentPID)
		if err != nil {
			return struct{}{}, err
		}
		k := model.AttributePrefix + key
		if props[k] == value {
			return struct{}{}, nil
		}
		if value == "" {
			delete(props, k)
		} else {
			props[k] = value
		}
		if err = s.writePIDLocked(id, model.AgentPID, props); err != nil {
			return struct{}{}, err
		}
		op.requireCommit(fmt.Sprintf("Set attribute %s of profile %s", key, id))
		return struct{}{}, nil
	})
	return err
}

func (s *Store) writeSpec(name, version string) opSpec {
	return opSpec{name: name, version: version, write: true}
}

func (s *Store) validateTarget(version, id string) error {
	if err := s.assertStarted(); err != nil {
		return err
	}
	if err := validateVersion(version, true); err != nil {
		return err
	}
	return s.validateProfile(id)
}

// ensureProfileLocked writes the marker of a profile when it is missing
func (s *Store) ensureProfileLocked(op *opContext, id string) error {
	marker := s.layout.ProfileFile(id, model.MarkerFile)
	if s.repo.Exists(marker) {
		return nil
	}
	if err := s.repo.WriteFile(marker, []byte{}); err != nil {
		return status.ErrStoreFault.Wrap(err)
	}
	op.requireCommit(fmt.Sprintf("Create profile %s", id))
	return nil
}

// readPIDLocked reads a PID from the working tree. A missing PID is empty.
func (s *Store) readPIDLocked(id, pid string) (map[string]string, error) {
	content, ok, err := s.repo.ReadFile(s.layout.ProfileFile(id, model.PIDFile(pid)))
	if err != nil {
		return nil, status.ErrStoreFault.Wrap(err)
	}
	if !ok {
		return make(map[string]string), nil
	}
	props, err := model.ParseProperties(content)
	if err != nil {
		return nil, status.ErrStoreFault.Wrapf("profile %s: %w", id, err)
	}
	return props, nil
}

func (s *Store) writePIDLocked(id, pid string, props map[string]string) error {
	if err := s.repo.WriteFile(s.layout.ProfileFile(id, model.PIDFile(pid)), model.EncodeProperties(props)); err != nil {
		return status.ErrStoreFault.Wrap(err)
	}
	return nil
}
