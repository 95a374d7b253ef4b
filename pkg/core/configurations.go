package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/oneconcern/profilestore/pkg/core/status"
	"github.com/oneconcern/profilestore/pkg/model"
)

func validatePID(pid string) error {
	if pid == "" || strings.ContainsAny(pid, `/\`) || strings.HasPrefix(pid, ".") {
		return status.ErrInvalidPID.Wrapf("%q", pid)
	}
	return nil
}

func validateProperties(pid string, props map[string]string) error {
	if err := validatePID(pid); err != nil {
		return err
	}
	if err := model.ValidateProperties(props); err != nil {
		return status.ErrInvalidPID.Wrapf("%s: %w", pid, err)
	}
	return nil
}

func cleanFileName(name string) (string, error) {
	cleaned, ok := model.CleanFilePath(name)
	if !ok || cleaned == "" {
		return "", status.ErrInvalidPath.Wrapf("%q", name)
	}
	return cleaned, nil
}

// profileData returns the cached data of a profile, or nil when the profile does not exist
func (s *Store) profileData(ctx context.Context, version, id string) (*model.ProfileData, error) {
	if err := s.validateProfile(id); err != nil {
		return nil, err
	}
	vd, err := s.snapshot(ctx, version)
	if err != nil {
		return nil, err
	}
	pd, _ := vd.Profile(id)
	return pd, nil
}

// GetFileConfigurations returns all files of a profile, PID files included
func (s *Store) GetFileConfigurations(ctx context.Context, version, id string) (map[string][]byte, error) {
	pd, err := s.profileData(ctx, version, id)
	if err != nil || pd == nil {
		return map[string][]byte{}, err
	}
	files := make(map[string][]byte, len(pd.Files))
	for name, content := range pd.Files {
		files[name] = content
	}
	return files, nil
}

// GetFileConfiguration returns the content of a file, or nil when it does not exist
func (s *Store) GetFileConfiguration(ctx context.Context, version, id, name string) ([]byte, error) {
	name, err := cleanFileName(name)
	if err != nil {
		return nil, err
	}
	pd, err := s.profileData(ctx, version, id)
	if err != nil || pd == nil {
		return nil, err
	}
	return pd.Files[name], nil
}

// SetFileConfigurations replaces all files of a profile. The profile marker is kept unless given.
func (s *Store) SetFileConfigurations(ctx context.Context, version, id string, files map[string][]byte) error {
	if err := s.validateTarget(version, id); err != nil {
		return err
	}
	cleaned := make(map[string][]byte, len(files))
	for name, content := range files {
		n, err := cleanFileName(name)
		if err != nil {
			return err
		}
		cleaned[n] = content
	}
	_, err := execute(ctx, s, s.writeSpec("set_files", version), func(op *opContext) (struct{}, error) {
		if err := s.ensureProfileLocked(op, id); err != nil {
			return struct{}{}, err
		}
		existing, err := s.repo.ListFiles(s.layout.ProfileDir(id))
		if err != nil {
			return struct{}{}, status.ErrStoreFault.Wrap(err)
		}
		for _, name := range existing {
			if content := cleaned[name]; content != nil || name == model.MarkerFile {
				continue
			}
			if err = s.repo.RemoveAll(s.layout.ProfileFile(id, name)); err != nil {
				return struct{}{}, status.ErrStoreFault.Wrap(err)
			}
		}
		for _, name := range sortedFileNames(cleaned) {
			if cleaned[name] == nil {
				continue
			}
			if err = s.repo.WriteFile(s.layout.ProfileFile(id, name), cleaned[name]); err != nil {
				return struct{}{}, status.ErrStoreFault.Wrap(err)
			}
		}
		op.requireCommit(fmt.Sprintf("Update files of profile %s", id))
		return struct{}{}, nil
	})
	return err
}

// SetFileConfiguration writes a file of a profile, creating the profile when needed.
// A nil content removes the file.
func (s *Store) SetFileConfiguration(ctx context.Context, version, id, name string, content []byte) error {
	if err := s.validateTarget(version, id); err != nil {
		return err
	}
	name, err := cleanFileName(name)
	if err != nil {
		return err
	}
	_, err = execute(ctx, s, s.writeSpec("set_file", version), func(op *opContext) (struct{}, error) {
		if err := s.ensureProfileLocked(op, id); err != nil {
			return struct{}{}, err
		}
		p := s.layout.ProfileFile(id, name)
		if content == nil {
			if name == model.MarkerFile || !s.repo.Exists(p) {
				return struct{}{}, nil
			}
			if err := s.repo.RemoveAll(p); err != nil {
				return struct{}{}, status.ErrStoreFault.Wrap(err)
			}
			op.requireCommit(fmt.Sprintf("Remove %s from profile %s", name, id))
			return struct{}{}, nil
		}
		if err := s.repo.WriteFile(p, content); err != nil {
			return struct{}{}, status.ErrStoreFault.Wrap(err)
		}
		op.requireCommit(fmt.Sprintf("Update %s of profile %s", name, id))
		return struct{}{}, nil
	})
	return err
}

// GetConfigurations returns all PIDs of a profile
func (s *Store) GetConfigurations(ctx context.Context, version, id string) (map[string]map[string]string, error) {
	pd, err := s.profileData(ctx, version, id)
	if err != nil || pd == nil {
		return map[string]map[string]string{}, err
	}
	configs := make(map[string]map[string]string, len(pd.Configurations))
	for pid, props := range pd.Configurations {
		configs[pid] = model.CopyMap(props)
	}
	return configs, nil
}

// GetConfiguration returns a PID of a profile, empty when it does not exist
func (s *Store) GetConfiguration(ctx context.Context, version, id, pid string) (map[string]string, error) {
	if err := validatePID(pid); err != nil {
		return nil, err
	}
	pd, err := s.profileData(ctx, version, id)
	if err != nil {
		return nil, err
	}
	if pd == nil {
		return map[string]string{}, nil
	}
	return model.CopyMap(pd.Configurations[pid]), nil
}

// SetConfigurations replaces all PIDs of a profile. The agent PID is kept unless given.
func (s *Store) SetConfigurations(ctx context.Context, version, id string, configs map[string]map[string]string) error {
	if err := s.validateTarget(version, id); err != nil {
		return err
	}
	for pid, props := range configs {
		if err := validateProperties(pid, props); err != nil {
			return err
		}
	}
	_, err := execute(ctx, s, s.writeSpec("set_configurations", version), func(op *opContext) (struct{}, error) {
		if err := s.ensureProfileLocked(op, id); err != nil {
			return struct{}{}, err
		}
		existing, err := s.repo.ListFiles(s.layout.ProfileDir(id))
		if err != nil {
			return struct{}{}, status.ErrStoreFault.Wrap(err)
		}
		for _, name := range existing {
			if !model.IsPIDFile(name) {
				continue
			}
			pid := model.PIDFromFile(name)
			if _, keep := configs[pid]; keep || pid == model.AgentPID {
				continue
			}
			if err = s.repo.RemoveAll(s.layout.ProfileFile(id, name)); err != nil {
				return struct{}{}, status.ErrStoreFault.Wrap(err)
			}
		}
		for pid, props := range configs {
			if err = s.writePIDLocked(id, pid, props); err != nil {
				return struct{}{}, err
			}
		}
		op.requireCommit(fmt.Sprintf("Update configurations of profile %s", id))
		return struct{}{}, nil
	})
	return err
}

// SetConfiguration replaces a PID of a profile, creating the profile when needed
func (s *Store) SetConfiguration(ctx context.Context, version, id, pid string, props map[string]string) error {
	if err := s.validateTarget(version, id); err != nil {
		return err
	}
	if err := validateProperties(pid, props); err != nil {
		return err
	}
	_, err := execute(ctx, s, s.writeSpec("set_configuration", version), func(op *opContext) (struct{}, error) {
		if err := s.ensureProfileLocked(op, id); err != nil {
			return struct{}{}, err
		}
		if err := s.writePIDLocked(id, pid, props); err != nil {
			return struct{}{}, err
		}
		op.requireCommit(fmt.Sprintf("Update %s of profile %s", pid, id))
		return struct{}{}, nil
	})
	return err
}

// ListFiles lists the files under a directory of several profiles, without duplicates
func (s *Store) ListFiles(ctx context.Context, version string, profiles []string, dir string) ([]string, error) {
	if _, ok := model.CleanFilePath(dir); !ok {
		return nil, status.ErrInvalidPath.Wrapf("%q", dir)
	}
	vd, err := s.snapshot(ctx, version)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	names := []string{}
	for _, id := range profiles {
		pd, ok := vd.Profile(id)
		if !ok {
			continue
		}
		for _, name := range pd.ListFiles(dir) {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func sortedFileNames(files map[string][]byte) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
