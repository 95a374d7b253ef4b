package model

import (
	"path"
	"regexp"
	"strings"
)

const (
	// DefaultConfigRoot is the folder holding all profiles in a branch
	DefaultConfigRoot = "fabric"

	// ProfilesFolder is the folder under the config root holding profile directories
	ProfilesFolder = "profiles"

	// ProfileFolderSuffix marks a terminal profile folder with hierarchical encoding
	ProfileFolderSuffix = ".profile"

	// PropertiesSuffix is the extension of PID files
	PropertiesSuffix = ".properties"

	// AgentPID holds profile attributes. Its file is the profile marker.
	AgentPID = "profile.agent"

	// MarkerFile is present in every profile directory
	MarkerFile = AgentPID + PropertiesSuffix
)

// profile ids are made of hyphen separated segments, without empty segments
var profileRex = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.]*(-[A-Za-z0-9_.]+)*$`)

// ValidateProfileID checks that a profile identifier can be stored
func ValidateProfileID(id string) error {
	if !profileRex.MatchString(id) {
		return ErrInvalidProfile.Wrapf("%q is not a valid profile id", id)
	}
	return nil
}

// Layout maps profile identifiers to paths in a branch
type Layout struct {
	ConfigRoot   string
	Hierarchical bool
}

// Validate checks that a profile identifier can be encoded with this layout
func (l Layout) Validate(id string) error {
	if err := ValidateProfileID(id); err != nil {
		return err
	}
	if !l.Hierarchical {
		return nil
	}
	for _, segment := range strings.Split(id, "-") {
		if strings.HasSuffix(segment, ProfileFolderSuffix) {
			return ErrInvalidProfile.Wrapf("%q: segment %q clashes with the profile folder suffix", id, segment)
		}
	}
	return nil
}

// DefaultLayout returns the default flat layout
func DefaultLayout() Layout {
	return Layout{ConfigRoot: DefaultConfigRoot}
}

// ProfilesRoot is the path to the profiles folder, relative to the repository root
func (l Layout) ProfilesRoot() string {
	return path.Join(l.ConfigRoot, ProfilesFolder)
}

// ProfilePath is the path of a profile directory, relative to the profiles root.
//
// With hierarchical encoding, "foo-bar" is stored as "foo/bar.profile".
func (l Layout) ProfilePath(id string) string {
	if !l.Hierarchical {
		return id
	}
	return strings.ReplaceAll(id, "-", "/") + ProfileFolderSuffix
}

// ProfileDir is the path of a profile directory, relative to the repository root
func (l Layout) ProfileDir(id string) string {
	return path.Join(l.ProfilesRoot(), l.ProfilePath(id))
}

// ProfileFile is the path of a file in a profile, relative to the repository root
func (l Layout) ProfileFile(id, name string) string {
	return path.Join(l.ProfileDir(id), name)
}

// SplitProfileFile splits a path relative to the profiles root into a profile
// id and a file name relative to the profile directory.
//
// It returns false whenever the path does not belong to a profile directory.
func (l Layout) SplitProfileFile(rel string) (id, name string, ok bool) {
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	parts := strings.Split(rel, "/")
	if !l.Hierarchical {
		if len(parts) < 2 {
			return "", "", false
		}
		return parts[0], strings.Join(parts[1:], "/"), true
	}
	for i, part := range parts[:len(parts)-1] {
		if !strings.HasSuffix(part, ProfileFolderSuffix) {
			continue
		}
		segments := append([]string{}, parts[:i]...)
		segments = append(segments, strings.TrimSuffix(part, ProfileFolderSuffix))
		return strings.Join(segments, "-"), strings.Join(parts[i+1:], "/"), true
	}
	return "", "", false
}

// IsPIDFile tells if a profile file holds a PID
func IsPIDFile(name string) bool {
	return strings.HasSuffix(name, PropertiesSuffix) && !strings.Contains(name, "/") &&
		len(name) > len(PropertiesSuffix)
}

// PIDFromFile returns the PID stored in a profile file
func PIDFromFile(name string) string {
	return strings.TrimSuffix(name, PropertiesSuffix)
}

// PIDFile returns the name of the file holding a PID
func PIDFile(pid string) string {
	return pid + PropertiesSuffix
}

// CleanFilePath normalizes a file path relative to a profile directory.
// It returns false for paths escaping the profile directory.
func CleanFilePath(name string) (string, bool) {
	if name == "" {
		return "", true
	}
	cleaned := path.Clean(strings.TrimPrefix(name, "/"))
	if cleaned == "." {
		return "", true
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}
