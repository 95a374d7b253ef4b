package model

import (
	"sort"
	"strings"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// ProfileData is the cached snapshot of a profile directory
type ProfileData struct {
	ID string

	// LastModified is the abbreviated id of the last commit touching the profile
	LastModified string

	// Files maps names relative to the profile directory to their content, PID files included
	Files map[string][]byte

	// Configurations maps PIDs to their parsed properties
	Configurations map[string]map[string]string

	index *iradix.Tree
}

// NewProfileData builds a snapshot and eagerly parses its PID files
func NewProfileData(id, lastModified string, files map[string][]byte) (*ProfileData, error) {
	pd := &ProfileData{
		ID:             id,
		LastModified:   lastModified,
		Files:          files,
		Configurations: make(map[string]map[string]string),
	}
	if pd.Files == nil {
		pd.Files = make(map[string][]byte)
	}

	txn := iradix.New().Txn()
	for name, content := range pd.Files {
		txn.Insert([]byte(name), struct{}{})
		if !IsPIDFile(name) {
			continue
		}
		props, err := parseProperties(content)
		if err != nil {
			return nil, ErrMalformedProperties.Wrapf("profile %s, file %s: %w", id, name, err)
		}
		pd.Configurations[PIDFromFile(name)] = props
	}
	pd.index = txn.Commit()
	return pd, nil
}

// ListFiles returns the file names under some directory of the profile, in alphabetical order.
// An empty directory lists all files.
func (pd *ProfileData) ListFiles(dir string) []string {
	dir, ok := CleanFilePath(dir)
	if !ok {
		return []string{}
	}
	prefix := dir
	if prefix != "" {
		prefix += "/"
	}
	names := []string{}
	if pd.index == nil {
		return names
	}
	pd.index.Root().WalkPrefix([]byte(prefix), func(k []byte, _ interface{}) bool {
		names = append(names, string(k))
		return false
	})
	return names
}

// VersionData is the cached snapshot of all profiles visible from a version
type VersionData struct {
	Version  string
	Revision string
	Exists   bool
	Profiles map[string]*ProfileData
}

// NewVersionData builds an empty snapshot
func NewVersionData(version string) *VersionData {
	return &VersionData{
		Version:  version,
		Profiles: make(map[string]*ProfileData),
	}
}

// Profile looks up the snapshot of a profile
func (v *VersionData) Profile(id string) (*ProfileData, bool) {
	if v == nil {
		return nil, false
	}
	pd, ok := v.Profiles[id]
	return pd, ok
}

// ProfileIDs lists profile identifiers in alphabetical order
func (v *VersionData) ProfileIDs() []string {
	ids := make([]string, 0, len(v.Profiles))
	for id := range v.Profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MatchProfiles lists the profiles with some id prefix, in alphabetical order
func (v *VersionData) MatchProfiles(prefix string) []string {
	ids := v.ProfileIDs()
	matched := ids[:0]
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			matched = append(matched, id)
		}
	}
	return matched
}
