package model

import (
	"regexp"
	"sort"

	goversion "github.com/hashicorp/go-version"
)

// MasterBranch holds the data visible to all versions. It is not a version.
const MasterBranch = "master"

var versionRex = regexp.MustCompile(`^[1-9][0-9]*(\.[0-9]+)*$`)

// Version describes a configuration generation
type Version struct {
	ID       string   `json:"id" yaml:"id"`
	Revision string   `json:"revision,omitempty" yaml:"revision,omitempty"`
	Profiles []string `json:"profiles,omitempty" yaml:"profiles,omitempty"`
}

// IsVersion tells if a branch name is a version
func IsVersion(name string) bool {
	return versionRex.MatchString(name)
}

// ValidateVersion checks a version identifier
func ValidateVersion(id string) error {
	if !IsVersion(id) {
		return ErrInvalidVersion.Wrapf("%q does not match %s", id, versionRex.String())
	}
	return nil
}

// SortVersions sorts version identifiers in natural order, e.g. 1.9 before 1.10
func SortVersions(ids []string) {
	parsed := make(map[string]*goversion.Version, len(ids))
	for _, id := range ids {
		if v, err := goversion.NewVersion(id); err == nil {
			parsed[id] = v
		}
	}
	sort.SliceStable(ids, func(i, j int) bool {
		vi, iok := parsed[ids[i]]
		vj, jok := parsed[ids[j]]
		if !iok || !jok || vi.Equal(vj) {
			return ids[i] < ids[j]
		}
		return vi.LessThan(vj)
	})
}
