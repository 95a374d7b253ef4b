package model

import (
	"sort"
	"strconv"
	"strings"
)

// AttributePrefix marks profile attributes in the agent PID
const AttributePrefix = "attribute."

// Well-known profile attributes
const (
	ParentsAttribute     = "parents"
	DescriptionAttribute = "description"
	AbstractAttribute    = "abstract"
	LockedAttribute      = "locked"
	HiddenAttribute      = "hidden"
)

// Profile is a read-only view of a profile in some version.
//
// An overlay profile carries the configuration merged from all its ancestors.
type Profile struct {
	ID             string
	Version        string
	LastModified   string
	Attributes     map[string]string
	Parents        []string
	Files          map[string][]byte
	Configurations map[string]map[string]string
	Overlay        bool
}

// NewProfile builds a profile from cached data
func NewProfile(version string, data *ProfileData) *Profile {
	p := &Profile{
		ID:             data.ID,
		Version:        version,
		LastModified:   data.LastModified,
		Files:          make(map[string][]byte, len(data.Files)),
		Configurations: make(map[string]map[string]string, len(data.Configurations)),
	}
	for name, content := range data.Files {
		p.Files[name] = content
	}
	for pid, props := range data.Configurations {
		p.Configurations[pid] = CopyMap(props)
	}
	p.Attributes = ExtractAttributes(data.Configurations[AgentPID])
	p.Parents = ParseParents(p.Attributes[ParentsAttribute])
	return p
}

// ExtractAttributes picks the attribute.* keys of an agent PID
func ExtractAttributes(agent map[string]string) map[string]string {
	attrs := make(map[string]string)
	for k, v := range agent {
		if strings.HasPrefix(k, AttributePrefix) {
			attrs[strings.TrimPrefix(k, AttributePrefix)] = v
		}
	}
	return attrs
}

// ParseParents splits the parents attribute. Duplicates are dropped, order is kept.
func ParseParents(value string) []string {
	fields := strings.Fields(value)
	parents := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, id := range fields {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		parents = append(parents, id)
	}
	return parents
}

// Configuration returns a PID, or an empty map
func (p *Profile) Configuration(pid string) map[string]string {
	if c, ok := p.Configurations[pid]; ok {
		return c
	}
	return map[string]string{}
}

// FileConfiguration returns the content of a file, or nil
func (p *Profile) FileConfiguration(name string) []byte {
	return p.Files[name]
}

// PIDs lists configuration identifiers in alphabetical order
func (p *Profile) PIDs() []string {
	pids := make([]string, 0, len(p.Configurations))
	for pid := range p.Configurations {
		pids = append(pids, pid)
	}
	sort.Strings(pids)
	return pids
}

// Description of the profile
func (p *Profile) Description() string {
	return p.Attributes[DescriptionAttribute]
}

// IsAbstract profiles are only meant to be inherited from
func (p *Profile) IsAbstract() bool { return p.flag(AbstractAttribute) }

// IsLocked profiles should not be edited
func (p *Profile) IsLocked() bool { return p.flag(LockedAttribute) }

// IsHidden profiles are not displayed by default
func (p *Profile) IsHidden() bool { return p.flag(HiddenAttribute) }

func (p *Profile) flag(name string) bool {
	b, _ := strconv.ParseBool(p.Attributes[name])
	return b
}

// CopyMap returns a shallow copy of a string map, never nil
func CopyMap(m map[string]string) map[string]string {
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
