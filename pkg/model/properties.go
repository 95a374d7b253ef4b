package model

import (
	"bytes"
	"sort"
	"strings"

	"github.com/magiconair/properties"
)

// DeleteMarker is the tombstone: as a value it removes an inherited key,
// as a key it removes the whole inherited PID.
const DeleteMarker = "#deleted#"

// ParseProperties reads a PID file. ${...} references are kept verbatim.
func ParseProperties(data []byte) (map[string]string, error) {
	m, err := parseProperties(data)
	if err != nil {
		return nil, ErrMalformedProperties.Wrap(err)
	}
	return m, nil
}

func parseProperties(data []byte) (map[string]string, error) {
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadBytes(data)
	if err != nil {
		return nil, err
	}
	return p.Map(), nil
}

// EncodeProperties writes a PID file, with keys sorted.
//
// Escaping follows the reader: separators, blanks and a leading comment character
// are escaped in keys, a leading blank is escaped in values.
func EncodeProperties(m map[string]string) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(escapeProperty(k, true))
		buf.WriteString(" = ")
		buf.WriteString(escapeProperty(m[k], false))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// ValidateProperties checks that a PID can be written and read back as is
func ValidateProperties(m map[string]string) error {
	if _, ok := m[""]; ok {
		return ErrMalformedProperties.Wrapf("empty key")
	}
	return nil
}

func escapeProperty(s string, key bool) string {
	var b strings.Builder
	for i, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\f':
			b.WriteString(`\f`)
		case ' ':
			if key || i == 0 {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		case ':', '=':
			if key {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		case '#', '!':
			if key && i == 0 {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
