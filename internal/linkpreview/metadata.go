package linkpreview

import "strings"

// Well-known metadata keys.
const (
	MetaDescription = "description"
	MetaImage       = "image"
	MetaTitle       = "title"
)

// MetaData is the JSON document stored alongside a link. Keys other than the
// well-known ones are preserved untouched.
type MetaData map[string]any

// Get returns the string stored under key. Absent, null, and non-string
// values all read as absent.
func (m MetaData) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m[key].(string)
	if !ok {
		return "", false
	}
	return v, true
}

// Present reports whether key holds a non-blank string.
func (m MetaData) Present(key string) bool {
	v, ok := m.Get(key)
	return ok && strings.TrimSpace(v) != ""
}

// With sets key on a copy of m and returns it.
func (m MetaData) With(key, value string) MetaData {
	out := m.Clone()
	if out == nil {
		out = MetaData{}
	}
	out[key] = value
	return out
}

// Clone returns a shallow copy.
func (m MetaData) Clone() MetaData {
	if m == nil {
		return nil
	}
	out := make(MetaData, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
