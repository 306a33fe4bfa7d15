package microlink

// Payload is the raw `data` object returned by the microlink API.
type Payload map[string]any

// Field walks path through nested objects and returns the string at the end.
// Missing keys, nulls, and non-object intermediates all yield ("", false).
func (p Payload) Field(path ...string) (string, bool) {
	if len(path) == 0 {
		return "", false
	}
	var cur any = map[string]any(p)
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		cur, ok = obj[key]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok
}

// Description returns data.description.
func (p Payload) Description() (string, bool) { return p.Field("description") }

// Image returns data.image.url.
func (p Payload) Image() (string, bool) { return p.Field("image", "url") }

// Title returns data.title.
func (p Payload) Title() (string, bool) { return p.Field("title") }
