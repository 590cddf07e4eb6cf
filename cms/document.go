package cms

import (
	"encoding/json"
	"strings"
	"time"
)

// Document - raw CMS document
type Document map[string]interface{}

// ID - document ID
func (d Document) ID() string {
	return d.String("_id")
}

// Type - document type
func (d Document) Type() string {
	return d.String("_type")
}

// Lookup - returns value at the dotted path, e.g. "slug.current"
func (d Document) Lookup(path string) (interface{}, bool) {
	var current interface{} = map[string]interface{}(d)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// String - string value at the path or empty string
func (d Document) String(path string) string {
	v, _ := d.Lookup(path)
	s, _ := v.(string)
	return s
}

// Bool - bool value at the path or false
func (d Document) Bool(path string) bool {
	v, _ := d.Lookup(path)
	b, _ := v.(bool)
	return b
}

// Int - integer value at the path. The second value reports whether the field holds a number
func (d Document) Int(path string) (int64, bool) {
	v, ok := d.Lookup(path)
	if !ok {
		return 0, false
	}
	return toInt(v)
}

// TimeLayout - fixed-width RFC 3339 layout, so stored timestamps sort as strings
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime - formats t in UTC with TimeLayout
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Time - RFC 3339 time at the path
func (d Document) Time(path string) (time.Time, bool) {
	s := d.String(path)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Map - nested object at the path
func (d Document) Map(path string) (Document, bool) {
	v, ok := d.Lookup(path)
	if !ok {
		return nil, false
	}
	m, ok := asMap(v)
	return Document(m), ok
}

// Slice - array at the path
func (d Document) Slice(path string) []interface{} {
	v, _ := d.Lookup(path)
	s, _ := v.([]interface{})
	return s
}

// Raw - JSON encoding of the value at the path, nil if absent
func (d Document) Raw(path string) json.RawMessage {
	v, ok := d.Lookup(path)
	if !ok || v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// Clone - deep copy through JSON, so nested values never alias the source
func (d Document) Clone() Document {
	b, err := json.Marshal(d)
	if err != nil {
		return Document{}
	}
	var out Document
	if err = json.Unmarshal(b, &out); err != nil {
		return Document{}
	}
	return out
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Document:
		return m, true
	}
	return nil, false
}

func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
