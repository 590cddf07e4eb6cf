package cms

import (
	"fmt"
	"sort"
)

// Patch - set of field operations applied atomically to one document
// Operations are applied in this order: setIfMissing, set, unset, inc, append
type Patch struct {
	SetsIfMissing map[string]interface{}
	Sets          map[string]interface{}
	Unsets        []string
	Incs          map[string]int64
	Appends       map[string][]interface{}
}

// NewPatch - creates empty patch
func NewPatch() *Patch {
	return &Patch{
		SetsIfMissing: make(map[string]interface{}),
		Sets:          make(map[string]interface{}),
		Incs:          make(map[string]int64),
		Appends:       make(map[string][]interface{}),
	}
}

// SetIfMissing - sets field only if the document doesn't have it
func (p *Patch) SetIfMissing(field string, value interface{}) *Patch {
	p.SetsIfMissing[field] = value
	return p
}

// Set - sets field
func (p *Patch) Set(field string, value interface{}) *Patch {
	p.Sets[field] = value
	return p
}

// Unset - removes field
func (p *Patch) Unset(field string) *Patch {
	p.Unsets = append(p.Unsets, field)
	return p
}

// Inc - adds delta to a numeric field
func (p *Patch) Inc(field string, delta int64) *Patch {
	p.Incs[field] += delta
	return p
}

// Append - appends items to an array field
func (p *Patch) Append(field string, items ...interface{}) *Patch {
	p.Appends[field] = append(p.Appends[field], items...)
	return p
}

// IsEmpty - true if patch has no operations
func (p *Patch) IsEmpty() bool {
	return len(p.SetsIfMissing) == 0 && len(p.Sets) == 0 && len(p.Unsets) == 0 && len(p.Incs) == 0 &&
		len(p.Appends) == 0
}

// Apply - applies patch to the document in place. Used by stores that keep documents locally
func (p *Patch) Apply(doc Document) error {
	for _, field := range sortedKeys(p.SetsIfMissing) {
		if _, ok := doc[field]; !ok {
			doc[field] = p.SetsIfMissing[field]
		}
	}
	for _, field := range sortedKeys(p.Sets) {
		doc[field] = p.Sets[field]
	}
	for _, field := range p.Unsets {
		delete(doc, field)
	}
	for field, delta := range p.Incs {
		current, ok := doc[field]
		if !ok {
			return fmt.Errorf("can't increment missing field %q", field)
		}
		n, ok := toInt(current)
		if !ok {
			return fmt.Errorf("can't increment non-numeric field %q", field)
		}
		doc[field] = float64(n + delta)
	}
	for field, items := range p.Appends {
		current, ok := doc[field]
		if !ok {
			return fmt.Errorf("can't append to missing field %q", field)
		}
		arr, ok := current.([]interface{})
		if !ok {
			return fmt.Errorf("can't append to non-array field %q", field)
		}
		doc[field] = append(arr, items...)
	}
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
