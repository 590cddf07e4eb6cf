package cms

import (
	"reflect"
	"sort"
	"strings"
)

// Filter - equality condition on a dotted field path
type Filter struct {
	Field string
	Value interface{}
}

// Query - typed replacement for CMS query strings
// ResolveAssets lists image fields whose asset reference must be replaced by the asset itself
type Query struct {
	Type          string
	Filters       []Filter
	OrderBy       string
	Desc          bool
	Limit         int
	ResolveAssets []string
}

// NewQuery - query for documents of the given type
func NewQuery(docType string) *Query {
	return &Query{Type: docType}
}

// Where - adds equality filter
func (q *Query) Where(field string, value interface{}) *Query {
	q.Filters = append(q.Filters, Filter{Field: field, Value: value})
	return q
}

// Order - sets ordering
func (q *Query) Order(field string, desc bool) *Query {
	q.OrderBy = field
	q.Desc = desc
	return q
}

// First - limits result to one document
func (q *Query) First() *Query {
	q.Limit = 1
	return q
}

// WithAssets - resolves asset references in the given fields
func (q *Query) WithAssets(fields ...string) *Query {
	q.ResolveAssets = append(q.ResolveAssets, fields...)
	return q
}

// Matches - checks document against type and filters
func (q *Query) Matches(doc Document) bool {
	if q.Type != "" && doc.Type() != q.Type {
		return false
	}
	for _, f := range q.Filters {
		v, ok := doc.Lookup(f.Field)
		if !ok || !equalValues(v, f.Value) {
			return false
		}
	}
	return true
}

// Select - filters, orders and limits documents in memory
func (q *Query) Select(docs []Document) []Document {
	result := make([]Document, 0)
	for _, doc := range docs {
		if q.Matches(doc) {
			result = append(result, doc)
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(result, func(i, j int) bool {
			l, _ := result[i].Lookup(q.OrderBy)
			r, _ := result[j].Lookup(q.OrderBy)
			if q.Desc {
				return lessValues(r, l)
			}
			return lessValues(l, r)
		})
	}
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result
}

// ResolveAssetRefs - replaces {asset: {_ref}} in the query's asset fields with the referenced asset
// lookup returns the asset document or false if it does not exist
func (q *Query) ResolveAssetRefs(doc Document, lookup func(id string) (Document, bool)) {
	for _, field := range q.ResolveAssets {
		image, ok := doc.Map(field)
		if !ok {
			continue
		}
		ref := image.String("asset._ref")
		if ref == "" {
			continue
		}
		asset, found := lookup(ref)
		if !found {
			continue
		}
		image["asset"] = map[string]interface{}{"_id": asset.ID(), "url": asset.String("url")}
	}
}

// References - true if the document holds a reference to the given ID anywhere
func References(doc Document, id string) bool {
	return containsRef(map[string]interface{}(doc), id)
}

func containsRef(v interface{}, id string) bool {
	switch t := v.(type) {
	case map[string]interface{}:
		if ref, ok := t["_ref"].(string); ok && ref == id {
			return true
		}
		for _, nested := range t {
			if containsRef(nested, id) {
				return true
			}
		}
	case Document:
		return containsRef(map[string]interface{}(t), id)
	case []interface{}:
		for _, nested := range t {
			if containsRef(nested, id) {
				return true
			}
		}
	}
	return false
}

func equalValues(l, r interface{}) bool {
	if ln, ok := toInt(l); ok {
		rn, ok := toInt(r)
		return ok && ln == rn
	}
	return reflect.DeepEqual(l, r)
}

func lessValues(l, r interface{}) bool {
	if ln, ok := toInt(l); ok {
		if rn, ok := toInt(r); ok {
			return ln < rn
		}
	}
	ls, _ := l.(string)
	rs, _ := r.(string)
	return strings.Compare(ls, rs) < 0
}
