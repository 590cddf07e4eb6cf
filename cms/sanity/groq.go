package sanity

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/Techyishu/writerly/cms"
)

// buildGROQ - translates query into a GROQ string and its parameters
// Parameters are returned already JSON-encoded as the query endpoint expects
func buildGROQ(q *cms.Query) (string, url.Values, error) {
	params := url.Values{}
	var conditions []string

	if q.Type != "" {
		conditions = append(conditions, "_type == $type")
		encoded, err := json.Marshal(q.Type)
		if err != nil {
			return "", nil, err
		}
		params.Set("$type", string(encoded))
	}
	for i, f := range q.Filters {
		name := fmt.Sprintf("p%d", i)
		conditions = append(conditions, fmt.Sprintf("%s == $%s", f.Field, name))
		encoded, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("encode query param %s: %w", f.Field, err)
		}
		params.Set("$"+name, string(encoded))
	}

	var b strings.Builder
	b.WriteString("*[")
	if len(conditions) == 0 {
		b.WriteString("true")
	} else {
		b.WriteString(strings.Join(conditions, " && "))
	}
	b.WriteString("]")

	if q.OrderBy != "" {
		direction := "asc"
		if q.Desc {
			direction = "desc"
		}
		fmt.Fprintf(&b, " | order(%s %s)", q.OrderBy, direction)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " [0...%d]", q.Limit)
	}
	if len(q.ResolveAssets) > 0 {
		projections := []string{"..."}
		for _, field := range q.ResolveAssets {
			// plain URL strings pass through, a projection would turn them into null
			projections = append(projections, fmt.Sprintf("%q: select(defined(%s.asset) => %s{..., asset->{_id, url}}, %s)",
				field, field, field, field))
		}
		fmt.Fprintf(&b, " {%s}", strings.Join(projections, ", "))
	}
	return b.String(), params, nil
}
