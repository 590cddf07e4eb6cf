package categoryService

import (
	"context"
	"sort"
	"strings"

	"github.com/Techyishu/writerly/cms"
	"github.com/Techyishu/writerly/models"
)

// GetAll - categories of published posts with post counts
// sorted by count in descending order, then by name
func GetAll(ctx context.Context, client cms.Client) ([]models.Category, error) {
	docs, err := client.Fetch(ctx, cms.NewQuery(cms.TypePost).Where("published", true))
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, doc := range docs {
		if strings.HasPrefix(doc.ID(), cms.DraftsPrefix) {
			continue
		}
		name := strings.TrimSpace(doc.String("category"))
		if name == "" {
			continue
		}
		counts[name]++
	}

	categories := make([]models.Category, 0, len(counts))
	for name, count := range counts {
		categories = append(categories, models.Category{Name: name, Count: count})
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Count != categories[j].Count {
			return categories[i].Count > categories[j].Count
		}
		return categories[i].Name < categories[j].Name
	})
	return categories, nil
}
