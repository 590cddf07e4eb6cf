// Package search keeps a full-text index of published posts.
package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/Techyishu/writerly/models"
)

// DefaultLimit - results returned when the caller sets no limit
const DefaultLimit = 10

// MaxLimit - upper bound of results per query
const MaxLimit = 50

// Index wraps a Bleve search index
type Index struct {
	index bleve.Index
}

// IndexedPost represents a post in the search index
type IndexedPost struct {
	ID       string
	Title    string
	Excerpt  string
	Content  string
	Category string
	Slug     string
}

// Open opens or creates a Bleve index. Empty path keeps the index in memory
func Open(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		return &Index{index: idx}, nil
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return &Index{index: idx}, nil
}

// buildIndexMapping - english analyzer for prose, slug kept verbatim
func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = "en"

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = "keyword"

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("Title", textFieldMapping)
	docMapping.AddFieldMappingsAt("Excerpt", textFieldMapping)
	docMapping.AddFieldMappingsAt("Content", textFieldMapping)
	docMapping.AddFieldMappingsAt("Category", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("Slug", keywordFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}

func (i *Index) Close() error {
	return i.index.Close()
}

func toIndexed(post *models.Post) *IndexedPost {
	return &IndexedPost{
		ID:       post.ID,
		Title:    post.Title,
		Excerpt:  post.Excerpt,
		Content:  PlainText(post.Content),
		Category: post.Category,
		Slug:     post.Slug.Current,
	}
}

// IndexPost - adds or updates a published post; unpublished posts are removed
func (i *Index) IndexPost(post *models.Post) error {
	if !post.Published {
		return i.Delete(post.ID)
	}
	return i.index.Index(post.ID, toIndexed(post))
}

// Delete removes a post from the index
func (i *Index) Delete(id string) error {
	return i.index.Delete(id)
}

// Rebuild - replaces index contents with the given published posts
func (i *Index) Rebuild(posts []models.Post) error {
	ids, err := i.allIDs()
	if err != nil {
		return err
	}

	batch := i.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	for idx := range posts {
		post := &posts[idx]
		if !post.Published {
			continue
		}
		if err = batch.Index(post.ID, toIndexed(post)); err != nil {
			return fmt.Errorf("batch index %s: %w", post.ID, err)
		}
	}
	if err = i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Search - matches the words of q against title, excerpt, content and category
// Title matches weigh the most
func (i *Index) Search(q string, limit int) ([]models.SearchResult, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []models.SearchResult{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	fields := map[string]float64{"Title": 3, "Excerpt": 2, "Content": 1, "Category": 1}
	queries := make([]query.Query, 0, len(fields)+1)
	for field, boost := range fields {
		mq := bleve.NewMatchQuery(q)
		mq.SetField(field)
		mq.SetBoost(boost)
		queries = append(queries, mq)
	}
	// typo tolerance on titles
	fuzzy := bleve.NewMatchQuery(q)
	fuzzy.SetField("Title")
	fuzzy.SetFuzziness(1)
	queries = append(queries, fuzzy)

	request := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(queries...), limit, 0, false)
	request.Fields = []string{"Title", "Excerpt", "Category", "Slug"}

	results, err := i.index.Search(request)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]models.SearchResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		result := models.SearchResult{ID: hit.ID, Score: hit.Score}
		result.Title, _ = hit.Fields["Title"].(string)
		result.Excerpt, _ = hit.Fields["Excerpt"].(string)
		result.Category, _ = hit.Fields["Category"].(string)
		result.Slug, _ = hit.Fields["Slug"].(string)
		hits = append(hits, result)
	}
	return hits, nil
}

// Count returns the number of posts in the index
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

func (i *Index) allIDs() ([]string, error) {
	count, err := i.index.DocCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	request := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	results, err := i.index.Search(request)
	if err != nil {
		return nil, fmt.Errorf("list indexed posts: %w", err)
	}
	ids := make([]string, 0, len(results.Hits))
	for _, hit := range results.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// PlainText - text of post content: a plain string or rich-text blocks with text spans
func PlainText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []struct {
		Children []struct {
			Text string `json:"text"`
		} `json:"children"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	paragraphs := make([]string, 0, len(blocks))
	for _, block := range blocks {
		var sb strings.Builder
		for _, span := range block.Children {
			sb.WriteString(span.Text)
		}
		if sb.Len() > 0 {
			paragraphs = append(paragraphs, sb.String())
		}
	}
	return strings.Join(paragraphs, "\n")
}
