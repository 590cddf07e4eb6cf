package search

import (
	"encoding/json"
	"testing"

	"gotest.tools/assert"

	"github.com/Techyishu/writerly/models"
)

func testPosts() []models.Post {
	return []models.Post{
		{ID: "p1", Title: "Concurrency in Go", Excerpt: "Goroutines and channels", Category: "Go",
			Slug: models.Slug{Current: "concurrency-in-go"}, Published: true,
			Content: json.RawMessage(`[{"_type":"block","children":[{"text":"Channels are "},{"text":"typed conduits."}]}]`)},
		{ID: "p2", Title: "Designing calm interfaces", Excerpt: "Whitespace matters", Category: "Design",
			Slug: models.Slug{Current: "calm-interfaces"}, Published: true, Content: json.RawMessage(`"Typography first."`)},
		{ID: "p3", Title: "Secret draft about Go", Published: false},
	}
}

func openTestIndex(t *testing.T) *Index {
	idx, err := Open("")
	assert.NilError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	assert.NilError(t, idx.Rebuild(testPosts()))
	return idx
}

func TestRebuildSkipsUnpublished(t *testing.T) {
	idx := openTestIndex(t)
	count, err := idx.Count()
	assert.NilError(t, err)
	assert.Equal(t, count, uint64(2))

	// rebuilding replaces old contents
	assert.NilError(t, idx.Rebuild(testPosts()[1:]))
	count, err = idx.Count()
	assert.NilError(t, err)
	assert.Equal(t, count, uint64(1))
}

func TestSearch(t *testing.T) {
	idx := openTestIndex(t)

	results, err := idx.Search("channels", 10)
	assert.NilError(t, err)
	assert.Equal(t, len(results), 1)
	assert.Equal(t, results[0].ID, "p1")
	assert.Equal(t, results[0].Slug, "concurrency-in-go")
	assert.Equal(t, results[0].Title, "Concurrency in Go")

	results, err = idx.Search("typography", 10)
	assert.NilError(t, err)
	assert.Equal(t, len(results), 1)
	assert.Equal(t, results[0].ID, "p2")

	results, err = idx.Search("draft", 10)
	assert.NilError(t, err)
	assert.Equal(t, len(results), 0)

	results, err = idx.Search("   ", 10)
	assert.NilError(t, err)
	assert.Equal(t, len(results), 0)
}

func TestIndexPostUpdatesAndRemoves(t *testing.T) {
	idx := openTestIndex(t)

	post := testPosts()[1]
	post.Title = "Designing quiet interfaces"
	assert.NilError(t, idx.IndexPost(&post))
	results, err := idx.Search("quiet", 10)
	assert.NilError(t, err)
	assert.Equal(t, len(results), 1)

	post.Published = false
	assert.NilError(t, idx.IndexPost(&post))
	results, err = idx.Search("quiet", 10)
	assert.NilError(t, err)
	assert.Equal(t, len(results), 0)
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, PlainText(json.RawMessage(`"plain"`)), "plain")
	assert.Equal(t, PlainText(json.RawMessage(`[{"children":[{"text":"a"},{"text":"b"}]},{"children":[{"text":"c"}]}]`)), "ab\nc")
	assert.Equal(t, PlainText(nil), "")
	assert.Equal(t, PlainText(json.RawMessage(`42`)), "")
}
