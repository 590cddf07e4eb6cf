package docstore

import (
	"context"
	"testing"

	"github.com/Techyishu/writerly/cms"
	"gotest.tools/assert"
)

func newTestStore(t *testing.T) *Store {
	db, err := Open(DriverSQLite, ":memory:")
	assert.NilError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	store := New(db, DriverSQLite)
	assert.NilError(t, store.Migrate(context.Background()))
	return store
}

func TestCreateFetchPatchDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, doc := range []cms.Document{
		{"_id": "p1", "_type": cms.TypePost, "published": true, "publishedAt": "2024-01-01T00:00:00Z"},
		{"_id": "p2", "_type": cms.TypePost, "published": true, "publishedAt": "2024-02-01T00:00:00Z"},
		{"_id": "p3", "_type": cms.TypePost, "published": false, "publishedAt": "2024-03-01T00:00:00Z"},
	} {
		_, err := store.Create(ctx, doc)
		assert.NilError(t, err)
	}

	_, err := store.Create(ctx, cms.Document{"_id": "p1", "_type": cms.TypePost})
	assert.Equal(t, err, cms.ErrConflict)

	posts, err := store.Fetch(ctx, cms.NewQuery(cms.TypePost).Where("published", true).Order("publishedAt", true))
	assert.NilError(t, err)
	assert.Equal(t, len(posts), 2)
	assert.Equal(t, posts[0].ID(), "p2")

	patched, err := store.Patch(ctx, "p1", cms.NewPatch().
		SetIfMissing("comments", []interface{}{}).
		Append("comments", map[string]interface{}{"_key": "1", "name": "Ann", "comment": "Hi"}))
	assert.NilError(t, err)
	assert.Equal(t, len(patched.Slice("comments")), 1)

	_, err = store.Patch(ctx, "missing", cms.NewPatch().Set("title", "x"))
	assert.Equal(t, err, cms.ErrNotFound)

	assert.NilError(t, store.Delete(ctx, "p3"))
	assert.Equal(t, store.Delete(ctx, "p3"), cms.ErrNotFound)
}

func TestDeleteReferenced(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Create(ctx, cms.Document{"_id": "image-abc", "_type": cms.TypeImageAsset, "url": "/uploads/abc.png"})
	assert.NilError(t, err)
	_, err = store.Create(ctx, cms.Document{"_id": "p1", "_type": cms.TypePost,
		"coverImage": map[string]interface{}{"_type": "image",
			"asset": map[string]interface{}{"_type": "reference", "_ref": "image-abc"}}})
	assert.NilError(t, err)

	assert.Equal(t, store.Delete(ctx, "image-abc"), cms.ErrReferenced)

	posts, err := store.Fetch(ctx, cms.NewQuery(cms.TypePost).WithAssets("coverImage"))
	assert.NilError(t, err)
	assert.Equal(t, posts[0].String("coverImage.asset.url"), "/uploads/abc.png")
}

func TestConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.Create(ctx, cms.Document{"_id": "p1", "_type": cms.TypePost})
	assert.NilError(t, err)

	const workers = 20
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := store.Patch(ctx, "p1", cms.NewPatch().SetIfMissing("viewCount", 0).Inc("viewCount", 1))
			errs <- err
		}()
	}
	for i := 0; i < workers; i++ {
		assert.NilError(t, <-errs)
	}

	doc, err := store.GetDocument(ctx, "p1")
	assert.NilError(t, err)
	views, _ := doc.Int("viewCount")
	assert.Equal(t, views, int64(workers))
}

func TestSlugIsUnique(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	slug := func(s string) map[string]interface{} {
		return map[string]interface{}{"_type": "slug", "current": s}
	}

	_, err := store.Create(ctx, cms.Document{"_id": "p1", "_type": cms.TypePost, "slug": slug("hello")})
	assert.NilError(t, err)
	_, err = store.Create(ctx, cms.Document{"_id": "p2", "_type": cms.TypePost, "slug": slug("hello")})
	assert.Equal(t, err, cms.ErrConflict)

	// draft twin keeps the slug of its post
	_, err = store.Create(ctx, cms.Document{"_id": cms.DraftsPrefix + "p1", "_type": cms.TypePost, "slug": slug("hello")})
	assert.NilError(t, err)
	// documents without slug don't collide
	_, err = store.Create(ctx, cms.Document{"_id": "p3", "_type": cms.TypePost})
	assert.NilError(t, err)
	_, err = store.Create(ctx, cms.Document{"_id": "p4", "_type": cms.TypePost})
	assert.NilError(t, err)

	_, err = store.Patch(ctx, "p3", cms.NewPatch().Set("slug", slug("hello")))
	assert.Equal(t, err, cms.ErrConflict)
	_, err = store.Patch(ctx, "p1", cms.NewPatch().Set("slug", slug("hello-again")))
	assert.NilError(t, err)
	_, err = store.Patch(ctx, "p3", cms.NewPatch().Set("slug", slug("hello")))
	assert.NilError(t, err)
}
