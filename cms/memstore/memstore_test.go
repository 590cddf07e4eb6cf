package memstore

import (
	"context"
	"testing"

	"github.com/Techyishu/writerly/cms"
	"gotest.tools/assert"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := New()

	created, err := store.Create(ctx, cms.Document{"_type": cms.TypePost, "title": "Hello"})
	assert.NilError(t, err)
	id := created.ID()
	assert.Assert(t, id != "")
	assert.Assert(t, created.String("_createdAt") != "")

	_, err = store.Create(ctx, cms.Document{"_id": id, "_type": cms.TypePost})
	assert.Equal(t, err, cms.ErrConflict)

	patched, err := store.Patch(ctx, id, cms.NewPatch().SetIfMissing("viewCount", 0).Inc("viewCount", 1))
	assert.NilError(t, err)
	views, _ := patched.Int("viewCount")
	assert.Equal(t, views, int64(1))

	// failed patch leaves document untouched
	_, err = store.Patch(ctx, id, cms.NewPatch().Set("title", "changed").Inc("missing", 1))
	assert.Assert(t, err != nil)
	doc, err := store.GetDocument(ctx, id)
	assert.NilError(t, err)
	assert.Equal(t, doc.String("title"), "Hello")

	// returned documents are copies
	doc["title"] = "mutated"
	again, _ := store.GetDocument(ctx, id)
	assert.Equal(t, again.String("title"), "Hello")

	assert.NilError(t, store.Delete(ctx, id))
	_, err = store.GetDocument(ctx, id)
	assert.Equal(t, err, cms.ErrNotFound)
	assert.Equal(t, store.Delete(ctx, id), cms.ErrNotFound)
}

func TestDeleteReferencedDocument(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, err := store.Create(ctx, cms.Document{"_id": "image-1", "_type": cms.TypeImageAsset, "url": "u"})
	assert.NilError(t, err)
	_, err = store.Create(ctx, cms.Document{"_id": "p1", "_type": cms.TypePost,
		"coverImage": map[string]interface{}{"asset": map[string]interface{}{"_ref": "image-1"}}})
	assert.NilError(t, err)

	assert.Equal(t, store.Delete(ctx, "image-1"), cms.ErrReferenced)

	posts, err := store.Fetch(ctx, cms.NewQuery(cms.TypePost).WithAssets("coverImage"))
	assert.NilError(t, err)
	assert.Equal(t, len(posts), 1)
	assert.Equal(t, posts[0].String("coverImage.asset.url"), "u")
}
