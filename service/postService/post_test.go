package postService

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"gotest.tools/assert"

	"github.com/Techyishu/writerly/cms"
	"github.com/Techyishu/writerly/cms/memstore"
	"github.com/Techyishu/writerly/models"
)

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func TestSlugFromTitle(t *testing.T) {
	assert.Equal(t, SlugFromTitle("Hello   Go\tWorld"), "hello-go-world")
	assert.Equal(t, SlugFromTitle("  Trim me "), "trim-me")
}

func TestSaveAndGetBySlug(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	created, err := Save(ctx, store, &SaveRequest{
		Title:     "My First Post",
		Excerpt:   "short",
		Content:   json.RawMessage(`"body"`),
		Category:  "Go",
		ReadTime:  "5 min",
		Published: true,
	})
	assert.NilError(t, err)
	assert.Equal(t, created.Slug.Current, "my-first-post")
	assert.Equal(t, created.Featured, false)
	assert.Assert(t, !created.PublishedAt.IsZero())

	found, err := GetBySlug(ctx, store, "my-first-post")
	assert.NilError(t, err)
	assert.Equal(t, found.ID, created.ID)
	assert.Equal(t, found.Title, "My First Post")
	assert.Equal(t, found.Excerpt, "short")
	assert.Equal(t, found.Category, "Go")
	assert.Equal(t, string(found.Content), `"body"`)

	_, err = GetBySlug(ctx, store, "missing")
	assert.Equal(t, err, ErrNoSuchPost)
}

func TestSaveSlugConflict(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	_, err := Save(ctx, store, &SaveRequest{Title: "Same Title"})
	assert.NilError(t, err)
	_, err = Save(ctx, store, &SaveRequest{Title: "Other", Slug: "same-title"})
	assert.Equal(t, err, ErrSlugTaken)
}

func TestUnpublishedPostIsHidden(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	_, err := Save(ctx, store, &SaveRequest{Title: "Draft"})
	assert.NilError(t, err)

	_, err = GetBySlug(ctx, store, "draft")
	assert.Equal(t, err, ErrNoSuchPost)

	published, err := GetPublished(ctx, store, "")
	assert.NilError(t, err)
	assert.Equal(t, len(published), 0)

	all, err := GetAll(ctx, store)
	assert.NilError(t, err)
	assert.Equal(t, len(all), 1)
}

func TestGetPublishedByCategory(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	for _, r := range []SaveRequest{
		{Title: "Go one", Category: "Go", Published: true},
		{Title: "Design one", Category: "Design", Published: true},
		{Title: "Go two", Category: "Go", Published: true},
	} {
		r := r
		_, err := Save(ctx, store, &r)
		assert.NilError(t, err)
	}

	posts, err := GetPublished(ctx, store, "Go")
	assert.NilError(t, err)
	assert.Equal(t, len(posts), 2)
	for _, p := range posts {
		assert.Equal(t, p.Category, "Go")
	}
}

func TestCoverImageOnSave(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	_, err := store.Create(ctx, cms.Document{"_id": "image-abc-200x200-png", "_type": cms.TypeImageAsset, "url": "https://cdn/abc.png"})
	assert.NilError(t, err)

	withAsset, err := Save(ctx, store, &SaveRequest{Title: "With asset", CoverImage: "image-abc-200x200-png"})
	assert.NilError(t, err)
	assert.Equal(t, withAsset.CoverImage, "https://cdn/abc.png")

	withURL, err := Save(ctx, store, &SaveRequest{Title: "With url", CoverImage: "https://example.com/x.jpg"})
	assert.NilError(t, err)
	assert.Equal(t, withURL.CoverImage, "https://example.com/x.jpg")

	withUnknown, err := Save(ctx, store, &SaveRequest{Title: "Unknown asset", CoverImage: "image-missing"})
	assert.NilError(t, err)
	assert.Equal(t, withUnknown.CoverImage, "image-missing")
}

func TestCoverImageValue(t *testing.T) {
	_, remove := CoverImageValue(models.NullString{Set: true})
	assert.Assert(t, remove)
	_, remove = CoverImageValue(models.NullString{Set: true, Valid: true, String: ""})
	assert.Assert(t, remove)

	value, remove := CoverImageValue(models.NullString{Set: true, Valid: true, String: "https://x/y.png"})
	assert.Assert(t, !remove)
	assert.Equal(t, value, "https://x/y.png")

	for _, ref := range []string{"image-1", "file-2", "some-id"} {
		value, remove = CoverImageValue(models.NullString{Set: true, Valid: true, String: ref})
		assert.Assert(t, !remove)
		assert.DeepEqual(t, value, imageReference(ref))
	}
}

func TestUpdate(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	created, err := Save(ctx, store, &SaveRequest{Title: "Original", Category: "Go", CoverImage: "https://x/a.png"})
	assert.NilError(t, err)

	updated, err := Update(ctx, store, &UpdateRequest{
		ID:         created.ID,
		Title:      strPtr("Renamed"),
		Published:  boolPtr(true),
		CoverImage: models.NullString{Set: true},
	})
	assert.NilError(t, err)
	assert.Equal(t, updated.Title, "Renamed")
	assert.Equal(t, updated.Category, "Go")
	assert.Equal(t, updated.Published, true)
	assert.Equal(t, updated.CoverImage, "")
	assert.Equal(t, updated.Slug.Current, "original")

	// cover image is untouched when absent
	updated, err = Update(ctx, store, &UpdateRequest{ID: created.ID, CoverImage: models.NullString{Set: true, Valid: true, String: "https://x/b.png"}})
	assert.NilError(t, err)
	updated, err = Update(ctx, store, &UpdateRequest{ID: created.ID, Excerpt: strPtr("new excerpt")})
	assert.NilError(t, err)
	assert.Equal(t, updated.CoverImage, "https://x/b.png")
	assert.Equal(t, updated.Excerpt, "new excerpt")

	_, err = Update(ctx, store, &UpdateRequest{ID: "missing", Title: strPtr("x")})
	assert.Equal(t, err, ErrNoSuchPost)
}

func TestUpdateSlugConflict(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	first, err := Save(ctx, store, &SaveRequest{Title: "First"})
	assert.NilError(t, err)
	_, err = Save(ctx, store, &SaveRequest{Title: "Second"})
	assert.NilError(t, err)

	_, err = Update(ctx, store, &UpdateRequest{ID: first.ID, Slug: strPtr("second")})
	assert.Equal(t, err, ErrSlugTaken)

	// keeping its own slug is fine
	_, err = Update(ctx, store, &UpdateRequest{ID: first.ID, Slug: strPtr("first")})
	assert.NilError(t, err)
}

func TestDeleteRemovesDraftTwin(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	_, err := store.Create(ctx, cms.Document{"_id": "p1", "_type": cms.TypePost})
	assert.NilError(t, err)
	_, err = store.Create(ctx, cms.Document{"_id": "drafts.p1", "_type": cms.TypePost})
	assert.NilError(t, err)

	assert.NilError(t, Delete(ctx, store, "p1"))
	assert.Equal(t, store.Len(), 0)

	assert.Equal(t, Delete(ctx, store, "p1"), ErrNoSuchPost)
}

func TestDeleteOnlyDraft(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	_, err := store.Create(ctx, cms.Document{"_id": "drafts.p2", "_type": cms.TypePost})
	assert.NilError(t, err)
	assert.NilError(t, Delete(ctx, store, "p2"))
	assert.Equal(t, store.Len(), 0)
}

func TestDeleteReferenced(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	_, err := store.Create(ctx, cms.Document{"_id": "p1", "_type": cms.TypePost})
	assert.NilError(t, err)
	_, err = store.Create(ctx, cms.Document{"_id": "p2", "_type": cms.TypePost, "related": map[string]interface{}{"_ref": "p1"}})
	assert.NilError(t, err)

	err = Delete(ctx, store, "p1")
	assert.Assert(t, errors.Is(err, cms.ErrReferenced))
}
