package postService

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/Techyishu/writerly/cms"
	"github.com/Techyishu/writerly/models"
)

// post document fields
const (
	fieldTitle       = "title"
	fieldExcerpt     = "excerpt"
	fieldContent     = "content"
	fieldSlug        = "slug"
	fieldSlugCurrent = "slug.current"
	fieldCategory    = "category"
	fieldReadTime    = "readTime"
	fieldFeatured    = "featured"
	fieldPublished   = "published"
	fieldCoverImage  = "coverImage"
	fieldPublishedAt = "publishedAt"
)

var (
	// ErrNoSuchPost - post does not exist
	ErrNoSuchPost = errors.New("no such post")
	// ErrSlugTaken - another post already uses the slug
	ErrSlugTaken = errors.New("slug is already used by another post")
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// SlugFromTitle - lower-cased title with whitespace runs replaced by '-'
func SlugFromTitle(title string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "-")
}

func postsQuery() *cms.Query {
	return cms.NewQuery(cms.TypePost).WithAssets(fieldCoverImage)
}

// GetPublished - published posts ordered by publication date, newest first
// Empty category means all categories
func GetPublished(ctx context.Context, client cms.Client, category string) ([]models.Post, error) {
	q := postsQuery().Where(fieldPublished, true).Order(fieldPublishedAt, true)
	if category != "" {
		q.Where(fieldCategory, category)
	}
	docs, err := client.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	posts := make([]models.Post, 0, len(docs))
	for _, doc := range docs {
		if strings.HasPrefix(doc.ID(), cms.DraftsPrefix) {
			continue
		}
		posts = append(posts, *FromDocument(doc))
	}
	return posts, nil
}

// GetAll - every post including drafts, newest first
func GetAll(ctx context.Context, client cms.Client) ([]models.Post, error) {
	docs, err := client.Fetch(ctx, postsQuery().Order(fieldPublishedAt, true))
	if err != nil {
		return nil, err
	}
	posts := make([]models.Post, 0, len(docs))
	for _, doc := range docs {
		posts = append(posts, *FromDocument(doc))
	}
	return posts, nil
}

// GetBySlug - published post with the given slug
func GetBySlug(ctx context.Context, client cms.Client, slug string) (*models.Post, error) {
	docs, err := client.Fetch(ctx, postsQuery().Where(fieldSlugCurrent, slug).Where(fieldPublished, true))
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if !strings.HasPrefix(doc.ID(), cms.DraftsPrefix) {
			return FromDocument(doc), nil
		}
	}
	return nil, ErrNoSuchPost
}

// GetByID - post with the given document ID, drafts included
func GetByID(ctx context.Context, client cms.Client, id string) (*models.Post, error) {
	docs, err := client.Fetch(ctx, postsQuery().Where("_id", id).First())
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNoSuchPost
	}
	return FromDocument(docs[0]), nil
}

// Save - creates a new post
// returns ErrSlugTaken if another post has the same slug
func Save(ctx context.Context, client cms.Client, request *SaveRequest) (*models.Post, error) {
	slug := request.Slug
	if slug == "" {
		slug = SlugFromTitle(request.Title)
	}
	if err := checkSlugFree(ctx, client, slug, ""); err != nil {
		return nil, err
	}

	doc := cms.Document{
		"_type":          cms.TypePost,
		fieldTitle:       request.Title,
		fieldExcerpt:     request.Excerpt,
		fieldSlug:        map[string]interface{}{"_type": "slug", "current": slug},
		fieldCategory:    request.Category,
		fieldReadTime:    request.ReadTime,
		fieldFeatured:    request.Featured,
		fieldPublished:   request.Published,
		fieldPublishedAt: cms.FormatTime(time.Now()),
	}
	if content := contentValue(request.Content); content != nil {
		doc[fieldContent] = content
	}
	if request.CoverImage != "" {
		if strings.HasPrefix(request.CoverImage, "image-") {
			doc[fieldCoverImage] = imageReference(request.CoverImage)
		} else {
			doc[fieldCoverImage] = request.CoverImage
		}
	}

	created, err := client.Create(ctx, doc)
	if err != nil {
		if errors.Is(err, cms.ErrConflict) {
			return nil, ErrSlugTaken
		}
		return nil, err
	}
	return GetByID(ctx, client, created.ID())
}

// Update - applies a partial update
// returns ErrNoSuchPost if the post does not exist and ErrSlugTaken on slug conflict
func Update(ctx context.Context, client cms.Client, request *UpdateRequest) (*models.Post, error) {
	if _, err := client.GetDocument(ctx, request.ID); err != nil {
		if errors.Is(err, cms.ErrNotFound) {
			return nil, ErrNoSuchPost
		}
		return nil, err
	}

	patch := cms.NewPatch()
	if request.Title != nil {
		patch.Set(fieldTitle, *request.Title)
	}
	if request.Excerpt != nil {
		patch.Set(fieldExcerpt, *request.Excerpt)
	}
	if content := contentValue(request.Content); content != nil {
		patch.Set(fieldContent, content)
	}
	if request.Slug != nil {
		if err := checkSlugFree(ctx, client, *request.Slug, request.ID); err != nil {
			return nil, err
		}
		patch.Set(fieldSlug, map[string]interface{}{"_type": "slug", "current": *request.Slug})
	}
	if request.Category != nil {
		patch.Set(fieldCategory, *request.Category)
	}
	if request.ReadTime != nil {
		patch.Set(fieldReadTime, *request.ReadTime)
	}
	if request.Featured != nil {
		patch.Set(fieldFeatured, *request.Featured)
	}
	if request.Published != nil {
		patch.Set(fieldPublished, *request.Published)
	}
	if request.CoverImage.Set {
		if value, remove := CoverImageValue(request.CoverImage); remove {
			patch.Unset(fieldCoverImage)
		} else {
			patch.Set(fieldCoverImage, value)
		}
	}

	if !patch.IsEmpty() {
		if _, err := client.Patch(ctx, request.ID, patch); err != nil {
			if errors.Is(err, cms.ErrNotFound) {
				return nil, ErrNoSuchPost
			}
			if errors.Is(err, cms.ErrConflict) {
				return nil, ErrSlugTaken
			}
			return nil, err
		}
	}
	return GetByID(ctx, client, request.ID)
}

// Delete - removes the post and its draft twin
// returns ErrNoSuchPost if neither exists
func Delete(ctx context.Context, client cms.Client, id string) error {
	published := strings.TrimPrefix(id, cms.DraftsPrefix)
	deleted := 0
	for _, docID := range []string{published, cms.DraftsPrefix + published} {
		err := client.Delete(ctx, docID)
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, cms.ErrNotFound):
		default:
			return fmt.Errorf("delete document %s: %w", docID, err)
		}
	}
	if deleted == 0 {
		return ErrNoSuchPost
	}
	return nil
}

// CoverImageValue - stored form of a cover image update
// remove is true for null and empty string; asset IDs become image references, http(s) URLs stay strings
func CoverImageValue(image models.NullString) (value interface{}, remove bool) {
	if image.IsEmpty() {
		return nil, true
	}
	s := image.String
	switch {
	case strings.HasPrefix(s, "image-"), strings.HasPrefix(s, "file-"):
		return imageReference(s), false
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return s, false
	default:
		return imageReference(s), false
	}
}

func imageReference(assetID string) map[string]interface{} {
	return map[string]interface{}{
		"_type": "image",
		"asset": map[string]interface{}{
			"_type": "reference",
			"_ref":  assetID,
		},
	}
}

// checkSlugFree - ownID and its draft twin may hold the slug
func checkSlugFree(ctx context.Context, client cms.Client, slug, ownID string) error {
	docs, err := client.Fetch(ctx, cms.NewQuery(cms.TypePost).Where(fieldSlugCurrent, slug))
	if err != nil {
		return err
	}
	own := strings.TrimPrefix(ownID, cms.DraftsPrefix)
	for _, doc := range docs {
		if ownID != "" && strings.TrimPrefix(doc.ID(), cms.DraftsPrefix) == own {
			continue
		}
		return ErrSlugTaken
	}
	return nil
}

// contentValue - decoded content, nil when absent or null
func contentValue(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return nil
	}
	return v
}

// FromDocument - converts a post document to the API representation
func FromDocument(doc cms.Document) *models.Post {
	post := &models.Post{
		ID:        doc.ID(),
		Title:     doc.String(fieldTitle),
		Excerpt:   doc.String(fieldExcerpt),
		Content:   doc.Raw(fieldContent),
		Slug:      models.Slug{Current: doc.String(fieldSlugCurrent)},
		Category:  doc.String(fieldCategory),
		Featured:  doc.Bool(fieldFeatured),
		Published: doc.Bool(fieldPublished),
	}
	if v, ok := doc.Lookup(fieldReadTime); ok && v != nil {
		post.ReadTime = cast.ToString(v)
	}
	post.CoverImage = coverImageURL(doc)
	post.PublishedAt, _ = doc.Time(fieldPublishedAt)
	post.CreatedAt, _ = doc.Time("_createdAt")
	post.UpdatedAt, _ = doc.Time("_updatedAt")
	return post
}

// coverImageURL - URL string as is, resolved asset URL, or the asset ID when unresolved
func coverImageURL(doc cms.Document) string {
	if s := doc.String(fieldCoverImage); s != "" {
		return s
	}
	image, ok := doc.Map(fieldCoverImage)
	if !ok {
		return ""
	}
	if url := image.String("asset.url"); url != "" {
		return url
	}
	if id := image.String("asset._id"); id != "" {
		return id
	}
	return image.String("asset._ref")
}
