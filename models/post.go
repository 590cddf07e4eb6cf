package models

import (
	"encoding/json"
	"time"
)

// Slug - CMS slug object. Only 'current' is used
type Slug struct {
	Current string `json:"current"`
}

// Post - represents blog post as it is returned by the API
// @Content - plain string or CMS rich-text block array, kept as raw JSON
// @CoverImage - resolved image URL, or asset ID if the reference can't be resolved
// Counters are only filled for the single post response
type Post struct {
	ID               string          `json:"_id"`
	Title            string          `json:"title"`
	Excerpt          string          `json:"excerpt"`
	Content          json.RawMessage `json:"content"`
	Slug             Slug            `json:"slug"`
	Category         string          `json:"category"`
	ReadTime         string          `json:"readTime"`
	Featured         bool            `json:"featured"`
	Published        bool            `json:"published"`
	CoverImage       string          `json:"coverImage"`
	PublishedAt      time.Time       `json:"publishedAt"`
	CreatedAt        time.Time       `json:"_createdAt"`
	UpdatedAt        time.Time       `json:"_updatedAt"`
	ViewCount        *int64          `json:"viewCount,omitempty"`
	PositiveFeedback *int64          `json:"positiveFeedback,omitempty"`
	NegativeFeedback *int64          `json:"negativeFeedback,omitempty"`
}

// CreatePostRequest - represents post creation request
type CreatePostRequest struct {
	Title      string          `json:"title"`
	Excerpt    string          `json:"excerpt"`
	Content    json.RawMessage `json:"content"`
	Slug       *Slug           `json:"slug"`
	Category   string          `json:"category"`
	ReadTime   string          `json:"readTime"`
	Featured   bool            `json:"featured"`
	Published  bool            `json:"published"`
	CoverImage NullString      `json:"coverImage"`
}

// UpdatePostRequest - represents post update request
// nil fields are left untouched
type UpdatePostRequest struct {
	Title      *string         `json:"title"`
	Excerpt    *string         `json:"excerpt"`
	Content    json.RawMessage `json:"content"`
	Slug       *Slug           `json:"slug"`
	Category   *string         `json:"category"`
	ReadTime   *string         `json:"readTime"`
	Featured   *bool           `json:"featured"`
	Published  *bool           `json:"published"`
	CoverImage NullString      `json:"coverImage"`
}

// Category - category name and amount of published posts in it
type Category struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SearchResult - single post search hit
type SearchResult struct {
	ID       string  `json:"_id"`
	Title    string  `json:"title"`
	Slug     string  `json:"slug"`
	Excerpt  string  `json:"excerpt"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// Asset - uploaded image
type Asset struct {
	AssetID string `json:"assetId"`
	URL     string `json:"url"`
}
