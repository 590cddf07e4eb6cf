// Package cms describes the headless document store posts live in and the operations the
// blog needs from it: fetch by query, get by id, create, patch and delete.
package cms

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Techyishu/writerly/models"
)

// document types used by the blog
const (
	TypePost       = "post"
	TypeImageAsset = "sanity.imageAsset"
	TypeComment    = "comment"

	// DraftsPrefix - draft twins of published documents have this ID prefix
	DraftsPrefix = "drafts."
)

// errors returned by every Client implementation
var (
	ErrNotFound   = errors.New("document not found")
	ErrConflict   = errors.New("document already exists")
	ErrReferenced = errors.New("document is referenced by other documents")
	ErrForbidden  = errors.New("insufficient permissions for the document store")
)

// Error - failed store call with the status code reported by the store
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("document store error (status %d): %s", e.StatusCode, e.Message)
	}
	return "document store error: " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client - document store operations
type Client interface {
	// Fetch - returns all documents matching the query
	Fetch(ctx context.Context, q *Query) ([]Document, error)
	// GetDocument - returns ErrNotFound if there is no document with the given ID
	GetDocument(ctx context.Context, id string) (Document, error)
	// Create - stores a new document. '_id' is generated if missing
	Create(ctx context.Context, doc Document) (Document, error)
	// Patch - applies patch to the document and returns the patched document
	Patch(ctx context.Context, id string, p *Patch) (Document, error)
	// Delete - removes the document. Returns ErrReferenced if other documents point to it
	Delete(ctx context.Context, id string) error
}

// AssetUploader - store that keeps uploaded images itself
type AssetUploader interface {
	UploadImage(ctx context.Context, filename, contentType string, body io.Reader) (*models.Asset, error)
}
