package postService

import (
	"encoding/json"

	"github.com/Techyishu/writerly/models"
)

// UpdateRequest - partial post update. nil fields and unset CoverImage are left untouched
type UpdateRequest struct {
	ID         string
	Title      *string
	Excerpt    *string
	Content    json.RawMessage
	Slug       *string
	Category   *string
	ReadTime   *string
	Featured   *bool
	Published  *bool
	CoverImage models.NullString
}
