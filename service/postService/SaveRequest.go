package postService

import (
	"encoding/json"
)

// SaveRequest - post creation parameters
// Empty Slug means derive it from Title. CoverImage is an asset ID or URL, empty for none
type SaveRequest struct {
	Title      string
	Excerpt    string
	Content    json.RawMessage
	Slug       string
	Category   string
	ReadTime   string
	Featured   bool
	Published  bool
	CoverImage string
}
