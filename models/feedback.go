package models

// FeedbackType - positive or negative vote
type FeedbackType string

const (
	FeedbackPositive FeedbackType = "positive"
	FeedbackNegative FeedbackType = "negative"
)

// Valid - checks that feedback type is one of the known types
func (t FeedbackType) Valid() bool {
	return t == FeedbackPositive || t == FeedbackNegative
}

// Field - name of the post document field storing this feedback counter
func (t FeedbackType) Field() string {
	if t == FeedbackPositive {
		return "positiveFeedback"
	}
	return "negativeFeedback"
}

// FeedbackRequest - represents feedback vote request
type FeedbackRequest struct {
	PostID string       `json:"postId"`
	Type   FeedbackType `json:"type"`
}

// FeedbackCounts - positive and negative votes of a post
type FeedbackCounts struct {
	Positive int64 `json:"positive"`
	Negative int64 `json:"negative"`
}

// ViewRequest - represents view tracking request
type ViewRequest struct {
	PostID string `json:"postId"`
}

// ViewResponse - result of view tracking. Counted is false when the session already viewed the post
type ViewResponse struct {
	Success bool `json:"success"`
	Counted bool `json:"counted"`
}

// ViewCountResponse - current view count of a post
type ViewCountResponse struct {
	ViewCount int64 `json:"viewCount"`
}
