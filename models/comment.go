package models

import "time"

// Comment - represents reader's comment on a post
type Comment struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateCommentRequest - represents comment creation request
type CreateCommentRequest struct {
	PostID  string `json:"postId"`
	Name    string `json:"name"`
	Comment string `json:"comment"`
}

// CreateCommentResponse - acknowledgement with the stored comment
type CreateCommentResponse struct {
	Success bool     `json:"success"`
	Comment *Comment `json:"comment"`
}

// CommentsResponse - comments of a post, oldest first
type CommentsResponse struct {
	Comments []Comment `json:"comments"`
}
