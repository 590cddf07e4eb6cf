// Package outbox queues metric mutations whose write to the document store failed
// and replays them in the background.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Techyishu/writerly/models"
)

// Kind - type of queued mutation
type Kind string

const (
	KindView     Kind = "view"
	KindFeedback Kind = "feedback"
	KindComment  Kind = "comment"
)

// ErrClosed - returned by Enqueue after Close
var ErrClosed = errors.New("outbox: queue closed")

// Mutation - one pending write. Views and feedback always carry a delta of one
type Mutation struct {
	ID           string              `json:"id"`
	Kind         Kind                `json:"kind"`
	PostID       string              `json:"postId"`
	FeedbackType models.FeedbackType `json:"feedbackType,omitempty"`
	Comment      *models.Comment     `json:"comment,omitempty"`
	Attempts     int                 `json:"attempts"`
	CreatedAt    time.Time           `json:"createdAt"`
}

func newMutation(kind Kind, postID string) Mutation {
	return Mutation{
		ID:        uuid.New().String(),
		Kind:      kind,
		PostID:    postID,
		CreatedAt: time.Now().UTC(),
	}
}

func NewViewMutation(postID string) Mutation {
	return newMutation(KindView, postID)
}

func NewFeedbackMutation(postID string, feedbackType models.FeedbackType) Mutation {
	m := newMutation(KindFeedback, postID)
	m.FeedbackType = feedbackType
	return m
}

func NewCommentMutation(postID string, comment models.Comment) Mutation {
	m := newMutation(KindComment, postID)
	m.Comment = &comment
	return m
}

// Handler - processes one mutation. A returned error stops Consume and the mutation
// is handed out again by the next Consume
type Handler func(ctx context.Context, m Mutation) error

// Queue - at-least-once mutation queue
type Queue interface {
	Enqueue(ctx context.Context, m Mutation) error
	// Consume - blocks calling handle for every mutation until ctx is done or handle fails
	Consume(ctx context.Context, handle Handler) error
	Close() error
}
