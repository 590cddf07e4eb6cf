// Package fallback keeps view counts, feedback votes and comments whose write to the
// document store failed. Values held here are deltas not yet replayed to the document store.
package fallback

import (
	"context"

	"github.com/Techyishu/writerly/models"
)

// Store - process-local or shared secondary storage for user-generated metrics
// Counters never go below zero
type Store interface {
	AddViews(ctx context.Context, postID string, delta int64) (int64, error)
	Views(ctx context.Context, postID string) (int64, error)

	AddFeedback(ctx context.Context, postID string, feedbackType models.FeedbackType, delta int64) (models.FeedbackCounts, error)
	Feedback(ctx context.Context, postID string) (models.FeedbackCounts, error)

	AppendComment(ctx context.Context, postID string, comment models.Comment) error
	Comments(ctx context.Context, postID string) ([]models.Comment, error)
	// RemoveComment - no-op if there is no such comment
	RemoveComment(ctx context.Context, postID, commentID string) error

	Close() error
}

func clamp(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

func addFeedback(counts models.FeedbackCounts, feedbackType models.FeedbackType, delta int64) models.FeedbackCounts {
	if feedbackType == models.FeedbackPositive {
		counts.Positive = clamp(counts.Positive + delta)
	} else {
		counts.Negative = clamp(counts.Negative + delta)
	}
	return counts
}

func removeComment(comments []models.Comment, commentID string) []models.Comment {
	for i, c := range comments {
		if c.ID == commentID {
			return append(comments[:i:i], comments[i+1:]...)
		}
	}
	return comments
}
