package fallback

import (
	"context"
	"sync"

	"github.com/Techyishu/writerly/models"
)

// MemoryStore - in-memory Store. Data is lost on restart and not shared between instances
type MemoryStore struct {
	mu       sync.Mutex
	views    map[string]int64
	feedback map[string]models.FeedbackCounts
	comments map[string][]models.Comment
}

// NewMemoryStore - creates empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		views:    make(map[string]int64),
		feedback: make(map[string]models.FeedbackCounts),
		comments: make(map[string][]models.Comment),
	}
}

func (s *MemoryStore) AddViews(_ context.Context, postID string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[postID] = clamp(s.views[postID] + delta)
	return s.views[postID], nil
}

func (s *MemoryStore) Views(_ context.Context, postID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views[postID], nil
}

func (s *MemoryStore) AddFeedback(_ context.Context, postID string, feedbackType models.FeedbackType, delta int64) (models.FeedbackCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback[postID] = addFeedback(s.feedback[postID], feedbackType, delta)
	return s.feedback[postID], nil
}

func (s *MemoryStore) Feedback(_ context.Context, postID string) (models.FeedbackCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedback[postID], nil
}

func (s *MemoryStore) AppendComment(_ context.Context, postID string, comment models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[postID] = append(s.comments[postID], comment)
	return nil
}

func (s *MemoryStore) Comments(_ context.Context, postID string) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]models.Comment, len(s.comments[postID]))
	copy(result, s.comments[postID])
	return result, nil
}

func (s *MemoryStore) RemoveComment(_ context.Context, postID, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[postID] = removeComment(s.comments[postID], commentID)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
