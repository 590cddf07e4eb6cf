package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Techyishu/writerly/models"
)

// file names inside the data directory. Each file is a flat map keyed by post ID
const (
	visitorsFile = "visitors.json"
	feedbackFile = "feedback.json"
	commentsFile = "comments.json"
)

// FileStore - Store keeping one JSON file per feature in a data directory
// Every mutation rewrites the whole file through a temp file and rename under a mutex
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore - creates data directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) AddViews(_ context.Context, postID string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make(map[string]int64)
	if err := s.read(visitorsFile, &views); err != nil {
		return 0, err
	}
	views[postID] = clamp(views[postID] + delta)
	if views[postID] == 0 {
		delete(views, postID)
	}
	return views[postID], s.write(visitorsFile, views)
}

func (s *FileStore) Views(_ context.Context, postID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make(map[string]int64)
	if err := s.read(visitorsFile, &views); err != nil {
		return 0, err
	}
	return views[postID], nil
}

func (s *FileStore) AddFeedback(_ context.Context, postID string, feedbackType models.FeedbackType, delta int64) (models.FeedbackCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	feedback := make(map[string]models.FeedbackCounts)
	if err := s.read(feedbackFile, &feedback); err != nil {
		return models.FeedbackCounts{}, err
	}
	counts := addFeedback(feedback[postID], feedbackType, delta)
	if counts.Positive == 0 && counts.Negative == 0 {
		delete(feedback, postID)
	} else {
		feedback[postID] = counts
	}
	return counts, s.write(feedbackFile, feedback)
}

func (s *FileStore) Feedback(_ context.Context, postID string) (models.FeedbackCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	feedback := make(map[string]models.FeedbackCounts)
	if err := s.read(feedbackFile, &feedback); err != nil {
		return models.FeedbackCounts{}, err
	}
	return feedback[postID], nil
}

func (s *FileStore) AppendComment(_ context.Context, postID string, comment models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	comments := make(map[string][]models.Comment)
	if err := s.read(commentsFile, &comments); err != nil {
		return err
	}
	comments[postID] = append(comments[postID], comment)
	return s.write(commentsFile, comments)
}

func (s *FileStore) Comments(_ context.Context, postID string) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	comments := make(map[string][]models.Comment)
	if err := s.read(commentsFile, &comments); err != nil {
		return nil, err
	}
	if comments[postID] == nil {
		return []models.Comment{}, nil
	}
	return comments[postID], nil
}

func (s *FileStore) RemoveComment(_ context.Context, postID, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	comments := make(map[string][]models.Comment)
	if err := s.read(commentsFile, &comments); err != nil {
		return err
	}
	remaining := removeComment(comments[postID], commentID)
	if len(remaining) == 0 {
		delete(comments, postID)
	} else {
		comments[postID] = remaining
	}
	return s.write(commentsFile, comments)
}

func (s *FileStore) Close() error {
	return nil
}

// read - missing file means empty map
func (s *FileStore) read(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err = json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) write(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err = os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
