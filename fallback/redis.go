package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cast"

	"github.com/Techyishu/writerly/models"
)

// hincrClamped increments a hash field and resets it to zero when the result is negative
var hincrClamped = redis.NewScript(`
local v = redis.call("HINCRBY", KEYS[1], ARGV[1], ARGV[2])
if v < 0 then
	redis.call("HSET", KEYS[1], ARGV[1], 0)
	v = 0
end
return v
`)

// RedisStore - Store shared by every instance pointing to the same Redis
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore - keys are namespaced by prefix, e.g. "writerly:fallback:"
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) viewsKey() string { return s.prefix + "visitors" }

func (s *RedisStore) feedbackKey(postID string) string { return s.prefix + "feedback:" + postID }

func (s *RedisStore) commentsKey(postID string) string { return s.prefix + "comments:" + postID }

func (s *RedisStore) AddViews(ctx context.Context, postID string, delta int64) (int64, error) {
	n, err := hincrClamped.Run(ctx, s.rdb, []string{s.viewsKey()}, postID, delta).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment views: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Views(ctx context.Context, postID string) (int64, error) {
	n, err := s.rdb.HGet(ctx, s.viewsKey(), postID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get views: %w", err)
	}
	return n, nil
}

func (s *RedisStore) AddFeedback(ctx context.Context, postID string, feedbackType models.FeedbackType, delta int64) (models.FeedbackCounts, error) {
	if _, err := hincrClamped.Run(ctx, s.rdb, []string{s.feedbackKey(postID)}, string(feedbackType), delta).Result(); err != nil {
		return models.FeedbackCounts{}, fmt.Errorf("increment feedback: %w", err)
	}
	return s.Feedback(ctx, postID)
}

func (s *RedisStore) Feedback(ctx context.Context, postID string) (models.FeedbackCounts, error) {
	values, err := s.rdb.HMGet(ctx, s.feedbackKey(postID), string(models.FeedbackPositive), string(models.FeedbackNegative)).Result()
	if err != nil {
		return models.FeedbackCounts{}, fmt.Errorf("get feedback: %w", err)
	}
	return models.FeedbackCounts{
		Positive: hashInt(values[0]),
		Negative: hashInt(values[1]),
	}, nil
}

func (s *RedisStore) AppendComment(ctx context.Context, postID string, comment models.Comment) error {
	encoded, err := json.Marshal(comment)
	if err != nil {
		return fmt.Errorf("encode comment: %w", err)
	}
	if err = s.rdb.RPush(ctx, s.commentsKey(postID), encoded).Err(); err != nil {
		return fmt.Errorf("push comment: %w", err)
	}
	return nil
}

func (s *RedisStore) Comments(ctx context.Context, postID string) ([]models.Comment, error) {
	raw, err := s.rdb.LRange(ctx, s.commentsKey(postID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	comments := make([]models.Comment, 0, len(raw))
	for _, item := range raw {
		var c models.Comment
		if err = json.Unmarshal([]byte(item), &c); err != nil {
			return nil, fmt.Errorf("decode comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, nil
}

func (s *RedisStore) RemoveComment(ctx context.Context, postID, commentID string) error {
	key := s.commentsKey(postID)
	raw, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("list comments: %w", err)
	}
	for _, item := range raw {
		var c models.Comment
		if json.Unmarshal([]byte(item), &c) != nil || c.ID != commentID {
			continue
		}
		if err = s.rdb.LRem(ctx, key, 1, item).Err(); err != nil {
			return fmt.Errorf("remove comment: %w", err)
		}
		return nil
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// hashInt - HMGET returns nil for missing fields and strings otherwise
func hashInt(v interface{}) int64 {
	if v == nil {
		return 0
	}
	return cast.ToInt64(v)
}
