package fallback

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gotest.tools/assert"

	"github.com/Techyishu/writerly/models"
)

func testStore(t *testing.T, store Store) {
	ctx := context.Background()

	views, err := store.AddViews(ctx, "post-1", 1)
	assert.NilError(t, err)
	assert.Equal(t, views, int64(1))
	_, err = store.AddViews(ctx, "post-1", 2)
	assert.NilError(t, err)
	views, err = store.Views(ctx, "post-1")
	assert.NilError(t, err)
	assert.Equal(t, views, int64(3))

	views, err = store.AddViews(ctx, "post-1", -10)
	assert.NilError(t, err)
	assert.Equal(t, views, int64(0))

	views, err = store.Views(ctx, "unknown")
	assert.NilError(t, err)
	assert.Equal(t, views, int64(0))

	counts, err := store.AddFeedback(ctx, "post-1", models.FeedbackPositive, 1)
	assert.NilError(t, err)
	assert.Equal(t, counts, models.FeedbackCounts{Positive: 1})
	counts, err = store.AddFeedback(ctx, "post-1", models.FeedbackNegative, 2)
	assert.NilError(t, err)
	assert.Equal(t, counts, models.FeedbackCounts{Positive: 1, Negative: 2})
	counts, err = store.AddFeedback(ctx, "post-1", models.FeedbackPositive, -1)
	assert.NilError(t, err)
	counts, err = store.Feedback(ctx, "post-1")
	assert.NilError(t, err)
	assert.Equal(t, counts, models.FeedbackCounts{Negative: 2})

	now := time.Now().UTC().Truncate(time.Second)
	first := models.Comment{ID: "1", Name: "Ann", Comment: "first", CreatedAt: now}
	second := models.Comment{ID: "2", Name: "Bob", Comment: "second", CreatedAt: now}
	assert.NilError(t, store.AppendComment(ctx, "post-1", first))
	assert.NilError(t, store.AppendComment(ctx, "post-1", second))

	comments, err := store.Comments(ctx, "post-1")
	assert.NilError(t, err)
	assert.Equal(t, len(comments), 2)
	assert.Equal(t, comments[0].ID, "1")
	assert.Equal(t, comments[1].Comment, "second")

	assert.NilError(t, store.RemoveComment(ctx, "post-1", "1"))
	assert.NilError(t, store.RemoveComment(ctx, "post-1", "missing"))
	comments, err = store.Comments(ctx, "post-1")
	assert.NilError(t, err)
	assert.Equal(t, len(comments), 1)
	assert.Equal(t, comments[0].ID, "2")

	comments, err = store.Comments(ctx, "post-2")
	assert.NilError(t, err)
	assert.Equal(t, len(comments), 0)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	assert.NilError(t, err)
	testStore(t, store)

	// state survives reopening
	reopened, err := NewFileStore(dir)
	assert.NilError(t, err)
	counts, err := reopened.Feedback(context.Background(), "post-1")
	assert.NilError(t, err)
	assert.Equal(t, counts.Negative, int64(2))
	comments, err := reopened.Comments(context.Background(), "post-1")
	assert.NilError(t, err)
	assert.Equal(t, len(comments), 1)
}

func TestMemoryStoreConcurrentViews(t *testing.T) {
	store := NewMemoryStore()
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func() {
			_, _ = store.AddViews(context.Background(), "post", 1)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	views, err := store.Views(context.Background(), "post")
	assert.NilError(t, err)
	assert.Equal(t, views, int64(50))
}

func newRedisStore(t *testing.T, mr *miniredis.Miniredis) *RedisStore {
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "writerly:fallback:")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	testStore(t, newRedisStore(t, mr))

	assert.Assert(t, mr.Exists("writerly:fallback:visitors"))
	assert.Equal(t, mr.HGet("writerly:fallback:visitors", "post-1"), "0")
	assert.Equal(t, mr.HGet("writerly:fallback:feedback:post-1", "negative"), "2")
}

func TestRedisStoreSharedByInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	writer := newRedisStore(t, mr)
	replayer := newRedisStore(t, mr)

	_, err := writer.AddViews(ctx, "post-1", 1)
	assert.NilError(t, err)
	_, err = writer.AddFeedback(ctx, "post-1", models.FeedbackPositive, 1)
	assert.NilError(t, err)

	// the delta is removed by whichever instance replays the mutation
	_, err = replayer.AddViews(ctx, "post-1", -1)
	assert.NilError(t, err)
	_, err = replayer.AddFeedback(ctx, "post-1", models.FeedbackPositive, -1)
	assert.NilError(t, err)

	views, err := writer.Views(ctx, "post-1")
	assert.NilError(t, err)
	assert.Equal(t, views, int64(0))
	counts, err := writer.Feedback(ctx, "post-1")
	assert.NilError(t, err)
	assert.Equal(t, counts, models.FeedbackCounts{})
}
