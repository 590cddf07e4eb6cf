package trackingService

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"gotest.tools/assert"

	"github.com/Techyishu/writerly/cms"
	"github.com/Techyishu/writerly/cms/cmstest"
	"github.com/Techyishu/writerly/cms/memstore"
	"github.com/Techyishu/writerly/fallback"
	"github.com/Techyishu/writerly/models"
	"github.com/Techyishu/writerly/outbox"
)

const testPostID = "post-1"

type testEnv struct {
	tracker  *Tracker
	primary  *memstore.Store
	client   *cmstest.Switchable
	fallback *fallback.MemoryStore
	queue    *outbox.MemoryQueue
}

func newTestEnv(t *testing.T, doc cms.Document) *testEnv {
	primary := memstore.New()
	if doc == nil {
		doc = cms.Document{}
	}
	doc["_id"] = testPostID
	doc["_type"] = cms.TypePost
	_, err := primary.Create(context.Background(), doc)
	assert.NilError(t, err)

	env := &testEnv{
		primary:  primary,
		client:   cmstest.NewSwitchable(primary),
		fallback: fallback.NewMemoryStore(),
		queue:    outbox.NewMemoryQueue(),
	}
	discard := log.New(io.Discard, "", 0)
	env.tracker = NewTracker(env.client, env.fallback, env.queue, nil, discard, discard)
	return env
}

func (e *testEnv) primaryDoc(t *testing.T) cms.Document {
	doc, err := e.primary.GetDocument(context.Background(), testPostID)
	assert.NilError(t, err)
	return doc
}

// drain - replays every queued mutation once
func (e *testEnv) drain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.queue.Consume(ctx, func(ctx context.Context, m outbox.Mutation) error {
			if err := e.tracker.Reconcile(ctx, m); err != nil {
				return err
			}
			if e.queue.Len() == 0 {
				cancel()
			}
			return nil
		})
	}()
	select {
	case err := <-errCh:
		assert.Assert(t, err == nil || errors.Is(err, context.Canceled), err)
	case <-time.After(5 * time.Second):
		t.Fatal("outbox was not drained")
	}
}

func TestRecordViewWritesPrimary(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	before, err := env.tracker.ViewCount(ctx, testPostID)
	assert.NilError(t, err)
	assert.NilError(t, env.tracker.RecordView(ctx, testPostID))

	after, err := env.tracker.ViewCount(ctx, testPostID)
	assert.NilError(t, err)
	assert.Assert(t, after >= before)
	assert.Equal(t, after, int64(1))

	views, ok := env.primaryDoc(t).Int(fieldViewCount)
	assert.Assert(t, ok)
	assert.Equal(t, views, int64(1))
	assert.Equal(t, env.queue.Len(), 0)
}

func TestRecordViewPrimaryDown(t *testing.T) {
	env := newTestEnv(t, cms.Document{fieldViewCount: 4})
	ctx := context.Background()
	env.client.SetDown(true)

	assert.NilError(t, env.tracker.RecordView(ctx, testPostID))

	pending, err := env.fallback.Views(ctx, testPostID)
	assert.NilError(t, err)
	assert.Equal(t, pending, int64(1))
	assert.Equal(t, env.queue.Len(), 1)

	views, err := env.tracker.ViewCount(ctx, testPostID)
	assert.NilError(t, err)
	assert.Equal(t, views, int64(1))

	// document store is back: its count plus the pending view
	env.client.SetDown(false)
	views, err = env.tracker.ViewCount(ctx, testPostID)
	assert.NilError(t, err)
	assert.Equal(t, views, int64(5))
}

func TestReconcileMovesViewToPrimary(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.client.SetDown(true)
	assert.NilError(t, env.tracker.RecordView(ctx, testPostID))
	env.client.SetDown(false)

	env.drain(t)

	pending, err := env.fallback.Views(ctx, testPostID)
	assert.NilError(t, err)
	assert.Equal(t, pending, int64(0))

	views, ok := env.primaryDoc(t).Int(fieldViewCount)
	assert.Assert(t, ok)
	assert.Equal(t, views, int64(1))

	total, err := env.tracker.ViewCount(ctx, testPostID)
	assert.NilError(t, err)
	assert.Equal(t, total, int64(1))
}

func TestReconcileMissingPostIsPermanent(t *testing.T) {
	env := newTestEnv(t, nil)
	err := env.tracker.Reconcile(context.Background(), outbox.NewViewMutation("missing"))
	assert.Assert(t, errors.Is(err, outbox.ErrPermanent))
}

func TestRecordFeedback(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	assert.NilError(t, env.tracker.RecordFeedback(ctx, &models.FeedbackRequest{PostID: testPostID, Type: models.FeedbackPositive}))
	assert.NilError(t, env.tracker.RecordFeedback(ctx, &models.FeedbackRequest{PostID: testPostID, Type: models.FeedbackNegative}))
	assert.NilError(t, env.tracker.RecordFeedback(ctx, &models.FeedbackRequest{PostID: testPostID, Type: models.FeedbackPositive}))

	counts, err := env.tracker.FeedbackCounts(ctx, testPostID)
	assert.NilError(t, err)
	assert.Equal(t, counts, models.FeedbackCounts{Positive: 2, Negative: 1})
}

func TestRecordFeedbackInvalidType(t *testing.T) {
	env := newTestEnv(t, nil)
	err := env.tracker.RecordFeedback(context.Background(), &models.FeedbackRequest{PostID: testPostID, Type: "neutral"})
	assert.Assert(t, errors.Is(err, ErrInvalidRequest))
	assert.Equal(t, env.client.Calls(), int64(0))
}

func TestFeedbackPrimaryDown(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.client.SetDown(true)

	assert.NilError(t, env.tracker.RecordFeedback(ctx, &models.FeedbackRequest{PostID: testPostID, Type: models.FeedbackNegative}))

	pending, err := env.fallback.Feedback(ctx, testPostID)
	assert.NilError(t, err)
	assert.Equal(t, pending, models.FeedbackCounts{Negative: 1})

	env.client.SetDown(false)
	env.drain(t)

	pending, err = env.fallback.Feedback(ctx, testPostID)
	assert.NilError(t, err)
	assert.Equal(t, pending, models.FeedbackCounts{})

	counts, err := env.tracker.FeedbackCounts(ctx, testPostID)
	assert.NilError(t, err)
	assert.Equal(t, counts, models.FeedbackCounts{Negative: 1})
}

func TestPrimaryZeroIsNotMasked(t *testing.T) {
	env := newTestEnv(t, cms.Document{
		models.FeedbackPositive.Field(): 0,
		models.FeedbackNegative.Field(): 3,
	})
	ctx := context.Background()

	counts, err := env.tracker.FeedbackCounts(ctx, testPostID)
	assert.NilError(t, err)
	assert.Equal(t, counts, models.FeedbackCounts{Positive: 0, Negative: 3})

	// a pending vote adds to the stored zero instead of replacing the stored counts
	_, err = env.fallback.AddFeedback(ctx, testPostID, models.FeedbackPositive, 1)
	assert.NilError(t, err)
	counts, err = env.tracker.FeedbackCounts(ctx, testPostID)
	assert.NilError(t, err)
	assert.Equal(t, counts, models.FeedbackCounts{Positive: 1, Negative: 3})
}

func TestAddCommentValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	cases := []models.CreateCommentRequest{
		{PostID: testPostID, Name: "   ", Comment: "text"},
		{PostID: testPostID, Name: "Ann", Comment: "\t\n"},
		{PostID: "", Name: "Ann", Comment: "text"},
		{PostID: testPostID, Name: strings.Repeat("я", MaxNameLength+1), Comment: "text"},
		{PostID: testPostID, Name: "Ann", Comment: strings.Repeat("x", MaxCommentLength+1)},
	}
	for _, c := range cases {
		c := c
		_, err := env.tracker.AddComment(ctx, &c)
		assert.Assert(t, errors.Is(err, ErrInvalidRequest), "request %+v", c)
	}
	assert.Equal(t, env.client.Calls(), int64(0))

	comment, err := env.tracker.AddComment(ctx, &models.CreateCommentRequest{
		PostID:  testPostID,
		Name:    strings.Repeat("я", MaxNameLength),
		Comment: "ok",
	})
	assert.NilError(t, err)
	assert.Equal(t, comment.Comment, "ok")
}

func TestAddCommentTrimsAndStores(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	comment, err := env.tracker.AddComment(ctx, &models.CreateCommentRequest{
		PostID:  testPostID,
		Name:    "  Ann ",
		Comment: " Nice post! ",
	})
	assert.NilError(t, err)
	assert.Equal(t, comment.Name, "Ann")
	assert.Equal(t, comment.Comment, "Nice post!")
	assert.Assert(t, comment.ID != "")

	comments, err := env.tracker.Comments(ctx, testPostID)
	assert.NilError(t, err)
	assert.Equal(t, len(comments), 1)
	assert.Equal(t, comments[0].ID, comment.ID)
	assert.Equal(t, comments[0].Name, "Ann")
	assert.Equal(t, len(env.primaryDoc(t).Slice(fieldComments)), 1)
}

func TestCommentIDsAreUnique(t *testing.T) {
	env := newTestEnv(t, nil)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	env.tracker.now = func() time.Time { return fixed }

	first, err := env.tracker.AddComment(context.Background(), &models.CreateCommentRequest{PostID: testPostID, Name: "a", Comment: "b"})
	assert.NilError(t, err)
	second, err := env.tracker.AddComment(context.Background(), &models.CreateCommentRequest{PostID: testPostID, Name: "a", Comment: "b"})
	assert.NilError(t, err)
	assert.Assert(t, first.ID != second.ID)
}

func TestCommentsPrimaryDown(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	stored, err := env.tracker.AddComment(ctx, &models.CreateCommentRequest{PostID: testPostID, Name: "Ann", Comment: "first"})
	assert.NilError(t, err)

	env.client.SetDown(true)
	pending, err := env.tracker.AddComment(ctx, &models.CreateCommentRequest{PostID: testPostID, Name: "Bob", Comment: "second"})
	assert.NilError(t, err)

	fallbackComments, err := env.fallback.Comments(ctx, testPostID)
	assert.NilError(t, err)
	assert.Equal(t, len(fallbackComments), 1)
	assert.Equal(t, fallbackComments[0].ID, pending.ID)

	comments, err := env.tracker.Comments(ctx, testPostID)
	assert.NilError(t, err)
	assert.Equal(t, len(comments), 1)
	assert.Equal(t, comments[0].ID, pending.ID)

	env.client.SetDown(false)
	comments, err = env.tracker.Comments(ctx, testPostID)
	assert.NilError(t, err)
	assert.Equal(t, len(comments), 2)
	assert.Equal(t, comments[0].ID, stored.ID)
	assert.Equal(t, comments[1].ID, pending.ID)

	env.drain(t)

	fallbackComments, err = env.fallback.Comments(ctx, testPostID)
	assert.NilError(t, err)
	assert.Equal(t, len(fallbackComments), 0)

	comments, err = env.tracker.Comments(ctx, testPostID)
	assert.NilError(t, err)
	assert.Equal(t, len(comments), 2)
	assert.Equal(t, comments[1].Comment, "second")
}

func TestReconcileCommentIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	comment := models.Comment{ID: "1700000000000", Name: "Ann", Comment: "hi", CreatedAt: time.Now().UTC()}
	m := outbox.NewCommentMutation(testPostID, comment)
	assert.NilError(t, env.tracker.Reconcile(ctx, m))
	assert.NilError(t, env.tracker.Reconcile(ctx, m))

	assert.Equal(t, len(env.primaryDoc(t).Slice(fieldComments)), 1)
}

func TestCommentsWithoutKey(t *testing.T) {
	env := newTestEnv(t, cms.Document{
		fieldComments: []interface{}{
			map[string]interface{}{"name": "Ann", "comment": "old", "createdAt": "2023-01-02T03:04:05Z"},
		},
	})

	comments, err := env.tracker.Comments(context.Background(), testPostID)
	assert.NilError(t, err)
	assert.Equal(t, len(comments), 1)
	assert.Equal(t, comments[0].ID, testPostID+"_0")
	assert.Assert(t, comments[0].CreatedAt.Equal(time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)))
}
