// Package trackingService records views, feedback votes and comments.
// Writes go to the document store first. When it fails the write lands in the fallback
// store and the outbox, and the reconciler later moves it to the document store.
package trackingService

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Techyishu/writerly/cms"
	"github.com/Techyishu/writerly/fallback"
	"github.com/Techyishu/writerly/models"
	"github.com/Techyishu/writerly/outbox"
	"github.com/Techyishu/writerly/telemetry"
)

// document fields
const (
	fieldViewCount = "viewCount"
	fieldComments  = "comments"
)

// comment limits in runes
const (
	MaxNameLength    = 100
	MaxCommentLength = 2000
)

// ErrInvalidRequest - wrapped by every validation error
var ErrInvalidRequest = errors.New("invalid request")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Tracker - view, feedback and comment operations
type Tracker struct {
	client   cms.Client
	store    fallback.Store
	queue    outbox.Queue
	metrics  *telemetry.Metrics
	logInfo  *log.Logger
	logError *log.Logger

	idMu       sync.Mutex
	lastIDTime int64
	now        func() time.Time
}

func NewTracker(client cms.Client, store fallback.Store, queue outbox.Queue, metrics *telemetry.Metrics,
	logInfo, logError *log.Logger) *Tracker {
	return &Tracker{
		client:   client,
		store:    store,
		queue:    queue,
		metrics:  metrics,
		logInfo:  logInfo,
		logError: logError,
		now:      time.Now,
	}
}

// RecordView - counts one view of the post
func (t *Tracker) RecordView(ctx context.Context, postID string) error {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return invalid("Post ID is required")
	}

	_, err := t.client.Patch(ctx, postID, counterPatch(fieldViewCount))
	if err != nil {
		t.divert(ctx, outbox.NewViewMutation(postID), err)
	}
	return nil
}

// ViewCount - document store count plus views not yet reconciled
func (t *Tracker) ViewCount(ctx context.Context, postID string) (int64, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return 0, invalid("Post ID is required")
	}

	pending, err := t.store.Views(ctx, postID)
	if err != nil {
		t.logError.Printf("Can't read pending views of post %s. Error: %s", postID, err)
		pending = 0
	}

	doc, err := t.client.GetDocument(ctx, postID)
	if err != nil {
		t.logInfo.Printf("WARN: Can't read views of post %s from the document store, using fallback store. Error: %s",
			postID, err)
		return pending, nil
	}
	if views, ok := doc.Int(fieldViewCount); ok {
		return views + pending, nil
	}
	return pending, nil
}

// RecordFeedback - counts one positive or negative vote
func (t *Tracker) RecordFeedback(ctx context.Context, request *models.FeedbackRequest) error {
	postID := strings.TrimSpace(request.PostID)
	if postID == "" {
		return invalid("Post ID is required")
	}
	if !request.Type.Valid() {
		return invalid("Feedback type must be either positive or negative")
	}

	_, err := t.client.Patch(ctx, postID, counterPatch(request.Type.Field()))
	if err != nil {
		t.divert(ctx, outbox.NewFeedbackMutation(postID, request.Type), err)
	}
	return nil
}

// FeedbackCounts - document store counts plus votes not yet reconciled
func (t *Tracker) FeedbackCounts(ctx context.Context, postID string) (models.FeedbackCounts, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return models.FeedbackCounts{}, invalid("Post ID is required")
	}

	counts, err := t.store.Feedback(ctx, postID)
	if err != nil {
		t.logError.Printf("Can't read pending feedback of post %s. Error: %s", postID, err)
		counts = models.FeedbackCounts{}
	}

	doc, err := t.client.GetDocument(ctx, postID)
	if err != nil {
		t.logInfo.Printf("WARN: Can't read feedback of post %s from the document store, using fallback store. Error: %s",
			postID, err)
		return counts, nil
	}
	if positive, ok := doc.Int(models.FeedbackPositive.Field()); ok {
		counts.Positive += positive
	}
	if negative, ok := doc.Int(models.FeedbackNegative.Field()); ok {
		counts.Negative += negative
	}
	return counts, nil
}

// AddComment - validates and stores the comment. Name and text are trimmed
func (t *Tracker) AddComment(ctx context.Context, request *models.CreateCommentRequest) (*models.Comment, error) {
	postID := strings.TrimSpace(request.PostID)
	name := strings.TrimSpace(request.Name)
	text := strings.TrimSpace(request.Comment)

	switch {
	case postID == "" || name == "" || text == "":
		return nil, invalid("Post ID, name and comment are required")
	case utf8.RuneCountInString(name) > MaxNameLength:
		return nil, invalid("Name must be at most %d characters", MaxNameLength)
	case utf8.RuneCountInString(text) > MaxCommentLength:
		return nil, invalid("Comment must be at most %d characters", MaxCommentLength)
	}

	id, createdAt := t.nextCommentID()
	comment := models.Comment{
		ID:        id,
		Name:      name,
		Comment:   text,
		CreatedAt: createdAt,
	}

	_, err := t.client.Patch(ctx, postID, commentPatch(comment))
	if err != nil {
		t.divert(ctx, outbox.NewCommentMutation(postID, comment), err)
	}
	return &comment, nil
}

// Comments - document store comments followed by comments not yet reconciled
func (t *Tracker) Comments(ctx context.Context, postID string) ([]models.Comment, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return nil, invalid("Post ID is required")
	}

	comments := make([]models.Comment, 0)
	seen := make(map[string]bool)

	doc, err := t.client.GetDocument(ctx, postID)
	if err != nil {
		t.logInfo.Printf("WARN: Can't read comments of post %s from the document store, using fallback store. Error: %s",
			postID, err)
	} else {
		for _, c := range documentComments(postID, doc) {
			seen[c.ID] = true
			comments = append(comments, c)
		}
	}

	pending, err := t.store.Comments(ctx, postID)
	if err != nil {
		t.logError.Printf("Can't read pending comments of post %s. Error: %s", postID, err)
		return comments, nil
	}
	for _, c := range pending {
		if !seen[c.ID] {
			seen[c.ID] = true
			comments = append(comments, c)
		}
	}
	return comments, nil
}

// divert - keeps a mutation the document store refused
func (t *Tracker) divert(ctx context.Context, m outbox.Mutation, cause error) {
	t.logInfo.Printf("WARN: Can't write %s of post %s to the document store, using fallback store. Error: %s",
		m.Kind, m.PostID, cause)
	t.metrics.PrimaryFailure(string(m.Kind))

	// the client may be gone already
	ctx = context.WithoutCancel(ctx)

	var err error
	switch m.Kind {
	case outbox.KindView:
		_, err = t.store.AddViews(ctx, m.PostID, 1)
	case outbox.KindFeedback:
		_, err = t.store.AddFeedback(ctx, m.PostID, m.FeedbackType, 1)
	case outbox.KindComment:
		err = t.store.AppendComment(ctx, m.PostID, *m.Comment)
	}
	if err != nil {
		t.logError.Printf("Can't write %s of post %s to the fallback store. Error: %s", m.Kind, m.PostID, err)
	}

	if err = t.queue.Enqueue(ctx, m); err != nil {
		t.logError.Printf("Can't enqueue %s mutation %s of post %s. Error: %s", m.Kind, m.ID, m.PostID, err)
	}
}

// nextCommentID - creation time in milliseconds, bumped to stay unique within the process
func (t *Tracker) nextCommentID() (string, time.Time) {
	t.idMu.Lock()
	defer t.idMu.Unlock()

	now := t.now().UTC().Truncate(time.Millisecond)
	ms := now.UnixMilli()
	if ms <= t.lastIDTime {
		ms = t.lastIDTime + 1
	}
	t.lastIDTime = ms
	return strconv.FormatInt(ms, 10), now
}

func counterPatch(field string) *cms.Patch {
	return cms.NewPatch().SetIfMissing(field, 0).Inc(field, 1)
}

func commentPatch(c models.Comment) *cms.Patch {
	item := map[string]interface{}{
		"_key":      c.ID,
		"_type":     cms.TypeComment,
		"name":      c.Name,
		"comment":   c.Comment,
		"createdAt": cms.FormatTime(c.CreatedAt),
	}
	return cms.NewPatch().SetIfMissing(fieldComments, []interface{}{}).Append(fieldComments, item)
}

// documentComments - comments embedded in the post. Items without a key get "<postID>_<index>"
func documentComments(postID string, doc cms.Document) []models.Comment {
	raw := doc.Slice(fieldComments)
	comments := make([]models.Comment, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		c := cms.Document(m)
		id := c.String("_key")
		if id == "" {
			id = fmt.Sprintf("%s_%d", postID, i)
		}
		createdAt, _ := c.Time("createdAt")
		comments = append(comments, models.Comment{
			ID:        id,
			Name:      c.String("name"),
			Comment:   c.String("comment"),
			CreatedAt: createdAt,
		})
	}
	return comments
}
