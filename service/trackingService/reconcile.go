package trackingService

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Techyishu/writerly/cms"
	"github.com/Techyishu/writerly/outbox"
)

// Reconcile - replays a queued mutation to the document store and removes its delta from the fallback store
func (t *Tracker) Reconcile(ctx context.Context, m outbox.Mutation) error {
	var err error
	switch m.Kind {
	case outbox.KindView:
		_, err = t.client.Patch(ctx, m.PostID, counterPatch(fieldViewCount))
	case outbox.KindFeedback:
		_, err = t.client.Patch(ctx, m.PostID, counterPatch(m.FeedbackType.Field()))
	case outbox.KindComment:
		err = t.reconcileComment(ctx, m)
	default:
		return fmt.Errorf("unknown mutation kind %q: %w", m.Kind, outbox.ErrPermanent)
	}

	if errors.Is(err, cms.ErrNotFound) {
		return fmt.Errorf("post %s: %w: %w", m.PostID, err, outbox.ErrPermanent)
	}
	if err != nil {
		return err
	}
	t.metrics.Reconciled(string(m.Kind))

	// the document store has the write now, a failure below only leaves a stale delta
	switch m.Kind {
	case outbox.KindView:
		_, err = t.store.AddViews(ctx, m.PostID, -1)
	case outbox.KindFeedback:
		_, err = t.store.AddFeedback(ctx, m.PostID, m.FeedbackType, -1)
	case outbox.KindComment:
		err = t.store.RemoveComment(ctx, m.PostID, m.Comment.ID)
	}
	if err != nil {
		t.logError.Printf("Can't remove replayed %s mutation %s from the fallback store. Error: %s", m.Kind, m.ID, err)
	}
	return nil
}

// reconcileComment - skips the append when the comment already reached the document store
func (t *Tracker) reconcileComment(ctx context.Context, m outbox.Mutation) error {
	if m.Comment == nil {
		return fmt.Errorf("comment mutation %s without comment: %w", m.ID, outbox.ErrPermanent)
	}

	doc, err := t.client.GetDocument(ctx, m.PostID)
	if err != nil {
		return err
	}

	present := false
	for _, c := range documentComments(m.PostID, doc) {
		if c.ID == m.Comment.ID {
			present = true
			break
		}
	}
	if present {
		return nil
	}
	_, err = t.client.Patch(ctx, m.PostID, commentPatch(*m.Comment))
	return err
}

// Reconciler - background replay of the outbox through Reconcile
func (t *Tracker) Reconciler(maxAttempts int, retryDelay time.Duration) *outbox.Reconciler {
	r := outbox.NewReconciler(t.queue, t.Reconcile, maxAttempts, retryDelay, t.logInfo, t.logError)
	r.OnDrop(func(m outbox.Mutation) {
		t.metrics.Dropped(string(m.Kind))
	})
	return r
}
