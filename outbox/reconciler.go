package outbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrPermanent - apply errors wrapping it are not retried
var ErrPermanent = errors.New("permanent failure")

const minRestartDelay = 10 * time.Millisecond

// Reconciler - replays queued mutations with apply until they succeed or run out of attempts
type Reconciler struct {
	queue       Queue
	apply       Handler
	maxAttempts int
	retryDelay  time.Duration
	onDrop      func(m Mutation)
	logInfo     *log.Logger
	logError    *log.Logger
}

// NewReconciler - maxAttempts below 1 means a single attempt
func NewReconciler(queue Queue, apply Handler, maxAttempts int, retryDelay time.Duration,
	logInfo, logError *log.Logger) *Reconciler {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Reconciler{
		queue:       queue,
		apply:       apply,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		logInfo:     logInfo,
		logError:    logError,
	}
}

// OnDrop - registers a callback invoked for every mutation given up on
func (r *Reconciler) OnDrop(fn func(m Mutation)) {
	r.onDrop = fn
}

// Run - blocks until ctx is done or the queue is closed. A failing consumer is restarted
// after a pause, the queue keeps the mutation it failed on
func (r *Reconciler) Run(ctx context.Context) {
	r.logInfo.Printf("Outbox reconciler started (max attempts: %d, retry delay: %s)", r.maxAttempts, r.retryDelay)
	defer r.logInfo.Print("Outbox reconciler stopped")

	pause := r.retryDelay
	if pause < minRestartDelay {
		pause = minRestartDelay
	}
	for {
		err := r.queue.Consume(ctx, r.handle)
		if err == nil || ctx.Err() != nil {
			return
		}
		r.logError.Printf("Outbox consumer failed, restarting in %s. Error: %s", pause, err)

		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (r *Reconciler) handle(ctx context.Context, m Mutation) error {
	err := r.apply(ctx, m)
	if err == nil {
		r.logInfo.Printf("Replayed %s mutation %s for post %s", m.Kind, m.ID, m.PostID)
		return nil
	}

	m.Attempts++
	if m.Attempts >= r.maxAttempts || errors.Is(err, ErrPermanent) {
		r.logError.Printf("Dropping %s mutation %s for post %s after %d attempts. Its delta stays in the fallback store. Error: %s",
			m.Kind, m.ID, m.PostID, m.Attempts, err)
		if r.onDrop != nil {
			r.onDrop(m)
		}
		return nil
	}

	r.logInfo.Printf("WARN: Can't replay %s mutation %s (attempt %d/%d). Error: %s",
		m.Kind, m.ID, m.Attempts, r.maxAttempts, err)

	if r.retryDelay > 0 {
		timer := time.NewTimer(r.retryDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err = r.queue.Enqueue(ctx, m); err != nil {
		return fmt.Errorf("requeue %s mutation %s: %w", m.Kind, m.ID, err)
	}
	return nil
}
