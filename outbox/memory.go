package outbox

import (
	"context"
	"sync"
)

// MemoryQueue - unbounded in-process queue. Pending mutations are lost on restart
type MemoryQueue struct {
	mu      sync.Mutex
	items   []Mutation
	closed  bool
	notify  chan struct{}
	closeCh chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		notify:  make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, m Mutation) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) Consume(ctx context.Context, handle Handler) error {
	for {
		m, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.closeCh:
				return nil
			case <-q.notify:
				continue
			}
		}
		if err := handle(ctx, m); err != nil {
			// keep the mutation for the next consumer
			q.pushFront(m)
			return err
		}
	}
}

// Len - number of mutations waiting to be consumed
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.closeCh)
	}
	return nil
}

func (q *MemoryQueue) pop() (Mutation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Mutation{}, false
	}
	m := q.items[0]
	q.items = q.items[1:]
	return m, true
}

func (q *MemoryQueue) pushFront(m Mutation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]Mutation{m}, q.items...)
}
