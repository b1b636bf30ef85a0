// Package pipeline implements the blocking bounded queue and worker-pool
// shutdown pattern shared by the DF counter, reference index builder, and
// scorer (spec.md §4.7): a single producer pushes batches onto a queue of
// capacity `workers * 32`; a fixed pool of workers pops them. Push blocks
// when full (back-pressure upstream), Pop blocks when empty. Shutdown is a
// closed channel, Go's idiomatic equivalent of pushing one poison pill per
// worker — every worker's range loop observes the close and exits once the
// queue drains, with no lost work.
package pipeline

import "context"

// Recorder receives back-pressure instrumentation: an Overflow event is a
// producer blocking because the queue was full, an Underflow event is a
// consumer blocking because the queue was empty. Implementations must be
// safe for concurrent use. A nil Recorder is valid and simply discards
// events.
type Recorder interface {
	Overflow(queue string)
	Underflow(queue string)
}

// Queue is a generic blocking bounded queue of batches, each element an
// owning handle to one batch (spec.md §4.7).
type Queue[T any] struct {
	ch       chan T
	name     string
	recorder Recorder
}

// NewQueue creates a queue of the given capacity. name identifies the
// queue in Recorder events (e.g. "df-counting", "refindex-build",
// "scorer"). recorder may be nil.
func NewQueue[T any](capacity int, name string, recorder Recorder) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity), name: name, recorder: recorder}
}

// Push hands a batch to the queue, blocking while it is full. It returns
// ctx.Err() if ctx is canceled before the push completes.
func (q *Queue[T]) Push(ctx context.Context, batch T) error {
	select {
	case q.ch <- batch:
		return nil
	default:
	}
	if q.recorder != nil {
		q.recorder.Overflow(q.name)
	}
	select {
	case q.ch <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop removes a batch from the queue, blocking while it is empty. ok is
// false once Close has been called and every pushed batch has been
// drained.
func (q *Queue[T]) Pop(ctx context.Context) (batch T, ok bool) {
	select {
	case batch, ok = <-q.ch:
		return batch, ok
	default:
	}
	if q.recorder != nil {
		q.recorder.Underflow(q.name)
	}
	select {
	case batch, ok = <-q.ch:
		return batch, ok
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// Range calls fn for every batch popped from the queue until the queue is
// closed and drained or ctx is canceled. It mirrors the channel `range`
// idiom a worker would otherwise write by hand against the raw channel.
func (q *Queue[T]) Range(ctx context.Context, fn func(T) error) error {
	for {
		batch, ok := q.Pop(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
}

// Close signals that no further batches will be pushed. Workers ranging
// over the queue exit once every already-pushed batch has been popped.
func (q *Queue[T]) Close() {
	close(q.ch)
}
