package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultEnqueueTimeout = 2 * time.Second

// Queue decouples a slow subscriber (network I/O) from Emit: events are
// buffered and handed to the handler on the queue's own goroutine.
type Queue struct {
	name    string
	events  chan Event
	handler EventHandler
	timeout time.Duration
	logger  *slog.Logger

	done     chan struct{} // closed on Close or when Run's context ends
	stopOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewQueue creates a Queue with the given buffer size (100 if <= 0).
func NewQueue(name string, size int, handler EventHandler, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		name:    name,
		events:  make(chan Event, size),
		handler: handler,
		timeout: defaultEnqueueTimeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Enqueue buffers an event. When the buffer is full it waits up to the
// enqueue timeout before dropping the event; once the queue is stopping it
// drops without waiting. It is an EventHandler.
func (q *Queue) Enqueue(e Event) {
	select {
	case <-q.done:
		q.logger.Warn("event dropped: queue stopped", "queue", q.name, "event", e.Type)
		return
	default:
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.logger.Warn("event dropped: queue closed", "queue", q.name, "event", e.Type)
		return
	}

	select {
	case q.events <- e:
	default:
		q.logger.Warn("queue full, waiting", "queue", q.name, "event", e.Type)
		timer := time.NewTimer(q.timeout)
		defer timer.Stop()
		select {
		case q.events <- e:
		case <-timer.C:
			q.logger.Error("event dropped: queue full", "queue", q.name, "event", e.Type, "timeout", q.timeout)
		case <-q.done:
			q.logger.Warn("event dropped: queue stopped", "queue", q.name, "event", e.Type)
		}
	}
}

// Run delivers buffered events until ctx is done or the queue is closed and drained.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.stop()
			return
		case e, ok := <-q.events:
			if !ok {
				return
			}
			q.handle(e)
		}
	}
}

func (q *Queue) handle(e Event) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queue handler panic", "queue", q.name, "event", e.Type, "panic", r)
		}
	}()
	q.handler(e)
}

// Len returns the number of buffered events.
func (q *Queue) Len() int { return len(q.events) }

// Close stops accepting events; Run returns once the buffer is drained.
// Enqueue calls blocked on a full buffer give up immediately.
func (q *Queue) Close() {
	q.stop()
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
}

func (q *Queue) stop() {
	q.stopOnce.Do(func() { close(q.done) })
}
