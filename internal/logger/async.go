package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes and stops a handler that buffers records.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler decouples log emission from the slow sink behind it. Records
// go into a bounded queue serviced by worker goroutines; when the queue is
// full the record is dropped rather than stalling the caller.
type AsyncHandler struct {
	sink    slog.Handler
	queue   chan slog.Record
	workers *sync.WaitGroup
	dropped *atomic.Int64
}

// NewAsyncHandler wraps sink with a queue of the given capacity and starts
// the worker goroutines.
func NewAsyncHandler(sink slog.Handler, capacity, workers int) *AsyncHandler {
	h := &AsyncHandler{
		sink:    sink,
		queue:   make(chan slog.Record, capacity),
		workers: &sync.WaitGroup{},
		dropped: &atomic.Int64{},
	}
	for range workers {
		h.workers.Add(1)
		go func() {
			defer h.workers.Done()
			for rec := range h.queue {
				_ = h.sink.Handle(context.Background(), rec)
			}
		}()
	}
	return h
}

// Enabled asks the sink.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.sink.Enabled(ctx, level)
}

// Handle queues the record without blocking, counting it as dropped when
// the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.queue <- rec:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs derives a handler over the attributed sink. The queue, workers
// and drop counter are shared with the parent.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(h.sink.WithAttrs(attrs))
}

// WithGroup derives a handler over the grouped sink, sharing the queue.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return h.derive(h.sink.WithGroup(name))
}

func (h *AsyncHandler) derive(sink slog.Handler) *AsyncHandler {
	return &AsyncHandler{
		sink:    sink,
		queue:   h.queue,
		workers: h.workers,
		dropped: h.dropped,
	}
}

// DroppedCount reports how many records were discarded on a full queue.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close stops intake and blocks until the workers have flushed the queue.
func (h *AsyncHandler) Close() {
	close(h.queue)
	h.workers.Wait()
}
