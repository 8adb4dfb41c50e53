package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

// nopCloser is a no-op Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// queue is the buffered pipeline shared by an AsyncHandler and all of its
// WithAttrs/WithGroup derivatives. Each entry carries the handler it was
// enqueued through, so derived attributes survive the hop to the drain
// goroutine.
type queue struct {
	ch      chan entry
	wg      sync.WaitGroup
	dropped atomic.Int64
}

type entry struct {
	sink slog.Handler
	rec  slog.Record
}

func (q *queue) drain() {
	defer q.wg.Done()
	for e := range q.ch {
		_ = e.sink.Handle(context.Background(), e.rec)
	}
}

// AsyncHandler decouples log emission from log output: Handle enqueues onto
// the shared queue and returns immediately. A full queue drops the record
// and counts the drop rather than blocking the request path.
type AsyncHandler struct {
	inner slog.Handler
	q     *queue
}

// NewAsyncHandler creates an AsyncHandler with the given queue capacity and
// number of drain workers.
func NewAsyncHandler(inner slog.Handler, capacity, workers int) *AsyncHandler {
	q := &queue{ch: make(chan entry, capacity)}
	for range workers {
		q.wg.Add(1)
		go q.drain()
	}
	return &AsyncHandler{inner: inner, q: q}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it when the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.q.ch <- entry{sink: h.inner, rec: rec}:
	default:
		h.q.dropped.Add(1)
	}
	return nil
}

// WithAttrs derives a handler that shares the queue but writes through an
// attribute-carrying inner handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), q: h.q}
}

// WithGroup derives a handler that shares the queue.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), q: h.q}
}

// DroppedCount returns how many records were dropped on a full queue.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.q.dropped.Load()
}

// Close stops intake and waits for the drain workers to flush the queue.
func (h *AsyncHandler) Close() {
	close(h.q.ch)
	h.q.wg.Wait()
}
