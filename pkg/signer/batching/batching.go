// Package batching wraps a pkg/signer.I with a bounded-concurrency
// dispatcher, generalizing the non-blocking bounded-queue idiom the teacher
// uses for its websocket write queue (pkg/protocol/ws/client.go) to the
// signing request path: callers enqueue unsigned events and get back a
// signer.Result channel per request, while a fixed pool of workers drains
// the queue and calls through to the underlying signer.
package batching

import (
	"orly.dev/relaycore/internal/context"
	"orly.dev/relaycore/pkg/nostrcore/event"
	"orly.dev/relaycore/pkg/signer"
)

// DefaultWorkers is the default size of the worker pool.
const DefaultWorkers = 4

// DefaultQueueCapacity bounds how many signing requests may be queued before
// Sign blocks the caller.
const DefaultQueueCapacity = 256

type request struct {
	ctx context.T
	u   *event.UnsignedEvent
	out chan signer.Result
}

// D is a batching dispatcher wrapping an inner signer.I.
type D struct {
	inner signer.I
	queue chan request
	done  chan struct{}
}

// New starts a dispatcher with the given worker count fronting inner. A
// workers or queueCapacity of 0 falls back to the package defaults.
func New(ctx context.T, inner signer.I, workers, queueCapacity int) *D {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	d := &D{
		inner: inner,
		queue: make(chan request, queueCapacity),
		done:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go d.worker(ctx)
	}
	go func() {
		<-ctx.Done()
		close(d.done)
	}()
	return d
}

func (d *D) worker(ctx context.T) {
	for {
		select {
		case req, ok := <-d.queue:
			if !ok {
				return
			}
			inner := d.inner.Sign(req.ctx, req.u)
			res, ok := <-inner
			if ok {
				req.out <- res
			}
			close(req.out)
		case <-d.done:
			return
		}
	}
}

// Pub delegates to the inner signer.
func (d *D) Pub() string { return d.inner.Pub() }

// Sign enqueues a signing request and returns its one-shot result channel.
// If ctx is cancelled before a worker dequeues the request, the channel is
// closed without ever sending, matching signer.I's contract. Once the
// dispatcher's own context has been cancelled, Sign closes the channel
// without enqueueing.
func (d *D) Sign(ctx context.T, u *event.UnsignedEvent) <-chan signer.Result {
	out := make(chan signer.Result, 1)
	select {
	case <-d.done:
		close(out)
		return out
	default:
	}
	req := request{ctx: ctx, u: u, out: out}
	select {
	case d.queue <- req:
	case <-ctx.Done():
		close(out)
	case <-d.done:
		close(out)
	}
	return out
}

// Verify delegates to the inner signer.
func (d *D) Verify(ev *event.E) (bool, error) { return d.inner.Verify(ev) }

var _ signer.I = (*D)(nil)
