// Package wslistener implements command.MessageSender over
// fasthttp/websocket, generalizing the teacher's single-writer-goroutine
// writeQueue idiom (pkg/protocol/ws/client.go's r.writeQueue and its
// consuming goroutine) from an outbound relay-client connection to an
// inbound server connection, and splitting the queue in two so that OK
// responses and historical replay events never wait behind the ordinary
// backpressure queue (spec §5).
package wslistener

import (
	"sync"

	"github.com/fasthttp/websocket"

	"orly.dev/relaycore/internal/chk"
	"orly.dev/relaycore/internal/context"
	"orly.dev/relaycore/internal/logx"
	"orly.dev/relaycore/pkg/nostrcore/envelope"
	"orly.dev/relaycore/pkg/relay/command"
)

var log = logx.Component("wslistener")

// DefaultQueueCapacity bounds the ordinary outbound queue.
const DefaultQueueCapacity = 256

// bypassQueueCapacity bounds the small priority queue SendBypass (OK
// responses and historical replay events) uses.
const bypassQueueCapacity = 64

// Conn wraps one client websocket connection as a command.MessageSender.
// The zero value is not usable; construct with New.
type Conn struct {
	id string
	ws *websocket.Conn

	writeMu sync.Mutex

	out    chan []byte
	bypass chan []byte
	done   chan struct{}
	once   sync.Once
}

// New wraps ws, starting its dedicated writer goroutine bound to ctx's
// cancellation. queueCapacity <= 0 falls back to DefaultQueueCapacity.
func New(ctx context.T, id string, ws *websocket.Conn, queueCapacity int) *Conn {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	c := &Conn{
		id:     id,
		ws:     ws,
		out:    make(chan []byte, queueCapacity),
		bypass: make(chan []byte, bypassQueueCapacity),
		done:   make(chan struct{}),
	}
	go c.writer(ctx)
	return c
}

// writer is the sole goroutine that calls ws.WriteMessage, matching the
// teacher's single-writer-queue idiom so concurrent Send/SendBypass callers
// never race on the underlying connection. Bypass messages are drained
// ahead of ordinary ones.
func (c *Conn) writer(ctx context.T) {
	defer c.ws.Close()
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			c.Close()
			return
		case b := <-c.bypass:
			c.write(b)
			continue
		default:
		}
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			c.Close()
			return
		case b := <-c.bypass:
			c.write(b)
		case b := <-c.out:
			c.write(b)
		}
	}
}

func (c *Conn) write(b []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, b); chk.E(err) {
		c.Close()
	}
}

// Send implements command.MessageSender's ordinary, backpressure-counted
// path: non-blocking, fails if the queue is full or the connection closed.
func (c *Conn) Send(m envelope.RelayMessage) bool {
	b, err := m.Marshal()
	if chk.E(err) {
		return false
	}
	select {
	case c.out <- b:
		return true
	case <-c.done:
		return false
	default:
		log.Warn().Str("conn", c.id).Msg("outbound queue full, dropping connection")
		c.Close()
		return false
	}
}

// SendBypass implements command.MessageSender's backpressure-exempt path
// used for OK responses and historical replay events during pagination:
// it never waits behind an ordinary-queue backlog, and when the small bypass
// queue itself is full it waits for the writer to drain it rather than
// failing. It fails only if the connection is gone. EOSE and live
// distribution use the ordinary Send path instead (spec §4.5).
func (c *Conn) SendBypass(m envelope.RelayMessage) bool {
	b, err := m.Marshal()
	if chk.E(err) {
		return false
	}
	select {
	case c.bypass <- b:
		return true
	case <-c.done:
		return false
	}
}

// Close idempotently tears down the connection's writer goroutine.
func (c *Conn) Close() {
	c.once.Do(func() { close(c.done) })
}

var _ command.MessageSender = (*Conn)(nil)
