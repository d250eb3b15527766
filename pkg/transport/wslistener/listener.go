// listener.go wires an http.Handler-style websocket upgrade and read loop on
// top of Conn, grounded on the teacher's pkg/protocol/socketapi's Upgrader
// and A.Serve (upgrade, read-deadline/pong housekeeping, deferred cleanup)
// generalized to drive this core's coordinator instead of the teacher's
// socketapi dispatch.
package wslistener

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"

	"orly.dev/relaycore/internal/chk"
	"orly.dev/relaycore/internal/context"
	"orly.dev/relaycore/internal/logx"
	"orly.dev/relaycore/pkg/nostrcore/envelope"
	"orly.dev/relaycore/pkg/nostrcore/scope"
	"orly.dev/relaycore/pkg/relay/command"
	"orly.dev/relaycore/pkg/relay/coordinator"
)

var listenerLog = logx.Component("wslistener")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait / 2
	maxMessageSize = 1 << 20
)

// Upgrader is a preconfigured websocket.Upgrader; CheckOrigin is permissive
// because origin policy is a host concern, not this core's.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// CoordinatorFactory builds the Coordinator for a freshly accepted
// connection. The host supplies one so this package stays free of direct
// store/signer/registry construction concerns.
type CoordinatorFactory func(
	ctx context.T, connID string, sender command.MessageSender,
) *coordinator.C

// connSeq gives each accepted connection a short, locally-unique suffix so
// two clients sharing a remote address (proxies, NAT) still get distinct
// ids; grounded on the teacher's use of conn.RemoteAddr() as a connection's
// natural identity (pkg/protocol/ws/listener.go).
var connSeq atomic.Uint64

// Serve upgrades r to a websocket connection, builds its Coordinator via
// factory, and runs the read loop until the connection closes or ctx is
// cancelled. Intended to be called directly from an http.HandlerFunc.
func Serve(
	ctx context.T, w http.ResponseWriter, r *http.Request,
	factory CoordinatorFactory, predicate coordinator.Predicate,
) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if chk.E(err) {
		return
	}

	connID := fmt.Sprintf("%s-%d", conn.NetConn().RemoteAddr().String(), connSeq.Add(1))
	connCtx, cancel := context.Cancel(ctx)
	sender := New(connCtx, connID, conn, DefaultQueueCapacity)
	coord := factory(connCtx, connID, sender)

	defer func() {
		cancel()
		sender.Close()
		coord.Close()
		chk.E(conn.Close())
	}()

	conn.SetReadLimit(maxMessageSize)
	chk.E(conn.SetReadDeadline(time.Now().Add(pongWait)))
	conn.SetPongHandler(func(string) error {
		chk.E(conn.SetReadDeadline(time.Now().Add(pongWait)))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-connCtx.Done():
				return
			case <-ticker.C:
				// WriteControl may run concurrently with the Conn writer
				// goroutine's WriteMessage calls; WriteMessage may not.
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); chk.E(err) {
					cancel()
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			listenerLog.Debug().Str("conn", connID).Err(err).Msg("read loop ended")
			return
		}
		msg, err := envelope.Parse(raw)
		if err != nil {
			sender.Send(&envelope.NoticeMsg{Reason: err.Error()})
			continue
		}
		if msg == nil {
			continue
		}
		dispatch(connCtx, coord, connID, msg, predicate)
	}
}

func dispatch(
	ctx context.T, coord *coordinator.C, connID string, msg envelope.ClientMessage,
	predicate coordinator.Predicate,
) {
	switch m := msg.(type) {
	case *envelope.ReqCmd:
		if err := coord.HandleReq(ctx, m.SubID, m.Filters, predicate); chk.E(err) {
			listenerLog.Debug().Str("conn", connID).Str("sub", m.SubID).Msg("REQ failed")
		}
	case *envelope.CloseCmd:
		coord.RemoveSubscription(m.SubID)
	case *envelope.EventCmd:
		cmd := &command.SaveSigned{Event: m.Event, Scp: scope.Default}
		if err := coord.SaveAndBroadcast(ctx, cmd); chk.T(err) {
			listenerLog.Debug().Str("conn", connID).Str("event", m.Event.ID).Msg("publish failed")
		}
	case *envelope.AuthCmd:
		// NIP-42 style authentication is a host policy concern outside this
		// core (spec §6 "passes through to an auth collaborator not
		// specified here"); nothing to do without one wired in.
	}
}
