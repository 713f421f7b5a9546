package streaming

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"video-streamer/internal/wire"
)

// DefaultNegotiationTimeout bounds how long a negotiation client may stay
// silent before its connection is dropped.
const DefaultNegotiationTimeout = 10 * time.Second

// Ports names the stream ports advertised in negotiation replies.
type Ports struct {
	TCP int
	UDP int
}

// ReplyText formats the acknowledgement sent for res.
func ReplyText(res Resolution, ports Ports) string {
	return fmt.Sprintf("OK RES=%s TCP=%d UDP=%d", res, ports.TCP, ports.UDP)
}

// Negotiator answers resolution requests on the negotiation port. It keeps
// no per-session state.
type Negotiator struct {
	ports    Ports
	timeout  time.Duration
	log      *slog.Logger
	observer Observer
}

// NewNegotiator returns a Negotiator advertising ports. timeout <= 0 disables
// the read deadline. A nil observer is allowed.
func NewNegotiator(ports Ports, timeout time.Duration, log *slog.Logger, observer Observer) *Negotiator {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Negotiator{ports: ports, timeout: timeout, log: log, observer: observer}
}

// Handle reads exactly one request from conn, replies and closes conn. A
// short or failed read aborts this connection only.
func (n *Negotiator) Handle(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	if n.timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(n.timeout))
	}

	req, err := wire.ReadControlMessage(conn)
	if err != nil {
		n.log.Warn("negotiation read failed",
			slog.String("remote_addr", remote),
			slog.String("error", err.Error()))
		return
	}
	if req.Type != wire.TypeRequest {
		n.log.Debug("negotiation request has unexpected type",
			slog.String("remote_addr", remote),
			slog.Int("type", int(req.Type)))
	}

	requested := req.Text()
	res := NegotiatedResolution(requested)
	reply := ReplyText(res, n.ports)
	if err := wire.WriteControlMessage(conn, wire.NewReply(reply)); err != nil {
		n.log.Warn("negotiation reply failed",
			slog.String("remote_addr", remote),
			slog.String("error", err.Error()))
		return
	}

	n.observer.Negotiated(string(res))
	n.log.Info("resolution negotiated",
		slog.String("remote_addr", remote),
		slog.String("requested", requested),
		slog.String("resolution", string(res)))
}
