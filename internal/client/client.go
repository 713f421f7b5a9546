// Package client implements the streaming client: resolution negotiation,
// stream reception over TCP or UDP, and the performance report written after
// each run.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"video-streamer/internal/wire"
)

// DefaultUDPTimeout is how long a UDP stream may stay silent before the
// client assumes it has ended.
const DefaultUDPTimeout = 10 * time.Second

// ErrNegotiationRejected is returned when the server reply is not an OK.
var ErrNegotiationRejected = errors.New("negotiation rejected")

// Mode is the stream transport.
type Mode string

const (
	ModeTCP Mode = "TCP"
	ModeUDP Mode = "UDP"
)

// ParseMode accepts "TCP" or "UDP" in any case.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToUpper(s)); m {
	case ModeTCP, ModeUDP:
		return m, nil
	}
	return "", fmt.Errorf("unknown transport %q", s)
}

// Reply is a parsed negotiation acknowledgement.
type Reply struct {
	Text       string
	Resolution string
	TCPPort    int
	UDPPort    int
}

// ParseReply parses "OK RES=<res> TCP=<port> UDP=<port>". Fields other than
// the leading OK are optional; missing ports are zero.
func ParseReply(text string) (Reply, error) {
	r := Reply{Text: text}
	fields := strings.Fields(text)
	if len(fields) == 0 || fields[0] != "OK" {
		return r, fmt.Errorf("%w: %q", ErrNegotiationRejected, text)
	}
	for _, f := range fields[1:] {
		key, val, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		switch key {
		case "RES":
			r.Resolution = val
		case "TCP", "UDP":
			port, err := strconv.Atoi(val)
			if err != nil {
				return r, fmt.Errorf("parse %s port %q: %w", key, val, err)
			}
			if key == "TCP" {
				r.TCPPort = port
			} else {
				r.UDPPort = port
			}
		}
	}
	return r, nil
}

// Client talks to one streaming server.
type Client struct {
	host       string
	basePort   int
	udpTimeout time.Duration
	log        *slog.Logger
	dialer     net.Dialer
}

// New returns a client for the server whose negotiation port is basePort.
// udpTimeout <= 0 uses DefaultUDPTimeout.
func New(host string, basePort int, udpTimeout time.Duration, log *slog.Logger) *Client {
	if udpTimeout <= 0 {
		udpTimeout = DefaultUDPTimeout
	}
	return &Client{host: host, basePort: basePort, udpTimeout: udpTimeout, log: log}
}

func (c *Client) addr(port int) string {
	return net.JoinHostPort(c.host, strconv.Itoa(port))
}

// Negotiate sends one resolution request on the base port and returns the
// parsed reply.
func (c *Client) Negotiate(ctx context.Context, resolution string) (Reply, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr(c.basePort))
	if err != nil {
		return Reply{}, fmt.Errorf("dial negotiation: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := wire.WriteControlMessage(conn, wire.NewRequest(resolution)); err != nil {
		return Reply{}, fmt.Errorf("send negotiation: %w", err)
	}
	msg, err := wire.ReadControlMessage(conn)
	if err != nil {
		return Reply{}, fmt.Errorf("receive negotiation: %w", err)
	}
	c.log.Debug("negotiation reply", slog.String("reply", msg.Text()))
	return ParseReply(msg.Text())
}

// Stats are the raw counters of one received stream.
type Stats struct {
	Mode       Mode
	Resolution string
	Packets    int
	Bytes      int64
	HighestSeq int32
	Start      time.Time
	// FirstPacket is zero when nothing arrived.
	FirstPacket time.Time
	End         time.Time
	// Ended is set when a UDP stream closed with the end-of-stream sentinel
	// rather than a receive timeout.
	Ended bool
}

func (s *Stats) record(p wire.StreamPacket, n int, now time.Time) {
	if s.Packets == 0 {
		s.FirstPacket = now
	}
	s.Packets++
	s.Bytes += int64(n)
	s.HighestSeq = max(s.HighestSeq, p.Seq)
}

// StreamTCP opens a TCP stream on port and reads packets until the server
// closes the connection.
func (c *Client) StreamTCP(ctx context.Context, port int, resolution string) (Stats, error) {
	st := Stats{Mode: ModeTCP, Resolution: resolution, Start: time.Now()}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr(port))
	if err != nil {
		return st, fmt.Errorf("dial tcp stream: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := io.WriteString(conn, resolution); err != nil {
		return st, fmt.Errorf("send tcp stream request: %w", err)
	}

	for {
		p, err := wire.ReadStreamPacket(conn)
		if err != nil {
			st.End = time.Now()
			if errors.Is(err, io.EOF) {
				return st, nil
			}
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			return st, fmt.Errorf("receive tcp packet: %w", err)
		}
		st.record(p, wire.StreamPacketSize, time.Now())
		c.log.Debug("packet received",
			slog.String("transport", string(ModeTCP)),
			slog.Int("seq", int(p.Seq)),
			slog.String("payload", p.PayloadText()))
	}
}

// StreamUDP sends the resolution to port and receives datagrams until the
// end-of-stream sentinel arrives or the stream stays silent for the UDP
// timeout.
func (c *Client) StreamUDP(ctx context.Context, port int, resolution string) (Stats, error) {
	st := Stats{Mode: ModeUDP, Resolution: resolution, Start: time.Now()}

	server, err := net.ResolveUDPAddr("udp", c.addr(port))
	if err != nil {
		return st, fmt.Errorf("resolve udp stream: %w", err)
	}
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", ":0")
	if err != nil {
		return st, fmt.Errorf("open udp socket: %w", err)
	}
	defer pc.Close()
	stop := context.AfterFunc(ctx, func() { pc.Close() })
	defer stop()

	if _, err := pc.WriteTo([]byte(resolution), server); err != nil {
		return st, fmt.Errorf("send udp stream request: %w", err)
	}

	buf := make([]byte, wire.StreamPacketSize)
	for {
		_ = pc.SetReadDeadline(time.Now().Add(c.udpTimeout))
		n, _, err := pc.ReadFrom(buf)
		now := time.Now()
		if err != nil {
			st.End = now
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				c.log.Info("udp receive timeout, assuming end of stream",
					slog.Duration("timeout", c.udpTimeout))
				return st, nil
			}
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			return st, fmt.Errorf("receive udp packet: %w", err)
		}
		if n < wire.StreamPacketSize {
			c.log.Warn("short udp datagram", slog.Int("bytes", n))
			continue
		}

		p, err := wire.DecodeStreamPacket(buf[:n])
		if err != nil {
			c.log.Warn("undecodable udp datagram", slog.String("error", err.Error()))
			continue
		}
		if p.IsEndOfStream() {
			if st.Packets == 0 {
				st.FirstPacket = now
			}
			st.End = now
			st.Ended = true
			c.log.Info("udp stream ended by server")
			return st, nil
		}
		st.record(p, n, now)
		c.log.Debug("packet received",
			slog.String("transport", string(ModeUDP)),
			slog.Int("seq", int(p.Seq)),
			slog.String("payload", p.PayloadText()))
	}
}

// Stream runs the stream for mode, using the ports from reply and falling
// back to base+1 and base+2 when the reply names none.
func (c *Client) Stream(ctx context.Context, mode Mode, resolution string, reply Reply) (Stats, error) {
	switch mode {
	case ModeTCP:
		port := reply.TCPPort
		if port == 0 {
			port = c.basePort + 1
		}
		return c.StreamTCP(ctx, port, resolution)
	case ModeUDP:
		port := reply.UDPPort
		if port == 0 {
			port = c.basePort + 2
		}
		return c.StreamUDP(ctx, port, resolution)
	}
	return Stats{}, fmt.Errorf("unknown transport %q", mode)
}
