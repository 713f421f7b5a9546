package streaming

import (
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// maxResolutionRequest is the most bytes read from a stream request.
const maxResolutionRequest = 127

// acceptBackoff is slept after a failed accept on a live listener.
const acceptBackoff = 50 * time.Millisecond

// Admitter turns stream requests into queued sessions.
type Admitter struct {
	queue    *Queue
	registry Registry
	observer Observer
	log      *slog.Logger

	// requestTimeout bounds the wait for a TCP client's resolution name;
	// zero waits indefinitely.
	requestTimeout time.Duration

	mu      sync.Mutex
	pending net.Conn
	closed  bool
}

// NewAdmitter returns an Admitter feeding queue. registry and observer may
// be nil.
func NewAdmitter(queue *Queue, registry Registry, observer Observer, log *slog.Logger) *Admitter {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Admitter{queue: queue, registry: registry, observer: observer, log: log}
}

// Admit enqueues sess. When the queue is closed the session is dropped and
// its TCP conn closed.
func (a *Admitter) Admit(sess *Session) error {
	if a.registry != nil {
		a.registry.Track(sess.info(StateQueued))
	}
	if err := a.queue.Push(sess); err != nil {
		if sess.Conn != nil {
			_ = sess.Conn.Close()
		}
		if a.registry != nil {
			_ = a.registry.Update(sess.info(StateAborted))
		}
		return err
	}

	a.observer.SessionAdmitted(string(sess.Mode))
	a.log.Info("session admitted",
		slog.String("session_id", string(sess.ID)),
		slog.String("transport", string(sess.Mode)),
		slog.String("resolution", string(sess.Resolution)),
		slog.String("destination", sess.destination()),
		slog.Int("budget", sess.Budget))
	return nil
}

// Close drops the TCP connection whose request is being read, if any, so a
// silent client cannot hold ServeTCP once its listener is closed.
func (a *Admitter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.pending != nil {
		_ = a.pending.Close()
	}
}

// setPending records conn as the request being read. It reports false once
// the admitter is closed.
func (a *Admitter) setPending(conn net.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	a.pending = conn
	return true
}

func (a *Admitter) clearPending() {
	a.mu.Lock()
	a.pending = nil
	a.mu.Unlock()
}

// ServeTCP accepts stream connections on ln until ln is closed. Each
// connection sends its resolution name once and then only receives.
func (a *Admitter) ServeTCP(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			a.log.Warn("tcp stream accept failed", slog.String("error", err.Error()))
			time.Sleep(acceptBackoff)
			continue
		}
		a.admitTCP(conn)
	}
}

func (a *Admitter) admitTCP(conn net.Conn) {
	if !a.setPending(conn) {
		_ = conn.Close()
		return
	}
	if a.requestTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(a.requestTimeout))
	}
	buf := make([]byte, maxResolutionRequest)
	n, err := conn.Read(buf)
	a.clearPending()
	if err == nil {
		// Streams only write from here on; no deadline applies.
		_ = conn.SetReadDeadline(time.Time{})
	}
	if err != nil || n == 0 {
		a.log.Warn("tcp stream request read failed",
			slog.String("remote_addr", conn.RemoteAddr().String()),
			slog.Any("error", err))
		_ = conn.Close()
		return
	}

	sess := NewTCPSession(conn, requestedResolution(buf[:n]))
	if err := a.Admit(sess); err != nil {
		a.log.Info("tcp session dropped",
			slog.String("session_id", string(sess.ID)),
			slog.String("error", err.Error()))
	}
}

// ServeUDP reads stream requests from pc until pc is closed. Every datagram
// admits a session streaming back to its sender.
func (a *Admitter) ServeUDP(pc net.PacketConn) error {
	buf := make([]byte, maxResolutionRequest+1)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			a.log.Warn("udp stream read failed", slog.String("error", err.Error()))
			time.Sleep(acceptBackoff)
			continue
		}
		if n == 0 {
			continue
		}

		sess := NewUDPSession(addr, requestedResolution(buf[:min(n, maxResolutionRequest)]))
		if err := a.Admit(sess); err != nil {
			a.log.Info("udp session dropped",
				slog.String("session_id", string(sess.ID)),
				slog.String("error", err.Error()))
		}
	}
}

// ServeNegotiation accepts negotiation connections on ln until ln is closed,
// handling each on its own goroutine. It waits for running handlers before
// returning.
func ServeNegotiation(ln net.Listener, n *Negotiator, log *slog.Logger) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("negotiation accept failed", slog.String("error", err.Error()))
			time.Sleep(acceptBackoff)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Handle(conn)
		}()
	}
}

func requestedResolution(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}
