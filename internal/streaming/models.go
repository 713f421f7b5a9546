package streaming

import (
	"io"
	"net"
	"time"

	"github.com/google/uuid"
)

// SessionID uniquely identifies an admitted stream session.
type SessionID string

// NewSessionID returns a fresh random session ID.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// Mode is the transport a session streams over.
type Mode string

const (
	ModeTCP Mode = "TCP"
	ModeUDP Mode = "UDP"
)

// Policy selects how the scheduler slices dispatch work.
type Policy string

const (
	// PolicyFCFS runs every session to completion in arrival order.
	PolicyFCFS Policy = "FCFS"
	// PolicyRR gives each session at most a quantum of packets per slice.
	PolicyRR Policy = "RR"
)

// State is the lifecycle position of a session.
type State string

const (
	StateQueued      State = "queued"
	StateDispatching State = "dispatching"
	StateRetired     State = "retired"
	// StateAborted marks a session released at shutdown before its budget
	// was reached.
	StateAborted State = "aborted"
)

// Terminal reports whether no further transitions can follow s.
func (s State) Terminal() bool {
	return s == StateRetired || s == StateAborted
}

// Session is one client's negotiated stream. After admission it is owned by
// the queue, then by the scheduler, which alone mutates it.
type Session struct {
	ID         SessionID
	Mode       Mode
	Resolution Resolution

	// Conn is the stream socket of a TCP session.
	Conn io.WriteCloser
	// Addr is the return address of a UDP session.
	Addr net.Addr

	Budget int
	Sent   int
	Slices int

	writeErrs int

	AdmittedAt time.Time
	StartedAt  time.Time
}

// NewTCPSession builds a TCP session streaming on conn. The requested name
// sizes the packet budget.
func NewTCPSession(conn io.WriteCloser, requested string) *Session {
	return newSession(ModeTCP, requested, conn, nil)
}

// NewUDPSession builds a UDP session streaming to addr.
func NewUDPSession(addr net.Addr, requested string) *Session {
	return newSession(ModeUDP, requested, nil, addr)
}

func newSession(mode Mode, requested string, conn io.WriteCloser, addr net.Addr) *Session {
	return &Session{
		ID:         NewSessionID(),
		Mode:       mode,
		Resolution: StreamResolution(requested),
		Conn:       conn,
		Addr:       addr,
		Budget:     PacketBudget(requested),
		AdmittedAt: time.Now().UTC(),
	}
}

// Done reports whether the whole packet budget has been emitted.
func (s *Session) Done() bool {
	return s.Sent >= s.Budget
}

// Remaining returns the number of packets still to emit.
func (s *Session) Remaining() int {
	if s.Done() {
		return 0
	}
	return s.Budget - s.Sent
}

// destination renders the peer for logs.
func (s *Session) destination() string {
	switch {
	case s.Addr != nil:
		return s.Addr.String()
	case s.Conn != nil:
		if c, ok := s.Conn.(net.Conn); ok {
			return c.RemoteAddr().String()
		}
	}
	return ""
}

// SessionInfo is a read-only snapshot of a session for status reporting.
type SessionInfo struct {
	ID          SessionID  `json:"id"`
	Mode        Mode       `json:"mode"`
	Resolution  Resolution `json:"resolution"`
	Destination string     `json:"destination"`
	State       State      `json:"state"`
	Budget      int        `json:"budget"`
	Sent        int        `json:"sent"`
	Slices      int        `json:"slices"`
	AdmittedAt  time.Time  `json:"admitted_at"`
	StartedAt   time.Time  `json:"started_at,omitzero"`
	RetiredAt   time.Time  `json:"retired_at,omitzero"`
}

func (s *Session) info(state State) SessionInfo {
	return SessionInfo{
		ID:          s.ID,
		Mode:        s.Mode,
		Resolution:  s.Resolution,
		Destination: s.destination(),
		State:       state,
		Budget:      s.Budget,
		Sent:        s.Sent,
		Slices:      s.Slices,
		AdmittedAt:  s.AdmittedAt,
		StartedAt:   s.StartedAt,
	}
}
