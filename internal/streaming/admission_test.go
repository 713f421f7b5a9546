package streaming

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func TestAdmitter_admit_after_close(t *testing.T) {
	q := NewQueue()
	reg := NewInMemoryRegistry()
	obs := &countingObserver{}
	a := NewAdmitter(q, reg, obs, testLogger())
	q.Close()

	c := &recordingConn{}
	s := NewTCPSession(c, "720p")
	if err := a.Admit(s); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Admit: got %v, want ErrQueueClosed", err)
	}
	if !c.isClosed() {
		t.Error("conn of a dropped session must be closed")
	}
	if info, _ := reg.Get(s.ID); info.State != StateAborted {
		t.Errorf("state = %s, want aborted", info.State)
	}
	if obs.admitted != 0 {
		t.Error("dropped session counted as admitted")
	}
}

func TestRequestedResolution(t *testing.T) {
	for in, want := range map[string]string{
		"480p":         "480p",
		"720p\x00\x00": "720p",
		"":             "",
	} {
		if got := requestedResolution([]byte(in)); got != want {
			t.Errorf("requestedResolution(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAdmitter_ServeTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	q := NewQueue()
	a := NewAdmitter(q, nil, nil, testLogger())
	done := make(chan error, 1)
	go func() { done <- a.ServeTCP(ln) }()

	// A client that hangs up without a request is not admitted.
	quiet, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	quiet.Close()

	c, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Write([]byte("480p")); err != nil {
		t.Fatal(err)
	}

	s, err := q.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if s.Mode != ModeTCP || s.Resolution != Res480p || s.Budget != 50 {
		t.Errorf("session = %+v", s)
	}
	if q.Len() != 0 {
		t.Errorf("queue length = %d, want 0", q.Len())
	}

	ln.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeTCP: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ServeTCP did not return after close")
	}
}

func TestAdmitter_ServeUDP(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	q := NewQueue()
	a := NewAdmitter(q, nil, nil, testLogger())
	done := make(chan error, 1)
	go func() { done <- a.ServeUDP(pc) }()

	c, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.WriteTo([]byte("8K"), pc.LocalAddr()); err != nil {
		t.Fatal(err)
	}

	s, err := q.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if s.Mode != ModeUDP || s.Resolution != Res1080p || s.Budget != 150 {
		t.Errorf("session = %+v", s)
	}
	if s.Addr.String() != c.LocalAddr().String() {
		t.Errorf("addr = %s, want %s", s.Addr, c.LocalAddr())
	}

	pc.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeUDP: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ServeUDP did not return after close")
	}
}

func TestAdmitter_ServeTCP_silent_client_times_out(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	q := NewQueue()
	a := NewAdmitter(q, nil, nil, testLogger())
	a.requestTimeout = 50 * time.Millisecond
	go a.ServeTCP(ln)

	silent, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer silent.Close()
	_ = silent.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := silent.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("silent client read: got %v, want EOF", err)
	}

	// The next client is still admitted.
	c, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Write([]byte("720p")); err != nil {
		t.Fatal(err)
	}
	s, err := q.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if s.Resolution != Res720p {
		t.Errorf("resolution = %s, want 720p", s.Resolution)
	}
}

func (a *Admitter) hasPending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}

func TestAdmitter_Close_drops_pending_request(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	q := NewQueue()
	a := NewAdmitter(q, nil, nil, testLogger())
	done := make(chan error, 1)
	go func() { done <- a.ServeTCP(ln) }()

	silent, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer silent.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !a.hasPending() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	ln.Close()
	a.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeTCP: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ServeTCP still reading a silent client after Close")
	}
	if q.Len() != 0 {
		t.Errorf("queue length = %d, want 0", q.Len())
	}
}

func TestAdmitter_Close_rejects_later_conn(t *testing.T) {
	a := NewAdmitter(NewQueue(), nil, nil, testLogger())
	a.Close()

	server, client := net.Pipe()
	defer client.Close()
	a.admitTCP(server)
	if _, err := client.Write([]byte("480p")); err == nil {
		t.Error("conn accepted after Close should be closed")
	}
}

// flakyPacketConn fails its first read, then reports itself closed.
type flakyPacketConn struct {
	net.PacketConn
	reads int
}

func (c *flakyPacketConn) ReadFrom([]byte) (int, net.Addr, error) {
	c.reads++
	if c.reads == 1 {
		return 0, nil, errors.New("connection refused")
	}
	return 0, nil, net.ErrClosed
}

func TestAdmitter_ServeUDP_backs_off_after_read_error(t *testing.T) {
	pc := &flakyPacketConn{}
	a := NewAdmitter(NewQueue(), nil, nil, testLogger())

	start := time.Now()
	if err := a.ServeUDP(pc); err != nil {
		t.Fatalf("ServeUDP: %v", err)
	}
	if elapsed := time.Since(start); elapsed < acceptBackoff {
		t.Errorf("returned after %s, want at least %s of backoff", elapsed, acceptBackoff)
	}
	if pc.reads != 2 {
		t.Errorf("reads = %d, want 2", pc.reads)
	}
}
