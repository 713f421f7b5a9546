package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"video-streamer/internal/platform/logger"
	"video-streamer/internal/wire"
)

const (
	// DefaultQuantum is the RR slice length in packets.
	DefaultQuantum = 10
	// DefaultPacketInterval is the pacing delay after every emitted packet.
	DefaultPacketInterval = 50 * time.Millisecond

	tcpPayload = "VIDEO_PACKET_TCP"
	udpPayload = "VIDEO_PACKET_UDP"
)

var (
	// ErrUnknownPolicy is returned by ParsePolicy for names other than FCFS and RR.
	ErrUnknownPolicy = errors.New("unknown scheduling policy")

	errNoDestination = errors.New("session has no destination")
)

// ParsePolicy maps "FCFS" or "RR" (any case) to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch p := Policy(strings.ToUpper(strings.TrimSpace(name))); p {
	case PolicyFCFS, PolicyRR:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}

// Observer receives admission and dispatch events, typically to export
// metrics. *metrics.Metrics implements it.
type Observer interface {
	Negotiated(resolution string)
	SessionAdmitted(transport string)
	SessionRetired(transport string, streamed time.Duration)
	PacketSent(transport string)
	PacketDropped(transport string)
	WriteFailed(transport string)
	SliceDispatched(policy string, packets int)
}

type nopObserver struct{}

func (nopObserver) Negotiated(string)                    {}
func (nopObserver) SessionAdmitted(string)               {}
func (nopObserver) SessionRetired(string, time.Duration) {}
func (nopObserver) PacketSent(string)                    {}
func (nopObserver) PacketDropped(string)                 {}
func (nopObserver) WriteFailed(string)                   {}
func (nopObserver) SliceDispatched(string, int)          {}

// DatagramSender sends UDP stream packets; net.PacketConn satisfies it.
type DatagramSender interface {
	WriteTo(p []byte, addr net.Addr) (int, error)
}

// SchedulerConfig is the process-wide scheduling policy, fixed at startup.
type SchedulerConfig struct {
	Policy Policy
	// Quantum is the most packets a session gets per RR slice.
	Quantum int
	// PacketInterval is slept after every packet; zero disables pacing.
	PacketInterval time.Duration
}

// Scheduler is the single consumer of the session queue. It dispatches one
// session at a time, so only one stream is ever being emitted.
type Scheduler struct {
	cfg       SchedulerConfig
	queue     *Queue
	datagrams DatagramSender
	loss      LossModel
	registry  Registry
	observer  Observer
	log       *slog.Logger
	sleep     func(time.Duration)
	now       func() time.Time
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLossModel replaces the default 90% delivery model for UDP packets.
func WithLossModel(l LossModel) SchedulerOption {
	return func(s *Scheduler) { s.loss = l }
}

// WithRegistry records session snapshots after every slice.
func WithRegistry(r Registry) SchedulerOption {
	return func(s *Scheduler) { s.registry = r }
}

// WithObserver reports dispatch events to o.
func WithObserver(o Observer) SchedulerOption {
	return func(s *Scheduler) { s.observer = o }
}

// WithLogger sets the scheduler's logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = l }
}

// NewScheduler returns a scheduler draining queue. datagrams is the UDP
// stream socket used for every UDP session; it may be nil when only TCP
// sessions are admitted. An unset policy means FCFS and a non-positive
// quantum means DefaultQuantum.
func NewScheduler(cfg SchedulerConfig, queue *Queue, datagrams DatagramSender, opts ...SchedulerOption) *Scheduler {
	if cfg.Policy == "" {
		cfg.Policy = PolicyFCFS
	}
	if cfg.Quantum <= 0 {
		cfg.Quantum = DefaultQuantum
	}
	s := &Scheduler{
		cfg:       cfg,
		queue:     queue,
		datagrams: datagrams,
		loss:      NewRandomLoss(DefaultDeliveryRate, 0),
		observer:  nopObserver{},
		log:       logger.Discard(),
		sleep:     time.Sleep,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the scheduling policy in effect.
func (s *Scheduler) Config() SchedulerConfig {
	return s.cfg
}

// Run pops and dispatches sessions until ctx is cancelled. Cancellation
// closes the queue; the slice in progress runs to its end, then Run returns.
// Sessions still queued at that point are released without being finished.
func (s *Scheduler) Run(ctx context.Context) error {
	released := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(released)
		for _, sess := range s.queue.Close() {
			s.release(sess)
		}
	})
	defer func() {
		if !stop() {
			<-released
		}
	}()

	s.log.Info("scheduler started",
		slog.String("policy", string(s.cfg.Policy)),
		slog.Int("quantum", s.cfg.Quantum),
		slog.Duration("packet_interval", s.cfg.PacketInterval))

	for {
		sess, err := s.queue.Pop()
		if errors.Is(err, ErrQueueClosed) {
			s.log.Info("scheduler stopped")
			return nil
		}
		if err != nil {
			return err
		}
		s.Dispatch(sess)
	}
}

// Dispatch runs one slice for a session the caller has removed from the
// queue: it emits up to the policy's ceiling, then retires the session or
// appends it back to the queue tail.
func (s *Scheduler) Dispatch(sess *Session) {
	if sess.Sent == 0 && sess.StartedAt.IsZero() {
		sess.StartedAt = s.now()
	}
	s.track(sess, StateDispatching)

	ceiling := s.ceiling(sess)
	emitted := 0
	for sess.Sent < ceiling {
		s.emit(sess, int32(sess.Sent+1))
		sess.Sent++
		emitted++
		if s.cfg.PacketInterval > 0 {
			s.sleep(s.cfg.PacketInterval)
		}
	}
	sess.Slices++
	s.observer.SliceDispatched(string(s.cfg.Policy), emitted)

	if sess.Done() {
		s.retire(sess)
		return
	}

	s.track(sess, StateQueued)
	if err := s.queue.Push(sess); err != nil {
		s.log.Info("session not requeued",
			slog.String("session_id", string(sess.ID)),
			slog.Int("sent", sess.Sent),
			slog.Int("remaining", sess.Remaining()),
			slog.String("error", err.Error()))
		s.release(sess)
	}
}

// ceiling is the packet count the session reaches at the end of this slice.
func (s *Scheduler) ceiling(sess *Session) int {
	if s.cfg.Policy == PolicyRR {
		return min(sess.Sent+s.cfg.Quantum, sess.Budget)
	}
	return sess.Budget
}

func (s *Scheduler) emit(sess *Session, seq int32) {
	transport := string(sess.Mode)
	switch sess.Mode {
	case ModeTCP:
		err := errNoDestination
		if sess.Conn != nil {
			err = wire.WriteStreamPacket(sess.Conn, wire.NewPacket(seq, tcpPayload))
		}
		if err != nil {
			// Best effort: the packet still counts toward the budget.
			sess.writeErrs++
			s.observer.WriteFailed(transport)
			level := slog.LevelDebug
			if sess.writeErrs == 1 {
				level = slog.LevelWarn
			}
			s.log.Log(context.Background(), level, "tcp packet write failed",
				slog.String("session_id", string(sess.ID)),
				slog.Int("seq", int(seq)),
				slog.String("error", err.Error()))
			return
		}
	case ModeUDP:
		if !s.loss.Deliver() {
			s.observer.PacketDropped(transport)
			s.log.Debug("udp packet dropped",
				slog.String("session_id", string(sess.ID)),
				slog.Int("seq", int(seq)))
			return
		}
		if err := s.sendDatagram(sess, wire.NewPacket(seq, udpPayload)); err != nil {
			// Send failures are part of the lossy channel.
			s.observer.PacketDropped(transport)
			s.log.Debug("udp packet send failed",
				slog.String("session_id", string(sess.ID)),
				slog.Int("seq", int(seq)),
				slog.String("error", err.Error()))
			return
		}
	}
	s.observer.PacketSent(transport)
	s.log.Debug("packet sent",
		slog.String("policy", string(s.cfg.Policy)),
		slog.String("session_id", string(sess.ID)),
		slog.String("transport", transport),
		slog.String("resolution", string(sess.Resolution)),
		slog.Int("seq", int(seq)))
}

func (s *Scheduler) sendDatagram(sess *Session, p wire.StreamPacket) error {
	if s.datagrams == nil || sess.Addr == nil {
		return errNoDestination
	}
	_, err := s.datagrams.WriteTo(wire.EncodeStreamPacket(p), sess.Addr)
	return err
}

// retire ends a session that reached its budget: TCP streams are closed and
// UDP streams always get the end-of-stream sentinel.
func (s *Scheduler) retire(sess *Session) {
	streamed := s.now().Sub(sess.StartedAt)
	switch sess.Mode {
	case ModeTCP:
		if sess.Conn != nil {
			if err := sess.Conn.Close(); err != nil {
				s.log.Debug("tcp stream close failed",
					slog.String("session_id", string(sess.ID)),
					slog.String("error", err.Error()))
			}
		}
	case ModeUDP:
		if err := s.sendDatagram(sess, wire.EndOfStream()); err != nil {
			s.log.Warn("udp end of stream send failed",
				slog.String("session_id", string(sess.ID)),
				slog.String("error", err.Error()))
		}
	}

	s.track(sess, StateRetired)
	s.observer.SessionRetired(string(sess.Mode), streamed)
	s.log.Info("stream finished",
		slog.String("session_id", string(sess.ID)),
		slog.String("transport", string(sess.Mode)),
		slog.String("resolution", string(sess.Resolution)),
		slog.Int("packets", sess.Sent),
		slog.Int("slices", sess.Slices),
		slog.Duration("duration", streamed))
}

// release drops a session that will not be finished, closing its TCP conn.
func (s *Scheduler) release(sess *Session) {
	if sess.Mode == ModeTCP && sess.Conn != nil {
		_ = sess.Conn.Close()
	}
	s.track(sess, StateAborted)
	s.log.Info("stream aborted",
		slog.String("session_id", string(sess.ID)),
		slog.String("transport", string(sess.Mode)),
		slog.Int("sent", sess.Sent),
		slog.Int("remaining", sess.Remaining()))
}

func (s *Scheduler) track(sess *Session, state State) {
	if s.registry == nil {
		return
	}
	if err := s.registry.Update(sess.info(state)); err != nil {
		s.log.Debug("registry update failed",
			slog.String("session_id", string(sess.ID)),
			slog.String("error", err.Error()))
	}
}
