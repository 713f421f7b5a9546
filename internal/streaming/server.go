package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// DefaultBasePort is the negotiation port; the TCP and UDP stream ports
// follow it.
const DefaultBasePort = 9000

// Config is the server's startup configuration.
type Config struct {
	// Host is the bind address; empty binds all interfaces.
	Host string
	// BasePort is the negotiation port B. Streams use B+1 (TCP) and B+2 (UDP).
	BasePort  int
	Scheduler SchedulerConfig
	// DeliveryRate is the UDP delivery probability, used when Loss is nil.
	DeliveryRate float64
	// Loss overrides the random UDP loss model.
	Loss LossModel
	// NegotiationTimeout bounds how long a client may stay silent before
	// sending its negotiation request or stream request; zero means
	// DefaultNegotiationTimeout.
	NegotiationTimeout time.Duration
}

// Listeners are the three bound server sockets.
type Listeners struct {
	Negotiation net.Listener
	Stream      net.Listener
	Datagram    net.PacketConn
}

// Ports returns the stream ports the listeners are actually bound to.
func (l Listeners) Ports() Ports {
	var p Ports
	if a, ok := l.Stream.Addr().(*net.TCPAddr); ok {
		p.TCP = a.Port
	}
	if a, ok := l.Datagram.LocalAddr().(*net.UDPAddr); ok {
		p.UDP = a.Port
	}
	return p
}

// Close closes every listener and returns the first error.
func (l Listeners) Close() error {
	var errs []error
	if l.Negotiation != nil {
		errs = append(errs, ignoreClosed(l.Negotiation.Close()))
	}
	if l.Stream != nil {
		errs = append(errs, ignoreClosed(l.Stream.Close()))
	}
	if l.Datagram != nil {
		errs = append(errs, ignoreClosed(l.Datagram.Close()))
	}
	return errors.Join(errs...)
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Listen binds the negotiation port B, the TCP stream port B+1 and the UDP
// stream port B+2. Any bind failure closes what was already bound.
func Listen(ctx context.Context, host string, base int) (Listeners, error) {
	lc := net.ListenConfig{Control: reuseAddr}

	var ls Listeners
	var err error
	if ls.Negotiation, err = lc.Listen(ctx, "tcp", joinHostPort(host, base)); err != nil {
		return Listeners{}, fmt.Errorf("listen negotiation port %d: %w", base, err)
	}
	if ls.Stream, err = lc.Listen(ctx, "tcp", joinHostPort(host, base+1)); err != nil {
		_ = ls.Close()
		return Listeners{}, fmt.Errorf("listen tcp stream port %d: %w", base+1, err)
	}
	if ls.Datagram, err = lc.ListenPacket(ctx, "udp", joinHostPort(host, base+2)); err != nil {
		_ = ls.Close()
		return Listeners{}, fmt.Errorf("listen udp stream port %d: %w", base+2, err)
	}
	return ls, nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// reuseAddr sets SO_REUSEADDR so a restarted server can rebind immediately.
func reuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Server wires the admission loops, the negotiator and the scheduler around
// one session queue.
type Server struct {
	cfg        Config
	listeners  Listeners
	queue      *Queue
	registry   *InMemoryRegistry
	scheduler  *Scheduler
	admitter   *Admitter
	negotiator *Negotiator
	log        *slog.Logger
}

// NewServer builds a server on already bound listeners. observer may be nil.
func NewServer(cfg Config, ls Listeners, log *slog.Logger, observer Observer) *Server {
	if observer == nil {
		observer = nopObserver{}
	}
	loss := cfg.Loss
	if loss == nil {
		loss = NewRandomLoss(cfg.DeliveryRate, 0)
	}

	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = DefaultNegotiationTimeout
	}

	queue := NewQueue()
	registry := NewInMemoryRegistry()
	admitter := NewAdmitter(queue, registry, observer, log)
	admitter.requestTimeout = cfg.NegotiationTimeout
	return &Server{
		cfg:       cfg,
		listeners: ls,
		queue:     queue,
		registry:  registry,
		scheduler: NewScheduler(cfg.Scheduler, queue, ls.Datagram,
			WithLossModel(loss),
			WithRegistry(registry),
			WithObserver(observer),
			WithLogger(log)),
		admitter:   admitter,
		negotiator: NewNegotiator(ls.Ports(), cfg.NegotiationTimeout, log, observer),
		log:        log,
	}
}

// Serve runs every loop until ctx is cancelled or one of them fails, then
// closes the listeners and waits for all loops to return.
func (s *Server) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		err := s.listeners.Close()
		s.admitter.Close()
		return err
	})
	g.Go(func() error {
		return s.scheduler.Run(gctx)
	})
	g.Go(func() error {
		return ServeNegotiation(s.listeners.Negotiation, s.negotiator, s.log)
	})
	g.Go(func() error {
		return s.admitter.ServeTCP(s.listeners.Stream)
	})
	g.Go(func() error {
		return s.admitter.ServeUDP(s.listeners.Datagram)
	})

	ports := s.listeners.Ports()
	s.log.Info("server listening",
		slog.String("negotiation_addr", s.listeners.Negotiation.Addr().String()),
		slog.Int("tcp_port", ports.TCP),
		slog.Int("udp_port", ports.UDP),
		slog.String("policy", string(s.scheduler.Config().Policy)))

	return g.Wait()
}

// Queue returns the session queue.
func (s *Server) Queue() *Queue { return s.queue }

// Registry returns the session registry.
func (s *Server) Registry() Registry { return s.registry }

// Scheduler returns the scheduler.
func (s *Server) Scheduler() *Scheduler { return s.scheduler }
