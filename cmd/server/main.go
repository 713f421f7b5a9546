package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"video-streamer/internal/platform/config"
	"video-streamer/internal/platform/logger"
	"video-streamer/internal/platform/metrics"
	"video-streamer/internal/streaming"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

const usage = "usage: server [port] [FCFS|RR]"

func main() {
	_ = config.Load()

	basePort := config.GetEnvInt("BASE_PORT", streaming.DefaultBasePort)
	policyName := config.GetEnv("SCHED_POLICY", string(streaming.PolicyFCFS))
	host := config.GetEnv("HOST", "")
	quantum := config.GetEnvInt("RR_QUANTUM", streaming.DefaultQuantum)
	interval := config.GetEnvDuration("PACKET_INTERVAL", streaming.DefaultPacketInterval)
	deliveryRate := config.GetEnvFloat("UDP_DELIVERY_RATE", streaming.DefaultDeliveryRate)
	negotiationTimeout := config.GetEnvDuration("NEGOTIATION_TIMEOUT", streaming.DefaultNegotiationTimeout)
	adminPort := config.GetEnv("ADMIN_PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)

	args := os.Args[1:]
	if len(args) > 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if len(args) >= 1 {
		p, err := strconv.Atoi(args[0])
		if err != nil || p <= 0 || p > 65533 {
			fmt.Fprintf(os.Stderr, "invalid port %q\n%s\n", args[0], usage)
			os.Exit(2)
		}
		basePort = p
	}
	if len(args) == 2 {
		policyName = args[1]
	}
	policy, err := streaming.ParsePolicy(policyName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n%s\n", err, usage)
		os.Exit(2)
	}

	cfg := streaming.Config{
		Host:     host,
		BasePort: basePort,
		Scheduler: streaming.SchedulerConfig{
			Policy:         policy,
			Quantum:        quantum,
			PacketInterval: interval,
		},
		DeliveryRate:       deliveryRate,
		NegotiationTimeout: negotiationTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ls, err := streaming.Listen(ctx, cfg.Host, cfg.BasePort)
	if err != nil {
		log.Error("listen failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	met := metrics.New()
	srv := streaming.NewServer(cfg, ls, log, met)
	svc := streaming.NewService(srv.Registry(), srv.Queue(), srv.Scheduler().Config())

	var admin *http.Server
	if adminPort != "" {
		admin = newAdminServer(net.JoinHostPort(host, adminPort), svc, met, log)
		go func() {
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("admin server error", slog.String("error", err.Error()))
				stop()
			}
		}()
	}

	log.Info("server starting",
		slog.Int("base_port", basePort),
		slog.String("policy", string(policy)),
		slog.Int("quantum", quantum),
		slog.Duration("packet_interval", interval),
		slog.Float64("udp_delivery_rate", deliveryRate),
		slog.String("admin_port", adminPort),
		slog.String("log_level", logLevel),
	)

	serveErr := srv.Serve(ctx)
	log.Info("streaming stopped, draining admin connections")

	if admin != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := admin.Shutdown(sctx); err != nil {
			log.Error("admin shutdown error", slog.String("error", err.Error()))
		}
	}

	if serveErr != nil {
		log.Error("server error", slog.String("error", serveErr.Error()))
		os.Exit(1)
	}
	log.Info("server stopped")
}

func newAdminServer(addr string, svc *streaming.Service, met *metrics.Metrics, log *slog.Logger) *http.Server {
	h := streaming.NewHandler(svc, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			met.SetQueueLength(svc.QueueLength())
			met.SetActiveSessions(svc.ActiveSessions())
		}).ServeHTTP(w, r)
	})
	h.Routes(r)

	return &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
}
