package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"video-streamer/internal/client"
	"video-streamer/internal/platform/logger"

	"github.com/spf13/cobra"
)

type options struct {
	resultsPath string
	udpTimeout  time.Duration
	logLevel    string
	logFormat   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "client <server-ip> <server-port> <TCP|UDP> <resolution>",
		Short:        "Negotiate a resolution and receive a video stream",
		Long:         "Negotiates a resolution with the streaming server, receives the stream over TCP or UDP and appends the performance metrics of the run to a CSV file.",
		Args:         cobra.ExactArgs(4),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[1])
			if err != nil || port <= 0 {
				return fmt.Errorf("invalid server port %q", args[1])
			}
			mode, err := client.ParseMode(args[2])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := logger.NewWithWriter(os.Stderr, opts.logLevel, opts.logFormat)
			return run(ctx, cmd, client.New(args[0], port, opts.udpTimeout, log), mode, args[3], opts, log)
		},
	}
	cmd.Flags().StringVar(&opts.resultsPath, "results", client.DefaultResultsFile, "CSV file the run's metrics are appended to")
	cmd.Flags().DurationVar(&opts.udpTimeout, "udp-timeout", client.DefaultUDPTimeout, "Silence after which a UDP stream is assumed finished")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "text", "Log format: json or text")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, c *client.Client, mode client.Mode, resolution string, opts options, log *slog.Logger) error {
	out := cmd.OutOrStdout()

	reply, err := c.Negotiate(ctx, resolution)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Server response: %s\n", reply.Text)

	before, err := client.SampleUsage()
	if err != nil {
		log.Warn("resource usage unavailable", slog.String("error", err.Error()))
	}
	stats, err := c.Stream(ctx, mode, resolution, reply)
	if err != nil {
		return err
	}
	after, err := client.SampleUsage()
	if err != nil {
		log.Warn("resource usage unavailable", slog.String("error", err.Error()))
	}

	report := client.NewReport(stats, before, after)
	if err := report.WriteSummary(out); err != nil {
		return err
	}
	if err := client.AppendCSV(opts.resultsPath, report); err != nil {
		return err
	}
	fmt.Fprintf(out, "Metrics saved to %s\n", opts.resultsPath)
	return nil
}
