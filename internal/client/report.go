package client

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultResultsFile is where reports are appended.
const DefaultResultsFile = "results.csv"

var csvHeader = []string{
	"Mode", "Resolution", "PacketsReceived", "Throughput(Mbps)",
	"Latency(ms)", "CPU(%)", "Memory(MB)", "PacketLoss(%)",
}

// Usage is a snapshot of the process's resource consumption.
type Usage struct {
	At       time.Time
	CPU      time.Duration
	MaxRSSKB int64
}

// SampleUsage reads user+system CPU time and peak RSS for this process.
func SampleUsage() (Usage, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return Usage{At: time.Now()}, fmt.Errorf("getrusage: %w", err)
	}
	return Usage{
		At:       time.Now(),
		CPU:      time.Duration(ru.Utime.Nano() + ru.Stime.Nano()),
		MaxRSSKB: int64(ru.Maxrss),
	}, nil
}

// CPUPercent is the CPU time consumed between two samples relative to the
// wall time between them.
func CPUPercent(start, end Usage) float64 {
	wall := end.At.Sub(start.At)
	if wall <= 0 || end.CPU < start.CPU {
		return 0
	}
	return 100 * float64(end.CPU-start.CPU) / float64(wall)
}

// Report is one row of the results file.
type Report struct {
	Mode            Mode
	Resolution      string
	PacketsReceived int
	ThroughputMbps  float64
	LatencyMs       float64
	CPUPercent      float64
	MemoryMB        int64
	LossPercent     float64
}

// NewReport derives the performance figures of a finished stream.
// Throughput covers the whole run, latency is the time to the first packet
// and loss is computed for UDP only, against the highest sequence seen.
func NewReport(st Stats, start, end Usage) Report {
	r := Report{
		Mode:            st.Mode,
		Resolution:      st.Resolution,
		PacketsReceived: st.Packets,
		CPUPercent:      CPUPercent(start, end),
		MemoryMB:        end.MaxRSSKB / 1024,
	}
	if d := st.End.Sub(st.Start).Seconds(); d > 0 {
		r.ThroughputMbps = float64(st.Bytes) * 8 / (d * 1e6)
	}
	if !st.FirstPacket.IsZero() {
		r.LatencyMs = float64(st.FirstPacket.Sub(st.Start)) / float64(time.Millisecond)
	}
	if st.Mode == ModeUDP && st.HighestSeq > 0 {
		r.LossPercent = 100 * (1 - float64(st.Packets)/float64(st.HighestSeq))
	}
	return r
}

func (r Report) record() []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		string(r.Mode),
		r.Resolution,
		strconv.Itoa(r.PacketsReceived),
		f(r.ThroughputMbps),
		f(r.LatencyMs),
		f(r.CPUPercent),
		strconv.FormatInt(r.MemoryMB, 10),
		f(r.LossPercent),
	}
}

// WriteSummary prints the report in human-readable form.
func (r Report) WriteSummary(w io.Writer) error {
	_, err := fmt.Fprintf(w, "\n=== Performance Metrics ===\n"+
		"Mode: %s  Resolution: %s\n"+
		"Packets Received: %d\n"+
		"Throughput: %.4f Mbps\n"+
		"Latency (time-to-first-packet): %.3f ms\n"+
		"CPU Usage: %.2f %%\n"+
		"Memory Usage: %d MB\n",
		r.Mode, r.Resolution, r.PacketsReceived, r.ThroughputMbps,
		r.LatencyMs, r.CPUPercent, r.MemoryMB)
	if err != nil || r.Mode != ModeUDP {
		return err
	}
	_, err = fmt.Fprintf(w, "Packet Loss: %.2f %%\n", r.LossPercent)
	return err
}

// AppendCSV appends r to the CSV file at path, writing the header first
// when the file is new or empty.
func AppendCSV(path string, r Report) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open results: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat results: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("write results header: %w", err)
		}
	}
	if err := w.Write(r.record()); err != nil {
		return fmt.Errorf("write results row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush results: %w", err)
	}
	return f.Close()
}
