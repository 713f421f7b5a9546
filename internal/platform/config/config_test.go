package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("STREAMER_TEST_HOST", "127.0.0.1")
	if got := GetEnv("STREAMER_TEST_HOST", "x"); got != "127.0.0.1" {
		t.Errorf("GetEnv = %q, want 127.0.0.1", got)
	}
	t.Setenv("STREAMER_TEST_HOST", "")
	if got := GetEnv("STREAMER_TEST_HOST", "x"); got != "x" {
		t.Errorf("GetEnv(empty) = %q, want fallback", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		val  string
		want int
	}{
		{"9100", 9100},
		{"", 9000},
		{"nine", 9000},
	}
	for _, tt := range tests {
		t.Run(tt.val, func(t *testing.T) {
			t.Setenv("STREAMER_TEST_PORT", tt.val)
			if got := GetEnvInt("STREAMER_TEST_PORT", 9000); got != tt.want {
				t.Errorf("GetEnvInt(%q) = %d, want %d", tt.val, got, tt.want)
			}
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("STREAMER_TEST_RATE", "0.75")
	if got := GetEnvFloat("STREAMER_TEST_RATE", 0.9); got != 0.75 {
		t.Errorf("GetEnvFloat = %v, want 0.75", got)
	}
	t.Setenv("STREAMER_TEST_RATE", "most")
	if got := GetEnvFloat("STREAMER_TEST_RATE", 0.9); got != 0.9 {
		t.Errorf("GetEnvFloat(invalid) = %v, want fallback", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		val  string
		want time.Duration
	}{
		{"10s", 10 * time.Second},
		{"25", 25 * time.Millisecond},
		{"", 50 * time.Millisecond},
		{"soon", 50 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.val, func(t *testing.T) {
			t.Setenv("STREAMER_TEST_INTERVAL", tt.val)
			if got := GetEnvDuration("STREAMER_TEST_INTERVAL", 50*time.Millisecond); got != tt.want {
				t.Errorf("GetEnvDuration(%q) = %v, want %v", tt.val, got, tt.want)
			}
		})
	}
}

func TestLoad_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("STREAMER_TEST_POLICY=RR\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STREAMER_TEST_POLICY", "")
	os.Unsetenv("STREAMER_TEST_POLICY")

	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := GetEnv("STREAMER_TEST_POLICY", "FCFS"); got != "RR" {
		t.Errorf("policy = %q, want RR", got)
	}
}

func TestLoad_missing(t *testing.T) {
	if err := Load(filepath.Join(t.TempDir(), "absent.env")); err == nil {
		t.Error("expected error for missing file")
	}
}
