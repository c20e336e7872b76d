package observe

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"email", "contact alice@example.com today", "contact [EMAIL] today"},
		{"phone jp", "call 090-1234-5678 now", "call [PHONE] now"},
		{"phone intl", "call +81 90-1234-5678 now", "call [PHONE] now"},
		{"ipv4", "peer 192.168.1.10 disconnected", "peer [IP] disconnected"},
		{"url query", "GET https://api.example.com/v1/items?token=abc&user=bob", "GET https://api.example.com/v1/items?[PARAMS]"},
		{"url no query", "GET https://api.example.com/v1/items", "GET https://api.example.com/v1/items"},
		{"clean", "nothing sensitive here", "nothing sensitive here"},
		{"mixed", "alice@example.com from 10.0.0.1", "[EMAIL] from [IP]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Redact(tt.in); got != tt.want {
				t.Errorf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRedactHandlerScrubsMessageAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewRedactHandler(slog.NewTextHandler(&buf, nil)))

	logger.Info("user alice@example.com connected",
		slog.String("remote", "203.0.113.7"),
		slog.Int("attempt", 3),
	)

	out := buf.String()
	if strings.Contains(out, "alice@example.com") {
		t.Error("email leaked into log output")
	}
	if strings.Contains(out, "203.0.113.7") {
		t.Error("IP leaked into log output")
	}
	if !strings.Contains(out, "[EMAIL]") || !strings.Contains(out, "[IP]") {
		t.Errorf("placeholders missing: %s", out)
	}
	if !strings.Contains(out, "attempt=3") {
		t.Errorf("non-string attr mangled: %s", out)
	}
}

func TestRedactHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewRedactHandler(slog.NewTextHandler(&buf, nil)))

	logger.With(slog.String("owner", "bob@example.com")).
		WithGroup("conn").
		Info("opened", slog.String("addr", "10.1.2.3"))

	out := buf.String()
	if strings.Contains(out, "bob@example.com") || strings.Contains(out, "10.1.2.3") {
		t.Errorf("PII leaked through WithAttrs/WithGroup: %s", out)
	}
}

func TestRotatingWriterRotatesAtThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aizuchi.log")

	w, err := NewRotatingWriter(path, RotatingWriterConfig{MaxBytes: 100, MaxFiles: 3})
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	line := []byte(strings.Repeat("x", 40) + "\n")
	for range 8 {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("base file missing: %v", err)
	}
	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("rotated file missing: %v", err)
	}
	// MaxFiles=3 keeps base, .1, and .2 only.
	if _, err := os.Stat(path + ".3"); err == nil {
		t.Error("file beyond MaxFiles was kept")
	}
}

func TestRotatingWriterSweepsOldFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aizuchi.log")

	w, err := NewRotatingWriter(path, RotatingWriterConfig{MaxBytes: 100, MaxFiles: 4, MaxAge: time.Hour})
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	stale := path + ".2"
	if err := os.WriteFile(stale, []byte("old\n"), 0o644); err != nil {
		t.Fatalf("seed stale file: %v", err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	fresh := path + ".1"
	if err := os.WriteFile(fresh, []byte("recent\n"), 0o644); err != nil {
		t.Fatalf("seed fresh file: %v", err)
	}

	w.sweepOld()

	if _, err := os.Stat(stale); err == nil {
		t.Error("file older than MaxAge survived the sweep")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh rotated file removed: %v", err)
	}
}

func TestRotatingWriterKeepsRecordWhole(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aizuchi.log")

	w, err := NewRotatingWriter(path, RotatingWriterConfig{MaxBytes: 50, MaxFiles: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	for i := range 4 {
		if _, err := fmt.Fprintf(w, "record-%d-%s\n", i, strings.Repeat("y", 30)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	for _, p := range []string{path, path + ".1"} {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		for line := range strings.SplitSeq(strings.TrimSpace(string(data)), "\n") {
			if !strings.HasPrefix(line, "record-") {
				t.Errorf("%s holds a split record: %q", p, line)
			}
		}
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, _, err := NewLogger(LoggerConfig{Level: "verbose"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNewLoggerFileSink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aizuchi.log")

	logger, closer, err := NewLogger(LoggerConfig{Level: "debug", FilePath: path})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Debug("session for carol@example.com")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "[EMAIL]") {
		t.Errorf("file sink not redacted: %s", data)
	}
}
