package observe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// PII redaction patterns. Order matters: emails before URL queries (an email
// can appear inside a query string), IPv4 before phone numbers (dotted quads
// would otherwise partially match the phone pattern).
var (
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	urlQueryPattern = regexp.MustCompile(`(https?://[^\s?"']+)\?[^\s"']*`)
	ipv4Pattern     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	phonePattern    = regexp.MustCompile(`\+?\d{1,3}[-\s]?\(?\d{1,4}\)?[-\s]\d{2,4}[-\s]?\d{3,4}\b|\b0\d{1,4}-\d{1,4}-\d{3,4}\b`)
)

// Redact replaces PII in s with placeholder tokens: [EMAIL], [PARAMS], [IP],
// and [PHONE].
func Redact(s string) string {
	s = emailPattern.ReplaceAllString(s, "[EMAIL]")
	s = urlQueryPattern.ReplaceAllString(s, "$1?[PARAMS]")
	s = ipv4Pattern.ReplaceAllString(s, "[IP]")
	s = phonePattern.ReplaceAllString(s, "[PHONE]")
	return s
}

// RedactHandler is an [slog.Handler] that redacts PII from the record message
// and every string attribute value before delegating to the wrapped handler.
type RedactHandler struct {
	inner slog.Handler
}

var _ slog.Handler = (*RedactHandler)(nil)

// NewRedactHandler wraps inner with PII redaction.
func NewRedactHandler(inner slog.Handler) *RedactHandler {
	return &RedactHandler{inner: inner}
}

// Enabled implements slog.Handler.
func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, Redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

// WithAttrs implements slog.Handler.
func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redactAttr(a)
	}
	return &RedactHandler{inner: h.inner.WithAttrs(clean)}
}

// WithGroup implements slog.Handler.
func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{inner: h.inner.WithGroup(name)}
}

// redactAttr redacts string values, recursing into groups.
func redactAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, Redact(a.Value.String()))
	case slog.KindGroup:
		members := a.Value.Group()
		clean := make([]slog.Attr, len(members))
		for i, m := range members {
			clean[i] = redactAttr(m)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	default:
		return a
	}
}

// RotatingWriter is an [io.Writer] that appends to a file and rotates it when
// it exceeds a size threshold. Rotated files are renamed name.1 .. name.N,
// oldest last; files beyond MaxFiles are deleted.
type RotatingWriter struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	maxFiles int
	maxAge   time.Duration
	file     *os.File
	size     int64
}

// RotatingWriterConfig configures a [RotatingWriter]. Zero values select the
// defaults: 10 MiB per file, 5 files kept, 7 days retention.
type RotatingWriterConfig struct {
	MaxBytes int64
	MaxFiles int

	// MaxAge is the retention horizon: rotated files older than this are
	// deleted on the next rotation.
	MaxAge time.Duration
}

func (c RotatingWriterConfig) withDefaults() RotatingWriterConfig {
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = 5
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 7 * 24 * time.Hour
	}
	return c
}

// NewRotatingWriter opens (or creates) the log file at path.
func NewRotatingWriter(path string, cfg RotatingWriterConfig) (*RotatingWriter, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("observe: create log dir: %w", err)
	}

	w := &RotatingWriter{path: path, maxBytes: cfg.MaxBytes, maxFiles: cfg.MaxFiles, maxAge: cfg.MaxAge}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("observe: open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("observe: stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write implements io.Writer. A single record is never split across files.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.maxBytes && w.size > 0 {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// rotate shifts name.i to name.i+1, dropping the oldest, then reopens a fresh
// file at the base path.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("observe: close before rotate: %w", err)
	}

	os.Remove(fmt.Sprintf("%s.%d", w.path, w.maxFiles-1))
	for i := w.maxFiles - 2; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", w.path, i), fmt.Sprintf("%s.%d", w.path, i+1))
	}
	if err := os.Rename(w.path, w.path+".1"); err != nil {
		return fmt.Errorf("observe: rotate: %w", err)
	}
	w.sweepOld()

	return w.open()
}

// sweepOld deletes rotated files past the retention horizon.
func (w *RotatingWriter) sweepOld() {
	cutoff := time.Now().Add(-w.maxAge)
	for i := 1; i < w.maxFiles; i++ {
		name := fmt.Sprintf("%s.%d", w.path, i)
		info, err := os.Stat(name)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(name)
		}
	}
}

// Close closes the current log file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// LoggerConfig configures [NewLogger].
type LoggerConfig struct {
	// Level is the minimum level, one of "debug", "info", "warn", "error".
	// Empty selects info.
	Level string

	// FilePath, when non-empty, routes log output to a rotating file instead
	// of stderr.
	FilePath string

	// Rotation tunes the file sink. Ignored when FilePath is empty.
	Rotation RotatingWriterConfig
}

// NewLogger builds the application logger: a text handler (stderr or rotating
// file) wrapped with PII redaction. The returned closer is non-nil only for
// the file sink.
func NewLogger(cfg LoggerConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("observe: unknown log level %q", cfg.Level)
	}

	var out io.Writer = os.Stderr
	var closer io.Closer
	if cfg.FilePath != "" {
		w, err := NewRotatingWriter(cfg.FilePath, cfg.Rotation)
		if err != nil {
			return nil, nil, err
		}
		out = w
		closer = w
	}

	handler := NewRedactHandler(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return slog.New(handler), closer, nil
}
