package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHealthzAlwaysOK(t *testing.T) {
	h := New()
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestReadyzAllPassing(t *testing.T) {
	h := New(
		Checker{Name: "stt", Check: func(context.Context) error { return nil }},
		Checker{Name: "chat", Check: func(context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Checks["stt"] != "ok" || body.Checks["chat"] != "ok" {
		t.Errorf("checks = %v", body.Checks)
	}
}

func TestReadyzFailingCheck(t *testing.T) {
	h := New(
		Checker{Name: "stt", Check: func(context.Context) error { return nil }},
		Checker{Name: "config-store", Check: func(context.Context) error {
			return errors.New("connection refused")
		}},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status field = %q", body.Status)
	}
	if body.Checks["config-store"] != "fail: connection refused" {
		t.Errorf("failed check = %q", body.Checks["config-store"])
	}
}

func TestRegisterRoutes(t *testing.T) {
	mux := http.NewServeMux()
	New().Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

// fakeTarget counts probe invocations.
type fakeTarget struct {
	probes atomic.Int64
}

func (f *fakeTarget) Name() string                 { return "fake" }
func (f *fakeTarget) RunProbes(ctx context.Context) { f.probes.Add(1) }

func TestProberProbesImmediatelyAndOnTick(t *testing.T) {
	target := &fakeTarget{}
	p := NewProber(20*time.Millisecond, target)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for target.probes.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d probes before deadline", target.probes.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestNewProberDefaultsInterval(t *testing.T) {
	p := NewProber(0)
	if p.interval != DefaultProbeInterval {
		t.Errorf("interval = %v, want %v", p.interval, DefaultProbeInterval)
	}
}
