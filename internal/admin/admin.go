// Package admin exposes the localhost control surface backing the CLI verbs:
// pause, resume, status, safety get/set, and config get/set. The server side
// mounts on the same mux as the health endpoints; the client side is a thin
// net/http wrapper used by the command line.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusReport is the JSON body of GET /admin/status.
type StatusReport struct {
	Running        bool      `json:"running"`
	SchedulerState string    `json:"scheduler_state"`
	QueueLength    int       `json:"queue_length"`
	CommentsPosted int64     `json:"comments_posted"`
	StartedAt      time.Time `json:"started_at"`
}

// SafetyReport is the JSON body of GET /admin/safety and the request body of
// PUT /admin/safety. On updates, nil fields keep their current value.
type SafetyReport struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Level   string `json:"level,omitempty"`
}

// Controller is the application surface the admin API drives.
type Controller interface {
	// Pause suspends comment dispatch; queued comments are retained.
	Pause() error

	// Resume restarts comment dispatch.
	Resume() error

	// StopDaemon asks the daemon to shut down.
	StopDaemon() error

	// Status reports the current pipeline state.
	Status() StatusReport

	// Safety reports the current safety settings.
	Safety() SafetyReport

	// SetSafety applies the non-nil fields of the report.
	SetSafety(SafetyReport) error

	// ConfigYAML renders the active configuration as YAML with credentials
	// blanked.
	ConfigYAML() ([]byte, error)

	// ApplyConfigYAML validates and applies a full YAML configuration.
	ApplyConfigYAML(data []byte) error
}

// Server mounts the admin routes on an [http.ServeMux].
type Server struct {
	ctrl Controller
}

// NewServer wraps ctrl.
func NewServer(ctrl Controller) *Server {
	return &Server{ctrl: ctrl}
}

// Register adds the admin routes to mux. The mux is expected to be bound to a
// loopback listener; the admin surface carries no authentication.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/pause", s.handlePause)
	mux.HandleFunc("POST /admin/resume", s.handleResume)
	mux.HandleFunc("POST /admin/stop", s.handleStop)
	mux.HandleFunc("GET /admin/status", s.handleStatus)
	mux.HandleFunc("GET /admin/safety", s.handleSafetyGet)
	mux.HandleFunc("PUT /admin/safety", s.handleSafetySet)
	mux.HandleFunc("GET /admin/config", s.handleConfigGet)
	mux.HandleFunc("PUT /admin/config", s.handleConfigSet)
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctrl.Pause(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctrl.Resume(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": "running"})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctrl.StopDaemon(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": "stopping"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleSafetyGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Safety())
}

func (s *Server) handleSafetySet(w http.ResponseWriter, r *http.Request) {
	var req SafetyReport
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := s.ctrl.SetSafety(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Safety())
}

func (s *Server) handleConfigGet(w http.ResponseWriter, _ *http.Request) {
	data, err := s.ctrl.ConfigYAML()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleConfigSet(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ctrl.ApplyConfigYAML(data); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "applied"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode failure"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// Client drives a running daemon's admin API. Used by the CLI verbs.
type Client struct {
	base string
	http *http.Client
}

// NewClient targets the admin API at addr (host:port).
func NewClient(addr string) *Client {
	return &Client{
		base: "http://" + addr,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Pause suspends comment dispatch on the daemon.
func (c *Client) Pause(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/admin/pause", nil, nil)
}

// Resume restarts comment dispatch on the daemon.
func (c *Client) Resume(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/admin/resume", nil, nil)
}

// Stop asks the daemon to shut down.
func (c *Client) Stop(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/admin/stop", nil, nil)
}

// Status fetches the daemon's status report.
func (c *Client) Status(ctx context.Context) (StatusReport, error) {
	var out StatusReport
	err := c.do(ctx, http.MethodGet, "/admin/status", nil, &out)
	return out, err
}

// Safety fetches the daemon's safety settings.
func (c *Client) Safety(ctx context.Context) (SafetyReport, error) {
	var out SafetyReport
	err := c.do(ctx, http.MethodGet, "/admin/safety", nil, &out)
	return out, err
}

// SetSafety applies the non-nil fields of req on the daemon.
func (c *Client) SetSafety(ctx context.Context, req SafetyReport) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/admin/safety", body, nil)
}

// Config fetches the active configuration as YAML.
func (c *Client) Config(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/admin/config", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}
	return io.ReadAll(resp.Body)
}

// SetConfig pushes a full YAML configuration to the daemon.
func (c *Client) SetConfig(ctx context.Context, yamlDoc []byte) error {
	return c.do(ctx, http.MethodPut, "/admin/config", yamlDoc, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("admin: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// responseError extracts the error field from a non-200 response body.
func responseError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("admin: %s (HTTP %d)", body.Error, resp.StatusCode)
	}
	return errors.New("admin: HTTP " + resp.Status)
}
