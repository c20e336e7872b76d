// Package deepgram provides a Deepgram-backed STT provider: streaming
// recognition over the Deepgram WebSocket API and batch recognition over the
// prerecorded REST endpoint. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/aizuchi/pkg/provider"
	"github.com/MrWong99/aizuchi/pkg/provider/stt"
	"github.com/MrWong99/aizuchi/pkg/types"
)

const (
	streamEndpoint    = "wss://api.deepgram.com/v1/listen"
	batchEndpoint     = "https://api.deepgram.com/v1/listen"
	projectsEndpoint  = "https://api.deepgram.com/v1/projects"
	defaultModel      = "nova-2"
	defaultLanguage   = "ja"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-2", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "ja", "en").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithBaseURL overrides the API endpoints; used in tests against a local
// server. Empty arguments keep the defaults.
func WithBaseURL(streamURL, batchURL string) Option {
	return func(p *Provider) {
		if streamURL != "" {
			p.streamURL = streamURL
		}
		if batchURL != "" {
			p.batchURL = batchURL
		}
	}
}

// WithHTTPClient overrides the HTTP client used for batch and health calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.http = c
	}
}

// Provider implements stt.Provider backed by the Deepgram API.
type Provider struct {
	apiKey    string
	model     string
	language  string
	streamURL string
	batchURL  string
	http      *http.Client
}

var _ stt.Provider = (*Provider)(nil)

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:    apiKey,
		model:     defaultModel,
		language:  defaultLanguage,
		streamURL: streamEndpoint,
		batchURL:  batchEndpoint,
		http:      &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return "deepgram" }

// Transcribe performs batch recognition via the prerecorded endpoint.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, opts stt.TranscribeOptions) (types.Transcript, error) {
	u, err := p.buildBatchURL(opts)
	if err != nil {
		return types.Transcript{}, provider.Fatal(p.Name(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(audio))
	if err != nil {
		return types.Transcript{}, provider.Fatal(p.Name(), err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "audio/raw")

	resp, err := p.http.Do(req)
	if err != nil {
		return types.Transcript{}, provider.Retryable(p.Name(), fmt.Errorf("batch request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.Transcript{}, p.statusError(resp.StatusCode, body)
	}

	var out batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.Transcript{}, provider.Retryable(p.Name(), fmt.Errorf("decode response: %w", err))
	}
	t, ok := out.transcript()
	if !ok {
		return types.Transcript{}, provider.Retryable(p.Name(), errors.New("response carries no alternatives"))
	}
	t.Provider = p.Name()
	t.IsFinal = true
	return t, nil
}

// StartStream opens a streaming transcription session with Deepgram.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildStreamURL(cfg)
	if err != nil {
		return nil, provider.Fatal(p.Name(), fmt.Errorf("build URL: %w", err))
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, provider.Retryable(p.Name(), fmt.Errorf("dial: %w", err))
	}

	sess := &session{
		provider:    p.Name(),
		conn:        conn,
		transcripts: make(chan types.Transcript, 64),
		audio:       make(chan []byte, 256),
		done:        make(chan struct{}),
	}
	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)
	return sess, nil
}

// Healthy probes the Deepgram API with an authenticated projects listing.
func (p *Provider) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, projectsEndpoint, nil)
	if err != nil {
		return provider.Fatal(p.Name(), err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return provider.Retryable(p.Name(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return p.statusError(resp.StatusCode, nil)
	}
	return nil
}

// statusError maps an HTTP status to the provider error contract: auth and
// client errors are fatal, throttling and server errors are retryable.
func (p *Provider) statusError(status int, body []byte) error {
	err := fmt.Errorf("status %d: %s", status, bytes.TrimSpace(body))
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return provider.Retryable(p.Name(), err)
	default:
		return provider.Fatal(p.Name(), err)
	}
}

func (p *Provider) buildStreamURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.streamURL)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *Provider) buildBatchURL(opts stt.TranscribeOptions) (string, error) {
	u, err := url.Parse(p.batchURL)
	if err != nil {
		return "", err
	}

	lang := opts.Language
	if lang == "" {
		lang = p.language
	}
	sr := opts.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	if opts.Channels > 0 {
		q.Set("channels", strconv.Itoa(opts.Channels))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- wire formats ----

// streamResponse is the JSON structure of a Deepgram Results event.
type streamResponse struct {
	Type    string      `json:"type"`
	IsFinal bool        `json:"is_final"`
	Channel channelData `json:"channel"`
}

type channelData struct {
	Alternatives []alternative `json:"alternatives"`
}

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Words      []word  `json:"words"`
}

type word struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// batchResponse is the JSON structure of a prerecorded result.
type batchResponse struct {
	Results struct {
		Channels []channelData `json:"channels"`
	} `json:"results"`
}

func (r batchResponse) transcript() (types.Transcript, bool) {
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return types.Transcript{}, false
	}
	return fromAlternative(r.Results.Channels[0].Alternatives[0]), true
}

func fromAlternative(alt alternative) types.Transcript {
	segments := make([]types.Segment, 0, len(alt.Words))
	for _, w := range alt.Words {
		segments = append(segments, types.Segment{
			Text:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}
	return types.Transcript{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		ReceivedAt: time.Now(),
		Segments:   segments,
	}
}

// ---- session ----

// session is a live Deepgram streaming session. It implements stt.SessionHandle.
type session struct {
	provider    string
	conn        *websocket.Conn
	transcripts chan types.Transcript
	audio       chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// SendAudio queues a PCM frame for delivery to Deepgram.
func (s *session) SendAudio(frame types.AudioFrame) error {
	select {
	case <-s.done:
		return provider.Retryable(s.provider, errors.New("session is closed"))
	default:
	}
	select {
	case s.audio <- frame.Data:
		return nil
	case <-s.done:
		return provider.Retryable(s.provider, errors.New("session is closed"))
	}
}

// Transcripts returns the channel of interim and final transcripts.
func (s *session) Transcripts() <-chan types.Transcript { return s.transcripts }

// Err returns the transport error that terminated the session, if any.
func (s *session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close terminates the session cleanly.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		// Ask Deepgram to flush pending audio before the socket closes.
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to Deepgram.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				s.recordErr(err)
				return
			}
		case <-s.done:
			// Drain queued audio before exiting.
			for {
				select {
				case chunk := <-s.audio:
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON messages from Deepgram and forwards transcripts.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.transcripts)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
				// Clean close requested by us.
			default:
				s.recordErr(err)
			}
			return
		}

		t, ok := parseStreamMessage(msg)
		if !ok {
			continue
		}
		t.Provider = s.provider

		select {
		case s.transcripts <- t:
		case <-s.done:
		}
	}
}

// recordErr keeps the first transport error for Err.
func (s *session) recordErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = provider.Retryable(s.provider, err)
	}
}

// parseStreamMessage parses a raw Deepgram WebSocket message into a Transcript.
// Returns (zero, false) for messages that should be ignored.
func parseStreamMessage(data []byte) (types.Transcript, bool) {
	var resp streamResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return types.Transcript{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return types.Transcript{}, false
	}

	t := fromAlternative(resp.Channel.Alternatives[0])
	t.IsFinal = resp.IsFinal
	return t, true
}
