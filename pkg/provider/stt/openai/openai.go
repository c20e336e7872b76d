// Package openai provides a batch-only STT provider backed by the OpenAI
// audio transcription API. It has no streaming support; StartStream fails
// with a retryable error so a failover chain advances to a streaming-capable
// provider.
package openai

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/aizuchi/pkg/provider"
	"github.com/MrWong99/aizuchi/pkg/provider/stt"
	"github.com/MrWong99/aizuchi/pkg/types"
)

const defaultModel = "whisper-1"

// ErrStreamingUnsupported is returned by StartStream. The OpenAI audio API is
// request/response only.
var ErrStreamingUnsupported = errors.New("openai: streaming transcription is not supported")

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Provider implements stt.Provider using the OpenAI transcription API.
type Provider struct {
	client oai.Client
	model  string
}

var _ stt.Provider = (*Provider)(nil)

// New constructs a new OpenAI STT Provider. An empty model selects whisper-1.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = defaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return "openai" }

// Transcribe implements stt.Provider. The raw PCM input is wrapped in a WAV
// container because the API refuses headerless audio.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, opts stt.TranscribeOptions) (types.Transcript, error) {
	sr := opts.SampleRate
	if sr == 0 {
		sr = 16000
	}
	channels := opts.Channels
	if channels == 0 {
		channels = 1
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wavWrap(audio, sr, channels)), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(p.model),
	}
	if opts.Language != "" {
		params.Language = param.NewOpt(opts.Language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return types.Transcript{}, p.wrapErr(err)
	}

	return types.Transcript{
		Text:       resp.Text,
		Confidence: confidenceFromLogprobs(resp.Logprobs),
		Language:   opts.Language,
		ReceivedAt: time.Now(),
		Provider:   p.Name(),
		IsFinal:    true,
	}, nil
}

// StartStream implements stt.Provider. Always fails; see [ErrStreamingUnsupported].
func (p *Provider) StartStream(context.Context, stt.StreamConfig) (stt.SessionHandle, error) {
	// Retryable so a failover chain moves on to a streaming provider.
	return nil, provider.Retryable(p.Name(), ErrStreamingUnsupported)
}

// Healthy probes the API with an authenticated model listing.
func (p *Provider) Healthy(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return p.wrapErr(err)
	}
	return nil
}

// wrapErr maps an SDK error onto the provider error contract: auth and client
// errors are fatal, throttling, server errors, and transport faults are
// retryable.
func (p *Provider) wrapErr(err error) error {
	var apierr *oai.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == http.StatusTooManyRequests || apierr.StatusCode >= 500 {
			return provider.Retryable(p.Name(), err)
		}
		return provider.Fatal(p.Name(), err)
	}
	return provider.Retryable(p.Name(), err)
}

// confidenceFromLogprobs derives a [0, 1] confidence as exp of the mean token
// logprob. Zero when the model reported none.
func confidenceFromLogprobs(logprobs []oai.TranscriptionLogprob) float64 {
	if len(logprobs) == 0 {
		return 0
	}
	var sum float64
	for _, lp := range logprobs {
		sum += lp.Logprob
	}
	return math.Exp(sum / float64(len(logprobs)))
}

// wavWrap prefixes raw little-endian S16 PCM with a minimal RIFF/WAVE header.
func wavWrap(pcm []byte, sampleRate, channels int) []byte {
	const (
		headerLen     = 44
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, 0, headerLen+len(pcm))
	w := bytes.NewBuffer(buf)
	w.WriteString("RIFF")
	binary.Write(w, binary.LittleEndian, uint32(36+len(pcm)))
	w.WriteString("WAVE")
	w.WriteString("fmt ")
	binary.Write(w, binary.LittleEndian, uint32(16))
	binary.Write(w, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(w, binary.LittleEndian, uint16(channels))
	binary.Write(w, binary.LittleEndian, uint32(sampleRate))
	binary.Write(w, binary.LittleEndian, uint32(byteRate))
	binary.Write(w, binary.LittleEndian, uint16(blockAlign))
	binary.Write(w, binary.LittleEndian, uint16(bitsPerSample))
	w.WriteString("data")
	binary.Write(w, binary.LittleEndian, uint32(len(pcm)))
	w.Write(pcm)
	return w.Bytes()
}
