package deepgram

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/MrWong99/aizuchi/pkg/provider"
	"github.com/MrWong99/aizuchi/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildStreamURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := stt.StreamConfig{
		SampleRate:     16000,
		Channels:       1,
		Language:       "ja",
		InterimResults: true,
	}

	rawURL, err := p.buildStreamURL(cfg)
	if err != nil {
		t.Fatalf("buildStreamURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-2", q.Get("model"))
	assertEqual(t, "language", "ja", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildStreamURL_CustomModel(t *testing.T) {
	p, err := New("key", WithModel("base"), WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildStreamURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildStreamURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "interim_results", "false", q.Get("interim_results"))
}

func TestBuildStreamURL_LanguageOverridenByCfg(t *testing.T) {
	// cfg.Language should take precedence over the provider-level default.
	p, err := New("key", WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildStreamURL(stt.StreamConfig{Language: "fr-FR", SampleRate: 16000})
	if err != nil {
		t.Fatalf("buildStreamURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "fr-FR", u.Query().Get("language"))
}

// ---- JSON parsing tests ----

func TestParseStreamMessage_Final(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"channel": {
			"alternatives": [{
				"transcript": "こんにちは 世界",
				"confidence": 0.95,
				"words": [
					{"word": "こんにちは", "start": 0.1, "end": 0.5, "confidence": 0.97},
					{"word": "世界", "start": 0.6, "end": 1.0, "confidence": 0.93}
				]
			}]
		}
	}`)

	tr, ok := parseStreamMessage(raw)
	if !ok {
		t.Fatal("expected ok=true for valid Results message")
	}

	if !tr.IsFinal {
		t.Error("expected IsFinal=true")
	}
	assertEqual(t, "text", "こんにちは 世界", tr.Text)
	if tr.Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %f", tr.Confidence)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(tr.Segments))
	}
	assertEqual(t, "segment[0]", "こんにちは", tr.Segments[0].Text)
	if tr.Segments[0].Start != time.Duration(0.1*float64(time.Second)) {
		t.Errorf("unexpected start: %v", tr.Segments[0].Start)
	}
}

func TestParseStreamMessage_Partial(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": false,
		"channel": {
			"alternatives": [{
				"transcript": "こんに",
				"confidence": 0.7,
				"words": []
			}]
		}
	}`)

	tr, ok := parseStreamMessage(raw)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if tr.IsFinal {
		t.Error("expected IsFinal=false for partial result")
	}
	assertEqual(t, "text", "こんに", tr.Text)
}

func TestParseStreamMessage_NonResultsType(t *testing.T) {
	raw := []byte(`{"type":"Metadata","request_id":"abc"}`)
	if _, ok := parseStreamMessage(raw); ok {
		t.Error("expected ok=false for non-Results message")
	}
}

func TestParseStreamMessage_EmptyAlternatives(t *testing.T) {
	raw := []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`)
	if _, ok := parseStreamMessage(raw); ok {
		t.Error("expected ok=false when alternatives is empty")
	}
}

func TestParseStreamMessage_InvalidJSON(t *testing.T) {
	if _, ok := parseStreamMessage([]byte(`{invalid`)); ok {
		t.Error("expected ok=false for invalid JSON")
	}
}

// ---- Batch tests ----

func TestTranscribe_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token key" {
			t.Errorf("auth header = %q", got)
		}
		w.Write([]byte(`{
			"results": {"channels": [{"alternatives": [{
				"transcript": "テスト音声",
				"confidence": 0.9,
				"words": [{"word":"テスト音声","start":0,"end":1.2,"confidence":0.9}]
			}]}]}
		}`))
	}))
	defer srv.Close()

	p, err := New("key", WithBaseURL("", srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tr, err := p.Transcribe(t.Context(), []byte{1, 2, 3}, stt.TranscribeOptions{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "テスト音声", tr.Text)
	if !tr.IsFinal {
		t.Error("batch results must be final")
	}
	assertEqual(t, "provider", "deepgram", tr.Provider)
}

func TestTranscribe_AuthFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("key", WithBaseURL("", srv.URL), WithHTTPClient(srv.Client()))
	_, err := p.Transcribe(t.Context(), []byte{1}, stt.TranscribeOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if provider.IsRetryable(err) {
		t.Error("401 must be non-retryable")
	}
	assertEqual(t, "tag", "deepgram", provider.Tag(err))
}

func TestTranscribe_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := New("key", WithBaseURL("", srv.URL), WithHTTPClient(srv.Client()))
	_, err := p.Transcribe(t.Context(), []byte{1}, stt.TranscribeOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !provider.IsRetryable(err) {
		t.Error("500 must be retryable")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
