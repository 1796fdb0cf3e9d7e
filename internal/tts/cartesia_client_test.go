package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T, pcmBytes int, got *CartesiaRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Cartesia-Version") == "" {
			http.Error(w, "missing version", http.StatusBadRequest)
			return
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("Failed to decode request: %v", err)
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(make([]byte, pcmBytes))
	}))
}

func collect(ch <-chan *AudioChunk) (chunks int, bytes int) {
	for chunk := range ch {
		chunks++
		bytes += len(chunk.Data)
	}
	return chunks, bytes
}

func TestCartesiaClient_Synthesize(t *testing.T) {
	var req CartesiaRequest
	srv := newTestServer(t, 48000, &req) // one second at 24kHz
	defer srv.Close()

	c := NewCartesiaClient(CartesiaSettings{APIKey: "test-key", ModelID: "sonic-2", VoiceID: "voice-1", URL: srv.URL}, zerolog.Nop())
	ch, err := c.Synthesize(context.Background(), "Hello there")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	chunks, total := collect(ch)
	if chunks != 10 {
		t.Errorf("Expected 10 chunks of 100ms, got %d", chunks)
	}
	if total != 8000 {
		t.Errorf("Expected 8000 PCMU bytes, got %d", total)
	}

	if req.Transcript != "Hello there" || req.ModelID != "sonic-2" {
		t.Errorf("Unexpected request %+v", req)
	}
	if req.Voice.Mode != "id" || req.Voice.ID != "voice-1" {
		t.Errorf("Unexpected voice %+v", req.Voice)
	}
	if req.OutputFormat.Encoding != "pcm_s16le" || req.OutputFormat.SampleRate != 24000 {
		t.Errorf("Unexpected output format %+v", req.OutputFormat)
	}
}

func TestCartesiaClient_OddTrailingByte(t *testing.T) {
	srv := newTestServer(t, 4801, nil)
	defer srv.Close()

	c := NewCartesiaClient(CartesiaSettings{APIKey: "test-key", URL: srv.URL}, zerolog.Nop())
	ch, err := c.Synthesize(context.Background(), "x")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if _, total := collect(ch); total != 800 {
		t.Errorf("Expected 800 PCMU bytes, got %d", total)
	}
}

func TestCartesiaClient_HTTPError(t *testing.T) {
	srv := newTestServer(t, 0, nil)
	defer srv.Close()

	c := NewCartesiaClient(CartesiaSettings{APIKey: "wrong", URL: srv.URL}, zerolog.Nop())
	_, err := c.Synthesize(context.Background(), "x")
	if err == nil {
		t.Fatal("Expected error for rejected key")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("Expected status in error, got %v", err)
	}
}

func TestCartesiaClient_CancelStopsStream(t *testing.T) {
	srv := newTestServer(t, 480000, nil) // ten seconds
	defer srv.Close()

	c := NewCartesiaClient(CartesiaSettings{APIKey: "test-key", URL: srv.URL}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.Synthesize(ctx, "a long answer")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	<-ch
	cancel()

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected channel to close after cancel")
	}
}
