package telephony

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-agent/internal/llm"
	"github.com/lexiqai/voice-agent/internal/pipeline"
	"github.com/lexiqai/voice-agent/internal/recording"
	"github.com/lexiqai/voice-agent/internal/stt"
	"github.com/lexiqai/voice-agent/internal/tts"
)

type fakeSTT struct {
	events chan stt.Event

	mu    sync.Mutex
	opts  stt.Options
	audio int
}

func (f *fakeSTT) Start() error { return nil }

func (f *fakeSTT) SendAudio(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio += len(data)
	return nil
}

func (f *fakeSTT) Events() <-chan stt.Event { return f.events }
func (f *fakeSTT) Stop() error              { return nil }

func (f *fakeSTT) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audio
}

type greeter struct{}

func (greeter) Reply(ctx context.Context, conv *llm.Conversation, text string) (string, error) {
	conv.AddUser(text)
	return "Okay.", nil
}

func (greeter) Instruct(ctx context.Context, conv *llm.Conversation, instruction string) (string, error) {
	return "Hello, how can I help?", nil
}

type fakeSynth struct{}

func (fakeSynth) Synthesize(ctx context.Context, text string) (<-chan *tts.AudioChunk, error) {
	ch := make(chan *tts.AudioChunk, 1)
	ch <- &tts.AudioChunk{Data: bytes.Repeat([]byte{0x7F}, 160), SampleRate: 8000, Channels: 1}
	close(ch)
	return ch, nil
}

type fakeRecorder struct {
	mu    sync.Mutex
	saved []recording.Transcript
}

func (f *fakeRecorder) SaveTranscript(ctx context.Context, t recording.Transcript) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, t)
	return nil
}

func (f *fakeRecorder) transcripts() []recording.Transcript {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recording.Transcript(nil), f.saved...)
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeSTT, *fakeRecorder) {
	t.Helper()
	recognizer := &fakeSTT{events: make(chan stt.Event, 10)}
	factory := func(opts stt.Options) stt.Client {
		recognizer.mu.Lock()
		recognizer.opts = opts
		recognizer.mu.Unlock()
		return recognizer
	}
	p := pipeline.NewWithComponents(pipeline.Config{
		VAD:      pipeline.VADConfig{EnergyThreshold: 500, SilenceFrames: 10},
		Noise:    pipeline.NoiseConfig{Threshold: 120},
		Greeting: pipeline.DefaultGreeting,
	}, factory, greeter{}, fakeSynth{}, zerolog.Nop())

	rec := &fakeRecorder{}
	mux := http.NewServeMux()
	mux.Handle(StreamPath, NewStreamHandler(p, rec))
	return httptest.NewServer(mux), recognizer, rec
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + StreamPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	return conn
}

func startCall(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	msgs := []TwilioMessage{
		{Event: "connected"},
		{Event: "start", StreamSid: "MZ1", Start: &TwilioStart{CallSid: "CA1", StreamSid: "MZ1", Tracks: []string{"inbound"}}},
	}
	for _, m := range msgs {
		if err := conn.WriteJSON(m); err != nil {
			t.Fatalf("WriteJSON() failed: %v", err)
		}
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() failed: %v", err)
	}
	return msg
}

func TestStream_GreetsCaller(t *testing.T) {
	srv, _, _ := newTestServer(t)
	defer srv.Close()
	conn := dial(t, srv)
	defer conn.Close()

	startCall(t, conn)

	msg := readEvent(t, conn)
	if msg["event"] != "media" || msg["streamSid"] != "MZ1" {
		t.Fatalf("Expected media on MZ1, got %v", msg)
	}
	media, _ := msg["media"].(map[string]any)
	payload, _ := media["payload"].(string)
	audio, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(audio) != 160 {
		t.Errorf("Expected 160 bytes of base64 PCMU, got %d (%v)", len(audio), err)
	}
}

func TestStream_ForwardsCallerAudio(t *testing.T) {
	srv, recognizer, rec := newTestServer(t)
	defer srv.Close()
	conn := dial(t, srv)

	startCall(t, conn)
	readEvent(t, conn)

	frame := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xFF}, 160))
	for i := 0; i < 3; i++ {
		_ = conn.WriteJSON(TwilioMessage{Event: "media", StreamSid: "MZ1", Media: &TwilioMedia{Track: "inbound", Payload: frame}})
	}

	deadline := time.Now().Add(3 * time.Second)
	for recognizer.received() < 960 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected 960 bytes of PCM at the recognizer, got %d", recognizer.received())
		}
		time.Sleep(5 * time.Millisecond)
	}
	recognizer.mu.Lock()
	opts := recognizer.opts
	recognizer.mu.Unlock()
	if opts.Encoding != "linear16" || opts.SampleRate != 8000 {
		t.Errorf("Expected linear16 at 8kHz, got %+v", opts)
	}

	_ = conn.WriteJSON(TwilioMessage{Event: "stop", StreamSid: "MZ1", Stop: &TwilioStop{CallSid: "CA1"}})
	conn.Close()

	deadline = time.Now().Add(3 * time.Second)
	for len(rec.transcripts()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Expected a transcript after the call stopped")
		}
		time.Sleep(5 * time.Millisecond)
	}
	saved := rec.transcripts()[0]
	if saved.Room != "twilio-CA1" || saved.Direction != "inbound" {
		t.Errorf("Unexpected transcript: %+v", saved)
	}
}

func TestStream_BargeInClearsPlayback(t *testing.T) {
	srv, recognizer, _ := newTestServer(t)
	defer srv.Close()
	conn := dial(t, srv)
	defer conn.Close()

	startCall(t, conn)
	readEvent(t, conn)

	recognizer.events <- stt.Event{Kind: stt.EventSpeechStarted}

	msg := readEvent(t, conn)
	if msg["event"] != "clear" || msg["streamSid"] != "MZ1" {
		t.Errorf("Expected clear on MZ1, got %v", msg)
	}
}

func TestStream_RecognizerFailureEndsCall(t *testing.T) {
	srv, recognizer, rec := newTestServer(t)
	defer srv.Close()
	conn := dial(t, srv)
	defer conn.Close()

	startCall(t, conn)
	readEvent(t, conn)

	recognizer.events <- stt.Event{Kind: stt.EventError, Text: "websocket closed"}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
			t.Fatal("Expected the stream to be closed after a recognizer failure")
		}
		break
	}

	deadline := time.Now().Add(3 * time.Second)
	for len(rec.transcripts()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Expected a transcript after the stream closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://agent.example.com", "wss://agent.example.com/streams/twilio", false},
		{"https://agent.example.com/base/?x=1", "wss://agent.example.com/streams/twilio", false},
		{"http://localhost:8080", "ws://localhost:8080/streams/twilio", false},
		{"agent.example.com", "", true},
	}
	for _, tt := range tests {
		got, err := StreamURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("StreamURL(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("StreamURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTwiMLHandler(t *testing.T) {
	handler := TwiMLHandler("wss://agent.example.com/streams/twilio", zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/twiml", strings.NewReader("CallSid=CA1&From=%2B15551234567"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("Expected text/xml, got %s", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"<Response>", "<Connect>", "<Stream", "wss://agent.example.com/streams/twilio"} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in TwiML, got %s", want, body)
		}
	}
}
