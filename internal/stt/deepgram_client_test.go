package stt

import (
	"encoding/json"
	"errors"
	"testing"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	"github.com/rs/zerolog"
)

func newTestClient(opts Options) *DeepgramClient {
	return NewDeepgramClient(DeepgramSettings{APIKey: "k", Model: "nova-2", Language: "en"}, opts, zerolog.Nop())
}

func decodeMessage(t *testing.T, raw string) *msginterfaces.MessageResponse {
	t.Helper()
	var msg msginterfaces.MessageResponse
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("Failed to decode message: %v", err)
	}
	return &msg
}

func TestDeepgramClient_HandleMessage(t *testing.T) {
	d := newTestClient(Options{})

	d.handleMessage(decodeMessage(t, `{
		"type": "Results",
		"channel": {"alternatives": [{"transcript": "What's the weather in Paris?", "confidence": 0.97}]},
		"is_final": true,
		"speech_final": true,
		"start": 1.5,
		"duration": 2.0
	}`))

	select {
	case ev := <-d.Events():
		if ev.Kind != EventTranscript {
			t.Fatalf("Expected transcript event, got %s", ev.Kind)
		}
		if ev.Text != "What's the weather in Paris?" || !ev.IsFinal || !ev.SpeechFinal {
			t.Errorf("Unexpected event %+v", ev)
		}
		if ev.Confidence != 0.97 || ev.StartTime != 1.5 || ev.Duration != 2.0 {
			t.Errorf("Unexpected timing/confidence %+v", ev)
		}
	default:
		t.Fatal("Expected an event")
	}
}

func TestDeepgramClient_HandleMessage_DurationFromWords(t *testing.T) {
	d := newTestClient(Options{})

	d.handleMessage(decodeMessage(t, `{
		"type": "Results",
		"channel": {"alternatives": [{"transcript": "hello there", "words": [
			{"word": "hello", "start": 0.5, "end": 0.9},
			{"word": "there", "start": 1.0, "end": 1.4}
		]}]}
	}`))

	ev := <-d.Events()
	if ev.IsFinal {
		t.Error("Expected interim result")
	}
	if ev.StartTime != 0.5 || ev.Duration < 0.89 || ev.Duration > 0.91 {
		t.Errorf("Expected timing from words, got start=%v duration=%v", ev.StartTime, ev.Duration)
	}
}

func TestDeepgramClient_HandleMessage_Ignored(t *testing.T) {
	d := newTestClient(Options{})

	d.handleMessage(nil)
	d.handleMessage(decodeMessage(t, `{"type": "Results", "channel": {"alternatives": []}}`))
	d.handleMessage(decodeMessage(t, `{"type": "Results", "channel": {"alternatives": [{"transcript": ""}]}}`))

	select {
	case ev := <-d.Events():
		t.Errorf("Expected no event, got %+v", ev)
	default:
	}
}

func TestDeepgramClient_HandleError(t *testing.T) {
	d := newTestClient(Options{})
	d.isActive = true

	d.handleError("socket closed")

	if d.isActive {
		t.Error("Expected client inactive after error")
	}
	ev := <-d.Events()
	if ev.Kind != EventError || ev.Text != "socket closed" {
		t.Errorf("Unexpected event %+v", ev)
	}
}

func TestDeepgramClient_EmitDropsWhenFull(t *testing.T) {
	d := newTestClient(Options{})
	for i := 0; i < cap(d.events)+10; i++ {
		d.emit(Event{Kind: EventSpeechStarted})
	}
	if len(d.events) != cap(d.events) {
		t.Errorf("Expected full channel, got %d", len(d.events))
	}
}

func TestDeepgramClient_SendAudioInactive(t *testing.T) {
	d := newTestClient(Options{})
	if err := d.SendAudio([]byte{0xFF}); !errors.Is(err, ErrNotActive) {
		t.Errorf("Expected ErrNotActive, got %v", err)
	}
}

func TestDeepgramClient_TranscriptionOptions(t *testing.T) {
	tests := []struct {
		name         string
		opts         Options
		wantEncoding string
		wantRate     int
	}{
		{"room ogg stream", Options{}, "", 0},
		{"telephony pcm", Options{Encoding: "linear16", SampleRate: 8000}, "linear16", 8000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestClient(tt.opts).transcriptionOptions()
			if o.Encoding != tt.wantEncoding || o.SampleRate != tt.wantRate {
				t.Errorf("Expected %s@%d, got %s@%d", tt.wantEncoding, tt.wantRate, o.Encoding, o.SampleRate)
			}
			if !o.InterimResults || !o.VadEvents || o.Model != "nova-2" {
				t.Errorf("Unexpected options %+v", o)
			}
		})
	}
}
