package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-agent/internal/audio"
	"github.com/lexiqai/voice-agent/internal/observability"
)

const (
	defaultCartesiaURL = "https://api.cartesia.ai/tts/bytes"
	cartesiaVersion    = "2024-06-10"

	cartesiaSampleRate = 24000
	outputSampleRate   = 8000

	// 100ms of 16-bit PCM at 24kHz
	readChunkBytes = 4800
)

// CartesiaSettings are the per-process Cartesia parameters
type CartesiaSettings struct {
	APIKey  string
	ModelID string
	VoiceID string
	// URL overrides the bytes endpoint; empty uses Cartesia's
	URL string
}

type cartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// CartesiaRequest represents the request payload for Cartesia's bytes endpoint
type CartesiaRequest struct {
	ModelID      string               `json:"model_id"`
	Transcript   string               `json:"transcript"`
	Voice        cartesiaVoice        `json:"voice"`
	OutputFormat cartesiaOutputFormat `json:"output_format"`
	Language     string               `json:"language"`
}

// CartesiaClient implements Synthesizer using Cartesia's TTS API
type CartesiaClient struct {
	settings   CartesiaSettings
	apiURL     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewCartesiaClient creates a new Cartesia TTS client
func NewCartesiaClient(settings CartesiaSettings, logger zerolog.Logger) *CartesiaClient {
	apiURL := settings.URL
	if apiURL == "" {
		apiURL = defaultCartesiaURL
	}
	return &CartesiaClient{
		settings:   settings,
		apiURL:     apiURL,
		httpClient: &http.Client{},
		logger:     logger.With().Str("component", "cartesia").Logger(),
	}
}

// Synthesize requests speech for text and streams it back as 8kHz PCMU
func (c *CartesiaClient) Synthesize(ctx context.Context, text string) (<-chan *AudioChunk, error) {
	jsonData, err := json.Marshal(CartesiaRequest{
		ModelID:    c.settings.ModelID,
		Transcript: text,
		Voice:      cartesiaVoice{Mode: "id", ID: c.settings.VoiceID},
		OutputFormat: cartesiaOutputFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: cartesiaSampleRate,
		},
		Language: "en",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.settings.APIKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("cartesia API returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	audioChan := make(chan *AudioChunk, 10)
	go c.stream(ctx, resp.Body, audioChan)
	return audioChan, nil
}

// stream converts the response body chunk by chunk so playout can start
// before Cartesia has finished the sentence
func (c *CartesiaClient) stream(ctx context.Context, body io.ReadCloser, out chan<- *AudioChunk) {
	defer close(out)
	defer body.Close()

	buf := make([]byte, readChunkBytes)
	total := 0
	for {
		n, err := io.ReadFull(body, buf)
		// a trailing odd byte cannot form a sample
		n -= n % 2
		if n > 0 {
			pcmu, convErr := audio.ConvertPCMToPCMU(buf[:n], cartesiaSampleRate, outputSampleRate)
			if convErr != nil {
				c.logger.Error().Err(convErr).Msg("Error converting audio format")
				return
			}
			select {
			case out <- &AudioChunk{Data: pcmu, SampleRate: outputSampleRate, Channels: 1}:
				total += len(pcmu)
			case <-ctx.Done():
				return
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && ctx.Err() == nil {
				c.logger.Error().Err(err).Msg("Error reading Cartesia audio response")
				observability.RecordError("read_error", observability.StageTTS)
			}
			if total == 0 && ctx.Err() == nil {
				c.logger.Warn().Msg("Cartesia returned empty audio data")
			}
			return
		}
	}
}
