// Package pipeline assembles the per-process voice pipeline and runs it for
// each call session.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-agent/internal/config"
	"github.com/lexiqai/voice-agent/internal/llm"
	"github.com/lexiqai/voice-agent/internal/stt"
	"github.com/lexiqai/voice-agent/internal/tools"
	"github.com/lexiqai/voice-agent/internal/tts"
)

// Responder produces the agent's next line
type Responder interface {
	Reply(ctx context.Context, conv *llm.Conversation, userText string) (string, error)
	Instruct(ctx context.Context, conv *llm.Conversation, instruction string) (string, error)
}

// Pipeline holds the provider clients shared by every call. Nothing in it
// changes after New returns.
type Pipeline struct {
	config    Config
	newSTT    stt.Factory
	responder Responder
	tts       tts.Synthesizer
	tools     *tools.Registry
	logger    zerolog.Logger
}

// New builds the pipeline from the agent configuration
func New(cfg *config.AgentConfig, logger zerolog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pc := FromConfig(cfg)

	registry, err := tools.NewRegistry(tools.NewWeather(cfg.OpenWeatherAPIKey, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}

	newSTT := stt.NewDeepgramFactory(stt.DeepgramSettings{
		APIKey:   cfg.DeepgramAPIKey,
		Model:    pc.STT.Model,
		Language: pc.STT.Language,
	}, logger)

	responder := llm.NewClient(llm.Settings{
		APIKey:       cfg.GroqAPIKey,
		BaseURL:      pc.LLM.BaseURL,
		Model:        pc.LLM.Model,
		Temperature:  pc.LLM.Temperature,
		MaxToolTurns: pc.LLM.MaxToolTurns,
	}, registry, logger)

	synth := tts.NewCartesiaClient(tts.CartesiaSettings{
		APIKey:  cfg.CartesiaAPIKey,
		ModelID: pc.TTS.Model,
		VoiceID: pc.TTS.Voice,
	}, logger)

	p := NewWithComponents(pc, newSTT, responder, synth, logger)
	p.tools = registry

	logger.Info().
		Str("stt", pc.STT.Provider+"/"+pc.STT.Model).
		Str("llm", pc.LLM.Provider+"/"+pc.LLM.Model).
		Str("tts", pc.TTS.Provider+"/"+pc.TTS.Model).
		Str("vad", pc.VAD.Provider).
		Str("turn_detection", pc.Turn.Provider).
		Str("noise_reduction", pc.Noise.Provider).
		Bool("recording", pc.Recording.Enabled).
		Msg("Pipeline assembled")
	return p, nil
}

// NewWithComponents assembles a pipeline from already built clients
func NewWithComponents(cfg Config, newSTT stt.Factory, responder Responder, synth tts.Synthesizer, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		config:    cfg,
		newSTT:    newSTT,
		responder: responder,
		tts:       synth,
		logger:    logger,
	}
}

// Config returns the pipeline description
func (p *Pipeline) Config() Config {
	return p.config
}

// Tools returns the registered tool set, nil when built from components
func (p *Pipeline) Tools() *tools.Registry {
	return p.tools
}
