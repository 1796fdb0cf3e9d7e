package pipeline

import (
	"time"

	"github.com/lexiqai/voice-agent/internal/config"
)

// Provider names reported in logs and readiness output
const (
	ProviderDeepgram  = "deepgram"
	ProviderGroq      = "groq"
	ProviderCartesia  = "cartesia"
	ProviderEnergyVAD = "energy"
	ProviderTurnModel = "english-heuristic"
	ProviderNoiseGate = "noise-gate"
)

// DefaultGreeting steers the opening line on inbound calls
const DefaultGreeting = "Greet the user and offer your assistance."

// STTConfig selects the speech recognizer
type STTConfig struct {
	Provider string
	Model    string
	Language string
}

// LLMConfig selects the language model
type LLMConfig struct {
	Provider     string
	BaseURL      string
	Model        string
	Temperature  float64
	MaxToolTurns int
}

// TTSConfig selects the voice
type TTSConfig struct {
	Provider string
	Model    string
	Voice    string
}

// VADConfig configures local voice activity detection on PCM call legs
type VADConfig struct {
	Provider        string
	EnergyThreshold float64
	SilenceFrames   int
}

// TurnConfig configures end-of-turn detection
type TurnConfig struct {
	Provider       string
	MinEndpointing time.Duration
	MaxEndpointing time.Duration
}

// NoiseConfig configures the noise reducer on PCM call legs
type NoiseConfig struct {
	Provider  string
	Threshold float64
}

// RecordingConfig is the object store target for call artifacts
type RecordingConfig struct {
	Enabled bool
	Region  string
	Bucket  string
}

// Config describes the pipeline. It is built once at startup and never
// changed; every call session runs with the same Config.
type Config struct {
	STT       STTConfig
	LLM       LLMConfig
	TTS       TTSConfig
	VAD       VADConfig
	Turn      TurnConfig
	Noise     NoiseConfig
	Recording RecordingConfig

	Instructions string
	Greeting     string
}

// FromConfig derives the pipeline description from the agent configuration
func FromConfig(cfg *config.AgentConfig) Config {
	return Config{
		STT: STTConfig{
			Provider: ProviderDeepgram,
			Model:    cfg.DeepgramModel,
			Language: cfg.DeepgramLanguage,
		},
		LLM: LLMConfig{
			Provider:     ProviderGroq,
			BaseURL:      cfg.GroqBaseURL,
			Model:        cfg.LLMModel,
			Temperature:  cfg.LLMTemperature,
			MaxToolTurns: cfg.LLMMaxToolTurns,
		},
		TTS: TTSConfig{
			Provider: ProviderCartesia,
			Model:    cfg.CartesiaModelID,
			Voice:    cfg.CartesiaVoiceID,
		},
		VAD: VADConfig{
			Provider:        ProviderEnergyVAD,
			EnergyThreshold: cfg.VADEnergyThreshold,
			SilenceFrames:   cfg.VADSilenceFrames,
		},
		Turn: TurnConfig{
			Provider:       ProviderTurnModel,
			MinEndpointing: time.Duration(cfg.TurnMinEndpointingMs) * time.Millisecond,
			MaxEndpointing: time.Duration(cfg.TurnMaxEndpointingMs) * time.Millisecond,
		},
		Noise: NoiseConfig{
			Provider:  ProviderNoiseGate,
			Threshold: cfg.NoiseGateThreshold,
		},
		Recording: RecordingConfig{
			Enabled: cfg.RecordingEnabled(),
			Region:  cfg.S3Region,
			Bucket:  cfg.S3Bucket,
		},
		Instructions: Instructions,
		Greeting:     DefaultGreeting,
	}
}
