package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ErrMissingCredential is returned when a required credential is absent.
var ErrMissingCredential = errors.New("missing required credential")

// LiveKitConfig holds the agent runtime (LiveKit Cloud) project credentials
type LiveKitConfig struct {
	URL       string `envconfig:"LIVEKIT_URL"`
	APIKey    string `envconfig:"LIVEKIT_API_KEY"`
	APISecret string `envconfig:"LIVEKIT_API_SECRET"`
}

// TwilioConfig holds the telephony provider credentials
type TwilioConfig struct {
	AccountSID string `envconfig:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `envconfig:"TWILIO_AUTH_TOKEN"`
}

// AgentConfig holds all configuration for the voice agent process
type AgentConfig struct {
	LiveKit LiveKitConfig

	// Name the worker registers under; dispatch rules and outbound dispatches target it
	AgentName string `envconfig:"AGENT_NAME" default:"livekit-marek"`

	// Outbound SIP trunk. If empty, the provisioning artifact is consulted.
	OutboundTrunkID string `envconfig:"LIVEKIT_OUTBOUND_TRUNK_ID" default:""`
	ProvisionOutput string `envconfig:"PROVISION_OUTPUT" default:"livekit-sip.json"`

	// Deepgram STT
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Groq LLM (OpenAI-compatible endpoint)
	GroqAPIKey      string  `envconfig:"GROQ_API_KEY"`
	GroqBaseURL     string  `envconfig:"GROQ_BASE_URL" default:"https://api.groq.com/openai/v1/"`
	LLMModel        string  `envconfig:"LLM_MODEL" default:"llama3-8b-8192"`
	LLMTemperature  float64 `envconfig:"LLM_TEMPERATURE" default:"0.7"`
	LLMMaxToolTurns int     `envconfig:"LLM_MAX_TOOL_TURNS" default:"3"`

	// Cartesia TTS
	CartesiaAPIKey  string `envconfig:"CARTESIA_API_KEY"`
	CartesiaModelID string `envconfig:"CARTESIA_MODEL_ID" default:"sonic-2"`
	CartesiaVoiceID string `envconfig:"CARTESIA_VOICE_ID" default:"73369e4c-fd0c-4f46-92db-01c7fc6ea830"`

	// Voice activity, turn detection and noise reduction
	VADEnergyThreshold   float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"` // RMS energy threshold
	VADSilenceFrames     int     `envconfig:"VAD_SILENCE_FRAMES" default:"10"`      // 20ms frames of silence to end speech
	TurnMinEndpointingMs int     `envconfig:"TURN_MIN_ENDPOINTING_MS" default:"500"`
	TurnMaxEndpointingMs int     `envconfig:"TURN_MAX_ENDPOINTING_MS" default:"6000"`
	NoiseGateThreshold   float64 `envconfig:"NOISE_GATE_THRESHOLD" default:"120.0"` // RMS below which frames are muted

	// Example tool
	OpenWeatherAPIKey string `envconfig:"OPENWEATHER_API_KEY" default:""`

	// Call recordings
	S3AccessKey string `envconfig:"AWS_S3_ACCESS_KEY" default:""`
	S3SecretKey string `envconfig:"AWS_S3_SECRET_KEY" default:""`
	S3Region    string `envconfig:"AWS_S3_REGION" default:"eu-north-1"`
	S3Bucket    string `envconfig:"AWS_S3_BUCKET" default:"livekit-calls"`

	// HTTP server (health, metrics, Twilio media streams)
	Port string `envconfig:"PORT" default:"8081"`
	// Public base URL Twilio reaches this service on, e.g. https://xxx.ngrok-free.dev
	PublicURL string `envconfig:"PUBLIC_URL" default:""`

	// Observability
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// RecordingEnabled reports whether object-store credentials are configured
func (c *AgentConfig) RecordingEnabled() bool {
	return c.S3AccessKey != "" && c.S3SecretKey != ""
}

// Validate checks that every credential the pipeline cannot run without is present
func (c *AgentConfig) Validate() error {
	return requireAll(map[string]string{
		"LIVEKIT_URL":        c.LiveKit.URL,
		"LIVEKIT_API_KEY":    c.LiveKit.APIKey,
		"LIVEKIT_API_SECRET": c.LiveKit.APISecret,
		"DEEPGRAM_API_KEY":   c.DeepgramAPIKey,
		"GROQ_API_KEY":       c.GroqAPIKey,
		"CARTESIA_API_KEY":   c.CartesiaAPIKey,
	})
}

// ProvisionConfig holds the credentials the provisioning command needs
type ProvisionConfig struct {
	Twilio  TwilioConfig
	LiveKit LiveKitConfig

	AgentName string `envconfig:"AGENT_NAME" default:"livekit-marek"`
	Output    string `envconfig:"PROVISION_OUTPUT" default:"livekit-sip.json"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Validate checks the Twilio and LiveKit credentials are present
func (c *ProvisionConfig) Validate() error {
	return requireAll(map[string]string{
		"TWILIO_ACCOUNT_SID": c.Twilio.AccountSID,
		"TWILIO_AUTH_TOKEN":  c.Twilio.AuthToken,
		"LIVEKIT_URL":        c.LiveKit.URL,
		"LIVEKIT_API_KEY":    c.LiveKit.APIKey,
		"LIVEKIT_API_SECRET": c.LiveKit.APISecret,
	})
}

// LoadAgent reads agent configuration from environment variables.
// It first attempts to load a .env file if one exists.
func LoadAgent() (*AgentConfig, error) {
	_ = godotenv.Load()
	return LoadAgentFromEnv()
}

// LoadAgentFromEnv loads agent configuration without reading a .env file
func LoadAgentFromEnv() (*AgentConfig, error) {
	var cfg AgentConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadProvision reads provisioning configuration, loading .env first
func LoadProvision() (*ProvisionConfig, error) {
	_ = godotenv.Load()

	var cfg ProvisionConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func requireAll(values map[string]string) error {
	var missing []string
	for key, value := range values {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s", ErrMissingCredential, strings.Join(missing, ", "))
}
