package config

import (
	"errors"
	"os"
	"strings"
	"testing"
)

var agentKeys = map[string]string{
	"LIVEKIT_URL":        "wss://example.livekit.cloud",
	"LIVEKIT_API_KEY":    "test-livekit-key",
	"LIVEKIT_API_SECRET": "test-livekit-secret",
	"DEEPGRAM_API_KEY":   "test-deepgram-key",
	"GROQ_API_KEY":       "test-groq-key",
	"CARTESIA_API_KEY":   "test-cartesia-key",
}

func setAgentEnv(t *testing.T) {
	t.Helper()
	for k, v := range agentKeys {
		t.Setenv(k, v)
	}
}

func TestLoadAgentFromEnv(t *testing.T) {
	setAgentEnv(t)

	cfg, err := LoadAgentFromEnv()
	if err != nil {
		t.Fatalf("LoadAgentFromEnv() failed: %v", err)
	}

	if cfg.LiveKit.URL != "wss://example.livekit.cloud" {
		t.Errorf("Expected LiveKit URL from LIVEKIT_URL, got '%s'", cfg.LiveKit.URL)
	}
	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
	if cfg.GroqAPIKey != "test-groq-key" {
		t.Errorf("Expected GroqAPIKey 'test-groq-key', got '%s'", cfg.GroqAPIKey)
	}
}

func TestLoadAgentFromEnv_MissingRequired(t *testing.T) {
	for missing := range agentKeys {
		t.Run(missing, func(t *testing.T) {
			setAgentEnv(t)
			os.Unsetenv(missing)

			_, err := LoadAgentFromEnv()
			if err == nil {
				t.Fatalf("Expected error when %s is missing", missing)
			}
			if !errors.Is(err, ErrMissingCredential) {
				t.Errorf("Expected ErrMissingCredential, got %v", err)
			}
			if !strings.Contains(err.Error(), missing) {
				t.Errorf("Expected error to name %s, got %v", missing, err)
			}
		})
	}
}

func TestLoadAgentFromEnv_Defaults(t *testing.T) {
	setAgentEnv(t)
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("AGENT_NAME")

	cfg, err := LoadAgentFromEnv()
	if err != nil {
		t.Fatalf("LoadAgentFromEnv() failed: %v", err)
	}

	if cfg.AgentName != "livekit-marek" {
		t.Errorf("Expected default AgentName 'livekit-marek', got '%s'", cfg.AgentName)
	}
	if cfg.LLMModel != "llama3-8b-8192" {
		t.Errorf("Expected default LLMModel 'llama3-8b-8192', got '%s'", cfg.LLMModel)
	}
	if cfg.CartesiaModelID != "sonic-2" {
		t.Errorf("Expected default CartesiaModelID 'sonic-2', got '%s'", cfg.CartesiaModelID)
	}
	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}
	if cfg.S3Region != "eu-north-1" {
		t.Errorf("Expected default S3Region 'eu-north-1', got '%s'", cfg.S3Region)
	}
	if cfg.S3Bucket != "livekit-calls" {
		t.Errorf("Expected default S3Bucket 'livekit-calls', got '%s'", cfg.S3Bucket)
	}
	if cfg.ProvisionOutput != "livekit-sip.json" {
		t.Errorf("Expected default ProvisionOutput 'livekit-sip.json', got '%s'", cfg.ProvisionOutput)
	}
	if cfg.VADEnergyThreshold != 500.0 {
		t.Errorf("Expected default VADEnergyThreshold 500.0, got %f", cfg.VADEnergyThreshold)
	}
	if cfg.VADSilenceFrames != 10 {
		t.Errorf("Expected default VADSilenceFrames 10, got %d", cfg.VADSilenceFrames)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}

func TestAgentConfig_RecordingEnabled(t *testing.T) {
	cfg := &AgentConfig{}
	if cfg.RecordingEnabled() {
		t.Error("Expected recording disabled without S3 credentials")
	}

	cfg.S3AccessKey = "access"
	if cfg.RecordingEnabled() {
		t.Error("Expected recording disabled with only an access key")
	}

	cfg.S3SecretKey = "secret"
	if !cfg.RecordingEnabled() {
		t.Error("Expected recording enabled with both S3 credentials")
	}
}

func TestProvisionConfig_Validate(t *testing.T) {
	cfg := &ProvisionConfig{
		Twilio:  TwilioConfig{AccountSID: "AC123", AuthToken: "token"},
		LiveKit: LiveKitConfig{URL: "wss://x", APIKey: "k", APISecret: "s"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	cfg.Twilio.AuthToken = " "
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected error for blank TWILIO_AUTH_TOKEN")
	}
	if !strings.Contains(err.Error(), "TWILIO_AUTH_TOKEN") {
		t.Errorf("Expected error to name TWILIO_AUTH_TOKEN, got %v", err)
	}
}
