package audio

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection
	SilenceFrames   int     // Consecutive silent frames that end speech
	FrameSize       int     // Samples per frame (160 for 20ms at 8kHz)
}

// DefaultVADConfig returns a default VAD configuration
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   10, // 200ms
		FrameSize:       160,
	}
}

// VADState is the detector output for one frame or one chunk of frames
type VADState struct {
	Speaking bool
	Started  bool
	Ended    bool
}

// VADDetector performs energy based Voice Activity Detection
type VADDetector struct {
	config         *VADConfig
	silenceCounter int
	isSpeaking     bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &VADDetector{config: config}
}

// ProcessFrame classifies one frame of samples
func (v *VADDetector) ProcessFrame(samples []int16) VADState {
	var state VADState

	if CalculateRMS(samples) > v.config.EnergyThreshold {
		v.silenceCounter = 0
		if !v.isSpeaking {
			state.Started = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			state.Ended = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	state.Speaking = v.isSpeaking
	return state
}

// ProcessPCM splits 16-bit PCM into frames and folds their states together.
// Started and Ended are set if any frame in the chunk started or ended speech.
func (v *VADDetector) ProcessPCM(pcm []byte) VADState {
	samples := BytesToSamples(pcm)
	frame := v.config.FrameSize
	if frame <= 0 {
		frame = len(samples)
	}

	state := VADState{Speaking: v.isSpeaking}
	for start := 0; start < len(samples); start += frame {
		end := start + frame
		if end > len(samples) {
			end = len(samples)
		}
		s := v.ProcessFrame(samples[start:end])
		state.Speaking = s.Speaking
		state.Started = state.Started || s.Started
		state.Ended = state.Ended || s.Ended
	}
	return state
}

// Reset resets the VAD detector state
func (v *VADDetector) Reset() {
	v.silenceCounter = 0
	v.isSpeaking = false
}

// IsSpeaking returns whether speech is currently detected
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}
