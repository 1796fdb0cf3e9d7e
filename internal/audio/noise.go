package audio

// NoiseGateConfig configures the telephony noise gate
type NoiseGateConfig struct {
	Threshold  float64 // frame RMS below which the frame is muted
	HoldFrames int     // quiet frames passed through after a loud one
	FrameSize  int
}

// DefaultNoiseGateConfig returns the gate settings used for 8kHz call audio
func DefaultNoiseGateConfig() NoiseGateConfig {
	return NoiseGateConfig{
		Threshold:  120.0,
		HoldFrames: 5,
		FrameSize:  160,
	}
}

// NoiseGate mutes low-energy frames of line noise before they reach STT.
// Quiet frames right after speech are held open so word tails survive.
type NoiseGate struct {
	config NoiseGateConfig
	hold   int
}

// NewNoiseGate creates a noise gate
func NewNoiseGate(config NoiseGateConfig) *NoiseGate {
	if config.FrameSize <= 0 {
		config.FrameSize = 160
	}
	return &NoiseGate{config: config}
}

// Process returns a gated copy of samples
func (g *NoiseGate) Process(samples []int16) []int16 {
	out := make([]int16, len(samples))
	copy(out, samples)

	for start := 0; start < len(out); start += g.config.FrameSize {
		end := start + g.config.FrameSize
		if end > len(out) {
			end = len(out)
		}
		frame := out[start:end]

		if CalculateRMS(frame) >= g.config.Threshold {
			g.hold = g.config.HoldFrames
			continue
		}
		if g.hold > 0 {
			g.hold--
			continue
		}
		for i := range frame {
			frame[i] = 0
		}
	}
	return out
}

// ProcessPCM gates 16-bit little-endian PCM
func (g *NoiseGate) ProcessPCM(pcm []byte) []byte {
	return SamplesToBytes(g.Process(BytesToSamples(pcm)))
}
