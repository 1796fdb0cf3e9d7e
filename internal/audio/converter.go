package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// BytesToSamples decodes little-endian 16-bit PCM. A trailing odd byte is ignored.
func BytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// SamplesToBytes encodes samples as little-endian 16-bit PCM
func SamplesToBytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

// ConvertPCMToPCMU converts 16-bit little-endian PCM to G.711 μ-law,
// resampling from inputSampleRate to outputSampleRate first.
// Cartesia speaks 24kHz PCM; both telephony legs expect 8kHz PCMU.
func ConvertPCMToPCMU(pcmData []byte, inputSampleRate, outputSampleRate int) ([]byte, error) {
	if len(pcmData) == 0 {
		return nil, fmt.Errorf("empty PCM data")
	}
	if len(pcmData)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples)")
	}

	samples := BytesToSamples(pcmData)
	if inputSampleRate != outputSampleRate {
		samples = resample(samples, inputSampleRate, outputSampleRate)
	}

	pcmu := make([]byte, len(samples))
	for i, s := range samples {
		pcmu[i] = linearToMulaw(s)
	}
	return pcmu, nil
}

// ConvertPCMUToPCM decodes G.711 μ-law to 16-bit little-endian PCM at the same rate
func ConvertPCMUToPCM(pcmuData []byte) ([]byte, error) {
	if len(pcmuData) == 0 {
		return nil, fmt.Errorf("empty PCMU data")
	}
	samples := make([]int16, len(pcmuData))
	for i, b := range pcmuData {
		samples[i] = mulawToLinear(b)
	}
	return SamplesToBytes(samples), nil
}

// resample uses linear interpolation. Telephony bandwidth hides its artifacts.
func resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	out := make([]int16, len(samples)*outputRate/inputRate)
	last := len(samples) - 1

	for i := range out {
		pos := float64(i) / ratio
		idx0 := int(pos)
		if idx0 > last {
			idx0 = last
		}
		idx1 := idx0 + 1
		if idx1 > last {
			idx1 = last
		}
		frac := pos - float64(idx0)
		out[i] = int16(float64(samples[idx0])*(1.0-frac) + float64(samples[idx1])*frac)
	}
	return out
}

// linearToMulaw encodes one sample per ITU-T G.711
func linearToMulaw(sample int16) byte {
	const (
		clip = 8159
		bias = 0x21
	)

	var sign byte
	magnitude := int32(sample)
	if magnitude < 0 {
		sign = 0x80
		magnitude = -magnitude
	}
	// 16-bit input is scaled to the 14-bit range μ-law covers
	magnitude >>= 2
	if magnitude > clip {
		magnitude = clip
	}
	magnitude += bias
	if magnitude > 0x1FFF {
		magnitude = 0x1FFF
	}

	segment := byte(0)
	for s := int32(magnitude >> 6); s > 0 && segment < 7; s >>= 1 {
		segment++
	}

	mantissa := byte((magnitude >> (segment + 1)) & 0x0F)
	return ^(sign | segment<<4 | mantissa)
}

// mulawToLinear decodes one μ-law byte back to 16-bit PCM
func mulawToLinear(b byte) int16 {
	b = ^b
	sign := b & 0x80
	segment := int32((b >> 4) & 0x07)
	mantissa := int32(b & 0x0F)

	magnitude := ((mantissa << 1) + 33) << segment
	magnitude = (magnitude - 33) << 2

	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// CalculateRMS returns the root mean square level of samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
