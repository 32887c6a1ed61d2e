package audio

import (
	"fmt"
	"math"
)

// Encoding identifies the wire format of client audio
type Encoding string

const (
	EncodingLinear16 Encoding = "linear16" // 16-bit signed little-endian PCM
	EncodingMulaw    Encoding = "mulaw"    // G.711 PCMU
)

// Valid reports whether e is a supported encoding
func (e Encoding) Valid() bool {
	return e == EncodingLinear16 || e == EncodingMulaw
}

// AmplitudeFrame holds normalized sample magnitudes in [0, 1]
type AmplitudeFrame []float64

// DecodePCM16 converts 16-bit little-endian PCM bytes to samples.
// A trailing odd byte is ignored.
func DecodePCM16(pcmData []byte) []int16 {
	samples := make([]int16, len(pcmData)/2)
	for i := range samples {
		samples[i] = int16(pcmData[i*2]) | int16(pcmData[i*2+1])<<8
	}
	return samples
}

// DecodePCMU converts G.711 PCMU (μ-law) bytes to linear samples
func DecodePCMU(pcmuData []byte) []int16 {
	samples := make([]int16, len(pcmuData))
	for i, b := range pcmuData {
		samples[i] = mulawToLinear(b)
	}
	return samples
}

// Decode converts raw audio in the given encoding to linear samples
func Decode(data []byte, encoding Encoding) ([]int16, error) {
	switch encoding {
	case EncodingLinear16:
		return DecodePCM16(data), nil
	case EncodingMulaw:
		return DecodePCMU(data), nil
	default:
		return nil, fmt.Errorf("unsupported audio encoding %q", encoding)
	}
}

// mulawToLinear converts an 8-bit μ-law sample to 16-bit linear PCM
func mulawToLinear(mulawByte byte) int16 {
	// μ-law uses inverted representation
	mulawByte = ^mulawByte

	sign := mulawByte & 0x80
	segment := int32((mulawByte >> 4) & 0x07)
	mantissa := int32(mulawByte & 0x0F)

	// step = (mantissa << (segment + 1)) + (33 << segment), minus bias
	step := mantissa << (segment + 1)
	step += int32(33) << segment
	magnitude := step - 33

	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// Normalize maps linear samples to magnitudes in [0, 1]
func Normalize(samples []int16) AmplitudeFrame {
	frame := make(AmplitudeFrame, len(samples))
	for i, s := range samples {
		v := math.Abs(float64(s)) / 32768.0
		if v > 1 {
			v = 1
		}
		frame[i] = v
	}
	return frame
}

// RMS returns the root mean square of a frame, 0 for an empty frame
func (f AmplitudeFrame) RMS() float64 {
	if len(f) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, v := range f {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(f)))
}
