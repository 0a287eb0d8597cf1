package audioio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedAudio indicates a PCM16 payload that cannot be decoded.
var ErrMalformedAudio = errors.New("audioio: malformed audio")

// MalformedAudioError describes an undecodable PCM16 payload.
type MalformedAudioError struct {
	// Length is the byte length of the rejected payload.
	Length int
}

// Error implements the error interface.
func (e *MalformedAudioError) Error() string {
	return fmt.Sprintf("audioio: malformed audio: %d bytes is not a whole number of 16-bit samples", e.Length)
}

// Is reports whether target is ErrMalformedAudio.
func (e *MalformedAudioError) Is(target error) bool {
	return target == ErrMalformedAudio
}

// EncodeFloat32 converts float samples in [-1, 1] to little-endian PCM16.
// Out-of-range input is clamped, never rejected.
func EncodeFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToPCM16(s)))
	}
	return out
}

// DecodePCM16 converts little-endian PCM16 bytes to samples.
func DecodePCM16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, &MalformedAudioError{Length: len(data)}
	}
	return BytesToSamples(data), nil
}

// ToNormalizedFloat maps a PCM16 sample to roughly [-1, 1].
func ToNormalizedFloat(s int16) float64 {
	return float64(s) / 32767
}

func floatToPCM16(s float32) int16 {
	switch {
	case s != s: // NaN
		return 0
	case s >= 1:
		return 32767
	case s <= -1:
		return -32768
	case s < 0:
		return int16(s * 32768)
	default:
		return int16(s * 32767)
	}
}

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
// A trailing odd byte is ignored; use DecodePCM16 to reject it instead.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}
