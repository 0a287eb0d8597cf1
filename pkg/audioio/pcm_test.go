package audioio

import (
	"errors"
	"math"
	"testing"
)

func TestEncodeFloat32_Clamps(t *testing.T) {
	data := EncodeFloat32([]float32{2, -2, 1, -1, 0})
	samples := BytesToSamples(data)

	expected := []int16{32767, -32768, 32767, -32768, 0}
	for i, s := range expected {
		if samples[i] != s {
			t.Errorf("Sample %d: expected %d, got %d", i, s, samples[i])
		}
	}
}

func TestEncodeFloat32_NaN(t *testing.T) {
	samples := BytesToSamples(EncodeFloat32([]float32{float32(math.NaN())}))
	if samples[0] != 0 {
		t.Errorf("Expected NaN to encode as 0, got %d", samples[0])
	}
}

func TestEncodeFloat32_LittleEndian(t *testing.T) {
	data := EncodeFloat32([]float32{0.5})
	// 0.5 * 32767 = 16383 = 0x3FFF
	if len(data) != 2 || data[0] != 0xFF || data[1] != 0x3F {
		t.Errorf("Expected [0xFF 0x3F], got %x", data)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	const step = 1.0 / 32767

	input := make([]float32, 2001)
	for i := range input {
		input[i] = float32(i-1000) / 1000
	}

	samples, err := DecodePCM16(EncodeFloat32(input))
	if err != nil {
		t.Fatalf("DecodePCM16 failed: %v", err)
	}
	if len(samples) != len(input) {
		t.Fatalf("Expected %d samples, got %d", len(input), len(samples))
	}

	for i, s := range samples {
		got := ToNormalizedFloat(s)
		if diff := math.Abs(got - float64(input[i])); diff > step*1.01 {
			t.Errorf("Sample %d: %f decoded as %f (diff %g > %g)", i, input[i], got, diff, step)
		}
	}
}

func TestDecodePCM16_OddLength(t *testing.T) {
	_, err := DecodePCM16([]byte{1, 2, 3})
	if !errors.Is(err, ErrMalformedAudio) {
		t.Fatalf("Expected ErrMalformedAudio, got %v", err)
	}

	var malformed *MalformedAudioError
	if !errors.As(err, &malformed) || malformed.Length != 3 {
		t.Errorf("Expected MalformedAudioError with length 3, got %v", err)
	}
}

func TestDecodePCM16_Empty(t *testing.T) {
	samples, err := DecodePCM16(nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("Expected no samples, got %d", len(samples))
	}
}

func TestToNormalizedFloat(t *testing.T) {
	tests := []struct {
		in   int16
		want float64
	}{
		{0, 0},
		{32767, 1},
		{-32767, -1},
	}

	for _, tt := range tests {
		if got := ToNormalizedFloat(tt.in); got != tt.want {
			t.Errorf("ToNormalizedFloat(%d) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestNewChunk(t *testing.T) {
	chunk, err := NewChunk([]byte{0x02, 0x01, 0x04, 0x03}, 24000)
	if err != nil {
		t.Fatalf("NewChunk failed: %v", err)
	}
	if len(chunk.Samples) != 2 || chunk.SampleRate != 24000 || chunk.Channels != 1 {
		t.Errorf("Unexpected chunk: %+v", chunk)
	}

	if _, err := NewChunk([]byte{1}, 24000); !errors.Is(err, ErrMalformedAudio) {
		t.Errorf("Expected ErrMalformedAudio, got %v", err)
	}
}

func TestAudioChunk_Duration(t *testing.T) {
	chunk := AudioChunk{Samples: make([]int16, 12000), SampleRate: 24000, Channels: 1}
	if d := chunk.Duration(); d != 0.5 {
		t.Errorf("Expected 0.5s, got %f", d)
	}

	empty := AudioChunk{}
	if d := empty.Duration(); d != 0 {
		t.Errorf("Expected 0 for zero-rate chunk, got %f", d)
	}
}

func TestSampleBytes(t *testing.T) {
	data := []byte{0x02, 0x01, 0xff, 0xff, 0x7f}
	samples := BytesToSamples(data)
	if len(samples) != 2 || samples[0] != 0x0102 || samples[1] != -1 {
		t.Fatalf("Unexpected samples %v (trailing byte should be ignored)", samples)
	}

	back := SamplesToBytes(samples)
	if string(back) != string(data[:4]) {
		t.Errorf("Expected %x, got %x", data[:4], back)
	}
}
