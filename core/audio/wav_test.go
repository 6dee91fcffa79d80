package audio

import (
	"math"
	"testing"
	"time"
)

func TestWAVRoundTripPreservesSamples(t *testing.T) {
	samples := make([]float32, 256)
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) / 16))
	}

	decoded, rate, err := DecodeWAV(EncodeWAV(samples, 16000))
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if rate != 16000 {
		t.Fatalf("expected sample rate 16000, got %d", rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if diff := abs32(decoded[i] - samples[i]); diff > 1.0/30000 {
			t.Fatalf("sample %d drifted by %f", i, diff)
		}
	}
}

func TestEncodeWAVClampsOutOfRangeSamples(t *testing.T) {
	decoded, _, err := DecodeWAV(EncodeWAV([]float32{2.0, -2.0}, 16000))
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if decoded[0] < 0.99 || decoded[1] > -0.99 {
		t.Fatalf("expected clamped full-scale samples, got %v", decoded)
	}
}

func TestDecodeWAVDownmixesStereo(t *testing.T) {
	// Hand-build a 2-channel file: left at full scale, right silent.
	data := []byte("RIFF\x00\x00\x00\x00WAVE")
	fmtChunk := []byte("fmt \x10\x00\x00\x00" +
		"\x01\x00" + // PCM
		"\x02\x00" + // 2 channels
		"\x40\x1f\x00\x00" + // 8000 Hz
		"\x00\x7d\x00\x00" + // byte rate
		"\x04\x00" + // block align
		"\x10\x00") // 16 bits
	dataChunk := []byte("data\x08\x00\x00\x00" +
		"\xff\x7f\x00\x00" + // frame 0: left max, right 0
		"\xff\x7f\x00\x00") // frame 1

	file := append(data, fmtChunk...)
	file = append(file, dataChunk...)

	decoded, rate, err := DecodeWAV(file)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if rate != 8000 {
		t.Fatalf("expected 8000 Hz, got %d", rate)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 downmixed frames, got %d", len(decoded))
	}
	if abs32(decoded[0]-0.5) > 0.01 {
		t.Fatalf("expected averaged downmix ~0.5, got %f", decoded[0])
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("definitely not audio")); err == nil {
		t.Fatal("expected an error for non-WAV input")
	}
	if _, _, err := DecodeWAV(nil); err == nil {
		t.Fatal("expected an error for empty input")
	}
}

func TestTrimSilenceKeepsMargins(t *testing.T) {
	samples := make([]float32, 100)
	for i := 40; i < 60; i++ {
		samples[i] = 0.5
	}

	trimmed := TrimSilence(samples, DefaultSilenceFloor, 10)
	if len(trimmed) != 40 {
		t.Fatalf("expected 20 loud samples + 10 margin each side, got %d", len(trimmed))
	}
}

func TestTrimSilenceOnPureSilenceReturnsNothing(t *testing.T) {
	if trimmed := TrimSilence(make([]float32, 100), DefaultSilenceFloor, 10); trimmed != nil {
		t.Fatalf("expected nil for pure silence, got %d samples", len(trimmed))
	}
}

func TestTrimSilenceClampsMarginsAtEdges(t *testing.T) {
	samples := []float32{0.5, 0.5, 0.5}
	trimmed := TrimSilence(samples, DefaultSilenceFloor, 10)
	if len(trimmed) != 3 {
		t.Fatalf("expected the full buffer back, got %d samples", len(trimmed))
	}
}

func TestEncodingInfoDurationAndSamples(t *testing.T) {
	encoding := EncodingInfo{SampleRate: 16000, Format: EncodingFloat32}

	if d := encoding.Duration(16000); d != time.Second {
		t.Fatalf("expected 1s for a rate's worth of samples, got %v", d)
	}
	if n := encoding.Samples(500 * time.Millisecond); n != 8000 {
		t.Fatalf("expected 8000 samples in 500ms, got %d", n)
	}
	if EncodingFloat32.ByteSize() != 4 || EncodingLinear16.ByteSize() != 2 {
		t.Fatal("unexpected encoding byte sizes")
	}
}
