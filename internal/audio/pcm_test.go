package audio

import (
	"math"
	"testing"
)

func TestEncodePCM(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, -1}
	blob := EncodePCM(samples, 16000)

	if blob.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("Expected mime type 'audio/pcm;rate=16000', got '%s'", blob.MIMEType)
	}
	if blob.Data == "" {
		t.Errorf("Expected non-empty payload")
	}

	decoded, err := DecodePCM(blob.Data)
	if err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}
	for i, want := range samples {
		if diff := math.Abs(float64(decoded[i] - want)); diff > 0.001 {
			t.Errorf("Sample %d: expected %f, got %f", i, want, decoded[i])
		}
	}
}

func TestEncodePCMClamps(t *testing.T) {
	blob := EncodePCM([]float32{2.5, -3.0}, 16000)

	decoded, err := DecodePCM(blob.Data)
	if err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if decoded[0] < 0.99 {
		t.Errorf("Expected positive overdrive to clamp near 1, got %f", decoded[0])
	}
	if decoded[1] > -0.99 {
		t.Errorf("Expected negative overdrive to clamp near -1, got %f", decoded[1])
	}
}

func TestEncodePCMEmpty(t *testing.T) {
	blob := EncodePCM(nil, 24000)

	if blob.MIMEType != "audio/pcm;rate=24000" {
		t.Errorf("Expected mime type to carry the rate, got '%s'", blob.MIMEType)
	}
	if blob.Data != "" {
		t.Errorf("Expected empty payload for empty input, got '%s'", blob.Data)
	}
}

func TestDecodePCMInvalid(t *testing.T) {
	if _, err := DecodePCM("not-base64!!!"); err == nil {
		t.Errorf("Expected error for invalid base64")
	}
}

func TestBytesToSamples(t *testing.T) {
	// 0x7FFF is full scale positive, 0x8000 full scale negative.
	data := []byte{0xFF, 0x7F, 0x00, 0x80, 0x00, 0x00}
	samples := BytesToSamples(data)

	if len(samples) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(samples))
	}
	if samples[0] < 0.99 {
		t.Errorf("Expected full scale positive, got %f", samples[0])
	}
	if samples[1] > -0.99 {
		t.Errorf("Expected full scale negative, got %f", samples[1])
	}
	if samples[2] != 0 {
		t.Errorf("Expected zero, got %f", samples[2])
	}
}

func TestRMS(t *testing.T) {
	if rms := RMS(nil); rms != 0 {
		t.Errorf("Expected zero RMS for empty input, got %f", rms)
	}

	if rms := RMS([]float32{0.5, -0.5, 0.5, -0.5}); math.Abs(rms-0.5) > 1e-6 {
		t.Errorf("Expected RMS 0.5, got %f", rms)
	}

	if rms := RMS(make([]float32, 100)); rms != 0 {
		t.Errorf("Expected zero RMS for silence, got %f", rms)
	}
}
