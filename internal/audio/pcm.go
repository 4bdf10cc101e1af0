package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// Blob is a wire-ready audio payload: a MIME type describing the sample
// format plus base64-encoded PCM data.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// EncodePCM converts normalized float32 samples into a 16-bit little-endian
// PCM blob at the given sample rate. Samples outside [-1, 1] are clamped.
// An empty input yields an empty payload, not an error.
func EncodePCM(samples []float32, sampleRate int) Blob {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(s*32767)))
	}

	return Blob{
		MIMEType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
		Data:     base64.StdEncoding.EncodeToString(buf),
	}
}

// DecodePCM converts a base64-encoded 16-bit little-endian PCM payload back
// into normalized float32 samples.
func DecodePCM(data string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode PCM payload: %w", err)
	}

	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("PCM payload length must be even (got %d bytes)", len(raw))
	}

	return BytesToSamples(raw), nil
}

// BytesToSamples converts raw 16-bit little-endian PCM bytes into normalized
// float32 samples. A trailing odd byte is ignored.
func BytesToSamples(raw []byte) []float32 {
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}
	return samples
}

// RMS computes the root-mean-square amplitude of a block of samples, used as
// a loudness proxy for visualization and voice-activity detection.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
