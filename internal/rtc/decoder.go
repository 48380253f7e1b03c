package rtc

import (
	"fmt"

	opus "gopkg.in/hraban/opus.v2"
)

const (
	// NativeSampleRate is the Opus clock rate used by WebRTC
	NativeSampleRate = 48000

	// maxFrameSamples fits the longest Opus frame (120 ms at 48 kHz)
	maxFrameSamples = 5760
)

// Decoder turns one compressed payload into PCM-16 samples and returns the
// number of samples per channel written to pcm.
type Decoder interface {
	Decode(data []byte, pcm []int16) (int, error)
}

// DecoderFactory creates a decoder for one remote track
type DecoderFactory func(sampleRate, channels int) (Decoder, error)

// NewOpusDecoder creates a libopus decoder
func NewOpusDecoder(sampleRate, channels int) (Decoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return dec, nil
}
