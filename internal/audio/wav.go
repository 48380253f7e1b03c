package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const wavHeaderSize = 44

// WAVHeader represents the header structure of a canonical PCM WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// WAVInfo describes a WAV stream
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
}

func monoHeader(numSamples, sampleRate int) WAVHeader {
	const (
		numChannels   = uint16(1)
		bitsPerSample = uint16(16)
	)
	dataSize := uint32(numSamples * 2)

	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// WriteWAV writes mono PCM-16 samples to w as a RIFF/WAVE stream and
// returns the number of bytes written.
func WriteWAV(w io.Writer, samples []int16, sampleRate int) (int64, error) {
	if len(samples) == 0 {
		return 0, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return 0, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	header := monoHeader(len(samples), sampleRate)
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return 0, fmt.Errorf("failed to write WAV header: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, samples); err != nil {
		return wavHeaderSize, fmt.Errorf("failed to write audio data: %w", err)
	}

	return int64(wavHeaderSize + len(samples)*2), nil
}

type chunkHeader struct {
	ID   [4]byte
	Size uint32
}

type fmtChunk struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// wavLayout is what ReadWAVInfo needs from a stream: the format and the
// size of the data chunk.
type wavLayout struct {
	format   fmtChunk
	dataSize uint32
}

// readLayout walks the RIFF chunks until it reaches "data". Chunks other
// than "fmt " (LIST, fact, JUNK...) are skipped by their declared size.
func readLayout(r io.Reader) (wavLayout, error) {
	var layout wavLayout

	var riff struct {
		ID     [4]byte
		Size   uint32
		Format [4]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return layout, fmt.Errorf("failed to read WAV header: %w", err)
	}
	if string(riff.ID[:]) != "RIFF" {
		return layout, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(riff.Format[:]) != "WAVE" {
		return layout, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	haveFmt := false
	for {
		var chunk chunkHeader
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return layout, fmt.Errorf("invalid WAV file: missing data chunk")
			}
			return layout, fmt.Errorf("failed to read WAV chunk: %w", err)
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			if chunk.Size < 16 {
				return layout, fmt.Errorf("invalid WAV file: fmt chunk too short (%d bytes)", chunk.Size)
			}
			if err := binary.Read(r, binary.LittleEndian, &layout.format); err != nil {
				return layout, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if err := skip(r, int64(chunk.Size)-16+int64(chunk.Size%2)); err != nil {
				return layout, err
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return layout, fmt.Errorf("invalid WAV file: missing fmt chunk")
			}
			if layout.format.SampleRate == 0 {
				return layout, fmt.Errorf("invalid sample rate: 0")
			}
			layout.dataSize = chunk.Size
			return layout, nil
		default:
			// RIFF chunks are word aligned
			if err := skip(r, int64(chunk.Size)+int64(chunk.Size%2)); err != nil {
				return layout, err
			}
		}
	}
}

func skip(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, n); err != nil {
		return fmt.Errorf("invalid WAV file: truncated chunk: %w", err)
	}
	return nil
}

// ReadWAVInfo reads the chunks of a WAV stream up to the start of the
// audio data and derives its metadata
func ReadWAVInfo(r io.Reader) (*WAVInfo, error) {
	layout, err := readLayout(r)
	if err != nil {
		return nil, err
	}
	format := layout.format

	bytesPerFrame := uint32(format.BitsPerSample) / 8 * uint32(format.NumChannels)
	if bytesPerFrame == 0 {
		return nil, fmt.Errorf("invalid block layout: %d bits, %d channels", format.BitsPerSample, format.NumChannels)
	}
	numSamples := layout.dataSize / bytesPerFrame

	return &WAVInfo{
		SampleRate:    format.SampleRate,
		Channels:      format.NumChannels,
		BitsPerSample: format.BitsPerSample,
		Duration:      float64(numSamples) / float64(format.SampleRate),
		DataSize:      layout.dataSize,
		NumSamples:    numSamples,
	}, nil
}
