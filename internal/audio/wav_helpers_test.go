package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

func encodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := WriteWAV(&buf, samples, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeWAV reads mono PCM-16 samples back out of a WAV stream
func decodeWAV(data []byte) ([]int16, int, error) {
	r := bytes.NewReader(data)
	layout, err := readLayout(r)
	if err != nil {
		return nil, 0, err
	}

	format := layout.format
	if format.AudioFormat != 1 || format.BitsPerSample != 16 || format.NumChannels != 1 {
		return nil, 0, fmt.Errorf("unsupported layout: format %d, %d bits, %d channels",
			format.AudioFormat, format.BitsPerSample, format.NumChannels)
	}

	numSamples := int(layout.dataSize) / 2
	if numSamples <= 0 {
		return nil, 0, fmt.Errorf("no audio data found")
	}

	samples := make([]int16, numSamples)
	if err := binary.Read(r, binary.LittleEndian, samples); err != nil {
		return nil, 0, fmt.Errorf("failed to read audio samples: %w", err)
	}
	return samples, int(format.SampleRate), nil
}

// withListChunk rewrites a canonical WAV so a LIST/INFO chunk sits between
// "fmt " and "data", the layout ffmpeg's muxer produces.
func withListChunk(canonical []byte) []byte {
	info := []byte("INFOISFT\x0e\x00\x00\x00Lavf61.7.100\x00\x00")
	var list bytes.Buffer
	list.WriteString("LIST")
	binary.Write(&list, binary.LittleEndian, uint32(len(info)))
	list.Write(info)

	out := make([]byte, 0, len(canonical)+list.Len())
	out = append(out, canonical[:36]...)
	out = append(out, list.Bytes()...)
	out = append(out, canonical[36:]...)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))
	return out
}
