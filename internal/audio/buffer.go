package audio

import (
	"math"
	"sync"
	"time"
)

// Frame is one block of decoded PCM-16 audio as delivered by the real-time
// transport. Samples are interleaved when Channels > 1.
type Frame struct {
	Samples    []int16
	SampleRate int
	Channels   int
	Received   time.Time
}

// Mono returns the frame's samples downmixed to one channel by averaging
func (f Frame) Mono() []int16 {
	if f.Channels <= 1 {
		return f.Samples
	}

	n := len(f.Samples) / f.Channels
	mono := make([]int16, n)
	for i := 0; i < n; i++ {
		var sum int32
		for c := 0; c < f.Channels; c++ {
			sum += int32(f.Samples[i*f.Channels+c])
		}
		mono[i] = int16(sum / int32(f.Channels))
	}
	return mono
}

// FrameSink receives frames from the real-time transport. Implementations
// must return quickly; they run on the transport's reader goroutine.
type FrameSink interface {
	OnFrame(Frame)
}

// MultiSink fans a frame out to several sinks in order
type MultiSink []FrameSink

// OnFrame implements FrameSink
func (m MultiSink) OnFrame(f Frame) {
	for _, s := range m {
		if s != nil {
			s.OnFrame(f)
		}
	}
}

// FrameBuffer accumulates captured frames. OnFrame is called by the
// transport producer and Drain by the stop handler; Drain takes every frame
// appended before it and leaves the buffer empty in one step.
type FrameBuffer struct {
	frames     []Frame
	samples    int
	lastUpdate time.Time

	totalFrames uint64
	drains      uint64

	mu sync.Mutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	PendingFrames  int       `json:"pending_frames"`
	PendingSamples int       `json:"pending_samples"`
	TotalFrames    uint64    `json:"total_frames"`
	Drains         uint64    `json:"drains"`
	LastUpdate     time.Time `json:"last_update"`
}

// NewFrameBuffer creates an empty capture buffer
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{
		frames: make([]Frame, 0, 256),
	}
}

// OnFrame appends a frame. Empty frames are ignored.
func (b *FrameBuffer) OnFrame(f Frame) {
	if len(f.Samples) == 0 {
		return
	}

	b.mu.Lock()
	b.frames = append(b.frames, f)
	b.samples += len(f.Samples)
	b.totalFrames++
	b.lastUpdate = time.Now()
	b.mu.Unlock()
}

// Drain returns all buffered frames in arrival order and resets the buffer
func (b *FrameBuffer) Drain() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	frames := b.frames
	b.frames = make([]Frame, 0, cap(frames))
	b.samples = 0
	b.drains++

	return frames
}

// Len returns the number of buffered frames
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// GetStats returns current buffer statistics
func (b *FrameBuffer) GetStats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BufferStats{
		PendingFrames:  len(b.frames),
		PendingSamples: b.samples,
		TotalFrames:    b.totalFrames,
		Drains:         b.drains,
		LastUpdate:     b.lastUpdate,
	}
}

// Concat joins frames in order into one mono sample slice. The sample rate
// of the first non-empty frame is returned.
func Concat(frames []Frame) ([]int16, int) {
	total := 0
	rate := 0
	for _, f := range frames {
		if len(f.Samples) == 0 {
			continue
		}
		if rate == 0 {
			rate = f.SampleRate
		}
		ch := f.Channels
		if ch < 1 {
			ch = 1
		}
		total += len(f.Samples) / ch
	}

	out := make([]int16, 0, total)
	for _, f := range frames {
		out = append(out, f.Mono()...)
	}
	return out, rate
}

// RMS returns the root-mean-square level of samples normalized to 0..1
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DBFS converts a normalized RMS level to decibels relative to full scale.
// Silence maps to -120 dBFS.
func DBFS(rms float64) float64 {
	if rms <= 1e-6 {
		return -120
	}
	return 20 * math.Log10(rms)
}
