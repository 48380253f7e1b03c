package meter

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Asad19772505/MOM-Live/internal/audio"
)

// DefaultActiveThreshold is the dBFS level above which a frame counts as
// sound rather than room noise.
const DefaultActiveThreshold = -50.0

// Level is one published loudness reading
type Level struct {
	Seq       uint64    `json:"seq"`
	RMS       float64   `json:"rms"`
	DBFS      float64   `json:"dbfs"`
	Active    bool      `json:"active"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorder receives meter observations for metrics
type Recorder interface {
	RecordLevel(dbfs float64)
	RecordLevelDropped()
}

// Config contains meter parameters
type Config struct {
	QueueSize       int
	ActiveThreshold float64 // dBFS
}

// Meter computes a level per frame and publishes it without ever blocking
// the producer. When the consumer lags, new readings are dropped and
// counted.
type Meter struct {
	levels    chan Level
	threshold float64
	recorder  Recorder

	closed bool
	mu     sync.RWMutex

	seq       atomic.Uint64
	published atomic.Uint64
	dropped   atomic.Uint64
	active    atomic.Uint64
	lastDBFS  atomic.Value // float64
}

// Stats represents meter statistics
type Stats struct {
	Frames       uint64  `json:"frames"`
	Published    uint64  `json:"published"`
	Dropped      uint64  `json:"dropped"`
	ActiveFrames uint64  `json:"active_frames"`
	LastDBFS     float64 `json:"last_dbfs"`
	QueueSize    int     `json:"queue_size"`
}

// New creates a meter. A nil recorder disables metrics.
func New(config Config, recorder Recorder) *Meter {
	if config.QueueSize < 1 {
		config.QueueSize = 1
	}
	if config.ActiveThreshold == 0 {
		config.ActiveThreshold = DefaultActiveThreshold
	}

	m := &Meter{
		levels:    make(chan Level, config.QueueSize),
		threshold: config.ActiveThreshold,
		recorder:  recorder,
	}
	m.lastDBFS.Store(float64(-120))
	return m
}

// OnFrame implements audio.FrameSink
func (m *Meter) OnFrame(f audio.Frame) {
	rms := audio.RMS(f.Mono())
	db := audio.DBFS(rms)

	level := Level{
		Seq:       m.seq.Add(1),
		RMS:       rms,
		DBFS:      db,
		Active:    db >= m.threshold,
		Timestamp: f.Received,
	}
	if level.Timestamp.IsZero() {
		level.Timestamp = time.Now()
	}

	m.lastDBFS.Store(db)
	if level.Active {
		m.active.Add(1)
	}
	if m.recorder != nil {
		m.recorder.RecordLevel(db)
	}

	m.publish(level)
}

func (m *Meter) publish(level Level) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return
	}

	select {
	case m.levels <- level:
		m.published.Add(1)
	default:
		m.dropped.Add(1)
		if m.recorder != nil {
			m.recorder.RecordLevelDropped()
		}
	}
}

// Levels returns the channel readings are published on. It is closed by Close.
func (m *Meter) Levels() <-chan Level {
	return m.levels
}

// Close stops publishing and closes the level channel. Safe to call more
// than once.
func (m *Meter) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	close(m.levels)
}

// GetStats returns current meter statistics
func (m *Meter) GetStats() Stats {
	return Stats{
		Frames:       m.seq.Load(),
		Published:    m.published.Load(),
		Dropped:      m.dropped.Load(),
		ActiveFrames: m.active.Load(),
		LastDBFS:     m.lastDBFS.Load().(float64),
		QueueSize:    cap(m.levels),
	}
}
