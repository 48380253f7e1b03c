package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/Asad19772505/MOM-Live/internal/audio"
	"github.com/Asad19772505/MOM-Live/internal/meter"
	"github.com/Asad19772505/MOM-Live/internal/pipeline"
)

// Mode selects what a live capture feeds
type Mode string

const (
	// ModeRecord buffers frames for transcription and drives the meter
	ModeRecord Mode = "record"
	// ModeMeter only drives the level meter
	ModeMeter Mode = "meter"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrLimitReached = errors.New("session limit reached")
	ErrLiveActive   = errors.New("live capture already running")
	ErrNotLive      = errors.New("no live capture running")
	ErrUnknownMode  = errors.New("unknown live mode")
)

// ParseMode converts a query value to a Mode. Empty means record.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeRecord:
		return ModeRecord, nil
	case ModeMeter:
		return ModeMeter, nil
	default:
		return "", ErrUnknownMode
	}
}

// Peer is a live transport connection that feeds decoded frames to a sink
type Peer interface {
	Answer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	Done() <-chan struct{}
	Close() error
	GetStats() PeerStats
}

// PeerStats are a live connection's transport counters
type PeerStats struct {
	State        string `json:"state"`
	Tracks       int64  `json:"tracks"`
	Packets      uint64 `json:"packets"`
	Frames       uint64 `json:"frames"`
	DecodeErrors uint64 `json:"decode_errors"`
}

// PeerFactory creates a peer delivering frames to sink
type PeerFactory func(sink audio.FrameSink) (Peer, error)

// Session is one user's workspace: a pipeline state machine, the live
// capture buffer and the last outcome.
type Session struct {
	ID        string
	CreatedAt time.Time

	machine *pipeline.Machine
	buffer  *audio.FrameBuffer

	peer        Peer
	meter       *meter.Meter
	mode        Mode
	liveStarted time.Time

	outcome      *pipeline.Outcome
	lastActivity time.Time

	mu sync.RWMutex
}

// Info is the JSON view of a session
type Info struct {
	ID           string                `json:"id"`
	State        pipeline.State        `json:"state"`
	LastError    string                `json:"last_error,omitempty"`
	History      []pipeline.Transition `json:"history"`
	LiveMode     Mode                  `json:"live_mode,omitempty"`
	Peer         *PeerStats            `json:"peer,omitempty"`
	Buffer       audio.BufferStats     `json:"buffer"`
	Meter        *meter.Stats          `json:"meter,omitempty"`
	Outcome      *pipeline.Outcome     `json:"outcome,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	LastActivity time.Time             `json:"last_activity"`
}

func newSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		machine:      pipeline.NewMachine(),
		buffer:       audio.NewFrameBuffer(),
		lastActivity: now,
	}
}

// Machine returns the session's pipeline state machine
func (s *Session) Machine() *pipeline.Machine {
	return s.machine
}

// Outcome returns the last finished run, or nil
func (s *Session) Outcome() *pipeline.Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outcome
}

// Levels returns the running meter's stream
func (s *Session) Levels() (<-chan meter.Level, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.meter == nil {
		return nil, ErrNotLive
	}
	return s.meter.Levels(), nil
}

// Info returns a snapshot of the session
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{
		ID:           s.ID,
		State:        s.machine.State(),
		History:      s.machine.History(),
		Buffer:       s.buffer.GetStats(),
		Outcome:      s.outcome,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
	}
	if err := s.machine.Err(); err != nil {
		info.LastError = err.Error()
	}
	if s.peer != nil {
		info.LiveMode = s.mode
		peer := s.peer.GetStats()
		info.Peer = &peer
		levels := s.meter.GetStats()
		info.Meter = &levels
	}
	return info
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *Session) setOutcome(outcome *pipeline.Outcome) {
	s.mu.Lock()
	s.outcome = outcome
	s.mu.Unlock()
}

type liveCapture struct {
	peer    Peer
	meter   *meter.Meter
	mode    Mode
	started time.Time
}

// detachLive clears the live capture and returns it, or nil if none
func (s *Session) detachLive() *liveCapture {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.peer == nil {
		return nil
	}
	live := &liveCapture{peer: s.peer, meter: s.meter, mode: s.mode, started: s.liveStarted}
	s.peer = nil
	s.meter = nil
	s.mode = ""
	return live
}
