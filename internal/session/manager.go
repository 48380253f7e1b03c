package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/Asad19772505/MOM-Live/internal/audio"
	"github.com/Asad19772505/MOM-Live/internal/meter"
	"github.com/Asad19772505/MOM-Live/internal/pipeline"
)

// Runner executes the pipeline over one asset
type Runner interface {
	Run(ctx context.Context, sessionID string, machine *pipeline.Machine, asset *audio.Asset) (*pipeline.Outcome, error)
}

// Acquirer produces assets from uploads and captured frames
type Acquirer interface {
	AcquireUpload(ctx context.Context, upload audio.Upload) (*audio.Asset, error)
	AcquireFrames(frames []audio.Frame) (*audio.Asset, error)
}

// Recorder receives session observations for metrics
type Recorder interface {
	SetActiveSessions(count int)
	RecordSessionCreated()
	RecordSessionRemoved(lifetime time.Duration, expired bool)
	AddLivePeers(delta int)
	RecordUpload(sizeBytes int64)
	RecordInputRejected(reason string)
	RecordCapture(duration time.Duration)
}

// Config contains manager parameters
type Config struct {
	Timeout         time.Duration
	CleanupInterval time.Duration
	MaxSessions     int
	Meter           meter.Config
}

// Dependencies are the collaborators a manager drives
type Dependencies struct {
	Runner        Runner
	Acquirer      Acquirer
	NewPeer       PeerFactory
	Recorder      Recorder       // optional
	MeterRecorder meter.Recorder // optional
}

// Stats represents manager statistics
type Stats struct {
	Active  int          `json:"active"`
	Live    int          `json:"live"`
	Created uint64       `json:"created"`
	Removed uint64       `json:"removed"`
	Expired uint64       `json:"expired"`
	Capture CaptureStats `json:"capture"`
}

// CaptureStats sums the transport and buffer counters of running captures
type CaptureStats struct {
	Packets        uint64 `json:"packets"`
	Frames         uint64 `json:"frames"`
	DecodeErrors   uint64 `json:"decode_errors"`
	BufferedFrames int    `json:"buffered_frames"`
}

// Manager owns all sessions and their live captures
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	config   Config
	deps     Dependencies
	recorder Recorder
	logger   zerolog.Logger

	statsMu sync.Mutex
	stats   Stats

	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewManager creates a manager and starts its cleanup routine
func NewManager(config Config, deps Dependencies, logger zerolog.Logger) *Manager {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 30 * time.Second
	}

	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		sessions: make(map[string]*Session),
		config:   config,
		deps:     deps,
		recorder: recorder,
		logger:   logger.With().Str("component", "session_manager").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go m.startCleanupRoutine()

	return m
}

// Create registers a new empty session
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	if m.config.MaxSessions > 0 && len(m.sessions) >= m.config.MaxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrLimitReached, m.config.MaxSessions)
	}
	s := newSession(uuid.NewString())
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.statsMu.Lock()
	m.stats.Created++
	m.statsMu.Unlock()

	m.recorder.RecordSessionCreated()
	m.recorder.SetActiveSessions(count)

	m.logger.Info().Str("session_id", s.ID).Int("active_sessions", count).Msg("Session created")
	return s, nil
}

// Get returns the session with id
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// All returns every session, oldest first
func (m *Manager) All() []*Session {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// Remove stops any live capture and forgets the session
func (m *Manager) Remove(id string) bool {
	return m.remove(id, false)
}

func (m *Manager) remove(id string, expired bool) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return false
	}

	if live := s.detachLive(); live != nil {
		m.closeLive(s, live)
	}
	s.buffer.Drain()

	m.statsMu.Lock()
	m.stats.Removed++
	if expired {
		m.stats.Expired++
	}
	m.statsMu.Unlock()

	lifetime := time.Since(s.CreatedAt)
	m.recorder.RecordSessionRemoved(lifetime, expired)
	m.recorder.SetActiveSessions(count)

	m.logger.Info().
		Str("session_id", id).
		Bool("expired", expired).
		Dur("lifetime", lifetime).
		Msg("Session removed")

	return true
}

// ProcessUpload stores the upload and runs the pipeline over it. Input
// errors leave the session untouched.
func (m *Manager) ProcessUpload(ctx context.Context, id string, upload audio.Upload) (*pipeline.Outcome, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	s.touch()

	if s.machine.Busy() {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrBusy, s.machine.State())
	}

	asset, err := m.deps.Acquirer.AcquireUpload(ctx, upload)
	if err != nil {
		if errors.Is(err, audio.ErrNoInput) {
			m.recorder.RecordInputRejected("no_input")
		}
		return nil, err
	}
	m.recorder.RecordUpload(asset.Size)

	return m.run(ctx, s, asset)
}

// StartLive answers a browser offer and starts feeding its audio into the
// session. Record mode buffers frames for a later StopLive; both modes drive
// the level meter.
func (m *Manager) StartLive(ctx context.Context, id string, offer webrtc.SessionDescription, mode Mode) (*webrtc.SessionDescription, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	s.touch()

	s.mu.RLock()
	active := s.peer != nil
	s.mu.RUnlock()
	if active {
		return nil, ErrLiveActive
	}
	if mode == ModeRecord && s.machine.Busy() {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrBusy, s.machine.State())
	}

	levels := meter.New(m.config.Meter, m.deps.MeterRecorder)

	var sink audio.FrameSink = levels
	if mode == ModeRecord {
		if stale := s.buffer.Drain(); len(stale) > 0 {
			m.logger.Debug().Str("session_id", id).Int("frames", len(stale)).Msg("Discarded stale capture frames")
		}
		sink = audio.MultiSink{s.buffer, levels}
	}

	peer, err := m.deps.NewPeer(sink)
	if err != nil {
		levels.Close()
		return nil, fmt.Errorf("failed to create peer: %w", err)
	}

	answer, err := peer.Answer(ctx, offer)
	if err != nil {
		peer.Close()
		levels.Close()
		return nil, fmt.Errorf("failed to answer offer: %w", err)
	}

	s.mu.Lock()
	if s.peer != nil {
		s.mu.Unlock()
		peer.Close()
		levels.Close()
		return nil, ErrLiveActive
	}
	s.peer = peer
	s.meter = levels
	s.mode = mode
	s.liveStarted = time.Now()
	s.mu.Unlock()

	m.recorder.AddLivePeers(1)
	m.statsMu.Lock()
	m.stats.Live++
	m.statsMu.Unlock()

	go m.watchPeer(s, peer)

	m.logger.Info().Str("session_id", id).Str("mode", string(mode)).Msg("Live capture started")
	return answer, nil
}

// watchPeer ends a meter-only capture when the browser goes away. Recorded
// frames are kept until the user stops the capture.
func (m *Manager) watchPeer(s *Session, peer Peer) {
	select {
	case <-peer.Done():
	case <-m.ctx.Done():
		return
	}

	s.mu.RLock()
	current := s.peer == peer
	mode := s.mode
	s.mu.RUnlock()
	if !current {
		return
	}

	m.logger.Info().Str("session_id", s.ID).Str("mode", string(mode)).Msg("Live peer disconnected")
	if mode == ModeMeter {
		if live := s.detachLive(); live != nil && live.peer == peer {
			m.closeLive(s, live)
		}
	}
}

// StopLive ends the live capture. In record mode the captured audio is run
// through the pipeline; an empty capture fails with audio.ErrNoAudioCaptured
// and leaves the session state unchanged. Meter mode returns a nil outcome.
func (m *Manager) StopLive(ctx context.Context, id string) (*pipeline.Outcome, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	s.touch()

	s.mu.RLock()
	active, mode := s.peer != nil, s.mode
	s.mu.RUnlock()
	if !active {
		return nil, ErrNotLive
	}
	// a record capture stays attached while another run holds the machine
	if mode == ModeRecord && s.machine.Busy() {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrBusy, s.machine.State())
	}

	live := s.detachLive()
	if live == nil {
		return nil, ErrNotLive
	}
	m.closeLive(s, live)

	if live.mode == ModeMeter {
		return nil, nil
	}

	frames := s.buffer.Drain()
	asset, err := m.deps.Acquirer.AcquireFrames(frames)
	if err != nil {
		if errors.Is(err, audio.ErrNoAudioCaptured) {
			m.recorder.RecordInputRejected("no_audio")
		}
		return nil, err
	}

	return m.run(ctx, s, asset)
}

// Levels returns the level stream of a running capture
func (m *Manager) Levels(id string) (<-chan meter.Level, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return s.Levels()
}

func (m *Manager) closeLive(s *Session, live *liveCapture) {
	if err := live.peer.Close(); err != nil {
		m.logger.Warn().Err(err).Str("session_id", s.ID).Msg("Failed to close peer")
	}
	live.meter.Close()
	transport := live.peer.GetStats()

	captured := time.Since(live.started)
	m.recorder.AddLivePeers(-1)
	m.recorder.RecordCapture(captured)

	m.statsMu.Lock()
	m.stats.Live--
	m.statsMu.Unlock()

	stats := live.meter.GetStats()
	m.logger.Info().
		Str("session_id", s.ID).
		Str("mode", string(live.mode)).
		Dur("captured", captured).
		Uint64("packets", transport.Packets).
		Uint64("frames", transport.Frames).
		Uint64("decode_errors", transport.DecodeErrors).
		Uint64("levels_published", stats.Published).
		Uint64("levels_dropped", stats.Dropped).
		Msg("Live capture stopped")
}

func (m *Manager) run(ctx context.Context, s *Session, asset *audio.Asset) (*pipeline.Outcome, error) {
	outcome, err := m.deps.Runner.Run(ctx, s.ID, s.machine, asset)
	if err != nil {
		if s.machine.State() == pipeline.StateError {
			s.setOutcome(nil)
		}
		return nil, err
	}
	s.setOutcome(outcome)
	return outcome, nil
}

// GetStats returns current manager statistics
func (m *Manager) GetStats() Stats {
	m.statsMu.Lock()
	stats := m.stats
	m.statsMu.Unlock()

	m.mu.RLock()
	stats.Active = len(m.sessions)
	for _, s := range m.sessions {
		s.mu.RLock()
		if s.peer != nil {
			peer := s.peer.GetStats()
			stats.Capture.Packets += peer.Packets
			stats.Capture.Frames += peer.Frames
			stats.Capture.DecodeErrors += peer.DecodeErrors
		}
		s.mu.RUnlock()
		stats.Capture.BufferedFrames += s.buffer.Len()
	}
	m.mu.RUnlock()

	return stats
}

// Stop removes every session and stops the cleanup routine
func (m *Manager) Stop() {
	m.logger.Info().Msg("Stopping session manager")

	m.cancel()
	<-m.cleanup

	for _, s := range m.All() {
		m.Remove(s.ID)
	}

	stats := m.GetStats()
	m.logger.Info().
		Uint64("created", stats.Created).
		Uint64("expired", stats.Expired).
		Msg("Session manager stopped")
}

func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	m.logger.Info().
		Dur("timeout", m.config.Timeout).
		Dur("check_interval", m.config.CleanupInterval).
		Msg("Session cleanup routine started")

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.cleanupExpiredSessions()
		}
	}
}

// cleanupExpiredSessions removes sessions idle longer than the timeout
func (m *Manager) cleanupExpiredSessions() {
	now := time.Now()
	var expired []string

	m.mu.RLock()
	for id, s := range m.sessions {
		if now.Sub(s.idleSince()) > m.config.Timeout {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	m.logger.Info().Int("expired_count", len(expired)).Msg("Cleaning up expired sessions")
	for _, id := range expired {
		m.remove(id, true)
	}
}

type nopRecorder struct{}

func (nopRecorder) SetActiveSessions(int)                    {}
func (nopRecorder) RecordSessionCreated()                    {}
func (nopRecorder) RecordSessionRemoved(time.Duration, bool) {}
func (nopRecorder) AddLivePeers(int)                         {}
func (nopRecorder) RecordUpload(int64)                       {}
func (nopRecorder) RecordInputRejected(string)               {}
func (nopRecorder) RecordCapture(time.Duration)              {}
