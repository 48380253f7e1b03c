package rtc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/Asad19772505/MOM-Live/internal/audio"
)

// Config contains peer connection parameters
type Config struct {
	STUNServers   []string
	GatherTimeout time.Duration
	NewDecoder    DecoderFactory // nil uses libopus
}

// Peer is the server side of one browser microphone connection. It only
// receives audio; every decoded frame goes to the sink.
type Peer struct {
	pc       *webrtc.PeerConnection
	config   Config
	sink     audio.FrameSink
	recorder Recorder
	logger   zerolog.Logger

	stats     peerStats
	readers   sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
	doneOnce  sync.Once
}

type peerStats struct {
	tracks       atomic.Int64
	packets      atomic.Uint64
	frames       atomic.Uint64
	decodeErrors atomic.Uint64
	state        atomic.Value // string
}

// PeerStats represents peer statistics
type PeerStats struct {
	State        string `json:"state"`
	Tracks       int64  `json:"tracks"`
	Packets      uint64 `json:"packets"`
	Frames       uint64 `json:"frames"`
	DecodeErrors uint64 `json:"decode_errors"`
}

// NewPeer creates a receive-only audio peer connection
func NewPeer(config Config, sink audio.FrameSink, recorder Recorder, logger zerolog.Logger) (*Peer, error) {
	if config.GatherTimeout <= 0 {
		config.GatherTimeout = 10 * time.Second
	}
	if config.NewDecoder == nil {
		config.NewDecoder = NewOpusDecoder
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))

	var iceServers []webrtc.ICEServer
	if len(config.STUNServers) > 0 {
		iceServers = []webrtc.ICEServer{{URLs: config.STUNServers}}
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("add audio transceiver: %w", err)
	}

	p := &Peer{
		pc:       pc,
		config:   config,
		sink:     sink,
		recorder: recorder,
		logger:   logger.With().Str("component", "rtc_peer").Logger(),
		done:     make(chan struct{}),
	}
	p.stats.state.Store(webrtc.PeerConnectionStateNew.String())

	pc.OnTrack(p.handleTrack)
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.stats.state.Store(state.String())
		p.logger.Info().Str("state", state.String()).Msg("Peer connection state changed")

		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			p.doneOnce.Do(func() { close(p.done) })
		}
	})

	return p, nil
}

func (p *Peer) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}

	logger := p.logger.With().
		Str("track_id", track.ID()).
		Str("codec", track.Codec().MimeType).
		Logger()

	decoder, err := p.config.NewDecoder(NativeSampleRate, 1)
	if err != nil {
		logger.Error().Err(err).Msg("Cannot decode track")
		return
	}

	p.stats.tracks.Add(1)
	logger.Info().Msg("Audio track started")

	reader := &trackReader{
		source: func(buf []byte) (int, error) {
			n, _, err := track.Read(buf)
			return n, err
		},
		decoder:  decoder,
		channels: 1,
		sink:     p.sink,
		recorder: p.recorder,
		logger:   logger,
		stats:    &p.stats,
	}

	p.readers.Add(1)
	go func() {
		defer p.readers.Done()
		reader.run()
		logger.Info().Msg("Audio track ended")
	}()
}

// Answer applies the browser's offer and returns the complete answer once
// ICE gathering finishes.
func (p *Peer) Answer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if offer.Type != webrtc.SDPTypeOffer {
		return nil, fmt.Errorf("expected offer, got %s", offer.Type)
	}

	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(p.pc)

	if err := p.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}

	timer := time.NewTimer(p.config.GatherTimeout)
	defer timer.Stop()

	select {
	case <-gatherComplete:
	case <-timer.C:
		p.logger.Warn().Dur("timeout", p.config.GatherTimeout).Msg("ICE gathering timed out, answering with partial candidates")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return p.pc.LocalDescription(), nil
}

// Done is closed when the connection fails, disconnects or closes
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// Close tears down the connection and waits for track readers to exit
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.pc.Close()
		p.readers.Wait()
		p.doneOnce.Do(func() { close(p.done) })
	})
	return err
}

// GetStats returns current peer statistics
func (p *Peer) GetStats() PeerStats {
	return PeerStats{
		State:        p.stats.state.Load().(string),
		Tracks:       p.stats.tracks.Load(),
		Packets:      p.stats.packets.Load(),
		Frames:       p.stats.frames.Load(),
		DecodeErrors: p.stats.decodeErrors.Load(),
	}
}
