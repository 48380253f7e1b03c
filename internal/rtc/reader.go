package rtc

import (
	"errors"
	"io"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"github.com/Asad19772505/MOM-Live/internal/audio"
)

// Recorder receives transport observations for metrics
type Recorder interface {
	RecordFrameReceived()
	RecordFrameDecodeError()
}

// packetSource reads one raw RTP packet into buf
type packetSource func(buf []byte) (int, error)

// trackReader decodes RTP audio packets from one remote track into frames
// for a sink. It runs on its own goroutine and never blocks on anything but
// the source.
type trackReader struct {
	source   packetSource
	decoder  Decoder
	channels int
	sink     audio.FrameSink
	recorder Recorder
	logger   zerolog.Logger
	stats    *peerStats
}

func (r *trackReader) run() {
	buf := make([]byte, 1500)
	packet := &rtp.Packet{}
	pcm := make([]int16, maxFrameSamples*r.channels)
	first := true

	for {
		n, err := r.source(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Debug().Err(err).Msg("Track read ended")
			}
			return
		}
		r.stats.packets.Add(1)

		if first {
			first = false
			r.logger.Info().Int("size", n).Msg("Received first RTP packet")
		}

		if err := packet.Unmarshal(buf[:n]); err != nil {
			r.decodeFailed(err, "failed to unmarshal RTP packet")
			continue
		}

		if len(packet.Payload) == 0 {
			continue
		}

		count, err := r.decoder.Decode(packet.Payload, pcm)
		if err != nil {
			r.decodeFailed(err, "failed to decode audio payload")
			continue
		}
		if count == 0 {
			continue
		}

		samples := make([]int16, count*r.channels)
		copy(samples, pcm[:count*r.channels])

		r.stats.frames.Add(1)
		if r.recorder != nil {
			r.recorder.RecordFrameReceived()
		}

		r.sink.OnFrame(audio.Frame{
			Samples:    samples,
			SampleRate: NativeSampleRate,
			Channels:   r.channels,
			Received:   time.Now(),
		})
	}
}

func (r *trackReader) decodeFailed(err error, msg string) {
	r.stats.decodeErrors.Add(1)
	if r.recorder != nil {
		r.recorder.RecordFrameDecodeError()
	}
	r.logger.Debug().Err(err).Msg(msg)
}
