package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// Upload is a user-supplied recording
type Upload struct {
	Filename    string
	ContentType string
	Reader      io.Reader
}

// AcquirerConfig contains asset creation parameters
type AcquirerConfig struct {
	TempDir    string
	SampleRate int    // native rate used when frames carry none
	FFmpegPath string // empty disables audio extraction from uploads
	KeepFiles  bool
}

// Acquirer turns uploads and captured frames into assets on disk
type Acquirer struct {
	config AcquirerConfig
	logger zerolog.Logger
}

// NewAcquirer creates a new asset acquirer
func NewAcquirer(config AcquirerConfig, logger zerolog.Logger) *Acquirer {
	if config.TempDir == "" {
		config.TempDir = os.TempDir()
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 48000
	}
	return &Acquirer{
		config: config,
		logger: logger.With().Str("component", "audio_acquirer").Logger(),
	}
}

// AcquireUpload persists an upload to a unique temp file. An empty upload
// fails with ErrNoInput and leaves nothing on disk.
func (a *Acquirer) AcquireUpload(ctx context.Context, upload Upload) (*Asset, error) {
	if upload.Reader == nil {
		return nil, ErrNoInput
	}

	format, ext := detectFormat(upload.Filename, upload.ContentType)

	file, err := os.CreateTemp(a.config.TempDir, "upload-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	size, err := io.Copy(file, upload.Reader)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(file.Name())
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	if size == 0 {
		os.Remove(file.Name())
		return nil, ErrNoInput
	}

	asset := &Asset{
		Path:      file.Name(),
		Format:    format,
		Size:      size,
		Source:    SourceUpload,
		CreatedAt: time.Now(),
		keep:      a.config.KeepFiles,
	}

	a.logger.Info().
		Str("filename", upload.Filename).
		Str("container", format.Container).
		Int64("size_bytes", size).
		Msg("Upload stored")

	if a.config.FFmpegPath == "" {
		return asset, nil
	}

	extracted, err := a.extractAudio(ctx, asset)
	if err != nil {
		asset.Release()
		return nil, err
	}
	asset.Release()
	return extracted, nil
}

// extractAudio converts any media file into 16 kHz mono PCM WAV with ffmpeg
func (a *Acquirer) extractAudio(ctx context.Context, in *Asset) (*Asset, error) {
	out, err := os.CreateTemp(a.config.TempDir, "extract-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	out.Close()

	cmd := exec.CommandContext(ctx, a.config.FFmpegPath,
		"-y", "-loglevel", "error",
		"-i", in.Path,
		"-vn", "-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1",
		out.Name(),
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		os.Remove(out.Name())
		return nil, fmt.Errorf("ffmpeg audio extraction failed: %w: %s", err, output)
	}

	asset, err := a.wavAsset(out.Name(), SourceUpload)
	if err != nil {
		os.Remove(out.Name())
		return nil, err
	}

	a.logger.Debug().
		Str("input", in.Path).
		Dur("duration", asset.Duration).
		Msg("Audio extracted from upload")

	return asset, nil
}

// AcquireFrames encodes captured frames, in arrival order, as a mono
// 16-bit WAV at the transport's native rate. No frames yields
// ErrNoAudioCaptured.
func (a *Acquirer) AcquireFrames(frames []Frame) (*Asset, error) {
	samples, rate := Concat(frames)
	if len(samples) == 0 {
		return nil, ErrNoAudioCaptured
	}
	if rate <= 0 {
		rate = a.config.SampleRate
	}

	file, err := os.CreateTemp(a.config.TempDir, "capture-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	size, err := WriteWAV(file, samples, rate)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(file.Name())
		return nil, fmt.Errorf("failed to write capture: %w", err)
	}

	duration := time.Duration(len(samples)) * time.Second / time.Duration(rate)

	a.logger.Info().
		Int("frames", len(frames)).
		Int("samples", len(samples)).
		Int("sample_rate", rate).
		Dur("duration", duration).
		Msg("Live capture encoded")

	return &Asset{
		Path:      file.Name(),
		Format:    Format{Container: "wav", MIMEType: "audio/wav", SampleRate: rate, Channels: 1},
		Size:      size,
		Source:    SourceLive,
		Duration:  duration,
		CreatedAt: time.Now(),
		keep:      a.config.KeepFiles,
	}, nil
}

func (a *Acquirer) wavAsset(path string, source Source) (*Asset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	info, err := ReadWAVInfo(file)
	if err != nil {
		return nil, fmt.Errorf("extracted audio is not valid WAV: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	return &Asset{
		Path: path,
		Format: Format{
			Container:  "wav",
			MIMEType:   "audio/wav",
			SampleRate: int(info.SampleRate),
			Channels:   int(info.Channels),
		},
		Size:      stat.Size(),
		Source:    source,
		Duration:  time.Duration(info.Duration * float64(time.Second)),
		CreatedAt: time.Now(),
		keep:      a.config.KeepFiles,
	}, nil
}
