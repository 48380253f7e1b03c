package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Source identifies where an asset came from
type Source string

const (
	SourceUpload Source = "upload"
	SourceLive   Source = "live"
)

var (
	// ErrNoInput is returned when an upload carries no bytes
	ErrNoInput = errors.New("no input provided")
	// ErrNoAudioCaptured is returned when a live capture stopped with no frames
	ErrNoAudioCaptured = errors.New("no audio captured")
	// ErrAssetConsumed is returned when an asset is handed downstream twice
	ErrAssetConsumed = errors.New("audio asset already consumed")
)

// Format tags the container and encoding of an asset
type Format struct {
	Container  string `json:"container"`
	MIMEType   string `json:"mime_type"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// Asset is a playable/decodable audio (or audio-bearing video) file on local
// disk with a unique name. It is consumed exactly once by transcription.
type Asset struct {
	Path      string        `json:"-"`
	Format    Format        `json:"format"`
	Size      int64         `json:"size_bytes"`
	Source    Source        `json:"source"`
	Duration  time.Duration `json:"duration,omitempty"`
	CreatedAt time.Time     `json:"created_at"`

	consumed bool
	keep     bool
	mu       sync.Mutex
}

// Consume marks the asset as taken and returns its path. Only the first
// call succeeds.
func (a *Asset) Consume() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.consumed {
		return "", ErrAssetConsumed
	}
	a.consumed = true
	return a.Path, nil
}

// Release removes the backing file unless the acquirer was configured to
// keep files.
func (a *Asset) Release() error {
	if a.keep || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove asset %s: %w", a.Path, err)
	}
	return nil
}

var mimeByExt = map[string]string{
	".mp4":  "video/mp4",
	".m4a":  "audio/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

// detectFormat tags an upload from its declared content type and filename.
// The extension wins over a generic content type.
func detectFormat(filename, contentType string) (Format, string) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := mimeByExt[ext]; !ok {
		ext = ""
	}

	mime := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if ext == "" {
		for e, m := range mimeByExt {
			if m == mime {
				ext = e
				break
			}
		}
	}
	if ext == "" {
		ext = ".mp4"
	}
	if mime == "" || mime == "application/octet-stream" {
		mime = mimeByExt[ext]
	}

	return Format{Container: strings.TrimPrefix(ext, "."), MIMEType: mime}, ext
}
