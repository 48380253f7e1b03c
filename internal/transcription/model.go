package transcription

import (
	"context"
	"errors"
)

// ErrEmptyPath is returned when a model is asked to transcribe nothing
var ErrEmptyPath = errors.New("audio path cannot be empty")

// Model is a loaded speech-to-text handle. Transcribe returns the plain text
// of the audio file at path; silence yields an empty string, not an error.
type Model interface {
	Transcribe(ctx context.Context, path string) (string, error)
	Name() string
}

// Loader builds a Model. It is invoked at most once per successful load.
type Loader func(ctx context.Context) (Model, error)
