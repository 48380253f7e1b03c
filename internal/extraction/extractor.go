package extraction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultModel is the chat model used for extraction
	DefaultModel = openai.GPT4
	// DefaultTemperature keeps extraction output stable
	DefaultTemperature float32 = 0.2
)

// ErrNoChoices is returned when the completion endpoint answers with nothing
var ErrNoChoices = errors.New("completion returned no choices")

// ChatClient is the part of the OpenAI client the extractor uses
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Recorder receives extraction observations for metrics
type Recorder interface {
	RecordExtraction(duration time.Duration, err error)
}

// Config contains extraction parameters
type Config struct {
	Model       string
	Temperature *float32 // nil uses DefaultTemperature
	MaxTokens   int
}

// Extractor asks a hosted chat model for action items and returns its raw
// reply. Parsing belongs to the presenter.
type Extractor struct {
	client      ChatClient
	config      Config
	temperature float32
	recorder    Recorder
	logger      zerolog.Logger
}

// NewExtractor creates a new extractor. A nil recorder disables metrics.
func NewExtractor(client ChatClient, config Config, recorder Recorder, logger zerolog.Logger) *Extractor {
	if config.Model == "" {
		config.Model = DefaultModel
	}

	temperature := DefaultTemperature
	if config.Temperature != nil {
		temperature = *config.Temperature
	}
	// the request field is omitempty, so an explicit zero has to be sent
	// as the smallest positive value
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	return &Extractor{
		client:      client,
		config:      config,
		temperature: temperature,
		recorder:    recorder,
		logger:      logger.With().Str("component", "extraction").Logger(),
	}
}

// Extract sends one completion request for transcript and returns the first
// choice's content unparsed. Endpoint errors propagate without retry.
func (e *Extractor) Extract(ctx context.Context, transcript string) (string, error) {
	request := openai.ChatCompletionRequest{
		Model: e.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(transcript)},
		},
		Temperature: e.temperature,
		MaxTokens:   e.config.MaxTokens,
	}

	start := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, request)
	if err == nil && len(resp.Choices) == 0 {
		err = ErrNoChoices
	}
	elapsed := time.Since(start)

	if e.recorder != nil {
		e.recorder.RecordExtraction(elapsed, err)
	}

	if err != nil {
		e.logger.Error().
			Err(err).
			Str("model", e.config.Model).
			Dur("elapsed", elapsed).
			Msg("Action item extraction failed")
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	content := resp.Choices[0].Message.Content

	e.logger.Info().
		Str("model", e.config.Model).
		Int("transcript_chars", len(transcript)).
		Int("reply_chars", len(content)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Dur("elapsed", elapsed).
		Msg("Action items extracted")

	return content, nil
}
