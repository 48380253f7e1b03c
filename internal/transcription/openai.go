package transcription

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig contains hosted Whisper configuration
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Language    string
	Timeout     time.Duration // zero means no client timeout
	VerifyModel bool
}

// OpenAIModel transcribes through the OpenAI audio transcription endpoint
type OpenAIModel struct {
	client   *openai.Client
	model    string
	language string
}

// NewOpenAIClient builds a go-openai client honoring a custom base URL
func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) *openai.Client {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(clientConfig)
}

// NewOpenAILoader returns a Loader that creates the hosted Whisper model.
// With VerifyModel set, loading fails unless the model id is known to the
// endpoint.
func NewOpenAILoader(config OpenAIConfig) Loader {
	return func(ctx context.Context) (Model, error) {
		if config.APIKey == "" {
			return nil, fmt.Errorf("openai api key cannot be empty")
		}
		if config.Model == "" {
			config.Model = openai.Whisper1
		}

		client := NewOpenAIClient(config.APIKey, config.BaseURL, config.Timeout)

		if config.VerifyModel {
			if _, err := client.GetModel(ctx, config.Model); err != nil {
				return nil, fmt.Errorf("failed to verify model %s: %w", config.Model, err)
			}
		}

		return &OpenAIModel{
			client:   client,
			model:    config.Model,
			language: config.Language,
		}, nil
	}
}

// Transcribe implements Model
func (m *OpenAIModel) Transcribe(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}

	resp, err := m.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    m.model,
		FilePath: path,
		Language: m.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription failed: %w", err)
	}

	return resp.Text, nil
}

// Name implements Model
func (m *OpenAIModel) Name() string {
	return "openai:" + m.model
}
