package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// HTTPConfig contains configuration for a Whisper-compatible HTTP endpoint
type HTTPConfig struct {
	Endpoint      string
	APIKey        string
	Model         string
	Language      string
	Timeout       time.Duration // zero means no client timeout
	MaxConcurrent int
}

// HTTPModel posts audio files as multipart forms to a Whisper-compatible
// endpoint. Requests are not retried.
type HTTPModel struct {
	config     HTTPConfig
	httpClient *http.Client
	semaphore  chan struct{}
}

type httpResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// NewHTTPLoader returns a Loader for the HTTP backend
func NewHTTPLoader(config HTTPConfig) Loader {
	return func(ctx context.Context) (Model, error) {
		return NewHTTPModel(config)
	}
}

// NewHTTPModel creates a new HTTP transcription model
func NewHTTPModel(config HTTPConfig) (*HTTPModel, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &HTTPModel{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Transcribe implements Model
func (m *HTTPModel) Transcribe(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}

	select {
	case m.semaphore <- struct{}{}:
		defer func() { <-m.semaphore }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	body, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		writer.CloseWithError(m.writeForm(form, file))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.Endpoint, body)
	if err != nil {
		body.Close()
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "MOM-Live/1.0")
	if m.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+m.config.APIKey)
	}

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed httpResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return parsed.Text, nil
}

func (m *HTTPModel) writeForm(form *multipart.Writer, file *os.File) error {
	part, err := form.CreateFormFile("file", filepath.Base(file.Name()))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"model":           m.config.Model,
		"response_format": "json",
	}
	if m.config.Language != "" {
		fields["language"] = m.config.Language
	}

	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := form.WriteField(key, value); err != nil {
			return fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	return form.Close()
}

// Name implements Model
func (m *HTTPModel) Name() string {
	return "http:" + m.config.Model
}

// ActiveRequests returns the number of in-flight requests
func (m *HTTPModel) ActiveRequests() int {
	return len(m.semaphore)
}
