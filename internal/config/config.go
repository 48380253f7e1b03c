package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// APIKeyEnv is the environment variable holding the OpenAI credential.
const APIKeyEnv = "OPENAI_API_KEY"

// DefaultTemperature is the extraction temperature when none is configured
const DefaultTemperature float32 = 0.2

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	OpenAI        OpenAIConfig        `yaml:"openai"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Live          LiveConfig          `yaml:"live"`
	Meter         MeterConfig         `yaml:"meter"`
	Session       SessionConfig       `yaml:"session"`
	Events        EventsConfig        `yaml:"events"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port              int    `yaml:"port"`
	Address           string `yaml:"address"`
	ReadHeaderTimeout int    `yaml:"read_header_timeout"` // seconds
	ReadTimeout       int    `yaml:"read_timeout"`        // seconds, 0 disables; covers the whole upload body
	WriteTimeout      int    `yaml:"write_timeout"`       // seconds, 0 disables
}

// AudioConfig contains audio capture and temp file parameters
type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"`
	TempDir    string `yaml:"temp_dir"`
	FFmpegPath string `yaml:"ffmpeg_path"` // empty disables audio extraction
	KeepFiles  bool   `yaml:"keep_files"`
}

// OpenAIConfig holds the credential and endpoint shared by the OpenAI backends
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// TranscriptionConfig contains speech-to-text backend configuration
type TranscriptionConfig struct {
	Provider      string `yaml:"provider"` // openai | http
	Model         string `yaml:"model"`
	Language      string `yaml:"language"`
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds, 0 disables
	MaxConcurrent int    `yaml:"max_concurrent"`
	VerifyModel   bool   `yaml:"verify_model"`
}

// ExtractionConfig contains chat completion parameters
type ExtractionConfig struct {
	Model       string   `yaml:"model"`
	Temperature *float32 `yaml:"temperature"` // nil means 0.2
	MaxTokens   int      `yaml:"max_tokens"`
}

// LiveConfig contains real-time transport configuration
type LiveConfig struct {
	STUNServers   []string `yaml:"stun_servers"`
	GatherTimeout int      `yaml:"gather_timeout"` // seconds
}

// MeterConfig contains live level meter configuration
type MeterConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// SessionConfig contains session registry configuration
type SessionConfig struct {
	Timeout         int `yaml:"timeout"`          // seconds
	CleanupInterval int `yaml:"cleanup_interval"` // seconds
	MaxSessions     int `yaml:"max_sessions"`
}

// EventsConfig contains result event publishing configuration
type EventsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file. A .env file next to the
// working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.ApplyDefaults()
	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ApplyDefaults fills unset fields with their default values
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = "0.0.0.0"
	}
	if c.HTTP.ReadHeaderTimeout == 0 {
		c.HTTP.ReadHeaderTimeout = 10
	}

	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 48000
	}
	if c.Audio.TempDir == "" {
		c.Audio.TempDir = os.TempDir()
	}

	if c.Transcription.Provider == "" {
		c.Transcription.Provider = "openai"
	}
	if c.Transcription.Model == "" {
		c.Transcription.Model = "whisper-1"
	}
	if c.Transcription.MaxConcurrent == 0 {
		c.Transcription.MaxConcurrent = 4
	}

	if c.Extraction.Model == "" {
		c.Extraction.Model = "gpt-4"
	}
	if c.Extraction.Temperature == nil {
		temperature := DefaultTemperature
		c.Extraction.Temperature = &temperature
	}

	if len(c.Live.STUNServers) == 0 {
		c.Live.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
	if c.Live.GatherTimeout == 0 {
		c.Live.GatherTimeout = 10
	}

	if c.Meter.QueueSize == 0 {
		c.Meter.QueueSize = 1
	}

	if c.Session.Timeout == 0 {
		c.Session.Timeout = 1800
	}
	if c.Session.CleanupInterval == 0 {
		c.Session.CleanupInterval = 30
	}
	if c.Session.MaxSessions == 0 {
		c.Session.MaxSessions = 100
	}

	if c.Events.Topic == "" {
		c.Events.Topic = "meeting.action-items"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// ApplyEnv overrides credentials from the environment
func (c *Config) ApplyEnv() {
	if key := os.Getenv(APIKeyEnv); key != "" {
		c.OpenAI.APIKey = key
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	// extraction always goes through the OpenAI client; only a custom
	// base_url (a proxy or local stand-in) may run without a key
	if c.OpenAI.APIKey == "" && c.OpenAI.BaseURL == "" {
		return fmt.Errorf("openai config: api_key is required (set %s)", APIKeyEnv)
	}

	if err := c.Extraction.Validate(); err != nil {
		return fmt.Errorf("extraction config: %w", err)
	}

	if err := c.Live.Validate(); err != nil {
		return fmt.Errorf("live config: %w", err)
	}

	if c.Meter.QueueSize < 1 {
		return fmt.Errorf("meter config: queue_size must be at least 1, got %d", c.Meter.QueueSize)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}

	if h.ReadHeaderTimeout < 0 || h.ReadTimeout < 0 || h.WriteTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	switch a.SampleRate {
	case 8000, 16000, 24000, 48000:
	default:
		return fmt.Errorf("sample_rate must be one of 8000, 16000, 24000, 48000, got %d", a.SampleRate)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	switch t.Provider {
	case "openai":
	case "http":
		if t.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for http provider")
		}
	default:
		return fmt.Errorf("provider must be 'openai' or 'http', got '%s'", t.Provider)
	}

	if t.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if t.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %d", t.Timeout)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates extraction configuration
func (e *ExtractionConfig) Validate() error {
	if e.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if e.Temperature != nil && (*e.Temperature < 0 || *e.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", *e.Temperature)
	}

	if e.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative, got %d", e.MaxTokens)
	}

	return nil
}

// Validate validates live transport configuration
func (l *LiveConfig) Validate() error {
	if l.GatherTimeout < 1 {
		return fmt.Errorf("gather_timeout must be at least 1 second, got %d", l.GatherTimeout)
	}
	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	if s.CleanupInterval < 1 {
		return fmt.Errorf("cleanup_interval must be at least 1 second, got %d", s.CleanupInterval)
	}

	if s.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", s.MaxSessions)
	}

	return nil
}

// Validate validates events configuration
func (e *EventsConfig) Validate() error {
	if !e.Enabled {
		return nil
	}

	if len(e.Brokers) == 0 {
		return fmt.Errorf("brokers cannot be empty when events are enabled")
	}

	if e.Topic == "" {
		return fmt.Errorf("topic cannot be empty when events are enabled")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetReadHeaderTimeoutDuration returns the HTTP header read timeout as a time.Duration
func (h *HTTPConfig) GetReadHeaderTimeoutDuration() time.Duration {
	return time.Duration(h.ReadHeaderTimeout) * time.Second
}

// GetReadTimeoutDuration returns the HTTP read timeout as a time.Duration
func (h *HTTPConfig) GetReadTimeoutDuration() time.Duration {
	return time.Duration(h.ReadTimeout) * time.Second
}

// GetWriteTimeoutDuration returns the HTTP write timeout as a time.Duration
func (h *HTTPConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(h.WriteTimeout) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetGatherTimeoutDuration returns the ICE gathering timeout as a time.Duration
func (l *LiveConfig) GetGatherTimeoutDuration() time.Duration {
	return time.Duration(l.GatherTimeout) * time.Second
}

// GetTimeoutDuration returns the session idle timeout as a time.Duration
func (s *SessionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetCleanupIntervalDuration returns the session cleanup interval as a time.Duration
func (s *SessionConfig) GetCleanupIntervalDuration() time.Duration {
	return time.Duration(s.CleanupInterval) * time.Second
}
