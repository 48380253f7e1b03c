package transcription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Asad19772505/MOM-Live/internal/audio"
)

// Recorder receives transcription observations for metrics
type Recorder interface {
	RecordModelLoad(duration time.Duration, err error)
	RecordTranscription(duration time.Duration, err error)
}

// Service owns the process-wide transcription model. The model is loaded on
// first use and kept for the life of the service; concurrent first calls
// share one load. A failed load is not cached.
type Service struct {
	loader   Loader
	recorder Recorder
	logger   zerolog.Logger

	model    Model
	loadMu   sync.Mutex
	loadedAt time.Time
	loads    uint64

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration
	statsMu         sync.RWMutex
}

// ServiceStats represents transcription statistics
type ServiceStats struct {
	Model           string        `json:"model,omitempty"`
	Loaded          bool          `json:"loaded"`
	LoadedAt        time.Time     `json:"loaded_at,omitempty"`
	Loads           uint64        `json:"loads"`
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// activeCounter is implemented by models that bound their concurrency
type activeCounter interface {
	ActiveRequests() int
}

// NewService creates a transcription service. A nil recorder disables metrics.
func NewService(loader Loader, recorder Recorder, logger zerolog.Logger) *Service {
	return &Service{
		loader:   loader,
		recorder: recorder,
		logger:   logger.With().Str("component", "transcription").Logger(),
	}
}

// Model returns the loaded model, loading it if needed
func (s *Service) Model(ctx context.Context) (Model, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if s.model != nil {
		return s.model, nil
	}

	start := time.Now()
	model, err := s.loader(ctx)
	if err == nil && model == nil {
		err = fmt.Errorf("loader returned no model")
	}
	if s.recorder != nil {
		s.recorder.RecordModelLoad(time.Since(start), err)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load transcription model")
		return nil, fmt.Errorf("failed to load transcription model: %w", err)
	}

	s.model = model
	s.loadedAt = time.Now()
	s.loads++

	s.logger.Info().
		Str("model", model.Name()).
		Dur("load_time", time.Since(start)).
		Msg("Transcription model loaded")

	return model, nil
}

// Transcribe consumes the asset and returns its transcript. Errors from the
// model propagate unchanged in kind; there is no retry.
func (s *Service) Transcribe(ctx context.Context, asset *audio.Asset) (string, error) {
	path, err := asset.Consume()
	if err != nil {
		return "", err
	}

	model, err := s.Model(ctx)
	if err != nil {
		return "", err
	}

	s.incrementTotalRequests()
	start := time.Now()

	text, err := model.Transcribe(ctx, path)
	elapsed := time.Since(start)
	if s.recorder != nil {
		s.recorder.RecordTranscription(elapsed, err)
	}
	if err != nil {
		s.incrementFailedRequests()
		s.logger.Error().
			Err(err).
			Str("source", string(asset.Source)).
			Dur("elapsed", elapsed).
			Msg("Transcription failed")
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	s.recordSuccess(elapsed)
	s.logger.Info().
		Str("source", string(asset.Source)).
		Int64("size_bytes", asset.Size).
		Int("chars", len(text)).
		Dur("elapsed", elapsed).
		Msg("Transcription completed")

	return text, nil
}

// Statistics methods
func (s *Service) incrementTotalRequests() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.totalRequests++
}

func (s *Service) incrementFailedRequests() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.failedRequests++
}

func (s *Service) recordSuccess(responseTime time.Duration) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.successRequests++
	if s.avgResponseTime == 0 {
		s.avgResponseTime = responseTime
	} else {
		s.avgResponseTime = (s.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current service statistics
func (s *Service) GetStats() ServiceStats {
	s.loadMu.Lock()
	stats := ServiceStats{
		Loaded:   s.model != nil,
		LoadedAt: s.loadedAt,
		Loads:    s.loads,
	}
	if s.model != nil {
		stats.Model = s.model.Name()
		if counter, ok := s.model.(activeCounter); ok {
			stats.ActiveRequests = counter.ActiveRequests()
		}
	}
	s.loadMu.Unlock()

	s.statsMu.RLock()
	defer s.statsMu.RUnlock()

	stats.TotalRequests = s.totalRequests
	stats.SuccessRequests = s.successRequests
	stats.FailedRequests = s.failedRequests
	stats.AvgResponseTime = s.avgResponseTime
	if s.totalRequests > 0 {
		stats.SuccessRate = float64(s.successRequests) / float64(s.totalRequests) * 100
	}

	return stats
}
