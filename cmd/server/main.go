package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Asad19772505/MOM-Live/internal/actionitems"
	"github.com/Asad19772505/MOM-Live/internal/audio"
	"github.com/Asad19772505/MOM-Live/internal/config"
	"github.com/Asad19772505/MOM-Live/internal/events"
	"github.com/Asad19772505/MOM-Live/internal/extraction"
	"github.com/Asad19772505/MOM-Live/internal/logging"
	"github.com/Asad19772505/MOM-Live/internal/meter"
	"github.com/Asad19772505/MOM-Live/internal/metrics"
	"github.com/Asad19772505/MOM-Live/internal/pipeline"
	"github.com/Asad19772505/MOM-Live/internal/rtc"
	"github.com/Asad19772505/MOM-Live/internal/server"
	"github.com/Asad19772505/MOM-Live/internal/session"
	"github.com/Asad19772505/MOM-Live/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "mom-live"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := logging.New(cfg.Logging, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	logger.Info().
		Str("version", serviceVersion).
		Str("config_path", *configPath).
		Msg("Service starting")

	logger.Info().
		Str("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)).
		Str("transcription_provider", cfg.Transcription.Provider).
		Str("transcription_model", cfg.Transcription.Model).
		Str("extraction_model", cfg.Extraction.Model).
		Int("sample_rate", cfg.Audio.SampleRate).
		Bool("events_enabled", cfg.Events.Enabled).
		Str("log_level", cfg.Logging.Level).
		Msg("Configuration loaded")

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)

	transcriber := transcription.NewService(newLoader(cfg), appMetrics, logger)

	chatClient := transcription.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, 0)
	extractor := extraction.NewExtractor(chatClient, extraction.Config{
		Model:       cfg.Extraction.Model,
		Temperature: cfg.Extraction.Temperature,
		MaxTokens:   cfg.Extraction.MaxTokens,
	}, appMetrics, logger)

	publisher := events.New(events.Config{
		Enabled: cfg.Events.Enabled,
		Brokers: cfg.Events.Brokers,
		Topic:   cfg.Events.Topic,
	}, appMetrics, logger)

	runner := pipeline.New(transcriber, extractor, actionitems.NewPresenter(), publisher, appMetrics, logger)

	acquirer := audio.NewAcquirer(audio.AcquirerConfig{
		TempDir:    cfg.Audio.TempDir,
		SampleRate: cfg.Audio.SampleRate,
		FFmpegPath: cfg.Audio.FFmpegPath,
		KeepFiles:  cfg.Audio.KeepFiles,
	}, logger)

	peerConfig := rtc.Config{
		STUNServers:   cfg.Live.STUNServers,
		GatherTimeout: cfg.Live.GetGatherTimeoutDuration(),
	}

	sessions := session.NewManager(session.Config{
		Timeout:         cfg.Session.GetTimeoutDuration(),
		CleanupInterval: cfg.Session.GetCleanupIntervalDuration(),
		MaxSessions:     cfg.Session.MaxSessions,
		Meter:           meter.Config{QueueSize: cfg.Meter.QueueSize},
	}, session.Dependencies{
		Runner:   runner,
		Acquirer: acquirer,
		NewPeer: func(sink audio.FrameSink) (session.Peer, error) {
			peer, err := rtc.NewPeer(peerConfig, sink, appMetrics, logger)
			if err != nil {
				return nil, err
			}
			return livePeer{peer}, nil
		},
		Recorder:      appMetrics,
		MeterRecorder: appMetrics,
	}, logger)

	httpServer := server.NewHTTPServer(cfg, sessions, transcriber, appMetrics, prometheus.DefaultGatherer, logger)
	if err := httpServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start HTTP server")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info().Msg("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping HTTP server")
	}

	sessions.Stop()

	if err := publisher.Close(); err != nil {
		logger.Error().Err(err).Msg("Error closing event publisher")
	}

	stats := transcriber.GetStats()
	logger.Info().
		Uint64("total_transcriptions", stats.TotalRequests).
		Uint64("successful_transcriptions", stats.SuccessRequests).
		Float64("transcription_success_rate", stats.SuccessRate).
		Msg("Service stopped")
}

// livePeer exposes an rtc.Peer's counters to the session manager
type livePeer struct {
	*rtc.Peer
}

func (p livePeer) GetStats() session.PeerStats {
	return session.PeerStats(p.Peer.GetStats())
}

// newLoader selects the transcription backend. Nothing is loaded until the
// first transcription.
func newLoader(cfg *config.Config) transcription.Loader {
	tc := cfg.Transcription

	if tc.Provider == "http" {
		return transcription.NewHTTPLoader(transcription.HTTPConfig{
			Endpoint:      tc.Endpoint,
			APIKey:        tc.APIKey,
			Model:         tc.Model,
			Language:      tc.Language,
			Timeout:       tc.GetTimeoutDuration(),
			MaxConcurrent: tc.MaxConcurrent,
		})
	}

	return transcription.NewOpenAILoader(transcription.OpenAIConfig{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       tc.Model,
		Language:    tc.Language,
		Timeout:     tc.GetTimeoutDuration(),
		VerifyModel: tc.VerifyModel,
	})
}
