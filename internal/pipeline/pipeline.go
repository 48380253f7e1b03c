package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Asad19772505/MOM-Live/internal/actionitems"
	"github.com/Asad19772505/MOM-Live/internal/audio"
	"github.com/Asad19772505/MOM-Live/internal/events"
)

// Transcriber turns an asset into text
type Transcriber interface {
	Transcribe(ctx context.Context, asset *audio.Asset) (string, error)
}

// Extractor turns a transcript into a raw model reply
type Extractor interface {
	Extract(ctx context.Context, transcript string) (string, error)
}

// Publisher announces finished runs
type Publisher interface {
	Publish(ctx context.Context, event events.ResultEvent) error
}

// Recorder receives pipeline observations for metrics
type Recorder interface {
	RecordPipeline(outcome string, duration time.Duration)
}

// Outcome is what a finished run shows the user
type Outcome struct {
	Source      audio.Source       `json:"source"`
	Transcript  string             `json:"transcript"`
	Preview     string             `json:"preview"`
	Result      actionitems.Result `json:"result"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
}

// Pipeline runs Transcription, Extraction and Presentation in order
type Pipeline struct {
	transcriber Transcriber
	extractor   Extractor
	presenter   *actionitems.Presenter
	publisher   Publisher
	recorder    Recorder
	logger      zerolog.Logger
}

// New creates a pipeline. publisher and recorder may be nil.
func New(transcriber Transcriber, extractor Extractor, presenter *actionitems.Presenter, publisher Publisher, recorder Recorder, logger zerolog.Logger) *Pipeline {
	if presenter == nil {
		presenter = actionitems.NewPresenter()
	}
	return &Pipeline{
		transcriber: transcriber,
		extractor:   extractor,
		presenter:   presenter,
		publisher:   publisher,
		recorder:    recorder,
		logger:      logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run drives machine through one run over asset. The asset is released when
// the run ends. External failures leave the machine in StateError and are
// returned; a reply that fails to parse is not an error, it is reported in
// the outcome's Result.
func (p *Pipeline) Run(ctx context.Context, sessionID string, machine *Machine, asset *audio.Asset) (*Outcome, error) {
	defer func() {
		if err := asset.Release(); err != nil {
			p.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to release asset")
		}
	}()

	if err := machine.Begin(); err != nil {
		return nil, err
	}

	logger := p.logger.With().Str("session_id", sessionID).Str("source", string(asset.Source)).Logger()
	started := time.Now()

	transcript, err := p.transcriber.Transcribe(ctx, asset)
	if err != nil {
		return nil, p.fail(machine, logger, started, "transcription", err)
	}
	if _, err := machine.Fire(EventTranscribed); err != nil {
		return nil, err
	}

	raw, err := p.extractor.Extract(ctx, transcript)
	if err != nil {
		return nil, p.fail(machine, logger, started, "extraction", err)
	}

	result := p.presenter.Present(raw)
	if _, err := machine.Fire(EventExtracted); err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Source:      asset.Source,
		Transcript:  transcript,
		Preview:     actionitems.Preview(transcript),
		Result:      result,
		StartedAt:   started,
		CompletedAt: time.Now(),
	}

	label := "ok"
	if !result.OK() {
		label = string(result.Failure)
		logger.Warn().
			Str("failure", label).
			Str("reason", result.Reason).
			Msg("Model reply rejected")
	}
	if p.recorder != nil {
		p.recorder.RecordPipeline(label, outcome.CompletedAt.Sub(started))
	}

	logger.Info().
		Int("items", len(result.Items)).
		Bool("ok", result.OK()).
		Dur("elapsed", outcome.CompletedAt.Sub(started)).
		Msg("Pipeline run completed")

	p.publish(ctx, sessionID, outcome, logger)

	return outcome, nil
}

func (p *Pipeline) fail(machine *Machine, logger zerolog.Logger, started time.Time, stage string, err error) error {
	machine.Fail(err)
	if p.recorder != nil {
		p.recorder.RecordPipeline("error", time.Since(started))
	}
	logger.Error().Err(err).Str("stage", stage).Msg("Pipeline run failed")
	return fmt.Errorf("%s: %w", stage, err)
}

func (p *Pipeline) publish(ctx context.Context, sessionID string, outcome *Outcome, logger zerolog.Logger) {
	if p.publisher == nil {
		return
	}

	event := events.ResultEvent{
		SessionID:   sessionID,
		Source:      string(outcome.Source),
		OK:          outcome.Result.OK(),
		Items:       outcome.Result.Items,
		Failure:     string(outcome.Result.Failure),
		Transcript:  outcome.Preview,
		CompletedAt: outcome.CompletedAt,
	}

	if err := p.publisher.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish result event")
	}
}
