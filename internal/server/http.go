package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Asad19772505/MOM-Live/internal/actionitems"
	"github.com/Asad19772505/MOM-Live/internal/audio"
	"github.com/Asad19772505/MOM-Live/internal/config"
	"github.com/Asad19772505/MOM-Live/internal/metrics"
	"github.com/Asad19772505/MOM-Live/internal/pipeline"
	"github.com/Asad19772505/MOM-Live/internal/session"
	"github.com/Asad19772505/MOM-Live/internal/transcription"
)

//go:embed web/index.html
var indexHTML []byte

const (
	serviceName    = "mom-live"
	serviceVersion = "1.0.0"
)

// TranscriptionStats reports the transcription service state
type TranscriptionStats interface {
	GetStats() transcription.ServiceStats
}

// HTTPServer serves the browser page and the JSON API
type HTTPServer struct {
	server        *http.Server
	engine        *gin.Engine
	logger        zerolog.Logger
	config        *config.Config
	sessions      *session.Manager
	transcription TranscriptionStats
	metrics       *metrics.Metrics
	gatherer      prometheus.Gatherer

	startTime time.Time
}

// NewHTTPServer creates the HTTP server and its routes
func NewHTTPServer(cfg *config.Config, sessions *session.Manager, transcription TranscriptionStats,
	m *metrics.Metrics, gatherer prometheus.Gatherer, logger zerolog.Logger) *HTTPServer {

	h := &HTTPServer{
		logger:        logger.With().Str("component", "http_server").Logger(),
		config:        cfg,
		sessions:      sessions,
		transcription: transcription,
		metrics:       m,
		gatherer:      gatherer,
		startTime:     time.Now(),
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(recovery(h.logger), requestLogger(h.logger), h.withMetrics())
	h.setupRoutes(engine)
	h.engine = engine

	h.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port),
		Handler:           engine,
		ReadHeaderTimeout: cfg.HTTP.GetReadHeaderTimeoutDuration(),
		ReadTimeout:       cfg.HTTP.GetReadTimeoutDuration(),
		WriteTimeout:      cfg.HTTP.GetWriteTimeoutDuration(),
		IdleTimeout:       60 * time.Second,
	}

	return h
}

func (h *HTTPServer) setupRoutes(r *gin.Engine) {
	r.GET("/", h.handleIndex)
	r.GET("/api", h.handleAPIDoc)
	r.GET("/health", h.handleHealth)
	r.GET("/config", h.handleConfig)
	r.GET("/stats", h.handleStats)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api/sessions")
	api.POST("", h.handleCreateSession)
	api.GET("", h.handleListSessions)
	api.GET("/:id", h.handleGetSession)
	api.DELETE("/:id", h.handleDeleteSession)
	api.POST("/:id/upload", h.handleUpload)
	api.POST("/:id/live/offer", h.handleLiveOffer)
	api.POST("/:id/live/stop", h.handleLiveStop)
	api.GET("/:id/level", h.handleLevels)
	api.GET("/:id/"+actionitems.ArtifactName, h.handleDownload)
}

// Handler exposes the router, mainly for tests
func (h *HTTPServer) Handler() http.Handler {
	return h.engine
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info().Str("address", h.server.Addr).Msg("Starting HTTP server")

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info().Msg("Stopping HTTP server")
	return h.server.Shutdown(ctx)
}

// outcomeResponse is the JSON shape of a finished run
type outcomeResponse struct {
	SessionID         string             `json:"session_id"`
	State             pipeline.State     `json:"state"`
	Source            audio.Source       `json:"source"`
	TranscriptPreview string             `json:"transcript_preview"`
	OK                bool               `json:"ok"`
	Items             []actionitems.Item `json:"items,omitempty"`
	Error             string             `json:"error,omitempty"`
	Raw               string             `json:"raw,omitempty"`
	DownloadURL       string             `json:"download_url,omitempty"`
	CompletedAt       time.Time          `json:"completed_at"`
}

func newOutcomeResponse(s *session.Session, outcome *pipeline.Outcome) outcomeResponse {
	resp := outcomeResponse{
		SessionID:         s.ID,
		State:             s.Machine().State(),
		Source:            outcome.Source,
		TranscriptPreview: outcome.Preview,
		OK:                outcome.Result.OK(),
		CompletedAt:       outcome.CompletedAt,
	}

	if resp.OK {
		resp.Items = outcome.Result.Items
		if resp.Items == nil {
			resp.Items = []actionitems.Item{}
		}
		resp.DownloadURL = fmt.Sprintf("/api/sessions/%s/%s", s.ID, actionitems.ArtifactName)
	} else {
		resp.Error = outcome.Result.Message()
		resp.Raw = outcome.Result.Raw
	}
	return resp
}

func (h *HTTPServer) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (h *HTTPServer) handleAPIDoc(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "Meeting Action Items Service",
		"version": serviceVersion,
		"endpoints": gin.H{
			"GET /":                                    "Browser page",
			"GET /api":                                 "API documentation",
			"GET /health":                              "Service health check",
			"GET /config":                              "Service configuration",
			"GET /stats":                               "Service statistics",
			"GET /metrics":                             "Prometheus metrics",
			"POST /api/sessions":                       "Create a session",
			"GET /api/sessions":                        "List sessions",
			"GET /api/sessions/{id}":                   "Session state and last result",
			"DELETE /api/sessions/{id}":                "Remove a session",
			"POST /api/sessions/{id}/upload":           "Upload a recording (multipart field file) and extract action items",
			"POST /api/sessions/{id}/live/offer":       "Start live capture from a WebRTC offer (mode=record|meter)",
			"POST /api/sessions/{id}/live/stop":        "Stop live capture, record mode extracts action items",
			"GET /api/sessions/{id}/level":             "Live level stream (server-sent events)",
			"GET /api/sessions/{id}/action_items.json": "Download the action items",
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *HTTPServer) handleHealth(c *gin.Context) {
	ts := h.transcription.GetStats()
	ss := h.sessions.GetStats()

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": gin.H{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": gin.H{
			"sessions": gin.H{
				"status": "running",
				"active": ss.Active,
				"live":   ss.Live,
			},
			"transcription": gin.H{
				"status":          "running",
				"model":           ts.Model,
				"loaded":          ts.Loaded,
				"active_requests": ts.ActiveRequests,
				"total_requests":  ts.TotalRequests,
				"success_rate":    ts.SuccessRate,
			},
			"extraction": gin.H{
				"status": "running",
				"model":  h.config.Extraction.Model,
			},
			"events": gin.H{
				"enabled": h.config.Events.Enabled,
				"topic":   h.config.Events.Topic,
			},
		},
	})
}

func (h *HTTPServer) handleConfig(c *gin.Context) {
	cfg := h.config

	// credentials are omitted
	c.JSON(http.StatusOK, gin.H{
		"http": gin.H{
			"port":                cfg.HTTP.Port,
			"address":             cfg.HTTP.Address,
			"read_header_timeout": cfg.HTTP.ReadHeaderTimeout,
			"read_timeout":        cfg.HTTP.ReadTimeout,
			"write_timeout":       cfg.HTTP.WriteTimeout,
		},
		"audio": gin.H{
			"sample_rate": cfg.Audio.SampleRate,
			"extraction":  cfg.Audio.FFmpegPath != "",
			"keep_files":  cfg.Audio.KeepFiles,
		},
		"transcription": gin.H{
			"provider":       cfg.Transcription.Provider,
			"model":          cfg.Transcription.Model,
			"language":       cfg.Transcription.Language,
			"endpoint":       cfg.Transcription.Endpoint,
			"timeout":        cfg.Transcription.Timeout,
			"max_concurrent": cfg.Transcription.MaxConcurrent,
		},
		"extraction": gin.H{
			"model":       cfg.Extraction.Model,
			"temperature": cfg.Extraction.Temperature,
			"max_tokens":  cfg.Extraction.MaxTokens,
		},
		"live": gin.H{
			"stun_servers":   cfg.Live.STUNServers,
			"gather_timeout": cfg.Live.GatherTimeout,
		},
		"meter": gin.H{
			"queue_size": cfg.Meter.QueueSize,
		},
		"session": gin.H{
			"timeout":          cfg.Session.Timeout,
			"cleanup_interval": cfg.Session.CleanupInterval,
			"max_sessions":     cfg.Session.MaxSessions,
		},
		"events": gin.H{
			"enabled": cfg.Events.Enabled,
			"brokers": cfg.Events.Brokers,
			"topic":   cfg.Events.Topic,
		},
		"logging": gin.H{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
			"output": cfg.Logging.Output,
		},
	})
}

func (h *HTTPServer) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime":        time.Since(h.startTime).String(),
		"timestamp":     time.Now().UTC(),
		"transcription": h.transcription.GetStats(),
		"sessions":      h.sessions.GetStats(),
	})
}

func (h *HTTPServer) handleCreateSession(c *gin.Context) {
	s, err := h.sessions.Create()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.Info())
}

func (h *HTTPServer) handleListSessions(c *gin.Context) {
	sessions := h.sessions.All()
	infos := make([]session.Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}

	c.JSON(http.StatusOK, gin.H{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	})
}

func (h *HTTPServer) handleGetSession(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Info())
}

func (h *HTTPServer) handleDeleteSession(c *gin.Context) {
	if !h.sessions.Remove(c.Param("id")) {
		respondError(c, session.ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPServer) handleUpload(c *gin.Context) {
	id := c.Param("id")

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			err = audio.ErrNoInput
		}
		respondError(c, err)
		return
	}
	defer file.Close()

	outcome, err := h.sessions.ProcessUpload(c.Request.Context(), id, audio.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Reader:      file,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.respondOutcome(c, id, outcome)
}

func (h *HTTPServer) handleLiveOffer(c *gin.Context) {
	mode, err := session.ParseMode(c.Query("mode"))
	if err != nil {
		respondError(c, err)
		return
	}

	var offer webrtc.SessionDescription
	if err := c.ShouldBindJSON(&offer); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid offer", Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.config.Live.GetGatherTimeoutDuration()+5*time.Second)
	defer cancel()

	answer, err := h.sessions.StartLive(ctx, c.Param("id"), offer, mode)
	if err != nil {
		if isSessionError(err) {
			respondError(c, err)
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid offer", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, answer)
}

func (h *HTTPServer) handleLiveStop(c *gin.Context) {
	id := c.Param("id")

	outcome, err := h.sessions.StopLive(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	if outcome == nil {
		c.JSON(http.StatusOK, gin.H{"session_id": id, "stopped": true})
		return
	}
	h.respondOutcome(c, id, outcome)
}

func (h *HTTPServer) handleLevels(c *gin.Context) {
	levels, err := h.sessions.Levels(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case level, ok := <-levels:
			if !ok {
				c.SSEvent("end", gin.H{})
				return false
			}
			c.SSEvent("level", level)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (h *HTTPServer) handleDownload(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	outcome := s.Outcome()
	if outcome == nil {
		c.JSON(http.StatusNotFound, errorBody{Error: "no action items available"})
		return
	}

	data, err := outcome.Result.Artifact()
	if err != nil {
		c.JSON(http.StatusNotFound, errorBody{Error: "no action items available", Message: outcome.Result.Message()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, actionitems.ArtifactName))
	c.Data(http.StatusOK, actionitems.ArtifactContentType, data)
}

func (h *HTTPServer) respondOutcome(c *gin.Context, id string, outcome *pipeline.Outcome) {
	s, err := h.sessions.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOutcomeResponse(s, outcome))
}

func isSessionError(err error) bool {
	return errors.Is(err, session.ErrNotFound) ||
		errors.Is(err, session.ErrLiveActive) ||
		errors.Is(err, pipeline.ErrBusy)
}
