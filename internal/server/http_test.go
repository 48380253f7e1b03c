package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Asad19772505/MOM-Live/internal/actionitems"
	"github.com/Asad19772505/MOM-Live/internal/audio"
	"github.com/Asad19772505/MOM-Live/internal/config"
	"github.com/Asad19772505/MOM-Live/internal/metrics"
	"github.com/Asad19772505/MOM-Live/internal/pipeline"
	"github.com/Asad19772505/MOM-Live/internal/session"
	"github.com/Asad19772505/MOM-Live/internal/transcription"
)

const aliceReply = `[{"owner":"Alice","action":"Send report","due_date":"2024-06-01","priority":"high"}]`

type stubModel struct {
	text string
	err  error
}

func (m *stubModel) Transcribe(ctx context.Context, path string) (string, error) {
	return m.text, m.err
}

func (m *stubModel) Name() string { return "stub" }

type stubExtractor struct {
	raw string
}

func (e *stubExtractor) Extract(ctx context.Context, transcript string) (string, error) {
	return e.raw, nil
}

type testPeer struct {
	sink audio.FrameSink
	done chan struct{}
	once sync.Once
}

func (p *testPeer) Answer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"}, nil
}

func (p *testPeer) Done() <-chan struct{} { return p.done }

func (p *testPeer) GetStats() session.PeerStats {
	return session.PeerStats{State: "connected", Tracks: 1}
}

func (p *testPeer) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

type testServer struct {
	server    *HTTPServer
	model     *stubModel
	extractor *stubExtractor
	registry  *prometheus.Registry

	mu    sync.Mutex
	peers []*testPeer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{OpenAI: config.OpenAIConfig{APIKey: "test-key"}}
	cfg.ApplyDefaults()

	ts := &testServer{
		model:     &stubModel{text: "Alice will send the report by June 1st."},
		extractor: &stubExtractor{raw: aliceReply},
		registry:  prometheus.NewRegistry(),
	}

	m := metrics.NewMetrics(ts.registry)
	transcriber := transcription.NewService(func(ctx context.Context) (transcription.Model, error) {
		return ts.model, nil
	}, m, zerolog.Nop())
	runner := pipeline.New(transcriber, ts.extractor, nil, nil, m, zerolog.Nop())

	sessions := session.NewManager(session.Config{}, session.Dependencies{
		Runner:   runner,
		Acquirer: audio.NewAcquirer(audio.AcquirerConfig{TempDir: t.TempDir()}, zerolog.Nop()),
		NewPeer: func(sink audio.FrameSink) (session.Peer, error) {
			p := &testPeer{sink: sink, done: make(chan struct{})}
			ts.mu.Lock()
			ts.peers = append(ts.peers, p)
			ts.mu.Unlock()
			return p, nil
		},
		Recorder:      m,
		MeterRecorder: m,
	}, zerolog.Nop())
	t.Cleanup(sessions.Stop)

	ts.server = NewHTTPServer(cfg, sessions, transcriber, m, ts.registry, zerolog.Nop())
	return ts
}

func (ts *testServer) lastPeer() *testPeer {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.peers[len(ts.peers)-1]
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) createSession(t *testing.T) string {
	t.Helper()
	w := ts.do(httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var info session.Info
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("Failed to decode session: %v", err)
	}
	return info.ID
}

func uploadRequest(t *testing.T, id, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		fw.Write(content)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestIndexPage(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<title>Zoom/Live Action Item Extractor</title>") {
		t.Error("Page title missing")
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Unexpected content type %s", w.Header().Get("Content-Type"))
	}
}

func TestUploadAndDownload(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	w := ts.do(uploadRequest(t, id, "meeting.mp4", []byte("fake mp4 bytes")))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp outcomeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode outcome: %v", err)
	}
	if !resp.OK || len(resp.Items) != 1 || resp.Items[0].Action != "Send report" {
		t.Fatalf("Unexpected outcome %+v", resp)
	}
	if resp.State != pipeline.StatePresenting || resp.Source != audio.SourceUpload {
		t.Errorf("Unexpected state %s or source %s", resp.State, resp.Source)
	}
	if resp.TranscriptPreview != ts.model.text {
		t.Errorf("Unexpected preview %q", resp.TranscriptPreview)
	}

	dl := ts.do(httptest.NewRequest(http.MethodGet, resp.DownloadURL, nil))
	if dl.Code != http.StatusOK {
		t.Fatalf("Expected 200 download, got %d", dl.Code)
	}
	if ct := dl.Header().Get("Content-Type"); ct != actionitems.ArtifactContentType {
		t.Errorf("Unexpected content type %s", ct)
	}
	if cd := dl.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="action_items.json"`) {
		t.Errorf("Unexpected disposition %s", cd)
	}
	if !strings.Contains(dl.Body.String(), "\n    {\n        \"owner\": \"Alice\"") {
		t.Errorf("Expected four-space indentation, got:\n%s", dl.Body.String())
	}

	var items []actionitems.Item
	if err := json.Unmarshal(dl.Body.Bytes(), &items); err != nil {
		t.Fatalf("Artifact is not valid JSON: %v", err)
	}
	if len(items) != 1 || !items[0].Equal(resp.Items[0]) {
		t.Errorf("Artifact items differ from displayed items")
	}
}

func TestUploadInputErrors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  []byte
	}{
		{"missing file field", "", nil},
		{"empty file", "empty.mp4", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			id := ts.createSession(t)

			w := ts.do(uploadRequest(t, id, tt.filename, tt.content))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if body := decode(t, w); body["error"] != "no input provided" {
				t.Errorf("Unexpected error %v", body["error"])
			}

			info := decode(t, ts.do(httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil)))
			if info["state"] != string(pipeline.StateIdle) {
				t.Errorf("Expected idle state, got %v", info["state"])
			}
		})
	}
}

func TestUploadMalformedReply(t *testing.T) {
	ts := newTestServer(t)
	ts.extractor.raw = "not json"
	id := ts.createSession(t)

	w := ts.do(uploadRequest(t, id, "meeting.mp4", []byte("x")))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := decode(t, w)
	if body["ok"] != false || body["raw"] != "not json" {
		t.Errorf("Unexpected body %v", body)
	}
	if _, ok := body["download_url"]; ok {
		t.Error("No download must be offered for a failed extraction")
	}
	if body["error"] == "" {
		t.Error("Expected error message")
	}

	dl := ts.do(httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/action_items.json", nil))
	if dl.Code != http.StatusNotFound {
		t.Errorf("Expected 404 download, got %d", dl.Code)
	}
}

func TestUploadTranscriptionFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.model.err = errors.New("whisper unavailable")
	id := ts.createSession(t)

	w := ts.do(uploadRequest(t, id, "meeting.mp4", []byte("x")))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", w.Code)
	}
	if body := decode(t, w); body["error"] != "processing failed" {
		t.Errorf("Unexpected error %v", body["error"])
	}

	info := decode(t, ts.do(httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil)))
	if info["state"] != string(pipeline.StateError) {
		t.Errorf("Expected error state, got %v", info["state"])
	}
}

func TestUnknownSession(t *testing.T) {
	ts := newTestServer(t)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/sessions/nope"},
		{http.MethodDelete, "/api/sessions/nope"},
		{http.MethodPost, "/api/sessions/nope/live/stop"},
		{http.MethodGet, "/api/sessions/nope/level"},
		{http.MethodGet, "/api/sessions/nope/action_items.json"},
	}
	for _, p := range paths {
		w := ts.do(httptest.NewRequest(p.method, p.path, nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", p.method, p.path, w.Code)
		}
	}
}

func offerRequest(id, mode string) *http.Request {
	body := `{"type":"offer","sdp":"v=0\r\n"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/live/offer?mode="+mode, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestLiveRecordFlow(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	w := ts.do(offerRequest(id, "record"))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body := decode(t, w); body["type"] != "answer" {
		t.Errorf("Expected answer, got %v", body["type"])
	}

	if again := ts.do(offerRequest(id, "record")); again.Code != http.StatusConflict {
		t.Errorf("Expected 409 for second offer, got %d", again.Code)
	}

	ts.lastPeer().sink.OnFrame(audio.Frame{Samples: []int16{1, 2, 3, 4}, SampleRate: 48000, Channels: 1})

	stop := ts.do(httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/live/stop", nil))
	if stop.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", stop.Code, stop.Body.String())
	}
	if body := decode(t, stop); body["ok"] != true || body["source"] != "live" {
		t.Errorf("Unexpected outcome %v", body)
	}
}

func TestLiveStopWithoutAudio(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	if w := ts.do(offerRequest(id, "record")); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w := ts.do(httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/live/stop", nil))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d", w.Code)
	}
	body := decode(t, w)
	if body["error"] != "no audio captured" || body["message"] != NoAudioMessage {
		t.Errorf("Unexpected body %v", body)
	}
}

func TestLiveErrors(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	if w := ts.do(offerRequest(id, "video")); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown mode, got %d", w.Code)
	}

	bad := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/live/offer", strings.NewReader("{"))
	bad.Header.Set("Content-Type", "application/json")
	if w := ts.do(bad); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad offer, got %d", w.Code)
	}

	if w := ts.do(httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/live/stop", nil)); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 when not live, got %d", w.Code)
	}
}

func TestLevelStream(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	if w := ts.do(offerRequest(id, "meter")); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	ts.lastPeer().sink.OnFrame(audio.Frame{Samples: []int16{16384, -16384}, SampleRate: 48000, Channels: 1})

	srv := httptest.NewServer(ts.server.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/sessions/" + id + "/level")
	if err != nil {
		t.Fatalf("Level request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Unexpected content type %s", ct)
	}

	events := make(chan string, 8)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "event:") {
				events <- strings.TrimPrefix(line, "event:")
			}
		}
	}()

	select {
	case ev := <-events:
		if ev != "level" {
			t.Fatalf("Expected level event, got %s", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No level event received")
	}

	if w := ts.do(httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/live/stop", nil)); w.Code != http.StatusOK {
		t.Fatalf("Expected 200 stop, got %d", w.Code)
	}

	select {
	case ev := <-events:
		if ev != "end" {
			t.Errorf("Expected end event, got %s", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stream did not end after stop")
	}
}

func TestOperationalEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.createSession(t)

	for _, path := range []string{"/api", "/health", "/config", "/stats", "/api/sessions"} {
		w := ts.do(httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
		}
	}

	cfg := ts.do(httptest.NewRequest(http.MethodGet, "/config", nil))
	if strings.Contains(cfg.Body.String(), "test-key") {
		t.Error("Config endpoint leaked the API key")
	}
	if strings.Contains(cfg.Body.String(), `"channels"`) || strings.Contains(cfg.Body.String(), `"bit_depth"`) {
		t.Error("Config endpoint shows capture layout settings that are fixed")
	}

	var health struct {
		Components struct {
			Transcription struct {
				ActiveRequests *int `json:"active_requests"`
			} `json:"transcription"`
			Extraction struct {
				Model string `json:"model"`
			} `json:"extraction"`
		} `json:"components"`
	}
	hw := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err := json.Unmarshal(hw.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health.Components.Extraction.Model != "gpt-4" {
		t.Errorf("Expected extraction model gpt-4 in health, got %q", health.Components.Extraction.Model)
	}
	if health.Components.Transcription.ActiveRequests == nil {
		t.Error("Expected active_requests in health")
	}

	var stats struct {
		Sessions struct {
			Capture *struct {
				Packets uint64 `json:"packets"`
			} `json:"capture"`
		} `json:"sessions"`
	}
	sw := ts.do(httptest.NewRequest(http.MethodGet, "/stats", nil))
	if err := json.Unmarshal(sw.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.Sessions.Capture == nil {
		t.Error("Expected capture totals in stats")
	}

	m := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if m.Code != http.StatusOK {
		t.Fatalf("Expected 200 metrics, got %d", m.Code)
	}
	for _, name := range []string{"mom_http_requests_total", "mom_sessions_created_total"} {
		if !strings.Contains(m.Body.String(), name) {
			t.Errorf("Metrics output missing %s", name)
		}
	}
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	if w := ts.do(httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil)); w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}
	if w := ts.do(httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil)); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}
