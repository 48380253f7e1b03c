package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

type fakeChat struct {
	requests []openai.ChatCompletionRequest
	resp     openai.ChatCompletionResponse
	err      error
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, request)
	return f.resp, f.err
}

type extractionRecorder struct {
	calls int
	err   error
}

func (r *extractionRecorder) RecordExtraction(_ time.Duration, err error) {
	r.calls++
	r.err = err
}

func reply(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
		},
	}
}

func TestBuildPrompt(t *testing.T) {
	transcript := `Alice: I'll send the "Q3" deck by Friday.`
	prompt := BuildPrompt(transcript)

	if !strings.Contains(prompt, `"""`+transcript+`"""`) {
		t.Errorf("Expected transcript embedded verbatim between triple quotes")
	}
	for _, key := range []string{"owner", "action", "due_date", "priority", "high", "medium", "low", "null"} {
		if !strings.Contains(prompt, key) {
			t.Errorf("Expected prompt to mention %q", key)
		}
	}
}

func TestBuildPromptEmptyTranscript(t *testing.T) {
	if !strings.Contains(BuildPrompt(""), `""""""`) {
		t.Errorf("Expected empty transcript to leave adjacent delimiters")
	}
}

func TestExtract(t *testing.T) {
	raw := `[{"owner":"Alice","action":"Send deck","due_date":"Friday","priority":"high"}]`
	chat := &fakeChat{resp: reply(raw)}
	rec := &extractionRecorder{}

	extractor := NewExtractor(chat, Config{}, rec, zerolog.Nop())

	got, err := extractor.Extract(context.Background(), "Alice will send the deck by Friday.")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got != raw {
		t.Errorf("Expected raw reply returned unchanged, got %q", got)
	}

	if len(chat.requests) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(chat.requests))
	}
	req := chat.requests[0]
	if req.Model != "gpt-4" {
		t.Errorf("Expected model gpt-4, got %s", req.Model)
	}
	if req.Temperature != 0.2 {
		t.Errorf("Expected temperature 0.2, got %f", req.Temperature)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != openai.ChatMessageRoleUser {
		t.Errorf("Expected a single user message, got %+v", req.Messages)
	}
	if rec.calls != 1 || rec.err != nil {
		t.Errorf("Unexpected recorder state calls=%d err=%v", rec.calls, rec.err)
	}
}

func TestExtractZeroTemperature(t *testing.T) {
	chat := &fakeChat{resp: reply("[]")}
	zero := float32(0)

	extractor := NewExtractor(chat, Config{Temperature: &zero}, nil, zerolog.Nop())
	if _, err := extractor.Extract(context.Background(), "nothing"); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	got := chat.requests[0].Temperature
	if got == 0 || got > 1e-6 {
		t.Errorf("Expected near-zero temperature that survives encoding, got %g", got)
	}
}

func TestExtractErrors(t *testing.T) {
	upstream := errors.New("rate limited")

	tests := []struct {
		name   string
		chat   *fakeChat
		target error
	}{
		{"endpoint error", &fakeChat{err: upstream}, upstream},
		{"no choices", &fakeChat{resp: openai.ChatCompletionResponse{}}, ErrNoChoices},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &extractionRecorder{}
			extractor := NewExtractor(tt.chat, Config{}, rec, zerolog.Nop())

			_, err := extractor.Extract(context.Background(), "x")
			if !errors.Is(err, tt.target) {
				t.Errorf("Expected %v, got %v", tt.target, err)
			}
			if len(tt.chat.requests) != 1 {
				t.Errorf("Expected exactly one attempt, got %d", len(tt.chat.requests))
			}
			if rec.err == nil {
				t.Errorf("Expected recorder to see the error")
			}
		})
	}
}

func TestExtractAgainstOpenAIClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Model != "gpt-4" {
			t.Errorf("Expected model gpt-4, got %s", req.Model)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": "[]"}, "finish_reason": "stop"},
			},
		})
	}))
	defer server.Close()

	clientConfig := openai.DefaultConfig("test-key")
	clientConfig.BaseURL = server.URL + "/v1"
	extractor := NewExtractor(openai.NewClientWithConfig(clientConfig), Config{Model: "gpt-4"}, nil, zerolog.Nop())

	got, err := extractor.Extract(context.Background(), "nothing to do")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got != "[]" {
		t.Errorf("Expected [], got %q", got)
	}
}
