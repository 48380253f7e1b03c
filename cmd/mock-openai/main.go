// Command mock-openai serves canned OpenAI transcription and chat completion
// responses for running the service locally without credentials. Point
// openai.base_url at it, or transcription.endpoint for the http provider.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

const defaultReply = `[
  {"owner": "Alice", "action": "Send the quarterly report", "due_date": "Friday", "priority": "high"},
  {"owner": null, "action": "Book a room for the retro", "due_date": null, "priority": "low"}
]`

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "Listen address")
	text := flag.String("text", "Alice will send the quarterly report by Friday. Someone should book a room for the retro.", "Transcript returned for every audio file")
	reply := flag.String("reply", defaultReply, "Chat completion content returned for every prompt")
	delay := flag.Duration("delay", 0, "Artificial latency per request")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("service", "mock-openai").Logger()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), func(c *gin.Context) {
		if *delay > 0 {
			time.Sleep(*delay)
		}
		c.Next()
	})

	r.POST("/v1/audio/transcriptions", func(c *gin.Context) {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "file is required"}})
			return
		}
		defer file.Close()

		size, err := io.Copy(io.Discard, file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "failed to read file"}})
			return
		}

		logger.Info().
			Str("filename", header.Filename).
			Int64("size_bytes", size).
			Str("model", c.PostForm("model")).
			Str("language", c.PostForm("language")).
			Msg("Transcription request")

		c.JSON(http.StatusOK, gin.H{"text": *text})
	})

	r.POST("/v1/chat/completions", func(c *gin.Context) {
		var req openai.ChatCompletionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}

		logger.Info().
			Str("model", req.Model).
			Float32("temperature", req.Temperature).
			Int("messages", len(req.Messages)).
			Msg("Chat completion request")

		c.JSON(http.StatusOK, openai.ChatCompletionResponse{
			ID:      "chatcmpl-" + uuid.NewString(),
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   req.Model,
			Choices: []openai.ChatCompletionChoice{{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: *reply},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	})

	r.GET("/v1/models/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, openai.Model{ID: c.Param("id"), Object: "model", OwnedBy: "mock"})
	})

	logger.Info().Str("address", *addr).Msg("Mock OpenAI server listening")
	if err := r.Run(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
