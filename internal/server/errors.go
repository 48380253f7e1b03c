package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Asad19772505/MOM-Live/internal/audio"
	"github.com/Asad19772505/MOM-Live/internal/pipeline"
	"github.com/Asad19772505/MOM-Live/internal/session"
)

// NoAudioMessage is shown when a live capture stops with nothing recorded
const NoAudioMessage = "No audio detected. Please record something."

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// respondError maps a domain error to its HTTP status and body. Anything
// unclassified came from an external service.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var (
		status = http.StatusBadGateway
		body   = errorBody{Error: "processing failed", Message: err.Error()}
	)

	switch {
	case errors.Is(err, session.ErrNotFound):
		status, body = http.StatusNotFound, errorBody{Error: "session not found"}
	case errors.Is(err, audio.ErrNoInput):
		status, body = http.StatusBadRequest, errorBody{Error: audio.ErrNoInput.Error()}
	case errors.Is(err, audio.ErrNoAudioCaptured):
		status, body = http.StatusUnprocessableEntity, errorBody{Error: audio.ErrNoAudioCaptured.Error(), Message: NoAudioMessage}
	case errors.Is(err, session.ErrUnknownMode):
		status, body = http.StatusBadRequest, errorBody{Error: err.Error()}
	case errors.Is(err, session.ErrLimitReached):
		status, body = http.StatusTooManyRequests, errorBody{Error: err.Error()}
	case errors.Is(err, pipeline.ErrBusy),
		errors.Is(err, pipeline.ErrInvalidTransition),
		errors.Is(err, session.ErrLiveActive),
		errors.Is(err, session.ErrNotLive):
		status, body = http.StatusConflict, errorBody{Error: err.Error()}
	}

	c.JSON(status, body)
}
