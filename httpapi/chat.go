package httpapi

import (
	"context"
	"net/http"

	"github.com/akirose/yt-pipeline-core/chat"
	"github.com/gin-gonic/gin"
)

type sendChatRequest struct {
	Message string `json:"message" binding:"required"`
}

func (s *Server) handleGetTranscript(c *gin.Context) {
	videoID := c.Param("id")

	turns, err := s.chat.Transcript(videoID)
	if err != nil {
		c.JSON(http.StatusOK, []chat.TranscriptTurn{})
		return
	}

	c.JSON(http.StatusOK, turns)
}

func (s *Server) handleChatSend(c *gin.Context) {
	videoID := c.Param("id")

	var req sendChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if !s.resolveAndStoreKey(c, videoID) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no usable OpenAI API key for this request"})
		return
	}

	// The chat stream must outlive this request: a caller disconnecting
	// right after the 202 must not cancel a response that is still
	// being generated and appended to the transcript.
	switch s.chat.Send(context.Background(), videoID, req.Message) {
	case chat.Accepted:
		c.JSON(http.StatusAccepted, gin.H{"video_id": videoID})
	case chat.RejectedInUse:
		c.JSON(http.StatusConflict, gin.H{"error": "a response is already in progress for this video"})
	case chat.RejectedNoRoom:
		c.JSON(http.StatusConflict, gin.H{"error": "no chat room for this video; subscribe first"})
	}
}

func (s *Server) handleChatSubscribe(c *gin.Context) {
	videoID := c.Param("id")

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	id := s.chat.Subscribe(videoID, c.Writer)
	defer s.chat.Unsubscribe(id)

	<-c.Request.Context().Done()
}
