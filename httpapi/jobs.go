package httpapi

import (
	"net/http"

	"github.com/akirose/yt-pipeline-core/job"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleSubmit(c *gin.Context) {
	videoID := c.Param("id")

	if !s.resolveAndStoreKey(c, videoID) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no usable OpenAI API key for this request"})
		return
	}

	if !s.pipeline.Submit(videoID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server busy, job queue full"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"video_id": videoID})
}

func (s *Server) handleGetJob(c *gin.Context) {
	videoID := c.Param("id")

	j, ok := s.registry.Get(videoID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	c.JSON(http.StatusOK, j.Snapshot())
}

func (s *Server) handleJobsSubscribe(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	id := s.registry.Subscribe(c.Writer)
	defer s.registry.Unsubscribe(id)

	<-c.Request.Context().Done()
}

// handleDebugStats is a read-only snapshot of queue and fan-out
// pressure: job counts by status, live job subscribers, and live
// chat rooms/subscribers.
func (s *Server) handleDebugStats(c *gin.Context) {
	all := s.registry.GetAll()
	byStatus := map[job.Status]int{}
	for _, snap := range all {
		byStatus[snap.Status]++
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":             len(all),
		"jobs_by_status":   byStatus,
		"job_subscribers":  s.registry.SubscriberCount(),
		"chat_rooms":       s.chat.RoomCount(),
		"chat_subscribers": s.chat.SubscriberCount(),
	})
}
