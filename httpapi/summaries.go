package httpapi

import (
	"net/http"

	"github.com/akirose/yt-pipeline-core/job"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleGetSummary(c *gin.Context) {
	videoID := c.Param("id")

	// A summary artifact can outlive the process that produced it: with
	// no in-memory job (post-restart) the artifact alone decides.
	j, hasJob := s.registry.Get(videoID)
	if !hasJob {
		if !s.store.SummaryExists(videoID) {
			c.JSON(http.StatusOK, gin.H{"summary": nil, "no_summary_reason": "not_found"})
			return
		}
	} else {
		snap := j.Snapshot()
		if snap.Status != job.StatusFinished || !s.store.SummaryExists(videoID) {
			reason := "in_progress"
			if snap.Status == job.StatusFailed {
				reason = "not_found"
			}
			c.JSON(http.StatusOK, gin.H{"summary": nil, "no_summary_reason": reason})
			return
		}
	}

	markdown, err := s.store.ReadSummary(videoID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"summary": nil, "no_summary_reason": "not_found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": markdown, "no_summary_reason": nil})
}

// handleRecentSummaries lists up to ten videos from the failure
// tracker whose job is not marked failed, as video_id/title/creator.
// Entries come in map iteration order, not sorted by recency, and a
// video whose job is still in progress is included once its metadata
// has been recorded.
func (s *Server) handleRecentSummaries(c *gin.Context) {
	const limit = 10

	all := s.fails.ReadAll()
	entries := make([]gin.H, 0, len(all))
	for videoID, entry := range all {
		if entry.JobFailed {
			continue
		}
		entries = append(entries, gin.H{
			"video_id": videoID,
			"title":    entry.Title,
			"creator":  entry.Creator,
		})
		if len(entries) >= limit {
			break
		}
	}

	c.JSON(http.StatusOK, entries)
}
