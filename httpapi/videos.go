package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleGetAllVideos(c *gin.Context) {
	c.JSON(http.StatusOK, s.fails.ReadAll())
}

func (s *Server) handleGetVideo(c *gin.Context) {
	videoID := c.Param("id")

	entry, ok := s.fails.Read(videoID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
		return
	}

	c.JSON(http.StatusOK, entry)
}
