// Package httpapi exposes the server's HTTP surface: a gin router
// whose handlers do nothing but translate between HTTP and the job
// registry, pipeline, failure tracker, store and chat registry. CORS
// is handled with a small router-level middleware, and SSE endpoints
// write directly to gin's ResponseWriter behind an http.Flusher type
// assertion.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/akirose/yt-pipeline-core/apikeys"
	"github.com/akirose/yt-pipeline-core/chat"
	"github.com/akirose/yt-pipeline-core/failstore"
	"github.com/akirose/yt-pipeline-core/job"
	"github.com/akirose/yt-pipeline-core/pipeline"
	"github.com/akirose/yt-pipeline-core/policy"
	"github.com/akirose/yt-pipeline-core/store"
	"github.com/gin-gonic/gin"
)

// Server bundles every collaborator the HTTP handlers need.
type Server struct {
	registry *job.Registry
	pipeline *pipeline.Pipeline
	fails    *failstore.Store
	store    *store.Store
	chat     *chat.Registry

	apiKeys   *apikeys.Store
	keyPolicy *policy.APIKeyPolicy
	serverKey string
}

func New(
	registry *job.Registry,
	pl *pipeline.Pipeline,
	fails *failstore.Store,
	st *store.Store,
	chatRegistry *chat.Registry,
	apiKeyStore *apikeys.Store,
	keyPolicy *policy.APIKeyPolicy,
	serverKey string,
) *Server {
	return &Server{
		registry:  registry,
		pipeline:  pl,
		fails:     fails,
		store:     st,
		chat:      chatRegistry,
		apiKeys:   apiKeyStore,
		keyPolicy: keyPolicy,
		serverKey: serverKey,
	}
}

// callerAPIKey extracts the caller's own OpenAI-compatible key from
// the Authorization header ("Bearer <key>").
func callerAPIKey(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(authHeader, "Bearer ")
}

// callerID is an opaque identifier used only to evaluate the
// designated-callers API key policy; it carries no session or
// authentication meaning (this service has no user accounts).
func callerID(c *gin.Context) string {
	return c.GetHeader("X-Caller-Id")
}

// resolveAndStoreKey resolves the key this request should use
// (caller-supplied, else the server key if policy allows it for this
// caller) and records it for videoID so the pipeline/chat workers can
// look it up later by video_id alone. ok is false when neither a
// caller key nor an allowed server key is available.
func (s *Server) resolveAndStoreKey(c *gin.Context, videoID string) (ok bool) {
	key, ok := s.keyPolicy.ResolveKey(callerAPIKey(c), s.serverKey, callerID(c))
	if !ok {
		return false
	}
	s.apiKeys.Set(videoID, key)
	return true
}

// Router builds the gin engine with every route wired in, including
// the recent-summaries listing and debug/stats endpoint.
func (s *Server) Router() *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, X-Caller-Id, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	router.POST("/summarize/:id", s.handleSubmit)
	router.GET("/summarize/:id", s.handleGetJob)
	router.GET("/summarize/jobs/subscribe", s.handleJobsSubscribe)

	router.GET("/summaries/:id", s.handleGetSummary)
	router.GET("/summaries", s.handleRecentSummaries)

	router.GET("/videos", s.handleGetAllVideos)
	router.GET("/videos/:id", s.handleGetVideo)

	router.GET("/chat/:id", s.handleGetTranscript)
	router.POST("/chat/:id/send", s.handleChatSend)
	router.GET("/chat/:id/subscribe", s.handleChatSubscribe)

	router.GET("/debug/stats", s.handleDebugStats)

	return router
}
