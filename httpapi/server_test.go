package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/akirose/yt-pipeline-core/adapter"
	"github.com/akirose/yt-pipeline-core/apikeys"
	"github.com/akirose/yt-pipeline-core/chat"
	"github.com/akirose/yt-pipeline-core/failstore"
	"github.com/akirose/yt-pipeline-core/job"
	"github.com/akirose/yt-pipeline-core/jobstream"
	"github.com/akirose/yt-pipeline-core/pipeline"
	"github.com/akirose/yt-pipeline-core/policy"
	"github.com/akirose/yt-pipeline-core/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcquirer struct{}

func (fakeAcquirer) ProbeMeta(ctx context.Context, videoID string) (adapter.VideoMeta, error) {
	return adapter.VideoMeta{Title: "a video"}, nil
}

func (fakeAcquirer) FetchCaptions(ctx context.Context, videoID string) (adapter.CaptionResult, bool, error) {
	return adapter.CaptionResult{
		Meta:     adapter.VideoMeta{Title: "a video"},
		Segments: []store.Segment{{Start: 0, End: 1, Text: "hello"}},
	}, true, nil
}

func (fakeAcquirer) DownloadAudio(ctx context.Context, videoID, destPath string, onProgress adapter.ProgressFunc) error {
	return os.WriteFile(destPath, []byte("audio"), 0644)
}

type fakeSummarizer struct{}

func (fakeSummarizer) SummarizeChunk(ctx context.Context, apiKey, currentSummary, chunkText string) (string, error) {
	return "summary of " + chunkText, nil
}

type fakeTranscriber struct{}

func (fakeTranscriber) Transcribe(ctx context.Context, audioPath string, chunkSeconds float64, onChunkDone func(done, total int)) ([]store.Segment, error) {
	return nil, nil
}

type fakeCompleter struct{}

func (fakeCompleter) StreamChat(ctx context.Context, apiKey, summary string, history []adapter.ChatTurn, message string) (<-chan adapter.ChatToken, <-chan error) {
	tokens := make(chan adapter.ChatToken, 1)
	errs := make(chan error, 1)
	tokens <- adapter.ChatToken{Content: "hi", Done: true}
	close(tokens)
	close(errs)
	return tokens, errs
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.New(t.TempDir())
	require.NoError(t, err)

	fails, err := failstore.New(t.TempDir() + "/failures.json")
	require.NoError(t, err)

	registry := job.NewRegistry(jobstream.New("jobs"), fails)

	pl := pipeline.New(registry, st, fakeAcquirer{}, fakeTranscriber{}, fakeSummarizer{}, func(string) string { return "key" }, pipeline.Config{
		QueueCapacity:     16,
		ChunkSeconds:      1200,
		SummaryChunkChars: 1000,
	})
	pl.Run(context.Background())

	chatRegistry := chat.NewRegistry(st, fakeCompleter{}, func(string) string { return "key" }, true)

	keyPolicy := policy.New(policy.PolicyAllUsers, nil)

	return New(registry, pl, fails, st, chatRegistry, apikeys.New(), keyPolicy, "server-key")
}

func TestSubmitAndPollJob(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodPost, "/summarize/abc12345678", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/summarize/abc12345678", nil)
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			return false
		}
		var snap job.Snapshot
		_ = json.Unmarshal(w.Body.Bytes(), &snap)
		return snap.Status == job.StatusFinished
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGetJobNotFound(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/summarize/doesnotexist", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOptionsRequestShortCircuitsWithCORS(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodOptions, "/summarize/abc", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetSummaryServedFromDiskWithoutJob(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	// A summary left behind by a previous process: no in-memory job.
	require.NoError(t, s.store.WriteSummary("abc12345678", "# A Video\n\n- it was good"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/summaries/abc12345678", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Summary         *string `json:"summary"`
		NoSummaryReason *string `json:"no_summary_reason"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Summary)
	assert.Contains(t, *body.Summary, "# A Video")
	assert.Nil(t, body.NoSummaryReason)
}

func TestGetSummaryNotFound(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/summaries/doesnotexist", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Summary         *string `json:"summary"`
		NoSummaryReason *string `json:"no_summary_reason"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Nil(t, body.Summary)
	require.NotNil(t, body.NoSummaryReason)
	assert.Equal(t, "not_found", *body.NoSummaryReason)
}

func TestChatSendRejectsWithoutRoom(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	body := bytes.NewBufferString(`{"message":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/chat/abc12345678/send", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}
