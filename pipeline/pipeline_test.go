package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/akirose/yt-pipeline-core/adapter"
	"github.com/akirose/yt-pipeline-core/failstore"
	"github.com/akirose/yt-pipeline-core/job"
	"github.com/akirose/yt-pipeline-core/jobstream"
	"github.com/akirose/yt-pipeline-core/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcquirer struct {
	hasCaptions bool
	segments    []store.Segment
}

func (f *fakeAcquirer) ProbeMeta(ctx context.Context, videoID string) (adapter.VideoMeta, error) {
	return adapter.VideoMeta{Title: "a video", LengthSeconds: 120}, nil
}

func (f *fakeAcquirer) FetchCaptions(ctx context.Context, videoID string) (adapter.CaptionResult, bool, error) {
	if !f.hasCaptions {
		return adapter.CaptionResult{}, false, nil
	}
	return adapter.CaptionResult{Segments: f.segments}, true, nil
}

func (f *fakeAcquirer) DownloadAudio(ctx context.Context, videoID, audioPath string, onProgress adapter.ProgressFunc) error {
	if onProgress != nil {
		onProgress("100%")
	}
	return os.WriteFile(audioPath, []byte("fake audio"), 0644)
}

type fakeTranscriber struct {
	segments []store.Segment
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string, chunkSeconds float64, onChunkDone func(done, total int)) ([]store.Segment, error) {
	if onChunkDone != nil {
		onChunkDone(1, 1)
	}
	return f.segments, nil
}

type fakeSummarizer struct{}

func (f *fakeSummarizer) SummarizeChunk(ctx context.Context, apiKey, currentSummary, chunkText string) (string, error) {
	return currentSummary + "\n[summary of: " + chunkText + "]", nil
}

func newTestPipeline(t *testing.T, acquirer adapter.Acquirer, transcriber adapter.Transcriber) (*Pipeline, *job.Registry, *store.Store) {
	t.Helper()

	dataDir := t.TempDir()
	st, err := store.New(dataDir)
	require.NoError(t, err)

	fails, err := failstore.New(filepath.Join(dataDir, "failures.json"))
	require.NoError(t, err)

	hub := jobstream.New("jobs")
	registry := job.NewRegistry(hub, fails)

	p := New(registry, st, acquirer, transcriber, &fakeSummarizer{}, func(videoID string) string {
		return "test-key"
	}, Config{QueueCapacity: 16, ChunkSeconds: 1200, SummaryChunkChars: 1000})

	return p, registry, st
}

func waitForStatus(t *testing.T, registry *job.Registry, videoID string, want job.Status, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if j, ok := registry.Get(videoID); ok {
			snap := j.Snapshot()
			if snap.Status == want || snap.Status == job.StatusFailed {
				require.Equal(t, want, snap.Status, "job failed: %s", snap.Error)
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for job %s to reach status %s", videoID, want)
}

func TestPipelineCaptionsFastPath(t *testing.T) {
	acquirer := &fakeAcquirer{hasCaptions: true, segments: []store.Segment{{Start: 0, End: 5, Text: "hello there"}}}
	p, registry, st := newTestPipeline(t, acquirer, &fakeTranscriber{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Run(ctx)

	require.True(t, p.Submit("abc12345678"))
	waitForStatus(t, registry, "abc12345678", job.StatusFinished, 2*time.Second)

	assert.True(t, st.SummaryExists("abc12345678"))
	j, ok := registry.Get("abc12345678")
	require.True(t, ok)
	assert.True(t, j.Snapshot().JobProgress.HadCaptions)
}

func TestPipelineMediaFallbackPath(t *testing.T) {
	acquirer := &fakeAcquirer{hasCaptions: false}
	transcriber := &fakeTranscriber{segments: []store.Segment{{Start: 0, End: 5, Text: "transcribed text"}}}
	p, registry, st := newTestPipeline(t, acquirer, transcriber)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Run(ctx)

	require.True(t, p.Submit("xyz98765432"))
	waitForStatus(t, registry, "xyz98765432", job.StatusFinished, 2*time.Second)

	assert.True(t, st.AudioExists("xyz98765432"))
	assert.True(t, st.SegmentsExist("xyz98765432"))
	j, ok := registry.Get("xyz98765432")
	require.True(t, ok)
	assert.False(t, j.Snapshot().JobProgress.HadCaptions)
}

type countingAcquirer struct {
	fakeAcquirer
	downloads int
}

func (c *countingAcquirer) DownloadAudio(ctx context.Context, videoID, audioPath string, onProgress adapter.ProgressFunc) error {
	c.downloads++
	return c.fakeAcquirer.DownloadAudio(ctx, videoID, audioPath, onProgress)
}

type countingTranscriber struct {
	fakeTranscriber
	calls int
}

func (c *countingTranscriber) Transcribe(ctx context.Context, audioPath string, chunkSeconds float64, onChunkDone func(done, total int)) ([]store.Segment, error) {
	c.calls++
	return c.fakeTranscriber.Transcribe(ctx, audioPath, chunkSeconds, onChunkDone)
}

type flakySummarizer struct {
	mu       sync.Mutex
	failures int
}

func (f *flakySummarizer) SummarizeChunk(ctx context.Context, apiKey, currentSummary, chunkText string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return "", errors.New("model unavailable")
	}
	return "summary", nil
}

func TestPipelineFailureRetrySkipsCompletedStages(t *testing.T) {
	acquirer := &countingAcquirer{fakeAcquirer: fakeAcquirer{hasCaptions: false}}
	transcriber := &countingTranscriber{fakeTranscriber: fakeTranscriber{segments: []store.Segment{{Start: 0, End: 5, Text: "words"}}}}

	dataDir := t.TempDir()
	st, err := store.New(dataDir)
	require.NoError(t, err)
	fails, err := failstore.New(filepath.Join(dataDir, "failures.json"))
	require.NoError(t, err)
	registry := job.NewRegistry(jobstream.New("jobs"), fails)

	p := New(registry, st, acquirer, transcriber, &flakySummarizer{failures: 1}, func(string) string {
		return "test-key"
	}, Config{QueueCapacity: 16, ChunkSeconds: 1200, SummaryChunkChars: 1000})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Run(ctx)

	require.True(t, p.Submit("abc12345678"))
	require.Eventually(t, func() bool {
		j, ok := registry.Get("abc12345678")
		return ok && j.Snapshot().Status == job.StatusFailed
	}, 2*time.Second, 5*time.Millisecond)

	j, _ := registry.Get("abc12345678")
	assert.Contains(t, j.Snapshot().Error, "model unavailable")
	entry, ok := fails.Read("abc12345678")
	require.True(t, ok)
	assert.True(t, entry.JobFailed)

	// Re-submitting a failed job revives it and re-runs the pipeline,
	// skipping the stages whose artifacts are already on disk.
	require.True(t, p.Submit("abc12345678"))
	// The job still reads failed until the intake worker revives it;
	// wait for the revival before waiting on the final status.
	require.Eventually(t, func() bool {
		j, ok := registry.Get("abc12345678")
		return ok && j.Snapshot().Status != job.StatusFailed
	}, 2*time.Second, 5*time.Millisecond)
	waitForStatus(t, registry, "abc12345678", job.StatusFinished, 2*time.Second)

	entry, ok = fails.Read("abc12345678")
	require.True(t, ok)
	assert.False(t, entry.JobFailed)

	assert.Equal(t, 1, acquirer.downloads, "audio must not be re-downloaded on retry")
	assert.Equal(t, 1, transcriber.calls, "audio must not be re-transcribed on retry")
}

func TestChunkSegments(t *testing.T) {
	segments := []store.Segment{
		{Start: 0, End: 10, Text: "first part"},
		{Start: 10, End: 3700, Text: "second part over an hour in"},
	}
	chunks := chunkSegments(segments, 10000)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "[00:00-00:10]")
	assert.Contains(t, chunks[0], "[00:10-01:01:40]")
}

func TestChunkSegmentsSplitsOnCharLimit(t *testing.T) {
	segments := []store.Segment{
		{Start: 0, End: 1, Text: "aaaaaaaaaa"},
		{Start: 1, End: 2, Text: "bbbbbbbbbb"},
	}
	chunks := chunkSegments(segments, 20)
	assert.Len(t, chunks, 2)
}
