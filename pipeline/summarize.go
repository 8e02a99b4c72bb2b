package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/akirose/yt-pipeline-core/job"
	"github.com/akirose/yt-pipeline-core/store"
)

// runSummarize permits unbounded parallelism: a fresh goroutine is
// spawned per job read off summarizableQueue, since the language
// model service is assumed not to rate-limit this caller.
func (p *Pipeline) runSummarize(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.summarizableQueue:
			wg.Add(1)
			go func(j *job.Job) {
				defer wg.Done()
				guard("summarize", j, p.errQueue, func() error {
					return p.summarizeOne(ctx, j)
				})
			}(j)
		}
	}
}

func (p *Pipeline) summarizeOne(ctx context.Context, j *job.Job) error {
	segments, err := p.store.ReadSegments(j.VideoID)
	if err != nil {
		return err
	}

	chunks := chunkSegments(segments, p.chunkChars)

	p.registry.Mutate(j, func(jb *job.Job) {
		jb.Progress.SummaryChunks = len(chunks)
	})

	apiKey := p.apiKeyForJob(j.VideoID)

	var summary string
	for i, chunk := range chunks {
		summary, err = p.summarizer.SummarizeChunk(ctx, apiKey, summary, chunk)
		if err != nil {
			return fmt.Errorf("failed to summarize chunk %d/%d: %w", i+1, len(chunks), err)
		}
		p.registry.Mutate(j, func(jb *job.Job) {
			jb.Progress.SummaryChunksDone = i + 1
		})
	}

	if err := p.store.WriteSummary(j.VideoID, summary); err != nil {
		return err
	}

	p.doneQueue <- j
	return nil
}

// chunkSegments groups consecutive segments into blocks of
// "[start-end]: text" lines (times from formatTimestamp) each bounded to roughly
// chunkChars characters (a 4-chars-per-token estimate targeting a
// ~30,000-token chunk size).
func chunkSegments(segments []store.Segment, chunkChars int) []string {
	if chunkChars <= 0 {
		chunkChars = 120000
	}

	var chunks []string
	var builder strings.Builder

	for _, seg := range segments {
		line := fmt.Sprintf("[%s-%s]: %s\n", formatTimestamp(seg.Start), formatTimestamp(seg.End), seg.Text)

		if builder.Len() > 0 && builder.Len()+len(line) > chunkChars {
			chunks = append(chunks, strings.TrimSpace(builder.String()))
			builder.Reset()
		}
		builder.WriteString(line)
	}
	if builder.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(builder.String()))
	}

	return chunks
}

// formatTimestamp renders seconds as HH:MM:SS when the duration is
// at least one hour, else MM:SS, without brackets; chunkSegments puts
// the brackets around each start-end pair.
func formatTimestamp(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
