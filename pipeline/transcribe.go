package pipeline

import (
	"context"

	"github.com/akirose/yt-pipeline-core/job"
)

// runTranscribe is the single in-flight transcribe worker: it splits
// the audio artifact into fixed-duration chunks via the external
// segmenter (adapter.Transcriber), then writes the merged,
// contiguously-timestamped segment list as a durable artifact.
func (p *Pipeline) runTranscribe(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.downloadedQueue:
			guard("transcribe", j, p.errQueue, func() error {
				return p.transcribeOne(ctx, j)
			})
		}
	}
}

func (p *Pipeline) transcribeOne(ctx context.Context, j *job.Job) error {
	p.registry.Mutate(j, func(jb *job.Job) {
		jb.Status = job.StatusChunking
	})

	if p.store.SegmentsExist(j.VideoID) {
		p.registry.Mutate(j, func(jb *job.Job) {
			jb.Status = job.StatusTranscribing
		})
		p.registry.Mutate(j, func(jb *job.Job) {
			jb.Status = job.StatusSummarizing
		})
		p.summarizableQueue <- j
		return nil
	}

	p.registry.Mutate(j, func(jb *job.Job) {
		jb.Status = job.StatusTranscribing
	})

	onChunkDone := func(done, total int) {
		p.registry.Mutate(j, func(jb *job.Job) {
			jb.Progress.TranscriptionChunks = total
			jb.Progress.TranscriptionChunksDone = done
		})
	}

	segments, err := p.transcriber.Transcribe(ctx, p.store.AudioPath(j.VideoID), p.chunkSeconds, onChunkDone)
	if err != nil {
		return err
	}

	if err := p.store.WriteSegments(j.VideoID, segments); err != nil {
		return err
	}

	p.registry.Mutate(j, func(jb *job.Job) {
		jb.Status = job.StatusSummarizing
	})

	p.summarizableQueue <- j
	return nil
}
