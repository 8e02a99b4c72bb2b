package pipeline

import (
	"context"

	"github.com/akirose/yt-pipeline-core/adapter"
	"github.com/akirose/yt-pipeline-core/job"
)

// runAcquire is the single in-flight acquire worker: it reads
// pendingQueue one job at a time (the channel itself provides the
// serialization), probes for automatic captions, and branches to
// either the captions fast-path or the media-download path.
func (p *Pipeline) runAcquire(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.pendingQueue:
			guard("acquire", j, p.errQueue, func() error {
				return p.acquireOne(ctx, j)
			})
		}
	}
}

func (p *Pipeline) acquireOne(ctx context.Context, j *job.Job) error {
	p.registry.Mutate(j, func(jb *job.Job) {
		jb.Status = job.StatusCheckingForCaptions
	})

	meta, err := p.acquirer.ProbeMeta(ctx, j.VideoID)
	if err != nil {
		return err
	}
	videoMeta := toJobVideoMeta(meta)
	p.registry.Mutate(j, func(jb *job.Job) {
		jb.Progress.VideoMeta = &videoMeta
	})

	result, hasCaptions, err := p.acquirer.FetchCaptions(ctx, j.VideoID)
	if err != nil {
		return err
	}

	if hasCaptions {
		if err := p.store.WriteSegments(j.VideoID, result.Segments); err != nil {
			return err
		}
		p.registry.Mutate(j, func(jb *job.Job) {
			jb.Progress.HadCaptions = true
			jb.Status = job.StatusDownloadedCaptions
		})
		p.registry.Mutate(j, func(jb *job.Job) {
			jb.Status = job.StatusSummarizing
		})
		p.summarizableQueue <- j
		return nil
	}

	p.registry.Mutate(j, func(jb *job.Job) {
		jb.Status = job.StatusDownloadingAudio
	})

	if !p.store.AudioExists(j.VideoID) {
		onProgress := func(pct string) {
			p.registry.Mutate(j, func(jb *job.Job) {
				jb.Progress.PercentageString = pct
			})
		}
		if err := p.acquirer.DownloadAudio(ctx, j.VideoID, p.store.AudioPath(j.VideoID), onProgress); err != nil {
			return err
		}
	}

	p.registry.Mutate(j, func(jb *job.Job) {
		jb.Status = job.StatusExtractingAudio
	})

	p.downloadedQueue <- j
	return nil
}

func toJobVideoMeta(m adapter.VideoMeta) job.VideoMeta {
	return job.VideoMeta{
		ThumbnailURL:  m.ThumbnailURL,
		Title:         m.Title,
		Creator:       m.Creator,
		LengthSeconds: m.LengthSeconds,
		UploadDate:    m.UploadDate,
	}
}
