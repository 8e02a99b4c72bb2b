// Package pipeline implements five cooperating stage workers connected
// by bounded channels:
//
//	intake -> acquire -> (captions-path | media-path -> transcribe) -> summarize -> finalize
//
// Every worker guards per-job processing with a recover() scope that
// reports failures to a dedicated error consumer, so a single bad
// video never takes the whole server down.
package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/akirose/yt-pipeline-core/adapter"
	"github.com/akirose/yt-pipeline-core/job"
	"github.com/akirose/yt-pipeline-core/store"
)

// StageError is posted to the error channel when a worker's per-job
// processing fails, whether via a returned error or a recovered
// panic.
type StageError struct {
	Stage string
	Job   *job.Job
	Cause string
}

// Pipeline wires the five stage workers to their bounded queues and
// to the adapters/collaborators they depend on.
type Pipeline struct {
	registry *job.Registry
	store    *store.Store

	acquirer    adapter.Acquirer
	transcriber adapter.Transcriber
	summarizer  adapter.Summarizer

	apiKeyForJob func(videoID string) string

	chunkSeconds float64
	chunkChars   int

	intakeQueue       chan string
	pendingQueue      chan *job.Job
	downloadedQueue   chan *job.Job
	summarizableQueue chan *job.Job
	doneQueue         chan *job.Job
	errQueue          chan StageError
}

// Config bundles the tunables New needs, mirroring config.Config's
// pipeline fields without importing the config package directly.
type Config struct {
	IntakeQueueCapacity int
	QueueCapacity       int
	ChunkSeconds        float64
	SummaryChunkChars   int
}

// New builds a Pipeline. apiKeyForJob returns the API key to use for
// a given video's summarization requests; the summarize stage has no
// request of its own, so main wires in the key the HTTP layer recorded
// for the video at submission time (the caller's own key, or the
// server key when policy allows it).
func New(
	registry *job.Registry,
	st *store.Store,
	acquirer adapter.Acquirer,
	transcriber adapter.Transcriber,
	summarizer adapter.Summarizer,
	apiKeyForJob func(videoID string) string,
	cfg Config,
) *Pipeline {
	cap := cfg.QueueCapacity
	if cap <= 0 {
		cap = 1024
	}
	intakeCap := cfg.IntakeQueueCapacity
	if intakeCap <= 0 {
		intakeCap = cap
	}

	return &Pipeline{
		registry:          registry,
		store:             st,
		acquirer:          acquirer,
		transcriber:       transcriber,
		summarizer:        summarizer,
		apiKeyForJob:      apiKeyForJob,
		chunkSeconds:      cfg.ChunkSeconds,
		chunkChars:        cfg.SummaryChunkChars,
		intakeQueue:       make(chan string, intakeCap),
		pendingQueue:      make(chan *job.Job, cap),
		downloadedQueue:   make(chan *job.Job, cap),
		summarizableQueue: make(chan *job.Job, cap),
		doneQueue:         make(chan *job.Job, cap),
		errQueue:          make(chan StageError, cap),
	}
}

// Submit enqueues a video id for processing. ok is false when the
// intake queue is full; callers map this to a retryable HTTP status.
func (p *Pipeline) Submit(videoID string) (ok bool) {
	select {
	case p.intakeQueue <- videoID:
		return true
	default:
		return false
	}
}

// Run starts every worker goroutine. It returns immediately; workers
// run until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	go p.runIntake(ctx)
	go p.runAcquire(ctx)
	go p.runTranscribe(ctx)
	go p.runSummarize(ctx)
	go p.runFinalize(ctx)
	go p.runErrorConsumer(ctx)
}

func guard(stage string, j *job.Job, errQueue chan<- StageError, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			errQueue <- StageError{Stage: stage, Job: j, Cause: fmt.Sprintf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		errQueue <- StageError{Stage: stage, Job: j, Cause: err.Error()}
	}
}

// runIntake is the sole consumer of the intake queue. It forwards
// only new/revived jobs downstream.
func (p *Pipeline) runIntake(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case videoID := <-p.intakeQueue:
			existedAlive, j := p.registry.CreateOrRevive(videoID)
			if existedAlive {
				continue
			}
			select {
			case p.pendingQueue <- j:
			case <-ctx.Done():
				return
			}
		}
	}
}

// runErrorConsumer is the dedicated consumer of the error channel: it
// transitions the job to failed and records the failure. It never
// itself fails a job twice for the same report.
func (p *Pipeline) runErrorConsumer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case se := <-p.errQueue:
			log.Printf("Error: stage %s failed for job %s: %s", se.Stage, se.Job.VideoID, se.Cause)
			p.registry.MarkFailed(se.Job, se.Cause)
		}
	}
}
