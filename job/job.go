// Package job owns the canonical video_id -> Job mapping and the
// per-job state machine. Callers mutate a Job only through
// Registry.Mutate, which serializes the mutation and the resulting
// broadcast under the job's own lock.
package job

import (
	"sync"
)

// Status is one of the contractual state-machine labels.
type Status string

const (
	StatusPending               Status = "pending"
	StatusCheckingForCaptions   Status = "checking_for_captions"
	StatusDownloadedCaptions    Status = "downloaded_captions"
	StatusDownloadingAudio      Status = "downloading_audio"
	StatusExtractingAudio       Status = "extracting_audio"
	StatusChunking              Status = "chunking"
	StatusTranscribing          Status = "transcribing"
	StatusSummarizing           Status = "summarizing"
	StatusFinished              Status = "finished"
	StatusFailed                Status = "failed"
)

// validTransitions enumerates every edge of the job state machine.
// "failed" is revivable only through Registry.CreateOrRevive, modeled
// here as failed -> pending.
var validTransitions = map[Status][]Status{
	StatusPending:             {StatusCheckingForCaptions, StatusFailed},
	StatusCheckingForCaptions: {StatusDownloadedCaptions, StatusDownloadingAudio, StatusFailed},
	StatusDownloadedCaptions:  {StatusSummarizing, StatusFailed},
	StatusDownloadingAudio:    {StatusExtractingAudio, StatusFailed},
	StatusExtractingAudio:     {StatusChunking, StatusFailed},
	StatusChunking:            {StatusTranscribing, StatusFailed},
	StatusTranscribing:        {StatusSummarizing, StatusFailed},
	StatusSummarizing:         {StatusFinished, StatusFailed},
	StatusFinished:            {},
	StatusFailed:              {StatusPending},
}

// CanTransition reports whether from -> to is an edge of the state
// machine.
func CanTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status admits no further transitions
// except the explicit failed -> pending retry edge.
func IsTerminal(status Status) bool {
	return status == StatusFinished || status == StatusFailed
}

// VideoMeta is extracted once acquisition probes the video.
type VideoMeta struct {
	ThumbnailURL  string `json:"thumbnail_url"`
	Title         string `json:"title"`
	Creator       string `json:"creator"`
	LengthSeconds int    `json:"length_seconds"`
	UploadDate    string `json:"upload_date"`
}

// Progress is the structured progress record carried on every Job.
type Progress struct {
	VideoMeta               *VideoMeta `json:"video_meta,omitempty"`
	PercentageString        string     `json:"percentage_string"`
	HadCaptions             bool       `json:"had_captions"`
	TranscriptionChunks     int        `json:"transcription_chunks"`
	TranscriptionChunksDone int        `json:"transcription_chunks_done"`
	SummaryChunks           int        `json:"summary_chunks"`
	SummaryChunksDone       int        `json:"summary_chunks_done"`
}

// Job is the in-memory record tracking one video's processing
// lifecycle. Exactly one writer at a time is enforced by mu, held
// through each (mutate, broadcast) pair in Registry.Mutate.
type Job struct {
	mu sync.Mutex

	VideoID  string
	Status   Status
	Error    string
	Progress Progress
}

// Snapshot is the shallow, lock-free copy of a Job sent to
// subscribers and returned by the job endpoints.
type Snapshot struct {
	VideoID     string   `json:"video_id"`
	Status      Status   `json:"status"`
	Error       string   `json:"error"`
	JobProgress Progress `json:"job_progress"`
}

// Snapshot takes the job's lock and returns a copy safe to serialize
// without holding any lock.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		VideoID:     j.VideoID,
		Status:      j.Status,
		Error:       j.Error,
		JobProgress: j.Progress,
	}
}
