package job

import (
	"sync"

	"github.com/akirose/yt-pipeline-core/failstore"
	"github.com/akirose/yt-pipeline-core/jobstream"
)

// Registry is the canonical video_id -> Job map. It enforces
// single-writer-per-job semantics (via each Job's own mutex) and
// coordinates with the subscriber hub and the failure tracker so that
// every mutation is observed by subscribers in the order it happened.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	hub   *jobstream.Hub
	fails *failstore.Store
}

// NewRegistry wires a Registry to its Subscriber Hub and Failure
// Tracker. Both are required collaborators.
func NewRegistry(hub *jobstream.Hub, fails *failstore.Store) *Registry {
	return &Registry{
		jobs:  make(map[string]*Job),
		hub:   hub,
		fails: fails,
	}
}

// CreateOrRevive returns the existing Job for videoID if one exists
// and is not failed (existedAlive = true). Otherwise it creates a
// fresh pending Job (or resets a failed one to pending), clears any
// persisted failure flag, broadcasts a "new" event, and returns
// existedAlive = false.
func (r *Registry) CreateOrRevive(videoID string) (existedAlive bool, j *Job) {
	r.mu.Lock()
	existing, ok := r.jobs[videoID]
	if ok {
		existing.mu.Lock()
		isFailed := existing.Status == StatusFailed
		existing.mu.Unlock()

		if !isFailed {
			r.mu.Unlock()
			return true, existing
		}

		// Revive in place: failed -> pending.
		existing.mu.Lock()
		existing.Status = StatusPending
		existing.Error = ""
		existing.Progress = Progress{}
		existing.mu.Unlock()
		r.mu.Unlock()

		if r.fails != nil {
			_ = r.fails.SetFailed(videoID, false, "")
		}
		r.broadcast("new", existing)
		return false, existing
	}

	fresh := &Job{
		VideoID: videoID,
		Status:  StatusPending,
	}
	r.jobs[videoID] = fresh
	r.mu.Unlock()

	if r.fails != nil {
		_ = r.fails.SetFailed(videoID, false, "")
	}
	r.broadcast("new", fresh)
	return false, fresh
}

// Get returns the Job for videoID, if any.
func (r *Registry) Get(videoID string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[videoID]
	return j, ok
}

// GetAll returns a snapshot of every Job currently registered.
func (r *Registry) GetAll() map[string]Snapshot {
	r.mu.RLock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.RUnlock()

	out := make(map[string]Snapshot, len(jobs))
	for _, j := range jobs {
		out[j.VideoID] = j.Snapshot()
	}
	return out
}

// Mutate acquires j's write lock, applies mutator, persists metadata
// to the Failure Tracker if this mutation is the first to populate
// progress.video_meta, and, still under the lock, broadcasts an
// "update" event. Holding the job lock across the broadcast is what
// keeps subscribers from ever seeing an update out of the order it
// happened in.
func (r *Registry) Mutate(j *Job, mutator func(*Job)) {
	j.mu.Lock()
	defer j.mu.Unlock()

	hadMeta := j.Progress.VideoMeta != nil
	mutator(j)
	gotMeta := j.Progress.VideoMeta != nil

	if !hadMeta && gotMeta && r.fails != nil && !r.fails.Exists(j.VideoID) {
		meta := *j.Progress.VideoMeta
		_ = r.fails.Create(j.VideoID, failstore.VideoMeta{
			ThumbnailURL:  meta.ThumbnailURL,
			Title:         meta.Title,
			Creator:       meta.Creator,
			LengthSeconds: meta.LengthSeconds,
			UploadDate:    meta.UploadDate,
		})
	}

	snap := Snapshot{
		VideoID:     j.VideoID,
		Status:      j.Status,
		Error:       j.Error,
		JobProgress: j.Progress,
	}

	// Broadcast while still holding j's lock: this is what keeps
	// subscribers from ever observing two updates for the same job
	// out of the order the mutations actually happened in.
	r.hub.Broadcast("update", snap, nil)
}

// MarkFailed transitions j to failed, records the error text, and
// persists the failure via the Failure Tracker. Used by the pipeline
// error consumer's per-stage failure handling.
func (r *Registry) MarkFailed(j *Job, cause string) {
	r.Mutate(j, func(job *Job) {
		job.Status = StatusFailed
		job.Error = cause
	})
	if r.fails != nil {
		_ = r.fails.SetFailed(j.VideoID, true, cause)
	}
}

// Finalize transitions j to finished and clears the persisted failure
// flag.
func (r *Registry) Finalize(j *Job) {
	r.Mutate(j, func(job *Job) {
		job.Status = StatusFinished
	})
	if r.fails != nil {
		_ = r.fails.SetFailed(j.VideoID, false, "")
	}
}

// Subscribe registers sink on the job hub, sending it an "init" event
// with a snapshot of every Job.
func (r *Registry) Subscribe(sink jobstream.Sink) string {
	return r.hub.Subscribe(sink, r.GetAll())
}

// Unsubscribe removes sink's subscription.
func (r *Registry) Unsubscribe(id string) {
	r.hub.Unsubscribe(id)
}

// SubscriberCount returns the number of live job-stream subscribers.
func (r *Registry) SubscriberCount() int {
	return r.hub.Count()
}

func (r *Registry) broadcast(eventType string, j *Job) {
	r.hub.Broadcast(eventType, j.Snapshot(), nil)
}
