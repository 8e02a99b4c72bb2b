// Package chat implements the Streaming Chat Core: the Chat Room
// Registry, its subscriber hub (built on jobstream.Hub just like the
// job registry's), and the chat worker that drives at most one
// language-model request per room at a time. The broadcast mechanics
// are the same generic hub the job core uses, scoped to one video_id
// via a subscriber filter.
package chat

import (
	"sync"

	"github.com/akirose/yt-pipeline-core/adapter"
	"github.com/akirose/yt-pipeline-core/jobstream"
	"github.com/akirose/yt-pipeline-core/store"
)

// Room is the per-video chat coordination object. is_busy = false
// iff in_progress_request and in_progress_response are both empty.
type Room struct {
	mu sync.Mutex

	VideoID            string
	IsBusy             bool
	InProgressRequest  string
	InProgressResponse string
	ListenerCount      int
}

// Snapshot is the lock-free copy broadcast to subscribers.
type Snapshot struct {
	VideoID            string `json:"video_id"`
	IsBusy             bool   `json:"is_busy"`
	InProgressRequest  string `json:"in_progress_request"`
	InProgressResponse string `json:"in_progress_response"`
}

func (r *Room) snapshot() Snapshot {
	return Snapshot{
		VideoID:            r.VideoID,
		IsBusy:             r.IsBusy,
		InProgressRequest:  r.InProgressRequest,
		InProgressResponse: r.InProgressResponse,
	}
}

// SendResult is the outcome of Send.
type SendResult int

const (
	Accepted SendResult = iota
	RejectedInUse
	RejectedNoRoom
)

// Registry is the chat room registry plus its subscriber hub: a
// single process-wide lock guards room lookup/creation and
// listener-count bookkeeping. Room removal is deferred until both
// listener_count reaches zero and is_busy is false.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	hub      *jobstream.Hub
	listener *subscriberVideoID
	store    *store.Store

	completer adapter.ChatCompleter

	apiKeyForVideo func(videoID string) string

	appendErrorToTranscript bool
}

func NewRegistry(st *store.Store, completer adapter.ChatCompleter, apiKeyForVideo func(videoID string) string, appendErrorToTranscript bool) *Registry {
	return &Registry{
		rooms:                   make(map[string]*Room),
		hub:                     jobstream.New("chat"),
		listener:                newSubscriberVideoID(),
		store:                   st,
		completer:               completer,
		apiKeyForVideo:          apiKeyForVideo,
		appendErrorToTranscript: appendErrorToTranscript,
	}
}

// subscriberVideoID tracks which video_id each subscriber listens to,
// so Broadcast's filter can scope events to one room.
type subscriberVideoID struct {
	mu   sync.RWMutex
	byID map[string]string
}

func newSubscriberVideoID() *subscriberVideoID {
	return &subscriberVideoID{byID: make(map[string]string)}
}

func (s *subscriberVideoID) set(id, videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id] = videoID
}

func (s *subscriberVideoID) get(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byID[id]
	return v, ok
}

func (s *subscriberVideoID) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}
