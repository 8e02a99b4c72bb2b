package chat

import (
	"github.com/akirose/yt-pipeline-core/jobstream"
)

// getOrCreateRoomLocked returns the room for videoID, creating it if
// absent. Callers must hold r.mu.
func (r *Registry) getOrCreateRoomLocked(videoID string) *Room {
	if room, ok := r.rooms[videoID]; ok {
		return room
	}
	room := &Room{VideoID: videoID}
	r.rooms[videoID] = room
	return room
}

// Subscribe implements the chat subscribe flow: under the registry
// lock, find-or-create the room, increment its listener count, and
// snapshot it; then write an init event outside the lock.
func (r *Registry) Subscribe(videoID string, sink jobstream.Sink) string {
	r.mu.Lock()
	room := r.getOrCreateRoomLocked(videoID)
	room.mu.Lock()
	room.ListenerCount++
	snap := room.snapshot()
	room.mu.Unlock()
	r.mu.Unlock()

	id := r.hub.Subscribe(sink, snap)
	r.listener.set(id, videoID)
	return id
}

// Unsubscribe implements the chat unsubscribe flow: remove the
// subscriber, decrement the room's listener count, and remove the
// room only once both listener_count is zero and is_busy is false.
func (r *Registry) Unsubscribe(id string) {
	r.hub.Unsubscribe(id)

	videoID, ok := r.listener.get(id)
	if !ok {
		return
	}
	r.listener.delete(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[videoID]
	if !ok {
		return
	}

	room.mu.Lock()
	room.ListenerCount--
	removable := room.ListenerCount <= 0 && !room.IsBusy
	room.mu.Unlock()

	if removable {
		delete(r.rooms, videoID)
	}
}

// RoomCount returns the number of chat rooms currently tracked
// (a room exists from first Subscribe until it is removed).
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// SubscriberCount returns the number of live chat-stream subscribers
// across all rooms.
func (r *Registry) SubscriberCount() int {
	return r.hub.Count()
}

// Transcript returns the persisted chat transcript for videoID.
func (r *Registry) Transcript(videoID string) ([]TranscriptTurn, error) {
	turns, err := r.store.ReadTranscript(videoID)
	if err != nil {
		return nil, err
	}
	out := make([]TranscriptTurn, len(turns))
	for i, t := range turns {
		out[i] = TranscriptTurn{Role: t.Role, Content: t.Content}
	}
	return out, nil
}

// TranscriptTurn mirrors store.TranscriptTurn to keep the chat
// package's public surface independent of the store package's types.
type TranscriptTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (r *Registry) broadcastScoped(eventType string, videoID string, payload any) {
	r.hub.Broadcast(eventType, payload, func(id string) bool {
		v, ok := r.listener.get(id)
		return ok && v == videoID
	})
}
