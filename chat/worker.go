package chat

import (
	"context"
	"fmt"
	"log"

	"github.com/akirose/yt-pipeline-core/adapter"
	"github.com/akirose/yt-pipeline-core/store"
)

// Send test-and-sets the room's
// is_busy flag atomically with respect to other Send calls for the
// same room, then drives the language-model request asynchronously so
// the caller is not blocked on the full response.
func (r *Registry) Send(ctx context.Context, videoID, message string) SendResult {
	// The registry lock is held through the test-and-set so the room
	// cannot be removed (last listener leaving) between lookup and the
	// busy check.
	r.mu.Lock()
	room, ok := r.rooms[videoID]
	if !ok {
		r.mu.Unlock()
		return RejectedNoRoom
	}

	room.mu.Lock()
	if room.IsBusy {
		room.mu.Unlock()
		r.mu.Unlock()
		return RejectedInUse
	}
	room.IsBusy = true
	room.InProgressRequest = message
	room.InProgressResponse = ""
	snap := room.snapshot()
	room.mu.Unlock()
	r.mu.Unlock()

	r.broadcastScoped("update", videoID, snap)

	go r.runWorker(ctx, room, message)

	return Accepted
}

// runWorker drives one language-model request to completion and is
// never cancelled by a listener leaving: once started it runs to
// the end so the transcript is always written.
func (r *Registry) runWorker(ctx context.Context, room *Room, message string) {
	videoID := room.VideoID

	history, err := r.store.ReadTranscript(videoID)
	if err != nil {
		log.Printf("Warning: chat worker: failed to read transcript for %s: %v", videoID, err)
	}
	summary, err := r.store.ReadSummary(videoID)
	if err != nil {
		summary = ""
	}

	apiKey := r.apiKeyForVideo(videoID)

	turns := make([]adapter.ChatTurn, len(history))
	for i, h := range history {
		turns[i] = adapter.ChatTurn{Role: h.Role, Content: h.Content}
	}

	tokens, errs := r.completer.StreamChat(ctx, apiKey, summary, turns, message)

	var response string
	var streamErr error

loop:
	for {
		select {
		case tok, open := <-tokens:
			if !open || tok.Done {
				break loop
			}
			room.mu.Lock()
			room.InProgressResponse += tok.Content
			response = room.InProgressResponse
			snap := room.snapshot()
			room.mu.Unlock()
			r.broadcastScoped("update", videoID, snap)
		case err, open := <-errs:
			if !open {
				errs = nil
				continue
			}
			streamErr = err
			break loop
		}
	}

	// The token channel can close before the pending error is observed;
	// drain it so an upstream failure is never silently dropped.
	if streamErr == nil && errs != nil {
		select {
		case err, open := <-errs:
			if open && err != nil {
				streamErr = err
			}
		default:
		}
	}

	if streamErr != nil {
		errText := fmt.Sprintf("Error: %v", streamErr)
		room.mu.Lock()
		room.InProgressResponse = errText
		response = errText
		snap := room.snapshot()
		room.mu.Unlock()
		r.broadcastScoped("update", videoID, snap)
	}

	r.broadcastScoped("complete", videoID, struct{}{})

	if response != "" && (streamErr == nil || r.appendErrorToTranscript) {
		if err := r.store.AppendTranscriptTurns(videoID,
			store.TranscriptTurn{Role: "user", Content: message},
			store.TranscriptTurn{Role: "assistant", Content: response},
		); err != nil {
			log.Printf("Error: chat worker: failed to persist transcript for %s: %v", videoID, err)
		}
	}

	// Hold the registry lock across the is_busy clear and the
	// listener-count check so a Subscribe landing in between can
	// never be raced: either it observes the room before removal
	// (and keeps it alive) or after removal (and recreates it).
	r.mu.Lock()
	room.mu.Lock()
	room.IsBusy = false
	room.InProgressRequest = ""
	room.InProgressResponse = ""
	snap := room.snapshot()
	removable := room.ListenerCount <= 0
	room.mu.Unlock()
	if removable {
		delete(r.rooms, videoID)
	}
	r.mu.Unlock()

	r.broadcastScoped("update", videoID, snap)
}
