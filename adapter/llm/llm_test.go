package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akirose/yt-pipeline-core/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"[00:00] Intro\n- said hello"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	c := New(server.URL, "gpt-4.1-nano", 1500)
	summary, err := c.SummarizeChunk(context.Background(), "sk-test", "", "[00:00-00:10]: hello there")
	require.NoError(t, err)
	assert.Contains(t, summary, "Intro")
}

func TestSummarizeChunkNoChoicesErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer server.Close()

	c := New(server.URL, "gpt-4.1-nano", 1500)
	_, err := c.SummarizeChunk(context.Background(), "sk-test", "", "chunk")
	assert.Error(t, err)
}

func TestStreamChatEmitsTokensThenDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	c := New(server.URL, "gpt-4.1-nano", 1500)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tokens, errs := c.StreamChat(ctx, "sk-test", "a video about dogs", nil, "what is this about?")

	var got string
	done := false
	for tok := range tokens {
		if tok.Done {
			done = true
			break
		}
		got += tok.Content
	}
	assert.True(t, done)
	assert.Equal(t, "Hello", got)

	select {
	case err := <-errs:
		assert.NoError(t, err)
	default:
	}
}

func TestStreamChatPropagatesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "rate limited")
	}))
	defer server.Close()

	c := New(server.URL, "gpt-4.1-nano", 1500)
	tokens, errs := c.StreamChat(context.Background(), "sk-test", "", nil, "hi")

	for range tokens {
	}
	err := <-errs
	assert.Error(t, err)
}

var _ adapter.ChatCompleter = (*Client)(nil)
var _ adapter.Summarizer = (*Client)(nil)
