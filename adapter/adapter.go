// Package adapter defines the contracts the pipeline and chat cores
// use to talk to the outside world: the video/caption source, the
// speech-to-text service, and the language model. Concrete
// implementations live in the ytdlp, stt and llm subpackages; the
// pipeline and chat packages depend only on these interfaces so the
// external services can be swapped or faked in tests.
package adapter

import (
	"context"

	"github.com/akirose/yt-pipeline-core/store"
)

// VideoMeta is the metadata extracted for a video once acquisition
// has probed it.
type VideoMeta struct {
	ThumbnailURL  string
	Title         string
	Creator       string
	LengthSeconds int
	UploadDate    string
}

// ProgressFunc is invoked by an Acquirer while a download is in
// flight so the caller can reflect percentage_string on the Job.
type ProgressFunc func(percentageString string)

// CaptionResult is returned when automatic captions were found and
// downloaded directly; no media download or transcription is needed.
type CaptionResult struct {
	Meta     VideoMeta
	Segments []store.Segment
}

// Acquirer is the caption-probe / media-acquisition contract (the
// "acquire" stage's external dependency).
type Acquirer interface {
	// ProbeMeta fetches video metadata. It does not check for captions
	// (see FetchCaptions) and never downloads media.
	ProbeMeta(ctx context.Context, videoID string) (VideoMeta, error)

	// FetchCaptions attempts to download and parse automatic captions.
	// ok is false (with a nil error) when the video has none.
	FetchCaptions(ctx context.Context, videoID string) (result CaptionResult, ok bool, err error)

	// DownloadAudio fetches the video's audio track to audioPath,
	// invoking onProgress as the downloader reports percentage.
	DownloadAudio(ctx context.Context, videoID string, audioPath string, onProgress ProgressFunc) error
}

// Transcriber is the speech-to-text contract (the "transcribe"
// stage's external dependency). It is expected to split the audio
// file into chunkSeconds-long pieces internally and return the
// concatenated, contiguously-timestamped segment list.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, chunkSeconds float64, onChunkDone func(done, total int)) ([]store.Segment, error)
}

// Summarizer is the language-model contract used by the "summarize"
// stage. Credentials are resolved by the caller (policy package) and
// passed in as apiKey.
type Summarizer interface {
	// SummarizeChunk folds chunkText into currentSummary (empty for
	// the first chunk) and returns the new rolling summary.
	SummarizeChunk(ctx context.Context, apiKey, currentSummary, chunkText string) (string, error)
}

// ChatTurn is one prior turn of a conversation, either persisted
// transcript history or the in-flight exchange.
type ChatTurn struct {
	Role    string
	Content string
}

// ChatToken is one incremental piece of a streamed chat completion.
type ChatToken struct {
	Content string
	Done    bool
}

// ChatCompleter is the language-model contract used by the chat
// worker. StreamChat closes both returned channels when the response
// ends. A stream that completes normally sends a final Done=true
// token; a failure is delivered as one value on the error channel,
// not as a token.
type ChatCompleter interface {
	StreamChat(ctx context.Context, apiKey string, summary string, history []ChatTurn, message string) (<-chan ChatToken, <-chan error)
}
