// Package stt implements adapter.Transcriber against an
// OpenAI-compatible speech-to-text HTTP endpoint. It first splits the
// audio file into fixed-duration chunks via ffmpeg, transcribes each
// chunk independently, and shifts each chunk's returned timestamps by
// a cumulative offset so the merged transcript timeline stays
// contiguous.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/akirose/yt-pipeline-core/adapter"
	"github.com/akirose/yt-pipeline-core/store"
)

// Client transcribes audio files by chunking them via ffmpeg and
// POSTing each chunk to a Whisper-compatible transcription endpoint.
type Client struct {
	APIURL     string
	APIKey     string
	Model      string
	HTTPClient *http.Client

	// FFmpegPath overrides the ffmpeg executable, mostly for tests.
	FFmpegPath string
}

func New(apiURL, apiKey, model string) *Client {
	return &Client{
		APIURL:     apiURL,
		APIKey:     apiKey,
		Model:      model,
		HTTPClient: &http.Client{},
	}
}

var _ adapter.Transcriber = (*Client)(nil)

func (c *Client) ffmpeg() string {
	if c.FFmpegPath != "" {
		return c.FFmpegPath
	}
	return "ffmpeg"
}

// sttSegmentResponse mirrors the subset of a Whisper verbose_json
// response this client cares about.
type sttSegmentResponse struct {
	Segments []rawSegment `json:"segments"`
}

type rawSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcribe splits audioPath into chunkSeconds-long pieces, sends
// each to the configured endpoint in order, and returns the merged,
// contiguously-timestamped segment list.
func (c *Client) Transcribe(ctx context.Context, audioPath string, chunkSeconds float64, onChunkDone func(done, total int)) ([]store.Segment, error) {
	chunkDir, err := os.MkdirTemp("", "yt-audio-chunks-")
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}
	defer os.RemoveAll(chunkDir)

	chunkPaths, err := c.splitAudio(ctx, audioPath, chunkDir, chunkSeconds)
	if err != nil {
		return nil, err
	}

	var merged []store.Segment
	var offset float64

	for i, chunkPath := range chunkPaths {
		segs, err := c.transcribeChunk(ctx, chunkPath)
		if err != nil {
			return nil, fmt.Errorf("failed to transcribe chunk %d/%d: %w", i+1, len(chunkPaths), err)
		}

		for _, s := range segs {
			merged = append(merged, store.Segment{
				Start: s.Start + offset,
				End:   s.End + offset,
				Text:  s.Text,
			})
		}
		offset += chunkSeconds

		if onChunkDone != nil {
			onChunkDone(i+1, len(chunkPaths))
		}
	}

	return merged, nil
}

// splitAudio uses ffmpeg's segment muxer to cut audioPath into
// chunkSeconds-long pieces, written as chunkDir/000.m4a, 001.m4a, ...
func (c *Client) splitAudio(ctx context.Context, audioPath, chunkDir string, chunkSeconds float64) ([]string, error) {
	pattern := filepath.Join(chunkDir, "%03d.m4a")

	cmd := exec.CommandContext(ctx, c.ffmpeg(),
		"-i", audioPath,
		"-f", "segment",
		"-segment_time", fmt.Sprintf("%.0f", chunkSeconds),
		"-c", "copy",
		pattern,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg segmentation failed: %w: %s", err, stderr.String())
	}

	entries, err := os.ReadDir(chunkDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		paths = append(paths, filepath.Join(chunkDir, e.Name()))
	}
	return paths, nil
}

func (c *Client) transcribeChunk(ctx context.Context, chunkPath string) ([]rawSegment, error) {
	file, err := os.Open(chunkPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(chunkPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	_ = writer.WriteField("model", c.Model)
	_ = writer.WriteField("response_format", "verbose_json")
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech-to-text request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed sttSegmentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode speech-to-text response: %w", err)
	}

	return parsed.Segments, nil
}
