// Package ytdlp implements adapter.Acquirer by shelling out to the
// yt-dlp binary: a --dump-json metadata probe, VTT-caption download,
// and an audio-download path with progress parsing for videos that
// have no captions to fall back on.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/akirose/yt-pipeline-core/adapter"
	"github.com/akirose/yt-pipeline-core/store"
)

var validVideoID = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// Acquirer shells out to yt-dlp for metadata probing, caption
// download and audio download.
type Acquirer struct {
	// BinaryPath overrides the yt-dlp executable name, mostly for
	// tests. Empty means "yt-dlp" resolved via PATH.
	BinaryPath string
}

func New() *Acquirer {
	return &Acquirer{}
}

var _ adapter.Acquirer = (*Acquirer)(nil)

func (a *Acquirer) binary() string {
	if a.BinaryPath != "" {
		return a.BinaryPath
	}
	return "yt-dlp"
}

func validateVideoID(videoID string) error {
	if !validVideoID.MatchString(videoID) {
		return errors.New("invalid video ID format")
	}
	return nil
}

func videoURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}

// ProbeMeta fetches video metadata via `yt-dlp --dump-json --skip-download`.
func (a *Acquirer) ProbeMeta(ctx context.Context, videoID string) (adapter.VideoMeta, error) {
	if err := validateVideoID(videoID); err != nil {
		return adapter.VideoMeta{}, err
	}

	cmd := exec.CommandContext(ctx, a.binary(),
		"--dump-json",
		"--no-playlist",
		"--skip-download",
		videoURL(videoID),
	)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return adapter.VideoMeta{}, fmt.Errorf("yt-dlp metadata probe failed: %w: %s", err, stderr.String())
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(out.Bytes(), &raw); err != nil {
		return adapter.VideoMeta{}, fmt.Errorf("failed to parse yt-dlp output: %w", err)
	}

	meta := adapter.VideoMeta{}
	if v, ok := raw["title"].(string); ok {
		meta.Title = v
	}
	if v, ok := raw["channel"].(string); ok {
		meta.Creator = v
	}
	if v, ok := raw["upload_date"].(string); ok {
		meta.UploadDate = v
	}
	if v, ok := raw["thumbnail"].(string); ok {
		meta.ThumbnailURL = v
	}
	switch d := raw["duration"].(type) {
	case float64:
		meta.LengthSeconds = int(d)
	case string:
		if f, err := strconv.ParseFloat(d, 64); err == nil {
			meta.LengthSeconds = int(f)
		}
	}

	return meta, nil
}

// FetchCaptions downloads automatic captions in WebVTT format, parses
// them into a segment list sorted by start time, applies the
// de-duplication algorithm, and probes the video's metadata.
func (a *Acquirer) FetchCaptions(ctx context.Context, videoID string) (adapter.CaptionResult, bool, error) {
	if err := validateVideoID(videoID); err != nil {
		return adapter.CaptionResult{}, false, err
	}

	tempDir, err := os.MkdirTemp("", "yt-captions-")
	if err != nil {
		return adapter.CaptionResult{}, false, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	cmd := exec.CommandContext(ctx, a.binary(),
		"--write-auto-sub",
		"--sub-langs", "en.*,en",
		"--skip-download",
		"--sub-format", "vtt",
		"--paths", tempDir,
		"-o", "%(id)s.%(ext)s",
		videoURL(videoID),
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return adapter.CaptionResult{}, false, fmt.Errorf("yt-dlp caption download failed: %w: %s", err, stderr.String())
	}

	files, err := os.ReadDir(tempDir)
	if err != nil {
		return adapter.CaptionResult{}, false, fmt.Errorf("failed to read caption temp directory: %w", err)
	}

	var segments []store.Segment
	for _, f := range files {
		if !strings.HasSuffix(f.Name(), ".vtt") {
			continue
		}
		data, err := os.ReadFile(tempDir + string(os.PathSeparator) + f.Name())
		if err != nil {
			continue
		}
		segments = append(segments, parseVTT(string(data))...)
	}

	if len(segments) == 0 {
		return adapter.CaptionResult{}, false, nil
	}

	sort.Slice(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })
	segments = dedupeSegments(segments)

	meta, err := a.ProbeMeta(ctx, videoID)
	if err != nil {
		return adapter.CaptionResult{}, false, err
	}

	return adapter.CaptionResult{Meta: meta, Segments: segments}, true, nil
}

// progressLine matches yt-dlp's `[download]  NN.N% of ...` lines.
var progressLine = regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%`)

// DownloadAudio downloads and extracts the video's audio track to
// audioPath, reporting percentage via onProgress as yt-dlp emits
// download progress lines on stdout.
func (a *Acquirer) DownloadAudio(ctx context.Context, videoID, audioPath string, onProgress adapter.ProgressFunc) error {
	if err := validateVideoID(videoID); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, a.binary(),
		"-f", "bestaudio",
		"-x", "--audio-format", "m4a",
		"-o", audioPath,
		videoURL(videoID),
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to attach stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 4096), 1<<16)
	for scanner.Scan() {
		line := scanner.Text()
		if m := progressLine.FindStringSubmatch(line); m != nil && onProgress != nil {
			onProgress(m[1] + "%")
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("yt-dlp audio download failed: %w: %s", err, stderr.String())
	}
	return nil
}
