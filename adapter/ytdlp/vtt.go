package ytdlp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/akirose/yt-pipeline-core/store"
)

var (
	vttTagRegex      = regexp.MustCompile(`<\d{2}:\d{2}:\d{2}\.\d{3}>`)
	vttCueTagRegex   = regexp.MustCompile(`</?c>`)
	htmlTagRegex     = regexp.MustCompile(`<[^>]*>`)
	multiSpaceRegex  = regexp.MustCompile(`\s+`)
	bracketTagsRegex = regexp.MustCompile(`\[.*?\]|\(.*?\)|\{.*?\}`)
)

// parseVTT converts a WebVTT file's contents into a segment list:
// scan for "-->" timestamp lines, accumulate the following text lines
// as one cue, then flush on the next timestamp or at end of input.
func parseVTT(content string) []store.Segment {
	lines := strings.Split(content, "\n")
	if len(lines) < 4 || !strings.Contains(lines[0], "WEBVTT") {
		return nil
	}

	var segments []store.Segment
	var text strings.Builder
	var start, end float64

	flush := func() {
		if text.Len() == 0 {
			return
		}
		if clean := cleanCueText(text.String()); clean != "" {
			segments = append(segments, store.Segment{Start: start, End: end, Text: clean})
		}
		text.Reset()
	}

	for _, line := range lines[4:] {
		if strings.Contains(line, "-->") {
			flush()
			parts := strings.Split(line, "-->")
			if len(parts) == 2 {
				start = parseVTTTimestamp(strings.TrimSpace(parts[0]))
				end = parseVTTTimestamp(strings.Fields(strings.TrimSpace(parts[1]))[0])
			}
			continue
		}
		if strings.Contains(line, "align:") || strings.Contains(line, "position:") || strings.TrimSpace(line) == "" {
			continue
		}
		if cleaned := cleanCueLine(line); cleaned != "" {
			if text.Len() > 0 {
				text.WriteString(" ")
			}
			text.WriteString(cleaned)
		}
	}
	flush()

	return segments
}

func cleanCueLine(line string) string {
	cleaned := vttTagRegex.ReplaceAllString(line, "")
	cleaned = vttCueTagRegex.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

func cleanCueText(text string) string {
	text = htmlTagRegex.ReplaceAllString(text, "")
	text = multiSpaceRegex.ReplaceAllString(text, " ")
	text = bracketTagsRegex.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func parseVTTTimestamp(ts string) float64 {
	parts := strings.Split(ts, ":")
	if len(parts) != 3 {
		return 0
	}
	secParts := strings.Split(parts[2], ".")
	if len(secParts) != 2 {
		return 0
	}
	hours, _ := strconv.Atoi(parts[0])
	minutes, _ := strconv.Atoi(parts[1])
	seconds, _ := strconv.Atoi(secParts[0])
	millis, _ := strconv.Atoi(secParts[1])
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000
}

// dedupeSegments implements the caption de-duplication algorithm:
// for each consecutive pair, find the largest k such that the last k
// runes of the previous segment equal the first k runes of the new
// one. If k covers the entire previous segment, drop it; otherwise
// trim the overlapping suffix from the previous segment.
func dedupeSegments(segments []store.Segment) []store.Segment {
	if len(segments) == 0 {
		return segments
	}

	out := make([]store.Segment, 0, len(segments))
	out = append(out, segments[0])

	for i := 1; i < len(segments); i++ {
		prev := out[len(out)-1]
		cur := segments[i]

		k := overlapRunes(prev.Text, cur.Text)
		prevRunes := []rune(prev.Text)

		if k >= len(prevRunes) {
			out = out[:len(out)-1]
		} else if k > 0 {
			out[len(out)-1].Text = string(prevRunes[:len(prevRunes)-k])
		}

		out = append(out, cur)
	}

	return out
}

// overlapRunes returns the largest k such that the last k runes of a
// equal the first k runes of b.
func overlapRunes(a, b string) int {
	ar, br := []rune(a), []rune(b)
	maxK := len(ar)
	if len(br) < maxK {
		maxK = len(br)
	}
	for k := maxK; k > 0; k-- {
		if string(ar[len(ar)-k:]) == string(br[:k]) {
			return k
		}
	}
	return 0
}

// FormatTimestamp renders seconds as [HH:MM:SS] when the duration is
// at least one hour, else [MM:SS].
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	if hours > 0 {
		return fmt.Sprintf("[%02d:%02d:%02d]", hours, minutes, secs)
	}
	return fmt.Sprintf("[%02d:%02d]", minutes, secs)
}
