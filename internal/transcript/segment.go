package transcript

import (
	"fmt"
	"strings"
	"time"
)

// Segment is a single transcribed span with timing info. Immutable once
// produced; times are seconds from the start of the session.
type Segment struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
}

// TrimOverlap removes text from next that duplicates the trailing text of
// prev. Recognition over sliding windows can emit the tail of the previous
// window again at the head of the next one; when the shared run is at least
// minChars long it is cut from next instead of being emitted twice.
// Returns the trimmed segment and false if nothing of next survives.
func TrimOverlap(prev, next Segment, minChars int) (Segment, bool) {
	if minChars <= 0 {
		return next, next.Text != ""
	}

	prevText := strings.TrimSpace(prev.Text)
	nextText := strings.TrimSpace(next.Text)
	if prevText == "" || nextText == "" {
		return next, nextText != ""
	}

	// Longest suffix of prev that is a prefix of next.
	max := len(prevText)
	if len(nextText) < max {
		max = len(nextText)
	}
	overlap := 0
	for n := max; n >= minChars; n-- {
		if strings.EqualFold(prevText[len(prevText)-n:], nextText[:n]) {
			overlap = n
			break
		}
	}

	if overlap == 0 {
		return next, true
	}

	trimmed := strings.TrimSpace(nextText[overlap:])
	if trimmed == "" {
		return Segment{}, false
	}
	next.Text = trimmed
	return next, true
}

// FullText joins all segment texts into a single transcript string.
func FullText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Text != "" {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, " ")
}

// SRT renders the segments in SubRip subtitle format.
func SRT(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatSRTTime(seg.Start), formatSRTTime(seg.End))
		b.WriteString(seg.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

// formatSRTTime formats seconds as an SRT timestamp (HH:MM:SS,mmm)
func formatSRTTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds * float64(time.Second))
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
