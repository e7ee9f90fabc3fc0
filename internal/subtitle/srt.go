// Package subtitle produces SubRip (SRT) text for synthesized clips.
package subtitle

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
)

// MinCueDuration is the shortest cue ever emitted, so a clip whose duration
// rounds to zero still gets a visible subtitle.
const MinCueDuration = 200 * time.Millisecond

// BuildSRT returns a single-cue SRT document spanning [0, duration].
func BuildSRT(text string, duration time.Duration) string {
	end := max(duration, MinCueDuration)

	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	return fmt.Sprintf("1\n%s --> %s\n%s\n", Timestamp(0), Timestamp(end), text)
}

// DurationFromSeconds converts a floating point second count, as reported by
// audio elements, into a Duration. Negative and NaN inputs become zero.
func DurationFromSeconds(seconds float64) time.Duration {
	if math.IsNaN(seconds) || seconds <= 0 {
		return 0
	}
	if math.IsInf(seconds, 1) {
		return math.MaxInt64
	}
	return time.Duration(math.Round(seconds * float64(time.Second)))
}

// Timestamp formats d as HH:MM:SS,mmm.
func Timestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

const maxFilenameRunes = 24

// Filename derives a download name from the first characters of text and the
// synthesis time, e.g. "tts_20240102_150405_hello_world.mp3".
func Filename(text string, at time.Time, ext string) string {
	var b strings.Builder
	n := 0
	lastUnderscore := false
	for _, r := range strings.TrimSpace(text) {
		if n >= maxFilenameRunes {
			break
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
			n++
		case !lastUnderscore && b.Len() > 0:
			b.WriteByte('_')
			lastUnderscore = true
			n++
		}
	}
	slug := strings.TrimRight(b.String(), "_")

	name := "tts_" + at.UTC().Format("20060102_150405")
	if slug != "" {
		name += "_" + slug
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return name
	}
	return name + "." + ext
}
