// Package audio inspects uploaded audio before it is forwarded upstream.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"mime"
	"strings"
	"time"
)

// ErrNotWAV is returned when the payload is not a RIFF/WAVE file.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE payload")

var wavContentTypes = map[string]bool{
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/wave":  true,
}

// IsWAVContentType reports whether a multipart Content-Type header names WAV audio.
func IsWAVContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return wavContentTypes[strings.ToLower(mediaType)]
}

// WAVDuration reads the fmt and data chunks of a WAV file and returns the
// playback duration.
func WAVDuration(data []byte) (time.Duration, error) {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return 0, ErrNotWAV
	}

	var byteRate uint32
	var dataSize uint32
	haveFmt, haveData := false, false

	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := binary.LittleEndian.Uint32(data[off+4 : off+8])
		body := off + 8

		switch id {
		case "fmt ":
			if body+16 > len(data) {
				return 0, errors.New("audio: truncated fmt chunk")
			}
			byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
			haveFmt = true
		case "data":
			// Streaming writers leave the size at 0 or 0xFFFFFFFF; fall back to
			// whatever bytes are actually present.
			avail := uint32(len(data) - body)
			if size == 0 || size > avail {
				size = avail
			}
			dataSize = size
			haveData = true
		}
		if haveFmt && haveData {
			break
		}

		next := body + int(size)
		if size%2 == 1 {
			next++
		}
		if next <= off {
			break
		}
		off = next
	}

	if !haveFmt || !haveData {
		return 0, errors.New("audio: missing fmt or data chunk")
	}
	if byteRate == 0 {
		return 0, errors.New("audio: zero byte rate")
	}
	seconds := float64(dataSize) / float64(byteRate)
	return time.Duration(seconds * float64(time.Second)), nil
}

// CeilSeconds rounds d up to whole seconds, the unit quota is metered in.
func CeilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
