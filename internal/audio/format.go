package audio

import "strings"

// DefaultOutputFormat is used when a synthesis request names none.
const DefaultOutputFormat = "audio-16khz-32kbitrate-mono-mp3"

// Format describes how synthesized audio is served and named.
type Format struct {
	ContentType string
	Extension   string
}

// FormatFor maps an X-Microsoft-OutputFormat value to its HTTP content type
// and file extension.
func FormatFor(outputFormat string) Format {
	f := strings.ToLower(outputFormat)
	switch {
	case strings.Contains(f, "mp3"):
		return Format{ContentType: "audio/mpeg", Extension: "mp3"}
	case strings.HasPrefix(f, "riff-"):
		return Format{ContentType: "audio/wav", Extension: "wav"}
	case strings.HasPrefix(f, "ogg-"):
		return Format{ContentType: "audio/ogg", Extension: "ogg"}
	case strings.HasPrefix(f, "webm-"):
		return Format{ContentType: "audio/webm", Extension: "webm"}
	case strings.HasPrefix(f, "amr-wb"):
		return Format{ContentType: "audio/amr-wb", Extension: "amr"}
	case strings.HasPrefix(f, "raw-"):
		return Format{ContentType: "audio/pcm", Extension: "pcm"}
	default:
		return Format{ContentType: "application/octet-stream", Extension: "bin"}
	}
}
