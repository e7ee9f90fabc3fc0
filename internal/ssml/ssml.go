// Package ssml renders Azure-flavoured Speech Synthesis Markup Language
// documents from plain text and prosody settings.
package ssml

import (
	"fmt"
	"math"
	"strings"
)

// Range limits applied to optional inputs before rendering.
const (
	MinRate, MaxRate               = -100, 200
	MinPitch, MaxPitch             = -50, 50
	MinVolume, MaxVolume           = -100, 100
	MinPauseMs, MaxPauseMs         = 0, 5000
	MinStyleDegree, MaxStyleDegree = 0.1, 2.0
)

// Options describes a single synthesis request. Nil pointers and empty strings
// mean "not set".
type Options struct {
	Text        string
	Voice       string
	Lang        string
	Style       string
	Role        string
	StyleDegree *float64
	Rate        *int // percent
	Pitch       *int // percent
	Volume      *int // percent
	PauseMs     *int
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Escape replaces the five XML-reserved characters with entities. Invalid
// UTF-8 and characters outside the XML 1.0 Char production are dropped.
func Escape(s string) string {
	return xmlEscaper.Replace(strings.Map(xmlChar, strings.ToValidUTF8(s, "")))
}

// xmlChar keeps r when XML 1.0 allows it in character data.
func xmlChar(r rune) rune {
	switch {
	case r == '\t', r == '\n', r == '\r':
		return r
	case r < 0x20, r >= 0xD800 && r <= 0xDFFF, r == 0xFFFE, r == 0xFFFF:
		return -1
	}
	return r
}

// Build renders opts into a complete <speak> document with exactly one
// <voice> element. Out-of-range numeric inputs are clamped, never rejected.
func Build(opts Options) string {
	inner := withBreaks(opts.Text, opts.PauseMs)

	var prosody []string
	if opts.Rate != nil {
		prosody = append(prosody, fmt.Sprintf("rate='%d%%'", clampInt(*opts.Rate, MinRate, MaxRate)))
	}
	if opts.Pitch != nil {
		prosody = append(prosody, fmt.Sprintf("pitch='%d%%'", clampInt(*opts.Pitch, MinPitch, MaxPitch)))
	}
	if opts.Volume != nil {
		prosody = append(prosody, fmt.Sprintf("volume='%d%%'", clampInt(*opts.Volume, MinVolume, MaxVolume)))
	}
	if len(prosody) > 0 {
		inner = "<prosody " + strings.Join(prosody, " ") + ">" + inner + "</prosody>"
	}

	if opts.Style != "" || opts.Role != "" {
		var attrs []string
		if opts.Style != "" {
			attrs = append(attrs, fmt.Sprintf("style='%s'", Escape(opts.Style)))
			if opts.StyleDegree != nil && !math.IsNaN(*opts.StyleDegree) {
				deg := clampFloat(*opts.StyleDegree, MinStyleDegree, MaxStyleDegree)
				attrs = append(attrs, fmt.Sprintf("styledegree='%.2f'", deg))
			}
		}
		if opts.Role != "" {
			attrs = append(attrs, fmt.Sprintf("role='%s'", Escape(opts.Role)))
		}
		inner = "<mstts:express-as " + strings.Join(attrs, " ") + ">" + inner + "</mstts:express-as>"
	}

	var b strings.Builder
	b.WriteString("<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' ")
	b.WriteString("xmlns:mstts='https://www.w3.org/2001/mstts' ")
	fmt.Fprintf(&b, "xml:lang='%s'>", Escape(opts.Lang))
	fmt.Fprintf(&b, "<voice name='%s'>", Escape(opts.Voice))
	b.WriteString(inner)
	b.WriteString("</voice></speak>")
	return b.String()
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// withBreaks escapes text and, for a positive pause, appends a break after
// every sentence terminator and substitutes one for every newline.
func withBreaks(text string, pauseMs *int) string {
	if pauseMs == nil {
		return Escape(text)
	}
	pause := clampInt(*pauseMs, MinPauseMs, MaxPauseMs)
	if pause == 0 {
		return Escape(text)
	}
	brk := fmt.Sprintf("<break time='%dms' />", pause)

	var out, segment strings.Builder
	flush := func() {
		out.WriteString(Escape(segment.String()))
		segment.Reset()
	}
	for _, r := range text {
		switch {
		case r == '\n':
			flush()
			out.WriteString(brk)
		case isTerminator(r):
			segment.WriteRune(r)
			flush()
			out.WriteString(brk)
		default:
			segment.WriteRune(r)
		}
	}
	flush()
	return out.String()
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func clampFloat(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
