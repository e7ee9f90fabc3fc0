package ssml

import (
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// parse walks the document with encoding/xml and returns every start element
// name, failing the test when the document is not well-formed.
func parse(t *testing.T, doc string) []xml.StartElement {
	t.Helper()
	dec := xml.NewDecoder(strings.NewReader(doc))
	var starts []xml.StartElement
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return starts
		}
		require.NoError(t, err, "document: %s", doc)
		if se, ok := tok.(xml.StartElement); ok {
			starts = append(starts, se.Copy())
		}
	}
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func TestBuild_Plain(t *testing.T) {
	doc := Build(Options{Text: "hello", Voice: "en-US-JennyNeural", Lang: "en-US"})

	assert.Equal(t,
		"<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' "+
			"xmlns:mstts='https://www.w3.org/2001/mstts' xml:lang='en-US'>"+
			"<voice name='en-US-JennyNeural'>hello</voice></speak>",
		doc)
}

func TestBuild_SingleVoiceAndWellFormed(t *testing.T) {
	inputs := []string{
		`Tom & Jerry <b>"quoted"</b> it's`,
		"<<<>>>&&&''\"\"",
		"</voice></speak><voice name='evil'>",
		"第一句。第二句！\n第三句？",
		"",
	}

	for _, text := range inputs {
		for _, pause := range []*int{nil, intPtr(300)} {
			doc := Build(Options{
				Text:    text,
				Voice:   "zh-CN-XiaoxiaoNeural",
				Lang:    "zh-CN",
				Style:   "cheerful",
				Role:    "Girl",
				Rate:    intPtr(10),
				PauseMs: pause,
			})
			starts := parse(t, doc)

			voices := 0
			for _, se := range starts {
				if se.Name.Local == "voice" {
					voices++
					assert.Equal(t, "zh-CN-XiaoxiaoNeural", attr(se, "name"))
				}
			}
			assert.Equal(t, 1, voices, "document: %s", doc)
		}
	}
}

func TestBuild_Clamping(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"rate high", Options{Rate: intPtr(10_000)}, "rate='200%'"},
		{"rate low", Options{Rate: intPtr(-10_000)}, "rate='-100%'"},
		{"pitch high", Options{Pitch: intPtr(51)}, "pitch='50%'"},
		{"pitch low", Options{Pitch: intPtr(-999)}, "pitch='-50%'"},
		{"volume high", Options{Volume: intPtr(101)}, "volume='100%'"},
		{"volume low", Options{Volume: intPtr(-101)}, "volume='-100%'"},
		{"style degree high", Options{Style: "sad", StyleDegree: floatPtr(9.5)}, "styledegree='2.00'"},
		{"style degree low", Options{Style: "sad", StyleDegree: floatPtr(-3)}, "styledegree='0.10'"},
		{"style degree in range", Options{Style: "sad", StyleDegree: floatPtr(1.234)}, "styledegree='1.23'"},
		{"pause high", Options{Text: "a!", PauseMs: intPtr(99_999)}, "<break time='5000ms' />"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Voice = "v"
			tt.opts.Lang = "en-US"
			doc := Build(tt.opts)
			assert.Contains(t, doc, tt.want)
			parse(t, doc)
		})
	}
}

func TestBuild_Prosody(t *testing.T) {
	doc := Build(Options{Text: "x", Voice: "v", Lang: "en-US", Rate: intPtr(20), Volume: intPtr(-5)})
	assert.Contains(t, doc, "<prosody rate='20%' volume='-5%'>x</prosody>")
	assert.NotContains(t, doc, "pitch=")

	doc = Build(Options{Text: "x", Voice: "v", Lang: "en-US"})
	assert.NotContains(t, doc, "<prosody")
}

func TestBuild_ExpressAs(t *testing.T) {
	t.Run("style degree only with style", func(t *testing.T) {
		doc := Build(Options{Text: "x", Voice: "v", Lang: "en-US", Role: "Boy", StyleDegree: floatPtr(1.5)})
		assert.Contains(t, doc, "<mstts:express-as role='Boy'>")
		assert.NotContains(t, doc, "styledegree")
	})

	t.Run("style and role", func(t *testing.T) {
		doc := Build(Options{Text: "x", Voice: "v", Lang: "en-US", Style: "angry", Role: "OlderAdultMale", StyleDegree: floatPtr(2)})
		assert.Contains(t, doc, "<mstts:express-as style='angry' styledegree='2.00' role='OlderAdultMale'>")
	})

	t.Run("express-as wraps prosody", func(t *testing.T) {
		doc := Build(Options{Text: "x", Voice: "v", Lang: "en-US", Style: "calm", Pitch: intPtr(5)})
		assert.Contains(t, doc, "<mstts:express-as style='calm'><prosody pitch='5%'>x</prosody></mstts:express-as>")
	})

	t.Run("escaped attributes", func(t *testing.T) {
		doc := Build(Options{Text: "x", Voice: "v", Lang: "en-US", Style: "a'b"})
		assert.Contains(t, doc, "style='a&apos;b'")
		parse(t, doc)
	})
}

func TestBuild_Breaks(t *testing.T) {
	doc := Build(Options{Text: "Hi. Ok?\nYes！好。", Voice: "v", Lang: "en-US", PauseMs: intPtr(250)})
	brk := "<break time='250ms' />"
	assert.Contains(t, doc, ">Hi."+brk+" Ok?"+brk+brk+"Yes！"+brk+"好。"+brk+"</voice>")

	zero := Build(Options{Text: "Hi. Ok?", Voice: "v", Lang: "en-US", PauseMs: intPtr(0)})
	assert.NotContains(t, zero, "<break")

	negative := Build(Options{Text: "Hi. Ok?", Voice: "v", Lang: "en-US", PauseMs: intPtr(-20)})
	assert.NotContains(t, negative, "<break")
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "&amp;&lt;&gt;&quot;&apos;", Escape(`&<>"'`))
}

func TestEscape_DropsIllegalXMLChars(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"control chars", "a\x01b\x0bc\x1fd", "abcd"},
		{"whitespace kept", "a\tb\nc\rd", "a\tb\nc\rd"},
		{"invalid utf8", "ok\xff\xfe!", "ok!"},
		{"noncharacter", "x\uFFFEy", "xy"},
		{"cjk untouched", "你好", "你好"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Escape(tt.in))
		})
	}
}

func TestBuild_ControlCharsStayWellFormed(t *testing.T) {
	doc := Build(Options{Text: "bell\x07 and\x0b tab & \xc3(", Voice: "en-US-JennyNeural", Lang: "en-US", PauseMs: intPtr(200)})
	parse(t, doc)
	assert.NotContains(t, doc, "\x07")
	assert.NotContains(t, doc, "\x0b")
}
