package service

import (
	"math"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"github.com/windfall/speech_portal/internal/errors"
	"github.com/windfall/speech_portal/internal/ssml"
)

// MaxOpenAIInputChars is the input length accepted on the OpenAI-compatible route.
const MaxOpenAIInputChars = 4096

var openAIVoices = map[openai.SpeechVoice]string{
	openai.VoiceAlloy:   "en-US-JennyNeural",
	openai.VoiceEcho:    "en-US-GuyNeural",
	openai.VoiceFable:   "en-GB-RyanNeural",
	openai.VoiceOnyx:    "en-US-DavisNeural",
	openai.VoiceNova:    "en-US-AriaNeural",
	openai.VoiceShimmer: "en-US-SaraNeural",
}

var openAIFormats = map[openai.SpeechResponseFormat]string{
	openai.SpeechResponseFormatMp3:  "audio-24khz-48kbitrate-mono-mp3",
	openai.SpeechResponseFormatOpus: "ogg-24khz-16bit-mono-opus",
	openai.SpeechResponseFormatWav:  "riff-24khz-16bit-mono-pcm",
	openai.SpeechResponseFormatPcm:  "raw-24khz-16bit-mono-pcm",
}

// FromOpenAISpeech translates an OpenAI speech request into a synthesis
// request. The model is ignored.
func FromOpenAISpeech(req openai.CreateSpeechRequest) (SynthesizeRequest, error) {
	if strings.TrimSpace(req.Input) == "" {
		return SynthesizeRequest{}, errors.Validation("input is required")
	}
	if utf8.RuneCountInString(req.Input) > MaxOpenAIInputChars {
		return SynthesizeRequest{}, errors.Validation("input exceeds 4096 characters")
	}

	voice, lang, err := azureVoice(req.Voice)
	if err != nil {
		return SynthesizeRequest{}, err
	}

	format := req.ResponseFormat
	if format == "" {
		format = openai.SpeechResponseFormatMp3
	}
	outputFormat, ok := openAIFormats[format]
	if !ok {
		return SynthesizeRequest{}, errors.Validation("unsupported response_format: " + string(format))
	}

	out := SynthesizeRequest{
		Options:      ssml.Options{Text: req.Input, Voice: voice, Lang: lang},
		OutputFormat: outputFormat,
	}
	if req.Speed != 0 {
		if req.Speed < 0.25 || req.Speed > 4.0 {
			return SynthesizeRequest{}, errors.Validation("speed must be between 0.25 and 4.0")
		}
		rate := int(math.Round((req.Speed - 1) * 100))
		if rate != 0 {
			out.Rate = &rate
		}
	}
	return out, nil
}

// azureVoice resolves an OpenAI voice name or an Azure short name such as
// "de-DE-KatjaNeural" and returns it with its locale.
func azureVoice(v openai.SpeechVoice) (string, string, error) {
	if v == "" {
		return DefaultVoice, DefaultLang, nil
	}
	name, ok := openAIVoices[openai.SpeechVoice(strings.ToLower(string(v)))]
	if !ok {
		name = string(v)
	}
	parts := strings.SplitN(name, "-", 3)
	if len(parts) < 3 {
		return "", "", errors.Validation("unknown voice: " + string(v))
	}
	return name, parts[0] + "-" + parts[1], nil
}
