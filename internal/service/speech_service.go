package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/windfall/speech_portal/internal/audio"
	"github.com/windfall/speech_portal/internal/client"
	"github.com/windfall/speech_portal/internal/errors"
	"github.com/windfall/speech_portal/internal/ssml"
	"github.com/windfall/speech_portal/internal/subtitle"
	"github.com/windfall/speech_portal/internal/usage"
)

// Synthesis defaults when the caller leaves a field empty.
const (
	DefaultVoice = "zh-CN-XiaoxiaoNeural"
	DefaultLang  = "zh-CN"

	DefaultSTTLanguage  = "zh-CN"
	DefaultPronLanguage = "en-US"
)

const voicesCacheKey = "voices"

// SpeechClient is the vendor capability the service drives.
type SpeechClient interface {
	ListVoices(ctx context.Context) ([]client.Voice, error)
	Recognize(ctx context.Context, wav []byte, language string) (map[string]any, error)
	AssessPronunciation(ctx context.Context, wav []byte, language string, params client.PronunciationParams) (map[string]any, error)
	Synthesize(ctx context.Context, ssml, outputFormat string) ([]byte, error)
}

// Archiver stores synthesized audio and returns its URL.
type Archiver interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// VoiceFilter narrows the voice list. Locale is a case-insensitive prefix.
type VoiceFilter struct {
	Locale     string
	NeuralOnly bool
}

// SynthesizeRequest is a text-to-speech request.
type SynthesizeRequest struct {
	ssml.Options
	OutputFormat string
}

// SynthesizeResult is the rendered audio.
type SynthesizeResult struct {
	Audio      []byte
	Format     audio.Format
	Chars      int64
	ArchiveURL string
	// Filename is the suggested download name, e.g. "tts_20240102_150405_hello.mp3".
	Filename string
}

// AudioRequest is a recognition or assessment upload. Seconds, when > 0,
// overrides the duration read from the WAV header for metering.
type AudioRequest struct {
	Audio         []byte
	Language      string
	ReferenceText string
	Seconds       int64
}

// SpeechService forwards requests to the vendor and meters what succeeds.
type SpeechService struct {
	speech  SpeechClient
	usage   *UsageService
	voices  *expirable.LRU[string, []client.Voice]
	archive Archiver
	clock   Clock
	log     zerolog.Logger
}

// NewSpeechService creates a new Speech service. A voicesTTL <= 0 disables
// voice list caching.
func NewSpeechService(speech SpeechClient, usageSvc *UsageService, voicesTTL time.Duration, log zerolog.Logger) *SpeechService {
	s := &SpeechService{
		speech: speech,
		usage:  usageSvc,
		clock:  RealClock{},
		log:    log.With().Str("component", "speech").Logger(),
	}
	if voicesTTL > 0 {
		s.voices = expirable.NewLRU[string, []client.Voice](1, nil, voicesTTL)
	}
	return s
}

// WithArchiver uploads every synthesized clip to a.
func (s *SpeechService) WithArchiver(a Archiver) *SpeechService {
	s.archive = a
	return s
}

// WithClock replaces the wall clock used for archive keys.
func (s *SpeechService) WithClock(c Clock) *SpeechService {
	s.clock = c
	return s
}

// ListVoices returns the vendor voice list narrowed by f.
func (s *SpeechService) ListVoices(ctx context.Context, f VoiceFilter) ([]client.Voice, error) {
	all, err := s.allVoices(ctx)
	if err != nil {
		return nil, err
	}

	locale := strings.ToLower(f.Locale)
	out := make([]client.Voice, 0, len(all))
	for _, v := range all {
		if f.NeuralOnly && !strings.EqualFold(v.VoiceType(), "neural") {
			continue
		}
		if locale != "" && !strings.HasPrefix(strings.ToLower(v.Locale()), locale) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *SpeechService) allVoices(ctx context.Context) ([]client.Voice, error) {
	if s.voices != nil {
		if v, ok := s.voices.Get(voicesCacheKey); ok {
			return v, nil
		}
	}
	voices, err := s.speech.ListVoices(ctx)
	if err != nil {
		return nil, err
	}
	if s.voices != nil {
		s.voices.Add(voicesCacheKey, voices)
	}
	return voices, nil
}

// Synthesize renders text to audio and meters its character count.
func (s *SpeechService) Synthesize(ctx context.Context, req SynthesizeRequest) (*SynthesizeResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.Validation("text is required")
	}
	if req.Voice == "" {
		req.Voice = DefaultVoice
	}
	if req.Lang == "" {
		req.Lang = DefaultLang
	}
	if req.OutputFormat == "" {
		req.OutputFormat = audio.DefaultOutputFormat
	}

	data, err := s.speech.Synthesize(ctx, ssml.Build(req.Options), req.OutputFormat)
	if err != nil {
		return nil, err
	}

	format := audio.FormatFor(req.OutputFormat)
	result := &SynthesizeResult{
		Audio:    data,
		Format:   format,
		Chars:    int64(utf8.RuneCountInString(req.Text)),
		Filename: subtitle.Filename(req.Text, s.clock.Now(), format.Extension),
	}
	s.record(ctx, usage.KindTTSChars, result.Chars)

	if s.archive != nil {
		key := s.archiveKey(result.Format.Extension)
		url, err := s.archive.Upload(ctx, key, data, result.Format.ContentType)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Failed to archive synthesized audio")
		} else {
			result.ArchiveURL = url
		}
	}
	return result, nil
}

func (s *SpeechService) archiveKey(ext string) string {
	return fmt.Sprintf("tts/%s/%s.%s", s.clock.Now().UTC().Format("2006/01/02"), uuid.NewString(), ext)
}

// Recognize transcribes WAV audio and meters its duration in seconds.
func (s *SpeechService) Recognize(ctx context.Context, req AudioRequest) (map[string]any, error) {
	if len(req.Audio) == 0 {
		return nil, errors.Validation("audio is required")
	}
	if req.Language == "" {
		req.Language = DefaultSTTLanguage
	}

	result, err := s.speech.Recognize(ctx, req.Audio, req.Language)
	if err != nil {
		return nil, err
	}
	s.record(ctx, usage.KindSTTSeconds, s.meteredSeconds(req))
	return result, nil
}

// AssessPronunciation grades WAV audio against the reference text and
// meters its duration in seconds.
func (s *SpeechService) AssessPronunciation(ctx context.Context, req AudioRequest) (map[string]any, error) {
	if len(req.Audio) == 0 {
		return nil, errors.Validation("audio is required")
	}
	if strings.TrimSpace(req.ReferenceText) == "" {
		return nil, errors.Validation("reference_text is required")
	}
	if req.Language == "" {
		req.Language = DefaultPronLanguage
	}

	result, err := s.speech.AssessPronunciation(ctx, req.Audio, req.Language, client.DefaultPronunciationParams(req.ReferenceText))
	if err != nil {
		return nil, err
	}
	s.record(ctx, usage.KindPronSeconds, s.meteredSeconds(req))
	return result, nil
}

func (s *SpeechService) meteredSeconds(req AudioRequest) int64 {
	if req.Seconds > 0 {
		return req.Seconds
	}
	d, err := audio.WAVDuration(req.Audio)
	if err != nil {
		s.log.Debug().Err(err).Msg("Could not read WAV duration; usage not metered")
		return 0
	}
	return audio.CeilSeconds(d)
}

// record meters a successful vendor call. A failed write never fails the request.
func (s *SpeechService) record(ctx context.Context, kind usage.Kind, amount int64) {
	if s.usage == nil {
		return
	}
	if err := s.usage.Record(ctx, kind, amount); err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Int64("amount", amount).Msg("Failed to record usage")
	}
}
