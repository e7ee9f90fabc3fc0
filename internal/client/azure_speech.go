package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/windfall/speech_portal/internal/errors"
	"github.com/windfall/speech_portal/internal/metrics"
)

const (
	wavContentType  = "audio/wav; codecs=audio/pcm; samplerate=16000"
	speechUserAgent = "speech-portal"

	// Upstream error bodies are truncated to this many bytes.
	maxErrorBody = 2048
)

// Voice is a vendor voice descriptor, passed through unmodified.
type Voice map[string]any

func (v Voice) str(key string) string {
	s, _ := v[key].(string)
	return s
}

// ShortName returns the voice id used in SSML, e.g. "en-US-JennyNeural".
func (v Voice) ShortName() string { return v.str("ShortName") }

// Locale returns the voice locale, e.g. "en-US".
func (v Voice) Locale() string { return v.str("Locale") }

// VoiceType returns "Neural" or "Standard".
func (v Voice) VoiceType() string { return v.str("VoiceType") }

// PronunciationParams are the grading options sent with an assessment.
type PronunciationParams struct {
	ReferenceText string `json:"ReferenceText"`
	GradingSystem string `json:"GradingSystem"`
	Granularity   string `json:"Granularity"`
	Dimension     string `json:"Dimension"`
	EnableMiscue  bool   `json:"EnableMiscue"`
}

// DefaultPronunciationParams returns hundred-mark, phoneme-level grading with
// miscue detection for referenceText.
func DefaultPronunciationParams(referenceText string) PronunciationParams {
	return PronunciationParams{
		ReferenceText: referenceText,
		GradingSystem: "HundredMark",
		Granularity:   "Phoneme",
		Dimension:     "Comprehensive",
		EnableMiscue:  true,
	}
}

// Header returns the base64 JSON value of the Pronunciation-Assessment header.
func (p PronunciationParams) Header() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal params: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// AzureSpeechClient wraps the Azure AI Speech REST API.
type AzureSpeechClient struct {
	apiKey  string
	region  string
	ttsBase string
	sttBase string
	client  *http.Client
}

// NewAzureSpeechClient creates a new Azure Speech client.
func NewAzureSpeechClient(apiKey, region string, timeout time.Duration) *AzureSpeechClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AzureSpeechClient{
		apiKey: strings.TrimSpace(apiKey),
		region: region,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithEndpoints overrides the regional TTS and STT hosts. Empty values keep
// the regional default.
func (c *AzureSpeechClient) WithEndpoints(ttsBase, sttBase string) *AzureSpeechClient {
	c.ttsBase = strings.TrimRight(ttsBase, "/")
	c.sttBase = strings.TrimRight(sttBase, "/")
	return c
}

func (c *AzureSpeechClient) ttsURL(path string) string {
	base := c.ttsBase
	if base == "" {
		base = fmt.Sprintf("https://%s.tts.speech.microsoft.com", c.region)
	}
	return base + path
}

func (c *AzureSpeechClient) sttURL(language string) string {
	base := c.sttBase
	if base == "" {
		base = fmt.Sprintf("https://%s.stt.speech.microsoft.com", c.region)
	}
	q := url.Values{}
	q.Set("language", language)
	q.Set("format", "detailed")
	return base + "/speech/recognition/conversation/cognitiveservices/v1?" + q.Encode()
}

func (c *AzureSpeechClient) configured() error {
	if c.apiKey == "" || (c.region == "" && (c.ttsBase == "" || c.sttBase == "")) {
		return errors.New(errors.ErrNotConfigured, "Azure Speech credentials not configured (SPEECH_KEY, SPEECH_REGION)")
	}
	return nil
}

// setAuth attaches the credential. Keys that are already bearer tokens, or
// look like a JWT, go in Authorization instead of the subscription header.
func (c *AzureSpeechClient) setAuth(req *http.Request) {
	switch {
	case strings.HasPrefix(c.apiKey, "Bearer "):
		req.Header.Set("Authorization", c.apiKey)
	case strings.Count(c.apiKey, ".") == 2:
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	default:
		req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	}
}

// do sends req and returns the body of a 2xx response. Anything else becomes
// an UPSTREAM_ERROR carrying the vendor status and body.
func (c *AzureSpeechClient) do(req *http.Request, operation string) ([]byte, error) {
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ObserveUpstream(operation, 0, time.Since(start))
		return nil, errors.UpstreamWrap(operation+" request failed", err)
	}
	defer resp.Body.Close()
	metrics.ObserveUpstream(operation, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, errors.Upstream(resp.StatusCode, msg)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.UpstreamWrap("failed to read "+operation+" response", err)
	}
	return body, nil
}

func (c *AzureSpeechClient) doJSON(req *http.Request, operation string, out any) error {
	body, err := c.do(req, operation)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.UpstreamWrap("failed to decode "+operation+" response", err)
	}
	return nil
}

// ListVoices fetches the full voice catalogue for the region.
func (c *AzureSpeechClient) ListVoices(ctx context.Context) ([]Voice, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ttsURL("/cognitiveservices/voices/list"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuth(req)
	req.Header.Set("User-Agent", speechUserAgent)
	req.Header.Set("Accept", "application/json")

	var voices []Voice
	if err := c.doJSON(req, "list_voices", &voices); err != nil {
		return nil, err
	}
	return voices, nil
}

// Recognize transcribes a short WAV clip (16 kHz mono PCM) and returns the
// vendor's detailed JSON result.
func (c *AzureSpeechClient) Recognize(ctx context.Context, wav []byte, language string) (map[string]any, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}

	req, err := c.newSTTRequest(ctx, wav, language)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := c.doJSON(req, "recognize", &result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssessPronunciation scores a WAV clip against params.ReferenceText.
func (c *AzureSpeechClient) AssessPronunciation(ctx context.Context, wav []byte, language string, params PronunciationParams) (map[string]any, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}

	req, err := c.newSTTRequest(ctx, wav, language)
	if err != nil {
		return nil, err
	}
	header, err := params.Header()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Pronunciation-Assessment", header)

	var result map[string]any
	if err := c.doJSON(req, "assess_pronunciation", &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *AzureSpeechClient) newSTTRequest(ctx context.Context, wav []byte, language string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sttURL(language), bytes.NewReader(wav))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuth(req)
	req.Header.Set("Content-Type", wavContentType)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Synthesize renders an SSML document to audio in the given
// X-Microsoft-OutputFormat, e.g. "audio-16khz-32kbitrate-mono-mp3".
func (c *AzureSpeechClient) Synthesize(ctx context.Context, ssml, outputFormat string) ([]byte, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ttsURL("/cognitiveservices/v1"), strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuth(req)
	req.Header.Set("User-Agent", speechUserAgent)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", outputFormat)

	return c.do(req, "synthesize")
}
