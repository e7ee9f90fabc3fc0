package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windfall/speech_portal/internal/errors"
)

func newTestSpeechClient(t *testing.T, key string, h http.HandlerFunc) *AzureSpeechClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewAzureSpeechClient(key, "", 5*time.Second).WithEndpoints(srv.URL, srv.URL+"/")
}

func TestListVoices(t *testing.T) {
	c := newTestSpeechClient(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/cognitiveservices/voices/list", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`[{"ShortName":"en-US-JennyNeural","Locale":"en-US","VoiceType":"Neural","StyleList":["cheerful"]}]`))
	})

	voices, err := c.ListVoices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.Equal(t, "en-US-JennyNeural", voices[0].ShortName())
	assert.Equal(t, "en-US", voices[0].Locale())
	assert.Equal(t, "Neural", voices[0].VoiceType())
	assert.Equal(t, []any{"cheerful"}, voices[0]["StyleList"])
}

func TestRecognize(t *testing.T) {
	c := newTestSpeechClient(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/speech/recognition/conversation/cognitiveservices/v1", r.URL.Path)
		assert.Equal(t, "zh-CN", r.URL.Query().Get("language"))
		assert.Equal(t, "detailed", r.URL.Query().Get("format"))
		assert.Equal(t, wavContentType, r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Pronunciation-Assessment"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte("RIFF-bytes"), body)
		w.Write([]byte(`{"RecognitionStatus":"Success","DisplayText":"你好。"}`))
	})

	result, err := c.Recognize(context.Background(), []byte("RIFF-bytes"), "zh-CN")
	require.NoError(t, err)
	assert.Equal(t, "你好。", result["DisplayText"])
}

func TestAssessPronunciation(t *testing.T) {
	c := newTestSpeechClient(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		raw, err := base64.StdEncoding.DecodeString(r.Header.Get("Pronunciation-Assessment"))
		assert.NoError(t, err)
		var params map[string]any
		assert.NoError(t, json.Unmarshal(raw, &params))
		assert.Equal(t, "hello world", params["ReferenceText"])
		assert.Equal(t, "HundredMark", params["GradingSystem"])
		assert.Equal(t, "Phoneme", params["Granularity"])
		assert.Equal(t, "Comprehensive", params["Dimension"])
		assert.Equal(t, true, params["EnableMiscue"])
		w.Write([]byte(`{"NBest":[{"PronScore":88.5}]}`))
	})

	result, err := c.AssessPronunciation(context.Background(), []byte("RIFF"), "en-US", DefaultPronunciationParams("hello world"))
	require.NoError(t, err)
	assert.Contains(t, result, "NBest")
}

func TestSynthesize(t *testing.T) {
	c := newTestSpeechClient(t, "a.b.c", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cognitiveservices/v1", r.URL.Path)
		assert.Equal(t, "application/ssml+xml", r.Header.Get("Content-Type"))
		assert.Equal(t, "riff-24khz-16bit-mono-pcm", r.Header.Get("X-Microsoft-OutputFormat"))
		assert.Equal(t, "Bearer a.b.c", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("Ocp-Apim-Subscription-Key"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "<speak/>", string(body))
		w.Write([]byte{0xFF, 0xF3})
	})

	audio, err := c.Synthesize(context.Background(), "<speak/>", "riff-24khz-16bit-mono-pcm")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xF3}, audio)
}

func TestAuthHeader_BearerPassthrough(t *testing.T) {
	c := newTestSpeechClient(t, "Bearer token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		w.Write([]byte(`[]`))
	})

	_, err := c.ListVoices(context.Background())
	require.NoError(t, err)
}

func TestUpstreamError(t *testing.T) {
	c := newTestSpeechClient(t, "bad", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid subscription key", http.StatusUnauthorized)
	})

	_, err := c.Synthesize(context.Background(), "<speak/>", "audio-16khz-32kbitrate-mono-mp3")
	require.Error(t, err)

	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrUpstream, appErr.Code)
	assert.Contains(t, appErr.Message, "401")
	assert.Contains(t, appErr.Message, "invalid subscription key")
	assert.Equal(t, 401, appErr.Details["upstream_status"])
}

func TestNotConfigured(t *testing.T) {
	c := NewAzureSpeechClient("", "eastus", 0)

	_, err := c.ListVoices(context.Background())
	assert.True(t, errors.Is(err, errors.ErrNotConfigured))
}

func TestRegionalURLs(t *testing.T) {
	c := NewAzureSpeechClient("k", "westeurope", 0)

	assert.Equal(t, "https://westeurope.tts.speech.microsoft.com/cognitiveservices/v1", c.ttsURL("/cognitiveservices/v1"))
	assert.Equal(t,
		"https://westeurope.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1?format=detailed&language=en-US",
		c.sttURL("en-US"))
}
