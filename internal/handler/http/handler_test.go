package http

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/windfall/speech_portal/internal/client"
	"github.com/windfall/speech_portal/internal/logger"
	"github.com/windfall/speech_portal/internal/repository"
	"github.com/windfall/speech_portal/internal/service"
	"github.com/windfall/speech_portal/internal/usage"
	"github.com/windfall/speech_portal/pkg/response"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type fakeSpeech struct {
	voices   []client.Voice
	lastSSML string
	lastWAV  []byte
	lastLang string
	lastRef  string
	err      error
}

func (f *fakeSpeech) ListVoices(ctx context.Context) ([]client.Voice, error) {
	return f.voices, f.err
}

func (f *fakeSpeech) Recognize(ctx context.Context, wav []byte, language string) (map[string]any, error) {
	f.lastWAV, f.lastLang = wav, language
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{"RecognitionStatus": "Success", "DisplayText": "你好。"}, nil
}

func (f *fakeSpeech) AssessPronunciation(ctx context.Context, wav []byte, language string, params client.PronunciationParams) (map[string]any, error) {
	f.lastWAV, f.lastLang, f.lastRef = wav, language, params.ReferenceText
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{"NBest": []any{map[string]any{"PronScore": 91.0}}}, nil
}

func (f *fakeSpeech) Synthesize(ctx context.Context, ssml, outputFormat string) ([]byte, error) {
	f.lastSSML = ssml
	if f.err != nil {
		return nil, f.err
	}
	return []byte("ID3-audio"), nil
}

type testEnv struct {
	speech   *fakeSpeech
	usageSvc *service.UsageService
	speechSv *service.SpeechService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewNop()
	fake := &fakeSpeech{}
	clock := &service.TestClock{CurrentTime: testNow}
	usageSvc := service.NewUsageService(repository.NewMemoryUsageRepository(), usage.Limits{
		STTSecondsLimit:  18000,
		TTSCharsLimit:    500000,
		PronSecondsLimit: 18000,
	}, log).WithClock(clock)
	speechSvc := service.NewSpeechService(fake, usageSvc, time.Minute, log).WithClock(clock)
	return &testEnv{speech: fake, usageSvc: usageSvc, speechSv: speechSvc}
}

func (e *testEnv) monthUsed(t *testing.T, kind usage.Kind) int64 {
	t.Helper()
	totals, err := e.usageSvc.Month(context.Background(), "")
	require.NoError(t, err)
	return totals[kind]
}

// decodeEnvelope unmarshals a response envelope, decoding Data into data.
func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) response.Response {
	t.Helper()
	var env struct {
		Success bool                `json:"success"`
		Data    json.RawMessage     `json:"data"`
		Error   *response.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return response.Response{Success: env.Success, Error: env.Error}
}

// testWAV returns a 16 kHz mono 16-bit PCM clip of the given length.
func testWAV(d time.Duration) []byte {
	samples := int(d.Seconds() * 16000)
	size := uint32(samples * 2)
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+size)
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))     // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1))     // mono
	binary.Write(&buf, binary.LittleEndian, uint32(16000)) // sample rate
	binary.Write(&buf, binary.LittleEndian, uint32(32000)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(2))     // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))    // bits per sample
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, size)
	buf.Write(make([]byte, size))
	return buf.Bytes()
}
