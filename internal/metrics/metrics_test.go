package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveUpstream(t *testing.T) {
	before := testutil.ToFloat64(UpstreamRequestsTotal.WithLabelValues("synthesize", "200"))
	ObserveUpstream("synthesize", 200, 150*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(UpstreamRequestsTotal.WithLabelValues("synthesize", "200")))

	beforeErr := testutil.ToFloat64(UpstreamRequestsTotal.WithLabelValues("recognize", "error"))
	ObserveUpstream("recognize", 0, time.Second)
	assert.Equal(t, beforeErr+1, testutil.ToFloat64(UpstreamRequestsTotal.WithLabelValues("recognize", "error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	UsageAmountTotal.WithLabelValues("tts_chars").Add(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "speech_portal_usage_amount_total")
}
