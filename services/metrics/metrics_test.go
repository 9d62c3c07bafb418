package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/jumuiya/core"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(&core.Config{Env: "TEST"})

	m.ObserveRedeem("ok")
	m.ObserveRedeem("ok")
	m.ObserveRedeem("expired")
	m.ObserveResponse("approve", "ok")
	m.ObserveResponse("approve", "conflict")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.redemptions.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.redemptions.WithLabelValues("expired")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.redemptions.WithLabelValues("exhausted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.responses.WithLabelValues("approve", "conflict")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New(&core.Config{Env: "TEST"})
	m.ObserveRedeem("ok")
	m.ObserveHTTP(http.MethodPost, "/v1/requests/redeem", http.StatusCreated, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `jumuiya_code_redemptions_total{env="TEST",outcome="ok"} 1`))
	assert.True(t, strings.Contains(body, "jumuiya_http_request_duration_seconds_bucket"))
}
