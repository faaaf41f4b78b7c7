package metricsvc

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.ObserveHTTP("/graphql", http.MethodPost, http.StatusOK, 20*time.Millisecond)
	m.ObserveHTTP("/graphql", http.MethodPost, http.StatusOK, 10*time.Millisecond)
	m.ObserveNoticeTransition("approve", 3)
	m.ObserveTokenEvent("redis", "miss")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/graphql", http.MethodPost, "200")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.noticeTransitions.WithLabelValues("approve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tokenEvents.WithLabelValues("redis", "miss")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "prsonline_notice_transitions_total"))
}
