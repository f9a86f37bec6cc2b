package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorExposesSeries(t *testing.T) {
	c := NewCollector(500*time.Millisecond, time.Minute)
	c.ActiveVehicles.WithLabelValues("1").Set(12)
	c.Rebuilds.WithLabelValues("1").Inc()
	c.AppliedWindow.WithLabelValues("1", "07:00-09:00").Set(1)

	assert.InDelta(t, 0.5, testutil.ToFloat64(c.FrameInterval), 1e-9)
	assert.InDelta(t, 60, testutil.ToFloat64(c.PollInterval), 1e-9)
	assert.InDelta(t, 12, testutil.ToFloat64(c.ActiveVehicles.WithLabelValues("1")), 1e-9)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	for _, name := range []string{
		"simulator_active_vehicles",
		"simulator_metrics_rebuilds_total",
		`simulator_applied_window{line="1",window="07:00-09:00"} 1`,
	} {
		assert.True(t, strings.Contains(string(body), name), "missing %s", name)
	}
}
