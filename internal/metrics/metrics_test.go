package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesEngineMetrics(t *testing.T) {
	m := New()
	m.StepsTotal.WithLabelValues("PortExpose", "succeeded").Inc()
	m.ArtifactBytes.Add(42)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepsTotal.WithLabelValues("PortExpose", "succeeded")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `offsetup_engine_steps_total{kind="PortExpose",state="succeeded"} 1`))
	assert.True(t, strings.Contains(string(body), "offsetup_artifact_bytes_total 42"))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Fallbacks.WithLabelValues("docker").Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Fallbacks.WithLabelValues("docker")))
}
