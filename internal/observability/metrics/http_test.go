package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestGinMiddlewareObservesRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m, err := newHTTPMetrics(reg)
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/api/products/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products/42", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	families, err := reg.Gather()
	require.NoError(t, err)

	var histogram *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "frostclub_http_request_duration_seconds" {
			histogram = f
		}
	}
	require.NotNil(t, histogram)
	require.Len(t, histogram.GetMetric(), 1)

	labels := map[string]string{}
	for _, l := range histogram.GetMetric()[0].GetLabel() {
		labels[l.GetName()] = l.GetValue()
	}
	require.Equal(t, "/api/products/:id", labels["route"])
	require.Equal(t, "204", labels["status_code"])
	require.Equal(t, uint64(1), histogram.GetMetric()[0].GetHistogram().GetSampleCount())
}
