package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func serveJobsRequest(t *testing.T, mw gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(mw)
	router.GET("/api/v1/sync/jobs/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sync/jobs/42", nil))
	return w
}

func TestHTTPMetricsWithMeter_RecordsRouteAttributes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	w := serveJobsRequest(t, HTTPMetricsWithMeter(provider.Meter("http.server"), true))
	assert.Equal(t, http.StatusOK, w.Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total *metricdata.Metrics
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == "http_server_request_total" {
				total = &sm.Metrics[i]
			}
		}
	}
	require.NotNil(t, total, "request counter should be recorded")

	sum := total.Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	dp := sum.DataPoints[0]
	assert.Equal(t, int64(1), dp.Value)

	// labelled with the route pattern, not the raw path
	route, ok := dp.Attributes.Value(attribute.Key("http.route"))
	require.True(t, ok)
	assert.Equal(t, "/api/v1/sync/jobs/:id", route.AsString())

	method, ok := dp.Attributes.Value(attribute.Key("http.method"))
	require.True(t, ok)
	assert.Equal(t, http.MethodGet, method.AsString())

	status, ok := dp.Attributes.Value(attribute.Key("http.status_code"))
	require.True(t, ok)
	assert.Equal(t, int64(http.StatusOK), status.AsInt64())
}

func TestHTTPMetrics_DisabledPassesThrough(t *testing.T) {
	w := serveJobsRequest(t, HTTPMetrics(HTTPMetricsConfig{Enabled: false}))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serveJobsRequest(t, HTTPMetricsWithMeter(nil, false))
	assert.Equal(t, http.StatusOK, w.Code)
}
