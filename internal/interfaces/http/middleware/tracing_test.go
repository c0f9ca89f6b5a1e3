package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// withSpanRecorder installs a recording tracer provider for the duration of
// the test and restores the previous global provider afterwards.
func withSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
	})
	return recorder
}

func TestTracing_DisabledIsPassthrough(t *testing.T) {
	recorder := withSpanRecorder(t)

	r := gin.New()
	r.Use(TracingWithConfig(TracingConfig{ServiceName: "sync-engine", Enabled: false}))
	r.GET("/records/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/records/42", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, recorder.Ended())
}

func TestTracing_RecordsServerSpan(t *testing.T) {
	recorder := withSpanRecorder(t)

	r := gin.New()
	r.Use(TracingWithConfig(TracingConfig{ServiceName: "sync-engine", Enabled: true}))
	r.GET("/records/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/records/42", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, oteltrace.SpanKindServer, spans[0].SpanKind())
	assert.NotEmpty(t, spans[0].Name())
}

func TestSpanErrorMarker(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		wantCode   codes.Code
		wantDetail string
	}{
		{"success is not marked", http.StatusOK, codes.Unset, ""},
		{"not found", http.StatusNotFound, codes.Error, "Not Found"},
		{"conflict", http.StatusConflict, codes.Error, "Conflict"},
		{"validation failure", http.StatusBadRequest, codes.Error, "Client Error"},
		{"server failure", http.StatusInternalServerError, codes.Error, "Internal Server Error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := withSpanRecorder(t)

			r := gin.New()
			r.Use(TracingWithConfig(TracingConfig{ServiceName: "sync-engine", Enabled: true}))
			r.Use(SpanErrorMarker())
			r.GET("/records", func(c *gin.Context) {
				c.Status(tc.status)
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/records", nil))

			assert.Equal(t, tc.status, w.Code)

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, tc.wantCode, spans[0].Status().Code)
			if tc.wantDetail != "" {
				assert.Equal(t, tc.wantDetail, spans[0].Status().Description)
				assert.Contains(t, spans[0].Attributes(), attribute.Int("http.status_code", tc.status))
			}
		})
	}
}
