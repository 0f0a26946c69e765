package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	okBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	teapotBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418"))

	for _, path := range []string{"/ok", "/teapot"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, okBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")))
	assert.Equal(t, teapotBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418")))
	assert.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}

func TestCaptureAndTitleCounters(t *testing.T) {
	Init()

	okBefore := testutil.ToFloat64(capturesTotal.WithLabelValues("ok"))
	ObserveCapture("ok")
	assert.Equal(t, okBefore+1, testutil.ToFloat64(capturesTotal.WithLabelValues("ok")))

	missBefore := testutil.ToFloat64(titleResolutionsTotal.WithLabelValues("no_title"))
	ObserveTitle("no_title")
	assert.Equal(t, missBefore+1, testutil.ToFloat64(titleResolutionsTotal.WithLabelValues("no_title")))
}

func TestGauges(t *testing.T) {
	Init()

	SetQueueDepth(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(captureQueueDepth))

	before := testutil.ToFloat64(captureActiveWorkers)
	IncActiveWorkers()
	assert.Equal(t, before+1, testutil.ToFloat64(captureActiveWorkers))
	DecActiveWorkers()
	assert.Equal(t, before, testutil.ToFloat64(captureActiveWorkers))
}

func TestHandlerExposesCollectors(t *testing.T) {
	Init()
	ObserveCapture("error")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "linkshelf_captures_total"))
}
