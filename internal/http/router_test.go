package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/rapilink/backend/internal/config"
	"github.com/rapilink/backend/internal/http/handlers"
	"github.com/rapilink/backend/internal/metrics"
	"github.com/rapilink/backend/internal/service"
)

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type sweepOnly struct {
	handlers.Workflow
	calls int
}

func (s *sweepOnly) CheckTimeouts(context.Context) (service.SweepReport, error) {
	s.calls++
	return service.SweepReport{}, nil
}

func TestRouterGuards(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	metrics.New(reg).ObservePurge()
	wf := &sweepOnly{}
	r := Router(config.Config{CORSAllowed: "*", AdminKey: "s3cret"}, wf, okPinger{}, reg, zerolog.Nop())

	send := func(method, path string, headers map[string]string) int {
		req := httptest.NewRequest(method, path, nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusUnauthorized, send(http.MethodPost, "/api/escalations/check", nil))
	assert.Equal(t, http.StatusUnauthorized, send(http.MethodPost, "/api/escalations/check", map[string]string{"X-User-Id": "u-1"}))
	assert.Equal(t, http.StatusOK, send(http.MethodPost, "/api/escalations/check", map[string]string{"X-User-Id": "u-1", "X-Admin-Key": "s3cret"}))
	assert.Equal(t, 1, wf.calls)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "workflow_purged_work_items_total 1")
}
