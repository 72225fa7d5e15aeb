package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metricLoop:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metricLoop
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.PollCreated()
	m.PollCreated()
	m.Vote(true)
	m.Vote(false)
	m.Vote(false)
	m.ReactionToggled("question")

	assert.Equal(t, 2.0, counterValue(t, m, "lecturelink_polls_created_total", nil))
	assert.Equal(t, 1.0, counterValue(t, m, "lecturelink_poll_votes_total", map[string]string{"outcome": "accepted"}))
	assert.Equal(t, 2.0, counterValue(t, m, "lecturelink_poll_votes_total", map[string]string{"outcome": "rejected"}))
	assert.Equal(t, 1.0, counterValue(t, m, "lecturelink_reaction_toggles_total", map[string]string{"type": "question"}))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PollCreated()
		m.Vote(true)
		m.Acknowledged()
		m.PurgeJob(false)
	})
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, counterValue(t, m, "lecturelink_http_requests_total",
		map[string]string{"route": "/ping", "status": "200"}))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "lecturelink_http_requests_total"))
}
